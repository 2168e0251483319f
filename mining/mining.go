// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mining

import (
	"sort"
)

const (
	// PackStepBytes is the byte budget of each packer iteration.
	PackStepBytes = 950 * 1024

	// PackStepSigOps is the signature operation budget of each packer
	// iteration.
	PackStepSigOps = 20000 - 100

	// DefaultTemplateMaxBytes is the default byte budget of a ranked
	// template.
	DefaultTemplateMaxBytes = PackStepBytes

	// DefaultTemplateMaxSigOps is the default signature operation budget
	// of a ranked template.
	DefaultTemplateMaxSigOps = PackStepSigOps
)

// SortByFeeRate orders candidates by decreasing fee rate.  Equal rates keep
// their relative order.
func SortByFeeRate(candidates []*TxCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return higherFeeRate(candidates[i], candidates[j])
	})
}

// nextPack greedily collects the highest paying candidates not taken yet
// that fit in one iteration budget.
func nextPack(sorted []*TxCandidate, taken []bool) ([]*TxCandidate, int, int) {
	var (
		pack   []*TxCandidate
		bytes  int
		sigOps int
	)
	for i := 0; i < len(sorted) && bytes < PackStepBytes &&
		sigOps < PackStepSigOps; i++ {

		if taken[i] {
			continue
		}
		c := sorted[i]
		if bytes+c.Size > PackStepBytes || sigOps+c.SigOps > PackStepSigOps {
			continue
		}
		taken[i] = true
		pack = append(pack, c)
		bytes += c.Size
		sigOps += c.SigOps
	}
	return pack, bytes, sigOps
}

// PackTemplate selects candidates in packs of at most PackStepBytes bytes and
// PackStepSigOps signature operations, walking them by decreasing fee rate.
// The first pack is always taken.  Each following pack is taken only while
// the running size stays within maxBytes and within the window of its
// iteration, [(n-1)*PackStepBytes, n*PackStepBytes], and the running
// signature operations stay within n*PackStepSigOps.  Selection stops at the
// first pack that fails or comes back empty.
//
// Candidates are treated as independent: a child paying a higher rate than
// its parent precedes it, and a child may be selected without its parent.
// Callers packing chains of unconfirmed transactions order and filter the
// result.
//
// The passed slice is not modified.
func PackTemplate(candidates []*TxCandidate, maxBytes int) []*TxCandidate {
	sorted := make([]*TxCandidate, len(candidates))
	copy(sorted, candidates)
	SortByFeeRate(sorted)

	var (
		selected    []*TxCandidate
		totalBytes  int
		totalSigOps int
	)
	taken := make([]bool, len(sorted))
	for iteration := 1; ; iteration++ {
		pack, bytes, sigOps := nextPack(sorted, taken)
		if len(pack) == 0 {
			break
		}

		if iteration > 1 {
			size := totalBytes + bytes
			if size > maxBytes {
				break
			}
			if size < (iteration-1)*PackStepBytes ||
				size > iteration*PackStepBytes {
				break
			}
			if totalSigOps+sigOps > iteration*PackStepSigOps {
				break
			}
		}

		totalBytes += bytes
		totalSigOps += sigOps
		selected = append(selected, pack...)
	}

	log.Debugf("Packed %d of %d transactions (%d bytes, %d sigops)",
		len(selected), len(candidates), totalBytes, totalSigOps)
	return selected
}
