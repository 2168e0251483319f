// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mining

import (
	"fmt"
	"math"
	"math/big"

	"github.com/btcsuite/btcd/btcutil"
)

// TxCandidate is a transaction offered for inclusion in a block template
// along with the figures the template accounting needs.
type TxCandidate struct {
	// Tx is the offered transaction.
	Tx *btcutil.Tx

	// Fee is the total fee the transaction pays.
	Fee int64

	// Size is the serialized size of the transaction in bytes.
	Size int

	// SigOps is the signature operation count of the transaction.
	SigOps int
}

// FeePerKB returns the fee rate of the candidate in satoshi per 1000 bytes.
func (c *TxCandidate) FeePerKB() int64 {
	if c.Size == 0 {
		return 0
	}
	return c.Fee * 1000 / int64(c.Size)
}

// CompareFeeRate compares the fee rate aFee/aSize with bFee/bSize and returns
// -1, 0 or +1 when the first is lower, equal or higher.  The rates are
// compared by cross multiplication so no precision is lost, widening to big
// integers when the products could overflow.
func CompareFeeRate(aFee int64, aSize int, bFee int64, bSize int) int {
	if fitsInt32(aFee) && fitsInt32(bFee) && fitsInt32(int64(aSize)) &&
		fitsInt32(int64(bSize)) {

		left, right := aFee*int64(bSize), bFee*int64(aSize)
		switch {
		case left < right:
			return -1
		case left > right:
			return 1
		}
		return 0
	}

	left := new(big.Int).Mul(big.NewInt(aFee), big.NewInt(int64(bSize)))
	right := new(big.Int).Mul(big.NewInt(bFee), big.NewInt(int64(aSize)))
	return left.Cmp(right)
}

func fitsInt32(v int64) bool {
	return v >= math.MinInt32 && v <= math.MaxInt32
}

// higherFeeRate reports whether a pays strictly more per byte than b.
func higherFeeRate(a, b *TxCandidate) bool {
	return CompareFeeRate(a.Fee, a.Size, b.Fee, b.Size) > 0
}

// TemplatePolicy ranks transaction candidates by fee rate and admits them
// while they fit within a byte and a signature operation budget.  Candidates
// of equal fee rate keep their insertion order.
type TemplatePolicy struct {
	// MaxBytes is the byte budget of the template.
	MaxBytes int

	// MaxSigOps is the signature operation budget of the template.
	MaxSigOps int

	bytes  int
	sigOps int
}

// Ensure TemplatePolicy implements the Policy interface.
var _ Policy[*TxCandidate] = (*TemplatePolicy)(nil)

// NewTemplatePolicy returns a policy with the given budgets.
func NewTemplatePolicy(maxBytes, maxSigOps int) *TemplatePolicy {
	return &TemplatePolicy{
		MaxBytes:  maxBytes,
		MaxSigOps: maxSigOps,
	}
}

// Bytes returns the bytes charged by the current candidates.
func (tp *TemplatePolicy) Bytes() int {
	return tp.bytes
}

// SigOps returns the signature operations charged by the current candidates.
func (tp *TemplatePolicy) SigOps() int {
	return tp.sigOps
}

// Less ranks a before b when a pays a higher fee rate.
func (tp *TemplatePolicy) Less(a, b *TxCandidate) bool {
	return higherFeeRate(a, b)
}

func (tp *TemplatePolicy) fits(item *TxCandidate, freedBytes, freedSigOps int) bool {
	return tp.bytes-freedBytes+item.Size <= tp.MaxBytes &&
		tp.sigOps-freedSigOps+item.SigOps <= tp.MaxSigOps
}

// HasRoomFor reports whether item fits in what is left of both budgets.
func (tp *TemplatePolicy) HasRoomFor(item *TxCandidate) bool {
	return tp.fits(item, 0, 0)
}

// Accumulate charges item against both budgets.
func (tp *TemplatePolicy) Accumulate(item *TxCandidate) {
	tp.bytes += item.Size
	tp.sigOps += item.SigOps
}

func (tp *TemplatePolicy) release(item *TxCandidate) {
	tp.bytes -= item.Size
	tp.sigOps -= item.SigOps
}

// RemoveInsertSeveral walks the candidates from the lowest fee rate up and
// collects those paying strictly less than the element h until enough room
// is freed for it.  When that succeeds the collected candidates are evicted
// and h is inserted at its rank.  Otherwise nothing changes.
func (tp *TemplatePolicy) RemoveInsertSeveral(h Handle, ops *Ops[*TxCandidate]) {
	item := ops.Get(h)
	if item.Size > tp.MaxBytes || item.SigOps > tp.MaxSigOps {
		return
	}

	var (
		evict       []Handle
		freedBytes  int
		freedSigOps int
	)
	for walk := ops.Reverse(); walk.HasNext(); {
		if tp.fits(item, freedBytes, freedSigOps) {
			break
		}
		victim := walk.Next()
		other := ops.Get(victim)
		if !higherFeeRate(item, other) {
			break
		}
		evict = append(evict, victim)
		freedBytes += other.Size
		freedSigOps += other.SigOps
	}
	if !tp.fits(item, freedBytes, freedSigOps) {
		return
	}

	for _, victim := range evict {
		ops.Remove(victim)
		tp.release(ops.Get(victim))
	}
	ops.Insert(h)
	tp.Accumulate(item)

	if len(evict) > 0 {
		log.Tracef("Candidate %v displaced %d lower fee rate "+
			"transactions", item.Tx.Hash(), len(evict))
	}
}

// CheckNode verifies the element h is well formed and, when it is a
// candidate, accounted for.
func (tp *TemplatePolicy) CheckNode(h Handle, ops *Ops[*TxCandidate]) error {
	item := ops.Get(h)
	if item.Size <= 0 || item.SigOps < 0 || item.Fee < 0 {
		return fmt.Errorf("element %d has size %d, sigops %d, fee %d",
			h, item.Size, item.SigOps, item.Fee)
	}
	if tp.bytes > tp.MaxBytes || tp.sigOps > tp.MaxSigOps {
		return fmt.Errorf("budget exceeded: %d/%d bytes, %d/%d sigops",
			tp.bytes, tp.MaxBytes, tp.sigOps, tp.MaxSigOps)
	}
	if ops.IsCandidate(h) && (item.Size > tp.bytes || item.SigOps > tp.sigOps) {
		return fmt.Errorf("candidate %d is not accounted for", h)
	}
	return nil
}
