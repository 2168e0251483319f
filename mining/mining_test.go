// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mining

import (
	"math"
	"testing"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

// repeatCandidates returns n candidates sharing the given figures.
func repeatCandidates(n int, fee int64, size, sigOps int) []*TxCandidate {
	candidates := make([]*TxCandidate, n)
	for i := range candidates {
		candidates[i] = testCandidate(fee, size, sigOps)
	}
	return candidates
}

// TestPackTemplate ensures the multi-pass packer honors the per iteration
// windows.
func TestPackTemplate(t *testing.T) {
	t.Parallel()

	const kib = 1024
	tests := []struct {
		name       string
		candidates []*TxCandidate
		maxBytes   int
		want       int
	}{{
		name:     "empty",
		maxBytes: 4 * PackStepBytes,
		want:     0,
	}, {
		name:       "single pack",
		candidates: repeatCandidates(10, 1000, 250, 1),
		maxBytes:   4 * PackStepBytes,
		want:       10,
	}, {
		name:       "second pack in window",
		candidates: repeatCandidates(12, 1000, 100*kib, 1),
		maxBytes:   4 * PackStepBytes,
		want:       12,
	}, {
		name:       "second pack above max bytes",
		candidates: repeatCandidates(12, 1000, 100*kib, 1),
		maxBytes:   1000 * kib,
		want:       9,
	}, {
		name:       "third pack below its window",
		candidates: repeatCandidates(3, 1000, 500*kib, 1),
		maxBytes:   10 * PackStepBytes,
		want:       2,
	}, {
		name:       "first pack always taken",
		candidates: repeatCandidates(3, 1000, 100, 10000),
		maxBytes:   10,
		want:       1,
	}, {
		name:       "oversized candidates never packed",
		candidates: repeatCandidates(2, 1000, PackStepBytes+1, 1),
		maxBytes:   10 * PackStepBytes,
		want:       0,
	}}

	for _, test := range tests {
		got := PackTemplate(test.candidates, test.maxBytes)
		require.Len(t, got, test.want, test.name)
	}
}

// TestPackTemplateOrder ensures the packed candidates come out by
// decreasing fee rate and the input is left alone.
func TestPackTemplateOrder(t *testing.T) {
	t.Parallel()

	low := testCandidate(100, 1000, 1)
	mid := testCandidate(500, 1000, 1)
	high := testCandidate(500, 250, 1)
	input := []*TxCandidate{low, mid, high}

	got := PackTemplate(input, PackStepBytes)
	require.Equal(t, []*TxCandidate{high, mid, low}, got)
	require.Equal(t, []*TxCandidate{low, mid, high}, input)
	require.Equal(t, int64(2000), high.FeePerKB())
}

// TestSpentSet ensures conflicts are detected on any input.
func TestSpentSet(t *testing.T) {
	t.Parallel()

	spendOf := func(outpoints ...wire.OutPoint) *wire.MsgTx {
		msgTx := wire.NewMsgTx(wire.TxVersion)
		for i := range outpoints {
			msgTx.AddTxIn(wire.NewTxIn(&outpoints[i], nil, nil))
		}
		return msgTx
	}

	first := wire.OutPoint{Index: 0}
	second := wire.OutPoint{Index: 1}
	third := wire.OutPoint{Index: 2}

	spent := NewSpentSet()
	tx1 := spendOf(first, second)
	require.False(t, spent.Conflicts(tx1))
	spent.Add(tx1)

	// The conflicting input is not the first one.
	require.True(t, spent.Conflicts(spendOf(third, second)))
	require.False(t, spent.Conflicts(spendOf(third)))
}

// TestCompareFeeRate ensures fee rates compare exactly, including figures
// whose cross products overflow 64 bits.
func TestCompareFeeRate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		aFee  int64
		aSize int
		bFee  int64
		bSize int
		want  int
	}{
		{"higher", 300, 100, 200, 100, 1},
		{"lower", 100, 250, 100, 200, -1},
		{"equal rates", 200, 100, 400, 200, 0},
		{"huge fees", math.MaxInt64, 100, math.MaxInt64 - 1, 100, 1},
		{"huge fee, larger size", math.MaxInt64, 1000, math.MaxInt64, 999, -1},
		{"huge against small", math.MaxInt64 / 2, 4000, 1000, 1, 1},
		{"huge equal rates", math.MaxInt64 - 1, 4, (math.MaxInt64 - 1) / 2, 2, 0},
	}
	for _, test := range tests {
		got := CompareFeeRate(test.aFee, test.aSize, test.bFee, test.bSize)
		require.Equal(t, test.want, got, test.name)
		got = CompareFeeRate(test.bFee, test.bSize, test.aFee, test.aSize)
		require.Equal(t, -test.want, got, test.name)
	}
}
