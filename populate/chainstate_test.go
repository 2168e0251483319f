// Copyright (c) 2016-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package populate

import (
	"math/big"
	"testing"
	"time"

	"github.com/btcsuite/btcchain/chain"
	"github.com/btcsuite/btcchain/internal/chaintest"
	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/require"
)

func newHarnessPopulator(t *testing.T) (*chaintest.Harness, *ChainState) {
	harness := chaintest.New(t)
	populator := NewChainState(harness.Store, harness.Params,
		chain.DefaultForkHeights(harness.Params), chain.AllRules)
	return harness, populator
}

func TestPopulateTop(t *testing.T) {
	t.Parallel()

	harness, populator := newHarnessPopulator(t)
	blocks := harness.Mine(3)
	tip := blocks[2]

	state, err := populator.PopulateTop()
	require.NoError(t, err)
	require.EqualValues(t, 4, state.Height)
	require.Equal(t, *tip.Hash(), state.ParentHash)
	require.Equal(t, tip.MsgBlock().Header.Timestamp, state.ParentTime)
	require.Equal(t, tip.MsgBlock().Header.Bits, state.RequiredBits)
	require.Len(t, state.Timestamps, 4)

	// Timestamps are ascending so the median is the third of four.
	require.Equal(t, blocks[1].MsgBlock().Header.Timestamp, state.MedianTimePast)
	require.True(t, state.IsEnabled(chain.Bip16Rule|chain.Bip141Rule))
}

// TestPromote ensures promoting a state along the main chain yields the
// same state as populating it from the store.
func TestPromote(t *testing.T) {
	t.Parallel()

	harness, populator := newHarnessPopulator(t)
	state, err := populator.PopulateTop()
	require.NoError(t, err)

	for i := 0; i < chain.MedianTimeBlocks+3; i++ {
		block := harness.Mine(1)[0]
		promoted := populator.Promote(state, &block.MsgBlock().Header)

		populated, err := populator.PopulateTop()
		require.NoError(t, err)
		require.Equal(t, populated, promoted, "height %d: %v",
			populated.Height, spew.Sdump(promoted))
		state = promoted
	}
	require.Len(t, state.Timestamps, chain.MedianTimeBlocks)
}

func TestPopulateBranch(t *testing.T) {
	t.Parallel()

	harness, populator := newHarnessPopulator(t)
	harness.Mine(2)
	tip := harness.Tip()

	first := harness.NextBlock(tip, 0)
	second := harness.NextBlock(first, 0)
	branch := chain.NewBranch()
	branch.PushFront(chain.NewBlock(second))
	branch.PushFront(chain.NewBlock(first))
	branch.SetForkPoint(tip.Hash(), uint32(tip.Height()))

	state, err := populator.Populate(branch, 1)
	require.NoError(t, err)
	require.EqualValues(t, 4, state.Height)
	require.Equal(t, *first.Hash(), state.ParentHash)
	require.Equal(t, first.MsgBlock().Header.Timestamp, state.Timestamps[len(state.Timestamps)-1])

	state, err = populator.Populate(branch, 0)
	require.NoError(t, err)
	require.EqualValues(t, 3, state.Height)
	require.Equal(t, *tip.Hash(), state.ParentHash)
}

func TestRetarget(t *testing.T) {
	t.Parallel()

	params := &chaincfg.MainNetParams
	populator := NewChainState(nil, params, chain.DefaultForkHeights(params),
		chain.AllRules)
	twoWeeks := params.TargetTimespan
	start := time.Unix(1500000000, 0)

	scaled := func(bits uint32, num, den int64) uint32 {
		target := blockchain.CompactToBig(bits)
		target.Mul(target, big.NewInt(num))
		target.Div(target, big.NewInt(den))
		if target.Cmp(params.PowLimit) > 0 {
			target.Set(params.PowLimit)
		}
		return blockchain.BigToCompact(target)
	}

	const bits = 0x1b0404cb
	tests := []struct {
		name     string
		height   uint32
		timespan time.Duration
		want     uint32
	}{
		{
			name:     "between retargets",
			height:   2017,
			timespan: time.Hour,
			want:     bits,
		},
		{
			name:     "on schedule",
			height:   4032,
			timespan: twoWeeks,
			want:     scaled(bits, 1, 1),
		},
		{
			name:     "twice as fast",
			height:   4032,
			timespan: twoWeeks / 2,
			want:     scaled(bits, 1, 2),
		},
		{
			name:     "clamped fast",
			height:   4032,
			timespan: time.Hour,
			want:     scaled(bits, 1, 4),
		},
		{
			name:     "clamped slow",
			height:   4032,
			timespan: twoWeeks * 10,
			want:     scaled(bits, 4, 1),
		},
		{
			name:     "limited by pow limit",
			height:   4032,
			timespan: twoWeeks * 4,
			want:     scaled(params.PowLimitBits, 4, 1),
		},
	}

	for _, test := range tests {
		parentBits := uint32(bits)
		if test.name == "limited by pow limit" {
			parentBits = params.PowLimitBits
		}
		state := &chain.State{
			Height:       test.height,
			ParentBits:   parentBits,
			NormalBits:   parentBits,
			RetargetTime: start,
			ParentTime:   start.Add(test.timespan),
		}
		require.Equal(t, test.want, populator.requiredBits(state), test.name)
	}
}

func TestMinDifficultyAllowed(t *testing.T) {
	t.Parallel()

	params := &chaincfg.TestNet3Params
	populator := NewChainState(nil, params, chain.DefaultForkHeights(params),
		chain.AllRules)
	parent := time.Unix(1500000000, 0)
	state := &chain.State{Height: 5, ParentTime: parent}

	require.False(t, populator.MinDifficultyAllowed(state, parent.Add(time.Minute)))
	require.True(t, populator.MinDifficultyAllowed(state,
		parent.Add(params.MinDiffReductionTime+time.Second)))

	// Retarget blocks never get the exception.
	state.Height = 2016
	require.False(t, populator.MinDifficultyAllowed(state,
		parent.Add(params.MinDiffReductionTime+time.Second)))

	// Between retargets the normal difficulty is required.
	state = &chain.State{Height: 7, ParentBits: params.PowLimitBits,
		NormalBits: 0x1c00ffff}
	require.EqualValues(t, 0x1c00ffff, populator.requiredBits(state))
}
