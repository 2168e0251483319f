// Copyright (c) 2016-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package populate derives chain states and resolves previous outputs for
// transactions and blocks about to be validated.
package populate

import (
	"math/big"
	"sort"
	"time"

	"github.com/btcsuite/btcchain/chain"
	"github.com/btcsuite/btcchain/database"
	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
)

// headerFunc returns the header of the block at height on the branch being
// populated.
type headerFunc func(height uint32) (*wire.BlockHeader, error)

// ChainState derives chain states from the store and candidate branches.
type ChainState struct {
	store   database.Store
	params  *chaincfg.Params
	heights chain.ForkHeights
	enabled chain.RuleFork

	blocksPerRetarget    uint32
	minRetargetTimespan  int64
	maxRetargetTimespan  int64
	targetTimespanSecs   int64
	minDiffReductionTime time.Duration
}

// NewChainState returns a populator reading ancestors from store.  Only the
// forks in enabled are ever activated.
func NewChainState(store database.Store, params *chaincfg.Params,
	heights chain.ForkHeights, enabled chain.RuleFork) *ChainState {

	targetTimespan := int64(params.TargetTimespan / time.Second)
	adjustmentFactor := params.RetargetAdjustmentFactor
	return &ChainState{
		store:                store,
		params:               params,
		heights:              heights,
		enabled:              enabled,
		blocksPerRetarget:    uint32(params.TargetTimespan / params.TargetTimePerBlock),
		minRetargetTimespan:  targetTimespan / adjustmentFactor,
		maxRetargetTimespan:  targetTimespan * adjustmentFactor,
		targetTimespanSecs:   targetTimespan,
		minDiffReductionTime: params.MinDiffReductionTime,
	}
}

func (c *ChainState) storeHeader(height uint32) (*wire.BlockHeader, error) {
	record, err := c.store.BlockByHeight(height)
	if err != nil {
		return nil, err
	}
	return &record.Header, nil
}

// PopulateTop returns the pool state, which describes the block that would
// follow the current tip.
func (c *ChainState) PopulateTop() (*chain.State, error) {
	top, err := c.store.TopHeight()
	if err != nil {
		return nil, err
	}
	return c.populate(top+1, c.storeHeader)
}

// Populate returns the state for the block at index on branch.  Ancestors at
// or below the fork point are read from the store and the rest from the
// branch itself.
func (c *ChainState) Populate(branch *chain.Branch, index int) (*chain.State, error) {
	fork := branch.ForkHeight()
	blocks := branch.Blocks()
	return c.populate(branch.HeightAt(index), func(height uint32) (*wire.BlockHeader, error) {
		if height > fork {
			return &blocks[height-fork-1].MsgBlock().Header, nil
		}
		return c.storeHeader(height)
	})
}

func (c *ChainState) populate(height uint32, headerAt headerFunc) (*chain.State, error) {
	if height == 0 {
		genesis := &c.params.GenesisBlock.Header
		return &chain.State{
			Forks:        c.heights.Active(0) & c.enabled,
			EnabledForks: c.enabled,
			RequiredBits: genesis.Bits,
			NormalBits:   genesis.Bits,
		}, nil
	}

	count := height
	if count > chain.MedianTimeBlocks {
		count = chain.MedianTimeBlocks
	}
	timestamps := make([]time.Time, count)
	var parent *wire.BlockHeader
	for i := uint32(0); i < count; i++ {
		header, err := headerAt(height - count + i)
		if err != nil {
			return nil, err
		}
		timestamps[i] = header.Timestamp
		parent = header
	}

	windowStart, err := headerAt((height - 1) / c.blocksPerRetarget * c.blocksPerRetarget)
	if err != nil {
		return nil, err
	}

	normalBits := parent.Bits
	if c.reducesMinDifficulty() {
		normal, at := parent, height-1
		for at%c.blocksPerRetarget != 0 && normal.Bits == c.params.PowLimitBits {
			at--
			if normal, err = headerAt(at); err != nil {
				return nil, err
			}
		}
		normalBits = normal.Bits
	}

	state := &chain.State{
		Height:         height,
		ParentHash:     parent.BlockHash(),
		ParentTime:     parent.Timestamp,
		ParentBits:     parent.Bits,
		Forks:          c.heights.Active(height) & c.enabled,
		EnabledForks:   c.enabled,
		MedianTimePast: medianTime(timestamps),
		RetargetTime:   windowStart.Timestamp,
		NormalBits:     normalBits,
		Timestamps:     timestamps,
	}
	state.RequiredBits = c.requiredBits(state)

	log.Tracef("Populated chain state: %v", state)
	return state, nil
}

// Promote returns the state for the block following header, which must be
// the block validated under top.  No store access is needed.
func (c *ChainState) Promote(top *chain.State, header *wire.BlockHeader) *chain.State {
	atBoundary := top.Height%c.blocksPerRetarget == 0

	timestamps := make([]time.Time, 0, chain.MedianTimeBlocks)
	timestamps = append(timestamps, top.Timestamps...)
	timestamps = append(timestamps, header.Timestamp)
	if len(timestamps) > chain.MedianTimeBlocks {
		timestamps = timestamps[len(timestamps)-chain.MedianTimeBlocks:]
	}

	retargetTime := top.RetargetTime
	if atBoundary {
		retargetTime = header.Timestamp
	}
	normalBits := header.Bits
	if c.reducesMinDifficulty() && !atBoundary &&
		header.Bits == c.params.PowLimitBits {

		normalBits = top.NormalBits
	}

	state := &chain.State{
		Height:         top.Height + 1,
		ParentHash:     header.BlockHash(),
		ParentTime:     header.Timestamp,
		ParentBits:     header.Bits,
		Forks:          c.heights.Active(top.Height+1) & top.EnabledForks,
		EnabledForks:   top.EnabledForks,
		MedianTimePast: medianTime(timestamps),
		RetargetTime:   retargetTime,
		NormalBits:     normalBits,
		Timestamps:     timestamps,
	}
	state.RequiredBits = c.requiredBits(state)
	return state
}

// requiredBits calculates the difficulty of the block at state.Height from
// the parent fields of state.
func (c *ChainState) requiredBits(state *chain.State) uint32 {
	if c.params.PoWNoRetargeting {
		return state.ParentBits
	}

	if state.Height%c.blocksPerRetarget != 0 {
		// Minimum difficulty exceptions are granted per block against
		// its own timestamp, so the state carries the normal
		// difficulty.
		if c.reducesMinDifficulty() {
			return state.NormalBits
		}
		return state.ParentBits
	}

	// Limit the amount of adjustment that can occur to the previous
	// difficulty.
	actualTimespan := state.ParentTime.Unix() - state.RetargetTime.Unix()
	adjustedTimespan := actualTimespan
	if actualTimespan < c.minRetargetTimespan {
		adjustedTimespan = c.minRetargetTimespan
	} else if actualTimespan > c.maxRetargetTimespan {
		adjustedTimespan = c.maxRetargetTimespan
	}

	// newTarget = oldTarget * adjustedTimespan / targetTimespan
	oldTarget := blockchain.CompactToBig(state.ParentBits)
	newTarget := new(big.Int).Mul(oldTarget, big.NewInt(adjustedTimespan))
	newTarget.Div(newTarget, big.NewInt(c.targetTimespanSecs))

	// Limit new value to the proof of work limit.
	if newTarget.Cmp(c.params.PowLimit) > 0 {
		newTarget.Set(c.params.PowLimit)
	}

	newTargetBits := blockchain.BigToCompact(newTarget)
	log.Debugf("Difficulty retarget at block height %d: old target %08x, "+
		"new target %08x, actual timespan %v", state.Height,
		state.ParentBits, newTargetBits,
		time.Duration(actualTimespan)*time.Second)
	return newTargetBits
}

// MinDifficultyAllowed reports whether a block at state.Height with the given
// timestamp may use the proof of work limit as its difficulty.
func (c *ChainState) MinDifficultyAllowed(state *chain.State, timestamp time.Time) bool {
	return c.reducesMinDifficulty() && state.Height%c.blocksPerRetarget != 0 &&
		timestamp.After(state.ParentTime.Add(c.minDiffReductionTime))
}

func (c *ChainState) reducesMinDifficulty() bool {
	return c.params.ReduceMinDifficulty && !c.params.PoWNoRetargeting
}

// medianTime returns the median of timestamps without modifying it.
func medianTime(timestamps []time.Time) time.Time {
	if len(timestamps) == 0 {
		return time.Time{}
	}
	sorted := make([]time.Time, len(timestamps))
	copy(sorted, timestamps)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Before(sorted[j])
	})
	return sorted[len(sorted)/2]
}
