// Copyright (c) 2016-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package chain houses the value types shared by the validation core: the
// immutable chain state snapshot, rule forks, validation wrappers for
// transactions and blocks, branches and merkle roots.
package chain

import (
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// MedianTimeBlocks is the number of previous blocks used to calculate the
// median time past.
const MedianTimeBlocks = 11

// State is an immutable snapshot of the consensus parameters that apply to
// the block at Height.  The pool wide state describes the block that would
// follow the current tip, so transactions are validated as if they were
// included in it.
//
// A State is never modified once published.  A new one replaces it.
type State struct {
	// Height is the height of the block validated under this state.
	Height uint32

	// ParentHash and ParentTime describe the block at Height-1.
	ParentHash chainhash.Hash
	ParentTime time.Time
	ParentBits uint32

	// Forks is the set of rule changes active at Height, already masked by
	// EnabledForks.
	Forks RuleFork

	// EnabledForks is the configured set of rule changes this node
	// enforces.
	EnabledForks RuleFork

	// MedianTimePast is the median timestamp of the previous
	// MedianTimeBlocks blocks.
	MedianTimePast time.Time

	// RequiredBits is the difficulty target the block at Height must
	// carry.  On networks that allow minimum difficulty blocks a block
	// timestamped far enough past its parent may carry the proof of work
	// limit instead.
	RequiredBits uint32

	// RetargetTime is the timestamp of the first block of the retarget
	// window containing Height-1.
	RetargetTime time.Time

	// NormalBits is the most recent difficulty at or below Height-1 that
	// is not a minimum difficulty exception.
	NormalBits uint32

	// Timestamps holds up to MedianTimeBlocks ancestor timestamps, oldest
	// first and ending with ParentTime.  It must not be modified.
	Timestamps []time.Time
}

// IsEnabled reports whether every fork in rule is active.
func (s *State) IsEnabled(rule RuleFork) bool {
	return s.Forks&rule == rule
}

// String returns a short description for logging.
func (s *State) String() string {
	return fmt.Sprintf("height %d, forks %v, mtp %v, bits %08x", s.Height,
		s.Forks, s.MedianTimePast.Unix(), s.RequiredBits)
}

// Checkpoint identifies a block by hash and height.
type Checkpoint struct {
	Hash   chainhash.Hash
	Height uint32
}

// String returns the checkpoint as "height:hash".
func (c Checkpoint) String() string {
	return fmt.Sprintf("%d:%v", c.Height, c.Hash)
}
