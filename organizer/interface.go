// Copyright (c) 2016-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package organizer

import (
	"math/big"

	"github.com/btcsuite/btcchain/chain"
	"github.com/btcsuite/btcchain/validate"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// FastChain is the chain surface the organizers write through.  Block
// organization holds the prioritized gate exclusively while transaction
// organization only shares it, so PoolState and Push are called
// concurrently.
type FastChain interface {
	// PoolState returns the chain state describing the block that would
	// follow the tip.
	PoolState() *chain.State

	// BlockHeight returns the height of a main chain block.  It wraps
	// chain.ErrNotFound when the block is not on the main chain.
	BlockHeight(hash *chainhash.Hash) (uint32, error)

	// BranchWork returns the work of the main chain above fromHeight.  It
	// may stop summing once the total exceeds maximum.
	BranchWork(maximum *big.Int, fromHeight uint32) (*big.Int, error)

	// Push stores a validated unconfirmed transaction.
	Push(tx *chain.Tx) error

	// Reorganize replaces the main chain above fork with incoming, whose
	// blocks carry their chain states, and installs the state following
	// the new tip as the pool state.  The popped blocks are returned in
	// ascending height order.  Every failure wraps
	// chain.ErrOperationFailed.
	Reorganize(fork chain.Checkpoint, incoming []*chain.Block) ([]*btcutil.Block, error)
}

// Reorganization describes a main chain change.
type Reorganization struct {
	// Fork is the last block common to the old and the new main chain.
	Fork chain.Checkpoint

	// Incoming holds the blocks appended above the fork point in
	// ascending height order.
	Incoming []*btcutil.Block

	// Outgoing holds the blocks popped from above the fork point in
	// ascending height order.
	Outgoing []*btcutil.Block
}

// ruleError creates a validate.RuleError given a set of arguments.
func ruleError(c validate.ErrorCode, desc string) validate.RuleError {
	return validate.RuleError{ErrorCode: c, Description: desc}
}

// resultLabel returns the metric label describing the result of err.
func resultLabel(err error) string {
	if err == nil {
		return "success"
	}
	if code, ok := validate.RuleErrorCode(err); ok {
		return code.String()
	}
	return "failure"
}

// pickNoun returns the singular or plural form of a noun depending on the
// count n.
func pickNoun(n int, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}
