// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package validate

import (
	"testing"

	"github.com/btcsuite/btcchain/chain"
	"github.com/btcsuite/btcchain/internal/chaintest"
	"github.com/btcsuite/btcchain/populate"
	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/stretchr/testify/require"
)

// validateHarness couples a chain harness with validators over its store.
type validateHarness struct {
	*chaintest.Harness

	t         *testing.T
	populator *populate.ChainState
	txs       *TxValidator
	blocks    *BlockValidator
}

// newValidateHarness returns a harness with blocks mined on top of genesis
// so that the first coinbases are mature.
func newValidateHarness(t *testing.T, heights *chain.ForkHeights, blocks int) *validateHarness {
	harness := chaintest.New(t)
	forkHeights := chain.DefaultForkHeights(harness.Params)
	if heights != nil {
		forkHeights = *heights
	}

	timeSource := blockchain.NewMedianTime()
	sigCache := txscript.NewSigCache(100)
	populator := populate.NewChainState(harness.Store, harness.Params,
		forkHeights, chain.AllRules)
	h := &validateHarness{
		Harness:   harness,
		t:         t,
		populator: populator,
		txs: NewTxValidator(harness.Params, harness.Store, timeSource,
			sigCache, 2),
		blocks: NewBlockValidator(harness.Params, harness.Store,
			populator, timeSource, sigCache, 2),
	}
	harness.Mine(blocks)
	return h
}

// coinbaseOut returns the coinbase output of the main chain block at height.
func (h *validateHarness) coinbaseOut(height uint32) chaintest.SpendableOutput {
	block, err := h.Store.FullBlock(height)
	require.NoError(h.t, err)
	return chaintest.TxOut(block.Transactions()[0], 0)
}

// poolTx wraps tx with the pool state.
func (h *validateHarness) poolTx(tx *btcutil.Tx) *chain.Tx {
	state, err := h.populator.PopulateTop()
	require.NoError(h.t, err)
	wrapped := chain.NewTx(tx)
	wrapped.Validation.State = state
	return wrapped
}

// tipBlock wraps block as a single block branch on top of the tip with its
// chain state populated.
func (h *validateHarness) tipBlock(block *btcutil.Block) *chain.Block {
	tip := h.Tip()
	wrapped := chain.NewBlock(block)
	branch := chain.NewBranch()
	branch.PushFront(wrapped)
	branch.SetForkPoint(tip.Hash(), uint32(tip.Height()))

	state, err := h.populator.Populate(branch, 0)
	require.NoError(h.t, err)
	wrapped.Validation.State = state
	for _, tx := range wrapped.Txns() {
		tx.Validation.State = state
	}
	return wrapped
}

// requireRuleError fails unless err is a rule error with code.
func requireRuleError(t *testing.T, err error, code ErrorCode) {
	t.Helper()
	require.Error(t, err)
	got, ok := RuleErrorCode(err)
	require.True(t, ok, "not a rule error: %v", err)
	require.Equal(t, code, got, "unexpected error: %v", err)
}
