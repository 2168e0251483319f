// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"testing"

	"github.com/btcsuite/btcchain/internal/chaintest"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/stretchr/testify/require"
)

// chainHarness couples a started chain with the harness that built its
// store.
type chainHarness struct {
	*chaintest.Harness

	t     *testing.T
	chain *BlockChain
}

// newChainHarness mines blocks on top of genesis and starts a chain over
// the resulting store.  The store itself is closed by the harness.
func newChainHarness(t *testing.T, blocks int, mutate func(*Config)) *chainHarness {
	harness := chaintest.New(t)
	harness.Mine(blocks)

	cfg := DefaultConfig(harness.Params)
	cfg.Store = harness.Store
	cfg.Cores = 2
	if mutate != nil {
		mutate(cfg)
	}
	bc, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, bc.Start())
	t.Cleanup(func() { bc.Stop() })

	return &chainHarness{Harness: harness, t: t, chain: bc}
}

// spendCoinbase returns a signed transaction spending the coinbase of the
// main chain block at height.
func (h *chainHarness) spendCoinbase(height uint32, numOutputs uint32,
	fee btcutil.Amount) *btcutil.Tx {

	block, err := h.Store.FullBlock(height)
	require.NoError(h.t, err)
	out := chaintest.TxOut(block.Transactions()[0], 0)
	return h.CreateSignedTx([]chaintest.SpendableOutput{out}, numOutputs, fee)
}
