// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"testing"

	"github.com/btcsuite/btcchain/chain"
	"github.com/btcsuite/btcchain/internal/chaintest"
	"github.com/btcsuite/btcchain/mining"
	"github.com/btcsuite/btcchain/validate"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

// poolHarness creates transactions for the pool under test.  The outputs it
// spends are made up, the pool never resolves them.
type poolHarness struct {
	*chaintest.Harness

	t    *testing.T
	pool *TxPool
}

func newPoolHarness(t *testing.T, maxBytes int) *poolHarness {
	return &poolHarness{
		Harness: chaintest.New(t),
		t:       t,
		pool: New(&Config{
			TemplateMaxBytes:  maxBytes,
			TemplateMaxSigOps: mining.DefaultTemplateMaxSigOps,
		}),
	}
}

// fakeOutPoint returns an outpoint of a transaction that does not exist.
func fakeOutPoint(seed byte, index uint32) wire.OutPoint {
	return wire.OutPoint{Hash: chainhash.Hash{seed}, Index: index}
}

// spend returns a validated transaction spending outpoints and paying fee.
func (h *poolHarness) spend(fee int64, outpoints ...wire.OutPoint) *chain.Tx {
	inputs := make([]chaintest.SpendableOutput, len(outpoints))
	for i, outpoint := range outpoints {
		inputs[i] = chaintest.SpendableOutput{
			OutPoint: outpoint,
			Amount:   100000,
		}
	}
	return h.wrap(h.CreateSignedTx(inputs, 1, btcutil.Amount(fee)), fee)
}

// wrap attaches the figures validation would have recorded.
func (h *poolHarness) wrap(tx *btcutil.Tx, fee int64) *chain.Tx {
	wrapped := chain.NewTx(tx)
	wrapped.Validation.Fee = fee
	wrapped.Validation.SigOps = 1
	wrapped.Validation.Standard = true
	return wrapped
}

func (h *poolHarness) add(tx *chain.Tx) {
	_, err := h.pool.Add(tx)
	require.NoError(h.t, err)
}

// TestAddDoubleSpend ensures a conflict on any input is rejected.
func TestAddDoubleSpend(t *testing.T) {
	t.Parallel()

	h := newPoolHarness(t, mining.DefaultTemplateMaxBytes)
	tx1 := h.spend(1000, fakeOutPoint(1, 0))
	h.add(tx1)
	require.True(t, h.pool.HaveTransaction(tx1.Hash()))

	_, err := h.pool.Add(tx1)
	require.True(t, validate.IsErrorCode(err, validate.ErrDuplicateTx))

	// Only the second input conflicts.
	tx2 := h.spend(1000, fakeOutPoint(2, 0), fakeOutPoint(1, 0))
	require.True(t, validate.IsErrorCode(h.pool.CheckDoubleSpend(tx2.Tx),
		validate.ErrDoubleSpendMempool))
	_, err = h.pool.Add(tx2)
	require.True(t, validate.IsErrorCode(err, validate.ErrDoubleSpendMempool))
	require.Equal(t, 1, h.pool.Count())

	fetched, err := h.pool.FetchTransaction(tx1.Hash())
	require.NoError(t, err)
	require.Equal(t, tx1.Hash(), fetched.Hash())
	_, err = h.pool.FetchTransaction(tx2.Hash())
	require.ErrorIs(t, err, chain.ErrNotFound)
}

// TestRemoveRedeemers ensures removing a transaction takes its descendants
// along when asked to.
func TestRemoveRedeemers(t *testing.T) {
	t.Parallel()

	h := newPoolHarness(t, mining.DefaultTemplateMaxBytes)
	first := chaintest.SpendableOutput{
		OutPoint: fakeOutPoint(1, 0),
		Amount:   100000,
	}
	txChain := h.CreateTxChain(first, 3, 1000)
	for _, tx := range txChain {
		h.add(h.wrap(tx, 1000))
	}
	require.Len(t, h.pool.Template(), 3)

	removed := h.pool.RemoveTransaction(txChain[2], false)
	require.Len(t, removed, 1)
	require.Equal(t, 2, h.pool.Count())

	removed = h.pool.RemoveTransaction(txChain[0], true)
	require.Len(t, removed, 2)
	require.Zero(t, h.pool.Count())
	require.Empty(t, h.pool.Template())

	// The outpoint spent by the chain is free again.
	h.add(h.spend(1000, fakeOutPoint(1, 0)))
}

// TestRemoveBlock ensures confirmed transactions leave the pool silently and
// conflicting ones are reported along with their descendants.
func TestRemoveBlock(t *testing.T) {
	t.Parallel()

	h := newPoolHarness(t, mining.DefaultTemplateMaxBytes)
	confirmed := h.spend(1000, fakeOutPoint(1, 0))
	conflicted := h.spend(1000, fakeOutPoint(2, 0))
	child := h.wrap(h.CreateSignedTx([]chaintest.SpendableOutput{
		chaintest.TxOut(conflicted.Tx, 0)}, 1, 1000), 1000)
	unrelated := h.spend(1000, fakeOutPoint(3, 0))
	for _, tx := range []*chain.Tx{confirmed, conflicted, child, unrelated} {
		h.add(tx)
	}

	rival := h.spend(500, fakeOutPoint(2, 0))
	block := h.NextBlock(h.Tip(), 1500, confirmed.Tx, rival.Tx)

	conflicts := h.pool.RemoveBlock(block)
	require.Len(t, conflicts, 2)
	require.Equal(t, child.Hash(), conflicts[0].Hash())
	require.Equal(t, conflicted.Hash(), conflicts[1].Hash())
	require.Equal(t, 1, h.pool.Count())
	require.True(t, h.pool.HaveTransaction(unrelated.Hash()))

	template := h.pool.Template()
	require.Len(t, template, 1)
	require.Equal(t, unrelated.Hash(), template[0].Tx.Hash())

	h.pool.Clear()
	require.Zero(t, h.pool.Count())
}

// TestTemplateAndInventory ensures the ranked template respects its budget
// and the inventory honors its limits.
func TestTemplateAndInventory(t *testing.T) {
	t.Parallel()

	// Room for two single input transactions.
	h := newPoolHarness(t, 400)
	low := h.spend(1000, fakeOutPoint(1, 0))
	high := h.spend(3000, fakeOutPoint(2, 0))
	mid := h.spend(2000, fakeOutPoint(3, 0))
	for _, tx := range []*chain.Tx{low, high, mid} {
		h.add(tx)
	}
	require.Equal(t, 3, h.pool.Count())

	template := h.pool.Template()
	require.Len(t, template, 2)
	require.Equal(t, high.Hash(), template[0].Tx.Hash())
	require.Equal(t, mid.Hash(), template[1].Tx.Hash())

	descs := h.pool.TxDescs()
	require.Len(t, descs, 3)
	require.Equal(t, low.Hash(), descs[2].Tx.Hash())

	inv := h.pool.Inventory(2, 0)
	require.Len(t, inv, 2)
	require.Equal(t, high.Hash(), inv[0].Tx.Hash())

	// Roughly 5, 10 and 15 satoshi per byte.
	inv = h.pool.Inventory(0, 8000)
	require.Len(t, inv, 2)
	for _, desc := range inv {
		require.GreaterOrEqual(t, desc.FeePerKB, int64(8000))
	}

	// Removing a template member lets the displaced entry back in.
	h.pool.RemoveTransaction(high.Tx, false)
	template = h.pool.Template()
	require.Len(t, template, 2)
	require.Equal(t, mid.Hash(), template[0].Tx.Hash())
	require.Equal(t, low.Hash(), template[1].Tx.Hash())
}
