// Copyright (c) 2016-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package populate

import (
	"testing"

	"github.com/btcsuite/btcchain/chain"
	"github.com/btcsuite/btcchain/database"
	"github.com/btcsuite/btcchain/internal/chaintest"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

func TestPrevoutsTransaction(t *testing.T) {
	t.Parallel()

	harness, populator := newHarnessPopulator(t)
	blocks := harness.Mine(3)
	state, err := populator.PopulateTop()
	require.NoError(t, err)

	coinbase := chaintest.TxOut(blocks[0].Transactions()[0], 0)
	missing := chaintest.SpendableOutput{
		OutPoint: wire.OutPoint{Hash: chainhash.Hash{0x01}},
		Amount:   1,
	}
	tx := chain.NewTx(harness.CreateSignedTx(
		[]chaintest.SpendableOutput{coinbase, missing}, 1, 1000))
	tx.Validation.State = state

	prevouts := NewPrevouts(harness.Store)
	require.NoError(t, prevouts.Transaction(tx))
	require.Len(t, tx.Validation.Prevouts, 2)
	require.Nil(t, tx.Validation.Prevouts[1])

	output := tx.Validation.Prevouts[0]
	require.True(t, output.Coinbase)
	require.True(t, output.Confirmed)
	require.False(t, output.Spent())
	require.EqualValues(t, 1, output.Height)
	require.EqualValues(t, coinbase.Amount, output.Output.Value)

	// Unconfirmed outputs are visible to pool transactions.
	require.NoError(t, harness.Store.Push(tx.Tx, state.Height))
	child := chain.NewTx(harness.CreateSignedTx(
		[]chaintest.SpendableOutput{chaintest.TxOut(tx.Tx, 0)}, 1, 1000))
	child.Validation.State = state
	require.NoError(t, prevouts.Transaction(child))
	require.NotNil(t, child.Validation.Prevouts[0])
	require.False(t, child.Validation.Prevouts[0].Confirmed)

	// A transaction without a state is a programming error.
	require.Error(t, prevouts.Transaction(chain.NewTx(tx.Tx)))
}

func TestPrevoutsBlock(t *testing.T) {
	t.Parallel()

	harness, _ := newHarnessPopulator(t)
	blocks := harness.Mine(3)
	tip := harness.Tip()

	spendable := chaintest.TxOut(blocks[0].Transactions()[0], 0)
	parent := harness.CreateSignedTx([]chaintest.SpendableOutput{spendable}, 2, 1000)
	child := harness.CreateSignedTx([]chaintest.SpendableOutput{
		chaintest.TxOut(parent, 0)}, 1, 1000)
	doubleSpend := harness.CreateSignedTx([]chaintest.SpendableOutput{spendable}, 1, 2000)

	first := harness.NextBlock(tip, 0, parent)
	second := harness.NextBlock(first, 0, child, doubleSpend)
	firstBlock, secondBlock := chain.NewBlock(first), chain.NewBlock(second)

	branch := chain.NewBranch()
	branch.PushFront(secondBlock)
	branch.PushFront(firstBlock)
	branch.SetForkPoint(tip.Hash(), uint32(tip.Height()))

	prevouts := NewPrevouts(harness.Store)
	require.NoError(t, prevouts.Block(firstBlock))
	require.Nil(t, firstBlock.Txns()[0].Validation.Prevouts[0])
	output := firstBlock.Txns()[1].Validation.Prevouts[0]
	require.True(t, output.Coinbase)
	require.False(t, output.Spent())

	require.NoError(t, prevouts.Block(secondBlock))

	// The child spends an output created by the lower branch block.
	output = secondBlock.Txns()[1].Validation.Prevouts[0]
	require.NotNil(t, output)
	require.EqualValues(t, first.Height(), output.Height)
	require.False(t, output.Spent())

	// The double spend sees the spend performed by the first block.
	output = secondBlock.Txns()[2].Validation.Prevouts[0]
	require.NotNil(t, output)
	require.EqualValues(t, first.Height(), output.SpenderHeight)

	// A block without a branch is a programming error.
	require.Error(t, prevouts.Block(chain.NewBlock(btcutil.NewBlock(second.MsgBlock()))))
}

func TestPrevoutsInBlockSpend(t *testing.T) {
	t.Parallel()

	harness, _ := newHarnessPopulator(t)
	blocks := harness.Mine(3)
	tip := harness.Tip()

	spendable := chaintest.TxOut(blocks[0].Transactions()[0], 0)
	parent := harness.CreateSignedTx([]chaintest.SpendableOutput{spendable}, 1, 1000)
	child := harness.CreateSignedTx([]chaintest.SpendableOutput{
		chaintest.TxOut(parent, 0)}, 1, 1000)
	again := harness.CreateSignedTx([]chaintest.SpendableOutput{spendable}, 1, 3000)

	block := chain.NewBlock(harness.NextBlock(tip, 0, parent, child, again))
	branch := chain.NewBranch()
	branch.PushFront(block)
	branch.SetForkPoint(tip.Hash(), uint32(tip.Height()))

	require.NoError(t, NewPrevouts(harness.Store).Block(block))
	txns := block.Txns()
	require.EqualValues(t, block.Validation.Height, txns[2].Validation.Prevouts[0].Height)
	require.False(t, txns[2].Validation.Prevouts[0].Spent())
	require.EqualValues(t, database.NotSpent, txns[1].Validation.Prevouts[0].SpenderHeight)
	require.EqualValues(t, block.Validation.Height, txns[3].Validation.Prevouts[0].SpenderHeight)
}
