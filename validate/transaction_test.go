// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package validate

import (
	"testing"

	"github.com/btcsuite/btcchain/chain"
	"github.com/btcsuite/btcchain/internal/chaintest"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

func TestCheckTransactionSanity(t *testing.T) {
	t.Parallel()

	prev := wire.OutPoint{Hash: chainhash.Hash{0x01}}
	newTx := func(mutate func(*wire.MsgTx)) *btcutil.Tx {
		tx := wire.NewMsgTx(wire.TxVersion)
		tx.AddTxIn(&wire.TxIn{PreviousOutPoint: prev})
		tx.AddTxOut(&wire.TxOut{Value: 1000, PkScript: []byte{0x51}})
		if mutate != nil {
			mutate(tx)
		}
		return btcutil.NewTx(tx)
	}

	tests := []struct {
		name string
		tx   *btcutil.Tx
		code ErrorCode
		ok   bool
	}{
		{
			name: "valid",
			tx:   newTx(nil),
			ok:   true,
		},
		{
			name: "no inputs",
			tx:   newTx(func(tx *wire.MsgTx) { tx.TxIn = nil }),
			code: ErrNoTxInputs,
		},
		{
			name: "no outputs",
			tx:   newTx(func(tx *wire.MsgTx) { tx.TxOut = nil }),
			code: ErrNoTxOutputs,
		},
		{
			name: "negative output",
			tx:   newTx(func(tx *wire.MsgTx) { tx.TxOut[0].Value = -1 }),
			code: ErrBadTxOutValue,
		},
		{
			name: "output above max",
			tx: newTx(func(tx *wire.MsgTx) {
				tx.TxOut[0].Value = btcutil.MaxSatoshi + 1
			}),
			code: ErrBadTxOutValue,
		},
		{
			name: "total above max",
			tx: newTx(func(tx *wire.MsgTx) {
				tx.TxOut[0].Value = btcutil.MaxSatoshi
				tx.AddTxOut(&wire.TxOut{Value: 1, PkScript: []byte{0x51}})
			}),
			code: ErrBadTxOutValue,
		},
		{
			name: "duplicate inputs",
			tx: newTx(func(tx *wire.MsgTx) {
				tx.AddTxIn(&wire.TxIn{PreviousOutPoint: prev})
			}),
			code: ErrDuplicateTxInputs,
		},
		{
			name: "null prevout",
			tx: newTx(func(tx *wire.MsgTx) {
				tx.AddTxIn(&wire.TxIn{PreviousOutPoint: wire.OutPoint{
					Index: wire.MaxPrevOutIndex,
				}})
			}),
			code: ErrBadTxInput,
		},
		{
			name: "coinbase script too short",
			tx: newTx(func(tx *wire.MsgTx) {
				tx.TxIn[0].PreviousOutPoint = wire.OutPoint{
					Index: wire.MaxPrevOutIndex,
				}
				tx.TxIn[0].SignatureScript = []byte{0x51}
			}),
			code: ErrBadCoinbaseScriptLen,
		},
		{
			name: "coinbase script too long",
			tx: newTx(func(tx *wire.MsgTx) {
				tx.TxIn[0].PreviousOutPoint = wire.OutPoint{
					Index: wire.MaxPrevOutIndex,
				}
				tx.TxIn[0].SignatureScript = make([]byte, 101)
			}),
			code: ErrBadCoinbaseScriptLen,
		},
	}

	for _, test := range tests {
		err := CheckTransactionSanity(test.tx)
		if test.ok {
			require.NoError(t, err, test.name)
			continue
		}
		code, ok := RuleErrorCode(err)
		require.True(t, ok, "%s: %v", test.name, err)
		require.Equal(t, test.code, code, test.name)
	}
}

func TestTxValidatorCheck(t *testing.T) {
	t.Parallel()

	h := newValidateHarness(t, nil, 3)
	coinbase := chain.NewTx(h.CreateCoinbaseTx(4, 0))
	requireRuleError(t, h.txs.Check(coinbase), ErrCoinbaseTransaction)

	tx := h.CreateSignedTx([]chaintest.SpendableOutput{h.coinbaseOut(1)}, 1, 1000)
	require.NoError(t, h.txs.Check(chain.NewTx(tx)))
}

func TestTxValidatorAccept(t *testing.T) {
	t.Parallel()

	h := newValidateHarness(t, nil, 4)
	spendable := h.coinbaseOut(1)

	// A valid spend records its fee and sigops.
	tx := h.poolTx(h.CreateSignedTx([]chaintest.SpendableOutput{spendable}, 2, 1000))
	require.NoError(t, h.txs.Accept(tx))
	require.EqualValues(t, 1000, tx.Validation.Fee)
	require.Equal(t, 2, tx.Validation.SigOps)
	require.True(t, tx.Validation.Standard)
	require.NoError(t, h.txs.Connect(tx))

	// Accepting the same transaction again once pushed is a duplicate.
	require.NoError(t, h.Store.Push(tx.Tx, tx.Validation.State.Height))
	requireRuleError(t, h.txs.Accept(h.poolTx(tx.Tx)), ErrDuplicateTx)

	// Its unconfirmed outputs can be spent.
	child := h.poolTx(h.CreateSignedTx([]chaintest.SpendableOutput{
		chaintest.TxOut(tx.Tx, 1)}, 1, 500))
	require.NoError(t, h.txs.Accept(child))
	require.NoError(t, h.txs.Connect(child))

	tests := []struct {
		name string
		tx   func() *btcutil.Tx
		code ErrorCode
	}{
		{
			name: "missing output",
			tx: func() *btcutil.Tx {
				return h.CreateSignedTx([]chaintest.SpendableOutput{{
					OutPoint: wire.OutPoint{Hash: chainhash.Hash{0x02}},
					Amount:   5000,
				}}, 1, 1000)
			},
			code: ErrMissingTxOut,
		},
		{
			name: "immature coinbase",
			tx: func() *btcutil.Tx {
				return h.CreateSignedTx([]chaintest.SpendableOutput{
					h.coinbaseOut(4)}, 1, 1000)
			},
			code: ErrImmatureSpend,
		},
		{
			name: "spend too high",
			tx: func() *btcutil.Tx {
				return h.CreateSignedTx([]chaintest.SpendableOutput{
					h.coinbaseOut(2)}, 1, -1)
			},
			code: ErrSpendTooHigh,
		},
		{
			name: "unfinalized",
			tx: func() *btcutil.Tx {
				msgTx := h.CreateSignedTx([]chaintest.SpendableOutput{
					h.coinbaseOut(2)}, 1, 1000).MsgTx()
				msgTx.LockTime = 1000
				msgTx.TxIn[0].Sequence = 0
				h.Sign(msgTx)
				return btcutil.NewTx(msgTx)
			},
			code: ErrUnfinalizedTx,
		},
	}

	for _, test := range tests {
		err := h.txs.Accept(h.poolTx(test.tx()))
		code, ok := RuleErrorCode(err)
		require.True(t, ok, "%s: %v", test.name, err)
		require.Equal(t, test.code, code, test.name)
	}
}

func TestTxValidatorReaccept(t *testing.T) {
	t.Parallel()

	h := newValidateHarness(t, nil, 3)
	tx := h.CreateSignedTx([]chaintest.SpendableOutput{h.coinbaseOut(1)}, 1, 1000)
	require.NoError(t, h.Store.Push(tx, 3))

	// The unconfirmed copy does not make the transaction a duplicate.
	requireRuleError(t, h.txs.Accept(h.poolTx(tx)), ErrDuplicateTx)
	require.NoError(t, h.txs.Reaccept(h.poolTx(tx)))

	// A confirmed copy does.
	h.Mine(1, tx)
	requireRuleError(t, h.txs.Reaccept(h.poolTx(tx)), ErrDuplicateTx)
}

func TestTxValidatorDoubleSpendChain(t *testing.T) {
	t.Parallel()

	h := newValidateHarness(t, nil, 3)
	spendable := h.coinbaseOut(1)

	confirmed := h.CreateSignedTx([]chaintest.SpendableOutput{spendable}, 1, 1000)
	h.Mine(1, confirmed)

	conflict := h.poolTx(h.CreateSignedTx([]chaintest.SpendableOutput{spendable}, 1, 2000))
	requireRuleError(t, h.txs.Accept(conflict), ErrDoubleSpendChain)
}

func TestTxValidatorConnect(t *testing.T) {
	t.Parallel()

	h := newValidateHarness(t, nil, 3)

	// Tampering with the signed outputs invalidates the signature.
	msgTx := h.CreateSignedTx([]chaintest.SpendableOutput{h.coinbaseOut(1)}, 1,
		1000).MsgTx()
	msgTx.TxOut[0].Value--
	tx := h.poolTx(btcutil.NewTx(msgTx))
	require.NoError(t, h.txs.Accept(tx))
	requireRuleError(t, h.txs.Connect(tx), ErrScriptValidation)

	// A signature script that does not parse is malformed.
	msgTx = h.CreateSignedTx([]chaintest.SpendableOutput{h.coinbaseOut(2)}, 1,
		1000).MsgTx()
	msgTx.TxIn[0].SignatureScript = []byte{0x4c, 0x10}
	tx = h.poolTx(btcutil.NewTx(msgTx))
	require.NoError(t, h.txs.Accept(tx))
	requireRuleError(t, h.txs.Connect(tx), ErrScriptMalformed)

	// Accept and Connect require a chain state.
	require.Error(t, h.txs.Accept(chain.NewTx(tx.Tx)))
	require.Error(t, h.txs.Connect(chain.NewTx(tx.Tx)))
}
