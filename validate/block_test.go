// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package validate

import (
	"testing"
	"time"

	"github.com/btcsuite/btcchain/chain"
	"github.com/btcsuite/btcchain/internal/chaintest"
	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

// rebuild recomputes the merkle root of msgBlock when asked, solves it and
// returns it at the height of the block following the harness tip.
func (h *validateHarness) rebuild(msgBlock *wire.MsgBlock, merkle bool) *btcutil.Block {
	if merkle {
		txns := btcutil.NewBlock(msgBlock).Transactions()
		msgBlock.Header.MerkleRoot = blockchain.CalcMerkleRoot(txns, false)
	}
	chaintest.Solve(&msgBlock.Header)
	block := btcutil.NewBlock(msgBlock)
	block.SetHeight(h.Tip().Height() + 1)
	return block
}

func TestBlockValidatorCheck(t *testing.T) {
	t.Parallel()

	h := newValidateHarness(t, nil, 3)
	spend := h.CreateSignedTx([]chaintest.SpendableOutput{h.coinbaseOut(1)}, 1, 1000)

	tests := []struct {
		name  string
		block func() *btcutil.Block
		code  ErrorCode
		ok    bool
	}{
		{
			name: "valid",
			block: func() *btcutil.Block {
				return h.NextBlock(h.Tip(), 1000, spend)
			},
			ok: true,
		},
		{
			name: "no transactions",
			block: func() *btcutil.Block {
				msgBlock := h.NextBlock(h.Tip(), 0).MsgBlock()
				msgBlock.Transactions = nil
				msgBlock.Header.MerkleRoot = chainhash.Hash{}
				return h.rebuild(msgBlock, false)
			},
			code: ErrNoTransactions,
		},
		{
			name: "first not coinbase",
			block: func() *btcutil.Block {
				msgBlock := h.NextBlock(h.Tip(), 0, spend).MsgBlock()
				txns := msgBlock.Transactions
				txns[0], txns[1] = txns[1], txns[0]
				return h.rebuild(msgBlock, true)
			},
			code: ErrFirstTxNotCoinbase,
		},
		{
			name: "multiple coinbases",
			block: func() *btcutil.Block {
				msgBlock := h.NextBlock(h.Tip(), 0).MsgBlock()
				msgBlock.AddTransaction(h.CreateCoinbaseTx(4, 0).MsgTx())
				return h.rebuild(msgBlock, true)
			},
			code: ErrMultipleCoinbases,
		},
		{
			name: "bad merkle root",
			block: func() *btcutil.Block {
				msgBlock := h.NextBlock(h.Tip(), 0, spend).MsgBlock()
				msgBlock.Header.MerkleRoot = chainhash.Hash{0x01}
				return h.rebuild(msgBlock, false)
			},
			code: ErrBadMerkleRoot,
		},
		{
			name: "duplicate transaction",
			block: func() *btcutil.Block {
				msgBlock := h.NextBlock(h.Tip(), 0, spend, spend).MsgBlock()
				return h.rebuild(msgBlock, true)
			},
			code: ErrDuplicateTx,
		},
		{
			name: "high hash",
			block: func() *btcutil.Block {
				msgBlock := h.NextBlock(h.Tip(), 0).MsgBlock()
				header := &msgBlock.Header
				target := blockchain.CompactToBig(header.Bits)
				for {
					hash := header.BlockHash()
					if blockchain.HashToBig(&hash).Cmp(target) > 0 {
						break
					}
					header.Nonce++
				}
				return btcutil.NewBlock(msgBlock)
			},
			code: ErrHighHash,
		},
		{
			name: "target above limit",
			block: func() *btcutil.Block {
				msgBlock := h.NextBlock(h.Tip(), 0).MsgBlock()
				msgBlock.Header.Bits = 0x2100ffff
				return h.rebuild(msgBlock, false)
			},
			code: ErrUnexpectedDifficulty,
		},
		{
			name: "time too new",
			block: func() *btcutil.Block {
				msgBlock := h.NextBlock(h.Tip(), 0).MsgBlock()
				msgBlock.Header.Timestamp = time.Unix(time.Now().Add(
					3*time.Hour).Unix(), 0)
				return h.rebuild(msgBlock, false)
			},
			code: ErrTimeTooNew,
		},
	}

	for _, test := range tests {
		err := h.blocks.Check(chain.NewBlock(test.block()))
		if test.ok {
			require.NoError(t, err, test.name)
			continue
		}
		code, ok := RuleErrorCode(err)
		require.True(t, ok, "%s: %v", test.name, err)
		require.Equal(t, test.code, code, test.name)
	}
}

func TestBlockValidatorAccept(t *testing.T) {
	t.Parallel()

	h := newValidateHarness(t, nil, 3)
	spend := h.CreateSignedTx([]chaintest.SpendableOutput{h.coinbaseOut(1)}, 1, 1000)

	block := h.tipBlock(h.NextBlock(h.Tip(), 1000, spend))
	require.NoError(t, h.blocks.Check(block))
	require.NoError(t, h.blocks.Accept(block))
	require.EqualValues(t, 1000, block.Fees())
	require.EqualValues(t, 1000, block.Txns()[1].Validation.Fee)
	require.NoError(t, h.blocks.Connect(block))

	tests := []struct {
		name  string
		block func() *btcutil.Block
		code  ErrorCode
	}{
		{
			name: "coinbase claims too much",
			block: func() *btcutil.Block {
				return h.NextBlock(h.Tip(), 1001, spend)
			},
			code: ErrBadCoinbaseValue,
		},
		{
			name: "unexpected difficulty",
			block: func() *btcutil.Block {
				msgBlock := h.NextBlock(h.Tip(), 0).MsgBlock()
				msgBlock.Header.Bits = 0x1f7fffff
				return h.rebuild(msgBlock, false)
			},
			code: ErrUnexpectedDifficulty,
		},
		{
			name: "time too old",
			block: func() *btcutil.Block {
				msgBlock := h.NextBlock(h.Tip(), 0).MsgBlock()
				msgBlock.Header.Timestamp = h.Params.GenesisBlock.Header.Timestamp
				return h.rebuild(msgBlock, false)
			},
			code: ErrTimeTooOld,
		},
		{
			name: "missing output",
			block: func() *btcutil.Block {
				missing := h.CreateSignedTx([]chaintest.SpendableOutput{{
					OutPoint: wire.OutPoint{Hash: chainhash.Hash{0x03}},
					Amount:   5000,
				}}, 1, 0)
				return h.NextBlock(h.Tip(), 0, missing)
			},
			code: ErrMissingTxOut,
		},
		{
			name: "double spend inside block",
			block: func() *btcutil.Block {
				again := h.CreateSignedTx([]chaintest.SpendableOutput{
					h.coinbaseOut(1)}, 1, 2000)
				return h.NextBlock(h.Tip(), 0, spend, again)
			},
			code: ErrDoubleSpendChain,
		},
		{
			name: "overwrites unspent transaction",
			block: func() *btcutil.Block {
				msgBlock := h.NextBlock(h.Tip(), 0).MsgBlock()
				stored, err := h.Store.FullBlock(2)
				require.NoError(t, err)
				msgBlock.Transactions[0] = stored.MsgBlock().Transactions[0]
				return h.rebuild(msgBlock, true)
			},
			code: ErrDuplicateTx,
		},
	}

	for _, test := range tests {
		err := h.blocks.Accept(h.tipBlock(test.block()))
		code, ok := RuleErrorCode(err)
		require.True(t, ok, "%s: %v", test.name, err)
		require.Equal(t, test.code, code, test.name)
	}
}

func TestBlockValidatorBuriedForks(t *testing.T) {
	t.Parallel()

	heights := &chain.ForkHeights{BIP34: 0, BIP65: -1, BIP66: -1, CSV: 0, Segwit: 0}
	h := newValidateHarness(t, heights, 3)

	// Version 1 blocks are rejected once bip34 is active.
	msgBlock := h.NextBlock(h.Tip(), 0).MsgBlock()
	msgBlock.Header.Version = 1
	err := h.blocks.Accept(h.tipBlock(h.rebuild(msgBlock, false)))
	requireRuleError(t, err, ErrBlockVersionTooOld)

	// The coinbase must commit to the block height.
	msgBlock = h.NextBlock(h.Tip(), 0).MsgBlock()
	msgBlock.Transactions[0] = h.CreateCoinbaseTx(9, 0).MsgTx()
	err = h.blocks.Accept(h.tipBlock(h.rebuild(msgBlock, true)))
	requireRuleError(t, err, ErrBadCoinbaseHeight)

	require.NoError(t, h.blocks.Accept(h.tipBlock(h.NextBlock(h.Tip(), 0))))
}

func TestBlockValidatorCheckpoint(t *testing.T) {
	t.Parallel()

	h := newValidateHarness(t, nil, 2)
	h.Params.Checkpoints = []chaincfg.Checkpoint{
		{Height: 3, Hash: &chainhash.Hash{0x01}},
	}
	validator := NewBlockValidator(h.Params, h.Store, h.populator,
		blockchain.NewMedianTime(), nil, 1)

	err := validator.Accept(h.tipBlock(h.NextBlock(h.Tip(), 0)))
	requireRuleError(t, err, ErrBadCheckpoint)
}

func TestBlockValidatorConnect(t *testing.T) {
	t.Parallel()

	h := newValidateHarness(t, nil, 3)
	msgTx := h.CreateSignedTx([]chaintest.SpendableOutput{h.coinbaseOut(1)}, 1,
		1000).MsgTx()
	msgTx.TxOut[0].Value--

	block := h.tipBlock(h.NextBlock(h.Tip(), 0, btcutil.NewTx(msgTx)))
	require.NoError(t, h.blocks.Accept(block))
	requireRuleError(t, h.blocks.Connect(block), ErrScriptValidation)

	// Validation requires the block to be located on a branch.
	require.Error(t, h.blocks.Accept(chain.NewBlock(block.Block)))
}
