// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package chaintest provides a harness for tests that need a populated store,
// signed transactions and solved blocks.
package chaintest

import (
	"encoding/hex"
	"testing"
	"time"

	"github.com/btcsuite/btcchain/database/chaindb"
	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

// CoinbaseMaturity is the coinbase maturity of the harness network.  It is
// kept low so tests can spend coinbases without mining long chains.
const CoinbaseMaturity = 2

// SpendableOutput is a previous output available to the harness key.
type SpendableOutput struct {
	OutPoint wire.OutPoint
	Amount   btcutil.Amount
}

// TxOut returns a spendable output given a transaction and index of the
// output to use.
func TxOut(tx *btcutil.Tx, index uint32) SpendableOutput {
	return SpendableOutput{
		OutPoint: wire.OutPoint{Hash: *tx.Hash(), Index: index},
		Amount:   btcutil.Amount(tx.MsgTx().TxOut[index].Value),
	}
}

// Harness creates and signs transactions paying to a fixed key and mines
// blocks on top of an in-memory store seeded with the regression test
// genesis block.
type Harness struct {
	t testing.TB

	// Params is a copy of the regression test parameters with a short
	// coinbase maturity.
	Params *chaincfg.Params

	Store *chaindb.Store

	// SignKey is the key every harness output pays to and PayScript is
	// its pay-to-pubkey-hash script.
	SignKey   *btcec.PrivateKey
	PayScript []byte

	tip        *btcutil.Block
	extraNonce int64
}

// New returns a harness whose store holds only the genesis block.
func New(t testing.TB) *Harness {
	t.Helper()

	params := chaincfg.RegressionNetParams
	params.CoinbaseMaturity = CoinbaseMaturity

	// Use a hard coded key pair for deterministic results.
	keyBytes, err := hex.DecodeString("700868df1838811ffbdf918fb482c1f7e" +
		"ad62db4b97bd7012c23e726485e577d")
	require.NoError(t, err)
	signKey, signPub := btcec.PrivKeyFromBytes(keyBytes)

	payPubKeyAddr, err := btcutil.NewAddressPubKey(
		signPub.SerializeCompressed(), &params)
	require.NoError(t, err)
	payScript, err := txscript.PayToAddrScript(payPubKeyAddr.AddressPubKeyHash())
	require.NoError(t, err)

	store, err := chaindb.Open(chaindb.TypeMemory, "")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	genesis := btcutil.NewBlock(params.GenesisBlock)
	genesis.SetHeight(0)
	require.NoError(t, store.Insert(genesis, 0))

	return &Harness{
		t:         t,
		Params:    &params,
		Store:     store,
		SignKey:   signKey,
		PayScript: payScript,
		tip:       genesis,
	}
}

// Tip returns the block most recently added to the store by the harness.
func (h *Harness) Tip() *btcutil.Block {
	return h.tip
}

// CreateCoinbaseTx returns a coinbase paying the block subsidy plus fees to
// the harness key.
func (h *Harness) CreateCoinbaseTx(height uint32, fees int64) *btcutil.Tx {
	h.extraNonce++
	coinbaseScript, err := txscript.NewScriptBuilder().
		AddInt64(int64(height)).AddInt64(h.extraNonce).Script()
	require.NoError(h.t, err)

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(&wire.TxIn{
		// Coinbase transactions have no inputs, so previous outpoint is
		// zero hash and max index.
		PreviousOutPoint: *wire.NewOutPoint(&chainhash.Hash{},
			wire.MaxPrevOutIndex),
		SignatureScript: coinbaseScript,
		Sequence:        wire.MaxTxInSequenceNum,
	})
	tx.AddTxOut(&wire.TxOut{
		PkScript: h.PayScript,
		Value:    blockchain.CalcBlockSubsidy(int32(height), h.Params) + fees,
	})
	return btcutil.NewTx(tx)
}

// CreateSignedTx spends inputs into numOutputs equal outputs paying to the
// harness key, leaving fee for the miner.
func (h *Harness) CreateSignedTx(inputs []SpendableOutput, numOutputs uint32,
	fee btcutil.Amount) *btcutil.Tx {

	// Calculate the total input amount and split it amongst the requested
	// number of outputs.
	var totalInput btcutil.Amount
	for _, input := range inputs {
		totalInput += input.Amount
	}
	totalInput -= fee
	amountPerOutput := int64(totalInput) / int64(numOutputs)
	remainder := int64(totalInput) - amountPerOutput*int64(numOutputs)

	tx := wire.NewMsgTx(wire.TxVersion)
	for _, input := range inputs {
		tx.AddTxIn(&wire.TxIn{
			PreviousOutPoint: input.OutPoint,
			Sequence:         wire.MaxTxInSequenceNum,
		})
	}
	for i := uint32(0); i < numOutputs; i++ {
		// Ensure the final output accounts for any remainder that might
		// be left from splitting the input amount.
		amount := amountPerOutput
		if i == numOutputs-1 {
			amount = amountPerOutput + remainder
		}
		tx.AddTxOut(&wire.TxOut{
			PkScript: h.PayScript,
			Value:    amount,
		})
	}

	h.Sign(tx)
	return btcutil.NewTx(tx)
}

// CreateTxChain returns a chain of numTxns transactions each spending the
// single output of the previous one, starting from firstOutput.
func (h *Harness) CreateTxChain(firstOutput SpendableOutput, numTxns uint32,
	fee btcutil.Amount) []*btcutil.Tx {

	txChain := make([]*btcutil.Tx, 0, numTxns)
	output := firstOutput
	for i := uint32(0); i < numTxns; i++ {
		tx := h.CreateSignedTx([]SpendableOutput{output}, 1, fee)
		txChain = append(txChain, tx)
		output = TxOut(tx, 0)
	}
	return txChain
}

// Sign signs every input of tx, all of which must spend harness outputs.
func (h *Harness) Sign(tx *wire.MsgTx) {
	for i := range tx.TxIn {
		sigScript, err := txscript.SignatureScript(tx, i, h.PayScript,
			txscript.SigHashAll, h.SignKey, true)
		require.NoError(h.t, err)
		tx.TxIn[i].SignatureScript = sigScript
	}
}

// NextBlock returns a solved block on top of prev, whose height must be set,
// containing a coinbase and txns.  The coinbase claims fees on top of the
// subsidy.
func (h *Harness) NextBlock(prev *btcutil.Block, fees int64,
	txns ...*btcutil.Tx) *btcutil.Block {

	height := uint32(prev.Height()) + 1
	prevHeader := &prev.MsgBlock().Header

	msgBlock := wire.NewMsgBlock(&wire.BlockHeader{
		Version:   4,
		PrevBlock: *prev.Hash(),
		Timestamp: prevHeader.Timestamp.Add(10 * time.Minute),
		Bits:      prevHeader.Bits,
	})
	msgBlock.AddTransaction(h.CreateCoinbaseTx(height, fees).MsgTx())
	for _, tx := range txns {
		msgBlock.AddTransaction(tx.MsgTx())
	}

	block := btcutil.NewBlock(msgBlock)
	msgBlock.Header.MerkleRoot = blockchain.CalcMerkleRoot(block.Transactions(), false)
	Solve(&msgBlock.Header)

	// The cached hash was computed before solving.
	block = btcutil.NewBlock(msgBlock)
	block.SetHeight(int32(height))
	return block
}

// Mine appends n blocks carrying txns in the first one directly to the store
// and returns them.
func (h *Harness) Mine(n int, txns ...*btcutil.Tx) []*btcutil.Block {
	blocks := make([]*btcutil.Block, 0, n)
	for i := 0; i < n; i++ {
		block := h.NextBlock(h.tip, 0, txns...)
		txns = nil
		require.NoError(h.t, h.Store.Insert(block, uint32(block.Height())))
		h.tip = block
		blocks = append(blocks, block)
	}
	return blocks
}

// SetTip records block as the harness tip after it was organized by some
// other means.
func (h *Harness) SetTip(block *btcutil.Block) {
	h.tip = block
}

// Solve increments the nonce of header until its hash satisfies its bits.
func Solve(header *wire.BlockHeader) {
	target := blockchain.CompactToBig(header.Bits)
	for {
		hash := header.BlockHash()
		if blockchain.HashToBig(&hash).Cmp(target) <= 0 {
			return
		}
		header.Nonce++
	}
}
