// Copyright (c) 2016-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"github.com/btcsuite/btcchain/database"
	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
)

// TxMetadata is computed while a transaction is validated and dropped once
// processing ends.  None of it is persisted.
type TxMetadata struct {
	// State is the chain state the transaction is validated against.
	State *State

	// Prevouts holds the resolved previous output of each input.  Entries
	// of a coinbase are nil.
	Prevouts []*database.OutputRecord

	// Fee is the input value minus the output value.
	Fee int64

	// SigOps is the signature operation count, P2SH inputs included when
	// bip16 is active.
	SigOps int

	// Size is the serialized size including witness data.
	Size int

	// Standard caches the standardness evaluation.
	Standard bool

	// Simulate marks a dry run that must not be committed.
	Simulate bool
}

// Tx wraps a transaction with its validation metadata.
type Tx struct {
	*btcutil.Tx

	Validation TxMetadata
}

// NewTx wraps tx for validation.
func NewTx(tx *btcutil.Tx) *Tx {
	return &Tx{
		Tx: tx,
		Validation: TxMetadata{
			Size: tx.MsgTx().SerializeSize(),
		},
	}
}

// IsCoinBase reports whether the transaction is a coinbase.
func (t *Tx) IsCoinBase() bool {
	return blockchain.IsCoinBase(t.Tx)
}

// TotalOutput sums the output values.
func (t *Tx) TotalOutput() int64 {
	var total int64
	for _, txOut := range t.MsgTx().TxOut {
		total += txOut.Value
	}
	return total
}

// TotalInput sums the resolved previous output values.  It is only
// meaningful after Prevouts has been populated.
func (t *Tx) TotalInput() int64 {
	var total int64
	for _, prevout := range t.Validation.Prevouts {
		if prevout != nil {
			total += prevout.Output.Value
		}
	}
	return total
}
