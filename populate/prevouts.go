// Copyright (c) 2016-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package populate

import (
	"github.com/btcsuite/btcchain/chain"
	"github.com/btcsuite/btcchain/database"
	"github.com/btcsuite/btcd/wire"
)

// Prevouts resolves the previous outputs spent by transactions.  Unresolved
// inputs are left nil for the validator to reject.
type Prevouts struct {
	store database.Store
}

// NewPrevouts returns a resolver reading from store.
func NewPrevouts(store database.Store) *Prevouts {
	return &Prevouts{store: store}
}

// storeOutput fetches outpoint as seen from height.  A missing output is not
// an error.
func (p *Prevouts) storeOutput(outpoint wire.OutPoint, height uint32,
	requireConfirmed bool) (*database.OutputRecord, error) {

	output, err := p.store.Output(outpoint, height, requireConfirmed)
	if database.IsNotFound(err) {
		return nil, nil
	}
	return output, err
}

// Transaction resolves the inputs of a pool transaction validated under its
// state.  Unconfirmed outputs are visible.
func (p *Prevouts) Transaction(tx *chain.Tx) error {
	state := tx.Validation.State
	if state == nil {
		return chain.AssertError("transaction populated without a chain state")
	}
	msgTx := tx.MsgTx()
	prevouts := make([]*database.OutputRecord, len(msgTx.TxIn))
	if !tx.IsCoinBase() {
		for i, txIn := range msgTx.TxIn {
			output, err := p.storeOutput(txIn.PreviousOutPoint,
				state.Height-1, false)
			if err != nil {
				return err
			}
			prevouts[i] = output
		}
	}
	tx.Validation.Prevouts = prevouts
	return nil
}

// Block resolves the inputs of every transaction of block, which must have
// been located on its branch.  Outputs created by earlier transactions of the
// same block or by lower branch blocks are visible, as are confirmed outputs
// at or below the fork point.  Spends performed by earlier transactions of
// the block or by lower branch blocks are reported.
func (p *Prevouts) Block(block *chain.Block) error {
	branch := block.Validation.Branch
	if branch == nil {
		return chain.AssertError("block populated without a branch")
	}
	height := block.Validation.Height
	index := int(height - branch.ForkHeight() - 1)

	created := make(map[wire.OutPoint]*wire.TxOut)
	spent := make(map[wire.OutPoint]struct{})
	for position, tx := range block.Txns() {
		msgTx := tx.MsgTx()
		prevouts := make([]*database.OutputRecord, len(msgTx.TxIn))
		if position > 0 {
			for i, txIn := range msgTx.TxIn {
				output, err := p.blockOutput(branch, index, height,
					txIn.PreviousOutPoint, created, spent)
				if err != nil {
					return err
				}
				prevouts[i] = output
				spent[txIn.PreviousOutPoint] = struct{}{}
			}
		}
		tx.Validation.Prevouts = prevouts

		hash := tx.Hash()
		for i, txOut := range msgTx.TxOut {
			created[wire.OutPoint{Hash: *hash, Index: uint32(i)}] = txOut
		}
	}
	return nil
}

func (p *Prevouts) blockOutput(branch *chain.Branch, index int, height uint32,
	outpoint wire.OutPoint, created map[wire.OutPoint]*wire.TxOut,
	spent map[wire.OutPoint]struct{}) (*database.OutputRecord, error) {

	var output *database.OutputRecord
	if txOut, ok := created[outpoint]; ok {
		output = &database.OutputRecord{
			Output:        txOut,
			Height:        height,
			Confirmed:     true,
			SpenderHeight: database.NotSpent,
		}
	} else if branchOutput, ok := branch.Output(outpoint, index); ok {
		output = branchOutput
	} else {
		var err error
		output, err = p.storeOutput(outpoint, branch.ForkHeight(), true)
		if err != nil || output == nil {
			return nil, err
		}
		if output.SpenderHeight == database.NotSpent {
			output.SpenderHeight = branch.SpenderHeight(outpoint, index)
		}
	}

	if _, ok := spent[outpoint]; ok {
		output.SpenderHeight = height
	}
	return output, nil
}
