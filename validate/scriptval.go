// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package validate

import (
	"context"
	"fmt"
	"runtime"

	"github.com/btcsuite/btcchain/chain"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"golang.org/x/sync/errgroup"
)

// txValidateItem holds a transaction along with which input to validate.
type txValidateItem struct {
	txInIndex int
	txIn      *wire.TxIn
	tx        *chain.Tx
	sigHashes *txscript.TxSigHashes
	fetcher   txscript.PrevOutputFetcher
}

// txValidator validates transaction inputs concurrently.
type txValidator struct {
	flags    txscript.ScriptFlags
	sigCache *txscript.SigCache
	workers  int
}

// newTxValidator returns a validator running at most workers verifications
// at a time.  A non-positive count uses three per processor core.
func newTxValidator(flags txscript.ScriptFlags, sigCache *txscript.SigCache,
	workers int) *txValidator {

	if workers <= 0 {
		workers = runtime.NumCPU() * 3
	}
	return &txValidator{flags: flags, sigCache: sigCache, workers: workers}
}

// validateItem executes the script pair of a single input.
func (v *txValidator) validateItem(item *txValidateItem) error {
	txIn := item.txIn
	prevout := item.tx.Validation.Prevouts[item.txInIndex]
	if prevout == nil {
		str := fmt.Sprintf("unable to find output %v referenced from "+
			"transaction %v", txIn.PreviousOutPoint, item.tx.Hash())
		return ruleError(ErrMissingTxOut, str)
	}

	// Create a new script engine for the script pair.
	sigScript := txIn.SignatureScript
	pkScript := prevout.Output.PkScript
	vm, err := txscript.NewEngine(pkScript, item.tx.MsgTx(),
		item.txInIndex, v.flags, v.sigCache, item.sigHashes,
		prevout.Output.Value, item.fetcher)
	if err != nil {
		str := fmt.Sprintf("failed to parse input %s:%d which "+
			"references output %v - %v (input script bytes %x, "+
			"prev output script bytes %x)", item.tx.Hash(),
			item.txInIndex, txIn.PreviousOutPoint, err, sigScript,
			pkScript)
		return ruleError(ErrScriptMalformed, str)
	}

	// Execute the script pair.
	if err := vm.Execute(); err != nil {
		str := fmt.Sprintf("failed to validate input %s:%d which "+
			"references output %v - %v (input script bytes %x, "+
			"prev output script bytes %x)", item.tx.Hash(),
			item.txInIndex, txIn.PreviousOutPoint, err, sigScript,
			pkScript)
		return ruleError(ErrScriptValidation, str)
	}
	return nil
}

// Validate validates the scripts for all of the passed transaction inputs.
// The first failure cancels the verifications that have not started yet.
func (v *txValidator) Validate(items []*txValidateItem) error {
	if len(items) == 0 {
		return nil
	}

	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(v.workers)
	for _, item := range items {
		item := item
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			return v.validateItem(item)
		})
	}
	return g.Wait()
}

// validateItems returns the verification items of every non-coinbase input of
// txns, whose previous outputs must be populated.
func validateItems(txns []*chain.Tx) []*txValidateItem {
	var items []*txValidateItem
	for _, tx := range txns {
		if tx.IsCoinBase() {
			continue
		}

		msgTx := tx.MsgTx()
		fetcher := txscript.NewMultiPrevOutFetcher(nil)
		for i, txIn := range msgTx.TxIn {
			if prevout := tx.Validation.Prevouts[i]; prevout != nil {
				fetcher.AddPrevOut(txIn.PreviousOutPoint, prevout.Output)
			}
		}

		var sigHashes *txscript.TxSigHashes
		if msgTx.HasWitness() {
			sigHashes = txscript.NewTxSigHashes(msgTx, fetcher)
		}

		for i, txIn := range msgTx.TxIn {
			items = append(items, &txValidateItem{
				txInIndex: i,
				txIn:      txIn,
				tx:        tx,
				sigHashes: sigHashes,
				fetcher:   fetcher,
			})
		}
	}
	return items
}

// ScriptFlags returns the script verification flags for the active forks.
func ScriptFlags(forks chain.RuleFork) txscript.ScriptFlags {
	var flags txscript.ScriptFlags
	bip16 := forks&chain.Bip16Rule != 0
	if bip16 {
		flags |= txscript.ScriptBip16
	}
	if forks&chain.Bip66Rule != 0 {
		flags |= txscript.ScriptVerifyDERSignatures
	}
	if forks&chain.Bip65Rule != 0 {
		flags |= txscript.ScriptVerifyCheckLockTimeVerify
	}
	if forks&chain.Bip112Rule != 0 {
		flags |= txscript.ScriptVerifyCheckSequenceVerify
	}

	// Witness evaluation is only defined on top of pay-to-script-hash.
	if bip16 && forks&chain.Bip141Rule != 0 {
		flags |= txscript.ScriptVerifyWitness
	}
	if forks&chain.Bip147Rule != 0 {
		flags |= txscript.ScriptStrictMultiSig
	}
	return flags
}

// checkScripts verifies every input of txns under the flags of forks.
func checkScripts(txns []*chain.Tx, forks chain.RuleFork,
	sigCache *txscript.SigCache, workers int) error {

	validator := newTxValidator(ScriptFlags(forks), sigCache, workers)
	return validator.Validate(validateItems(txns))
}
