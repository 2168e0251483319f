// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package validate

import (
	"fmt"
	"math"

	"github.com/btcsuite/btcchain/chain"
	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

const (
	// maxStandardTxWeight is the max weight permitted by any transaction
	// according to the current default policy.
	maxStandardTxWeight = 400000

	// maxStandardSigScriptSize is the maximum size allowed for a
	// transaction input signature script to be considered standard.  This
	// value allows for a 15-of-15 CHECKMULTISIG pay-to-script-hash with
	// compressed keys.
	maxStandardSigScriptSize = 1650

	// maxStandardTxVersion is the highest transaction version considered
	// standard.
	maxStandardTxVersion = 2
)

// Policy holds the economic rules applied to transactions entering the
// memory pool.  They are not consensus rules and are never applied to
// transactions arriving in blocks.
type Policy struct {
	// ByteFee is the price in satoshi of one serialized byte.
	ByteFee float64

	// SigOpFee is the price in satoshi of one signature operation.
	SigOpFee float64

	// MinimumOutput is the lowest output value in satoshi that is not
	// dust.
	MinimumOutput int64
}

// Price returns the minimum fee tx must pay, rounded up to the next satoshi.
// With both rates zero every transaction is free, otherwise the price is at
// least one satoshi.
func (p *Policy) Price(tx *chain.Tx) int64 {
	if p.ByteFee == 0 && p.SigOpFee == 0 {
		return 0
	}
	price := p.ByteFee*float64(tx.Validation.Size) +
		p.SigOpFee*float64(tx.Validation.SigOps)
	return int64(math.Max(1, math.Ceil(price)))
}

// CheckFee rejects a transaction whose fee is below its price.  The fee must
// have been computed by accept.
func (p *Policy) CheckFee(tx *chain.Tx) error {
	price := p.Price(tx)
	if tx.Validation.Fee < price {
		str := fmt.Sprintf("transaction %v pays %d which is under the "+
			"required amount of %d", tx.Hash(), tx.Validation.Fee, price)
		return ruleError(ErrInsufficientFee, str)
	}
	return nil
}

// IsDusty reports whether any output of tx is below the minimum output value.
func (p *Policy) IsDusty(tx *chain.Tx) bool {
	for _, txOut := range tx.MsgTx().TxOut {
		if txOut.Value < p.MinimumOutput {
			return true
		}
	}
	return false
}

// CheckDust rejects a transaction with an output below the minimum output
// value.
func (p *Policy) CheckDust(tx *chain.Tx) error {
	if p.IsDusty(tx) {
		str := fmt.Sprintf("transaction %v has an output below %d",
			tx.Hash(), p.MinimumOutput)
		return ruleError(ErrDustyTransaction, str)
	}
	return nil
}

// CheckStandard performs a series of checks on a transaction to ensure it is
// a "standard" transaction.  A standard transaction is one that conforms to
// several additional limiting cases over what is considered a "sane"
// transaction such as having a version in the supported range, not exceeding
// the maximum allowed size, having signature scripts that only consist of
// data pushes and public key scripts of recognized forms.
func CheckStandard(tx *chain.Tx) error {
	msgTx := tx.MsgTx()
	if msgTx.Version > maxStandardTxVersion || msgTx.Version < 1 {
		str := fmt.Sprintf("transaction version %d is not in the "+
			"valid range of %d-%d", msgTx.Version, 1,
			maxStandardTxVersion)
		return ruleError(ErrNonStandard, str)
	}

	txWeight := blockchain.GetTransactionWeight(tx.Tx)
	if txWeight > maxStandardTxWeight {
		str := fmt.Sprintf("weight of transaction %v is larger than max "+
			"allowed weight of %v", txWeight, maxStandardTxWeight)
		return ruleError(ErrNonStandard, str)
	}

	for i, txIn := range msgTx.TxIn {
		// Each transaction input signature script must not exceed the
		// maximum size allowed for a standard transaction.
		sigScriptLen := len(txIn.SignatureScript)
		if sigScriptLen > maxStandardSigScriptSize {
			str := fmt.Sprintf("transaction input %d: signature "+
				"script size of %d bytes is large than max "+
				"allowed size of %d bytes", i, sigScriptLen,
				maxStandardSigScriptSize)
			return ruleError(ErrNonStandard, str)
		}

		// Each transaction input signature script must only contain
		// opcodes which push data onto the stack.
		if !txscript.IsPushOnlyScript(txIn.SignatureScript) {
			str := fmt.Sprintf("transaction input %d: signature "+
				"script is not push only", i)
			return ruleError(ErrNonStandard, str)
		}
	}

	// None of the output public key scripts can be a non-standard script
	// and there can be at most one null data output.
	numNullDataOutputs := 0
	for i, txOut := range msgTx.TxOut {
		switch txscript.GetScriptClass(txOut.PkScript) {
		case txscript.NonStandardTy:
			str := fmt.Sprintf("transaction output %d: non-standard "+
				"script form", i)
			return ruleError(ErrNonStandard, str)
		case txscript.NullDataTy:
			numNullDataOutputs++
		}
	}
	if numNullDataOutputs > 1 {
		str := "more than one transaction output in a nulldata script"
		return ruleError(ErrNonStandard, str)
	}
	return nil
}

// isNullOutPoint determines whether or not a previous transaction output point
// is set.
func isNullOutPoint(outpoint *wire.OutPoint) bool {
	return outpoint.Index == wire.MaxPrevOutIndex &&
		outpoint.Hash == zeroHash
}
