// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package validate

import (
	"fmt"

	"github.com/btcsuite/btcchain/chain"
	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/txscript"
)

// MaxBlockSigOps is the maximum number of signature operations allowed for a
// block.
const MaxBlockSigOps = blockchain.MaxBlockSigOpsCost / blockchain.WitnessScaleFactor

// CountSigOps returns the number of signature operations of tx.  When bip16
// is active the signature operations of pay-to-script-hash inputs are counted
// precisely, which requires the previous outputs to be populated.
func CountSigOps(tx *chain.Tx, bip16 bool) (int, error) {
	numSigOps := blockchain.CountSigOps(tx.Tx)
	if !bip16 || tx.IsCoinBase() {
		return numSigOps, nil
	}

	p2shSigOps, err := countP2SHSigOps(tx)
	if err != nil {
		return 0, err
	}
	numSigOps += p2shSigOps
	if numSigOps < p2shSigOps {
		return 0, ruleError(ErrTooManySigOps, fmt.Sprintf("the "+
			"public key script from output %v contains too many "+
			"signature operations - overflow", tx.Hash()))
	}
	return numSigOps, nil
}

// countP2SHSigOps sums the signature operations of the redeem scripts of the
// pay-to-script-hash inputs of tx.
func countP2SHSigOps(tx *chain.Tx) (int, error) {
	msgTx := tx.MsgTx()
	totalSigOps := 0
	for i, txIn := range msgTx.TxIn {
		prevout := tx.Validation.Prevouts[i]
		if prevout == nil {
			str := fmt.Sprintf("output %v referenced from transaction "+
				"%s:%d is not populated", txIn.PreviousOutPoint,
				tx.Hash(), i)
			return 0, ruleError(ErrMissingTxOut, str)
		}

		pkScript := prevout.Output.PkScript
		if !txscript.IsPayToScriptHash(pkScript) {
			continue
		}

		// Count the precise number of signature operations in the
		// referenced public key script.
		numSigOps := txscript.GetPreciseSigOpCount(txIn.SignatureScript,
			pkScript, true)

		// We could potentially overflow the accumulator so check for
		// overflow.
		lastSigOps := totalSigOps
		totalSigOps += numSigOps
		if totalSigOps < lastSigOps {
			str := fmt.Sprintf("the public key script from output "+
				"%v contains too many signature operations - "+
				"overflow", txIn.PreviousOutPoint)
			return 0, ruleError(ErrTooManySigOps, str)
		}
	}
	return totalSigOps, nil
}
