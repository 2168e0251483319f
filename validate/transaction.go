// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package validate

import (
	"fmt"
	"time"

	"github.com/btcsuite/btcchain/chain"
	"github.com/btcsuite/btcchain/database"
	"github.com/btcsuite/btcchain/populate"
	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// zeroHash is the zero value for a chainhash.Hash and is defined as a
// package level variable to avoid the need to create a new instance every
// time a check is needed.
var zeroHash chainhash.Hash

// TxValidator validates loose transactions against the pool state.  Check
// is context free, Accept depends on the chain state and the store, and
// Connect verifies the scripts.  Each stage assumes the previous one
// succeeded.
type TxValidator struct {
	params     *chaincfg.Params
	store      database.Store
	prevouts   *populate.Prevouts
	timeSource blockchain.MedianTimeSource
	sigCache   *txscript.SigCache
	workers    int
}

// NewTxValidator returns a transaction validator.  workers bounds the number
// of concurrent script verifications, zero selecting a default from the
// number of cores.
func NewTxValidator(params *chaincfg.Params, store database.Store,
	timeSource blockchain.MedianTimeSource, sigCache *txscript.SigCache,
	workers int) *TxValidator {

	return &TxValidator{
		params:     params,
		store:      store,
		prevouts:   populate.NewPrevouts(store),
		timeSource: timeSource,
		sigCache:   sigCache,
		workers:    workers,
	}
}

// Check performs the context free checks of a loose transaction.  Coinbase
// transactions are only valid inside blocks.
func (v *TxValidator) Check(tx *chain.Tx) error {
	if tx.IsCoinBase() {
		str := fmt.Sprintf("transaction %v is an individual coinbase",
			tx.Hash())
		return ruleError(ErrCoinbaseTransaction, str)
	}
	if err := CheckTransactionSanity(tx.Tx); err != nil {
		return err
	}

	numSigOps := blockchain.CountSigOps(tx.Tx)
	if numSigOps > MaxBlockSigOps {
		str := fmt.Sprintf("transaction %v has too many sigops: %d > %d",
			tx.Hash(), numSigOps, MaxBlockSigOps)
		return ruleError(ErrTooManySigOps, str)
	}
	return nil
}

// Accept validates tx against tx.Validation.State, which must describe the
// block following the current tip.  Previous outputs are populated from the
// store, where unconfirmed outputs are visible.  On success the fee, the
// signature operation count and the standardness of tx are recorded.
func (v *TxValidator) Accept(tx *chain.Tx) error {
	return v.accept(tx, false)
}

// Reaccept is Accept for a transaction already held unconfirmed by the
// store, as when the pool is restored or rebuilt after a reorganization.  Only
// a confirmed copy counts as a duplicate.
func (v *TxValidator) Reaccept(tx *chain.Tx) error {
	return v.accept(tx, true)
}

func (v *TxValidator) accept(tx *chain.Tx, requireConfirmed bool) error {
	state := tx.Validation.State
	if state == nil {
		return chain.AssertError("transaction accepted without a chain state")
	}

	// Transactions are evaluated as if they were included in the next
	// block.
	lockTime := LockTimeFor(state, v.timeSource.AdjustedTime())
	if !blockchain.IsFinalizedTransaction(tx.Tx, int32(state.Height), lockTime) {
		str := fmt.Sprintf("transaction %v is not finalized", tx.Hash())
		return ruleError(ErrUnfinalizedTx, str)
	}

	if err := v.checkDuplicate(tx, state.Height-1, requireConfirmed); err != nil {
		return err
	}
	if err := v.prevouts.Transaction(tx); err != nil {
		return err
	}
	if err := CheckTransactionInputs(tx, state, v.params); err != nil {
		return err
	}
	if tx.Validation.SigOps > MaxBlockSigOps {
		str := fmt.Sprintf("transaction %v has too many sigops: %d > %d",
			tx.Hash(), tx.Validation.SigOps, MaxBlockSigOps)
		return ruleError(ErrTooManySigOps, str)
	}

	err := CheckStandard(tx)
	tx.Validation.Standard = err == nil
	if err != nil {
		log.Debugf("Transaction %v is not standard: %v", tx.Hash(), err)
	}
	return nil
}

// checkDuplicate rejects a transaction that is already known to the store,
// confirmed at or below height or, unless requireConfirmed is set,
// unconfirmed.
func (v *TxValidator) checkDuplicate(tx *chain.Tx, height uint32,
	requireConfirmed bool) error {

	_, err := v.store.Transaction(tx.Hash(), height, requireConfirmed)
	switch {
	case err == nil:
		str := fmt.Sprintf("already have transaction %v", tx.Hash())
		return ruleError(ErrDuplicateTx, str)
	case database.IsNotFound(err):
		return nil
	default:
		return err
	}
}

// Connect verifies the scripts of every input of tx.
func (v *TxValidator) Connect(tx *chain.Tx) error {
	state := tx.Validation.State
	if state == nil {
		return chain.AssertError("transaction connected without a chain state")
	}
	return checkScripts([]*chain.Tx{tx}, state.Forks, v.sigCache, v.workers)
}

// CheckTransactionSanity performs some preliminary checks on a transaction to
// ensure it is sane.  These checks are context free.
func CheckTransactionSanity(tx *btcutil.Tx) error {
	// A transaction must have at least one input.
	msgTx := tx.MsgTx()
	if len(msgTx.TxIn) == 0 {
		return ruleError(ErrNoTxInputs, "transaction has no inputs")
	}

	// A transaction must have at least one output.
	if len(msgTx.TxOut) == 0 {
		return ruleError(ErrNoTxOutputs, "transaction has no outputs")
	}

	// A transaction must not exceed the maximum allowed block payload when
	// serialized.
	serializedTxSize := msgTx.SerializeSizeStripped()
	if serializedTxSize > blockchain.MaxBlockBaseSize {
		str := fmt.Sprintf("serialized transaction is too big - got "+
			"%d, max %d", serializedTxSize, blockchain.MaxBlockBaseSize)
		return ruleError(ErrTxTooBig, str)
	}

	// Ensure the transaction amounts are in range.  Each transaction
	// output must not be negative or more than the max allowed per
	// transaction.  Also, the total of all outputs must abide by the same
	// restrictions.  All amounts in a transaction are in a unit value known
	// as a satoshi.  One bitcoin is a quantity of satoshi as defined by the
	// SatoshiPerBitcoin constant.
	var totalSatoshi int64
	for _, txOut := range msgTx.TxOut {
		satoshi := txOut.Value
		if satoshi < 0 {
			str := fmt.Sprintf("transaction output has negative "+
				"value of %v", satoshi)
			return ruleError(ErrBadTxOutValue, str)
		}
		if satoshi > btcutil.MaxSatoshi {
			str := fmt.Sprintf("transaction output value is "+
				"higher than max allowed value: %v > %v ",
				btcutil.Amount(satoshi), btcutil.MaxSatoshi)
			return ruleError(ErrBadTxOutValue, str)
		}

		// Two's complement int64 overflow guarantees that any overflow
		// is detected and reported.  This is impossible for Bitcoin, but
		// perhaps possible if an alt increases the total money supply.
		totalSatoshi += satoshi
		if totalSatoshi < 0 {
			str := fmt.Sprintf("total value of all transaction "+
				"outputs exceeds max allowed value of %v",
				btcutil.MaxSatoshi)
			return ruleError(ErrBadTxOutValue, str)
		}
		if totalSatoshi > btcutil.MaxSatoshi {
			str := fmt.Sprintf("total value of all transaction "+
				"outputs is %v which is higher than max "+
				"allowed value of %v", totalSatoshi,
				btcutil.MaxSatoshi)
			return ruleError(ErrBadTxOutValue, str)
		}
	}

	// Check for duplicate transaction inputs.
	existingTxOut := make(map[wire.OutPoint]struct{})
	for _, txIn := range msgTx.TxIn {
		if _, exists := existingTxOut[txIn.PreviousOutPoint]; exists {
			return ruleError(ErrDuplicateTxInputs, "transaction "+
				"contains duplicate inputs")
		}
		existingTxOut[txIn.PreviousOutPoint] = struct{}{}
	}

	// Coinbase script length must be between min and max length.
	if blockchain.IsCoinBase(tx) {
		slen := len(msgTx.TxIn[0].SignatureScript)
		if slen < blockchain.MinCoinbaseScriptLen ||
			slen > blockchain.MaxCoinbaseScriptLen {

			str := fmt.Sprintf("coinbase transaction script length "+
				"of %d is out of range (min: %d, max: %d)",
				slen, blockchain.MinCoinbaseScriptLen,
				blockchain.MaxCoinbaseScriptLen)
			return ruleError(ErrBadCoinbaseScriptLen, str)
		}
	} else {
		// Previous transaction outputs referenced by the inputs to this
		// transaction must not be null.
		for _, txIn := range msgTx.TxIn {
			if isNullOutPoint(&txIn.PreviousOutPoint) {
				return ruleError(ErrBadTxInput, "transaction "+
					"input refers to previous output that "+
					"is null")
			}
		}
	}

	return nil
}

// CheckTransactionInputs performs a series of checks on the inputs to a
// transaction to ensure they are valid at state.Height.  The previous outputs
// must be populated.  An example of some of the checks include verifying all
// inputs exist and are unspent, ensuring coinbase seasoning requirements are
// met and validating that the inputs cover the outputs.  The fee and the
// signature operation count are recorded in the transaction metadata.
func CheckTransactionInputs(tx *chain.Tx, state *chain.State,
	params *chaincfg.Params) error {

	// Coinbase transactions have no inputs.
	if tx.IsCoinBase() {
		tx.Validation.Fee = 0
		tx.Validation.SigOps = blockchain.CountSigOps(tx.Tx)
		return nil
	}

	txHash := tx.Hash()
	var totalSatoshiIn int64
	for i, txIn := range tx.MsgTx().TxIn {
		// Ensure the referenced input transaction is available.
		prevout := tx.Validation.Prevouts[i]
		if prevout == nil {
			str := fmt.Sprintf("output %v referenced from "+
				"transaction %s:%d does not exist",
				txIn.PreviousOutPoint, txHash, i)
			return ruleError(ErrMissingTxOut, str)
		}
		if prevout.Spent() {
			str := fmt.Sprintf("output %v referenced from "+
				"transaction %s:%d was already spent at "+
				"height %d", txIn.PreviousOutPoint, txHash, i,
				prevout.SpenderHeight)
			return ruleError(ErrDoubleSpendChain, str)
		}

		// Ensure the transaction is not spending coins which have not
		// yet reached the required coinbase maturity.
		if prevout.Coinbase {
			originHeight := prevout.Height
			blocksSincePrev := int64(state.Height) - int64(originHeight)
			coinbaseMaturity := int64(params.CoinbaseMaturity)
			if blocksSincePrev < coinbaseMaturity {
				str := fmt.Sprintf("tried to spend coinbase "+
					"transaction output %v from height %v "+
					"at height %v before required maturity "+
					"of %v blocks", txIn.PreviousOutPoint,
					originHeight, state.Height,
					coinbaseMaturity)
				return ruleError(ErrImmatureSpend, str)
			}
		}

		// Ensure the transaction amounts are in range.  Each of the
		// output values of the input transactions must not be negative
		// or more than the max allowed per transaction.  All amounts in
		// a transaction are in a unit value known as a satoshi.  One
		// bitcoin is a quantity of satoshi as defined by the
		// SatoshiPerBitcoin constant.
		originTxSatoshi := prevout.Output.Value
		if originTxSatoshi < 0 {
			str := fmt.Sprintf("transaction output has negative "+
				"value of %v", btcutil.Amount(originTxSatoshi))
			return ruleError(ErrBadTxOutValue, str)
		}
		if originTxSatoshi > btcutil.MaxSatoshi {
			str := fmt.Sprintf("transaction output value is "+
				"higher than max allowed value: %v > %v ",
				btcutil.Amount(originTxSatoshi),
				btcutil.MaxSatoshi)
			return ruleError(ErrBadTxOutValue, str)
		}

		// The total of all outputs must not be more than the max
		// allowed per transaction.  Also, we could potentially overflow
		// the accumulator so check for overflow.
		lastSatoshiIn := totalSatoshiIn
		totalSatoshiIn += originTxSatoshi
		if totalSatoshiIn < lastSatoshiIn ||
			totalSatoshiIn > btcutil.MaxSatoshi {
			str := fmt.Sprintf("total value of all transaction "+
				"inputs is %v which is higher than max "+
				"allowed value of %v", totalSatoshiIn,
				btcutil.MaxSatoshi)
			return ruleError(ErrBadTxOutValue, str)
		}
	}

	// Calculate the total output amount for this transaction.  It is safe
	// to ignore overflow and out of range errors here because those error
	// conditions would have already been caught by checkTransactionSanity.
	totalSatoshiOut := tx.TotalOutput()

	// Ensure the transaction does not spend more than its inputs.
	if totalSatoshiIn < totalSatoshiOut {
		str := fmt.Sprintf("total value of all transaction inputs for "+
			"transaction %v is %v which is less than the amount "+
			"spent of %v", txHash, totalSatoshiIn, totalSatoshiOut)
		return ruleError(ErrSpendTooHigh, str)
	}

	numSigOps, err := CountSigOps(tx, state.IsEnabled(chain.Bip16Rule))
	if err != nil {
		return err
	}

	tx.Validation.Fee = totalSatoshiIn - totalSatoshiOut
	tx.Validation.SigOps = numSigOps
	return nil
}

// checkSerializedHeight checks if the signature script in the passed
// transaction starts with the serialized block height of wantHeight.
func checkSerializedHeight(coinbaseTx *btcutil.Tx, wantHeight uint32) error {
	serializedHeight, err := blockchain.ExtractCoinbaseHeight(coinbaseTx)
	if err != nil {
		return ruleError(ErrBadCoinbaseHeight, err.Error())
	}

	if serializedHeight < 0 || uint32(serializedHeight) != wantHeight {
		str := fmt.Sprintf("the coinbase signature script serialized "+
			"block height is %d when %d was expected",
			serializedHeight, wantHeight)
		return ruleError(ErrBadCoinbaseHeight, str)
	}
	return nil
}

// LockTimeFor returns the time transactions at state.Height are evaluated
// against for finality, blockTime being the timestamp of the block they are
// included in.
func LockTimeFor(state *chain.State, blockTime time.Time) time.Time {
	if state.IsEnabled(chain.Bip113Rule) {
		return state.MedianTimePast
	}
	return blockTime
}
