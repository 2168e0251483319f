// Copyright (c) 2014-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package validate

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a kind of error.
type ErrorCode int

// These constants are used to identify a specific RuleError.
const (
	// ErrDuplicateBlock indicates a block with the same hash already
	// exists on the main chain or in the block pool.
	ErrDuplicateBlock ErrorCode = iota

	// ErrKnownInvalid indicates a block that previously failed validation
	// was submitted again.
	ErrKnownInvalid

	// ErrOrphanBlock indicates the parent of a block is unknown.  The
	// block is kept in the block pool until the parent arrives.
	ErrOrphanBlock

	// ErrInsufficientWork indicates a valid block whose branch does not
	// carry more work than the main chain above the fork point.
	ErrInsufficientWork

	// ErrBlockTooBig indicates the serialized block size exceeds the
	// maximum allowed size.
	ErrBlockTooBig

	// ErrBlockVersionTooOld indicates the block version is too old and is
	// no longer accepted since the majority of the network has upgraded
	// to a newer version.
	ErrBlockVersionTooOld

	// ErrTimeTooOld indicates the time is either before the median time
	// of the last several blocks per the chain consensus rules.
	ErrTimeTooOld

	// ErrTimeTooNew indicates the time is too far in the future as
	// compared the current time.
	ErrTimeTooNew

	// ErrUnexpectedDifficulty indicates specified bits do not align with
	// the expected value either because it doesn't match the calculated
	// value based on difficulty regarding the rules or it is out of the
	// valid range.
	ErrUnexpectedDifficulty

	// ErrHighHash indicates the block does not hash to a value which is
	// lower than the required target difficultly.
	ErrHighHash

	// ErrBadMerkleRoot indicates the calculated merkle root does not match
	// the expected value.
	ErrBadMerkleRoot

	// ErrBadCheckpoint indicates a block that is expected to be at a
	// checkpoint height does not match the expected one.
	ErrBadCheckpoint

	// ErrNoTransactions indicates the block does not have a least one
	// transaction.  A valid block must have at least the coinbase
	// transaction.
	ErrNoTransactions

	// ErrNoTxInputs indicates a transaction does not have any inputs.  A
	// valid transaction must have at least one input.
	ErrNoTxInputs

	// ErrNoTxOutputs indicates a transaction does not have any outputs.  A
	// valid transaction must have at least one output.
	ErrNoTxOutputs

	// ErrTxTooBig indicates a transaction exceeds the maximum allowed size
	// when serialized.
	ErrTxTooBig

	// ErrBadTxOutValue indicates an output value for a transaction is
	// invalid in some way such as being out of range.
	ErrBadTxOutValue

	// ErrDuplicateTxInputs indicates a transaction references the same
	// input more than once.
	ErrDuplicateTxInputs

	// ErrBadTxInput indicates a transaction input is invalid in some way
	// such as referencing a previous transaction outpoint which is out of
	// range or not referencing one at all.
	ErrBadTxInput

	// ErrMissingTxOut indicates a transaction output referenced by an input
	// either does not exist or is not visible from the branch being
	// validated.
	ErrMissingTxOut

	// ErrDoubleSpendChain indicates a transaction output referenced by an
	// input has already been spent on the branch being validated.
	ErrDoubleSpendChain

	// ErrDoubleSpendMempool indicates a transaction spends an output that is
	// already spent by a transaction in the memory pool.
	ErrDoubleSpendMempool

	// ErrUnfinalizedTx indicates a transaction has not been finalized.
	// A valid block may only contain finalized transactions.
	ErrUnfinalizedTx

	// ErrDuplicateTx indicates a block contains an identical transaction
	// (or at least two transactions which hash to the same value), or a
	// transaction overwrites one that is not fully spent.
	ErrDuplicateTx

	// ErrImmatureSpend indicates a transaction is attempting to spend a
	// coinbase that has not yet reached the required maturity.
	ErrImmatureSpend

	// ErrSpendTooHigh indicates a transaction is attempting to spend more
	// value than the sum of all of its inputs.
	ErrSpendTooHigh

	// ErrInsufficientFee indicates a transaction pays less than the
	// configured price for its size and signature operations.
	ErrInsufficientFee

	// ErrDustyTransaction indicates a transaction has an output below the
	// configured minimum value.
	ErrDustyTransaction

	// ErrNonStandard indicates a transaction is not standard.
	ErrNonStandard

	// ErrCoinbaseTransaction indicates a coinbase transaction was submitted
	// outside of a block.
	ErrCoinbaseTransaction

	// ErrTooManySigOps indicates the total number of signature operations
	// for a transaction or block exceed the maximum allowed limits.
	ErrTooManySigOps

	// ErrFirstTxNotCoinbase indicates the first transaction in a block
	// is not a coinbase transaction.
	ErrFirstTxNotCoinbase

	// ErrMultipleCoinbases indicates a block contains more than one
	// coinbase transaction.
	ErrMultipleCoinbases

	// ErrBadCoinbaseScriptLen indicates the length of the signature script
	// for a coinbase transaction is not within the valid range.
	ErrBadCoinbaseScriptLen

	// ErrBadCoinbaseValue indicates the amount of a coinbase value does
	// not match the expected value of the subsidy plus the sum of all fees.
	ErrBadCoinbaseValue

	// ErrBadCoinbaseHeight indicates the serialized block height in the
	// coinbase transaction for version 2 and higher blocks does not match
	// the expected value.
	ErrBadCoinbaseHeight

	// ErrScriptMalformed indicates a transaction script is malformed in
	// some way.  For example, it might be longer than the maximum allowed
	// length or fail to parse.
	ErrScriptMalformed

	// ErrScriptValidation indicates the result of executing transaction
	// script failed.  The error covers any failure when executing scripts
	// such signature verification failures and execution past the end of
	// the stack.
	ErrScriptValidation

	// numErrorCodes is the maximum error code number used in tests.
	numErrorCodes
)

// Map of ErrorCode values back to their constant names for pretty printing.
var errorCodeStrings = map[ErrorCode]string{
	ErrDuplicateBlock:       "ErrDuplicateBlock",
	ErrKnownInvalid:         "ErrKnownInvalid",
	ErrOrphanBlock:          "ErrOrphanBlock",
	ErrInsufficientWork:     "ErrInsufficientWork",
	ErrBlockTooBig:          "ErrBlockTooBig",
	ErrBlockVersionTooOld:   "ErrBlockVersionTooOld",
	ErrTimeTooOld:           "ErrTimeTooOld",
	ErrTimeTooNew:           "ErrTimeTooNew",
	ErrUnexpectedDifficulty: "ErrUnexpectedDifficulty",
	ErrHighHash:             "ErrHighHash",
	ErrBadMerkleRoot:        "ErrBadMerkleRoot",
	ErrBadCheckpoint:        "ErrBadCheckpoint",
	ErrNoTransactions:       "ErrNoTransactions",
	ErrNoTxInputs:           "ErrNoTxInputs",
	ErrNoTxOutputs:          "ErrNoTxOutputs",
	ErrTxTooBig:             "ErrTxTooBig",
	ErrBadTxOutValue:        "ErrBadTxOutValue",
	ErrDuplicateTxInputs:    "ErrDuplicateTxInputs",
	ErrBadTxInput:           "ErrBadTxInput",
	ErrMissingTxOut:         "ErrMissingTxOut",
	ErrDoubleSpendChain:     "ErrDoubleSpendChain",
	ErrDoubleSpendMempool:   "ErrDoubleSpendMempool",
	ErrUnfinalizedTx:        "ErrUnfinalizedTx",
	ErrDuplicateTx:          "ErrDuplicateTx",
	ErrImmatureSpend:        "ErrImmatureSpend",
	ErrSpendTooHigh:         "ErrSpendTooHigh",
	ErrInsufficientFee:      "ErrInsufficientFee",
	ErrDustyTransaction:     "ErrDustyTransaction",
	ErrNonStandard:          "ErrNonStandard",
	ErrCoinbaseTransaction:  "ErrCoinbaseTransaction",
	ErrTooManySigOps:        "ErrTooManySigOps",
	ErrFirstTxNotCoinbase:   "ErrFirstTxNotCoinbase",
	ErrMultipleCoinbases:    "ErrMultipleCoinbases",
	ErrBadCoinbaseScriptLen: "ErrBadCoinbaseScriptLen",
	ErrBadCoinbaseValue:     "ErrBadCoinbaseValue",
	ErrBadCoinbaseHeight:    "ErrBadCoinbaseHeight",
	ErrScriptMalformed:      "ErrScriptMalformed",
	ErrScriptValidation:     "ErrScriptValidation",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// RuleError identifies a rule violation.  It is used to indicate that
// processing of a block or transaction failed due to one of the many validation
// rules.  The caller can use type assertions to determine if a failure was
// specifically due to a rule violation and access the ErrorCode field to
// ascertain the specific reason for the rule violation.
type RuleError struct {
	ErrorCode   ErrorCode // Describes the kind of error
	Description string    // Human readable description of the issue
}

// Error satisfies the error interface and prints human-readable errors.
func (e RuleError) Error() string {
	return e.Description
}

// ruleError creates an RuleError given a set of arguments.
func ruleError(c ErrorCode, desc string) RuleError {
	return RuleError{ErrorCode: c, Description: desc}
}

// IsErrorCode returns whether or not the provided error is a rule error with
// the provided error code.
func IsErrorCode(err error, c ErrorCode) bool {
	var rerr RuleError
	return errors.As(err, &rerr) && rerr.ErrorCode == c
}

// RuleErrorCode returns the error code of err when it is a rule error.
func RuleErrorCode(err error) (ErrorCode, bool) {
	var rerr RuleError
	if !errors.As(err, &rerr) {
		return 0, false
	}
	return rerr.ErrorCode, true
}
