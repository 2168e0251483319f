// Copyright (c) 2015-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package database

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a kind of error.
type ErrorCode int

// These constants are used to identify a specific database Error.
const (
	// ErrNotFound indicates the requested block, transaction, output or
	// spend does not exist from the point of view of the query.
	ErrNotFound ErrorCode = iota

	// ErrCorruption indicates a stored record could not be decoded or a
	// cross reference between tables is broken.
	ErrCorruption

	// ErrInvalidHeight indicates a block was inserted at a height other
	// than one past the current tip.
	ErrInvalidHeight

	// ErrForkPointMismatch indicates the fork point passed to Reorganize
	// is not on the main chain.
	ErrForkPointMismatch

	// ErrDbClosed indicates the store was used after Close.
	ErrDbClosed

	// ErrDriverSpecific indicates the engine driver returned an error of
	// its own.  The Err field holds it.
	ErrDriverSpecific

	// numErrorCodes is the maximum error code number used in tests.
	numErrorCodes
)

// Map of ErrorCode values back to their constant names for pretty printing.
var errorCodeStrings = map[ErrorCode]string{
	ErrNotFound:          "ErrNotFound",
	ErrCorruption:        "ErrCorruption",
	ErrInvalidHeight:     "ErrInvalidHeight",
	ErrForkPointMismatch: "ErrForkPointMismatch",
	ErrDbClosed:          "ErrDbClosed",
	ErrDriverSpecific:    "ErrDriverSpecific",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// Error provides a single type for errors that can happen during store
// operation.  The caller can use errors.As to access the ErrorCode field.
//
// ErrDriverSpecific errors carry the driver error in Err.
type Error struct {
	ErrorCode   ErrorCode // Describes the kind of error
	Description string    // Human readable description of the issue
	Err         error     // Underlying error
}

// Error satisfies the error interface and prints human-readable errors.
func (e Error) Error() string {
	if e.Err != nil {
		return e.Description + ": " + e.Err.Error()
	}
	return e.Description
}

// Unwrap returns the underlying error.
func (e Error) Unwrap() error {
	return e.Err
}

// MakeError creates an Error given a set of arguments.
func MakeError(c ErrorCode, desc string, err error) Error {
	return Error{ErrorCode: c, Description: desc, Err: err}
}

// IsErrorCode reports whether err is a database Error with code c.
func IsErrorCode(err error, c ErrorCode) bool {
	var dbErr Error
	return errors.As(err, &dbErr) && dbErr.ErrorCode == c
}

// IsNotFound is shorthand for IsErrorCode(err, ErrNotFound).
func IsNotFound(err error) bool {
	return IsErrorCode(err, ErrNotFound)
}
