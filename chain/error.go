// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import "errors"

// Service level outcomes shared by every component.  Rule violations are
// reported separately through validate.RuleError.
var (
	// ErrServiceStopped is returned by any operation started after the
	// chain was stopped.
	ErrServiceStopped = errors.New("service stopped")

	// ErrNotFound is returned by queries for objects that do not exist.
	ErrNotFound = errors.New("object does not exist")

	// ErrOperationFailed is returned when an operation could not be
	// completed for reasons other than the input being invalid, most
	// notably a failed store write.
	ErrOperationFailed = errors.New("operation failed")
)

// AssertError identifies an error that indicates an internal code consistency
// issue and should be treated as a critical and unrecoverable error.
type AssertError string

// Error returns the assertion error as a human-readable string and satisfies
// the error interface.
func (e AssertError) Error() string {
	return "assertion failed: " + string(e)
}
