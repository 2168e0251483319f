// Copyright (c) 2015-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package database_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/btcsuite/btcchain/database"
)

// TestErrorCodeStringer tests the stringized output for the ErrorCode type.
func TestErrorCodeStringer(t *testing.T) {
	tests := []struct {
		in   database.ErrorCode
		want string
	}{
		{database.ErrNotFound, "ErrNotFound"},
		{database.ErrCorruption, "ErrCorruption"},
		{database.ErrInvalidHeight, "ErrInvalidHeight"},
		{database.ErrForkPointMismatch, "ErrForkPointMismatch"},
		{database.ErrDbClosed, "ErrDbClosed"},
		{database.ErrDriverSpecific, "ErrDriverSpecific"},
		{0xffff, "Unknown ErrorCode (65535)"},
	}

	// Detect additional error codes that don't have the stringer added.
	if len(tests)-1 != int(database.TstNumErrorCodes) {
		t.Errorf("It appears an error code was added without adding " +
			"an associated stringer test")
	}

	for i, test := range tests {
		result := test.in.String()
		if result != test.want {
			t.Errorf("String #%d\ngot: %s\nwant: %s", i, result,
				test.want)
		}
	}
}

// TestError tests the error output and unwrapping for the Error type.
func TestError(t *testing.T) {
	driverErr := errors.New("disk on fire")
	tests := []struct {
		in   database.Error
		want string
	}{
		{
			database.Error{Description: "some error"},
			"some error",
		},
		{
			database.MakeError(database.ErrDriverSpecific, "write failed", driverErr),
			"write failed: disk on fire",
		},
	}

	for i, test := range tests {
		if got := test.in.Error(); got != test.want {
			t.Errorf("Error #%d\n got: %s want: %s", i, got, test.want)
		}
	}

	wrapped := fmt.Errorf("reorganize: %w", tests[1].in)
	if !errors.Is(wrapped, driverErr) {
		t.Error("driver error not reachable through Unwrap")
	}
	if !database.IsErrorCode(wrapped, database.ErrDriverSpecific) {
		t.Error("IsErrorCode did not see through wrapping")
	}
	if database.IsNotFound(wrapped) {
		t.Error("driver error reported as not found")
	}
}
