// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

//go:build !unix

package limits

// SetLimits is a no-op where process limits are not adjustable.
func SetLimits() error {
	return nil
}
