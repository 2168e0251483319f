// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

//go:build debug

package mining

// debugInvariants enables the invariant check after every insertion.
const debugInvariants = true
