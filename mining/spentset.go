// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mining

import (
	"github.com/btcsuite/btcd/wire"
)

// SpentSet records the outpoints spent by the transactions selected so far in
// one pass over a transaction source.
type SpentSet map[wire.OutPoint]struct{}

// NewSpentSet returns an empty set.
func NewSpentSet() SpentSet {
	return make(SpentSet)
}

// Conflicts reports whether any input of tx spends an outpoint already in the
// set.
func (s SpentSet) Conflicts(tx *wire.MsgTx) bool {
	for _, txIn := range tx.TxIn {
		if _, ok := s[txIn.PreviousOutPoint]; ok {
			return true
		}
	}
	return false
}

// Add records every outpoint spent by tx.
func (s SpentSet) Add(tx *wire.MsgTx) {
	for _, txIn := range tx.TxIn {
		s[txIn.PreviousOutPoint] = struct{}{}
	}
}
