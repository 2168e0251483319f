// Copyright (c) 2016-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"time"

	"github.com/btcsuite/btcd/btcutil"
)

// BlockMetadata is attached to a block for the duration of its
// organization.
type BlockMetadata struct {
	// State is the chain state derived for the block's branch position.
	State *State

	// Height is the height the block takes on its branch.
	Height uint32

	// Branch is the branch the block extends.  It is nil until the block
	// has been located in the block pool.
	Branch *Branch

	// Start is when organization of the block began.
	Start time.Time
}

// Block wraps a block with its validation metadata and the wrapped
// transactions it contains.
type Block struct {
	*btcutil.Block

	Validation BlockMetadata

	txns []*Tx
}

// NewBlock wraps block for validation.
func NewBlock(block *btcutil.Block) *Block {
	transactions := block.Transactions()
	txns := make([]*Tx, len(transactions))
	for i, tx := range transactions {
		txns[i] = NewTx(tx)
	}
	return &Block{Block: block, txns: txns}
}

// Txns returns the wrapped transactions in block order.
func (b *Block) Txns() []*Tx {
	return b.txns
}

// Fees sums the fees computed for the non-coinbase transactions.
func (b *Block) Fees() int64 {
	var fees int64
	for _, tx := range b.txns[min(1, len(b.txns)):] {
		fees += tx.Validation.Fee
	}
	return fees
}
