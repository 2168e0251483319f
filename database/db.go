// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package database

import (
	"math"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

const (
	// UnconfirmedPosition is the position recorded for a transaction that
	// is not part of any block on the main chain.
	UnconfirmedPosition = math.MaxUint32

	// NotSpent is the spender height reported for an output that has no
	// spender at or below the queried height.
	NotSpent = math.MaxUint32
)

// BlockRecord is the stored form of a main chain block without its
// transaction bodies.
type BlockRecord struct {
	Hash     chainhash.Hash
	Height   uint32
	Header   wire.BlockHeader
	Size     uint32
	TxHashes []chainhash.Hash
}

// TxRecord is a stored transaction along with its confirmation metadata.
type TxRecord struct {
	Tx *btcutil.Tx

	// Height is the containing block height for a confirmed transaction
	// and the pool height at push time for an unconfirmed one.
	Height uint32

	// Position is the index within the containing block, or
	// UnconfirmedPosition.
	Position uint32

	// Arrival is when an unconfirmed transaction was pushed.
	Arrival time.Time
}

// Confirmed reports whether the transaction is part of a main chain block.
func (r *TxRecord) Confirmed() bool {
	return r.Position != UnconfirmedPosition
}

// OutputRecord is a previous output as seen from some branch height.
type OutputRecord struct {
	Output    *wire.TxOut
	Height    uint32
	Coinbase  bool
	Confirmed bool

	// SpenderHeight is the height of the confirmed spender at or below the
	// queried height, or NotSpent.
	SpenderHeight uint32
}

// Spent reports whether a confirmed spend of the output exists.
func (r *OutputRecord) Spent() bool {
	return r.SpenderHeight != NotSpent
}

// SpendRecord identifies the confirmed input spending an outpoint.
type SpendRecord struct {
	Spender wire.OutPoint
	Height  uint32
}

// Store defines the persistence contract consumed by the chain.  Every call
// is synchronous and reports failure through its error, which is a
// database.Error for conditions the store understands.
type Store interface {
	// TopHeight returns the height of the main chain tip.  An empty
	// store returns ErrNotFound.
	TopHeight() (uint32, error)

	// BlockHash returns the hash of the main chain block at height.
	BlockHash(height uint32) (chainhash.Hash, error)

	// BlockByHeight returns the record of the main chain block at height.
	BlockByHeight(height uint32) (*BlockRecord, error)

	// BlockByHash returns the record of the main chain block with hash.
	BlockByHash(hash *chainhash.Hash) (*BlockRecord, error)

	// FullBlock assembles the main chain block at height together with
	// its transactions.
	FullBlock(height uint32) (*btcutil.Block, error)

	// Transaction returns the transaction with hash when it is confirmed
	// at or below maxHeight, or unconfirmed and requireConfirmed is false.
	Transaction(hash *chainhash.Hash, maxHeight uint32,
		requireConfirmed bool) (*TxRecord, error)

	// Output resolves outpoint as seen from branchHeight.  Spends above
	// branchHeight are not reported.
	Output(outpoint wire.OutPoint, branchHeight uint32,
		requireConfirmed bool) (*OutputRecord, error)

	// Spend returns the confirmed input spending outpoint.
	Spend(outpoint wire.OutPoint) (*SpendRecord, error)

	// ForEachUnconfirmed calls fn for every unconfirmed transaction until
	// fn returns false or an error occurs.
	ForEachUnconfirmed(fn func(*TxRecord) bool) error

	// Insert appends a validated block at height, which must be one past
	// the tip (or zero on an empty store).
	Insert(block *btcutil.Block, height uint32) error

	// Push stores a validated unconfirmed transaction.
	Push(tx *btcutil.Tx, height uint32) error

	// RemoveUnconfirmed drops unconfirmed transactions.  Hashes that are
	// unknown or confirmed are ignored.
	RemoveUnconfirmed(hashes []chainhash.Hash) error

	// Reorganize atomically pops every block above the fork point and
	// appends incoming on top of it.  The popped blocks are returned in
	// ascending height order and their non-coinbase transactions become
	// unconfirmed again.
	Reorganize(forkHash *chainhash.Hash, forkHeight uint32,
		incoming []*btcutil.Block) ([]*btcutil.Block, error)

	// Close releases the store.
	Close() error
}
