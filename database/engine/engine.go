// Package engine defines the ordered key/value contract the chain store is
// written against.  Drivers live in the leveldb and pebbledb subpackages.
package engine

import "errors"

var (
	// ErrNotFound is returned by Snapshot.Get when the key does not exist.
	// Drivers translate their native not-found errors to it.
	ErrNotFound = errors.New("engine: key not found")

	// ErrIterReleased is reported by an iterator used after Release.
	ErrIterReleased = errors.New("engine: iterator released")
)

// Engine is an opened key/value database.
type Engine interface {
	// Transaction opens an atomic write batch.  Writes become visible to
	// new snapshots only once Commit returns.
	Transaction() (Transaction, error)

	// Snapshot returns a consistent read view of the committed state.
	Snapshot() (Snapshot, error)

	Close() error
}

// Transaction is an atomic batch of writes.  Operations are applied in the
// order they were issued, so a Delete followed by a Put of the same key leaves
// the key present.
type Transaction interface {
	Put(key, value []byte) error
	Delete(key []byte) error
	Commit() error
	Discard()
}

type Snapshot interface {
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	NewIterator(*Range) Iterator
	Releaser
}

type Releaser interface {
	Release()
}

// IsNotFound reports whether err signals a missing key.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
