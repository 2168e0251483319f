// Package pebbledb provides the cockroachdb/pebble driver for the engine
// contract.
package pebbledb

import (
	"errors"
	"runtime"
	"sync/atomic"

	"github.com/btcsuite/btcchain/database/engine"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/bloom"
)

var (
	ErrDbClosed         = errors.New("pebbledb: closed")
	ErrTxClosed         = errors.New("pebbledb: transaction already closed")
	ErrSnapshotReleased = errors.New("pebbledb: snapshot released")
)

const (
	// DefaultCache is the block cache size in MiB used when none is given.
	DefaultCache = 64

	// DefaultHandles is the open file limit used when none is given.
	DefaultHandles = 16
)

// NewDB opens the pebble database at dbPath with a cache of cache MiB and at
// most handles open files.
func NewDB(dbPath string, create bool, cache, handles int) (engine.Engine, error) {
	if cache <= 0 {
		cache = DefaultCache
	}
	if handles <= 0 {
		handles = DefaultHandles
	}

	levels := make([]pebble.LevelOptions, 7)
	for i := range levels {
		levels[i] = pebble.LevelOptions{
			TargetFileSize: int64(2*1024*1024) << uint(i),
			FilterPolicy:   bloom.FilterPolicy(10),
		}
	}

	opts := &pebble.Options{
		Cache:                    pebble.NewCache(int64(cache * 1024 * 1024)),
		ErrorIfExists:            create,
		MaxOpenFiles:             handles,
		MaxConcurrentCompactions: runtime.NumCPU,
		Levels:                   levels,
	}
	opts.Experimental.ReadSamplingMultiplier = -1
	dbEngine, err := pebble.Open(dbPath, opts)
	if err != nil {
		return nil, err
	}

	return &DB{DB: dbEngine}, nil
}

type DB struct {
	*pebble.DB

	closed atomic.Bool
}

// setClosed marks the database closed and reports whether it was open.
func (d *DB) setClosed() bool {
	return !d.closed.Swap(true)
}

func (d *DB) isClosed() bool {
	return d.closed.Load()
}

func (d *DB) Transaction() (engine.Transaction, error) {
	if d.isClosed() {
		return nil, ErrDbClosed
	}
	return NewTransaction(d.DB.NewBatch()), nil
}

func (d *DB) Snapshot() (engine.Snapshot, error) {
	if d.isClosed() {
		return nil, ErrDbClosed
	}
	return NewSnapshot(d.DB.NewSnapshot()), nil
}

func (d *DB) Close() error {
	if !d.setClosed() {
		return ErrDbClosed
	}
	return d.DB.Close()
}
