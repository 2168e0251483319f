// Package leveldb provides the goleveldb driver for the engine contract.
package leveldb

import (
	"errors"

	"github.com/btcsuite/btcchain/database/engine"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
)

// NewDB opens the leveldb database at dbPath.  When create is set the call
// fails if a database already exists there.
func NewDB(dbPath string, create bool) (engine.Engine, error) {
	opts := opt.Options{
		ErrorIfExist: create,
		Strict:       opt.DefaultStrict,
		Compression:  opt.NoCompression,
		Filter:       filter.NewBloomFilter(10),
	}
	ldb, err := leveldb.OpenFile(dbPath, &opts)
	if err != nil {
		return nil, err
	}
	return &DB{DB: ldb}, nil
}

// NewMemDB returns a leveldb database backed by memory only.  Everything is
// lost on Close.
func NewMemDB() (engine.Engine, error) {
	ldb, err := leveldb.Open(storage.NewMemStorage(), &opt.Options{
		Strict: opt.DefaultStrict,
	})
	if err != nil {
		return nil, err
	}
	return &DB{DB: ldb}, nil
}

type DB struct {
	*leveldb.DB
}

func (d *DB) Transaction() (engine.Transaction, error) {
	tx, err := d.DB.OpenTransaction()
	if err != nil {
		return nil, err
	}
	return NewTransaction(tx), nil
}

func (d *DB) Snapshot() (engine.Snapshot, error) {
	snapshot, err := d.DB.GetSnapshot()
	if err != nil {
		return nil, err
	}
	return NewSnapshot(snapshot), nil
}

func (d *DB) Close() error {
	return d.DB.Close()
}

// convertErr maps goleveldb's not-found error onto the engine one.
func convertErr(err error) error {
	if errors.Is(err, leveldb.ErrNotFound) {
		return engine.ErrNotFound
	}
	return err
}
