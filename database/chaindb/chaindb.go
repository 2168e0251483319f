// Copyright (c) 2015-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package chaindb implements database.Store on top of an ordered key/value
// engine.
package chaindb

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/btcsuite/btcchain/database"
	"github.com/btcsuite/btcchain/database/engine"
	"github.com/btcsuite/btcchain/database/engine/leveldb"
	"github.com/btcsuite/btcchain/database/engine/pebbledb"
)

// Supported engine types.
const (
	TypeLevelDB = "leveldb"
	TypePebble  = "pebble"
	TypeMemory  = "memory"
)

// SupportedEngines returns the engine types Open accepts.
func SupportedEngines() []string {
	return []string{TypeLevelDB, TypePebble, TypeMemory}
}

// Store is a database.Store backed by an engine.  Reads run against their own
// snapshot and never block.  Writes are serialized by mtx and each one is
// applied in a single engine transaction.
type Store struct {
	mtx sync.Mutex
	db  engine.Engine
}

// Ensure Store implements the database.Store interface.
var _ database.Store = (*Store)(nil)

// New wraps an already opened engine.
func New(db engine.Engine) *Store {
	return &Store{db: db}
}

// Open opens or creates a store of the given engine type at path.  The path
// is ignored for the memory engine.
func Open(dbType, path string) (*Store, error) {
	var (
		db  engine.Engine
		err error
	)
	switch dbType {
	case TypeMemory:
		db, err = leveldb.NewMemDB()

	case TypeLevelDB:
		if err = os.MkdirAll(path, 0700); err == nil {
			db, err = leveldb.NewDB(path, false)
		}

	case TypePebble:
		if err = os.MkdirAll(path, 0700); err == nil {
			db, err = pebbledb.NewDB(path, false, 0, 0)
		}

	default:
		return nil, fmt.Errorf("unsupported database type %q", dbType)
	}
	if err != nil {
		return nil, driverErr("open "+dbType+" engine", err)
	}

	log.Infof("Opened %s chain store at %s", dbType, path)
	return New(db), nil
}

// Close closes the underlying engine.
func (s *Store) Close() error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if err := s.db.Close(); err != nil {
		return driverErr("close", err)
	}
	return nil
}

func driverErr(desc string, err error) error {
	if errors.Is(err, pebbledb.ErrDbClosed) {
		return database.MakeError(database.ErrDbClosed, desc, err)
	}
	var dbErr database.Error
	if errors.As(err, &dbErr) {
		return err
	}
	return database.MakeError(database.ErrDriverSpecific, desc, err)
}

func notFound(format string, args ...interface{}) error {
	return database.MakeError(database.ErrNotFound,
		fmt.Sprintf(format, args...), nil)
}

// view runs fn against a fresh snapshot.
func (s *Store) view(fn func(engine.Snapshot) error) error {
	snapshot, err := s.db.Snapshot()
	if err != nil {
		return driverErr("snapshot", err)
	}
	defer snapshot.Release()
	return fn(snapshot)
}

// update runs fn inside one engine transaction and commits it when fn
// succeeds.  The snapshot passed to fn reflects the state before the
// transaction.
func (s *Store) update(fn func(engine.Snapshot, engine.Transaction) error) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	snapshot, err := s.db.Snapshot()
	if err != nil {
		return driverErr("snapshot", err)
	}
	defer snapshot.Release()

	tx, err := s.db.Transaction()
	if err != nil {
		return driverErr("begin transaction", err)
	}
	if err := fn(snapshot, tx); err != nil {
		tx.Discard()
		return err
	}
	if err := tx.Commit(); err != nil {
		tx.Discard()
		return driverErr("commit", err)
	}
	return nil
}

// get wraps Snapshot.Get so missing keys become (nil, nil).
func get(snapshot engine.Snapshot, key []byte) ([]byte, error) {
	value, err := snapshot.Get(key)
	if engine.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, driverErr("get", err)
	}
	return value, nil
}
