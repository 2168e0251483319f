package pebbledb

import (
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcchain/database/engine"
	"github.com/stretchr/testify/require"
)

func TestSuitePebbleDB(t *testing.T) {
	engine.TestSuiteEngine(t, func() engine.Engine {
		dbPath := filepath.Join(t.TempDir(), "pebbledb-testsuite")

		pebbledb, err := NewDB(dbPath, true, 0, 0)
		require.NoErrorf(t, err, "failed to create pebbledb")
		return pebbledb
	})
}

func TestCommitReleasesBatch(t *testing.T) {
	db, err := NewDB(filepath.Join(t.TempDir(), "commit"), true, 8, 8)
	require.NoError(t, err)
	defer db.Close()

	tx, err := db.Transaction()
	require.NoError(t, err)
	require.NoError(t, tx.Put([]byte("a"), []byte("b")))
	require.NoError(t, tx.Commit())

	require.ErrorIs(t, tx.Put([]byte("c"), []byte("d")), ErrTxClosed)
	require.ErrorIs(t, tx.Commit(), ErrTxClosed)
	tx.Discard()
}
