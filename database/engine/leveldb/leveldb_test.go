package leveldb

import (
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcchain/database/engine"
	"github.com/stretchr/testify/require"
)

func TestSuiteLevelDB(t *testing.T) {
	engine.TestSuiteEngine(t, func() engine.Engine {
		dbPath := filepath.Join(t.TempDir(), "leveldb-testsuite")

		leveldb, err := NewDB(dbPath, true)
		require.NoErrorf(t, err, "failed to create leveldb")
		return leveldb
	})
}

func TestSuiteMemLevelDB(t *testing.T) {
	engine.TestSuiteEngine(t, func() engine.Engine {
		memdb, err := NewMemDB()
		require.NoErrorf(t, err, "failed to create memory leveldb")
		return memdb
	})
}

func TestCreateExisting(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "existing")

	db, err := NewDB(dbPath, true)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = NewDB(dbPath, true)
	require.Error(t, err, "create over an existing database must fail")

	db, err = NewDB(dbPath, false)
	require.NoError(t, err)
	require.NoError(t, db.Close())
}
