package engine

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

// heightKey builds a big-endian height key under prefix the way the chain
// store lays out its height index, so iteration order equals height order.
func heightKey(prefix byte, height uint32) []byte {
	key := make([]byte, 5)
	key[0] = prefix
	binary.BigEndian.PutUint32(key[1:], height)
	return key
}

// TestSuiteEngine runs the behaviour every driver must provide against
// engines produced by new.
func TestSuiteEngine(t *testing.T, new func() Engine) {
	t.Run("TransactionSnapshot", func(t *testing.T) {
		engine := new()
		defer engine.Close()

		tx, err := engine.Transaction()
		require.NoErrorf(t, err, "failed to create transaction")

		key := []byte("tip")
		value := []byte("value1")
		require.NoError(t, tx.Put(key, value))

		// Uncommitted writes are invisible.
		snapshot, err := engine.Snapshot()
		require.NoErrorf(t, err, "failed to create snapshot")

		has, err := snapshot.Has(key)
		require.NoError(t, err)
		require.False(t, has, "uncommitted key visible in snapshot")

		gotValue, err := snapshot.Get(key)
		require.True(t, IsNotFound(err), "expected not found, got %v", err)
		require.Nil(t, gotValue)
		snapshot.Release()

		require.NoError(t, tx.Commit())

		snapshot, err = engine.Snapshot()
		require.NoError(t, err)
		gotValue, err = snapshot.Get(key)
		require.NoError(t, err)
		require.Equal(t, value, gotValue)
		snapshot.Release()
	})

	t.Run("SnapshotIsolation", func(t *testing.T) {
		engine := new()
		defer engine.Close()

		tx, err := engine.Transaction()
		require.NoError(t, err)
		require.NoError(t, tx.Put([]byte("k"), []byte("old")))
		require.NoError(t, tx.Commit())

		before, err := engine.Snapshot()
		require.NoError(t, err)
		defer before.Release()

		tx, err = engine.Transaction()
		require.NoError(t, err)
		require.NoError(t, tx.Put([]byte("k"), []byte("new")))
		require.NoError(t, tx.Commit())

		got, err := before.Get([]byte("k"))
		require.NoError(t, err)
		require.Equal(t, []byte("old"), got, "snapshot observed a later commit")
	})

	t.Run("TransactionOrdering", func(t *testing.T) {
		engine := new()
		defer engine.Close()

		tx, err := engine.Transaction()
		require.NoError(t, err)
		require.NoError(t, tx.Put([]byte("spent"), []byte{1}))
		require.NoError(t, tx.Put([]byte("gone"), []byte{1}))
		require.NoError(t, tx.Commit())

		// A delete followed by a put of the same key in one batch must
		// leave the key present; the reverse must leave it absent.
		tx, err = engine.Transaction()
		require.NoError(t, err)
		require.NoError(t, tx.Delete([]byte("spent")))
		require.NoError(t, tx.Put([]byte("spent"), []byte{2}))
		require.NoError(t, tx.Put([]byte("gone"), []byte{2}))
		require.NoError(t, tx.Delete([]byte("gone")))
		require.NoError(t, tx.Commit())

		snapshot, err := engine.Snapshot()
		require.NoError(t, err)
		defer snapshot.Release()

		got, err := snapshot.Get([]byte("spent"))
		require.NoError(t, err)
		require.Equal(t, []byte{2}, got)

		has, err := snapshot.Has([]byte("gone"))
		require.NoError(t, err)
		require.False(t, has)
	})

	t.Run("TransactionIterator", func(t *testing.T) {
		for _, test := range []struct {
			name      string
			kvs       map[string]string // random order of key-value pairs
			ranges    *Range
			expectkvs [][2]string
		}{
			{
				name:      "range before first key",
				kvs:       map[string]string{"key1": "value1", "key2": "value2", "key3": "value3"},
				ranges:    &Range{Start: []byte("key0"), Limit: []byte("key1")},
				expectkvs: nil,
			},
			{
				name:      "limit is exclusive",
				kvs:       map[string]string{"key1": "value1", "key2": "value2", "key3": "value3"},
				ranges:    &Range{Start: []byte("key1"), Limit: []byte("key3")},
				expectkvs: [][2]string{{"key1", "value1"}, {"key2", "value2"}},
			},
			{
				name:      "bounds between keys",
				kvs:       map[string]string{"key1": "value1", "key2": "value2", "key3": "value3"},
				ranges:    &Range{Start: []byte("key10"), Limit: []byte("key30")},
				expectkvs: [][2]string{{"key2", "value2"}, {"key3", "value3"}},
			},
			{
				name:      "empty range",
				kvs:       map[string]string{"key1": "value1", "key2": "value2"},
				ranges:    &Range{Start: []byte("key2"), Limit: []byte("key2")},
				expectkvs: nil,
			},
			{
				name:      "prefix",
				kvs:       map[string]string{"u1": "a", "u2": "b", "t1": "c", "v1": "d"},
				ranges:    BytesPrefix([]byte("u")),
				expectkvs: [][2]string{{"u1", "a"}, {"u2", "b"}},
			},
		} {
			t.Run(test.name, func(t *testing.T) {
				engine := new()
				defer engine.Close()

				tx, err := engine.Transaction()
				require.NoError(t, err)
				for k, v := range test.kvs {
					require.NoError(t, tx.Put([]byte(k), []byte(v)))
				}
				require.NoError(t, tx.Commit())

				snapshot, err := engine.Snapshot()
				require.NoError(t, err)

				iter := snapshot.NewIterator(test.ranges)
				var idx int
				for iter.Next() {
					if idx >= len(test.expectkvs) {
						require.FailNowf(t, "unexpected key-value pair", "key: %s, value: %s", iter.Key(), iter.Value())
					}
					require.Equal(t, []byte(test.expectkvs[idx][0]), iter.Key(), "key mismatch")
					require.Equal(t, []byte(test.expectkvs[idx][1]), iter.Value(), "value mismatch")
					idx++
				}
				require.Equal(t, len(test.expectkvs), idx, "key-value pair count mismatch")
				require.NoError(t, iter.Error())

				iter.Release()
				snapshot.Release()
			})
		}
	})

	t.Run("HeightIndexLast", func(t *testing.T) {
		engine := new()
		defer engine.Close()

		tx, err := engine.Transaction()
		require.NoError(t, err)
		for _, height := range []uint32{0, 1, 255, 256, 70000} {
			require.NoError(t, tx.Put(heightKey('h', height), []byte{byte(height)}))
		}
		require.NoError(t, tx.Put(heightKey('i', 1), []byte{0xff}))
		require.NoError(t, tx.Commit())

		snapshot, err := engine.Snapshot()
		require.NoError(t, err)
		defer snapshot.Release()

		iter := snapshot.NewIterator(BytesPrefix([]byte{'h'}))
		defer iter.Release()
		require.True(t, iter.Last())
		require.Equal(t, heightKey('h', 70000), iter.Key())
		require.True(t, iter.Prev())
		require.Equal(t, heightKey('h', 256), iter.Key())
	})

	t.Run("DbClose", func(t *testing.T) {
		engine := new()

		transaction, err := engine.Transaction()
		require.NoError(t, err)
		transaction.Discard()
		transaction.Discard() // multiple calls to discard should be safe
		err = transaction.Commit()
		require.Errorf(t, err, "expected to get error when committing discarded transaction")

		snapshot, err := engine.Snapshot()
		require.NoError(t, err)

		iterator := snapshot.NewIterator(&Range{})
		require.NoError(t, iterator.Error())
		iterator.Release()
		iterator.Release() // multiple calls to release should be safe

		snapshot.Release()
		snapshot.Release() // multiple calls to release should be safe
		_, err = snapshot.Get([]byte("key"))
		require.Errorf(t, err, "expected to get error when getting value from released snapshot")

		require.NoError(t, engine.Close())
		require.Error(t, engine.Close(), "expected error closing a closed engine")

		_, err = engine.Transaction()
		require.Error(t, err, "expected error creating a transaction on a closed engine")
		_, err = engine.Snapshot()
		require.Error(t, err, "expected error creating a snapshot on a closed engine")
	})
}
