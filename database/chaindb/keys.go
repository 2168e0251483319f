// Copyright (c) 2015-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chaindb

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/btcsuite/btcchain/database"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// The store keeps every table in one keyspace, separated by a one byte prefix.
//
//   tipKey              -> height (4) | hash (32)
//   'h' | height (BE 4) -> block hash
//   'b' | block hash    -> height (4) | header (80) | size (4) | count (varint) | tx hashes
//   't' | tx hash       -> height (4) | position (4) | arrival (8) | tx
//   's' | outpoint      -> height (4) | spender hash (32) | spender index (4)
//   'u' | tx hash       -> empty
//
// Heights use big endian in keys so iteration follows height order; values use
// little endian like the rest of the btcd serialization code.
const (
	heightPrefix      = 'h'
	blockPrefix       = 'b'
	txPrefix          = 't'
	spendPrefix       = 's'
	unconfirmedPrefix = 'u'
)

var (
	// byteOrder is the preferred byte order used for serializing numeric
	// fields for storage in the database.
	byteOrder = binary.LittleEndian

	tipKey = []byte("mtip")
)

func heightKey(height uint32) []byte {
	key := make([]byte, 5)
	key[0] = heightPrefix
	binary.BigEndian.PutUint32(key[1:], height)
	return key
}

func hashKey(prefix byte, hash *chainhash.Hash) []byte {
	key := make([]byte, 1+chainhash.HashSize)
	key[0] = prefix
	copy(key[1:], hash[:])
	return key
}

func spendKey(outpoint *wire.OutPoint) []byte {
	key := make([]byte, 1+chainhash.HashSize+4)
	key[0] = spendPrefix
	copy(key[1:], outpoint.Hash[:])
	byteOrder.PutUint32(key[1+chainhash.HashSize:], outpoint.Index)
	return key
}

func corruption(format string, args ...interface{}) error {
	return database.MakeError(database.ErrCorruption,
		fmt.Sprintf(format, args...), nil)
}

func serializeTip(height uint32, hash *chainhash.Hash) []byte {
	buf := make([]byte, 4+chainhash.HashSize)
	byteOrder.PutUint32(buf, height)
	copy(buf[4:], hash[:])
	return buf
}

func deserializeTip(buf []byte) (uint32, chainhash.Hash, error) {
	var hash chainhash.Hash
	if len(buf) != 4+chainhash.HashSize {
		return 0, hash, corruption("tip record has %d bytes", len(buf))
	}
	copy(hash[:], buf[4:])
	return byteOrder.Uint32(buf), hash, nil
}

func serializeBlockRecord(block *btcutil.Block, height uint32) ([]byte, error) {
	msgBlock := block.MsgBlock()
	var buf bytes.Buffer
	buf.Grow(4 + wire.MaxBlockHeaderPayload + 4 + 9 +
		len(msgBlock.Transactions)*chainhash.HashSize)

	var scratch [4]byte
	byteOrder.PutUint32(scratch[:], height)
	buf.Write(scratch[:])
	if err := msgBlock.Header.Serialize(&buf); err != nil {
		return nil, err
	}
	byteOrder.PutUint32(scratch[:], uint32(msgBlock.SerializeSize()))
	buf.Write(scratch[:])
	err := wire.WriteVarInt(&buf, 0, uint64(len(msgBlock.Transactions)))
	if err != nil {
		return nil, err
	}
	for _, tx := range block.Transactions() {
		buf.Write(tx.Hash()[:])
	}
	return buf.Bytes(), nil
}

func deserializeBlockRecord(hash *chainhash.Hash, value []byte) (*database.BlockRecord, error) {
	if len(value) < 4+wire.MaxBlockHeaderPayload+4+1 {
		return nil, corruption("block record %v is truncated", hash)
	}
	record := &database.BlockRecord{
		Hash:   *hash,
		Height: byteOrder.Uint32(value),
	}
	r := bytes.NewReader(value[4:])
	if err := record.Header.Deserialize(r); err != nil {
		return nil, corruption("block record %v header: %v", hash, err)
	}
	var scratch [4]byte
	if _, err := r.Read(scratch[:]); err != nil {
		return nil, corruption("block record %v size: %v", hash, err)
	}
	record.Size = byteOrder.Uint32(scratch[:])
	count, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, corruption("block record %v count: %v", hash, err)
	}
	if uint64(r.Len()) != count*chainhash.HashSize {
		return nil, corruption("block record %v claims %d transactions "+
			"in %d bytes", hash, count, r.Len())
	}
	record.TxHashes = make([]chainhash.Hash, count)
	for i := range record.TxHashes {
		r.Read(record.TxHashes[i][:])
	}
	return record, nil
}

func serializeTxRecord(tx *btcutil.Tx, height, position uint32, arrival time.Time) ([]byte, error) {
	msgTx := tx.MsgTx()
	var buf bytes.Buffer
	buf.Grow(16 + msgTx.SerializeSize())

	var scratch [8]byte
	byteOrder.PutUint32(scratch[:4], height)
	buf.Write(scratch[:4])
	byteOrder.PutUint32(scratch[:4], position)
	buf.Write(scratch[:4])
	var unix int64
	if !arrival.IsZero() {
		unix = arrival.Unix()
	}
	byteOrder.PutUint64(scratch[:], uint64(unix))
	buf.Write(scratch[:])
	if err := msgTx.Serialize(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func deserializeTxRecord(hash *chainhash.Hash, value []byte) (*database.TxRecord, error) {
	if len(value) < 16 {
		return nil, corruption("transaction record %v is truncated", hash)
	}
	var msgTx wire.MsgTx
	if err := msgTx.Deserialize(bytes.NewReader(value[16:])); err != nil {
		return nil, corruption("transaction record %v: %v", hash, err)
	}
	record := &database.TxRecord{
		Tx:       btcutil.NewTx(&msgTx),
		Height:   byteOrder.Uint32(value[0:4]),
		Position: byteOrder.Uint32(value[4:8]),
	}
	if unix := int64(byteOrder.Uint64(value[8:16])); unix != 0 {
		record.Arrival = time.Unix(unix, 0)
	}
	if record.Confirmed() {
		record.Tx.SetIndex(int(record.Position))
	}
	return record, nil
}

func serializeSpend(height uint32, spender *wire.OutPoint) []byte {
	buf := make([]byte, 4+chainhash.HashSize+4)
	byteOrder.PutUint32(buf, height)
	copy(buf[4:], spender.Hash[:])
	byteOrder.PutUint32(buf[4+chainhash.HashSize:], spender.Index)
	return buf
}

func deserializeSpend(value []byte) (*database.SpendRecord, error) {
	if len(value) != 4+chainhash.HashSize+4 {
		return nil, corruption("spend record has %d bytes", len(value))
	}
	record := &database.SpendRecord{Height: byteOrder.Uint32(value)}
	copy(record.Spender.Hash[:], value[4:])
	record.Spender.Index = byteOrder.Uint32(value[4+chainhash.HashSize:])
	return record, nil
}
