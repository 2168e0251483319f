// Copyright (c) 2015-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chaindb

import (
	"github.com/btcsuite/btcchain/database"
	"github.com/btcsuite/btcchain/database/engine"
	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

func fetchTip(snapshot engine.Snapshot) (uint32, chainhash.Hash, error) {
	value, err := get(snapshot, tipKey)
	if err != nil {
		return 0, chainhash.Hash{}, err
	}
	if value == nil {
		return 0, chainhash.Hash{}, notFound("chain is empty")
	}
	return deserializeTip(value)
}

func fetchBlockHash(snapshot engine.Snapshot, height uint32) (chainhash.Hash, error) {
	var hash chainhash.Hash
	value, err := get(snapshot, heightKey(height))
	if err != nil {
		return hash, err
	}
	if value == nil {
		return hash, notFound("no block at height %d", height)
	}
	if len(value) != chainhash.HashSize {
		return hash, corruption("height index %d has %d bytes", height,
			len(value))
	}
	copy(hash[:], value)
	return hash, nil
}

func fetchBlockRecord(snapshot engine.Snapshot, hash *chainhash.Hash) (*database.BlockRecord, error) {
	value, err := get(snapshot, hashKey(blockPrefix, hash))
	if err != nil {
		return nil, err
	}
	if value == nil {
		return nil, notFound("block %v is not on the main chain", hash)
	}
	return deserializeBlockRecord(hash, value)
}

func fetchTxRecord(snapshot engine.Snapshot, hash *chainhash.Hash) (*database.TxRecord, error) {
	value, err := get(snapshot, hashKey(txPrefix, hash))
	if err != nil {
		return nil, err
	}
	if value == nil {
		return nil, notFound("transaction %v does not exist", hash)
	}
	return deserializeTxRecord(hash, value)
}

func fetchFullBlock(snapshot engine.Snapshot, height uint32) (*btcutil.Block, error) {
	hash, err := fetchBlockHash(snapshot, height)
	if err != nil {
		return nil, err
	}
	record, err := fetchBlockRecord(snapshot, &hash)
	if err != nil {
		return nil, err
	}

	msgBlock := wire.NewMsgBlock(&record.Header)
	for i := range record.TxHashes {
		txRecord, err := fetchTxRecord(snapshot, &record.TxHashes[i])
		if err != nil {
			if database.IsNotFound(err) {
				return nil, corruption("block %v references missing "+
					"transaction %v", hash, record.TxHashes[i])
			}
			return nil, err
		}
		msgBlock.AddTransaction(txRecord.Tx.MsgTx())
	}
	block := btcutil.NewBlock(msgBlock)
	block.SetHeight(int32(height))
	return block, nil
}

// TopHeight returns the height of the main chain tip.
func (s *Store) TopHeight() (uint32, error) {
	var height uint32
	err := s.view(func(snapshot engine.Snapshot) error {
		var err error
		height, _, err = fetchTip(snapshot)
		return err
	})
	return height, err
}

// BlockHash returns the hash of the main chain block at height.
func (s *Store) BlockHash(height uint32) (chainhash.Hash, error) {
	var hash chainhash.Hash
	err := s.view(func(snapshot engine.Snapshot) error {
		var err error
		hash, err = fetchBlockHash(snapshot, height)
		return err
	})
	return hash, err
}

// BlockByHeight returns the record of the main chain block at height.
func (s *Store) BlockByHeight(height uint32) (*database.BlockRecord, error) {
	var record *database.BlockRecord
	err := s.view(func(snapshot engine.Snapshot) error {
		hash, err := fetchBlockHash(snapshot, height)
		if err != nil {
			return err
		}
		record, err = fetchBlockRecord(snapshot, &hash)
		return err
	})
	return record, err
}

// BlockByHash returns the record of the main chain block with hash.
func (s *Store) BlockByHash(hash *chainhash.Hash) (*database.BlockRecord, error) {
	var record *database.BlockRecord
	err := s.view(func(snapshot engine.Snapshot) error {
		var err error
		record, err = fetchBlockRecord(snapshot, hash)
		return err
	})
	return record, err
}

// FullBlock assembles the main chain block at height.
func (s *Store) FullBlock(height uint32) (*btcutil.Block, error) {
	var block *btcutil.Block
	err := s.view(func(snapshot engine.Snapshot) error {
		var err error
		block, err = fetchFullBlock(snapshot, height)
		return err
	})
	return block, err
}

// Transaction returns the transaction with hash as seen from maxHeight.
func (s *Store) Transaction(hash *chainhash.Hash, maxHeight uint32,
	requireConfirmed bool) (*database.TxRecord, error) {

	var record *database.TxRecord
	err := s.view(func(snapshot engine.Snapshot) error {
		var err error
		record, err = fetchTxRecord(snapshot, hash)
		if err != nil {
			return err
		}
		if record.Confirmed() && record.Height > maxHeight {
			return notFound("transaction %v is above height %d",
				hash, maxHeight)
		}
		if !record.Confirmed() && requireConfirmed {
			return notFound("transaction %v is unconfirmed", hash)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// Output resolves outpoint as seen from branchHeight.
func (s *Store) Output(outpoint wire.OutPoint, branchHeight uint32,
	requireConfirmed bool) (*database.OutputRecord, error) {

	var output *database.OutputRecord
	err := s.view(func(snapshot engine.Snapshot) error {
		record, err := fetchTxRecord(snapshot, &outpoint.Hash)
		if err != nil {
			return err
		}
		confirmed := record.Confirmed()
		if (confirmed && record.Height > branchHeight) ||
			(!confirmed && requireConfirmed) {
			return notFound("output %v is not visible at height %d",
				outpoint, branchHeight)
		}
		msgTx := record.Tx.MsgTx()
		if outpoint.Index >= uint32(len(msgTx.TxOut)) {
			return notFound("output %v is out of range", outpoint)
		}

		output = &database.OutputRecord{
			Output:        msgTx.TxOut[outpoint.Index],
			Height:        record.Height,
			Coinbase:      blockchain.IsCoinBaseTx(msgTx),
			Confirmed:     confirmed,
			SpenderHeight: database.NotSpent,
		}

		value, err := get(snapshot, spendKey(&outpoint))
		if err != nil || value == nil {
			return err
		}
		spend, err := deserializeSpend(value)
		if err != nil {
			return err
		}
		if spend.Height <= branchHeight {
			output.SpenderHeight = spend.Height
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return output, nil
}

// Spend returns the confirmed input spending outpoint.
func (s *Store) Spend(outpoint wire.OutPoint) (*database.SpendRecord, error) {
	var spend *database.SpendRecord
	err := s.view(func(snapshot engine.Snapshot) error {
		value, err := get(snapshot, spendKey(&outpoint))
		if err != nil {
			return err
		}
		if value == nil {
			return notFound("output %v is unspent", outpoint)
		}
		spend, err = deserializeSpend(value)
		return err
	})
	return spend, err
}

// ForEachUnconfirmed walks the unconfirmed table in hash order.
func (s *Store) ForEachUnconfirmed(fn func(*database.TxRecord) bool) error {
	return s.view(func(snapshot engine.Snapshot) error {
		iter := snapshot.NewIterator(engine.BytesPrefix([]byte{unconfirmedPrefix}))
		defer iter.Release()

		for iter.Next() {
			var hash chainhash.Hash
			copy(hash[:], iter.Key()[1:])
			record, err := fetchTxRecord(snapshot, &hash)
			if err != nil {
				if database.IsNotFound(err) {
					return corruption("unconfirmed index references "+
						"missing transaction %v", hash)
				}
				return err
			}
			if record.Confirmed() {
				log.Warnf("Unconfirmed index lists confirmed "+
					"transaction %v", hash)
				continue
			}
			if !fn(record) {
				break
			}
		}
		if err := iter.Error(); err != nil {
			return driverErr("iterate unconfirmed", err)
		}
		return nil
	})
}
