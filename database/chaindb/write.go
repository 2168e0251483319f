// Copyright (c) 2015-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chaindb

import (
	"fmt"
	"time"

	"github.com/btcsuite/btcchain/database"
	"github.com/btcsuite/btcchain/database/engine"
	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// pushBlock writes block at height: the height index, the block record, every
// transaction as confirmed and the spends of its inputs.
func pushBlock(tx engine.Transaction, block *btcutil.Block, height uint32) error {
	value, err := serializeBlockRecord(block, height)
	if err != nil {
		return err
	}
	hash := block.Hash()
	if err := tx.Put(heightKey(height), hash[:]); err != nil {
		return err
	}
	if err := tx.Put(hashKey(blockPrefix, hash), value); err != nil {
		return err
	}

	for position, btx := range block.Transactions() {
		txValue, err := serializeTxRecord(btx, height, uint32(position),
			time.Time{})
		if err != nil {
			return err
		}
		if err := tx.Put(hashKey(txPrefix, btx.Hash()), txValue); err != nil {
			return err
		}
		if err := tx.Delete(hashKey(unconfirmedPrefix, btx.Hash())); err != nil {
			return err
		}
		if position == 0 {
			continue
		}
		for index, txIn := range btx.MsgTx().TxIn {
			spender := wire.OutPoint{Hash: *btx.Hash(), Index: uint32(index)}
			err := tx.Put(spendKey(&txIn.PreviousOutPoint),
				serializeSpend(height, &spender))
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// popBlock reverses pushBlock for block at height.  Non-coinbase transactions
// go back to the unconfirmed table.
func popBlock(tx engine.Transaction, block *btcutil.Block, height uint32, now time.Time) error {
	hash := block.Hash()
	if err := tx.Delete(heightKey(height)); err != nil {
		return err
	}
	if err := tx.Delete(hashKey(blockPrefix, hash)); err != nil {
		return err
	}

	txns := block.Transactions()
	for i := len(txns) - 1; i >= 0; i-- {
		btx := txns[i]
		if blockchain.IsCoinBase(btx) {
			if err := tx.Delete(hashKey(txPrefix, btx.Hash())); err != nil {
				return err
			}
			continue
		}
		for _, txIn := range btx.MsgTx().TxIn {
			if err := tx.Delete(spendKey(&txIn.PreviousOutPoint)); err != nil {
				return err
			}
		}
		txValue, err := serializeTxRecord(btx, height-1,
			database.UnconfirmedPosition, now)
		if err != nil {
			return err
		}
		if err := tx.Put(hashKey(txPrefix, btx.Hash()), txValue); err != nil {
			return err
		}
		if err := tx.Put(hashKey(unconfirmedPrefix, btx.Hash()), nil); err != nil {
			return err
		}
	}
	return nil
}

// Insert appends block at height.
func (s *Store) Insert(block *btcutil.Block, height uint32) error {
	return s.update(func(snapshot engine.Snapshot, tx engine.Transaction) error {
		top, _, err := fetchTip(snapshot)
		switch {
		case database.IsNotFound(err):
			if height != 0 {
				return database.MakeError(database.ErrInvalidHeight,
					fmt.Sprintf("first block must be at height 0, "+
						"got %d", height), nil)
			}
		case err != nil:
			return err
		case height != top+1:
			return database.MakeError(database.ErrInvalidHeight,
				fmt.Sprintf("block %v at height %d does not extend "+
					"tip %d", block.Hash(), height, top), nil)
		}

		if err := pushBlock(tx, block, height); err != nil {
			return driverErr("insert block", err)
		}
		if err := tx.Put(tipKey, serializeTip(height, block.Hash())); err != nil {
			return driverErr("insert block", err)
		}
		return nil
	})
}

// Push stores an unconfirmed transaction.
func (s *Store) Push(btx *btcutil.Tx, height uint32) error {
	return s.update(func(_ engine.Snapshot, tx engine.Transaction) error {
		value, err := serializeTxRecord(btx, height,
			database.UnconfirmedPosition, time.Now())
		if err != nil {
			return err
		}
		if err := tx.Put(hashKey(txPrefix, btx.Hash()), value); err != nil {
			return driverErr("push transaction", err)
		}
		err = tx.Put(hashKey(unconfirmedPrefix, btx.Hash()), nil)
		if err != nil {
			return driverErr("push transaction", err)
		}
		return nil
	})
}

// RemoveUnconfirmed drops unconfirmed transactions by hash.
func (s *Store) RemoveUnconfirmed(hashes []chainhash.Hash) error {
	if len(hashes) == 0 {
		return nil
	}
	return s.update(func(snapshot engine.Snapshot, tx engine.Transaction) error {
		for i := range hashes {
			record, err := fetchTxRecord(snapshot, &hashes[i])
			if database.IsNotFound(err) {
				continue
			}
			if err != nil {
				return err
			}
			if record.Confirmed() {
				continue
			}
			if err := tx.Delete(hashKey(txPrefix, &hashes[i])); err != nil {
				return driverErr("remove unconfirmed", err)
			}
			err = tx.Delete(hashKey(unconfirmedPrefix, &hashes[i]))
			if err != nil {
				return driverErr("remove unconfirmed", err)
			}
		}
		return nil
	})
}

// Reorganize pops the blocks above the fork point and appends incoming.
func (s *Store) Reorganize(forkHash *chainhash.Hash, forkHeight uint32,
	incoming []*btcutil.Block) ([]*btcutil.Block, error) {

	var outgoing []*btcutil.Block
	err := s.update(func(snapshot engine.Snapshot, tx engine.Transaction) error {
		top, _, err := fetchTip(snapshot)
		if err != nil {
			return err
		}
		hash, err := fetchBlockHash(snapshot, forkHeight)
		if err != nil && !database.IsNotFound(err) {
			return err
		}
		if err != nil || hash != *forkHash {
			return database.MakeError(database.ErrForkPointMismatch,
				fmt.Sprintf("fork point %v at height %d is not on "+
					"the main chain", forkHash, forkHeight), nil)
		}

		now := time.Now()
		outgoing = make([]*btcutil.Block, 0, top-forkHeight)
		for height := top; height > forkHeight; height-- {
			block, err := fetchFullBlock(snapshot, height)
			if err != nil {
				return err
			}
			if err := popBlock(tx, block, height, now); err != nil {
				return driverErr("pop block", err)
			}
			outgoing = append(outgoing, block)
		}
		for i, j := 0, len(outgoing)-1; i < j; i, j = i+1, j-1 {
			outgoing[i], outgoing[j] = outgoing[j], outgoing[i]
		}

		tipHeight, tipHash := forkHeight, forkHash
		for i, block := range incoming {
			height := forkHeight + 1 + uint32(i)
			if err := pushBlock(tx, block, height); err != nil {
				return driverErr("push block", err)
			}
			tipHeight, tipHash = height, block.Hash()
		}
		if err := tx.Put(tipKey, serializeTip(tipHeight, tipHash)); err != nil {
			return driverErr("reorganize", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Debugf("Reorganized at height %d: %d outgoing, %d incoming",
		forkHeight, len(outgoing), len(incoming))
	return outgoing, nil
}
