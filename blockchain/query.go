// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"github.com/btcsuite/btcchain/database"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// FetchLastHeight returns the height of the main chain tip.
func (b *BlockChain) FetchLastHeight() (uint32, error) {
	if err := b.isStopped(); err != nil {
		return 0, err
	}
	return b.TopHeight()
}

// FetchBlockHeight returns the height of the main chain block with hash.
func (b *BlockChain) FetchBlockHeight(hash *chainhash.Hash) (uint32, error) {
	if err := b.isStopped(); err != nil {
		return 0, err
	}
	return b.BlockHeight(hash)
}

// FetchBlockByHeight returns the main chain block at height.
func (b *BlockChain) FetchBlockByHeight(height uint32) (*btcutil.Block, error) {
	if err := b.isStopped(); err != nil {
		return nil, err
	}
	block, err := b.store.FullBlock(height)
	return block, notFound(err)
}

// FetchBlockByHash returns the main chain block with hash.
func (b *BlockChain) FetchBlockByHash(hash *chainhash.Hash) (*btcutil.Block, error) {
	if err := b.isStopped(); err != nil {
		return nil, err
	}
	record, err := b.store.BlockByHash(hash)
	if err != nil {
		return nil, notFound(err)
	}
	block, err := b.store.FullBlock(record.Height)
	return block, notFound(err)
}

// FetchBlockHeaderByHeight returns the header of the main chain block at
// height.
func (b *BlockChain) FetchBlockHeaderByHeight(height uint32) (*wire.BlockHeader, error) {
	if err := b.isStopped(); err != nil {
		return nil, err
	}
	record, err := b.store.BlockByHeight(height)
	if err != nil {
		return nil, notFound(err)
	}
	return &record.Header, nil
}

// FetchBlockHeaderByHash returns the header of the main chain block with
// hash along with its height.
func (b *BlockChain) FetchBlockHeaderByHash(hash *chainhash.Hash) (*wire.BlockHeader, uint32, error) {
	if err := b.isStopped(); err != nil {
		return nil, 0, err
	}
	record, err := b.store.BlockByHash(hash)
	if err != nil {
		return nil, 0, notFound(err)
	}
	return &record.Header, record.Height, nil
}

// merkleBlock returns a merkle block carrying the hashes of every
// transaction of record.
func merkleBlock(record *database.BlockRecord) *wire.MsgMerkleBlock {
	msg := wire.NewMsgMerkleBlock(&record.Header)
	msg.Transactions = uint32(len(record.TxHashes))
	for i := range record.TxHashes {
		if err := msg.AddTxHash(&record.TxHashes[i]); err != nil {
			break
		}
	}
	return msg
}

// FetchMerkleBlockByHeight returns the main chain block at height as a merkle
// block listing all of its transaction hashes.
func (b *BlockChain) FetchMerkleBlockByHeight(height uint32) (*wire.MsgMerkleBlock, error) {
	if err := b.isStopped(); err != nil {
		return nil, err
	}
	record, err := b.store.BlockByHeight(height)
	if err != nil {
		return nil, notFound(err)
	}
	return merkleBlock(record), nil
}

// FetchMerkleBlockByHash returns the main chain block with hash as a merkle
// block listing all of its transaction hashes, along with its height.
func (b *BlockChain) FetchMerkleBlockByHash(hash *chainhash.Hash) (*wire.MsgMerkleBlock, uint32, error) {
	if err := b.isStopped(); err != nil {
		return nil, 0, err
	}
	record, err := b.store.BlockByHash(hash)
	if err != nil {
		return nil, 0, notFound(err)
	}
	return merkleBlock(record), record.Height, nil
}

// FetchTransaction returns the transaction with hash.  An unconfirmed
// transaction is only returned when requireConfirmed is false.
func (b *BlockChain) FetchTransaction(hash *chainhash.Hash,
	requireConfirmed bool) (*database.TxRecord, error) {

	if err := b.isStopped(); err != nil {
		return nil, err
	}
	top, err := b.TopHeight()
	if err != nil {
		return nil, err
	}
	record, err := b.store.Transaction(hash, top, requireConfirmed)
	return record, notFound(err)
}

// FetchTransactionPosition returns the height of the block containing the
// transaction with hash and its position in it.  An unconfirmed transaction
// reports database.UnconfirmedPosition.
func (b *BlockChain) FetchTransactionPosition(hash *chainhash.Hash,
	requireConfirmed bool) (uint32, uint32, error) {

	record, err := b.FetchTransaction(hash, requireConfirmed)
	if err != nil {
		return 0, 0, err
	}
	return record.Height, record.Position, nil
}

// FetchOutput returns the output referenced by outpoint as seen from the tip.
func (b *BlockChain) FetchOutput(outpoint wire.OutPoint,
	requireConfirmed bool) (*database.OutputRecord, error) {

	if err := b.isStopped(); err != nil {
		return nil, err
	}
	top, err := b.TopHeight()
	if err != nil {
		return nil, err
	}
	record, err := b.store.Output(outpoint, top, requireConfirmed)
	return record, notFound(err)
}

// FetchSpend returns the confirmed input spending outpoint.
func (b *BlockChain) FetchSpend(outpoint wire.OutPoint) (*database.SpendRecord, error) {
	if err := b.isStopped(); err != nil {
		return nil, err
	}
	record, err := b.store.Spend(outpoint)
	return record, notFound(err)
}

// FilterBlocks removes the blocks on the main chain or in the block pool
// from msg.
func (b *BlockChain) FilterBlocks(msg *wire.MsgGetData) error {
	if err := b.isStopped(); err != nil {
		return err
	}
	b.blocks.Filter(msg)

	kept := msg.InvList[:0]
	for _, iv := range msg.InvList {
		isBlock := iv.Type == wire.InvTypeBlock ||
			iv.Type == wire.InvTypeWitnessBlock
		if isBlock {
			_, err := b.store.BlockByHash(&iv.Hash)
			if err == nil {
				continue
			}
			if !database.IsNotFound(err) {
				return err
			}
		}
		kept = append(kept, iv)
	}
	msg.InvList = kept
	return nil
}

// FilterTransactions removes the transactions in the memory pool or in the
// store from msg.
func (b *BlockChain) FilterTransactions(msg *wire.MsgGetData) error {
	if err := b.isStopped(); err != nil {
		return err
	}
	b.transactions.Filter(msg)

	top, err := b.TopHeight()
	if err != nil {
		return err
	}
	kept := msg.InvList[:0]
	for _, iv := range msg.InvList {
		isTx := iv.Type == wire.InvTypeTx || iv.Type == wire.InvTypeWitnessTx
		if isTx {
			_, err := b.store.Transaction(&iv.Hash, top, false)
			if err == nil {
				continue
			}
			if !database.IsNotFound(err) {
				return err
			}
		}
		kept = append(kept, iv)
	}
	msg.InvList = kept
	return nil
}
