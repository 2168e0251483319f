// Copyright (c) 2016-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"math/big"

	"github.com/btcsuite/btcchain/database"
	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// txLocation addresses a transaction inside a branch.
type txLocation struct {
	block    int
	position int
}

// Branch is an ordered run of candidate blocks that extends the main chain at
// its fork point.  It lives for a single organization.
type Branch struct {
	forkHash   chainhash.Hash
	forkHeight uint32
	blocks     []*Block

	// Lazily built indexes over the branch contents.
	txIndex    map[chainhash.Hash]txLocation
	spendIndex map[wire.OutPoint]int
}

// NewBranch returns an empty branch.
func NewBranch() *Branch {
	return &Branch{}
}

// PushFront prepends block, which must be the parent of the current first
// block.
func (b *Branch) PushFront(block *Block) {
	b.blocks = append([]*Block{block}, b.blocks...)
	b.txIndex, b.spendIndex = nil, nil
}

// SetForkPoint records the main chain block the branch extends and assigns
// branch heights to its blocks.
func (b *Branch) SetForkPoint(hash *chainhash.Hash, height uint32) {
	b.forkHash = *hash
	b.forkHeight = height
	for i, block := range b.blocks {
		block.Validation.Height = b.HeightAt(i)
		block.Validation.Branch = b
		block.SetHeight(int32(block.Validation.Height))
	}
}

// ForkPoint returns the main chain block the branch extends.
func (b *Branch) ForkPoint() Checkpoint {
	return Checkpoint{Hash: b.forkHash, Height: b.forkHeight}
}

// ForkHeight returns the height of the fork point.
func (b *Branch) ForkHeight() uint32 {
	return b.forkHeight
}

// Blocks returns the branch blocks in ascending height order.
func (b *Branch) Blocks() []*Block {
	return b.blocks
}

// Empty reports whether the branch holds no blocks.
func (b *Branch) Empty() bool {
	return len(b.blocks) == 0
}

// Size returns the number of blocks in the branch.
func (b *Branch) Size() int {
	return len(b.blocks)
}

// Top returns the highest block of the branch or nil.
func (b *Branch) Top() *Block {
	if len(b.blocks) == 0 {
		return nil
	}
	return b.blocks[len(b.blocks)-1]
}

// TopHeight returns the height of the highest branch block, or the fork
// height of an empty branch.
func (b *Branch) TopHeight() uint32 {
	return b.forkHeight + uint32(len(b.blocks))
}

// HeightAt returns the height of the block at index.
func (b *Branch) HeightAt(index int) uint32 {
	return b.forkHeight + 1 + uint32(index)
}

// Work returns the cumulative proof of work of the branch blocks.
func (b *Branch) Work() *big.Int {
	work := new(big.Int)
	for _, block := range b.blocks {
		work.Add(work, blockchain.CalcWork(block.MsgBlock().Header.Bits))
	}
	return work
}

func (b *Branch) buildIndexes() {
	if b.txIndex != nil {
		return
	}
	b.txIndex = make(map[chainhash.Hash]txLocation)
	b.spendIndex = make(map[wire.OutPoint]int)
	for i, block := range b.blocks {
		for position, tx := range block.Transactions() {
			b.txIndex[*tx.Hash()] = txLocation{block: i, position: position}
			if position == 0 {
				continue
			}
			for _, txIn := range tx.MsgTx().TxIn {
				b.spendIndex[txIn.PreviousOutPoint] = i
			}
		}
	}
}

// Output resolves outpoint against the branch blocks below index.  Spends
// inside those blocks are reported through SpenderHeight.  The second return
// is false when no branch block below index created the output.
func (b *Branch) Output(outpoint wire.OutPoint, index int) (*database.OutputRecord, bool) {
	b.buildIndexes()

	output := &database.OutputRecord{SpenderHeight: database.NotSpent}
	if spender, ok := b.spendIndex[outpoint]; ok && spender < index {
		output.SpenderHeight = b.HeightAt(spender)
	}

	location, ok := b.txIndex[outpoint.Hash]
	if !ok || location.block >= index {
		return output, false
	}
	msgTx := b.blocks[location.block].MsgBlock().Transactions[location.position]
	if outpoint.Index >= uint32(len(msgTx.TxOut)) {
		return output, false
	}
	output.Output = msgTx.TxOut[outpoint.Index]
	output.Height = b.HeightAt(location.block)
	output.Coinbase = location.position == 0
	output.Confirmed = true
	return output, true
}

// SpenderHeight returns the height of the branch block below index that
// spends outpoint, or database.NotSpent.
func (b *Branch) SpenderHeight(outpoint wire.OutPoint, index int) uint32 {
	b.buildIndexes()
	if spender, ok := b.spendIndex[outpoint]; ok && spender < index {
		return b.HeightAt(spender)
	}
	return database.NotSpent
}
