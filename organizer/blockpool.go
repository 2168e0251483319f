// Copyright (c) 2016-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package organizer

import (
	"sort"
	"sync"

	"github.com/btcsuite/btcchain/chain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

const (
	// DefaultBlockPoolCapacity is the default number of orphan and side
	// chain blocks kept by the block pool.
	DefaultBlockPoolCapacity = 500

	// blockPoolMaxDepth is the number of blocks below the tip a side chain
	// block is kept for.
	blockPoolMaxDepth = 144
)

// poolEntry is a pooled block.  Height is zero for an orphan, whose height
// is not known yet.
type poolEntry struct {
	block  *chain.Block
	height uint32
	seq    uint64
}

// BlockPool holds the valid side chain blocks and the orphans that did not
// make it to the main chain.  Blocks are linked to their parents by hash, so
// a branch is found by walking up from its top.
type BlockPool struct {
	mtx      sync.RWMutex
	capacity int
	blocks   map[chainhash.Hash]*poolEntry
	nextSeq  uint64
}

// NewBlockPool returns an empty pool holding at most capacity blocks, zero
// selecting DefaultBlockPoolCapacity.
func NewBlockPool(capacity int) *BlockPool {
	initPrometheusMetrics()

	if capacity <= 0 {
		capacity = DefaultBlockPoolCapacity
	}
	return &BlockPool{
		capacity: capacity,
		blocks:   make(map[chainhash.Hash]*poolEntry),
	}
}

func (p *BlockPool) add(block *chain.Block, height uint32) {
	hash := *block.Hash()
	if _, ok := p.blocks[hash]; ok {
		return
	}
	p.blocks[hash] = &poolEntry{block: block, height: height, seq: p.nextSeq}
	p.nextSeq++
}

// Add pools block.  A block that was located on a branch keeps its branch
// height.
func (p *BlockPool) Add(block *chain.Block) {
	height := uint32(0)
	if block.Validation.Branch != nil {
		height = block.Validation.Height
	}

	p.mtx.Lock()
	p.add(block, height)
	size := len(p.blocks)
	p.mtx.Unlock()

	prometheusBlockPoolSize.Set(float64(size))
}

// AddAll pools blocks popped from the main chain.  They are in ascending
// height order starting one above forkHeight.
func (p *BlockPool) AddAll(blocks []*btcutil.Block, forkHeight uint32) {
	p.mtx.Lock()
	for i, block := range blocks {
		p.add(chain.NewBlock(block), forkHeight+1+uint32(i))
	}
	size := len(p.blocks)
	p.mtx.Unlock()

	prometheusBlockPoolSize.Set(float64(size))
}

// Remove drops blocks from the pool.  Unknown blocks are ignored.
func (p *BlockPool) Remove(blocks []*chain.Block) {
	p.mtx.Lock()
	for _, block := range blocks {
		delete(p.blocks, *block.Hash())
	}
	size := len(p.blocks)
	p.mtx.Unlock()

	prometheusBlockPoolSize.Set(float64(size))
}

// Exists reports whether the block with hash is pooled.
func (p *BlockPool) Exists(hash *chainhash.Hash) bool {
	p.mtx.RLock()
	_, ok := p.blocks[*hash]
	p.mtx.RUnlock()
	return ok
}

// Size returns the number of pooled blocks.
func (p *BlockPool) Size() int {
	p.mtx.RLock()
	defer p.mtx.RUnlock()
	return len(p.blocks)
}

// GetPath returns the branch ending in block, made of block and its pooled
// ancestors.  The branch fork point is not set: the parent of the first
// block may be a main chain block or unknown.
func (p *BlockPool) GetPath(block *chain.Block) *chain.Branch {
	branch := chain.NewBranch()
	branch.PushFront(block)

	p.mtx.RLock()
	defer p.mtx.RUnlock()

	parent := block.MsgBlock().Header.PrevBlock
	for {
		entry, ok := p.blocks[parent]
		if !ok || branch.Size() > len(p.blocks) {
			break
		}
		branch.PushFront(entry.block)
		parent = entry.block.MsgBlock().Header.PrevBlock
	}
	return branch
}

// Prune drops side chain blocks more than the maximum depth below
// topHeight, then the oldest blocks beyond the pool capacity.
func (p *BlockPool) Prune(topHeight uint32) {
	p.mtx.Lock()
	for hash, entry := range p.blocks {
		if entry.height != 0 && entry.height+blockPoolMaxDepth <= topHeight {
			delete(p.blocks, hash)
		}
	}

	if excess := len(p.blocks) - p.capacity; excess > 0 {
		entries := make([]*poolEntry, 0, len(p.blocks))
		for _, entry := range p.blocks {
			entries = append(entries, entry)
		}
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].seq < entries[j].seq
		})
		for _, entry := range entries[:excess] {
			delete(p.blocks, *entry.block.Hash())
		}
	}
	size := len(p.blocks)
	p.mtx.Unlock()

	prometheusBlockPoolSize.Set(float64(size))
}

// Filter removes the blocks already pooled from msg.
func (p *BlockPool) Filter(msg *wire.MsgGetData) {
	p.mtx.RLock()
	defer p.mtx.RUnlock()

	kept := msg.InvList[:0]
	for _, iv := range msg.InvList {
		isBlock := iv.Type == wire.InvTypeBlock ||
			iv.Type == wire.InvTypeWitnessBlock
		if _, ok := p.blocks[iv.Hash]; isBlock && ok {
			continue
		}
		kept = append(kept, iv)
	}
	msg.InvList = kept
}
