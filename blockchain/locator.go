// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"math"

	"github.com/btcsuite/btcchain/database"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// BlockLocatorHeights returns the heights of a block locator for the block
// at top.  The algorithm for building the block locator is to add the heights
// in reverse order until the genesis block is reached.  In order to keep the
// list of locator heights to a reasonable number of entries, first the most
// recent previous 10 block heights are added, then the step is doubled each
// loop iteration to exponentially decrease the number of heights as a
// function of the distance from the block being located.
//
// For example, the locator heights for block 17 are:
//
//	[17 16 15 14 13 12 11 10 9 8 6 2 0]
func BlockLocatorHeights(top uint32) []uint32 {
	heights := make([]uint32, 0, 32)
	heights = append(heights, top)
	step := uint32(1)
	height := top
	for len(heights) < wire.MaxBlockLocatorsPerMsg-1 {
		// Once there are 10 locators, exponentially increase the
		// distance between each block locator.
		if len(heights) > 10 {
			step *= 2
		}
		if height <= step {
			break
		}
		height -= step
		heights = append(heights, height)
	}

	// Always finish with the genesis block.
	if top != 0 {
		heights = append(heights, 0)
	}
	return heights
}

// FetchBlockLocator returns a get headers message whose locator holds the
// hashes of the main chain blocks at heights.  A missing height fails the
// request.
func (b *BlockChain) FetchBlockLocator(heights []uint32) (*wire.MsgGetHeaders, error) {
	if err := b.isStopped(); err != nil {
		return nil, err
	}

	msg := wire.NewMsgGetHeaders()
	for _, height := range heights {
		hash, err := b.BlockHash(height)
		if err != nil {
			return nil, err
		}
		if err := msg.AddBlockLocatorHash(&hash); err != nil {
			return nil, err
		}
	}
	return msg, nil
}

// locatorRange returns the heights [begin, end) of the main chain blocks
// following the locator.  The start is the height of the first locator hash
// found on the main chain, or the genesis block.  A known stop hash caps the
// range and a known threshold hash lifts its beginning.
func (b *BlockChain) locatorRange(locator []*chainhash.Hash, stop,
	threshold *chainhash.Hash, limit uint32) (uint32, uint32, error) {

	var start uint32
	for _, hash := range locator {
		record, err := b.store.BlockByHash(hash)
		if database.IsNotFound(err) {
			continue
		}
		if err != nil {
			return 0, 0, err
		}
		start = record.Height
		break
	}

	// The end saturates rather than wrapping for large limits.
	begin := start + 1
	end := uint32(math.MaxUint32)
	if limit < end-begin {
		end = begin + limit
	}
	if *stop != zeroHash {
		record, err := b.store.BlockByHash(stop)
		switch {
		case err == nil:
			end = min(end, record.Height)
		case !database.IsNotFound(err):
			return 0, 0, err
		}
	}
	if *threshold != zeroHash {
		record, err := b.store.BlockByHash(threshold)
		switch {
		case err == nil:
			begin = max(begin, record.Height)
		case !database.IsNotFound(err):
			return 0, 0, err
		}
	}
	return begin, end, nil
}

// zeroHash is the zero value for a chainhash.Hash.
var zeroHash chainhash.Hash

// FetchLocatorBlockHashes returns an inventory of at most limit main chain
// block hashes following the locator of msg.  Collection stops at the first
// missing height.
func (b *BlockChain) FetchLocatorBlockHashes(msg *wire.MsgGetBlocks,
	threshold chainhash.Hash, limit uint32) (*wire.MsgInv, error) {

	if err := b.isStopped(); err != nil {
		return nil, err
	}
	begin, end, err := b.locatorRange(msg.BlockLocatorHashes, &msg.HashStop,
		&threshold, limit)
	if err != nil {
		return nil, err
	}

	inv := wire.NewMsgInv()
	for height := begin; height < end; height++ {
		hash, err := b.store.BlockHash(height)
		if database.IsNotFound(err) {
			break
		}
		if err != nil {
			return nil, err
		}
		if err := inv.AddInvVect(wire.NewInvVect(wire.InvTypeBlock, &hash)); err != nil {
			break
		}
	}
	return inv, nil
}

// FetchLocatorBlockHeaders returns at most limit main chain block headers
// following the locator of msg.  Collection stops at the first missing
// height.
func (b *BlockChain) FetchLocatorBlockHeaders(msg *wire.MsgGetHeaders,
	threshold chainhash.Hash, limit uint32) (*wire.MsgHeaders, error) {

	if err := b.isStopped(); err != nil {
		return nil, err
	}
	begin, end, err := b.locatorRange(msg.BlockLocatorHashes, &msg.HashStop,
		&threshold, limit)
	if err != nil {
		return nil, err
	}

	headers := wire.NewMsgHeaders()
	for height := begin; height < end; height++ {
		record, err := b.store.BlockByHeight(height)
		if database.IsNotFound(err) {
			break
		}
		if err != nil {
			return nil, err
		}
		if err := headers.AddBlockHeader(&record.Header); err != nil {
			break
		}
	}
	return headers, nil
}
