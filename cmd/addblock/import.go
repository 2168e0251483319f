// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/btcsuite/btcchain/validate"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/davecgh/go-spew/spew"
	"golang.org/x/sync/errgroup"

	logpkg "github.com/btcsuite/btcchain/internal/log"
)

// organizer is the part of the chain the importer feeds.
type organizer interface {
	Organize(block *btcutil.Block) error
}

// logClosure is used to provide a closure over expensive logging operations
// so they aren't performed when the logging level doesn't warrant it.
type logClosure func() string

// String invokes the underlying function and returns the result.
func (c logClosure) String() string {
	return c()
}

// importResults houses the stats and result as an import operation.
type importResults struct {
	blocksProcessed int64
	blocksImported  int64
	err             error
}

// blockImporter houses information about an ongoing import from a block data
// file to the chain.
type blockImporter struct {
	chain             organizer
	r                 io.Reader
	net               wire.BitcoinNet
	progress          time.Duration
	blocksProcessed   int64
	blocksImported    int64
	receivedLogBlocks int64
	receivedLogTx     int64
	lastHeight        int64
	lastBlockTime     time.Time
	lastLogTime       time.Time
}

// readBlock reads the next block from the input file.
func (bi *blockImporter) readBlock() ([]byte, error) {
	// The block file format is:
	//  <network> <block length> <serialized block>
	var net uint32
	err := binary.Read(bi.r, binary.LittleEndian, &net)
	if err != nil {
		if err != io.EOF {
			return nil, err
		}

		// No block and no error means there are no more blocks to read.
		return nil, nil
	}
	if net != uint32(bi.net) {
		return nil, fmt.Errorf("network mismatch -- got %x, want %x",
			net, uint32(bi.net))
	}

	// Read the block length and ensure it is sane.
	var blockLen uint32
	if err := binary.Read(bi.r, binary.LittleEndian, &blockLen); err != nil {
		return nil, err
	}
	if blockLen > wire.MaxBlockPayload {
		return nil, fmt.Errorf("block payload of %d bytes is larger "+
			"than the max allowed %d bytes", blockLen,
			wire.MaxBlockPayload)
	}

	serializedBlock := make([]byte, blockLen)
	if _, err := io.ReadFull(bi.r, serializedBlock); err != nil {
		return nil, err
	}

	return serializedBlock, nil
}

// processBlock organizes the block into the chain.  Already known blocks are
// skipped, while orphans and blocks that do not extend the main chain are
// errors.  Returns whether the block was imported.
func (bi *blockImporter) processBlock(serializedBlock []byte) (bool, error) {
	// Deserialize the block which includes checks for malformed blocks.
	block, err := btcutil.NewBlockFromBytes(serializedBlock)
	if err != nil {
		return false, err
	}

	// update progress statistics
	bi.lastBlockTime = block.MsgBlock().Header.Timestamp
	bi.receivedLogTx += int64(len(block.MsgBlock().Transactions))

	err = bi.chain.Organize(block)
	code, isRule := validate.RuleErrorCode(err)
	switch {
	case err == nil:
		return true, nil

	case isRule && code == validate.ErrDuplicateBlock:
		return false, nil

	case isRule && code == validate.ErrOrphanBlock:
		return false, fmt.Errorf("import file contains an orphan "+
			"block: %v", block.Hash())

	case isRule && code == validate.ErrInsufficientWork:
		return false, fmt.Errorf("import file contains a block that "+
			"does not extend the main chain: %v", block.Hash())
	}

	log.Debugf("Rejected block: %v", logClosure(func() string {
		return spew.Sdump(block.MsgBlock())
	}))
	return false, err
}

// readHandler reads blocks from the import file and queues them for
// processing until the file ends or ctx is done.
func (bi *blockImporter) readHandler(ctx context.Context, queue chan<- []byte) error {
	defer close(queue)
	for {
		serializedBlock, err := bi.readBlock()
		if err != nil {
			return fmt.Errorf("error reading from input file: %w", err)
		}

		// A nil block with no error means we're done.
		if serializedBlock == nil {
			return nil
		}

		select {
		case queue <- serializedBlock:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// logProgress logs block progress as an information message.  In order to
// prevent spam, it limits logging to one message every progress interval
// with duration and totals included.
func (bi *blockImporter) logProgress() {
	bi.receivedLogBlocks++

	now := time.Now()
	duration := now.Sub(bi.lastLogTime)
	if bi.progress == 0 || duration < bi.progress {
		return
	}

	// Truncate the duration to 10s of milliseconds.
	tDuration := duration.Truncate(10 * time.Millisecond)

	log.Infof("Processed %d %s in the last %s (%d %s, height %d, %s)",
		bi.receivedLogBlocks,
		logpkg.PickNoun(uint64(bi.receivedLogBlocks), "block", "blocks"),
		tDuration, bi.receivedLogTx,
		logpkg.PickNoun(uint64(bi.receivedLogTx), "transaction",
			"transactions"), bi.lastHeight, bi.lastBlockTime)

	bi.receivedLogBlocks = 0
	bi.receivedLogTx = 0
	bi.lastLogTime = now
}

// processHandler organizes queued blocks until the queue is closed or ctx
// is done.
func (bi *blockImporter) processHandler(ctx context.Context, queue <-chan []byte) error {
	for {
		select {
		case serializedBlock, ok := <-queue:
			if !ok {
				return nil
			}

			bi.blocksProcessed++
			bi.lastHeight++
			imported, err := bi.processBlock(serializedBlock)
			if err != nil {
				return err
			}
			if imported {
				bi.blocksImported++
			}
			bi.logProgress()

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Import reads the blocks of the import file and organizes them into the
// chain.  Blocks are read from disk in parallel with their processing.  The
// first failure of either side stops both.
func (bi *blockImporter) Import(ctx context.Context) *importResults {
	group, ctx := errgroup.WithContext(ctx)
	queue := make(chan []byte, 2)
	group.Go(func() error {
		return bi.readHandler(ctx, queue)
	})
	group.Go(func() error {
		return bi.processHandler(ctx, queue)
	})

	err := group.Wait()
	if errors.Is(err, context.Canceled) {
		err = errors.New("import interrupted")
	}
	return &importResults{
		blocksProcessed: bi.blocksProcessed,
		blocksImported:  bi.blocksImported,
		err:             err,
	}
}

// newBlockImporter returns a new importer of the blocks of net read from r.
// Progress is logged every progress interval, zero disabling it.
func newBlockImporter(chain organizer, r io.Reader, net wire.BitcoinNet,
	progress time.Duration) *blockImporter {

	return &blockImporter{
		chain:       chain,
		r:           r,
		net:         net,
		progress:    progress,
		lastLogTime: time.Now(),
	}
}
