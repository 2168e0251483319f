// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcchain/chain"
	"github.com/btcsuite/btcchain/database"
	"github.com/btcsuite/btcchain/mempool"
	"github.com/btcsuite/btcchain/organizer"
	"github.com/btcsuite/btcchain/populate"
	"github.com/btcsuite/btcchain/validate"
	btcdchain "github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
)

// BlockChain provides functions for working with the bitcoin block chain.
// It includes functionality such as rejecting duplicate blocks, ensuring
// blocks follow all rules, orphan handling, reorganizing onto the branch
// with the most work and maintaining the memory pool.
type BlockChain struct {
	// The following fields are set when the instance is created and can't
	// be changed afterwards, so there is no need to protect them with a
	// separate mutex.
	params     *chaincfg.Params
	store      database.Store
	timeSource btcdchain.MedianTimeSource
	notifyAge  time.Duration
	populator  *populate.ChainState
	policy     *validate.Policy
	prevouts   *populate.Prevouts

	gate         *organizer.PrioritizedMutex
	dispatcher   *organizer.Dispatcher
	txPool       *mempool.TxPool
	blockPool    *organizer.BlockPool
	transactions *organizer.TxOrganizer
	blocks       *organizer.BlockOrganizer

	stopped  atomic.Bool
	stopOnce sync.Once

	// stateLock protects the pool state and the last block.
	//
	// poolState describes the block that would follow the tip.
	//
	// lastBlock is the tip installed by the most recent reorganization.
	stateLock sync.RWMutex
	poolState *chain.State
	lastBlock *btcutil.Block
}

// New returns a stopped BlockChain instance using the provided
// configuration details.
func New(cfg *Config) (*BlockChain, error) {
	// Enforce required config fields.
	if cfg.ChainParams == nil {
		return nil, chain.AssertError("blockchain.New chain parameters " +
			"nil")
	}
	if cfg.Store == nil {
		return nil, chain.AssertError("blockchain.New store is nil")
	}

	params := cfg.ChainParams
	timeSource := cfg.TimeSource
	if timeSource == nil {
		timeSource = btcdchain.NewMedianTime()
	}
	sigCacheSize := cfg.SigCacheMaxSize
	if sigCacheSize == 0 {
		sigCacheSize = DefaultSigCacheMaxSize
	}
	sigCache := txscript.NewSigCache(sigCacheSize)

	populator := populate.NewChainState(cfg.Store, params, cfg.ForkHeights,
		cfg.EnabledForks)
	policy := &validate.Policy{
		ByteFee:       cfg.ByteFeeSatoshis,
		SigOpFee:      cfg.SigOpFeeSatoshis,
		MinimumOutput: cfg.MinimumOutputSatoshis,
	}

	b := &BlockChain{
		params:     params,
		store:      cfg.Store,
		timeSource: timeSource,
		notifyAge:  time.Duration(cfg.NotifyLimitHours) * time.Hour,
		populator:  populator,
		policy:     policy,
		prevouts:   populate.NewPrevouts(cfg.Store),
		gate:       &organizer.PrioritizedMutex{},
		dispatcher: organizer.NewDispatcher(cfg.Cores),
		txPool: mempool.New(&mempool.Config{
			TemplateMaxBytes:  cfg.TemplateMaxBytes,
			TemplateMaxSigOps: cfg.TemplateMaxSigOps,
		}),
		blockPool: organizer.NewBlockPool(cfg.BlockPoolCapacity),
	}
	b.stopped.Store(true)

	b.transactions = organizer.NewTxOrganizer(&organizer.TxConfig{
		Chain: b,
		Store: cfg.Store,
		Validator: validate.NewTxValidator(params, cfg.Store, timeSource,
			sigCache, cfg.Cores),
		Pool:            b.txPool,
		Policy:          policy,
		Gate:            b.gate,
		Dispatcher:      b.dispatcher,
		RejectCacheSize: cfg.RejectCacheSize,
	})
	b.blocks = organizer.NewBlockOrganizer(&organizer.BlockConfig{
		Chain: b,
		Store: cfg.Store,
		Validator: validate.NewBlockValidator(params, cfg.Store, populator,
			timeSource, sigCache, cfg.Cores),
		ChainState:       populator,
		Pool:             b.blockPool,
		TxPool:           b.txPool,
		Transactions:     b.transactions,
		Gate:             b.gate,
		Dispatcher:       b.dispatcher,
		InvalidCacheSize: cfg.InvalidCacheSize,
	})
	return b, nil
}

// Start inserts the genesis block into an empty store, derives the pool
// state, restores the memory pool from the unconfirmed transactions of the
// store and starts the organizers.
func (b *BlockChain) Start() error {
	_, err := b.store.TopHeight()
	if database.IsNotFound(err) {
		genesis := btcutil.NewBlock(b.params.GenesisBlock)
		genesis.SetHeight(0)
		if err := b.store.Insert(genesis, 0); err != nil {
			return fmt.Errorf("%w: insert genesis block: %v",
				chain.ErrOperationFailed, err)
		}
		log.Infof("Inserted genesis block %v", genesis.Hash())
	} else if err != nil {
		return err
	}

	state, err := b.populator.PopulateTop()
	if err != nil {
		return err
	}
	b.stateLock.Lock()
	b.poolState = state
	b.stateLock.Unlock()

	if err := b.transactions.Restore(); err != nil {
		return err
	}
	b.transactions.Start()
	b.blocks.Start()
	b.stopped.Store(false)

	log.Infof("Chain started at height %d", state.Height-1)
	return nil
}

// Stop refuses new work, waits for the organization in progress and stops
// the organizers and the worker pool.  A stopped chain cannot be started
// again.
func (b *BlockChain) Stop() error {
	b.stopOnce.Do(func() {
		b.stopped.Store(true)

		// Wait for the organization in progress.
		b.gate.LockHighPriority()
		b.transactions.Stop()
		b.blocks.Stop()
		b.dispatcher.Stop()
		b.gate.UnlockHighPriority()

		log.Info("Chain stopped")
	})
	return nil
}

// Close stops the chain and closes the store.
func (b *BlockChain) Close() error {
	if err := b.Stop(); err != nil {
		return err
	}
	return b.store.Close()
}

// Stopped reports whether the chain refuses work.
func (b *BlockChain) Stopped() bool {
	return b.stopped.Load()
}

// notFound wraps a store not found error with chain.ErrNotFound.
func notFound(err error) error {
	if database.IsNotFound(err) {
		return fmt.Errorf("%w: %v", chain.ErrNotFound, err)
	}
	return err
}

// PoolState returns the chain state describing the block that would follow
// the tip.
func (b *BlockChain) PoolState() *chain.State {
	b.stateLock.RLock()
	defer b.stateLock.RUnlock()
	return b.poolState
}

// LastBlock returns the tip installed by the most recent reorganization, or
// nil when none happened since the chain started.
func (b *BlockChain) LastBlock() *btcutil.Block {
	b.stateLock.RLock()
	defer b.stateLock.RUnlock()
	return b.lastBlock
}

// TopHeight returns the height of the main chain tip.
func (b *BlockChain) TopHeight() (uint32, error) {
	height, err := b.store.TopHeight()
	return height, notFound(err)
}

// BlockHash returns the hash of the main chain block at height.
func (b *BlockChain) BlockHash(height uint32) (chainhash.Hash, error) {
	hash, err := b.store.BlockHash(height)
	return hash, notFound(err)
}

// BlockHeight returns the height of the main chain block with hash.
func (b *BlockChain) BlockHeight(hash *chainhash.Hash) (uint32, error) {
	record, err := b.store.BlockByHash(hash)
	if err != nil {
		return 0, notFound(err)
	}
	return record.Height, nil
}

// BranchWork returns the work of the main chain blocks above fromHeight.  The
// sum stops as soon as it exceeds maximum.
func (b *BlockChain) BranchWork(maximum *big.Int, fromHeight uint32) (*big.Int, error) {
	top, err := b.store.TopHeight()
	if err != nil {
		return nil, notFound(err)
	}

	work := new(big.Int)
	for height := top; height > fromHeight; height-- {
		record, err := b.store.BlockByHeight(height)
		if err != nil {
			return nil, err
		}
		work.Add(work, btcdchain.CalcWork(record.Header.Bits))
		if work.Cmp(maximum) > 0 {
			break
		}
	}
	return work, nil
}

// Push stores a validated unconfirmed transaction.
func (b *BlockChain) Push(tx *chain.Tx) error {
	state := tx.Validation.State
	if state == nil {
		return chain.AssertError("transaction pushed without a chain state")
	}
	return b.store.Push(tx.Tx, state.Height-1)
}

// Reorganize replaces the main chain above fork with incoming, whose blocks
// carry the states they were validated under.  The state following the new
// tip becomes the pool state and the tip is cached as the last block.
func (b *BlockChain) Reorganize(fork chain.Checkpoint,
	incoming []*chain.Block) ([]*btcutil.Block, error) {

	if len(incoming) == 0 {
		return nil, fmt.Errorf("%w: no incoming blocks above %v",
			chain.ErrOperationFailed, fork)
	}
	top := incoming[len(incoming)-1]
	if top.Validation.State == nil {
		return nil, fmt.Errorf("%w: block %v has no chain state",
			chain.ErrOperationFailed, top.Hash())
	}

	blocks := make([]*btcutil.Block, len(incoming))
	for i, block := range incoming {
		blocks[i] = block.Block
	}
	outgoing, err := b.store.Reorganize(&fork.Hash, fork.Height, blocks)
	if err != nil {
		log.Errorf("Failed to reorganize above %v: %v", fork, err)
		return nil, fmt.Errorf("%w: reorganize above %v: %v",
			chain.ErrOperationFailed, fork, err)
	}

	state := b.populator.Promote(top.Validation.State, &top.MsgBlock().Header)
	b.stateLock.Lock()
	b.poolState = state
	b.lastBlock = top.Block
	b.stateLock.Unlock()
	return outgoing, nil
}

// IsStale reports whether the tip is older than the configured notify
// limit.  It is never stale when the limit is zero.
func (b *BlockChain) IsStale() bool {
	if b.notifyAge == 0 {
		return false
	}

	var timestamp time.Time
	if last := b.LastBlock(); last != nil {
		timestamp = last.MsgBlock().Header.Timestamp
	} else {
		top, err := b.store.TopHeight()
		if err != nil {
			return true
		}
		record, err := b.store.BlockByHeight(top)
		if err != nil {
			return true
		}
		timestamp = record.Header.Timestamp
	}
	return timestamp.Before(b.timeSource.AdjustedTime().Add(-b.notifyAge))
}

// Organize validates block and integrates it into the chain.  See
// organizer.BlockOrganizer.Organize.
func (b *BlockChain) Organize(block *btcutil.Block) error {
	if b.stopped.Load() {
		return chain.ErrServiceStopped
	}
	return b.blocks.Organize(chain.NewBlock(block))
}

// OrganizeTx validates tx and adds it to the memory pool.  See
// organizer.TxOrganizer.Organize.
func (b *BlockChain) OrganizeTx(tx *btcutil.Tx) error {
	if b.stopped.Load() {
		return chain.ErrServiceStopped
	}
	return b.transactions.Organize(chain.NewTx(tx))
}

// ValidateTx runs the transaction checks of OrganizeTx without changing any
// state.
func (b *BlockChain) ValidateTx(tx *btcutil.Tx) error {
	if b.stopped.Load() {
		return chain.ErrServiceStopped
	}
	return b.transactions.Validate(chain.NewTx(tx))
}

// SubscribeBlockchain registers handler for every reorganization.
func (b *BlockChain) SubscribeBlockchain(handler organizer.Handler[*organizer.Reorganization]) {
	b.blocks.Subscribe(handler)
}

// SubscribeTransaction registers handler for every accepted transaction.
func (b *BlockChain) SubscribeTransaction(handler organizer.Handler[*btcutil.Tx]) {
	b.transactions.Subscribe(handler)
}

// Unsubscribe removes every subscription after a final empty notification.
func (b *BlockChain) Unsubscribe() {
	b.blocks.Unsubscribe()
	b.transactions.Unsubscribe()
}

// isStopped returns chain.ErrServiceStopped once the chain is stopped.
func (b *BlockChain) isStopped() error {
	if b.stopped.Load() {
		return chain.ErrServiceStopped
	}
	return nil
}

// Ensure BlockChain satisfies the organizer.FastChain interface.
var _ organizer.FastChain = (*BlockChain)(nil)
