// Copyright (c) 2016-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package organizer

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcchain/chain"
	"github.com/btcsuite/btcchain/database"
	"github.com/btcsuite/btcchain/mempool"
	"github.com/btcsuite/btcchain/populate"
	"github.com/btcsuite/btcchain/validate"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/decred/dcrd/lru"
)

// DefaultInvalidCacheSize is the number of invalid blocks remembered by
// default.
const DefaultInvalidCacheSize = 1000

// BlockConfig is a descriptor which specifies the block organizer instance
// configuration.
type BlockConfig struct {
	// Chain is reorganized when a branch carries more work than the main
	// chain above its fork point.
	Chain FastChain

	// Store receives the removal of memory pool transactions that
	// conflict with incoming blocks.
	Store database.Store

	// Validator checks, accepts and connects blocks.
	Validator *validate.BlockValidator

	// ChainState derives the state of each branch block.
	ChainState *populate.ChainState

	// Pool holds the orphan and side chain blocks.
	Pool *BlockPool

	// TxPool is updated for the incoming blocks of each reorganization.
	TxPool *mempool.TxPool

	// Transactions restores the memory pool after blocks were popped.
	Transactions *TxOrganizer

	// Gate is shared with the transaction organizer.  Blocks take its
	// high priority side.
	Gate *PrioritizedMutex

	// Dispatcher runs the organization pipeline.
	Dispatcher *Dispatcher

	// InvalidCacheSize is the number of invalid block hashes to remember.
	InvalidCacheSize uint
}

// BlockOrganizer validates blocks and moves the main chain to the branch
// with the most work.
type BlockOrganizer struct {
	cfg        BlockConfig
	stopped    atomic.Bool
	invalid    lru.Cache
	subscriber *Subscriber[*Reorganization]
}

// NewBlockOrganizer returns a stopped block organizer.
func NewBlockOrganizer(cfg *BlockConfig) *BlockOrganizer {
	initPrometheusMetrics()

	cacheSize := cfg.InvalidCacheSize
	if cacheSize == 0 {
		cacheSize = DefaultInvalidCacheSize
	}
	o := &BlockOrganizer{
		cfg:        *cfg,
		invalid:    lru.NewCache(cacheSize),
		subscriber: NewSubscriber[*Reorganization](),
	}
	o.stopped.Store(true)
	return o
}

// Start accepts blocks and subscriptions.
func (o *BlockOrganizer) Start() {
	o.stopped.Store(false)
	o.subscriber.Start()
}

// Stop refuses further blocks and notifies subscribers of the shutdown.
func (o *BlockOrganizer) Stop() {
	o.stopped.Store(true)
	o.subscriber.Stop()
}

// Stopped reports whether the organizer refuses blocks.
func (o *BlockOrganizer) Stopped() bool {
	return o.stopped.Load()
}

// Organize validates block and, when its branch carries more work than the
// main chain above the fork point, reorganizes the chain onto it.  Orphans
// and valid blocks with insufficient work are pooled and reported with
// ErrOrphanBlock and ErrInsufficientWork.  The caller blocks until the
// pipeline completes.
func (o *BlockOrganizer) Organize(block *chain.Block) error {
	o.cfg.Gate.LockHighPriority()
	if o.stopped.Load() {
		o.cfg.Gate.UnlockHighPriority()
		return chain.ErrServiceStopped
	}

	done := make(chan error, 1)
	err := o.cfg.Dispatcher.Submit(func() {
		done <- o.organize(block)
	})
	if err == nil {
		err = <-done
	}
	o.cfg.Gate.UnlockHighPriority()
	return err
}

// organize runs the pipeline and records its outcome.
func (o *BlockOrganizer) organize(block *chain.Block) error {
	block.Validation.Start = time.Now()
	err := o.process(block)

	prometheusOrganizedBlocks.WithLabelValues(resultLabel(err)).Inc()
	prometheusOrganizeBlock.Observe(time.Since(block.Validation.Start).Seconds())
	if err != nil {
		log.Debugf("Block %v not organized: %v", block.Hash(), err)
	}
	return err
}

func (o *BlockOrganizer) process(block *chain.Block) error {
	hash := block.Hash()
	if o.invalid.Contains(*hash) {
		str := fmt.Sprintf("block %v previously failed validation", hash)
		return ruleError(validate.ErrKnownInvalid, str)
	}
	if err := o.checkDuplicate(hash); err != nil {
		return err
	}

	if err := o.cfg.Validator.Check(block); err != nil {
		if _, ok := validate.RuleErrorCode(err); ok {
			o.invalid.Add(*hash)
		}
		return err
	}
	if o.stopped.Load() {
		return chain.ErrServiceStopped
	}

	// Locate the main chain block the branch ending in block extends.
	branch := o.cfg.Pool.GetPath(block)
	forkHash := branch.Blocks()[0].MsgBlock().Header.PrevBlock
	forkHeight, err := o.cfg.Chain.BlockHeight(&forkHash)
	if errors.Is(err, chain.ErrNotFound) {
		o.cfg.Pool.Add(block)
		o.cfg.Pool.Prune(o.topHeight())
		str := fmt.Sprintf("block %v has unknown ancestor %v", hash,
			forkHash)
		return ruleError(validate.ErrOrphanBlock, str)
	}
	if err != nil {
		return err
	}
	branch.SetForkPoint(&forkHash, forkHeight)

	blocks := branch.Blocks()
	for i, branchBlock := range blocks {
		if o.stopped.Load() {
			return chain.ErrServiceStopped
		}
		if err := o.validate(branch, i); err != nil {
			if _, ok := validate.RuleErrorCode(err); ok {
				o.invalidate(blocks[i:])
				log.Infof("Rejected block %v at height %d: %v",
					branchBlock.Hash(), branchBlock.Validation.Height,
					err)
			}
			return err
		}
	}

	work := branch.Work()
	mainWork, err := o.cfg.Chain.BranchWork(work, forkHeight)
	if err != nil {
		return err
	}
	if work.Cmp(mainWork) <= 0 {
		o.cfg.Pool.Add(block)
		o.cfg.Pool.Prune(o.topHeight())
		str := fmt.Sprintf("block %v branch work %v does not exceed "+
			"main chain work %v above height %d", hash, work, mainWork,
			forkHeight)
		return ruleError(validate.ErrInsufficientWork, str)
	}
	if o.stopped.Load() {
		return chain.ErrServiceStopped
	}

	outgoing, err := o.cfg.Chain.Reorganize(branch.ForkPoint(), blocks)
	if err != nil {
		return err
	}

	incoming := make([]*btcutil.Block, len(blocks))
	for i, branchBlock := range blocks {
		incoming[i] = branchBlock.Block
	}

	o.cfg.Pool.Remove(blocks)
	o.cfg.Pool.AddAll(outgoing, forkHeight)
	o.cfg.Pool.Prune(branch.TopHeight())
	o.updateMempool(incoming, outgoing)

	if len(outgoing) > 0 {
		log.Infof("REORGANIZE: popped %d and pushed %d %s above height "+
			"%d, new tip %v at height %d", len(outgoing), len(blocks),
			pickNoun(len(blocks), "block", "blocks"), forkHeight, hash,
			branch.TopHeight())
	} else {
		log.Debugf("Extended the main chain to %v at height %d", hash,
			branch.TopHeight())
	}
	prometheusReorganizationDepth.Observe(float64(len(outgoing)))

	o.subscriber.Invoke(nil, &Reorganization{
		Fork:     branch.ForkPoint(),
		Incoming: incoming,
		Outgoing: outgoing,
	})
	return nil
}

// checkDuplicate rejects a block that is pooled or on the main chain.
func (o *BlockOrganizer) checkDuplicate(hash *chainhash.Hash) error {
	if o.cfg.Pool.Exists(hash) {
		str := fmt.Sprintf("already have block %v in the block pool", hash)
		return ruleError(validate.ErrDuplicateBlock, str)
	}
	_, err := o.cfg.Chain.BlockHeight(hash)
	switch {
	case err == nil:
		str := fmt.Sprintf("already have block %v", hash)
		return ruleError(validate.ErrDuplicateBlock, str)
	case errors.Is(err, chain.ErrNotFound):
		return nil
	default:
		return err
	}
}

// validate populates the state of the block at index on branch and runs the
// chain dependent checks and script verification.
func (o *BlockOrganizer) validate(branch *chain.Branch, index int) error {
	block := branch.Blocks()[index]
	state, err := o.cfg.ChainState.Populate(branch, index)
	if err != nil {
		return err
	}
	block.Validation.State = state
	for _, tx := range block.Txns() {
		tx.Validation.State = state
	}

	if err := o.cfg.Validator.Accept(block); err != nil {
		return err
	}
	return o.cfg.Validator.Connect(block)
}

// invalidate remembers blocks as invalid and drops them from the pool.  They
// are the first invalid block of a branch and its descendants.
func (o *BlockOrganizer) invalidate(blocks []*chain.Block) {
	for _, block := range blocks {
		o.invalid.Add(*block.Hash())
	}
	o.cfg.Pool.Remove(blocks)
}

// updateMempool removes the transactions confirmed by incoming from the
// memory pool along with those conflicting with them.  When blocks were
// popped the pool is rebuilt so their transactions get another chance.
func (o *BlockOrganizer) updateMempool(incoming, outgoing []*btcutil.Block) {
	var conflicts []chainhash.Hash
	for _, block := range incoming {
		for _, tx := range o.cfg.TxPool.RemoveBlock(block) {
			conflicts = append(conflicts, *tx.Hash())
		}
	}
	if len(conflicts) > 0 {
		err := o.cfg.Store.RemoveUnconfirmed(conflicts)
		if err != nil {
			log.Errorf("Failed to remove %d conflicting unconfirmed "+
				"transactions: %v", len(conflicts), err)
		}
	}

	if len(outgoing) > 0 {
		if err := o.cfg.Transactions.Restore(); err != nil {
			log.Errorf("Failed to restore the memory pool: %v", err)
		}
	}
	prometheusMempoolSize.Set(float64(o.cfg.TxPool.Count()))
}

// topHeight returns the height of the main chain tip.
func (o *BlockOrganizer) topHeight() uint32 {
	return o.cfg.Chain.PoolState().Height - 1
}

// Subscribe registers handler for every reorganization, extensions of the
// main chain included.
func (o *BlockOrganizer) Subscribe(handler Handler[*Reorganization]) {
	o.subscriber.Subscribe(handler)
}

// Unsubscribe removes every reorganization subscription.
func (o *BlockOrganizer) Unsubscribe() {
	o.subscriber.Unsubscribe()
}

// Filter removes the blocks already in the block pool from msg.
func (o *BlockOrganizer) Filter(msg *wire.MsgGetData) {
	o.cfg.Pool.Filter(msg)
}
