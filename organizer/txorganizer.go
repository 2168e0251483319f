// Copyright (c) 2016-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package organizer

import (
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcchain/chain"
	"github.com/btcsuite/btcchain/database"
	"github.com/btcsuite/btcchain/mempool"
	"github.com/btcsuite/btcchain/validate"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/decred/dcrd/lru"
)

// DefaultRejectCacheSize is the number of transactions that failed the
// context free checks remembered by default.
const DefaultRejectCacheSize = 1000

// TxConfig is a descriptor which specifies the transaction organizer
// instance configuration.
type TxConfig struct {
	// Chain receives pushed transactions and supplies the pool state.
	Chain FastChain

	// Store is read when the pool is restored from the unconfirmed table.
	Store database.Store

	// Validator checks, accepts and connects transactions.
	Validator *validate.TxValidator

	// Pool is the memory pool accepted transactions are added to.
	Pool *mempool.TxPool

	// Policy is the fee and dust policy enforced between accept and
	// connect.
	Policy *validate.Policy

	// Gate is shared with the block organizer.  Transactions take its low
	// priority side.
	Gate *PrioritizedMutex

	// Dispatcher runs the organization pipeline.
	Dispatcher *Dispatcher

	// RejectCacheSize is the number of transaction hashes that failed the
	// context free checks to remember.
	RejectCacheSize uint
}

// TxOrganizer validates loose transactions and integrates the valid ones into
// the memory pool and the store.
type TxOrganizer struct {
	cfg        TxConfig
	stopped    atomic.Bool
	rejected   lru.Cache
	subscriber *Subscriber[*btcutil.Tx]
}

// NewTxOrganizer returns a stopped transaction organizer.
func NewTxOrganizer(cfg *TxConfig) *TxOrganizer {
	initPrometheusMetrics()

	cacheSize := cfg.RejectCacheSize
	if cacheSize == 0 {
		cacheSize = DefaultRejectCacheSize
	}
	o := &TxOrganizer{
		cfg:        *cfg,
		rejected:   lru.NewCache(cacheSize),
		subscriber: NewSubscriber[*btcutil.Tx](),
	}
	o.stopped.Store(true)
	return o
}

// Start accepts transactions and subscriptions.
func (o *TxOrganizer) Start() {
	o.stopped.Store(false)
	o.subscriber.Start()
}

// Stop refuses further transactions and notifies subscribers of the
// shutdown.  Pipelines in flight stop at their next stage.
func (o *TxOrganizer) Stop() {
	o.stopped.Store(true)
	o.subscriber.Stop()
}

// Stopped reports whether the organizer refuses transactions.
func (o *TxOrganizer) Stopped() bool {
	return o.stopped.Load()
}

// Organize validates tx against the pool state and, when it is valid, adds it
// to the memory pool, pushes it to the store and notifies subscribers.  The
// caller blocks until the pipeline completes.
func (o *TxOrganizer) Organize(tx *chain.Tx) error {
	return o.run(tx)
}

// Validate runs the validation stages of Organize without changing any
// state.  A transaction conflicting with the memory pool is reported as a
// double spend.
func (o *TxOrganizer) Validate(tx *chain.Tx) error {
	tx.Validation.Simulate = true
	return o.run(tx)
}

func (o *TxOrganizer) run(tx *chain.Tx) error {
	o.cfg.Gate.LockLowPriority()
	if o.stopped.Load() {
		o.cfg.Gate.UnlockLowPriority()
		return chain.ErrServiceStopped
	}

	done := make(chan error, 1)
	err := o.cfg.Dispatcher.Submit(func() {
		done <- o.organize(tx)
	})
	if err == nil {
		err = <-done
	}
	o.cfg.Gate.UnlockLowPriority()
	return err
}

// organize runs the pipeline and records its outcome.
func (o *TxOrganizer) organize(tx *chain.Tx) error {
	stage := TxReceived
	err := o.process(tx, &stage)

	prometheusOrganizedTransactions.WithLabelValues(stage.String(),
		resultLabel(err)).Inc()
	if err != nil {
		log.Debugf("Rejected transaction %v after stage %v: %v", tx.Hash(),
			stage, err)
	}
	return err
}

func (o *TxOrganizer) process(tx *chain.Tx, stage *TxStage) error {
	hash := tx.Hash()
	if o.rejected.Contains(*hash) {
		str := fmt.Sprintf("transaction %v previously failed validation",
			hash)
		return ruleError(validate.ErrKnownInvalid, str)
	}

	if err := o.cfg.Validator.Check(tx); err != nil {
		if _, ok := validate.RuleErrorCode(err); ok {
			o.rejected.Add(*hash)
		}
		return err
	}
	*stage = TxChecked
	if o.stopped.Load() {
		return chain.ErrServiceStopped
	}

	tx.Validation.State = o.cfg.Chain.PoolState()
	if err := o.cfg.Validator.Accept(tx); err != nil {
		return err
	}
	// Dusty outputs are rejected whatever the fee.
	if err := o.cfg.Policy.CheckDust(tx); err != nil {
		return err
	}
	if err := o.cfg.Policy.CheckFee(tx); err != nil {
		return err
	}
	*stage = TxAccepted
	if o.stopped.Load() {
		return chain.ErrServiceStopped
	}

	if err := o.cfg.Validator.Connect(tx); err != nil {
		return err
	}
	*stage = TxConnected
	if tx.Validation.Simulate {
		return o.cfg.Pool.CheckDoubleSpend(tx.Tx)
	}
	if o.stopped.Load() {
		return chain.ErrServiceStopped
	}

	if _, err := o.cfg.Pool.Add(tx); err != nil {
		return err
	}
	if err := o.cfg.Chain.Push(tx); err != nil {
		log.Criticalf("Failed to push transaction %v, store is now "+
			"corrupted: %v", hash, err)
		o.cfg.Pool.RemoveTransaction(tx.Tx, false)
		return fmt.Errorf("%w: push transaction %v: %v",
			chain.ErrOperationFailed, hash, err)
	}
	*stage = TxPushed
	prometheusMempoolSize.Set(float64(o.cfg.Pool.Count()))

	log.Debugf("Accepted transaction %v (pool size: %d)", hash,
		o.cfg.Pool.Count())
	o.subscriber.Invoke(nil, tx.Tx)
	return nil
}

// Restore rebuilds the memory pool from the unconfirmed transactions of the
// store, validating each against the current pool state.  Transactions that
// are no longer valid are dropped from the store.  The caller must hold the
// gate or call it before the organizer is started.
func (o *TxOrganizer) Restore() error {
	o.cfg.Pool.Clear()

	var records []*database.TxRecord
	err := o.cfg.Store.ForEachUnconfirmed(func(record *database.TxRecord) bool {
		records = append(records, record)
		return true
	})
	if err != nil {
		return err
	}

	// Parents were pushed before their children.
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Height != records[j].Height {
			return records[i].Height < records[j].Height
		}
		return records[i].Arrival.Before(records[j].Arrival)
	})

	state := o.cfg.Chain.PoolState()
	var stale []chainhash.Hash
	for _, record := range records {
		tx := chain.NewTx(record.Tx)
		tx.Validation.State = state
		err := o.restore(tx)
		if err == nil {
			continue
		}
		if _, ok := validate.RuleErrorCode(err); !ok {
			return err
		}
		log.Debugf("Dropping unconfirmed transaction %v: %v", tx.Hash(),
			err)
		stale = append(stale, *tx.Hash())
	}
	if len(stale) > 0 {
		if err := o.cfg.Store.RemoveUnconfirmed(stale); err != nil {
			return err
		}
	}

	count := o.cfg.Pool.Count()
	prometheusMempoolSize.Set(float64(count))
	log.Infof("Restored %d unconfirmed %s, dropped %d", count,
		pickNoun(count, "transaction", "transactions"), len(stale))
	return nil
}

func (o *TxOrganizer) restore(tx *chain.Tx) error {
	if err := o.cfg.Validator.Check(tx); err != nil {
		return err
	}
	if err := o.cfg.Validator.Reaccept(tx); err != nil {
		return err
	}
	if err := o.cfg.Policy.CheckDust(tx); err != nil {
		return err
	}
	if err := o.cfg.Policy.CheckFee(tx); err != nil {
		return err
	}
	if err := o.cfg.Validator.Connect(tx); err != nil {
		return err
	}
	_, err := o.cfg.Pool.Add(tx)
	return err
}

// Subscribe registers handler for every accepted transaction.
func (o *TxOrganizer) Subscribe(handler Handler[*btcutil.Tx]) {
	o.subscriber.Subscribe(handler)
}

// Unsubscribe removes every transaction subscription.
func (o *TxOrganizer) Unsubscribe() {
	o.subscriber.Unsubscribe()
}

// FetchTemplate returns the ranked template candidates of the memory pool.
func (o *TxOrganizer) FetchTemplate() []*mempool.TxDesc {
	start := time.Now()
	template := o.cfg.Pool.Template()
	prometheusFetchTemplate.Observe(time.Since(start).Seconds())
	return template
}

// FetchInventory returns an inventory of at most countLimit pooled
// transactions paying at least minimumFee satoshi per kilobyte, highest fee
// rate first.  A zero countLimit is unlimited.
func (o *TxOrganizer) FetchInventory(countLimit int, minimumFee int64) *wire.MsgInv {
	descs := o.cfg.Pool.Inventory(countLimit, minimumFee)
	msg := wire.NewMsgInvSizeHint(uint(len(descs)))
	for _, desc := range descs {
		iv := wire.NewInvVect(wire.InvTypeTx, desc.Tx.Hash())
		if err := msg.AddInvVect(iv); err != nil {
			break
		}
	}
	return msg
}

// Filter removes the transactions already in the memory pool from msg.
func (o *TxOrganizer) Filter(msg *wire.MsgGetData) {
	kept := msg.InvList[:0]
	for _, iv := range msg.InvList {
		isTx := iv.Type == wire.InvTypeTx || iv.Type == wire.InvTypeWitnessTx
		if isTx && o.cfg.Pool.HaveTransaction(&iv.Hash) {
			continue
		}
		kept = append(kept, iv)
	}
	msg.InvList = kept
}
