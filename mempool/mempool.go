// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcchain/chain"
	"github.com/btcsuite/btcchain/mining"
	"github.com/btcsuite/btcchain/validate"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// Config is a descriptor containing the memory pool configuration.
type Config struct {
	// TemplateMaxBytes is the byte budget of the ranked template.
	TemplateMaxBytes int

	// TemplateMaxSigOps is the signature operation budget of the ranked
	// template.
	TemplateMaxSigOps int
}

// TxDesc is a descriptor containing a transaction in the mempool along with
// additional metadata.
type TxDesc struct {
	// Tx is the transaction associated with the entry.
	Tx *btcutil.Tx

	// Added is the time when the entry was added to the pool.
	Added time.Time

	// Height is the height of the block the transaction was validated
	// for, one past the tip at the time.
	Height uint32

	// Fee is the total fee the transaction associated with the entry pays.
	Fee int64

	// Size is the serialized size of the transaction.
	Size int

	// SigOps is the signature operation count of the transaction.
	SigOps int

	// FeePerKB is the fee the transaction pays in satoshi per 1000 bytes.
	FeePerKB int64

	// Standard is the cached standardness of the transaction.
	Standard bool

	// seq orders entries by admission.
	seq uint64
}

func (d *TxDesc) candidate() *mining.TxCandidate {
	return &mining.TxCandidate{
		Tx:     d.Tx,
		Fee:    d.Fee,
		Size:   d.Size,
		SigOps: d.SigOps,
	}
}

// TxPool holds the transactions accepted into the chain but not confirmed yet
// together with the outpoints they spend.  Every entry is also offered to a
// ranked template.  It is safe for concurrent access.
type TxPool struct {
	// The following variables must only be used atomically.
	lastUpdated int64 // last time pool was updated

	mtx       sync.RWMutex
	cfg       Config
	pool      map[chainhash.Hash]*TxDesc
	outpoints map[wire.OutPoint]*btcutil.Tx
	nextSeq   uint64

	template *mining.PartiallyIndexed[*mining.TxCandidate]
}

// New returns an empty memory pool.
func New(cfg *Config) *TxPool {
	mp := &TxPool{
		cfg:       *cfg,
		pool:      make(map[chainhash.Hash]*TxDesc),
		outpoints: make(map[wire.OutPoint]*btcutil.Tx),
	}
	mp.template = mp.newTemplate()
	return mp
}

func (mp *TxPool) newTemplate() *mining.PartiallyIndexed[*mining.TxCandidate] {
	policy := mining.NewTemplatePolicy(mp.cfg.TemplateMaxBytes,
		mp.cfg.TemplateMaxSigOps)
	return mining.NewPartiallyIndexed[*mining.TxCandidate](policy)
}

// rebuildTemplate offers every remaining entry to a fresh template in
// admission order.
//
// This function MUST be called with the mempool lock held (for writes).
func (mp *TxPool) rebuildTemplate() {
	descs := make([]*TxDesc, 0, len(mp.pool))
	for _, desc := range mp.pool {
		descs = append(descs, desc)
	}
	sort.Slice(descs, func(i, j int) bool {
		return descs[i].seq < descs[j].seq
	})

	mp.template = mp.newTemplate()
	for _, desc := range descs {
		mp.template.Insert(desc.candidate())
	}
}

// checkPoolDoubleSpend checks whether or not the passed transaction is
// attempting to spend coins already spent by other transactions in the pool.
// Every input is examined.
//
// This function MUST be called with the mempool lock held (for reads).
func (mp *TxPool) checkPoolDoubleSpend(tx *btcutil.Tx) error {
	for _, txIn := range tx.MsgTx().TxIn {
		if txR, exists := mp.outpoints[txIn.PreviousOutPoint]; exists {
			str := fmt.Sprintf("output %v already spent by "+
				"transaction %v in the memory pool",
				txIn.PreviousOutPoint, txR.Hash())
			return validate.RuleError{
				ErrorCode:   validate.ErrDoubleSpendMempool,
				Description: str,
			}
		}
	}

	return nil
}

// Add inserts a fully validated transaction along with the figures recorded
// while it was validated.  It fails when the transaction is already pooled or
// spends an outpoint spent by a pooled transaction.
//
// This function is safe for concurrent access.
func (mp *TxPool) Add(tx *chain.Tx) (*TxDesc, error) {
	mp.mtx.Lock()
	defer mp.mtx.Unlock()

	hash := tx.Hash()
	if _, exists := mp.pool[*hash]; exists {
		str := fmt.Sprintf("already have transaction %v", hash)
		return nil, validate.RuleError{
			ErrorCode:   validate.ErrDuplicateTx,
			Description: str,
		}
	}
	if err := mp.checkPoolDoubleSpend(tx.Tx); err != nil {
		return nil, err
	}

	var height uint32
	if tx.Validation.State != nil {
		height = tx.Validation.State.Height
	}
	desc := &TxDesc{
		Tx:       tx.Tx,
		Added:    time.Now(),
		Height:   height,
		Fee:      tx.Validation.Fee,
		Size:     tx.Validation.Size,
		SigOps:   tx.Validation.SigOps,
		Standard: tx.Validation.Standard,
		seq:      mp.nextSeq,
	}
	if desc.Size > 0 {
		desc.FeePerKB = desc.Fee * 1000 / int64(desc.Size)
	}
	mp.nextSeq++

	mp.pool[*hash] = desc
	for _, txIn := range tx.MsgTx().TxIn {
		mp.outpoints[txIn.PreviousOutPoint] = tx.Tx
	}
	mp.template.Insert(desc.candidate())
	atomic.StoreInt64(&mp.lastUpdated, time.Now().Unix())

	log.Debugf("Accepted transaction %v (pool size: %v)", hash, len(mp.pool))
	return desc, nil
}

// CheckDoubleSpend returns a rule error when tx spends an outpoint already
// spent by a pooled transaction.
//
// This function is safe for concurrent access.
func (mp *TxPool) CheckDoubleSpend(tx *btcutil.Tx) error {
	mp.mtx.RLock()
	defer mp.mtx.RUnlock()
	return mp.checkPoolDoubleSpend(tx)
}

// removeTransaction is the internal function which implements the public
// RemoveTransaction.  See the comment for RemoveTransaction for more details.
// The removed transactions are appended to removed.
//
// This function MUST be called with the mempool lock held (for writes).
func (mp *TxPool) removeTransaction(tx *btcutil.Tx, removeRedeemers bool,
	removed []*btcutil.Tx) []*btcutil.Tx {

	txHash := tx.Hash()
	if removeRedeemers {
		// Remove any transactions which rely on this one.
		for i := uint32(0); i < uint32(len(tx.MsgTx().TxOut)); i++ {
			prevOut := wire.OutPoint{Hash: *txHash, Index: i}
			if txRedeemer, exists := mp.outpoints[prevOut]; exists {
				removed = mp.removeTransaction(txRedeemer, true,
					removed)
			}
		}
	}

	// Remove the transaction if needed.
	if txDesc, exists := mp.pool[*txHash]; exists {
		// Mark the referenced outpoints as unspent by the pool.
		for _, txIn := range txDesc.Tx.MsgTx().TxIn {
			delete(mp.outpoints, txIn.PreviousOutPoint)
		}
		delete(mp.pool, *txHash)
		removed = append(removed, txDesc.Tx)
		atomic.StoreInt64(&mp.lastUpdated, time.Now().Unix())
	}
	return removed
}

// RemoveTransaction removes the passed transaction from the mempool. When the
// removeRedeemers flag is set, any transactions that redeem outputs from the
// removed transaction will also be removed recursively from the mempool, as
// they would otherwise become orphans.  The removed transactions are
// returned.
//
// This function is safe for concurrent access.
func (mp *TxPool) RemoveTransaction(tx *btcutil.Tx, removeRedeemers bool) []*btcutil.Tx {
	// Protect concurrent access.
	mp.mtx.Lock()
	defer mp.mtx.Unlock()

	removed := mp.removeTransaction(tx, removeRedeemers, nil)
	if len(removed) > 0 {
		mp.rebuildTemplate()
	}
	return removed
}

// RemoveBlock drops the transactions confirmed by block together with every
// pooled transaction spending an outpoint the block spends, and those
// relying on them.  The conflicting transactions are returned.
//
// This function is safe for concurrent access.
func (mp *TxPool) RemoveBlock(block *btcutil.Block) []*btcutil.Tx {
	mp.mtx.Lock()
	defer mp.mtx.Unlock()

	var confirmed, conflicts []*btcutil.Tx
	for _, tx := range block.Transactions()[1:] {
		confirmed = mp.removeTransaction(tx, false, confirmed)
		for _, txIn := range tx.MsgTx().TxIn {
			txRedeemer, ok := mp.outpoints[txIn.PreviousOutPoint]
			if ok && !txRedeemer.Hash().IsEqual(tx.Hash()) {
				conflicts = mp.removeTransaction(txRedeemer, true,
					conflicts)
			}
		}
	}
	if len(confirmed)+len(conflicts) > 0 {
		mp.rebuildTemplate()
		log.Debugf("Removed %d confirmed and %d conflicting "+
			"transactions for block %v", len(confirmed),
			len(conflicts), block.Hash())
	}
	return conflicts
}

// Clear empties the pool.
//
// This function is safe for concurrent access.
func (mp *TxPool) Clear() {
	mp.mtx.Lock()
	mp.pool = make(map[chainhash.Hash]*TxDesc)
	mp.outpoints = make(map[wire.OutPoint]*btcutil.Tx)
	mp.template = mp.newTemplate()
	atomic.StoreInt64(&mp.lastUpdated, time.Now().Unix())
	mp.mtx.Unlock()
}

// HaveTransaction returns whether or not the passed transaction is pooled.
//
// This function is safe for concurrent access.
func (mp *TxPool) HaveTransaction(hash *chainhash.Hash) bool {
	mp.mtx.RLock()
	_, exists := mp.pool[*hash]
	mp.mtx.RUnlock()

	return exists
}

// FetchTransaction returns the requested transaction from the pool.
//
// This function is safe for concurrent access.
func (mp *TxPool) FetchTransaction(txHash *chainhash.Hash) (*btcutil.Tx, error) {
	mp.mtx.RLock()
	txDesc, exists := mp.pool[*txHash]
	mp.mtx.RUnlock()

	if exists {
		return txDesc.Tx, nil
	}

	return nil, fmt.Errorf("transaction is not in the pool: %w",
		chain.ErrNotFound)
}

// Count returns the number of transactions in the pool.
//
// This function is safe for concurrent access.
func (mp *TxPool) Count() int {
	mp.mtx.RLock()
	count := len(mp.pool)
	mp.mtx.RUnlock()

	return count
}

// TxDescs returns a slice of descriptors for all the transactions in the pool
// by decreasing fee rate.  The descriptors are to be treated as read only.
//
// This function is safe for concurrent access.
func (mp *TxPool) TxDescs() []*TxDesc {
	mp.mtx.RLock()
	descs := make([]*TxDesc, 0, len(mp.pool))
	for _, desc := range mp.pool {
		descs = append(descs, desc)
	}
	mp.mtx.RUnlock()

	sort.Slice(descs, func(i, j int) bool {
		a, b := descs[i], descs[j]
		if cmp := mining.CompareFeeRate(a.Fee, a.Size, b.Fee, b.Size); cmp != 0 {
			return cmp > 0
		}
		return a.seq < b.seq
	})
	return descs
}

// Inventory returns up to countLimit transactions paying at least
// minimumFee per 1000 bytes, best paying first.  A zero countLimit means no
// limit.
//
// This function is safe for concurrent access.
func (mp *TxPool) Inventory(countLimit int, minimumFee int64) []*TxDesc {
	descs := mp.TxDescs()
	selected := descs[:0]
	for _, desc := range descs {
		if countLimit > 0 && len(selected) == countLimit {
			break
		}
		if desc.FeePerKB < minimumFee {
			continue
		}
		selected = append(selected, desc)
	}
	return selected
}

// Template returns the entries selected by the ranked template, best paying
// first.
//
// This function is safe for concurrent access.
func (mp *TxPool) Template() []*TxDesc {
	// Reading the candidates may sort them.
	mp.mtx.Lock()
	defer mp.mtx.Unlock()

	handles := mp.template.Candidates()
	descs := make([]*TxDesc, 0, len(handles))
	for _, h := range handles {
		candidate := mp.template.Get(h)
		if desc, ok := mp.pool[*candidate.Tx.Hash()]; ok {
			descs = append(descs, desc)
		}
	}
	return descs
}

// LastUpdated returns the last time a transaction was added to or removed from
// the pool.
//
// This function is safe for concurrent access.
func (mp *TxPool) LastUpdated() time.Time {
	return time.Unix(atomic.LoadInt64(&mp.lastUpdated), 0)
}
