// Copyright (c) 2014-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"github.com/btcsuite/btcchain/chain"
	"github.com/btcsuite/btcchain/database"
	"github.com/btcsuite/btcchain/mempool"
	"github.com/btcsuite/btcchain/mining"
	"github.com/btcsuite/btcchain/validate"
	btcdchain "github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// maxMempoolScan is the number of unconfirmed transactions FetchMempoolAll
// examines at most.
const maxMempoolScan = 35000

// FetchMempool returns an inventory of at most countLimit pooled
// transactions paying at least minimumFee satoshi per kilobyte.  A zero
// countLimit is unlimited.
func (b *BlockChain) FetchMempool(countLimit int, minimumFee int64) (*wire.MsgInv, error) {
	if err := b.isStopped(); err != nil {
		return nil, err
	}
	return b.transactions.FetchInventory(countLimit, minimumFee), nil
}

// FetchTemplate returns the ranked template candidates of the memory pool,
// highest fee rate first.
func (b *BlockChain) FetchTemplate() ([]*mempool.TxDesc, error) {
	if err := b.isStopped(); err != nil {
		return nil, err
	}
	return b.transactions.FetchTemplate(), nil
}

// FetchMempoolAll packs the unconfirmed transactions of the store into a
// template of at most maxBytes.  Transactions that are not final in the next
// block, spend outputs that are missing or spent on the main chain, are
// not standard or conflict with a transaction examined earlier are skipped.
// Transactions whose unconfirmed parents were not packed are dropped and
// parents precede their children in the result.
func (b *BlockChain) FetchMempoolAll(maxBytes int) ([]*mining.TxCandidate, error) {
	if err := b.isStopped(); err != nil {
		return nil, err
	}

	var records []*database.TxRecord
	err := b.store.ForEachUnconfirmed(func(record *database.TxRecord) bool {
		records = append(records, record)
		return len(records) < maxMempoolScan
	})
	if err != nil {
		return nil, err
	}

	unconfirmed := make(map[chainhash.Hash]struct{}, len(records))
	for _, record := range records {
		unconfirmed[*record.Tx.Hash()] = struct{}{}
	}

	state := b.PoolState()
	lockTime := validate.LockTimeFor(state, b.timeSource.AdjustedTime())

	spent := mining.NewSpentSet()
	candidates := make([]*mining.TxCandidate, 0, len(records))
	for _, record := range records {
		if !btcdchain.IsFinalizedTransaction(record.Tx, int32(state.Height),
			lockTime) {

			continue
		}

		tx := chain.NewTx(record.Tx)
		tx.Validation.State = state
		usable, err := b.spendsUnspent(tx)
		if err != nil {
			return nil, err
		}
		if !usable || validate.CheckStandard(tx) != nil {
			continue
		}
		msgTx := record.Tx.MsgTx()
		if spent.Conflicts(msgTx) {
			continue
		}
		sigOps, err := validate.CountSigOps(tx, state.IsEnabled(chain.Bip16Rule))
		if err != nil {
			continue
		}
		spent.Add(msgTx)

		candidates = append(candidates, &mining.TxCandidate{
			Tx:     record.Tx,
			Fee:    tx.TotalInput() - tx.TotalOutput(),
			Size:   tx.Validation.Size,
			SigOps: sigOps,
		})
	}

	log.Debugf("Packing %d of %d unconfirmed transactions", len(candidates),
		len(records))
	packed := mining.PackTemplate(candidates, maxBytes)
	return dependencyOrder(packed, unconfirmed), nil
}

// dependencyOrder drops the packed transactions spending outputs of
// unconfirmed transactions that were not packed and moves every parent ahead
// of its children.  The fee rate order is kept otherwise.
func dependencyOrder(packed []*mining.TxCandidate,
	unconfirmed map[chainhash.Hash]struct{}) []*mining.TxCandidate {

	selected := make(map[chainhash.Hash]*mining.TxCandidate, len(packed))
	for _, candidate := range packed {
		selected[*candidate.Tx.Hash()] = candidate
	}

	// Dropping a child orphans its own children, so repeat until stable.
	for changed := true; changed; {
		changed = false
		for _, candidate := range packed {
			hash := *candidate.Tx.Hash()
			if _, ok := selected[hash]; !ok {
				continue
			}
			for _, txIn := range candidate.Tx.MsgTx().TxIn {
				parent := txIn.PreviousOutPoint.Hash
				_, pending := unconfirmed[parent]
				_, packedParent := selected[parent]
				if pending && !packedParent {
					delete(selected, hash)
					changed = true
					break
				}
			}
		}
	}

	ordered := make([]*mining.TxCandidate, 0, len(selected))
	emitted := make(map[chainhash.Hash]struct{}, len(selected))
	var emit func(candidate *mining.TxCandidate)
	emit = func(candidate *mining.TxCandidate) {
		hash := *candidate.Tx.Hash()
		if _, done := emitted[hash]; done {
			return
		}
		emitted[hash] = struct{}{}
		for _, txIn := range candidate.Tx.MsgTx().TxIn {
			if parent, ok := selected[txIn.PreviousOutPoint.Hash]; ok {
				emit(parent)
			}
		}
		ordered = append(ordered, candidate)
	}
	for _, candidate := range packed {
		if _, ok := selected[*candidate.Tx.Hash()]; ok {
			emit(candidate)
		}
	}
	return ordered
}

// spendsUnspent populates the previous outputs of tx and reports whether each
// of them exists and is not spent on the main chain.
func (b *BlockChain) spendsUnspent(tx *chain.Tx) (bool, error) {
	if err := b.prevouts.Transaction(tx); err != nil {
		return false, err
	}
	for _, prevout := range tx.Validation.Prevouts {
		if prevout == nil || prevout.Spent() {
			return false, nil
		}
	}
	return true, nil
}
