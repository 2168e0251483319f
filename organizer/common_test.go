// Copyright (c) 2016-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package organizer

import (
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/btcsuite/btcchain/chain"
	"github.com/btcsuite/btcchain/database"
	"github.com/btcsuite/btcchain/database/chaindb"
	"github.com/btcsuite/btcchain/internal/chaintest"
	"github.com/btcsuite/btcchain/mempool"
	"github.com/btcsuite/btcchain/mining"
	"github.com/btcsuite/btcchain/populate"
	"github.com/btcsuite/btcchain/validate"
	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/stretchr/testify/require"
)

// errPushFailed is returned by a test chain configured to fail pushes.
var errPushFailed = errors.New("push failed")

// testChain implements FastChain directly over a store.
type testChain struct {
	store     *chaindb.Store
	populator *populate.ChainState

	mtx      sync.RWMutex
	state    *chain.State
	failPush bool
}

func (c *testChain) PoolState() *chain.State {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	return c.state
}

func (c *testChain) BlockHeight(hash *chainhash.Hash) (uint32, error) {
	record, err := c.store.BlockByHash(hash)
	if database.IsNotFound(err) {
		return 0, chain.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return record.Height, nil
}

func (c *testChain) BranchWork(maximum *big.Int, fromHeight uint32) (*big.Int, error) {
	top, err := c.store.TopHeight()
	if err != nil {
		return nil, err
	}
	work := new(big.Int)
	for height := top; height > fromHeight; height-- {
		record, err := c.store.BlockByHeight(height)
		if err != nil {
			return nil, err
		}
		work.Add(work, blockchain.CalcWork(record.Header.Bits))
	}
	return work, nil
}

func (c *testChain) Push(tx *chain.Tx) error {
	c.mtx.RLock()
	fail := c.failPush
	c.mtx.RUnlock()
	if fail {
		return errPushFailed
	}
	return c.store.Push(tx.Tx, tx.Validation.State.Height-1)
}

func (c *testChain) Reorganize(fork chain.Checkpoint,
	incoming []*chain.Block) ([]*btcutil.Block, error) {

	blocks := make([]*btcutil.Block, len(incoming))
	for i, block := range incoming {
		blocks[i] = block.Block
	}
	outgoing, err := c.store.Reorganize(&fork.Hash, fork.Height, blocks)
	if err != nil {
		return nil, err
	}

	top := incoming[len(incoming)-1]
	c.mtx.Lock()
	c.state = c.populator.Promote(top.Validation.State, &top.MsgBlock().Header)
	c.mtx.Unlock()
	return outgoing, nil
}

// refresh derives the pool state from the store after blocks were mined
// around the organizers.
func (c *testChain) refresh(t *testing.T) {
	state, err := c.populator.PopulateTop()
	require.NoError(t, err)
	c.mtx.Lock()
	c.state = state
	c.mtx.Unlock()
}

// orgHarness wires both organizers over a chain harness.
type orgHarness struct {
	*chaintest.Harness

	t            *testing.T
	chain        *testChain
	txPool       *mempool.TxPool
	blockPool    *BlockPool
	transactions *TxOrganizer
	blocks       *BlockOrganizer
}

// newOrgHarness returns started organizers over a store holding blocks mined
// on top of genesis.
func newOrgHarness(t *testing.T, blocks int) *orgHarness {
	harness := chaintest.New(t)
	harness.Mine(blocks)

	populator := populate.NewChainState(harness.Store, harness.Params,
		chain.DefaultForkHeights(harness.Params), chain.AllRules)
	fastChain := &testChain{store: harness.Store, populator: populator}
	fastChain.refresh(t)

	timeSource := blockchain.NewMedianTime()
	sigCache := txscript.NewSigCache(100)
	gate := &PrioritizedMutex{}
	dispatcher := NewDispatcher(2)
	t.Cleanup(dispatcher.Stop)

	txPool := mempool.New(&mempool.Config{
		TemplateMaxBytes:  mining.DefaultTemplateMaxBytes,
		TemplateMaxSigOps: mining.DefaultTemplateMaxSigOps,
	})
	blockPool := NewBlockPool(10)
	transactions := NewTxOrganizer(&TxConfig{
		Chain: fastChain,
		Store: harness.Store,
		Validator: validate.NewTxValidator(harness.Params, harness.Store,
			timeSource, sigCache, 2),
		Pool: txPool,
		Policy: &validate.Policy{
			ByteFee:       1,
			SigOpFee:      100,
			MinimumOutput: 500,
		},
		Gate:       gate,
		Dispatcher: dispatcher,
	})
	blockOrganizer := NewBlockOrganizer(&BlockConfig{
		Chain: fastChain,
		Store: harness.Store,
		Validator: validate.NewBlockValidator(harness.Params, harness.Store,
			populator, timeSource, sigCache, 2),
		ChainState:   populator,
		Pool:         blockPool,
		TxPool:       txPool,
		Transactions: transactions,
		Gate:         gate,
		Dispatcher:   dispatcher,
	})
	transactions.Start()
	blockOrganizer.Start()

	return &orgHarness{
		Harness:      harness,
		t:            t,
		chain:        fastChain,
		txPool:       txPool,
		blockPool:    blockPool,
		transactions: transactions,
		blocks:       blockOrganizer,
	}
}

// coinbaseOut returns the coinbase output of the main chain block at height.
func (h *orgHarness) coinbaseOut(height uint32) chaintest.SpendableOutput {
	block, err := h.Store.FullBlock(height)
	require.NoError(h.t, err)
	return chaintest.TxOut(block.Transactions()[0], 0)
}

// spendCoinbase returns a signed transaction spending the coinbase at height
// into numOutputs outputs, paying fee.
func (h *orgHarness) spendCoinbase(height uint32, numOutputs uint32,
	fee btcutil.Amount) *btcutil.Tx {

	return h.CreateSignedTx([]chaintest.SpendableOutput{h.coinbaseOut(height)},
		numOutputs, fee)
}

// organizeTx submits tx to the transaction organizer.
func (h *orgHarness) organizeTx(tx *btcutil.Tx) error {
	return h.transactions.Organize(chain.NewTx(tx))
}

// organizeBlock submits block to the block organizer.
func (h *orgHarness) organizeBlock(block *btcutil.Block) error {
	return h.blocks.Organize(chain.NewBlock(block))
}

// topHeight returns the height of the store tip.
func (h *orgHarness) topHeight() uint32 {
	top, err := h.Store.TopHeight()
	require.NoError(h.t, err)
	return top
}

// requireRuleError fails unless err is a rule error with code.
func requireRuleError(t *testing.T, err error, code validate.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	got, ok := validate.RuleErrorCode(err)
	require.True(t, ok, "not a rule error: %v", err)
	require.Equal(t, code, got, "unexpected error: %v", err)
}
