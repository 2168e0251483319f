// Copyright (c) 2016-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package organizer

import (
	"testing"

	"github.com/btcsuite/btcchain/chain"
	"github.com/btcsuite/btcchain/validate"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

// subscribeReorganizations collects the reorganizations announced by h.
func subscribeReorganizations(h *orgHarness) *[]*Reorganization {
	var reorganizations []*Reorganization
	h.blocks.Subscribe(func(err error, reorg *Reorganization) bool {
		if err == nil && reorg != nil {
			reorganizations = append(reorganizations, reorg)
		}
		return true
	})
	return &reorganizations
}

// TestOrganizeBlockExtends ensures a block on top of the tip extends the
// main chain and confirms its pooled transactions.
func TestOrganizeBlockExtends(t *testing.T) {
	t.Parallel()

	h := newOrgHarness(t, 3)
	reorganizations := subscribeReorganizations(h)

	tx := h.spendCoinbase(1, 1, 1000)
	unrelated := h.spendCoinbase(2, 1, 1000)
	require.NoError(t, h.organizeTx(tx))
	require.NoError(t, h.organizeTx(unrelated))

	fork := h.Tip()
	block := h.NextBlock(fork, 1000, tx)
	require.NoError(t, h.organizeBlock(block))
	h.SetTip(block)

	require.Equal(t, uint32(4), h.topHeight())
	require.Equal(t, uint32(5), h.chain.PoolState().Height)
	require.Len(t, *reorganizations, 1)
	reorg := (*reorganizations)[0]
	require.Equal(t, chain.Checkpoint{Hash: *fork.Hash(), Height: 3}, reorg.Fork)
	require.Len(t, reorg.Incoming, 1)
	require.Empty(t, reorg.Outgoing)

	// The confirmed transaction left the pool, the other one stays.
	require.False(t, h.txPool.HaveTransaction(tx.Hash()))
	require.True(t, h.txPool.HaveTransaction(unrelated.Hash()))
	record, err := h.Store.Transaction(tx.Hash(), 4, true)
	require.NoError(t, err)
	require.True(t, record.Confirmed())

	requireRuleError(t, h.organizeBlock(block), validate.ErrDuplicateBlock)
}

// TestOrganizeBlockOrphan ensures blocks with an unknown parent are pooled
// and connected once a descendant arrives with the gap filled.
func TestOrganizeBlockOrphan(t *testing.T) {
	t.Parallel()

	h := newOrgHarness(t, 1)
	reorganizations := subscribeReorganizations(h)

	b1 := h.NextBlock(h.Tip(), 0)
	b2 := h.NextBlock(b1, 0)
	b3 := h.NextBlock(b2, 0)

	requireRuleError(t, h.organizeBlock(b2), validate.ErrOrphanBlock)
	require.True(t, h.blockPool.Exists(b2.Hash()))
	requireRuleError(t, h.organizeBlock(b2), validate.ErrDuplicateBlock)

	require.NoError(t, h.organizeBlock(b1))
	require.Equal(t, uint32(2), h.topHeight())

	// The pooled orphan is connected along with its child.
	require.NoError(t, h.organizeBlock(b3))
	require.Equal(t, uint32(4), h.topHeight())
	require.False(t, h.blockPool.Exists(b2.Hash()))
	require.Len(t, *reorganizations, 2)
	require.Len(t, (*reorganizations)[1].Incoming, 2)
	require.Equal(t, b2.Hash(), (*reorganizations)[1].Incoming[0].Hash())

	getData := wire.NewMsgGetData()
	require.NoError(t, getData.AddInvVect(wire.NewInvVect(wire.InvTypeBlock, b3.Hash())))
	h.blocks.Filter(getData)
	require.Len(t, getData.InvList, 1)
}

// TestOrganizeBlockReorganize ensures a side chain with more work replaces
// the main chain and the popped transactions return to the pool.
func TestOrganizeBlockReorganize(t *testing.T) {
	t.Parallel()

	h := newOrgHarness(t, 3)
	reorganizations := subscribeReorganizations(h)
	fork := h.Tip()

	tx := h.spendCoinbase(1, 1, 1000)
	m1 := h.NextBlock(fork, 1000, tx)
	require.NoError(t, h.organizeBlock(m1))

	// Equal work is not enough.
	s1 := h.NextBlock(fork, 0)
	requireRuleError(t, h.organizeBlock(s1), validate.ErrInsufficientWork)
	require.True(t, h.blockPool.Exists(s1.Hash()))
	require.Equal(t, *m1.Hash(), h.chain.PoolState().ParentHash)

	s2 := h.NextBlock(s1, 0)
	require.NoError(t, h.organizeBlock(s2))
	require.Equal(t, uint32(5), h.topHeight())
	hash, err := h.Store.BlockHash(4)
	require.NoError(t, err)
	require.Equal(t, *s1.Hash(), hash)

	require.Len(t, *reorganizations, 2)
	reorg := (*reorganizations)[1]
	require.Equal(t, uint32(3), reorg.Fork.Height)
	require.Len(t, reorg.Incoming, 2)
	require.Len(t, reorg.Outgoing, 1)
	require.Equal(t, m1.Hash(), reorg.Outgoing[0].Hash())

	// The popped block is pooled and its transaction is pending again.
	require.True(t, h.blockPool.Exists(m1.Hash()))
	require.False(t, h.blockPool.Exists(s1.Hash()))
	require.True(t, h.txPool.HaveTransaction(tx.Hash()))
}

// TestOrganizeBlockInvalid ensures an invalid block is rejected and
// remembered.
func TestOrganizeBlockInvalid(t *testing.T) {
	t.Parallel()

	h := newOrgHarness(t, 2)

	// The coinbase claims fees that no transaction pays.
	greedy := h.NextBlock(h.Tip(), 1000)
	requireRuleError(t, h.organizeBlock(greedy), validate.ErrBadCoinbaseValue)
	requireRuleError(t, h.organizeBlock(greedy), validate.ErrKnownInvalid)
	require.Equal(t, uint32(2), h.topHeight())

	// Context free failures are remembered too.
	empty := btcutil.NewBlock(wire.NewMsgBlock(&wire.BlockHeader{
		PrevBlock: *h.Tip().Hash(),
		Bits:      h.Tip().MsgBlock().Header.Bits,
	}))
	err := h.organizeBlock(empty)
	require.Error(t, err)
	_, isRule := validate.RuleErrorCode(err)
	require.True(t, isRule)
	requireRuleError(t, h.organizeBlock(empty), validate.ErrKnownInvalid)
}

// TestBlockOrganizerStop ensures a stopped organizer refuses blocks.
func TestBlockOrganizerStop(t *testing.T) {
	t.Parallel()

	h := newOrgHarness(t, 1)
	var errs []error
	h.blocks.Subscribe(func(err error, _ *Reorganization) bool {
		errs = append(errs, err)
		return true
	})

	h.blocks.Stop()
	require.True(t, h.blocks.Stopped())
	require.Equal(t, []error{chain.ErrServiceStopped}, errs)
	err := h.organizeBlock(h.NextBlock(h.Tip(), 0))
	require.ErrorIs(t, err, chain.ErrServiceStopped)
}

// TestUnsubscribe ensures unsubscription delivers a final empty
// notification.
func TestUnsubscribe(t *testing.T) {
	t.Parallel()

	h := newOrgHarness(t, 1)
	var calls int
	var last *Reorganization
	h.blocks.Subscribe(func(err error, reorg *Reorganization) bool {
		require.NoError(t, err)
		calls++
		last = reorg
		return true
	})
	h.blocks.Unsubscribe()
	require.Equal(t, 1, calls)
	require.Nil(t, last)

	require.NoError(t, h.organizeBlock(h.NextBlock(h.Tip(), 0)))
	require.Equal(t, 1, calls)
}

// TestBlockPool exercises the pool bookkeeping on its own.
func TestBlockPool(t *testing.T) {
	t.Parallel()

	h := newOrgHarness(t, 1)
	pool := NewBlockPool(2)

	b1 := chain.NewBlock(h.NextBlock(h.Tip(), 0))
	b2 := chain.NewBlock(h.NextBlock(b1.Block, 0))
	b3 := chain.NewBlock(h.NextBlock(b2.Block, 0))
	pool.Add(b1)
	pool.Add(b2)
	require.Equal(t, 2, pool.Size())

	branch := pool.GetPath(b3)
	require.Equal(t, 3, branch.Size())
	require.Equal(t, b1.Hash(), branch.Blocks()[0].Hash())
	require.Equal(t, b3.Hash(), branch.Top().Hash())

	// Capacity evicts the oldest entry.
	pool.Add(b3)
	pool.Prune(0)
	require.Equal(t, 2, pool.Size())
	require.False(t, pool.Exists(b1.Hash()))

	// Blocks of known height are dropped once deep enough.
	pool.Remove([]*chain.Block{b2, b3})
	pool.AddAll([]*btcutil.Block{b1.Block}, 1)
	pool.Prune(2 + blockPoolMaxDepth - 1)
	require.True(t, pool.Exists(b1.Hash()))
	pool.Prune(2 + blockPoolMaxDepth)
	require.Zero(t, pool.Size())

	unknown := chainhash.Hash{0x03}
	getData := wire.NewMsgGetData()
	require.NoError(t, getData.AddInvVect(wire.NewInvVect(wire.InvTypeBlock, &unknown)))
	pool.Filter(getData)
	require.Len(t, getData.InvList, 1)
}
