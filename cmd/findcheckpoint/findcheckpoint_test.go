// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"testing"

	"github.com/btcsuite/btcchain/internal/chaintest"
	"github.com/stretchr/testify/require"
)

func TestFindCandidates(t *testing.T) {
	t.Parallel()

	h := chaintest.New(t)
	blocks := h.Mine(10)

	// Too shallow for the requested confirmations.
	_, err := findCandidates(h.Store, h.Params, 20, 5)
	require.Error(t, err)

	// The harness spaces blocks ten minutes apart, so every confirmed
	// block but the genesis block qualifies, searched from the top down.
	candidates, err := findCandidates(h.Store, h.Params, 3, 4)
	require.NoError(t, err)
	require.Len(t, candidates, 4)
	for i, candidate := range candidates {
		height := 7 - i
		require.EqualValues(t, height, candidate.Height)
		require.Equal(t, blocks[height-1].Hash(), candidate.Hash)
	}

	candidates, err = findCandidates(h.Store, h.Params, 3, 20)
	require.NoError(t, err)
	require.Len(t, candidates, 7)
}
