// Copyright (c) 2016-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package organizer

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/btcsuite/btcchain/chain"
	"github.com/stretchr/testify/require"
)

// TestDispatcher ensures submitted jobs run and a stopped dispatcher refuses
// new ones.
func TestDispatcher(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(3)
	var (
		ran atomic.Int32
		wg  sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		require.NoError(t, d.Submit(func() {
			defer wg.Done()
			ran.Add(1)
		}))
	}
	wg.Wait()
	require.Equal(t, int32(20), ran.Load())

	d.Stop()
	err := d.Submit(func() { ran.Add(1) })
	require.ErrorIs(t, err, chain.ErrServiceStopped)
	require.Equal(t, int32(20), ran.Load())

	// Stopping twice is harmless.
	d.Stop()
}
