// Copyright (c) 2016-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package organizer

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/btcsuite/btcchain/chain"
)

// Dispatcher runs jobs on a fixed set of worker goroutines.
type Dispatcher struct {
	jobs    chan func()
	quit    chan struct{}
	wg      sync.WaitGroup
	stopped atomic.Bool
	once    sync.Once
}

// NewDispatcher starts a dispatcher with the given number of workers, zero
// selecting one per core.
func NewDispatcher(workers int) *Dispatcher {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	d := &Dispatcher{
		jobs: make(chan func()),
		quit: make(chan struct{}),
	}
	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.worker()
	}
	return d
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case job := <-d.jobs:
			job()
		case <-d.quit:
			return
		}
	}
}

// Submit hands job to an idle worker, waiting for one to become available.
// Once a job is submitted it is guaranteed to run.  Submit returns
// chain.ErrServiceStopped after Stop.
func (d *Dispatcher) Submit(job func()) error {
	if d.stopped.Load() {
		return chain.ErrServiceStopped
	}
	select {
	case d.jobs <- job:
		return nil
	case <-d.quit:
		return chain.ErrServiceStopped
	}
}

// Stop refuses new jobs and waits for the running ones to finish.
func (d *Dispatcher) Stop() {
	d.once.Do(func() {
		d.stopped.Store(true)
		close(d.quit)
	})
	d.wg.Wait()
}
