// Copyright (c) 2016-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package organizer

import (
	"sync"
)

// PrioritizedMutex is a reader/writer lock with strict writer priority.  Any
// number of low priority holders may share it.  A high priority acquisition
// is exclusive; once it is pending, new low priority acquisitions wait and
// it only waits for the low priority holders already in flight.  Block
// organization takes the high priority side so it is never starved by a
// stream of transactions.
//
// The zero value is an unlocked mutex.
type PrioritizedMutex struct {
	mtx         sync.Mutex
	cond        *sync.Cond
	readers     int
	writer      bool
	highWaiting int
}

func (m *PrioritizedMutex) init() {
	if m.cond == nil {
		m.cond = sync.NewCond(&m.mtx)
	}
}

// LockLowPriority acquires a shared hold once no high priority acquisition
// holds the mutex or is pending.
func (m *PrioritizedMutex) LockLowPriority() {
	m.mtx.Lock()
	m.init()
	for m.writer || m.highWaiting > 0 {
		m.cond.Wait()
	}
	m.readers++
	m.mtx.Unlock()
}

// UnlockLowPriority releases a low priority hold.
func (m *PrioritizedMutex) UnlockLowPriority() {
	m.mtx.Lock()
	if m.readers == 0 {
		m.mtx.Unlock()
		panic("organizer: low priority unlock of unlocked PrioritizedMutex")
	}
	m.readers--
	if m.readers == 0 {
		m.cond.Broadcast()
	}
	m.mtx.Unlock()
}

// LockHighPriority acquires the mutex exclusively, ahead of any waiting low
// priority acquisition.
func (m *PrioritizedMutex) LockHighPriority() {
	m.mtx.Lock()
	m.init()
	m.highWaiting++
	for m.writer || m.readers > 0 {
		m.cond.Wait()
	}
	m.highWaiting--
	m.writer = true
	m.mtx.Unlock()
}

// UnlockHighPriority releases a high priority acquisition.
func (m *PrioritizedMutex) UnlockHighPriority() {
	m.mtx.Lock()
	if !m.writer {
		m.mtx.Unlock()
		panic("organizer: high priority unlock of unlocked PrioritizedMutex")
	}
	m.writer = false
	m.cond.Broadcast()
	m.mtx.Unlock()
}

// pendingHigh returns the number of waiting high priority acquisitions.
func (m *PrioritizedMutex) pendingHigh() int {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.highWaiting
}

// activeLow returns the number of low priority holders.
func (m *PrioritizedMutex) activeLow() int {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.readers
}
