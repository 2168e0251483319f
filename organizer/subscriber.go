// Copyright (c) 2016-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package organizer

import (
	"sync"

	"github.com/btcsuite/btcchain/chain"
)

// Handler receives notifications.  A nil value with a nil error is the final
// notification sent on unsubscription, and chain.ErrServiceStopped the one
// sent on shutdown.  Returning false removes the handler.
type Handler[T any] func(err error, value T) bool

// Subscriber fans notifications out to its handlers.  Handlers run
// synchronously on the notifying goroutine and must not call back into the
// notifier.
type Subscriber[T any] struct {
	// notifyMtx serializes deliveries.
	notifyMtx sync.Mutex

	mtx      sync.Mutex
	stopped  bool
	handlers []Handler[T]
}

// NewSubscriber returns a stopped subscriber.
func NewSubscriber[T any]() *Subscriber[T] {
	return &Subscriber[T]{stopped: true}
}

// Start accepts subscriptions.
func (s *Subscriber[T]) Start() {
	s.mtx.Lock()
	s.stopped = false
	s.mtx.Unlock()
}

// Stop refuses new subscriptions and notifies every handler with
// chain.ErrServiceStopped before dropping it.
func (s *Subscriber[T]) Stop() {
	s.notifyMtx.Lock()
	defer s.notifyMtx.Unlock()

	s.mtx.Lock()
	s.stopped = true
	handlers := s.handlers
	s.handlers = nil
	s.mtx.Unlock()

	var zero T
	for _, handler := range handlers {
		handler(chain.ErrServiceStopped, zero)
	}
}

// Subscribe registers handler.  A stopped subscriber calls it right away
// with chain.ErrServiceStopped instead.
func (s *Subscriber[T]) Subscribe(handler Handler[T]) {
	s.mtx.Lock()
	if s.stopped {
		s.mtx.Unlock()
		var zero T
		handler(chain.ErrServiceStopped, zero)
		return
	}
	s.handlers = append(s.handlers, handler)
	s.mtx.Unlock()
}

// Invoke delivers value to every handler exactly once and keeps those that
// ask to stay subscribed.
func (s *Subscriber[T]) Invoke(err error, value T) {
	s.notifyMtx.Lock()
	defer s.notifyMtx.Unlock()

	s.mtx.Lock()
	handlers := s.handlers
	s.handlers = nil
	s.mtx.Unlock()

	kept := handlers[:0]
	for _, handler := range handlers {
		if handler(err, value) {
			kept = append(kept, handler)
		}
	}

	// Handlers subscribed while notifying follow the kept ones.
	s.mtx.Lock()
	s.handlers = append(kept, s.handlers...)
	s.mtx.Unlock()
}

// Unsubscribe delivers a final empty notification to every handler and
// removes them all.
func (s *Subscriber[T]) Unsubscribe() {
	s.notifyMtx.Lock()
	defer s.notifyMtx.Unlock()

	s.mtx.Lock()
	handlers := s.handlers
	s.handlers = nil
	s.mtx.Unlock()

	var zero T
	for _, handler := range handlers {
		handler(nil, zero)
	}
}

// Len returns the number of registered handlers.
func (s *Subscriber[T]) Len() int {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return len(s.handlers)
}
