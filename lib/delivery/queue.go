// Copyright 2026 The Helio Authors
// SPDX-License-Identifier: Apache-2.0

package delivery

import (
	"sync"

	"github.com/heliohq/helio-go/lib/schema/event"
)

// Queue is an unbounded FIFO of captured events awaiting delivery.
// Producers never block: Enqueue appends under a mutex and returns
// immediately. The notify channel (capacity 1) coalesces wakeups for
// the delivery goroutine, which selects on Notify() alongside its
// context.
//
// Thread-safe: all methods may be called concurrently.
type Queue struct {
	mu     sync.Mutex
	events []event.Event
	closed bool
	notify chan struct{}
}

// NewQueue creates an empty Queue.
func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Enqueue appends an event to the tail and returns the new queue
// length. Returns false without enqueueing when the queue has been
// closed for shutdown.
func (q *Queue) Enqueue(ev event.Event) (int, bool) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return 0, false
	}
	q.events = append(q.events, ev)
	length := len(q.events)
	q.mu.Unlock()

	// Non-blocking signal to the delivery goroutine.
	select {
	case q.notify <- struct{}{}:
	default:
	}

	return length, true
}

// DrainAll atomically removes and returns every queued event in FIFO
// order. Returns nil when the queue is empty.
func (q *Queue) DrainAll() []event.Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	events := q.events
	q.events = nil
	return events
}

// Close marks the queue closed and returns whatever was still queued.
// Subsequent Enqueue calls are rejected. The close happens under the
// queue mutex, so no event can slip in between the drain and the
// rejection of new producers.
func (q *Queue) Close() []event.Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	events := q.events
	q.events = nil
	return events
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Notify returns a channel that receives a signal (coalesced, at most
// one outstanding) after each Enqueue.
func (q *Queue) Notify() <-chan struct{} {
	return q.notify
}
