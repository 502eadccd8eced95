// Copyright 2026 The Helio Authors
// SPDX-License-Identifier: Apache-2.0

// Package delivery batches captured events and ships them to the
// ingestion API with bounded exponential-backoff retries.
//
// A single background goroutine (Run) drives everything: it wakes when
// the queue reaches the batch size or the flush interval elapses,
// drains the queue, and delivers one batch at a time. A batch that is
// being retried is never merged with newly captured events; those
// accumulate in the queue and ship as their own batches afterwards.
// Order within a batch is preserved end to end. There is no ordering
// guarantee across batches.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/heliohq/helio-go/lib/clock"
	"github.com/heliohq/helio-go/lib/schema/event"
	"github.com/heliohq/helio-go/lib/transport"
)

// Defaults applied by New when the corresponding Config field is zero.
const (
	DefaultBatchSize     = 20
	DefaultFlushInterval = 10 * time.Second
	DefaultBaseDelay     = time.Second
	DefaultMaxAttempts   = 4
)

// drainTimeout bounds the final best-effort delivery pass during
// shutdown.
const drainTimeout = 5 * time.Second

// ErrShutdown is returned by operations invoked after Shutdown.
var ErrShutdown = errors.New("delivery: manager is shut down")

// Sender delivers one batch of events. *transport.Client satisfies
// this; tests substitute fakes.
type Sender interface {
	SendBatch(ctx context.Context, events []event.Event) error
}

// DropReason explains why a batch was discarded instead of delivered.
type DropReason string

const (
	// DropRejected: the server refused the batch (HTTP 4xx) or the
	// failure is otherwise not worth retrying.
	DropRejected DropReason = "rejected"
	// DropExhausted: every retry attempt failed.
	DropExhausted DropReason = "retries_exhausted"
	// DropShutdown: the final single-attempt drain could not deliver
	// the batch.
	DropShutdown DropReason = "shutdown"
)

// Config holds configuration for creating a delivery Manager.
type Config struct {
	// Sender delivers batches. Required.
	Sender Sender

	// BatchSize is the flush threshold and the maximum events per
	// request. Defaults to DefaultBatchSize.
	BatchSize int

	// FlushInterval is the period of the timer flush. Defaults to
	// DefaultFlushInterval.
	FlushInterval time.Duration

	// BaseDelay is the first retry delay; each subsequent retry
	// doubles it. Defaults to DefaultBaseDelay.
	BaseDelay time.Duration

	// MaxAttempts is the total number of delivery attempts per batch,
	// the initial send included. Defaults to DefaultMaxAttempts.
	MaxAttempts int

	// Clock drives the flush ticker and retry backoff. Defaults to
	// clock.Real().
	Clock clock.Clock

	// Logger is used for structured logging. Defaults to slog.Default().
	Logger *slog.Logger

	// OnDrop, when set, is invoked from the delivery goroutine with
	// every batch that is discarded. The callback must not block.
	OnDrop func(batch []event.Event, reason DropReason, err error)
}

// Manager owns the event queue and the delivery loop.
type Manager struct {
	queue         *Queue
	sender        Sender
	batchSize     int
	flushInterval time.Duration
	baseDelay     time.Duration
	maxAttempts   int
	clk           clock.Clock
	logger        *slog.Logger
	onDrop        func(batch []event.Event, reason DropReason, err error)

	// pending counts events accepted by Enqueue that have not yet been
	// delivered or dropped. Flush completion is keyed off the run
	// loop's serial processing; the counter makes the accounting
	// observable.
	pending   atomic.Int64
	delivered atomic.Uint64
	dropped   atomic.Uint64

	flushRequests chan flushRequest
	shutdown      chan struct{}
	done          chan struct{}
	closed        atomic.Bool
	shutdownOnce  sync.Once
}

type flushRequest struct {
	done chan struct{}
}

// New creates a Manager. The caller must start the delivery loop with
// go manager.Run(ctx) before events can ship.
func New(config Config) (*Manager, error) {
	if config.Sender == nil {
		return nil, fmt.Errorf("delivery: Sender is required")
	}
	if config.BatchSize < 0 {
		return nil, fmt.Errorf("delivery: BatchSize must not be negative, got %d", config.BatchSize)
	}
	if config.FlushInterval < 0 {
		return nil, fmt.Errorf("delivery: FlushInterval must not be negative, got %v", config.FlushInterval)
	}
	if config.MaxAttempts < 0 {
		return nil, fmt.Errorf("delivery: MaxAttempts must not be negative, got %d", config.MaxAttempts)
	}

	manager := &Manager{
		queue:         NewQueue(),
		sender:        config.Sender,
		batchSize:     config.BatchSize,
		flushInterval: config.FlushInterval,
		baseDelay:     config.BaseDelay,
		maxAttempts:   config.MaxAttempts,
		clk:           config.Clock,
		logger:        config.Logger,
		onDrop:        config.OnDrop,
		flushRequests: make(chan flushRequest),
		shutdown:      make(chan struct{}),
		done:          make(chan struct{}),
	}
	if manager.batchSize == 0 {
		manager.batchSize = DefaultBatchSize
	}
	if manager.flushInterval == 0 {
		manager.flushInterval = DefaultFlushInterval
	}
	if manager.baseDelay <= 0 {
		manager.baseDelay = DefaultBaseDelay
	}
	if manager.maxAttempts == 0 {
		manager.maxAttempts = DefaultMaxAttempts
	}
	if manager.clk == nil {
		manager.clk = clock.Real()
	}
	if manager.logger == nil {
		manager.logger = slog.Default()
	}
	return manager, nil
}

// Enqueue accepts an event for delivery and returns the queue length.
// Returns false when the manager has been shut down; the event is not
// queued.
func (m *Manager) Enqueue(ev event.Event) (int, bool) {
	if m.closed.Load() {
		return 0, false
	}
	length, ok := m.queue.Enqueue(ev)
	if !ok {
		return 0, false
	}
	m.pending.Add(1)
	return length, true
}

// Pending returns the number of events accepted but not yet delivered
// or dropped.
func (m *Manager) Pending() int64 { return m.pending.Load() }

// Delivered returns the total number of events successfully delivered.
func (m *Manager) Delivered() uint64 { return m.delivered.Load() }

// Dropped returns the total number of events discarded.
func (m *Manager) Dropped() uint64 { return m.dropped.Load() }

// QueueLen returns the number of events waiting in the queue.
func (m *Manager) QueueLen() int { return m.queue.Len() }

// Run is the delivery loop. It blocks until ctx is cancelled or
// Shutdown is called, then performs one best-effort drain pass and
// returns. Run must be called exactly once.
func (m *Manager) Run(ctx context.Context) {
	defer close(m.done)

	ticker := m.clk.NewTicker(m.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.finalDrain(nil)
			return

		case <-m.shutdown:
			m.finalDrain(nil)
			return

		case <-m.queue.Notify():
			// Wake from Enqueue. Flush only once a full batch has
			// accumulated; smaller remainders wait for the ticker.
			if m.queue.Len() < m.batchSize {
				continue
			}
			if leftover := m.flushAll(ctx); leftover != nil {
				m.finalDrain(leftover)
				return
			}

		case <-ticker.C:
			if leftover := m.flushAll(ctx); leftover != nil {
				m.finalDrain(leftover)
				return
			}

		case request := <-m.flushRequests:
			leftover := m.flushAll(ctx)
			if leftover != nil {
				// Resolve what the interrupted flush left behind so
				// the requester's guarantee still holds when its done
				// channel closes.
				m.finalDrain(leftover)
				close(request.done)
				return
			}
			close(request.done)
		}
	}
}

// Flush delivers everything enqueued before the call. It returns once
// every such event has been delivered or dropped, or when ctx is done.
// A Flush issued after Shutdown returns nil immediately: the final
// drain has already resolved every event.
func (m *Manager) Flush(ctx context.Context) error {
	request := flushRequest{done: make(chan struct{})}
	select {
	case m.flushRequests <- request:
	case <-m.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-request.done:
		return nil
	case <-m.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops intake, waits for the delivery loop to finish its
// final drain pass, and returns. Events still queued get a single
// delivery attempt each, without backoff retries. Idempotent; ctx
// bounds only the caller's wait.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.shutdownOnce.Do(func() {
		m.closed.Store(true)
		close(m.shutdown)
	})
	select {
	case <-m.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// flushAll drains the queue and delivers it in batch-sized chunks,
// oldest first. Returns the batches left unresolved because the
// context was cancelled mid-delivery; nil when everything was
// delivered or dropped.
func (m *Manager) flushAll(ctx context.Context) [][]event.Event {
	events := m.queue.DrainAll()
	if len(events) == 0 {
		return nil
	}
	batches := splitBatches(events, m.batchSize)
	for i, batch := range batches {
		if m.deliverBatch(ctx, batch, true) == interrupted {
			return batches[i:]
		}
	}
	return nil
}

// finalDrain closes the queue and makes one best-effort delivery pass
// over the leftover batches and whatever the queue still held. Every
// batch gets exactly one attempt; failures are dropped. All events are
// resolved when this returns.
func (m *Manager) finalDrain(leftover [][]event.Event) {
	remaining := m.queue.Close()
	batches := append(leftover, splitBatches(remaining, m.batchSize)...)
	if len(batches) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	for _, batch := range batches {
		m.deliverBatch(ctx, batch, false)
	}
}

// disposition is the outcome of deliverBatch for one batch.
type disposition int

const (
	// batchDelivered: the server accepted the batch.
	batchDelivered disposition = iota
	// batchDropped: the batch was discarded, the drop hook has fired,
	// and the pending count is resolved.
	batchDropped
	// interrupted: the context was cancelled mid-retry; the batch is
	// unresolved and must go through the final drain.
	interrupted
)

// deliverBatch attempts to deliver one batch. With retries enabled it
// retries transient failures after BaseDelay × 2^attempt, up to
// MaxAttempts total attempts. Without retries (the shutdown drain) any
// failure drops the batch.
func (m *Manager) deliverBatch(ctx context.Context, batch []event.Event, withRetries bool) disposition {
	delay := m.baseDelay

	for attempt := 1; ; attempt++ {
		err := m.sender.SendBatch(ctx, batch)
		if err == nil {
			m.delivered.Add(uint64(len(batch)))
			m.pending.Add(-int64(len(batch)))
			m.logger.Debug("batch delivered",
				"events", len(batch),
				"attempt", attempt,
			)
			return batchDelivered
		}

		if ctx.Err() != nil {
			if !withRetries {
				m.drop(batch, DropShutdown, err)
				return batchDropped
			}
			return interrupted
		}

		if !transport.Retryable(err) {
			m.drop(batch, DropRejected, err)
			return batchDropped
		}

		if !withRetries {
			m.drop(batch, DropShutdown, err)
			return batchDropped
		}
		if attempt >= m.maxAttempts {
			m.drop(batch, DropExhausted, err)
			return batchDropped
		}

		m.logger.Warn("batch delivery failed, will retry",
			"error", err,
			"attempt", attempt,
			"max_attempts", m.maxAttempts,
			"delay", delay,
			"events", len(batch),
		)
		select {
		case <-m.clk.After(delay):
		case <-ctx.Done():
			return interrupted
		case <-m.shutdown:
			return interrupted
		}
		delay *= 2
	}
}

// drop discards a batch, fires the drop hook, and resolves the pending
// count.
func (m *Manager) drop(batch []event.Event, reason DropReason, err error) {
	m.dropped.Add(uint64(len(batch)))
	m.pending.Add(-int64(len(batch)))
	m.logger.Warn("dropping batch",
		"reason", string(reason),
		"error", err,
		"events", len(batch),
	)
	if m.onDrop != nil {
		m.onDrop(batch, reason, err)
	}
}

// splitBatches chunks events into slices of at most batchSize,
// preserving order.
func splitBatches(events []event.Event, batchSize int) [][]event.Event {
	if len(events) == 0 {
		return nil
	}
	batches := make([][]event.Event, 0, (len(events)+batchSize-1)/batchSize)
	for len(events) > batchSize {
		batches = append(batches, events[:batchSize:batchSize])
		events = events[batchSize:]
	}
	return append(batches, events)
}
