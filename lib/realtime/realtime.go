// Copyright 2026 The Helio Authors
// SPDX-License-Identifier: Apache-2.0

// Package realtime keeps callers updated on server-side entities by
// polling for full snapshots.
//
// Each subscription runs its own poll loop on the injected clock: an
// immediate fetch at subscribe time, then one fetch per interval. The
// handler always receives the complete current snapshot; there is no
// diffing. Fetch failures are logged and the loop keeps polling.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/heliohq/helio-go/lib/clock"
)

// DefaultPollInterval is used when a Spec leaves Interval unset.
const DefaultPollInterval = 5 * time.Second

// ErrClosed is returned by Subscribe after the Manager is closed.
var ErrClosed = errors.New("realtime: manager is closed")

// ErrUnsubscribed is returned by Update on a subscription that has
// been unsubscribed.
var ErrUnsubscribed = errors.New("realtime: subscription is unsubscribed")

// Fetcher retrieves entity snapshots. *transport.Client satisfies
// this.
type Fetcher interface {
	GetEntity(ctx context.Context, entityType, id string) ([]byte, error)
	ListEntities(ctx context.Context, entityType string, filter map[string]string) ([]byte, error)
}

// Handler receives one full snapshot per successful poll. It runs on
// the subscription's poll goroutine; slow handlers delay the next
// poll.
type Handler func(snapshot []byte)

// Spec describes what a subscription watches.
type Spec struct {
	// Type is the entity type to watch. Required.
	Type string

	// ID narrows the subscription to a single entity. When empty, the
	// subscription watches the filtered collection.
	ID string

	// Filter narrows a collection subscription by field values.
	// Ignored when ID is set.
	Filter map[string]string

	// Interval is the poll period. Defaults to DefaultPollInterval.
	Interval time.Duration

	// Handler receives each snapshot. Required.
	Handler Handler
}

// Config holds configuration for creating a Manager.
type Config struct {
	// Fetcher retrieves snapshots. Required.
	Fetcher Fetcher

	// Clock drives the poll loops. Defaults to clock.Real().
	Clock clock.Clock

	// Logger is used for structured logging. Defaults to slog.Default().
	Logger *slog.Logger
}

// Manager owns the poll loops of all active subscriptions.
type Manager struct {
	fetcher Fetcher
	clk     clock.Clock
	logger  *slog.Logger

	mu            sync.Mutex
	subscriptions map[*Subscription]struct{}
	closed        bool
}

// New creates a Manager.
func New(config Config) (*Manager, error) {
	if config.Fetcher == nil {
		return nil, fmt.Errorf("realtime: Fetcher is required")
	}
	manager := &Manager{
		fetcher:       config.Fetcher,
		clk:           config.Clock,
		logger:        config.Logger,
		subscriptions: make(map[*Subscription]struct{}),
	}
	if manager.clk == nil {
		manager.clk = clock.Real()
	}
	if manager.logger == nil {
		manager.logger = slog.Default()
	}
	return manager, nil
}

// normalizeSpec validates spec and fills defaults, returning a copy
// the loop can own.
func normalizeSpec(spec Spec) (Spec, error) {
	if spec.Type == "" {
		return Spec{}, fmt.Errorf("realtime: Spec.Type is required")
	}
	if spec.Handler == nil {
		return Spec{}, fmt.Errorf("realtime: Spec.Handler is required")
	}
	if spec.Interval <= 0 {
		spec.Interval = DefaultPollInterval
	}
	if len(spec.Filter) > 0 {
		filter := make(map[string]string, len(spec.Filter))
		for key, value := range spec.Filter {
			filter[key] = value
		}
		spec.Filter = filter
	}
	return spec, nil
}

// Subscribe starts a poll loop for spec. The first fetch happens
// immediately, then one per interval until Unsubscribe.
func (m *Manager) Subscribe(spec Spec) (*Subscription, error) {
	normalized, err := normalizeSpec(spec)
	if err != nil {
		return nil, err
	}

	// Starting the loop inside the registry lock means Close either
	// runs before this subscription exists or sees it fully started.
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	subscription := &Subscription{manager: m}
	subscription.start(normalized)
	m.subscriptions[subscription] = struct{}{}
	m.mu.Unlock()

	m.logger.Debug("realtime subscription started",
		"type", normalized.Type,
		"id", normalized.ID,
		"interval", normalized.Interval,
	)
	return subscription, nil
}

// Len returns the number of active subscriptions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subscriptions)
}

// remove drops an unsubscribed subscription from the registry.
func (m *Manager) remove(subscription *Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscriptions, subscription)
}

// Close unsubscribes every active subscription. Subscribe fails with
// ErrClosed afterwards. Idempotent.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	active := make([]*Subscription, 0, len(m.subscriptions))
	for subscription := range m.subscriptions {
		active = append(active, subscription)
	}
	m.mu.Unlock()

	for _, subscription := range active {
		subscription.Unsubscribe()
	}
}

// Subscription is one active poll loop.
type Subscription struct {
	manager *Manager

	// mu serializes Update and Unsubscribe against each other; the
	// poll goroutine never takes it.
	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool

	connected atomic.Bool
}

// Connected reports whether the current poll loop has completed at
// least one successful fetch. Update resets it.
func (s *Subscription) Connected() bool {
	return s.connected.Load()
}

// start launches a poll loop for spec. Caller holds s.mu or has
// exclusive access.
func (s *Subscription) start(spec Spec) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	go s.run(ctx, spec, done)
}

// run is the poll loop: one immediate fetch, then one per interval.
func (s *Subscription) run(ctx context.Context, spec Spec, done chan struct{}) {
	defer close(done)

	s.poll(ctx, spec)

	ticker := s.manager.clk.NewTicker(spec.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.poll(ctx, spec)
		}
	}
}

// poll fetches one snapshot and hands it to the handler.
func (s *Subscription) poll(ctx context.Context, spec Spec) {
	if ctx.Err() != nil {
		return
	}

	var (
		snapshot []byte
		err      error
	)
	if spec.ID != "" {
		snapshot, err = s.manager.fetcher.GetEntity(ctx, spec.Type, spec.ID)
	} else {
		snapshot, err = s.manager.fetcher.ListEntities(ctx, spec.Type, spec.Filter)
	}
	if err != nil {
		// Teardown cancels the context mid-fetch; that is not a poll
		// failure worth logging.
		if ctx.Err() != nil {
			return
		}
		s.manager.logger.Warn("realtime poll failed",
			"type", spec.Type,
			"id", spec.ID,
			"error", err,
		)
		return
	}

	s.connected.Store(true)
	spec.Handler(snapshot)
}

// Unsubscribe stops the poll loop. When it returns, the handler will
// not be invoked again. Idempotent.
func (s *Subscription) Unsubscribe() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
	s.connected.Store(false)
	s.manager.remove(s)
}

// Update replaces the subscription's spec. The previous poll loop is
// torn down completely before the new one starts, so snapshots from
// the old and new spec never interleave. Connected resets until the
// new loop's first successful fetch.
func (s *Subscription) Update(spec Spec) error {
	normalized, err := normalizeSpec(spec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrUnsubscribed
	}

	s.cancel()
	<-s.done
	s.connected.Store(false)

	s.start(normalized)

	s.manager.logger.Debug("realtime subscription updated",
		"type", normalized.Type,
		"id", normalized.ID,
		"interval", normalized.Interval,
	)
	return nil
}
