// Copyright 2026 The Helio Authors
// SPDX-License-Identifier: Apache-2.0

// Package forward fans captured events out to secondary destinations.
//
// Forwarders run off the primary delivery path: Dispatch hands each
// registered forwarder its own goroutine, and a panic or error in one
// forwarder never affects the others or the capture pipeline. Built-in
// forwarders cover a local spool file (Spool) and an HTTP endpoint
// (Webhook); applications register their own by implementing Forwarder.
package forward

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/heliohq/helio-go/lib/schema/event"
)

// Forwarder receives a copy of every captured event. Implementations
// must be safe for concurrent use and must treat the event as
// read-only; its maps are shared with the delivery pipeline.
type Forwarder interface {
	Forward(ctx context.Context, ev event.Event) error
}

// Manager is a name-keyed forwarder registry with isolated dispatch.
// The zero value is not usable; create one with NewManager.
type Manager struct {
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	forwarders map[string]Forwarder
	active     int
	idlers     []chan struct{}
	closed     bool
}

// NewManager creates an empty Manager. A nil logger falls back to
// slog.Default().
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		forwarders: make(map[string]Forwarder),
	}
}

// Add registers forwarder under name, replacing any previous
// registration with that name. The Manager does not own forwarder
// lifecycles; callers close their own spools.
func (m *Manager) Add(name string, forwarder Forwarder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forwarders[name] = forwarder
}

// Remove deletes the registration for name. Returns false when no
// forwarder was registered under that name. In-flight dispatches to
// the removed forwarder run to completion.
func (m *Manager) Remove(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, present := m.forwarders[name]
	delete(m.forwarders, name)
	return present
}

// Get returns the forwarder registered under name.
func (m *Manager) Get(name string) (Forwarder, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	forwarder, ok := m.forwarders[name]
	return forwarder, ok
}

// Names returns the registered forwarder names, sorted.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.forwarders))
	for name := range m.forwarders {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Len returns the number of registered forwarders.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.forwarders)
}

// Dispatch sends ev to every registered forwarder, each on its own
// goroutine. It never blocks on forwarder work and returns
// immediately. After Close, Dispatch is a no-op.
func (m *Manager) Dispatch(ev event.Event) {
	m.mu.Lock()
	if m.closed || len(m.forwarders) == 0 {
		m.mu.Unlock()
		return
	}
	targets := make(map[string]Forwarder, len(m.forwarders))
	for name, forwarder := range m.forwarders {
		targets[name] = forwarder
	}
	m.active += len(targets)
	m.mu.Unlock()

	for name, forwarder := range targets {
		go m.forward(name, forwarder, ev)
	}
}

// forward runs one forwarder invocation, containing panics and
// logging failures.
func (m *Manager) forward(name string, forwarder Forwarder, ev event.Event) {
	defer m.release()
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("forwarder panicked",
				"forwarder", name,
				"panic", r,
			)
		}
	}()

	if err := forwarder.Forward(m.ctx, ev); err != nil {
		m.logger.Warn("forwarder failed",
			"forwarder", name,
			"error", err,
		)
	}
}

// release retires one in-flight dispatch and wakes Drain callers when
// the manager goes idle.
func (m *Manager) release() {
	m.mu.Lock()
	m.active--
	if m.active == 0 {
		for _, idle := range m.idlers {
			close(idle)
		}
		m.idlers = nil
	}
	m.mu.Unlock()
}

// Drain blocks until no dispatches are in flight or ctx is done.
// Dispatches issued while draining extend the wait.
func (m *Manager) Drain(ctx context.Context) error {
	m.mu.Lock()
	if m.active == 0 {
		m.mu.Unlock()
		return nil
	}
	idle := make(chan struct{})
	m.idlers = append(m.idlers, idle)
	m.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops dispatching and cancels the context passed to in-flight
// forwarders. Registered forwarders themselves are not closed.
// Idempotent.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cancel()
}
