// Copyright 2026 The Helio Authors
// SPDX-License-Identifier: Apache-2.0

// Package flagcache holds a local copy of the server's feature-flag
// mapping so flag reads never touch the network.
//
// The cache is populated once at client init (Load), read through Get
// and IsEnabled, and replaced wholesale by Reload. Reload diffs the new
// mapping against the old one and notifies per-key subscribers of every
// changed value, keys that appeared or disappeared included. An
// optional background loop (Run) reloads on a fixed interval.
package flagcache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/heliohq/helio-go/lib/clock"
	"github.com/heliohq/helio-go/lib/schema/event"
)

// Fetcher retrieves the full flag mapping from the server.
// *transport.Client satisfies this.
type Fetcher interface {
	FetchFlags(ctx context.Context) (map[string]event.FlagValue, error)
}

// ChangeFunc is invoked with the flag's new value after a Reload
// observed a change. A key that disappeared from the server's mapping
// reports a nil value.
type ChangeFunc func(key string, value event.FlagValue)

// Config holds configuration for creating a Cache.
type Config struct {
	// Fetcher retrieves flag mappings. Required.
	Fetcher Fetcher

	// Clock drives the optional refresh loop. Defaults to clock.Real().
	Clock clock.Clock

	// Logger is used for structured logging. Defaults to slog.Default().
	Logger *slog.Logger
}

// listener is one OnChange registration. Removal is by pointer
// identity.
type listener struct {
	fn ChangeFunc
}

// Cache is a thread-safe snapshot of the server's flag mapping.
type Cache struct {
	fetcher Fetcher
	clk     clock.Clock
	logger  *slog.Logger

	mu        sync.RWMutex
	flags     map[string]event.FlagValue
	loaded    bool
	listeners map[string][]*listener
}

// New creates an empty Cache. Callers populate it with Load.
func New(config Config) (*Cache, error) {
	if config.Fetcher == nil {
		return nil, fmt.Errorf("flagcache: Fetcher is required")
	}
	cache := &Cache{
		fetcher:   config.Fetcher,
		clk:       config.Clock,
		logger:    config.Logger,
		flags:     map[string]event.FlagValue{},
		listeners: make(map[string][]*listener),
	}
	if cache.clk == nil {
		cache.clk = clock.Real()
	}
	if cache.logger == nil {
		cache.logger = slog.Default()
	}
	return cache, nil
}

// Load fetches the mapping and installs it without notifying
// subscribers. Intended for the initial population; a failed Load
// leaves the cache empty and usable.
func (c *Cache) Load(ctx context.Context) error {
	flags, err := c.fetcher.FetchFlags(ctx)
	if err != nil {
		return fmt.Errorf("loading feature flags: %w", err)
	}
	c.mu.Lock()
	c.flags = flags
	c.loaded = true
	c.mu.Unlock()

	c.logger.Debug("feature flags loaded", "count", len(flags))
	return nil
}

// Loaded reports whether an initial Load (or any Reload) has succeeded.
func (c *Cache) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// Get returns the cached value for key. The second result is false
// when the key is absent from the mapping. Never touches the network.
func (c *Cache) Get(key string) (event.FlagValue, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	value, ok := c.flags[key]
	return value, ok
}

// IsEnabled reports whether the cached value for key is truthy under
// the flag truthiness rule (see event.FlagEnabled). Missing keys are
// disabled.
func (c *Cache) IsEnabled(key string) bool {
	value, ok := c.Get(key)
	if !ok {
		return false
	}
	return event.FlagEnabled(value)
}

// All returns a copy of the cached mapping.
func (c *Cache) All() map[string]event.FlagValue {
	c.mu.RLock()
	defer c.mu.RUnlock()
	copied := make(map[string]event.FlagValue, len(c.flags))
	for key, value := range c.flags {
		copied[key] = value
	}
	return copied
}

// Len returns the number of cached flags.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.flags)
}

// change is one observed difference between two mappings, paired with
// the callbacks to notify.
type change struct {
	key   string
	value event.FlagValue
	fns   []ChangeFunc
}

// Reload re-fetches the mapping, replaces the cache, and notifies
// OnChange subscribers for every key whose value differs from the
// previous mapping. A key that disappeared notifies with a nil value.
// Callbacks run on the calling goroutine, outside the cache lock.
func (c *Cache) Reload(ctx context.Context) error {
	flags, err := c.fetcher.FetchFlags(ctx)
	if err != nil {
		return fmt.Errorf("reloading feature flags: %w", err)
	}

	c.mu.Lock()
	previous := c.flags
	c.flags = flags
	c.loaded = true

	var changes []change
	for key, value := range flags {
		before, existed := previous[key]
		if existed && event.FlagsEqual(before, value) {
			continue
		}
		if fns := c.callbacksLocked(key); len(fns) > 0 {
			changes = append(changes, change{key: key, value: value, fns: fns})
		}
	}
	for key := range previous {
		if _, still := flags[key]; still {
			continue
		}
		if fns := c.callbacksLocked(key); len(fns) > 0 {
			changes = append(changes, change{key: key, value: nil, fns: fns})
		}
	}
	c.mu.Unlock()

	for _, ch := range changes {
		for _, fn := range ch.fns {
			fn(ch.key, ch.value)
		}
	}

	c.logger.Debug("feature flags reloaded",
		"count", len(flags),
		"changed", len(changes),
	)
	return nil
}

// callbacksLocked snapshots the callbacks registered for key. Caller
// holds c.mu.
func (c *Cache) callbacksLocked(key string) []ChangeFunc {
	registered := c.listeners[key]
	if len(registered) == 0 {
		return nil
	}
	fns := make([]ChangeFunc, len(registered))
	for i, l := range registered {
		fns[i] = l.fn
	}
	return fns
}

// OnChange registers callback for changes to key observed by Reload.
// The returned cancel function removes the registration; it is
// idempotent. A callback may still be invoked by a Reload that
// snapshotted the registry before cancel was called.
func (c *Cache) OnChange(key string, callback ChangeFunc) (cancel func()) {
	l := &listener{fn: callback}

	c.mu.Lock()
	c.listeners[key] = append(c.listeners[key], l)
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		registered := c.listeners[key]
		for i, existing := range registered {
			if existing == l {
				c.listeners[key] = append(registered[:i], registered[i+1:]...)
				break
			}
		}
		if len(c.listeners[key]) == 0 {
			delete(c.listeners, key)
		}
	}
}

// Run reloads the cache every interval until ctx is cancelled. Reload
// failures are logged and the loop keeps going. Run blocks; callers
// start it on its own goroutine.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	ticker := c.clk.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Reload(ctx); err != nil {
				c.logger.Warn("background flag refresh failed", "error", err)
			}
		}
	}
}
