// Copyright 2026 The Helio Authors
// SPDX-License-Identifier: Apache-2.0

// Package sampling implements probabilistic admission control for
// outbound telemetry. A gate with rate r admits each event with
// probability r, independently; dropped events are not queued, not
// retried, and not reported anywhere beyond a debug log in the caller.
package sampling

import (
	"fmt"
	"math/rand/v2"
	"sync"
)

// Gate admits events with a fixed probability. Safe for concurrent
// use.
type Gate struct {
	rate float64

	mu   sync.Mutex
	rand func() float64
}

// Option adjusts a Gate at construction.
type Option func(*Gate)

// WithRand replaces the random source. The function must return values
// in [0, 1). Tests use it to force admission decisions.
func WithRand(f func() float64) Option {
	return func(g *Gate) { g.rand = f }
}

// New builds a Gate with the given admission rate, which must lie in
// [0, 1].
//
// The admission comparison is strict: a draw r in [0, 1) admits when
// r < rate. A rate of 0 therefore admits nothing and a rate of 1
// admits everything. The boundary is exclusive on purpose; a gate
// configured to zero must never leak an event.
func New(rate float64, opts ...Option) (*Gate, error) {
	if rate < 0 || rate > 1 {
		return nil, fmt.Errorf("sampling: rate %v outside [0, 1]", rate)
	}
	g := &Gate{rate: rate, rand: rand.Float64}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Admit draws once and reports whether the event passes the gate.
func (g *Gate) Admit() bool {
	g.mu.Lock()
	r := g.rand()
	g.mu.Unlock()
	return r < g.rate
}

// Rate returns the configured admission rate.
func (g *Gate) Rate() float64 { return g.rate }
