// Copyright 2026 The Helio Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock is the time surface the SDK depends on. Components take a Clock
// in their config struct and default to Real() when nil.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once d has
	// elapsed. A non-positive d delivers immediately.
	After(d time.Duration) <-chan time.Time

	// NewTicker returns a Ticker delivering ticks on C every d. Panics
	// if d is not positive, matching time.NewTicker.
	NewTicker(d time.Duration) *Ticker

	// Sleep blocks the calling goroutine for at least d.
	Sleep(d time.Duration)
}

// Ticker delivers periodic ticks on C. The channel has capacity 1; when
// the consumer falls behind, ticks are dropped rather than queued, the
// same contract as time.Ticker.
type Ticker struct {
	C <-chan time.Time

	stop  func()
	reset func(time.Duration)
}

// Stop turns the ticker off. No tick is delivered after Stop returns.
// Stop does not close C.
func (t *Ticker) Stop() { t.stop() }

// Reset changes the interval and restarts the cycle; the next tick
// arrives after the new interval elapses.
func (t *Ticker) Reset(d time.Duration) { t.reset(d) }
