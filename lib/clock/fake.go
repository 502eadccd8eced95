// Copyright 2026 The Helio Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sync"
	"time"
)

// Fake is a deterministic Clock for tests. Time stands still until
// Advance moves it; waiters registered through After, NewTicker, and
// Sleep fire when the clock passes their deadline, strictly in deadline
// order. Fake is safe for concurrent use.
//
// The registration race (a goroutine under test must register its timer
// before the test advances the clock) is handled by WaitForTimers.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*waiter
	arrived *sync.Cond
}

// waiter is one pending After, Sleep, or ticker registration. A ticker
// has a non-zero period and is rescheduled each time it fires; one-shot
// waiters are discarded after firing.
type waiter struct {
	due     time.Time
	ch      chan time.Time
	period  time.Duration
	stopped bool
}

// NewFake returns a Fake whose current time is start.
func NewFake(start time.Time) *Fake {
	f := &Fake{now: start}
	f.arrived = sync.NewCond(&f.mu)
	return f
}

// Now returns the current fake time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// After returns a channel that receives once the clock has advanced by
// at least d. A non-positive d delivers immediately.
func (f *Fake) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- f.now
		return ch
	}
	f.waiters = append(f.waiters, &waiter{due: f.now.Add(d), ch: ch})
	f.arrived.Broadcast()
	return ch
}

// NewTicker returns a Ticker that fires every d fake-time units. Panics
// if d is not positive.
func (f *Fake) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: NewTicker interval must be positive")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	w := &waiter{due: f.now.Add(d), ch: make(chan time.Time, 1), period: d}
	f.waiters = append(f.waiters, w)
	f.arrived.Broadcast()

	return &Ticker{
		C: w.ch,
		stop: func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			w.stopped = true
		},
		reset: func(d time.Duration) {
			f.mu.Lock()
			defer f.mu.Unlock()
			w.period = d
			w.due = f.now.Add(d)
			w.stopped = false
		},
	}
}

// Sleep blocks until the clock advances past the deadline. A
// non-positive d returns immediately.
func (f *Fake) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	<-f.After(d)
}

// Advance moves the clock forward by d and fires every waiter whose
// deadline falls within the new time. Waiters fire one at a time in
// deadline order; a ticker spanning several periods fires once per
// period. Channel sends never block: a tick that finds its buffer full
// is dropped, matching time.Ticker.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.now = f.now.Add(d)
	for {
		w := f.nextDueLocked()
		if w == nil {
			return
		}
		select {
		case w.ch <- f.now:
		default:
		}
		if w.period > 0 {
			w.due = w.due.Add(w.period)
		} else {
			f.removeLocked(w)
		}
	}
}

// nextDueLocked returns the earliest live waiter due at or before the
// current time, or nil when none remain.
func (f *Fake) nextDueLocked() *waiter {
	var earliest *waiter
	for _, w := range f.waiters {
		if w.stopped || w.due.After(f.now) {
			continue
		}
		if earliest == nil || w.due.Before(earliest.due) {
			earliest = w
		}
	}
	return earliest
}

func (f *Fake) removeLocked(target *waiter) {
	for i, w := range f.waiters {
		if w == target {
			f.waiters = append(f.waiters[:i], f.waiters[i+1:]...)
			return
		}
	}
}

// WaitForTimers blocks until at least n waiters are registered and
// live. Tests call it between starting a goroutine and advancing the
// clock so the advance deterministically fires the goroutine's timer.
func (f *Fake) WaitForTimers(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for f.pendingLocked() < n {
		f.arrived.Wait()
	}
}

// PendingCount reports the number of live registered waiters.
func (f *Fake) PendingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pendingLocked()
}

func (f *Fake) pendingLocked() int {
	n := 0
	for _, w := range f.waiters {
		if !w.stopped {
			n++
		}
	}
	return n
}
