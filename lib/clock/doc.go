// Copyright 2026 The Helio Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction so that every
// timer-driven behavior in the SDK (flush intervals, retry backoff,
// flag refresh, realtime polling) is testable without real sleeps.
//
// Production code accepts a Clock instead of calling time.Now,
// time.After, time.NewTicker, or time.Sleep directly. Components
// default to Real() when no Clock is configured; tests inject a Fake
// and move time explicitly:
//
//	fake := clock.NewFake(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
//	mgr := delivery.NewManager(delivery.Config{Clock: fake, ...})
//	// ... start the manager's goroutine ...
//	fake.WaitForTimers(1)        // the goroutine registered its timer
//	fake.Advance(time.Second)    // fire it deterministically
//
// WaitForTimers removes the race between a goroutine registering a
// timer and the test advancing the clock; tests never need time.Sleep
// for synchronization.
package clock
