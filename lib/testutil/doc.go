// Copyright 2026 The Helio Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for Helio packages.
//
// [RequireReceive], [RequireSend], and [RequireClosed] encapsulate the
// timeout safety valve pattern (select with a time.After fallback) so
// individual tests do not need direct time.After calls. These helpers
// are the only place the test suite touches the real wall clock; timer
// behavior under test always runs on a clock.Fake.
//
// [RequireNoReceive] asserts the opposite: that a channel stays silent
// for a short window. Use it to verify cancellation guarantees, for
// example that an unsubscribed handler is never invoked again.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no Helio-internal dependencies.
package testutil
