// Copyright 2026 The Helio Authors
// SPDX-License-Identifier: Apache-2.0

// Package helio is the Go client for the Helio telemetry platform:
// product event tracking, exception reporting with breadcrumbs,
// feature flags, and realtime entity subscriptions.
//
// # Quick Start
//
// Construct one Client per application and shut it down on exit:
//
//	client, err := helio.New(helio.Config{
//		APIKey: os.Getenv("HELIO_API_KEY"),
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Shutdown(context.Background())
//
//	client.Track("checkout_completed", event.Properties{
//		"total_cents": 2499,
//	})
//
//	if client.IsFeatureEnabled("new-checkout") {
//		// ...
//	}
//
//	if err := doWork(); err != nil {
//		client.CaptureException(err)
//	}
//
// # Configuration
//
// Every Config field except the API key has a default; see Config for
// the full list. The endpoint falls back to the HELIO_ENDPOINT
// environment variable, then the public default.
//
// # Thread Safety
//
// Client is safe for concurrent use from multiple goroutines. All
// telemetry methods return before any network I/O; delivery happens on
// a background goroutine.
//
// # Delivery Semantics
//
// Delivery is asynchronous and best-effort. Events queue in memory and
// ship in batches when the batch size or the flush interval is
// reached. Transient failures (network errors, timeouts, HTTP 5xx) are
// retried with exponential backoff up to a bounded attempt count;
// rejections (HTTP 4xx) and exhausted retries drop the batch with a
// warning. Telemetry methods never surface delivery errors: the
// embedding application must not break because telemetry did.
//
// Events can be lost when the process exits without Shutdown, when
// sampling discards them, or when every delivery attempt fails. There
// is no duplicate suppression; a batch acknowledged after a network
// error may be delivered twice.
//
// # Graceful Shutdown
//
// Shutdown stops realtime subscriptions, gives queued events one final
// delivery attempt, and waits for in-flight forwarder dispatches:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
//	defer cancel()
//	if err := client.Shutdown(ctx); err != nil {
//		log.Printf("telemetry shutdown incomplete: %v", err)
//	}
//
// Use Flush to await delivery at a checkpoint without shutting down.
package helio
