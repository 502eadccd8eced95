// Copyright 2026 The Helio Authors
// SPDX-License-Identifier: Apache-2.0

package helio

import (
	"context"
	"testing"
	"time"

	"github.com/heliohq/helio-go/lib/clock"
	"github.com/heliohq/helio-go/lib/state"
)

// The default-client surface shares package state, so one test walks
// the full lifecycle in order.
func TestDefaultClientLifecycle(t *testing.T) {
	if Default() != nil {
		t.Fatal("Default() non-nil before Init")
	}

	// A config problem leaves no default installed.
	if _, err := Init(Config{}); err == nil {
		t.Fatal("Init with empty config succeeded")
	}
	if Default() != nil {
		t.Fatal("failed Init installed a default client")
	}

	stub := newStubAPI(t)
	config := Config{
		APIKey:     "test-key",
		Endpoint:   stub.server.URL,
		StateStore: state.NewMemStore(),
		Logger:     quietLogger(),
		Clock:      clock.NewFake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)),
		HTTPClient: stub.server.Client(),
	}

	client, err := Init(config)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if Default() != client {
		t.Error("Default() does not return the installed client")
	}

	// Initializing again warns and returns the existing client.
	again, err := Init(config)
	if err != nil {
		t.Fatalf("second Init: %v", err)
	}
	if again != client {
		t.Error("second Init returned a different client")
	}

	client.Track("from-default", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if Default() != nil {
		t.Error("Default() non-nil after Close")
	}
	if events := stub.allEvents(); len(events) != 1 || events[0].Event != "from-default" {
		t.Errorf("Close did not drain the queue, events = %v", events)
	}

	// Close without a default is a no-op.
	if err := Close(ctx); err != nil {
		t.Errorf("Close without a default: %v", err)
	}

	// A fresh Init after Close installs a new client.
	replacement, err := Init(config)
	if err != nil {
		t.Fatalf("Init after Close: %v", err)
	}
	if replacement == client {
		t.Error("Init after Close returned the closed client")
	}
	if err := Close(ctx); err != nil {
		t.Fatalf("final Close: %v", err)
	}
}
