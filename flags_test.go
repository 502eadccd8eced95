// Copyright 2026 The Helio Authors
// SPDX-License-Identifier: Apache-2.0

package helio

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/heliohq/helio-go/lib/clock"
	"github.com/heliohq/helio-go/lib/schema/event"
	"github.com/heliohq/helio-go/lib/state"
)

func TestFeatureFlagsLoadedAtInit(t *testing.T) {
	stub := newStubAPI(t)
	stub.setFlags(map[string]event.FlagValue{
		"dark-mode": true,
		"variant":   "treatment",
		"rollout":   0.25,
	})
	client := newTestClient(t, stub)

	if !client.IsFeatureEnabled("dark-mode") {
		t.Error("dark-mode should be enabled")
	}
	value, ok := client.GetFeatureFlag("variant")
	if !ok || value != "treatment" {
		t.Errorf("GetFeatureFlag(variant) = %v, %v; want treatment, true", value, ok)
	}
	if _, ok := client.GetFeatureFlag("absent"); ok {
		t.Error("GetFeatureFlag(absent) reported existence")
	}
	if client.IsFeatureEnabled("absent") {
		t.Error("missing flag reported enabled")
	}
	if got := client.FeatureFlags(); len(got) != 3 {
		t.Errorf("FeatureFlags() = %v, want all 3", got)
	}
}

func TestReloadNotifiesFlagChanges(t *testing.T) {
	stub := newStubAPI(t)
	stub.setFlags(map[string]event.FlagValue{"variant": "treatment", "stable": true})
	client := newTestClient(t, stub)

	var (
		mu      sync.Mutex
		changes []event.FlagValue
	)
	cancel := client.OnFlagChange("variant", func(key string, value event.FlagValue) {
		mu.Lock()
		defer mu.Unlock()
		changes = append(changes, value)
	})

	stub.setFlags(map[string]event.FlagValue{"variant": "control", "stable": true})
	if err := client.ReloadFeatureFlags(context.Background()); err != nil {
		t.Fatalf("ReloadFeatureFlags: %v", err)
	}

	mu.Lock()
	got := len(changes)
	mu.Unlock()
	if got != 1 || changes[0] != "control" {
		t.Fatalf("changes = %v, want [control]", changes)
	}
	if client.IsFeatureEnabled("variant") {
		t.Error("variant should be disabled after flipping to control")
	}

	// The disposer stops future notifications.
	cancel()
	stub.setFlags(map[string]event.FlagValue{"variant": "treatment", "stable": true})
	if err := client.ReloadFeatureFlags(context.Background()); err != nil {
		t.Fatalf("ReloadFeatureFlags: %v", err)
	}
	mu.Lock()
	got = len(changes)
	mu.Unlock()
	if got != 1 {
		t.Errorf("cancelled subscriber was notified, changes = %v", changes)
	}
}

func TestFlagRefreshLoop(t *testing.T) {
	stub := newStubAPI(t)
	stub.setFlags(map[string]event.FlagValue{"beta": false})

	fake := clock.NewFake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	client := newTestClient(t, stub, func(config *Config) {
		config.Clock = fake
		config.FlagRefreshInterval = 30 * time.Second
	})

	if client.IsFeatureEnabled("beta") {
		t.Fatal("beta should start disabled")
	}

	// Two tickers run on the fake clock: the delivery flush ticker and
	// the flag refresh ticker.
	fake.WaitForTimers(2)
	stub.setFlags(map[string]event.FlagValue{"beta": true})
	fake.Advance(30 * time.Second)

	deadline := time.Now().Add(5 * time.Second)
	for !client.IsFeatureEnabled("beta") {
		if time.Now().After(deadline) {
			t.Fatal("refresh loop did not pick up the flag change")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestInitialFlagLoadFailureTolerated(t *testing.T) {
	// A client whose flag service is down still constructs; it starts
	// with an empty cache and IsFeatureEnabled reports disabled.
	stub := newStubAPI(t)
	endpoint := stub.server.URL
	stub.server.Close()

	client, err := New(Config{
		APIKey:      "k",
		Endpoint:    endpoint,
		StateStore:  state.NewMemStore(),
		Logger:      quietLogger(),
		Clock:       clock.NewFake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)),
		InitTimeout: 100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New against a dead flag service: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		client.Shutdown(ctx)
	}()

	if client.IsFeatureEnabled("anything") {
		t.Error("empty cache reported a flag enabled")
	}
	if got := client.FeatureFlags(); len(got) != 0 {
		t.Errorf("FeatureFlags() = %v, want empty", got)
	}
}
