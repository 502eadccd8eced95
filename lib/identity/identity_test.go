// Copyright 2026 The Helio Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/heliohq/helio-go/lib/state"
)

// newStore constructs a Store over in-memory persistence.
func newStore(t *testing.T) (*Store, *state.MemStore) {
	t.Helper()
	durable := state.NewMemStore()
	store, err := New(Config{Durable: durable})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store, durable
}

func TestNewRequiresDurableStore(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("New without a durable store succeeded, want error")
	}
}

func TestDistinctIDLifecycle(t *testing.T) {
	store, _ := newStore(t)

	anonymous := store.DistinctID()
	if anonymous == "" {
		t.Fatal("DistinctID is empty after New")
	}
	if anonymous != store.AnonymousID() {
		t.Fatalf("DistinctID %q != AnonymousID %q before identify", anonymous, store.AnonymousID())
	}

	if err := store.Identify("user_42"); err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if got := store.DistinctID(); got != "user_42" {
		t.Fatalf("DistinctID after Identify = %q, want user_42", got)
	}
	// The anonymous id survives identification.
	if got := store.AnonymousID(); got != anonymous {
		t.Fatalf("AnonymousID changed across Identify: %q -> %q", anonymous, got)
	}

	if err := store.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	fresh := store.DistinctID()
	if fresh == "" || fresh == "user_42" || fresh == anonymous {
		t.Fatalf("DistinctID after Reset = %q, want a fresh id distinct from %q and user_42", fresh, anonymous)
	}
}

func TestIdentifyRejectsEmptyUserID(t *testing.T) {
	store, _ := newStore(t)
	if err := store.Identify(""); err == nil {
		t.Fatal("Identify(\"\") succeeded, want error")
	}
}

func TestAnonymousIDPersistsAcrossStores(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	durable := state.NewFileStore(path)

	first, err := New(Config{Durable: durable})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	anonymous := first.AnonymousID()

	second, err := New(Config{Durable: state.NewFileStore(path)})
	if err != nil {
		t.Fatalf("New (second): %v", err)
	}
	if got := second.AnonymousID(); got != anonymous {
		t.Fatalf("second store AnonymousID = %q, want persisted %q", got, anonymous)
	}
}

func TestUserIDIsSessionScoped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	first, err := New(Config{Durable: state.NewFileStore(path)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := first.Identify("user_42"); err != nil {
		t.Fatalf("Identify: %v", err)
	}

	// A new store over the same durable state starts anonymous: the
	// user id lived in the first store's session scope.
	second, err := New(Config{Durable: state.NewFileStore(path)})
	if err != nil {
		t.Fatalf("New (second): %v", err)
	}
	if got := second.UserID(); got != "" {
		t.Fatalf("second store UserID = %q, want empty", got)
	}
	if got := second.DistinctID(); got != first.AnonymousID() {
		t.Fatalf("second store DistinctID = %q, want anonymous id %q", got, first.AnonymousID())
	}
}

func TestOptOutPersistsAndSurvivesReset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	store, err := New(Config{Durable: state.NewFileStore(path)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if store.OptedOut() {
		t.Fatal("fresh store reports opted out")
	}

	if err := store.OptOut(); err != nil {
		t.Fatalf("OptOut: %v", err)
	}
	if !store.OptedOut() {
		t.Fatal("OptedOut() = false after OptOut")
	}

	// Consent survives identity reset.
	if err := store.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if !store.OptedOut() {
		t.Fatal("opt-out flag cleared by Reset")
	}

	// And survives a restart.
	reloaded, err := New(Config{Durable: state.NewFileStore(path)})
	if err != nil {
		t.Fatalf("New (reload): %v", err)
	}
	if !reloaded.OptedOut() {
		t.Fatal("opt-out flag not persisted")
	}

	if err := reloaded.OptIn(); err != nil {
		t.Fatalf("OptIn: %v", err)
	}
	if reloaded.OptedOut() {
		t.Fatal("OptedOut() = true after OptIn")
	}
}

func TestSessionIDChangesOnReset(t *testing.T) {
	store, _ := newStore(t)
	before := store.SessionID()
	if before == "" {
		t.Fatal("SessionID is empty")
	}
	if err := store.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if store.SessionID() == before {
		t.Fatal("SessionID unchanged across Reset")
	}
}

// failingStore errors on every operation, standing in for unusable
// persistence (read-only disk, corrupt file).
type failingStore struct{}

func (failingStore) Get(string) (string, bool, error) { return "", false, errors.New("broken") }
func (failingStore) Set(string, string) error         { return errors.New("broken") }
func (failingStore) Delete(string) error              { return errors.New("broken") }

func TestBrokenPersistenceIsNotFatal(t *testing.T) {
	store, err := New(Config{Durable: failingStore{}})
	if err != nil {
		t.Fatalf("New over broken persistence failed: %v", err)
	}
	if store.DistinctID() == "" {
		t.Fatal("DistinctID empty over broken persistence")
	}
	if store.OptedOut() {
		t.Fatal("broken persistence should default to opted in")
	}
}
