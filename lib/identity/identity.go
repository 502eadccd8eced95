// Copyright 2026 The Helio Authors
// SPDX-License-Identifier: Apache-2.0

// Package identity manages who telemetry belongs to: a durable
// anonymous id, an optional session-scoped user id, and the persisted
// opt-out flag.
//
// The distinct id attached to every outbound event is the user id when
// identified, else the anonymous id; it is never empty once the store
// is constructed.
package identity

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/heliohq/helio-go/lib/state"
)

// Durable store keys. The anonymous id and the consent flag survive
// process restarts; the user id deliberately does not (it lives in the
// session store and expires with the process).
const (
	keyAnonymousID = "anonymous-id"
	keyOptOut      = "opt-out"
	keyUserID      = "user-id"
)

// Config configures a Store.
type Config struct {
	// Durable persists the anonymous id and opt-out flag across
	// restarts. Required.
	Durable state.Store

	// Session holds the active user id for the lifetime of the
	// process. Defaults to an in-memory store.
	Session state.Store

	// Logger receives warnings when persistence fails. The store keeps
	// working in memory in that case. Defaults to slog.Default().
	Logger *slog.Logger
}

// Store owns the SDK's identity state. Safe for concurrent use.
type Store struct {
	durable state.Store
	session state.Store
	logger  *slog.Logger

	mu          sync.Mutex
	anonymousID string
	userID      string
	sessionID   string
	optedOut    bool
}

// New loads the persisted identity or mints a fresh one. A missing
// anonymous id is generated and persisted; persistence failures are
// logged, not fatal, because telemetry must never break the embedding
// application. A fresh session id is minted per Store.
func New(cfg Config) (*Store, error) {
	if cfg.Durable == nil {
		return nil, errors.New("identity: Config.Durable is required")
	}
	if cfg.Session == nil {
		cfg.Session = state.NewMemStore()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Store{
		durable:   cfg.Durable,
		session:   cfg.Session,
		logger:    cfg.Logger,
		sessionID: uuid.NewString(),
	}

	s.anonymousID = s.loadOrMintAnonymousID()

	if value, ok, err := cfg.Durable.Get(keyOptOut); err != nil {
		s.logger.Warn("reading opt-out flag failed, assuming opted in", "error", err)
	} else if ok && value == "true" {
		s.optedOut = true
	}

	if value, ok, err := cfg.Session.Get(keyUserID); err != nil {
		s.logger.Warn("reading session user id failed", "error", err)
	} else if ok {
		s.userID = value
	}

	return s, nil
}

// loadOrMintAnonymousID returns the persisted anonymous id, minting
// and persisting a fresh one when absent or unreadable.
func (s *Store) loadOrMintAnonymousID() string {
	value, ok, err := s.durable.Get(keyAnonymousID)
	if err != nil {
		s.logger.Warn("reading anonymous id failed, using session-lifetime id", "error", err)
		return uuid.NewString()
	}
	if ok && value != "" {
		return value
	}

	fresh := uuid.NewString()
	if err := s.durable.Set(keyAnonymousID, fresh); err != nil {
		s.logger.Warn("persisting anonymous id failed, id will not survive restart", "error", err)
	}
	return fresh
}

// DistinctID returns the active identity: the user id when identified,
// else the anonymous id. Never empty.
func (s *Store) DistinctID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userID != "" {
		return s.userID
	}
	return s.anonymousID
}

// AnonymousID returns the persisted anonymous id.
func (s *Store) AnonymousID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.anonymousID
}

// UserID returns the identified user id, or empty when anonymous.
func (s *Store) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// SessionID returns the id minted for this Store instance.
func (s *Store) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Identify sets the active user id. The anonymous id is kept alongside
// it; both survive independently within their scopes.
func (s *Store) Identify(userID string) error {
	if userID == "" {
		return errors.New("identity: empty user id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = userID
	if err := s.session.Set(keyUserID, userID); err != nil {
		return fmt.Errorf("persisting user id: %w", err)
	}
	return nil
}

// Reset clears the identity and mints a replacement: the persisted
// anonymous id is discarded for a fresh one distinct from every id
// issued before, the user id is cleared, and a new session id starts.
// The opt-out flag is consent, not identity; it survives Reset.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.userID = ""
	if err := s.session.Delete(keyUserID); err != nil {
		s.logger.Warn("clearing session user id failed", "error", err)
	}

	s.anonymousID = uuid.NewString()
	s.sessionID = uuid.NewString()
	if err := s.durable.Set(keyAnonymousID, s.anonymousID); err != nil {
		return fmt.Errorf("persisting fresh anonymous id: %w", err)
	}
	return nil
}

// OptOut durably records that no telemetry may be sent. Takes effect
// on the next capture call.
func (s *Store) OptOut() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.optedOut = true
	if err := s.durable.Set(keyOptOut, "true"); err != nil {
		return fmt.Errorf("persisting opt-out: %w", err)
	}
	return nil
}

// OptIn clears the persisted opt-out flag.
func (s *Store) OptIn() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.optedOut = false
	if err := s.durable.Delete(keyOptOut); err != nil {
		return fmt.Errorf("clearing opt-out: %w", err)
	}
	return nil
}

// OptedOut reports whether telemetry is disabled by consent.
func (s *Store) OptedOut() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.optedOut
}
