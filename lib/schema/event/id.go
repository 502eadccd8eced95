// Copyright 2026 The Helio Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// EventID identifies one exception report. 16 random bytes, rendered
// as 32 lowercase hex characters in JSON and returned in that form to
// the caller of CaptureException. The ids only need to be unique, not
// unguessable.
type EventID [16]byte

// NewEventID returns a fresh random EventID.
func NewEventID() EventID {
	return EventID(uuid.New())
}

// ParseEventID parses the 32-character lowercase hex form.
func ParseEventID(s string) (EventID, error) {
	var id EventID
	if err := id.UnmarshalText([]byte(s)); err != nil {
		return EventID{}, err
	}
	return id, nil
}

// String returns the 32-character lowercase hex representation.
func (id EventID) String() string { return hex.EncodeToString(id[:]) }

// IsZero reports whether this is an uninitialized zero-value EventID.
func (id EventID) IsZero() bool { return id == EventID{} }

// MarshalText implements encoding.TextMarshaler. A zero-value EventID
// marshals as all zeros.
func (id EventID) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(id[:])), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *EventID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*id = EventID{}
		return nil
	}
	decoded, err := hex.DecodeString(string(data))
	if err != nil {
		return fmt.Errorf("invalid event id hex: %w", err)
	}
	if len(decoded) != 16 {
		return fmt.Errorf("invalid event id: expected 16 bytes, got %d", len(decoded))
	}
	copy(id[:], decoded)
	return nil
}
