// Copyright 2026 The Helio Authors
// SPDX-License-Identifier: Apache-2.0

// Package event defines the wire types the SDK sends to the ingestion
// API: telemetry events, breadcrumbs, exception payloads, and feature
// flag values.
//
// JSON field names are the ingestion API's spelling (distinctId,
// userAgent). The same tags drive the CBOR encoding used by the spool
// forwarder, so a spooled event decodes into the identical struct.
package event

import (
	"reflect"
	"time"
)

// Type classifies an outbound telemetry event.
type Type string

const (
	// TypeTrack is a named product event with optional properties.
	TypeTrack Type = "track"

	// TypePage records a page or screen view.
	TypePage Type = "page"

	// TypeIdentify binds the anonymous identity to a user id.
	TypeIdentify Type = "identify"

	// TypeAlias links a secondary identifier to the active identity.
	TypeAlias Type = "alias"

	// TypeGroup associates the active identity with a group.
	TypeGroup Type = "group"

	// TypeException is an error report with stack frames and the
	// breadcrumb trail captured at report time.
	TypeException Type = "exception"
)

// Properties are free-form event attributes. Values must be
// JSON-encodable.
type Properties map[string]any

// Event is one telemetry record. Events are created by the public SDK
// calls, stamped with the active identity, and delivered in batches to
// POST {endpoint}/e.
type Event struct {
	// Type classifies the event. Always set.
	Type Type `json:"type"`

	// Event is the event or page name for track/page calls, the alias
	// for alias calls, and the group id for group calls. Empty for
	// identify and exception events.
	Event string `json:"event,omitempty"`

	// Properties are caller-supplied attributes. For identify calls
	// these are user traits; for group calls, group traits.
	Properties Properties `json:"properties,omitempty"`

	// DistinctID is the identity the event belongs to: the user id
	// when identified, else the persisted anonymous id. Never empty on
	// a delivered event.
	DistinctID string `json:"distinctId"`

	// URL and Path describe the application location the event was
	// produced from, when the embedding application configured one.
	URL  string `json:"url,omitempty"`
	Path string `json:"path,omitempty"`

	// UserAgent identifies the producing SDK, e.g. "helio-go/0.1.0".
	UserAgent string `json:"userAgent,omitempty"`

	// Timestamp is when the SDK accepted the event, not when it was
	// delivered. RFC 3339 in JSON.
	Timestamp time.Time `json:"timestamp"`

	// Exception carries the error report for exception events. Nil for
	// every other type.
	Exception *ExceptionPayload `json:"exception,omitempty"`
}

// Breadcrumb is one diagnostic trail entry. Breadcrumbs never leave
// the process on their own; a snapshot of the trail is copied into
// each exception payload at capture time.
type Breadcrumb struct {
	// Category groups related breadcrumbs, e.g. "http", "ui", "query".
	Category string `json:"category"`

	// Message is the human-readable description.
	Message string `json:"message"`

	// Level is an optional severity hint ("debug", "info", "warning",
	// "error"). Empty means unleveled.
	Level string `json:"level,omitempty"`

	// Timestamp is when the breadcrumb was recorded.
	Timestamp time.Time `json:"timestamp"`
}

// Frame is one parsed stack frame. Column is zero when the source of
// the frame (the Go runtime, or a parsed stack text) does not carry
// column information.
type Frame struct {
	Function string `json:"function"`
	File     string `json:"file"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
}

// ExceptionPayload is the body of an exception event. Immutable after
// creation: the breadcrumb slice is a snapshot copy, so breadcrumbs
// recorded after capture never alter an already-captured report.
type ExceptionPayload struct {
	// EventID is the report identifier returned to the caller of
	// CaptureException, 32 lowercase hex characters on the wire.
	EventID EventID `json:"event_id"`

	// Message is the error text, or the coerced string form for
	// non-error captures.
	Message string `json:"message"`

	// Stacktrace holds best-effort frames, innermost first. Empty when
	// no stack could be recovered.
	Stacktrace []Frame `json:"stacktrace"`

	// Breadcrumbs is the diagnostic trail snapshot at capture time,
	// oldest first, at most the ring capacity.
	Breadcrumbs []Breadcrumb `json:"breadcrumbs"`

	// Tags are the active low-cardinality labels (SetTag).
	Tags map[string]string `json:"tags,omitempty"`

	// Extra is the active free-form context (SetExtra).
	Extra map[string]any `json:"extra,omitempty"`
}

// Batch is the body of POST {endpoint}/e.
type Batch struct {
	Events []Event `json:"events"`
}

// FlagValue is a feature flag value as the flag service delivers it:
// a bool, a string variant, a number (float64 after JSON decoding), a
// structured payload, or nil for a missing flag.
type FlagValue any

// FlagEnabled implements the flag truthiness rule: boolean flags
// report their value; the string variants "false" and "control" are
// disabled and every other string is enabled; numbers are enabled when
// nonzero; nil is disabled; any other non-nil payload is enabled.
//
// The empty string counts as enabled. That is a quirk of the flag
// service's wire behavior, kept so rollout decisions match the other
// SDK implementations exactly.
func FlagEnabled(v FlagValue) bool {
	switch value := v.(type) {
	case nil:
		return false
	case bool:
		return value
	case string:
		return value != "false" && value != "control"
	case float64:
		return value != 0
	case int:
		return value != 0
	case int64:
		return value != 0
	default:
		return true
	}
}

// FlagsEqual reports whether two flag values are the same, including
// structured payloads. Used by the flag cache to decide which change
// subscribers to notify after a reload.
func FlagsEqual(a, b FlagValue) bool {
	return reflect.DeepEqual(a, b)
}
