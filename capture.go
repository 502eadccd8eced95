// Copyright 2026 The Helio Authors
// SPDX-License-Identifier: Apache-2.0

package helio

import (
	"fmt"

	"github.com/heliohq/helio-go/lib/schema/event"
	"github.com/heliohq/helio-go/lib/stacktrace"
)

// Track records a named product event with optional properties.
func (c *Client) Track(name string, properties event.Properties) {
	if name == "" {
		c.logger.Warn("Track called with empty event name, ignoring")
		return
	}
	c.capture(event.Event{Type: event.TypeTrack, Event: name, Properties: properties})
}

// Page records a page or screen view.
func (c *Client) Page(name string, properties event.Properties) {
	if name == "" {
		c.logger.Warn("Page called with empty page name, ignoring")
		return
	}
	c.capture(event.Event{Type: event.TypePage, Event: name, Properties: properties})
}

// Identify binds the active identity to userID and emits an identify
// event carrying the given user traits. Subsequent events are stamped
// with userID until Reset.
func (c *Client) Identify(userID string, traits event.Properties) {
	if userID == "" {
		c.logger.Warn("Identify called with empty user id, ignoring")
		return
	}
	if err := c.identity.Identify(userID); err != nil {
		// The in-memory identity is updated regardless; only the
		// session persistence failed.
		c.logger.Warn("persisting user id failed", "error", err)
	}
	c.capture(event.Event{Type: event.TypeIdentify, Properties: traits})
}

// Alias links a secondary identifier to the active identity.
func (c *Client) Alias(alias string) {
	if alias == "" {
		c.logger.Warn("Alias called with empty alias, ignoring")
		return
	}
	c.capture(event.Event{Type: event.TypeAlias, Event: alias})
}

// Group associates the active identity with a group, carrying optional
// group traits.
func (c *Client) Group(groupID string, traits event.Properties) {
	if groupID == "" {
		c.logger.Warn("Group called with empty group id, ignoring")
		return
	}
	c.capture(event.Event{Type: event.TypeGroup, Event: groupID, Properties: traits})
}

// CaptureException reports err as an exception event with stack frames,
// the breadcrumb trail, and the active tags and extra context. The
// returned id identifies the report to the ingestion API.
//
// Errors whose text embeds a formatted Go stack are parsed for frames;
// otherwise the live call stack is captured, with SDK-internal frames
// dropped so the report starts at application code.
func (c *Client) CaptureException(err error) event.EventID {
	message := "unknown error"
	if err != nil {
		message = err.Error()
	}
	frames := stacktrace.Parse(message)
	if len(frames) == 0 {
		frames = stacktrace.Capture(1)
	}
	return c.report(message, frames)
}

// CaptureMessage reports an arbitrary message as an exception event,
// with the live call stack attached.
func (c *Client) CaptureMessage(message string) event.EventID {
	return c.report(message, stacktrace.Capture(1))
}

// CapturePanic reports a recovered panic value:
//
//	defer func() {
//		if r := recover(); r != nil {
//			client.CapturePanic(r)
//			panic(r)
//		}
//	}()
//
// A nil value (no panic in flight) is a no-op returning the zero id.
// When the recovered value carries formatted stack text it is parsed;
// otherwise the deferred call stack is captured, which still includes
// the panicking frames.
func (c *Client) CapturePanic(recovered any) event.EventID {
	if recovered == nil {
		return event.EventID{}
	}
	message := fmt.Sprintf("panic: %v", recovered)
	frames := stacktrace.Parse(fmt.Sprintf("%v", recovered))
	if len(frames) == 0 {
		frames = stacktrace.Capture(1)
	}
	return c.report(message, frames)
}

// report assembles an exception event from message, frames, and the
// capture context snapshot, and runs it through the pipeline. The id is
// returned even when the pipeline discards the event (opt-out,
// sampling): capture is fire-and-forget, so the admission outcome is
// not observable by the caller.
func (c *Client) report(message string, frames []event.Frame) event.EventID {
	id := event.NewEventID()

	c.mu.Lock()
	trail := c.crumbs
	var tags map[string]string
	if len(c.tags) > 0 {
		tags = make(map[string]string, len(c.tags))
		for key, value := range c.tags {
			tags[key] = value
		}
	}
	var extra map[string]any
	if len(c.extra) > 0 {
		extra = make(map[string]any, len(c.extra))
		for key, value := range c.extra {
			extra[key] = value
		}
	}
	c.mu.Unlock()

	c.capture(event.Event{
		Type: event.TypeException,
		Exception: &event.ExceptionPayload{
			EventID:     id,
			Message:     message,
			Stacktrace:  frames,
			Breadcrumbs: trail.Snapshot(),
			Tags:        tags,
			Extra:       extra,
		},
	})
	return id
}

// capture runs the admission pipeline: opt-out check, sampling gate,
// identity stamp, forwarder dispatch, queue enqueue. Synchronous and
// non-blocking; no network I/O happens on the caller's goroutine.
func (c *Client) capture(ev event.Event) {
	if c.identity.OptedOut() {
		c.logger.Debug("event discarded, telemetry opted out", "type", ev.Type)
		return
	}
	if !c.sampler.Admit() {
		c.logger.Debug("event discarded by sampling", "type", ev.Type)
		return
	}

	c.stamp(&ev)
	c.forwarders.Dispatch(ev)

	if _, ok := c.delivery.Enqueue(ev); !ok {
		c.logger.Debug("event discarded, client is shut down", "type", ev.Type)
	}
}

// stamp fills the identity and provenance fields every outbound event
// carries. Caller-set fields win; only empty ones are filled.
func (c *Client) stamp(ev *event.Event) {
	ev.DistinctID = c.identity.DistinctID()
	if ev.Timestamp.IsZero() {
		ev.Timestamp = c.clk.Now().UTC()
	}
	if ev.URL == "" {
		ev.URL = c.config.AppURL
		ev.Path = c.appPath
	}
	if ev.UserAgent == "" {
		ev.UserAgent = c.config.UserAgent
	}
}
