// Copyright 2026 The Helio Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/heliohq/helio-go/lib/schema/event"
)

// SendBatch delivers a batch of events with a single POST to the
// ingestion path. Bodies above the compression threshold are
// gzip-compressed unless compression is disabled. An empty batch is a
// no-op.
func (client *Client) SendBatch(ctx context.Context, events []event.Event) error {
	if len(events) == 0 {
		return nil
	}

	payload, err := json.Marshal(event.Batch{Events: events})
	if err != nil {
		return fmt.Errorf("transport: encoding batch of %d events: %w", len(events), err)
	}

	gzipped := false
	if client.compress && len(payload) >= compressionThreshold {
		payload, gzipped = compressPayload(payload)
	}

	if _, err := client.do(ctx, http.MethodPost, "/e", payload, gzipped); err != nil {
		return err
	}
	return nil
}

// FetchFlags retrieves the current feature flag assignments for this
// project. The returned map is never nil.
func (client *Client) FetchFlags(ctx context.Context) (map[string]event.FlagValue, error) {
	body, err := client.do(ctx, http.MethodGet, "/flags", nil, false)
	if err != nil {
		return nil, err
	}

	var decoded struct {
		Flags map[string]event.FlagValue `json:"flags"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("transport: decoding flags response: %w", err)
	}
	if decoded.Flags == nil {
		decoded.Flags = map[string]event.FlagValue{}
	}
	return decoded.Flags, nil
}
