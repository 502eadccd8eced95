// Copyright 2026 The Helio Authors
// SPDX-License-Identifier: Apache-2.0

package forward

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/heliohq/helio-go/lib/schema/event"
	"github.com/heliohq/helio-go/lib/version"
)

// webhookMaxResponse bounds how much of a webhook response body is
// drained before the connection is released.
const webhookMaxResponse = 8 << 10

// defaultWebhookTimeout bounds a webhook POST when no HTTPClient is
// supplied.
const defaultWebhookTimeout = 10 * time.Second

// WebhookConfig holds configuration for creating a Webhook.
type WebhookConfig struct {
	// URL receives one POST per event. Required; must be http or
	// https.
	URL string

	// HTTPClient performs the requests. Defaults to a client with a
	// 10 second timeout.
	HTTPClient *http.Client

	// Headers are set on every request, e.g. an Authorization header.
	Headers map[string]string
}

// Webhook is a Forwarder that POSTs each event as a JSON document to a
// fixed URL. Delivery is best-effort; the response body is discarded.
type Webhook struct {
	url     string
	client  *http.Client
	headers map[string]string
}

// NewWebhook creates a Webhook.
func NewWebhook(config WebhookConfig) (*Webhook, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("forward: webhook URL is required")
	}
	parsed, err := url.Parse(config.URL)
	if err != nil {
		return nil, fmt.Errorf("forward: invalid webhook URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("forward: webhook URL must be http or https, got %q", parsed.Scheme)
	}

	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultWebhookTimeout}
	}
	return &Webhook{
		url:     config.URL,
		client:  client,
		headers: config.Headers,
	}, nil
}

// URL returns the webhook target.
func (w *Webhook) URL() string { return w.url }

// Forward posts ev to the webhook URL.
func (w *Webhook) Forward(ctx context.Context, ev event.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding webhook payload: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("User-Agent", version.UserAgent())
	for name, value := range w.headers {
		request.Header.Set(name, value)
	}

	response, err := w.client.Do(request)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer response.Body.Close()

	// Drain a bounded amount so the connection can be reused.
	io.Copy(io.Discard, io.LimitReader(response.Body, webhookMaxResponse))

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return fmt.Errorf("webhook returned %s", response.Status)
	}
	return nil
}
