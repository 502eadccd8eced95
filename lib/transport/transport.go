// Copyright 2026 The Helio Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport is the typed HTTP client for the Helio ingestion
// API: batch delivery, feature flag fetches, and the entity CRUD
// surface.
//
// The endpoint URL is captured once at construction and immutable for
// the client's lifetime; the API key is read through a function on
// every request so embedders can rotate credentials without
// reconstructing the SDK. These two copy semantics are deliberate and
// distinct.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/heliohq/helio-go/lib/version"
)

// compressionThreshold is the encoded batch size above which request
// bodies are gzip-compressed. Small bodies are cheaper to send raw
// than to compress.
const compressionThreshold = 1 << 10

// Config holds configuration for creating a transport Client.
type Config struct {
	// Endpoint is the API root, e.g. "https://ingest.helio.dev".
	// Required. HTTPS is enforced except for loopback hosts, which may
	// use plain HTTP for local development against the mock server.
	Endpoint string

	// APIKey returns the bearer credential for one request. Required.
	// Called on every request; a rotating key takes effect on the next
	// call without reconstructing the client.
	APIKey func() string

	// HTTPClient executes requests. Defaults to http.DefaultClient.
	// Request timeouts belong on this client; a timeout failure is
	// classified like any other network failure.
	HTTPClient *http.Client

	// UserAgent overrides the User-Agent header. Defaults to
	// version.UserAgent().
	UserAgent string

	// Logger is used for structured logging. Defaults to slog.Default().
	Logger *slog.Logger

	// DisableCompression turns off gzip for large batch bodies.
	DisableCompression bool
}

// Client is the HTTP API client. Safe for concurrent use.
type Client struct {
	endpoint   string
	apiKey     func() string
	httpClient *http.Client
	userAgent  string
	logger     *slog.Logger
	compress   bool
}

// New creates a Client from the given configuration.
func New(config Config) (*Client, error) {
	endpoint := strings.TrimRight(config.Endpoint, "/")
	if endpoint == "" {
		return nil, fmt.Errorf("transport: Endpoint is required")
	}
	if err := checkEndpointScheme(endpoint); err != nil {
		return nil, err
	}
	if config.APIKey == nil {
		return nil, fmt.Errorf("transport: APIKey source is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	userAgent := config.UserAgent
	if userAgent == "" {
		userAgent = version.UserAgent()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		endpoint:   endpoint,
		apiKey:     config.APIKey,
		httpClient: httpClient,
		userAgent:  userAgent,
		logger:     logger,
		compress:   !config.DisableCompression,
	}, nil
}

// checkEndpointScheme enforces HTTPS for everything except loopback
// hosts. Telemetry carries identifiers and error messages; it never
// travels in clear text to a remote host.
func checkEndpointScheme(endpoint string) error {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("transport: invalid endpoint %q: %w", endpoint, err)
	}
	switch parsed.Scheme {
	case "https":
		return nil
	case "http":
		host := parsed.Hostname()
		if host == "localhost" {
			return nil
		}
		if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
			return nil
		}
		return fmt.Errorf("transport: plain HTTP endpoint %q is only allowed for loopback hosts", endpoint)
	default:
		return fmt.Errorf("transport: endpoint %q must use http or https", endpoint)
	}
}

// Endpoint returns the immutable endpoint captured at construction.
func (client *Client) Endpoint() string { return client.endpoint }

// doJSON executes a request whose body, if any, is JSON-encoded from
// requestBody, and returns the raw response body. Non-2xx responses
// return an *APIError.
func (client *Client) doJSON(ctx context.Context, method, path string, requestBody any) ([]byte, error) {
	var payload []byte
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("transport: encoding request body: %w", err)
		}
		payload = encoded
	}
	return client.do(ctx, method, path, payload, false)
}

// do executes one HTTP request against the endpoint. payload may be
// nil for bodyless requests; gzipped marks a payload that is already
// compressed. The API key is read here, once per request.
func (client *Client) do(ctx context.Context, method, path string, payload []byte, gzipped bool) ([]byte, error) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	request, err := http.NewRequestWithContext(ctx, method, client.endpoint+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("transport: creating request: %w", err)
	}

	request.Header.Set("Authorization", "Bearer "+client.apiKey())
	request.Header.Set("User-Agent", client.userAgent)
	if payload != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if gzipped {
		request.Header.Set("Content-Encoding", "gzip")
	}

	response, err := client.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("transport: %s %s: %w", method, path, err)
	}
	defer response.Body.Close()

	body, err := readBody(response.Body)
	if err != nil {
		return nil, fmt.Errorf("transport: reading response body: %w", err)
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return nil, parseAPIError(response.StatusCode, body)
	}
	return body, nil
}

// compressPayload gzips payload when that makes it smaller. Returns
// the body to send and whether it is compressed.
func compressPayload(payload []byte) ([]byte, bool) {
	var buffer bytes.Buffer
	writer := gzip.NewWriter(&buffer)
	if _, err := writer.Write(payload); err != nil {
		return payload, false
	}
	if err := writer.Close(); err != nil {
		return payload, false
	}
	if buffer.Len() >= len(payload) {
		return payload, false
	}
	return buffer.Bytes(), true
}
