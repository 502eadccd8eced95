// Copyright 2026 The Helio Authors
// SPDX-License-Identifier: Apache-2.0

package helio

import (
	"context"
	"sync"
)

// The process-default client. A convenience for application entry
// points; library code should hold an explicit *Client instead.
var (
	defaultMu     sync.Mutex
	defaultClient *Client
)

// Init constructs a Client and installs it as the process default. A
// second Init finds the default already set, logs a warning through the
// existing client, and returns it unchanged; it never fails for that
// reason. Config problems on the first call return *ValidationError.
func Init(config Config) (*Client, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultClient != nil {
		defaultClient.logger.Warn("Init called on an initialized client, returning the existing one")
		return defaultClient, nil
	}

	client, err := New(config)
	if err != nil {
		return nil, err
	}
	defaultClient = client
	return client, nil
}

// Default returns the client installed by Init, or nil before Init.
func Default() *Client {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultClient
}

// Close shuts down and uninstalls the default client. A no-op when
// none is installed. After Close, Init may install a fresh one.
func Close(ctx context.Context) error {
	defaultMu.Lock()
	client := defaultClient
	defaultClient = nil
	defaultMu.Unlock()

	if client == nil {
		return nil
	}
	return client.Shutdown(ctx)
}
