// Copyright 2026 The Helio Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers for the Helio
// developer tools. It centralizes the one raw I/O pattern that exists
// before the structured logger is configured: fatal error reporting
// from main() when run() fails.
package process
