// Copyright 2026 The Helio Authors
// SPDX-License-Identifier: Apache-2.0

// Helio is the operator CLI for Helio telemetry deployments. It
// provides subcommands for replaying captured events against an ingest
// endpoint (send), querying and watching feature flags (flags),
// streaming live entity snapshots (watch), verifying deployment
// connectivity end to end (check), and inspecting local spool files
// written by the spool forwarder (spool dump, spool verify).
package main
