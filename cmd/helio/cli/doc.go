// Copyright 2026 The Helio Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the command-line framework for the helio CLI.
//
// The central type is [Command], which represents a named subcommand
// with optional nested [Command.Subcommands], a [pflag.FlagSet]
// factory, and a Run function. Commands are assembled into a tree in
// cmd/helio/main.go and dispatched via [Command.Execute], which
// handles flag parsing, subcommand routing, and structured help output
// with examples.
//
// When a user types an unknown subcommand or flag, the framework
// computes Levenshtein edit distance against all known names and
// suggests the closest match (threshold: distance <= 3). This is
// implemented in suggest.go.
//
// [Connection] holds the shared flags for reaching a Helio deployment
// (--api-key, --endpoint, --settings) and resolves them against the
// HELIO_API_KEY and HELIO_ENDPOINT environment variables and the
// operator's settings file at ~/.config/helio/settings.yaml.
package cli
