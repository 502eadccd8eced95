// Copyright 2026 The Helio Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/spf13/pflag"

	"github.com/heliohq/helio-go/cmd/helio/cli"
	"github.com/heliohq/helio-go/lib/schema/event"
	"github.com/heliohq/helio-go/lib/transport"
)

// flagsOptions holds the resolved flags for one flags invocation.
type flagsOptions struct {
	watch    bool
	interval time.Duration
	asJSON   bool
}

func flagsCommand() *cli.Command {
	var connection cli.Connection
	var options flagsOptions

	return &cli.Command{
		Name:    "flags",
		Summary: "Print the deployment's feature flag set",
		Usage:   "helio flags [flags]",
		Description: `Fetch and print the current feature flag set.

With --watch, keeps polling at the given interval and prints a line for
every flag that appears, changes value, or disappears, until
interrupted.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("flags", pflag.ContinueOnError)
			connection.AddFlags(flagSet)
			flagSet.BoolVar(&options.watch, "watch", false, "keep polling and print changes")
			flagSet.DurationVar(&options.interval, "interval", 30*time.Second, "poll interval for --watch")
			flagSet.BoolVar(&options.asJSON, "json", false, "print the flag set as JSON")
			return flagSet
		},
		Run: func(ctx context.Context, _ []string, logger *slog.Logger) error {
			return runFlags(ctx, os.Stdout, logger, &connection, options)
		},
		Examples: []cli.Example{
			{
				Description: "Print all flags",
				Command:     "helio flags",
			},
			{
				Description: "Print the flag set as JSON",
				Command:     "helio flags --json",
			},
			{
				Description: "Watch for flag changes every ten seconds",
				Command:     "helio flags --watch --interval 10s",
			},
		},
	}
}

func runFlags(ctx context.Context, out io.Writer, logger *slog.Logger, connection *cli.Connection, options flagsOptions) error {
	if options.watch && options.interval <= 0 {
		return fmt.Errorf("--interval must be positive, got %s", options.interval)
	}

	api, err := connection.Transport(logger)
	if err != nil {
		return err
	}

	flags, err := api.FetchFlags(ctx)
	if err != nil {
		return fmt.Errorf("fetching flags: %w", err)
	}

	if options.asJSON {
		if err := cli.WriteJSON(flags); err != nil {
			return err
		}
	} else {
		printFlagSet(out, flags)
	}

	if !options.watch {
		return nil
	}
	return watchFlags(ctx, out, logger, api, flags, options.interval)
}

// printFlagSet writes one "key = value" line per flag in key order.
func printFlagSet(out io.Writer, flags map[string]event.FlagValue) {
	if len(flags) == 0 {
		fmt.Fprintln(out, "no flags defined")
		return
	}
	for _, key := range sortedFlagKeys(flags) {
		fmt.Fprintf(out, "%s = %v\n", key, flags[key])
	}
}

// watchFlags polls until ctx is done, printing a line per change.
// Fetch failures are logged and the loop keeps polling.
func watchFlags(ctx context.Context, out io.Writer, logger *slog.Logger, api *transport.Client, previous map[string]event.FlagValue, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		next, err := api.FetchFlags(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn("flag poll failed", "error", err)
			continue
		}
		printFlagChanges(out, previous, next)
		previous = next
	}
}

// printFlagChanges writes one line per difference between two flag
// snapshots, in key order.
func printFlagChanges(out io.Writer, previous, next map[string]event.FlagValue) {
	for _, key := range sortedFlagKeys(next) {
		value := next[key]
		before, existed := previous[key]
		switch {
		case !existed:
			fmt.Fprintf(out, "%s added = %v\n", key, value)
		case !event.FlagsEqual(before, value):
			fmt.Fprintf(out, "%s changed = %v (was %v)\n", key, value, before)
		}
	}
	for _, key := range sortedFlagKeys(previous) {
		if _, exists := next[key]; !exists {
			fmt.Fprintf(out, "%s removed\n", key)
		}
	}
}

func sortedFlagKeys(flags map[string]event.FlagValue) []string {
	keys := make([]string, 0, len(flags))
	for key := range flags {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}
