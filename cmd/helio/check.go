// Copyright 2026 The Helio Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/heliohq/helio-go/cmd/helio/cli"
	"github.com/heliohq/helio-go/lib/schema/event"
)

// checkDistinctID labels canary events so deployments can filter them
// out of product analytics.
const checkDistinctID = "helio-cli"

func checkCommand() *cli.Command {
	var connection cli.Connection
	var timeout time.Duration

	return &cli.Command{
		Name:    "check",
		Summary: "Verify deployment connectivity end to end",
		Usage:   "helio check [flags]",
		Description: `Verify that the deployment is reachable with your API key.

Runs two probes: fetches the feature flag set, then submits one canary
track event named "connectivity_check" with distinct ID "helio-cli".
Prints one line per probe with the observed latency. Exits 1 when any
probe fails.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("check", pflag.ContinueOnError)
			connection.AddFlags(flagSet)
			flagSet.DurationVar(&timeout, "timeout", 10*time.Second, "per-probe timeout")
			return flagSet
		},
		Run: func(ctx context.Context, _ []string, logger *slog.Logger) error {
			return runCheck(ctx, os.Stdout, logger, &connection, timeout)
		},
		Examples: []cli.Example{
			{
				Description: "Check the configured deployment",
				Command:     "helio check",
			},
			{
				Description: "Check a staging deployment with an explicit key",
				Command:     "helio check --endpoint https://staging.helio.dev --api-key hk_test_...",
			},
		},
	}
}

func runCheck(ctx context.Context, out io.Writer, logger *slog.Logger, connection *cli.Connection, timeout time.Duration) error {
	if timeout <= 0 {
		return fmt.Errorf("--timeout must be positive, got %s", timeout)
	}

	api, err := connection.Transport(logger)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "endpoint   %s\n", api.Endpoint())

	failed := false

	flagCtx, cancelFlags := context.WithTimeout(ctx, timeout)
	start := time.Now()
	flags, err := api.FetchFlags(flagCtx)
	cancelFlags()
	if err != nil {
		fmt.Fprintf(out, "flags      FAILED: %v\n", err)
		failed = true
	} else {
		fmt.Fprintf(out, "flags      ok: %d flags in %s\n", len(flags), time.Since(start).Round(time.Millisecond))
	}

	canary := event.Event{
		Type:       event.TypeTrack,
		Event:      "connectivity_check",
		DistinctID: checkDistinctID,
		Timestamp:  time.Now().UTC(),
	}
	ingestCtx, cancelIngest := context.WithTimeout(ctx, timeout)
	start = time.Now()
	err = api.SendBatch(ingestCtx, []event.Event{canary})
	cancelIngest()
	if err != nil {
		fmt.Fprintf(out, "ingest     FAILED: %v\n", err)
		failed = true
	} else {
		fmt.Fprintf(out, "ingest     ok: 1 event accepted in %s\n", time.Since(start).Round(time.Millisecond))
	}

	if failed {
		return &cli.ExitError{Code: 1}
	}
	return nil
}
