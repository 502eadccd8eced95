// Copyright 2026 The Helio Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/heliohq/helio-go/cmd/helio/cli"
	"github.com/heliohq/helio-go/lib/version"
)

func main() {
	if err := run(); err != nil {
		// Commands that print their own output (like check and spool
		// verify) return an ExitError with the desired exit code. Don't
		// print a redundant "error:" line for those.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := cli.NewCommandLogger()
	return rootCommand().Execute(ctx, os.Args[1:], logger)
}

// rootCommand builds the complete helio CLI command tree.
func rootCommand() *cli.Command {
	return &cli.Command{
		Name: "helio",
		Description: `Helio: telemetry toolkit.

Replay events, query feature flags, stream entity snapshots, and
inspect spool files against a Helio deployment.`,
		Subcommands: []*cli.Command{
			sendCommand(),
			flagsCommand(),
			watchCommand(),
			checkCommand(),
			spoolCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(_ context.Context, _ []string, _ *slog.Logger) error {
					fmt.Printf("helio %s\n", version.Full())
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{
				Description: "Verify the deployment is reachable with your API key",
				Command:     "helio check",
			},
			{
				Description: "Replay captured events from a JSONC file",
				Command:     "helio send --events events.jsonc",
			},
			{
				Description: "Print the current feature flag set",
				Command:     "helio flags",
			},
			{
				Description: "Watch flags for changes every 30 seconds",
				Command:     "helio flags --watch --interval 30s",
			},
			{
				Description: "Stream snapshots of one entity",
				Command:     "helio watch lasers --id laser-7 --interval 2s",
			},
			{
				Description: "Replay a spool file recorded while offline",
				Command:     "helio send --spool events.spool",
			},
			{
				Description: "Check a spool file for corruption",
				Command:     "helio spool verify events.spool",
			},
		},
	}
}
