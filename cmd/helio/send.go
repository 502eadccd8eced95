// Copyright 2026 The Helio Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"
	"github.com/tidwall/jsonc"

	helio "github.com/heliohq/helio-go"
	"github.com/heliohq/helio-go/cmd/helio/cli"
	"github.com/heliohq/helio-go/lib/forward"
	"github.com/heliohq/helio-go/lib/schema/event"
)

// sendOptions holds the resolved flags for one send invocation.
type sendOptions struct {
	eventsPath string
	spoolPath  string
	batchSize  int
	dryRun     bool
}

func sendCommand() *cli.Command {
	var connection cli.Connection
	var options sendOptions

	return &cli.Command{
		Name:    "send",
		Summary: "Replay events from a file to the ingest endpoint",
		Usage:   "helio send [flags]",
		Description: `Replay events against the ingest endpoint.

Events come from one of two sources: a JSONC file holding an array of
events (--events), or a spool file written by the spool forwarder
(--spool). Events are sent verbatim: identities and timestamps in the
file are preserved, which makes send suitable for re-submitting events
captured while the network was down.

With --dry-run, the parsed events are printed as JSON lines instead of
being sent.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("send", pflag.ContinueOnError)
			connection.AddFlags(flagSet)
			flagSet.StringVar(&options.eventsPath, "events", "", "JSONC file holding an array of events")
			flagSet.StringVar(&options.spoolPath, "spool", "", "spool file to replay")
			flagSet.IntVar(&options.batchSize, "batch-size", helio.DefaultBatchSize, "events per request")
			flagSet.BoolVar(&options.dryRun, "dry-run", false, "print parsed events instead of sending")
			return flagSet
		},
		Run: func(ctx context.Context, _ []string, logger *slog.Logger) error {
			return runSend(ctx, os.Stdout, logger, &connection, options)
		},
		Examples: []cli.Example{
			{
				Description: "Replay a JSONC event file",
				Command:     "helio send --events events.jsonc",
			},
			{
				Description: "Replay a spool file in batches of 50",
				Command:     "helio send --spool events.spool --batch-size 50",
			},
			{
				Description: "Inspect what would be sent",
				Command:     "helio send --events events.jsonc --dry-run",
			},
		},
	}
}

func runSend(ctx context.Context, out io.Writer, logger *slog.Logger, connection *cli.Connection, options sendOptions) error {
	if options.eventsPath == "" && options.spoolPath == "" {
		return fmt.Errorf("an event source is required: pass --events or --spool")
	}
	if options.eventsPath != "" && options.spoolPath != "" {
		return fmt.Errorf("--events and --spool are mutually exclusive")
	}
	if options.batchSize <= 0 {
		return fmt.Errorf("--batch-size must be positive, got %d", options.batchSize)
	}

	var events []event.Event
	var err error
	if options.eventsPath != "" {
		events, err = loadEventsFile(options.eventsPath)
	} else {
		events, err = loadSpoolEvents(options.spoolPath)
	}
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return fmt.Errorf("no events to send")
	}

	if options.dryRun {
		encoder := json.NewEncoder(out)
		for _, ev := range events {
			if err := encoder.Encode(ev); err != nil {
				return fmt.Errorf("printing event: %w", err)
			}
		}
		return nil
	}

	api, err := connection.Transport(logger)
	if err != nil {
		return err
	}

	batches := 0
	for start := 0; start < len(events); start += options.batchSize {
		end := min(start+options.batchSize, len(events))
		if err := api.SendBatch(ctx, events[start:end]); err != nil {
			return fmt.Errorf("sending batch %d (events %d-%d): %w", batches+1, start+1, end, err)
		}
		batches++
		logger.Debug("batch sent", "batch", batches, "events", end-start)
	}

	fmt.Fprintf(out, "sent %d events in %d batches\n", len(events), batches)
	return nil
}

// loadEventsFile reads a JSONC file holding an array of events.
// Comments and trailing commas are stripped before decoding.
func loadEventsFile(path string) ([]event.Event, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading events file: %w", err)
	}

	var events []event.Event
	if err := json.Unmarshal(jsonc.ToJSON(raw), &events); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return events, nil
}

// loadSpoolEvents reads every record of a spool file. A corrupt record
// aborts the load; use "helio spool verify" to locate the damage.
func loadSpoolEvents(path string) ([]event.Event, error) {
	reader, err := forward.OpenSpoolReader(path)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	var events []event.Event
	for {
		record, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return events, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		events = append(events, record.Event)
	}
}
