// Copyright 2026 The Helio Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/spf13/pflag"

	"github.com/heliohq/helio-go/cmd/helio/cli"
	"github.com/heliohq/helio-go/lib/realtime"
)

// watchOptions holds the resolved flags for one watch invocation.
type watchOptions struct {
	id       string
	filter   map[string]string
	interval time.Duration
}

func watchCommand() *cli.Command {
	var connection cli.Connection
	var options watchOptions

	return &cli.Command{
		Name:    "watch",
		Summary: "Stream entity snapshots as JSON lines",
		Usage:   "helio watch <type> [flags]",
		Description: `Poll an entity type and print each snapshot as one JSON line.

Without --id, the filtered collection is watched and each snapshot is
a JSON array. With --id, a single entity is watched and each snapshot
is a JSON object. Runs until interrupted.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("watch", pflag.ContinueOnError)
			connection.AddFlags(flagSet)
			flagSet.StringVar(&options.id, "id", "", "watch a single entity instead of the collection")
			flagSet.StringToStringVar(&options.filter, "filter", nil, "field filter for collection watches (key=value)")
			flagSet.DurationVar(&options.interval, "interval", realtime.DefaultPollInterval, "poll interval")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			return runWatch(ctx, os.Stdout, logger, &connection, args, options)
		},
		Examples: []cli.Example{
			{
				Description: "Stream all lasers every five seconds",
				Command:     "helio watch lasers",
			},
			{
				Description: "Stream one laser at a tighter interval",
				Command:     "helio watch lasers --id laser-7 --interval 2s",
			},
			{
				Description: "Stream only armed lasers",
				Command:     "helio watch lasers --filter status=armed",
			},
		},
	}
}

func runWatch(ctx context.Context, out io.Writer, logger *slog.Logger, connection *cli.Connection, args []string, options watchOptions) error {
	if len(args) != 1 {
		return fmt.Errorf("exactly one entity type is required, got %d args", len(args))
	}
	entityType := args[0]

	api, err := connection.Transport(logger)
	if err != nil {
		return err
	}
	manager, err := realtime.New(realtime.Config{
		Fetcher: api,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	defer manager.Close()

	// Snapshots arrive on the poll goroutine; serialize writes so a
	// slow pipe cannot interleave lines.
	var writeMu sync.Mutex
	subscription, err := manager.Subscribe(realtime.Spec{
		Type:     entityType,
		ID:       options.id,
		Filter:   options.filter,
		Interval: options.interval,
		Handler: func(snapshot []byte) {
			writeMu.Lock()
			defer writeMu.Unlock()
			writeSnapshotLine(out, snapshot)
		},
	})
	if err != nil {
		return err
	}

	<-ctx.Done()
	subscription.Unsubscribe()
	return nil
}

// writeSnapshotLine writes one snapshot as a single compact JSON line.
// Snapshots that are not valid JSON pass through untouched.
func writeSnapshotLine(out io.Writer, snapshot []byte) {
	var compact bytes.Buffer
	if err := json.Compact(&compact, snapshot); err != nil {
		compact.Reset()
		compact.Write(snapshot)
	}
	compact.WriteByte('\n')
	out.Write(compact.Bytes())
}
