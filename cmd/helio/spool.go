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
	"strings"

	"github.com/heliohq/helio-go/cmd/helio/cli"
	"github.com/heliohq/helio-go/lib/forward"
)

func spoolCommand() *cli.Command {
	return &cli.Command{
		Name:    "spool",
		Summary: "Inspect spool files written by the spool forwarder",
		Subcommands: []*cli.Command{
			spoolDumpCommand(),
			spoolVerifyCommand(),
		},
	}
}

func spoolDumpCommand() *cli.Command {
	return &cli.Command{
		Name:    "dump",
		Summary: "Print spooled events as JSON lines",
		Usage:   "helio spool dump <file>",
		Description: `Decode a spool file and print each event as one JSON line, in the
order the events were recorded.

A corrupt record aborts the dump with an error naming its byte offset;
everything before it has already been printed.`,
		Run: func(_ context.Context, args []string, _ *slog.Logger) error {
			if len(args) != 1 {
				return fmt.Errorf("exactly one spool file is required, got %d args", len(args))
			}
			return runSpoolDump(os.Stdout, args[0])
		},
		Examples: []cli.Example{
			{
				Description: "Extract track events with jq",
				Command:     "helio spool dump events.spool | jq 'select(.type == \"track\")'",
			},
		},
	}
}

func runSpoolDump(out io.Writer, path string) error {
	reader, err := forward.OpenSpoolReader(path)
	if err != nil {
		return err
	}
	defer reader.Close()

	encoder := json.NewEncoder(out)
	for {
		record, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		if err := encoder.Encode(record.Event); err != nil {
			return fmt.Errorf("printing event: %w", err)
		}
	}
}

func spoolVerifyCommand() *cli.Command {
	return &cli.Command{
		Name:    "verify",
		Summary: "Check a spool file's checksums and structure",
		Usage:   "helio spool verify <file>",
		Description: `Walk every record of a spool file, verifying magic bytes, checksums,
compression framing, and event encoding.

Prints a summary and exits 0 when the file is clean. Prints the first
corrupt record's offset and exits 1 otherwise.`,
		Run: func(_ context.Context, args []string, _ *slog.Logger) error {
			if len(args) != 1 {
				return fmt.Errorf("exactly one spool file is required, got %d args", len(args))
			}
			return runSpoolVerify(os.Stdout, args[0])
		},
	}
}

func runSpoolVerify(out io.Writer, path string) error {
	reader, err := forward.OpenSpoolReader(path)
	if err != nil {
		return err
	}
	defer reader.Close()

	records := 0
	var diskBytes int64
	perTag := make(map[forward.CompressionTag]int)
	for {
		record, err := reader.Next()
		if errors.Is(err, io.EOF) {
			fmt.Fprintf(out, "ok: %d records, %d bytes on disk%s\n", records, diskBytes, tagBreakdown(perTag))
			return nil
		}
		if err != nil {
			fmt.Fprintf(out, "%s: %v\n", path, err)
			fmt.Fprintf(out, "verified %d records (%d bytes) before the damage\n", records, diskBytes)
			return &cli.ExitError{Code: 1}
		}
		records++
		diskBytes += int64(record.Size)
		perTag[record.Tag]++
	}
}

// tagBreakdown renders the per-compression record counts, e.g.
// " (lz4 40, none 2)". Empty for an empty spool.
func tagBreakdown(perTag map[forward.CompressionTag]int) string {
	var parts []string
	for _, tag := range []forward.CompressionTag{forward.CompressionLZ4, forward.CompressionZstd, forward.CompressionNone} {
		if count := perTag[tag]; count > 0 {
			parts = append(parts, fmt.Sprintf("%s %d", tag, count))
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return " (" + strings.Join(parts, ", ") + ")"
}
