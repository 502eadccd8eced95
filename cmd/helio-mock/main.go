// Copyright 2026 The Helio Authors
// SPDX-License-Identifier: Apache-2.0

// Helio-mock is an in-memory stand-in for the Helio ingestion API,
// used for SDK development and integration tests. It accepts the real
// wire protocol — batched events on /e (gzip understood), feature
// flags on /flags, entity CRUD under /entities — and stores everything
// in memory.
//
// Admin endpoints let tests inspect and shape the mock:
//
//   - GET  /admin/events: stored events, optionally filtered by type,
//     with long-poll support (?min=N&timeout=5s) so tests can wait for
//     delivery instead of sleeping
//   - POST /admin/flags: replace the flag set
//   - POST /admin/entities/{type}: bulk-seed entities
//   - POST /admin/fail: make the next N /e requests fail with a chosen
//     status, for retry and backoff demonstrations
//   - POST /admin/reset: back to the boot state
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/heliohq/helio-go/lib/process"
	"github.com/heliohq/helio-go/lib/schema/event"
	"github.com/heliohq/helio-go/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

// flagsFile is the YAML shape accepted by --flags-file.
type flagsFile struct {
	Flags map[string]event.FlagValue `yaml:"flags"`
}

func run() error {
	var (
		listen      string
		flagsPath   string
		verbose     bool
		showVersion bool
	)
	pflag.StringVar(&listen, "listen", "127.0.0.1:8273", "address to serve on")
	pflag.StringVar(&flagsPath, "flags-file", "", "YAML file seeding the feature flag set")
	pflag.BoolVar(&verbose, "verbose", false, "log every request")
	pflag.BoolVar(&showVersion, "version", false, "print version information and exit")
	pflag.Parse()

	if showVersion {
		version.Print("helio-mock")
		return nil
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	seedFlags := map[string]event.FlagValue{}
	if flagsPath != "" {
		raw, err := os.ReadFile(flagsPath)
		if err != nil {
			return fmt.Errorf("reading flags file: %w", err)
		}
		var parsed flagsFile
		if err := yaml.Unmarshal(raw, &parsed); err != nil {
			return fmt.Errorf("parsing flags file %s: %w", flagsPath, err)
		}
		seedFlags = parsed.Flags
		logger.Info("seeded feature flags", "path", flagsPath, "count", len(seedFlags))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mock := newMockServer(logger, seedFlags)
	server := &http.Server{
		Addr:              listen,
		Handler:           mock.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- server.ListenAndServe()
	}()

	logger.Info("helio mock running", "listen", listen, "version", version.Info())

	select {
	case err := <-serverDone:
		return fmt.Errorf("mock server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-serverDone; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("mock server: %w", err)
	}
	return nil
}
