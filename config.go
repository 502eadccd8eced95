// Copyright 2026 The Helio Authors
// SPDX-License-Identifier: Apache-2.0

package helio

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/heliohq/helio-go/lib/clock"
	"github.com/heliohq/helio-go/lib/delivery"
	"github.com/heliohq/helio-go/lib/state"
	"github.com/heliohq/helio-go/lib/version"
)

// DefaultEndpoint is the public ingestion API root. The HELIO_ENDPOINT
// environment variable overrides it; Config.Endpoint overrides both.
const DefaultEndpoint = "https://ingest.helio.dev"

// Defaults applied by New when the corresponding Config field is zero.
const (
	DefaultTimeout     = 10 * time.Second
	DefaultInitTimeout = 5 * time.Second

	// DefaultBatchSize and friends live in lib/delivery; they are
	// re-exported here so embedders configuring the client never import
	// the internal packages.
	DefaultBatchSize     = delivery.DefaultBatchSize
	DefaultFlushInterval = delivery.DefaultFlushInterval
	DefaultMaxAttempts   = delivery.DefaultMaxAttempts
	DefaultBaseDelay     = delivery.DefaultBaseDelay
)

// breadcrumbCapacity bounds the breadcrumb trail attached to exception
// reports. The oldest entry is evicted when a new one would exceed it.
const breadcrumbCapacity = 100

// endpointEnvVar overrides the default endpoint when Config.Endpoint is
// empty. The explicit field always wins over the environment.
const endpointEnvVar = "HELIO_ENDPOINT"

// Config configures a Client. The zero value needs only an API key:
//
//	client, err := helio.New(helio.Config{APIKey: key})
//
// Everything else has a default.
type Config struct {
	// APIKey is the bearer credential sent with every request. Snapshotted
	// at construction. Either APIKey or APIKeyFunc is required.
	APIKey string

	// APIKeyFunc supplies the credential per request, so a rotated key
	// takes effect without rebuilding the client. Takes precedence over
	// APIKey when both are set.
	APIKeyFunc func() string

	// Endpoint is the API root. Defaults to the HELIO_ENDPOINT
	// environment variable, then DefaultEndpoint. HTTPS is enforced
	// except for loopback hosts.
	Endpoint string

	// BatchSize is the auto-flush threshold and the maximum events per
	// request. Defaults to DefaultBatchSize.
	BatchSize int

	// FlushInterval is the period of the timer flush. Defaults to
	// DefaultFlushInterval.
	FlushInterval time.Duration

	// SampleRate admits each event with the given probability in [0, 1].
	// nil admits everything; a pointer to 0 admits nothing.
	SampleRate *float64

	// Timeout bounds each HTTP request. Applied to the default HTTP
	// client only; ignored when HTTPClient is set, which carries its own
	// timeout policy. Defaults to DefaultTimeout.
	Timeout time.Duration

	// MaxAttempts is the total number of delivery attempts per batch,
	// the initial send included. Defaults to DefaultMaxAttempts.
	MaxAttempts int

	// BaseDelay is the first retry delay; each subsequent retry doubles
	// it. Defaults to DefaultBaseDelay.
	BaseDelay time.Duration

	// FlagRefreshInterval enables a background feature-flag refresh loop
	// with the given period. Zero disables it; flags then update only
	// via ReloadFeatureFlags.
	FlagRefreshInterval time.Duration

	// InitTimeout bounds the initial feature-flag load inside New. A
	// load that misses the deadline is logged and skipped; the client
	// starts with an empty flag cache. Defaults to DefaultInitTimeout.
	InitTimeout time.Duration

	// EntityTypes registers the entity types this application works
	// with. When non-empty, entity operations against any other type
	// fail synchronously with *UnknownEntityError. Empty disables the
	// check.
	EntityTypes []string

	// StateDir is the directory for the durable identity state file.
	// Defaults to os.UserConfigDir()/helio.
	StateDir string

	// StateStore replaces file-backed persistence wholesale. When set,
	// StateDir is ignored.
	StateStore state.Store

	// DisableCompression turns off gzip for large batch bodies.
	DisableCompression bool

	// AppURL is the application location stamped on outbound events'
	// url/path fields. Optional.
	AppURL string

	// UserAgent overrides the User-Agent header and the userAgent event
	// field. Defaults to version.UserAgent().
	UserAgent string

	// DefaultTags seed the tag set attached to exception reports.
	// Reset restores them.
	DefaultTags map[string]string

	// Logger is used for structured logging. The client never logs
	// above Warn: telemetry failures must not alarm the embedding
	// application. Defaults to slog.Default().
	Logger *slog.Logger

	// Clock drives flush timers, retry backoff, and poll loops. Defaults
	// to clock.Real(). Tests inject clock.NewFake.
	Clock clock.Clock

	// HTTPClient executes API requests. Defaults to a client with
	// Timeout applied.
	HTTPClient *http.Client
}

// normalized validates config and returns a copy with every default
// applied, plus the resolved credential source.
func (c Config) normalized() (Config, func() string, error) {
	apiKey := c.APIKeyFunc
	if apiKey == nil && c.APIKey != "" {
		key := c.APIKey
		apiKey = func() string { return key }
	}
	if apiKey == nil {
		return Config{}, nil, &ValidationError{
			Field:   "APIKey",
			Message: "an API key is required (set APIKey or APIKeyFunc)",
		}
	}

	if c.Endpoint == "" {
		c.Endpoint = os.Getenv(endpointEnvVar)
	}
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}

	if c.SampleRate != nil {
		if rate := *c.SampleRate; rate < 0 || rate > 1 {
			return Config{}, nil, &ValidationError{
				Field:   "SampleRate",
				Message: fmt.Sprintf("rate %v outside [0, 1]", rate),
			}
		}
	}

	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = DefaultFlushInterval
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.InitTimeout <= 0 {
		c.InitTimeout = DefaultInitTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = version.UserAgent()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}

	return c, apiKey, nil
}

// statePath resolves the durable state file location when no StateStore
// is injected.
func (c Config) statePath() (string, error) {
	directory := c.StateDir
	if directory == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("resolving user config directory: %w", err)
		}
		directory = filepath.Join(base, "helio")
	}
	return filepath.Join(directory, "state.json"), nil
}

// appPath extracts the path component of AppURL for the event path
// field. An unparseable AppURL yields an empty path; the raw value
// still ships in the url field.
func (c Config) appPath() string {
	if c.AppURL == "" {
		return ""
	}
	parsed, err := url.Parse(c.AppURL)
	if err != nil {
		return ""
	}
	return parsed.Path
}
