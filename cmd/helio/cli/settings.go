// Copyright 2026 The Helio Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	helio "github.com/heliohq/helio-go"
	"github.com/heliohq/helio-go/lib/state"
	"github.com/heliohq/helio-go/lib/transport"
)

// Environment variables consulted when the corresponding flag is unset.
const (
	EnvAPIKey   = "HELIO_API_KEY"
	EnvEndpoint = "HELIO_ENDPOINT"
)

// requestTimeout bounds individual API requests issued by CLI commands.
const requestTimeout = 30 * time.Second

// Connection holds the shared flags for reaching a Helio deployment.
// Values resolve in precedence order: explicit flags, then the
// HELIO_API_KEY / HELIO_ENDPOINT environment variables, then the
// settings file.
//
// The settings file is YAML:
//
//	apiKey: hk_live_...
//	endpoint: https://ingest.helio.dev
//
// Usage pattern:
//
//	var connection cli.Connection
//	command := &cli.Command{
//	    Flags: func() *pflag.FlagSet {
//	        fs := pflag.NewFlagSet("mycommand", pflag.ContinueOnError)
//	        connection.AddFlags(fs)
//	        return fs
//	    },
//	    Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
//	        api, err := connection.Transport(logger)
//	        ...
//	    },
//	}
type Connection struct {
	SettingsFile string
	APIKey       string
	Endpoint     string
}

// settingsFile is the YAML shape of the operator settings file.
type settingsFile struct {
	APIKey   string `yaml:"apiKey"`
	Endpoint string `yaml:"endpoint"`
}

// AddFlags registers --settings, --api-key, and --endpoint on the
// given flag set.
func (c *Connection) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&c.SettingsFile, "settings", "", "path to settings file (default ~/.config/helio/settings.yaml)")
	flagSet.StringVar(&c.APIKey, "api-key", "", "project API key (overrides HELIO_API_KEY and the settings file)")
	flagSet.StringVar(&c.Endpoint, "endpoint", "", "ingest endpoint URL (overrides HELIO_ENDPOINT and the settings file)")
}

// DefaultSettingsPath returns the default settings file location,
// ~/.config/helio/settings.yaml (or the platform equivalent).
func DefaultSettingsPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolving user config dir: %w", err)
	}
	return filepath.Join(configDir, "helio", "settings.yaml"), nil
}

// Resolve applies the precedence order and returns the API key and
// endpoint to use. The endpoint falls back to [helio.DefaultEndpoint];
// a missing API key is an error naming every place it can come from.
//
// An explicitly passed --settings file must exist and parse. The
// default settings file is consulted only when present.
func (c *Connection) Resolve() (apiKey, endpoint string, err error) {
	apiKey = c.APIKey
	endpoint = c.Endpoint

	if apiKey == "" {
		apiKey = os.Getenv(EnvAPIKey)
	}
	if endpoint == "" {
		endpoint = os.Getenv(EnvEndpoint)
	}

	if apiKey == "" || endpoint == "" {
		settings, err := c.loadSettings()
		if err != nil {
			return "", "", err
		}
		if apiKey == "" {
			apiKey = settings.APIKey
		}
		if endpoint == "" {
			endpoint = settings.Endpoint
		}
	}

	if apiKey == "" {
		return "", "", fmt.Errorf("an API key is required: pass --api-key, set %s, or put apiKey in the settings file", EnvAPIKey)
	}
	if endpoint == "" {
		endpoint = helio.DefaultEndpoint
	}
	return apiKey, endpoint, nil
}

// loadSettings reads the settings file. A missing default file yields
// empty settings; a missing explicit --settings path is an error.
func (c *Connection) loadSettings() (settingsFile, error) {
	path := c.SettingsFile
	explicit := path != ""
	if !explicit {
		resolved, err := DefaultSettingsPath()
		if err != nil {
			// No config dir on this system. Flags and environment
			// remain available.
			return settingsFile{}, nil
		}
		path = resolved
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return settingsFile{}, nil
		}
		return settingsFile{}, fmt.Errorf("reading settings file: %w", err)
	}

	var settings settingsFile
	if err := yaml.Unmarshal(raw, &settings); err != nil {
		return settingsFile{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return settings, nil
}

// Transport resolves the connection and returns a low-level API client
// for commands that talk to the deployment directly (send, flags,
// watch) without the SDK's local state handling.
func (c *Connection) Transport(logger *slog.Logger) (*transport.Client, error) {
	apiKey, endpoint, err := c.Resolve()
	if err != nil {
		return nil, err
	}
	return transport.New(transport.Config{
		Endpoint:   endpoint,
		APIKey:     func() string { return apiKey },
		HTTPClient: &http.Client{Timeout: requestTimeout},
		Logger:     logger,
	})
}

// Client resolves the connection and builds a full SDK client with
// in-memory state, so CLI invocations never disturb an application's
// persisted identity or opt-out choice.
func (c *Connection) Client(logger *slog.Logger, configure func(*helio.Config)) (*helio.Client, error) {
	apiKey, endpoint, err := c.Resolve()
	if err != nil {
		return nil, err
	}
	config := helio.Config{
		APIKey:     apiKey,
		Endpoint:   endpoint,
		StateStore: state.NewMemStore(),
		Logger:     logger,
	}
	if configure != nil {
		configure(&config)
	}
	return helio.New(config)
}
