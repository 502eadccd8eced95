// Copyright 2026 The Helio Authors
// SPDX-License-Identifier: Apache-2.0

package helio

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/heliohq/helio-go/lib/clock"
	"github.com/heliohq/helio-go/lib/delivery"
	"github.com/heliohq/helio-go/lib/flagcache"
	"github.com/heliohq/helio-go/lib/forward"
	"github.com/heliohq/helio-go/lib/identity"
	"github.com/heliohq/helio-go/lib/realtime"
	"github.com/heliohq/helio-go/lib/ring"
	"github.com/heliohq/helio-go/lib/sampling"
	"github.com/heliohq/helio-go/lib/schema/event"
	"github.com/heliohq/helio-go/lib/state"
	"github.com/heliohq/helio-go/lib/transport"
)

// Client is the telemetry client. One Client per application is the
// intended shape; all methods are safe for concurrent use.
//
// Construct with New, release with Shutdown. Telemetry methods (Track,
// CaptureException, ...) never block on the network and never return
// delivery errors; delivery failures are retried in the background and
// logged when dropped. Entity operations are the exception: they are
// synchronous API calls and propagate errors.
type Client struct {
	config  Config
	logger  *slog.Logger
	clk     clock.Clock
	appPath string

	identity   *identity.Store
	sampler    *sampling.Gate
	api        *transport.Client
	delivery   *delivery.Manager
	flags      *flagcache.Cache
	forwarders *forward.Manager
	realtime   *realtime.Manager

	// mu guards the capture context below. The ring is internally
	// locked; the pointer is guarded here because Reset swaps it.
	mu     sync.Mutex
	crumbs *ring.Ring[event.Breadcrumb]
	tags   map[string]string
	extra  map[string]any

	bgCancel     context.CancelFunc
	shutdownOnce sync.Once
}

// New creates a started Client: the delivery loop is running, the
// feature flag cache is loaded (bounded by Config.InitTimeout, failure
// tolerated), and the optional flag refresh loop is up. The caller owns
// the client and must release it with Shutdown.
//
// Config problems return *ValidationError. Nothing else fails: a
// missing state directory or an unreachable flag service degrade with a
// warning, because constructing telemetry must never break the
// embedding application.
func New(config Config) (*Client, error) {
	normalized, apiKey, err := config.normalized()
	if err != nil {
		return nil, err
	}
	logger := normalized.Logger

	durable := normalized.StateStore
	if durable == nil {
		path, err := normalized.statePath()
		if err != nil {
			logger.Warn("identity will not survive restarts", "error", err)
			durable = state.NewMemStore()
		} else {
			durable = state.NewFileStore(path)
		}
	}

	ident, err := identity.New(identity.Config{Durable: durable, Logger: logger})
	if err != nil {
		return nil, err
	}

	rate := 1.0
	if normalized.SampleRate != nil {
		rate = *normalized.SampleRate
	}
	sampler, err := sampling.New(rate)
	if err != nil {
		return nil, &ValidationError{Field: "SampleRate", Message: err.Error()}
	}

	httpClient := normalized.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: normalized.Timeout}
	}
	api, err := transport.New(transport.Config{
		Endpoint:           normalized.Endpoint,
		APIKey:             apiKey,
		HTTPClient:         httpClient,
		UserAgent:          normalized.UserAgent,
		Logger:             logger,
		DisableCompression: normalized.DisableCompression,
	})
	if err != nil {
		return nil, &ValidationError{Field: "Endpoint", Message: err.Error()}
	}

	deliveryManager, err := delivery.New(delivery.Config{
		Sender:        api,
		BatchSize:     normalized.BatchSize,
		FlushInterval: normalized.FlushInterval,
		BaseDelay:     normalized.BaseDelay,
		MaxAttempts:   normalized.MaxAttempts,
		Clock:         normalized.Clock,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}

	flags, err := flagcache.New(flagcache.Config{
		Fetcher: api,
		Clock:   normalized.Clock,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	realtimeManager, err := realtime.New(realtime.Config{
		Fetcher: api,
		Clock:   normalized.Clock,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	background, cancel := context.WithCancel(context.Background())
	client := &Client{
		config:     normalized,
		logger:     logger,
		clk:        normalized.Clock,
		appPath:    normalized.appPath(),
		identity:   ident,
		sampler:    sampler,
		api:        api,
		delivery:   deliveryManager,
		flags:      flags,
		forwarders: forward.NewManager(logger),
		realtime:   realtimeManager,
		crumbs:     ring.New[event.Breadcrumb](breadcrumbCapacity),
		tags:       cloneTags(normalized.DefaultTags),
		extra:      make(map[string]any),
		bgCancel:   cancel,
	}

	loadCtx, loadCancel := context.WithTimeout(background, normalized.InitTimeout)
	if err := client.flags.Load(loadCtx); err != nil {
		logger.Warn("initial feature flag load failed, starting with empty flag cache", "error", err)
	}
	loadCancel()

	go client.delivery.Run(background)
	if normalized.FlagRefreshInterval > 0 {
		go client.flags.Run(background, normalized.FlagRefreshInterval)
	}

	return client, nil
}

// cloneTags copies seed so the client's mutable tag set never aliases
// the caller's map.
func cloneTags(seed map[string]string) map[string]string {
	tags := make(map[string]string, len(seed))
	for key, value := range seed {
		tags[key] = value
	}
	return tags
}

// DistinctID returns the identity stamped on outbound events: the user
// id when identified, else the persisted anonymous id.
func (c *Client) DistinctID() string { return c.identity.DistinctID() }

// SetUser sets the active user id without emitting an identify event.
// Use Identify to also notify the ingestion API.
func (c *Client) SetUser(userID string) {
	if userID == "" {
		c.logger.Warn("SetUser called with empty user id, ignoring")
		return
	}
	if err := c.identity.Identify(userID); err != nil {
		c.logger.Warn("setting user id failed", "error", err)
	}
}

// OptOut durably disables telemetry. Events captured while opted out
// are discarded before they reach the queue. Realtime subscriptions and
// entity operations are not telemetry and keep working.
func (c *Client) OptOut() {
	if err := c.identity.OptOut(); err != nil {
		c.logger.Warn("persisting opt-out failed, opt-out active for this process only", "error", err)
	}
}

// OptIn re-enables telemetry after OptOut.
func (c *Client) OptIn() {
	if err := c.identity.OptIn(); err != nil {
		c.logger.Warn("clearing opt-out failed", "error", err)
	}
}

// OptedOut reports whether telemetry is disabled by consent.
func (c *Client) OptedOut() bool { return c.identity.OptedOut() }

// SetTag sets a low-cardinality label attached to subsequent exception
// reports.
func (c *Client) SetTag(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tags[key] = value
}

// SetExtra sets a free-form context value attached to subsequent
// exception reports. The value must be JSON-encodable.
func (c *Client) SetExtra(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.extra[key] = value
}

// AddBreadcrumb appends an entry to the diagnostic trail. The trail
// holds the most recent entries up to a fixed capacity; a snapshot is
// attached to each exception report. A zero Timestamp is filled with
// the current time.
func (c *Client) AddBreadcrumb(crumb event.Breadcrumb) {
	if crumb.Timestamp.IsZero() {
		crumb.Timestamp = c.clk.Now().UTC()
	}
	c.mu.Lock()
	trail := c.crumbs
	c.mu.Unlock()
	trail.Append(crumb)
}

// Reset clears the session: fresh anonymous id, user id gone, empty
// breadcrumb trail, tags back to Config.DefaultTags, extra cleared.
// The opt-out flag is consent, not session state; it survives.
func (c *Client) Reset() {
	if err := c.identity.Reset(); err != nil {
		c.logger.Warn("resetting identity failed", "error", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.crumbs = ring.New[event.Breadcrumb](breadcrumbCapacity)
	c.tags = cloneTags(c.config.DefaultTags)
	c.extra = make(map[string]any)
}

// AddForwarder registers a forwarder to receive a copy of every
// captured event. Registering a name twice replaces the previous
// forwarder.
func (c *Client) AddForwarder(name string, forwarder forward.Forwarder) {
	c.forwarders.Add(name, forwarder)
}

// RemoveForwarder unregisters a forwarder, reporting whether it was
// registered. In-flight deliveries to it complete.
func (c *Client) RemoveForwarder(name string) bool {
	return c.forwarders.Remove(name)
}

// Forwarders returns the registered forwarder names, sorted.
func (c *Client) Forwarders() []string { return c.forwarders.Names() }

// Flush delivers everything captured before the call: it drains the
// event queue through the delivery pipeline and waits for in-flight
// forwarder dispatches. Returns when done or when ctx expires.
func (c *Client) Flush(ctx context.Context) error {
	if err := c.delivery.Flush(ctx); err != nil {
		return err
	}
	return c.forwarders.Drain(ctx)
}

// Shutdown releases the client: realtime subscriptions stop, queued
// events get a final best-effort delivery pass, forwarder dispatches
// are awaited, and the background loops exit. Idempotent; concurrent
// calls wait for the first to finish. ctx bounds the waiting, not the
// teardown.
//
// The client must not be used afterwards; events captured after
// Shutdown are discarded.
func (c *Client) Shutdown(ctx context.Context) error {
	var err error
	c.shutdownOnce.Do(func() {
		c.realtime.Close()
		err = c.delivery.Shutdown(ctx)
		if drainErr := c.forwarders.Drain(ctx); drainErr != nil && err == nil {
			err = drainErr
		}
		c.forwarders.Close()
		c.bgCancel()
	})
	return err
}
