// Copyright 2026 The Helio Authors
// SPDX-License-Identifier: Apache-2.0

package helio

import (
	"context"

	"github.com/heliohq/helio-go/lib/flagcache"
	"github.com/heliohq/helio-go/lib/schema/event"
)

// GetFeatureFlag returns the cached value for key and whether the flag
// exists. Reads never touch the network; the cache is populated at
// construction and refreshed by ReloadFeatureFlags or the background
// refresh loop.
func (c *Client) GetFeatureFlag(key string) (event.FlagValue, bool) {
	return c.flags.Get(key)
}

// IsFeatureEnabled reports whether key is enabled under the flag
// truthiness rule (see event.FlagEnabled). Missing flags are disabled.
func (c *Client) IsFeatureEnabled(key string) bool {
	return c.flags.IsEnabled(key)
}

// FeatureFlags returns a copy of the cached flag set.
func (c *Client) FeatureFlags() map[string]event.FlagValue {
	return c.flags.All()
}

// ReloadFeatureFlags re-fetches the flag set and notifies OnFlagChange
// subscribers of every key whose value changed.
func (c *Client) ReloadFeatureFlags(ctx context.Context) error {
	return c.flags.Reload(ctx)
}

// OnFlagChange registers callback for value changes of key, including
// the flag appearing or disappearing (nil value). Callbacks run on the
// reloading goroutine, outside the cache lock. The returned cancel
// unregisters; it is idempotent.
func (c *Client) OnFlagChange(key string, callback flagcache.ChangeFunc) (cancel func()) {
	return c.flags.OnChange(key, callback)
}
