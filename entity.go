// Copyright 2026 The Helio Authors
// SPDX-License-Identifier: Apache-2.0

package helio

import (
	"context"
	"slices"

	"github.com/heliohq/helio-go/lib/realtime"
)

// checkEntityType enforces Config.EntityTypes. An empty registry
// disables the check.
func (c *Client) checkEntityType(entityType string) error {
	if len(c.config.EntityTypes) == 0 {
		return nil
	}
	if slices.Contains(c.config.EntityTypes, entityType) {
		return nil
	}
	return &UnknownEntityError{Type: entityType, Known: c.config.EntityTypes}
}

// GetEntity fetches one entity as raw JSON. Unlike telemetry calls,
// entity operations are synchronous API requests and propagate errors.
func (c *Client) GetEntity(ctx context.Context, entityType, id string) ([]byte, error) {
	if err := c.checkEntityType(entityType); err != nil {
		return nil, err
	}
	return c.api.GetEntity(ctx, entityType, id)
}

// ListEntities fetches the entity collection as raw JSON, optionally
// narrowed by filter (sent as query parameters).
func (c *Client) ListEntities(ctx context.Context, entityType string, filter map[string]string) ([]byte, error) {
	if err := c.checkEntityType(entityType); err != nil {
		return nil, err
	}
	return c.api.ListEntities(ctx, entityType, filter)
}

// CreateEntity creates an entity from fields and returns the server's
// representation of it.
func (c *Client) CreateEntity(ctx context.Context, entityType string, fields any) ([]byte, error) {
	if err := c.checkEntityType(entityType); err != nil {
		return nil, err
	}
	return c.api.CreateEntity(ctx, entityType, fields)
}

// UpdateEntity applies a partial update and returns the updated entity.
func (c *Client) UpdateEntity(ctx context.Context, entityType, id string, fields any) ([]byte, error) {
	if err := c.checkEntityType(entityType); err != nil {
		return nil, err
	}
	return c.api.UpdateEntity(ctx, entityType, id, fields)
}

// DeleteEntity deletes an entity.
func (c *Client) DeleteEntity(ctx context.Context, entityType, id string) error {
	if err := c.checkEntityType(entityType); err != nil {
		return err
	}
	return c.api.DeleteEntity(ctx, entityType, id)
}

// ExecuteVerb invokes a server-defined action on an entity and returns
// the response body.
func (c *Client) ExecuteVerb(ctx context.Context, entityType, id, verb string, args any) ([]byte, error) {
	if err := c.checkEntityType(entityType); err != nil {
		return nil, err
	}
	return c.api.ExecuteVerb(ctx, entityType, id, verb, args)
}

// Subscribe starts a realtime subscription polling the entity named by
// spec and invoking spec.Handler with each snapshot. The subscription
// runs until Unsubscribe or client Shutdown.
func (c *Client) Subscribe(spec realtime.Spec) (*realtime.Subscription, error) {
	if err := c.checkEntityType(spec.Type); err != nil {
		return nil, err
	}
	return c.realtime.Subscribe(spec)
}
