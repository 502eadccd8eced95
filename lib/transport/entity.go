// Copyright 2026 The Helio Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// entityPath builds /entities/{type}[/{id}[/{verb}]] with each segment
// escaped. id and verb may be empty to truncate the path.
func entityPath(entityType, id, verb string) string {
	path := "/entities/" + url.PathEscape(entityType)
	if id != "" {
		path += "/" + url.PathEscape(id)
	}
	if verb != "" {
		path += "/" + url.PathEscape(verb)
	}
	return path
}

// GetEntity fetches a single entity by type and id. The raw JSON body
// is returned for the caller to decode into its own shape.
func (client *Client) GetEntity(ctx context.Context, entityType, id string) ([]byte, error) {
	if err := checkEntityArgs(entityType, id); err != nil {
		return nil, err
	}
	return client.do(ctx, http.MethodGet, entityPath(entityType, id, ""), nil, false)
}

// ListEntities fetches entities of one type, with the filter encoded
// as query parameters.
func (client *Client) ListEntities(ctx context.Context, entityType string, filter map[string]string) ([]byte, error) {
	if entityType == "" {
		return nil, fmt.Errorf("transport: entity type is required")
	}
	path := entityPath(entityType, "", "")
	if len(filter) > 0 {
		values := url.Values{}
		for key, value := range filter {
			values.Set(key, value)
		}
		path += "?" + values.Encode()
	}
	return client.do(ctx, http.MethodGet, path, nil, false)
}

// CreateEntity creates a new entity of the given type from fields.
func (client *Client) CreateEntity(ctx context.Context, entityType string, fields any) ([]byte, error) {
	if entityType == "" {
		return nil, fmt.Errorf("transport: entity type is required")
	}
	return client.doJSON(ctx, http.MethodPost, entityPath(entityType, "", ""), fields)
}

// UpdateEntity applies a partial update to an existing entity.
func (client *Client) UpdateEntity(ctx context.Context, entityType, id string, fields any) ([]byte, error) {
	if err := checkEntityArgs(entityType, id); err != nil {
		return nil, err
	}
	return client.doJSON(ctx, http.MethodPatch, entityPath(entityType, id, ""), fields)
}

// DeleteEntity removes an entity.
func (client *Client) DeleteEntity(ctx context.Context, entityType, id string) error {
	if err := checkEntityArgs(entityType, id); err != nil {
		return err
	}
	_, err := client.do(ctx, http.MethodDelete, entityPath(entityType, id, ""), nil, false)
	return err
}

// ExecuteVerb invokes a named server-side action on an entity, for
// example "archive" or "replay". args may be nil for verbs that take
// no arguments.
func (client *Client) ExecuteVerb(ctx context.Context, entityType, id, verb string, args any) ([]byte, error) {
	if err := checkEntityArgs(entityType, id); err != nil {
		return nil, err
	}
	if verb == "" {
		return nil, fmt.Errorf("transport: verb is required")
	}
	return client.doJSON(ctx, http.MethodPost, entityPath(entityType, id, verb), args)
}

func checkEntityArgs(entityType, id string) error {
	if entityType == "" {
		return fmt.Errorf("transport: entity type is required")
	}
	if id == "" {
		return fmt.Errorf("transport: entity id is required")
	}
	return nil
}
