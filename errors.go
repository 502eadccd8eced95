// Copyright 2026 The Helio Authors
// SPDX-License-Identifier: Apache-2.0

package helio

import (
	"fmt"
	"strings"
)

// ValidationError reports a Config problem detected by New. It is the
// only error class New returns for caller mistakes; everything that can
// be defaulted is defaulted instead.
type ValidationError struct {
	// Field names the offending Config field.
	Field string

	// Message describes what is wrong with it.
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("helio: invalid Config.%s: %s", e.Field, e.Message)
}

// UnknownEntityError reports an entity operation against a type that is
// not registered in Config.EntityTypes. It is returned synchronously,
// before any request is made.
//
// When Config.EntityTypes is empty the check is disabled and this error
// is never returned.
type UnknownEntityError struct {
	// Type is the rejected entity type.
	Type string

	// Known lists the registered entity types.
	Known []string
}

func (e *UnknownEntityError) Error() string {
	return fmt.Sprintf("helio: unknown entity type %q (registered: %s)",
		e.Type, strings.Join(e.Known, ", "))
}
