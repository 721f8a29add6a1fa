// Copyright 2026 The Go AVS SDK Authors. All rights reserved.
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package avs

import (
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/avs-sdk/go-avs/internal/jsonutil"
)

// EventValidator optionally checks an outbound event's JSON shape against a
// caller-supplied schema before it is queued. The core otherwise never
// interprets directive or event payloads (spec.md Non-goals); this
// validates shape only, never semantics.
type EventValidator struct {
	schema *jsonschema.Schema
	res    *jsonschema.Resolved
}

// NewEventValidator compiles schema once for repeated use.
func NewEventValidator(schema *jsonschema.Schema) (*EventValidator, error) {
	res, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("avs: resolving event schema: %w", err)
	}
	return &EventValidator{schema: schema, res: res}, nil
}

// Validate reports whether eventJSON conforms to the compiled schema.
func (v *EventValidator) Validate(eventJSON []byte) error {
	var doc any
	if err := jsonutil.Unmarshal(eventJSON, &doc); err != nil {
		return fmt.Errorf("avs: event is not valid JSON: %w", err)
	}
	if err := v.res.Validate(doc); err != nil {
		return fmt.Errorf("avs: event failed schema validation: %w", err)
	}
	return nil
}
