// Copyright 2026 The Go AVS SDK Authors. All rights reserved.
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package wire guards directive JSON arriving off the downchannel or an
// event response against key-case smuggling. A directive is
// attacker-controlled network input; ValidateNoDuplicateKeys closes the gap
// where two differently-cased copies of the same key (e.g. "namespace" and
// "Namespace") could otherwise ride along unnoticed to whatever a consumer
// looks at.
package wire

import (
	"fmt"
	"strings"

	"github.com/avs-sdk/go-avs/internal/jsonutil"
)

// ValidateNoDuplicateKeys rejects JSON objects (at any nesting depth)
// containing two keys that differ only in case. A directive's JSON body is
// never decoded into a struct by this core — it's forwarded opaquely to a
// MessageConsumer (see avs/mime.go) — so this is the only strictness check
// that applies; a destination struct would be needed for a field-case or
// unknown-field check, and there isn't one here.
func ValidateNoDuplicateKeys(data []byte) error {
	return validateNoDuplicateKeys(data)
}

func validateNoDuplicateKeys(data []byte) error {
	var raw map[string]jsonutil.RawMessage
	if err := jsonutil.Unmarshal(data, &raw); err != nil {
		return nil // not an object; nothing to check
	}

	seen := make(map[string]string, len(raw))
	for key := range raw {
		lower := strings.ToLower(key)
		if original, exists := seen[lower]; exists && original != key {
			return fmt.Errorf("duplicate key with different case: %q and %q", original, key)
		}
		seen[lower] = key
	}
	for key, val := range raw {
		if err := validateNoDuplicateKeysRecursive(val); err != nil {
			return fmt.Errorf("in field %q: %w", key, err)
		}
	}
	return nil
}

func validateNoDuplicateKeysRecursive(data jsonutil.RawMessage) error {
	var obj map[string]jsonutil.RawMessage
	if err := jsonutil.Unmarshal(data, &obj); err == nil {
		seen := make(map[string]string, len(obj))
		for key := range obj {
			lower := strings.ToLower(key)
			if original, exists := seen[lower]; exists && original != key {
				return fmt.Errorf("duplicate key with different case: %q and %q", original, key)
			}
			seen[lower] = key
		}
		for key, val := range obj {
			if err := validateNoDuplicateKeysRecursive(val); err != nil {
				return fmt.Errorf("in field %q: %w", key, err)
			}
		}
		return nil
	}

	var arr []jsonutil.RawMessage
	if err := jsonutil.Unmarshal(data, &arr); err == nil {
		for i, elem := range arr {
			if err := validateNoDuplicateKeysRecursive(elem); err != nil {
				return fmt.Errorf("in array index %d: %w", i, err)
			}
		}
	}
	return nil
}
