// Copyright 2026 The Go AVS SDK Authors. All rights reserved.
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package jsonutil provides the JSON encode/decode primitives used across
// the transport core. It is a thin wrapper over
// github.com/segmentio/encoding/json, which is a drop-in, allocation-lighter
// replacement for encoding/json — the duplicate-key check that internal/wire
// runs on every inbound directive sits on the network hot path, so the
// faster codec matters here in a way it wouldn't for one-shot config parsing.
package jsonutil

import (
	"io"

	"github.com/segmentio/encoding/json"
)

// Decoder is an alias of json.Decoder so callers needing DisallowUnknownFields
// or streaming decode don't have to import encoding/json alongside this package.
type Decoder = json.Decoder

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return json.NewDecoder(r)
}

// Marshal encodes v as JSON.
func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal decodes JSON data into v.
func Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// RawMessage is an alias of json.RawMessage so callers never need to import
// both encoding/json and this package for the marker type.
type RawMessage = json.RawMessage

// Valid reports whether data is a syntactically valid JSON value.
func Valid(data []byte) bool {
	return json.Valid(data)
}
