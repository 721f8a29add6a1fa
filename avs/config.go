// Copyright 2026 The Go AVS SDK Authors. All rights reserved.
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package avs

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the settings needed to stand up an AVSConnectionManager: the
// gateway endpoint, LWA client credentials, and overrides for the transport
// tuning knobs that spec.md leaves to the host application (SPEC_FULL.md
// §2). The core library never reads this from disk itself; LoadConfig is a
// convenience for command-line and example use.
type Config struct {
	// Gateway is the AVS endpoint base URL, e.g. "https://avs-alexa-na.amazon.com".
	Gateway string `yaml:"gateway"`

	// LWAClientID, LWAClientSecret, LWARefreshToken are the Login with
	// Amazon credentials used to mint access tokens (auth.LWATokenSource).
	LWAClientID     string `yaml:"lwa_client_id"`
	LWAClientSecret string `yaml:"lwa_client_secret"`
	LWARefreshToken string `yaml:"lwa_refresh_token"`

	// DialTimeout bounds the initial TCP+TLS handshake for a new HTTP/2
	// connection. Zero means H2ConnectionFactory's own default.
	DialTimeout time.Duration `yaml:"dial_timeout"`

	// TransportRetryTable and PostConnectRetryTable override the default
	// backoff ladders (spec.md Open Question 2) when non-empty.
	TransportRetryTable   []int64 `yaml:"transport_retry_table_ms"`
	PostConnectRetryTable []int64 `yaml:"post_connect_retry_table_ms"`

	// EventsPathOverride, when set, replaces the default
	// "/v20160207/events" path, expanded as an RFC 6570 template
	// (avs/uri.go).
	EventsPathOverride string `yaml:"events_path_override"`
}

// LoadConfig reads and parses a YAML config file at path, applying
// defaults for anything the file leaves zero.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("avs: reading config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("avs: parsing config %s: %w", path, err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("avs: invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DialTimeout == 0 {
		c.DialTimeout = 30 * time.Second
	}
	if len(c.TransportRetryTable) == 0 {
		c.TransportRetryTable = append([]int64(nil), DefaultTransportRetryTable...)
	}
	if len(c.PostConnectRetryTable) == 0 {
		c.PostConnectRetryTable = append([]int64(nil), DefaultPostConnectRetryTable...)
	}
}

// Validate reports the first missing required field, if any.
func (c *Config) Validate() error {
	if c.Gateway == "" {
		return fmt.Errorf("gateway is required")
	}
	if c.LWAClientID == "" || c.LWAClientSecret == "" || c.LWARefreshToken == "" {
		return fmt.Errorf("lwa_client_id, lwa_client_secret, and lwa_refresh_token are all required")
	}
	return nil
}
