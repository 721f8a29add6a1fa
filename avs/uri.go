// Copyright 2026 The Go AVS SDK Authors. All rights reserved.
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package avs

import (
	"strings"

	"github.com/yosida95/uritemplate/v3"
)

const (
	downchannelPath    = "/v20160207/directives"
	defaultEventsPath  = "/v20160207/events"
	pingPath           = "/ping"
)

// gatewayURL joins a gateway base URL with an already-resolved path.
func gatewayURL(base, path string) string {
	return strings.TrimRight(base, "/") + path
}

// eventsPath resolves the path for a MessageRequest: the fixed default, or
// override verbatim, or override expanded as an RFC 6570 template against
// extraVars when it contains a brace expression (lets a caller supply a
// "{channel}"-style path override instead of the core hand-rolling string
// concatenation for that one case; spec.md §6 only names the fixed
// default path, this is additive).
func eventsPath(override string, extraVars map[string]string) (string, error) {
	if override == "" {
		return defaultEventsPath, nil
	}
	if !strings.Contains(override, "{") {
		return override, nil
	}
	tpl, err := uritemplate.New(override)
	if err != nil {
		return "", err
	}
	values := uritemplate.Values{}
	for k, v := range extraVars {
		values.Set(k, uritemplate.String(v))
	}
	return tpl.Expand(values)
}
