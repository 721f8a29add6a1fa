// Copyright 2026 The Go AVS SDK Authors. All rights reserved.
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package avs

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// pingTransferTimeout bounds a ping exchange (spec.md §4.2.3: "transfer
// timeout 30 seconds").
const pingTransferTimeout = 30 * time.Second

// idleThreshold is how long a transport may go without observed byte
// traffic before an idle-ping is issued (spec.md §4.3).
const idleThreshold = 5 * time.Minute

// startPingHandler issues one GET /ping on its own goroutine.
func startPingHandler(parent context.Context, gateway string, conn http.RoundTripper, delegate authDelegate, events chan<- transportEvent) context.CancelFunc {
	ctx, cancel := context.WithTimeout(parent, pingTransferTimeout)
	go runPingHandler(ctx, gateway, conn, delegate, events)
	return cancel
}

func runPingHandler(ctx context.Context, gateway string, conn http.RoundTripper, delegate authDelegate, events chan<- transportEvent) {
	token, err := withAuth(ctx, delegate)
	if err != nil {
		events <- evPingTimeout{}
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, gatewayURL(gateway, pingPath), nil)
	if err != nil {
		events <- evPingTimeout{}
		return
	}
	applyExchangeHeaders(req, token, nil)
	// High HTTP/2 priority (spec.md §4.2.3, "value 200"): the library used
	// here (golang.org/x/net/http2) has no public per-request priority
	// knob on http2.Transport, so this is currently a documentation-only
	// intent rather than an enforced one. See DESIGN.md.

	resp, err := roundTripWithRecover(conn, req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			// CANCELLED: the transport is already tearing down for some
			// other reason and called pingCancel; drop silently rather than
			// report a second, redundant PING_TIMEDOUT (spec.md §4.2.3).
			return
		}
		// Includes the context.DeadlineExceeded case: the transfer timeout
		// elapsed with no response.
		events <- evPingTimeout{}
		return
	}
	defer resp.Body.Close()

	events <- evPingAcked{ok: resp.StatusCode == http.StatusNoContent}
}
