// Copyright 2026 The Go AVS SDK Authors. All rights reserved.
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package avs

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// ConnectionRetryWaker is implemented by a transport that can cancel an
// in-progress backoff wait and retry immediately (the "wake" path
// described in SPEC_FULL.md §4, grounded in the original device SDK's
// AVSConnectionManager: onConnectivity(true) doesn't always tear down and
// recreate a transport — if one is already waiting to retry, it just
// cancels the wait).
type ConnectionRetryWaker interface {
	WakeRetry()
}

// InternetConnectionMonitor pushes connectivity transitions. Implementations
// call every function registered through Subscribe from their own goroutine
// whenever the host's network reachability changes.
type InternetConnectionMonitor interface {
	// Subscribe registers fn to be called on every connectivity change and
	// returns an unsubscribe function.
	Subscribe(fn func(connected bool)) (unsubscribe func())
}

// verifyReachableTimeout bounds the one-shot reachability probe issued when
// connectivity is reported lost (SPEC_FULL.md §4).
const verifyReachableTimeout = 10 * time.Second

// VerifyReachable issues a single best-effort HEAD against gateway to
// confirm whether it's actually reachable, distinct from the idle
// keep-alive ping: it runs unauthenticated (no token fetch) and is gated so
// at most one probe runs at a time, since a flapping monitor can otherwise
// fire many times in quick succession.
type VerifyReachable struct {
	client *http.Client

	mu      sync.Mutex
	running bool
}

// NewVerifyReachable constructs a prober using transport as the underlying
// http.RoundTripper. AVSConnectionManager builds its prober over
// http.DefaultTransport, independent of any HTTP2Transport's connection.
func NewVerifyReachable(transport http.RoundTripper) *VerifyReachable {
	return &VerifyReachable{client: &http.Client{Transport: transport, Timeout: verifyReachableTimeout}}
}

// Probe runs the reachability check, invoking done(reachable) when it
// completes. It is a no-op (done is not called) if a probe is already
// running.
func (v *VerifyReachable) Probe(ctx context.Context, gateway string, done func(reachable bool)) {
	v.mu.Lock()
	if v.running {
		v.mu.Unlock()
		return
	}
	v.running = true
	v.mu.Unlock()

	go func() {
		defer func() {
			v.mu.Lock()
			v.running = false
			v.mu.Unlock()
		}()

		req, err := http.NewRequestWithContext(ctx, http.MethodHead, gatewayURL(gateway, "/"), nil)
		if err != nil {
			done(false)
			return
		}
		resp, err := v.client.Do(req)
		if err != nil {
			done(false)
			return
		}
		resp.Body.Close()
		done(true)
	}()
}
