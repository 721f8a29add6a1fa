// Copyright 2026 The Go AVS SDK Authors. All rights reserved.
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package avs

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// reconnectBurst bounds how many reconnects a flapping connectivity monitor
// can trigger before WakeActiveTransport calls are simply dropped, rather
// than piling up reconnect storms on top of the transport's own backoff
// ladder (SPEC_FULL.md §3).
const reconnectBurst = 3

// reconnectRate is the steady-state refill rate of the reconnect limiter.
const reconnectRate = rate.Limit(1.0 / 5) // one token per 5s

// AVSConnectionManager is C6: the public façade over MessageRouter. It
// holds the enabled/disabled flag, forwards to the router, and adapts an
// InternetConnectionMonitor into wake/verify calls (spec.md §4.6).
type AVSConnectionManager struct {
	router *MessageRouter
	logger *slog.Logger

	mu      sync.Mutex
	enabled bool
	gateway string

	reconnectLimiter *rate.Limiter
	prober           *VerifyReachable
	unsubscribe      func()
}

// NewAVSConnectionManager constructs a façade around router.
func NewAVSConnectionManager(router *MessageRouter, monitor InternetConnectionMonitor, logger *slog.Logger) *AVSConnectionManager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &AVSConnectionManager{
		router:           router,
		logger:           logger,
		reconnectLimiter: rate.NewLimiter(reconnectRate, reconnectBurst),
		prober:           NewVerifyReachable(http.DefaultTransport),
	}
	if monitor != nil {
		m.unsubscribe = monitor.Subscribe(m.onConnectivityChanged)
	}
	return m
}

// Enable is idempotent: calling it while already enabled is a no-op.
func (m *AVSConnectionManager) Enable(ctx context.Context, gateway string) {
	m.mu.Lock()
	if m.enabled {
		m.mu.Unlock()
		return
	}
	m.enabled = true
	m.gateway = gateway
	m.mu.Unlock()

	m.router.Enable(ctx, gateway)
}

// Disable is idempotent.
func (m *AVSConnectionManager) Disable() {
	m.mu.Lock()
	if !m.enabled {
		m.mu.Unlock()
		return
	}
	m.enabled = false
	m.mu.Unlock()

	m.router.Disable()
}

// Reconnect is Disable then Enable when currently enabled; a no-op
// otherwise (spec.md §4.6, §8: "reconnect() while disabled is a no-op").
func (m *AVSConnectionManager) Reconnect(ctx context.Context) {
	m.mu.Lock()
	if !m.enabled {
		m.mu.Unlock()
		return
	}
	gateway := m.gateway
	m.mu.Unlock()

	if !m.reconnectLimiter.Allow() {
		m.logger.Warn("avs: reconnect throttled, too many requests in a burst")
		return
	}

	m.Disable()
	m.Enable(ctx, gateway)
}

// IsEnabled reports whether Enable has been called without a matching
// Disable.
func (m *AVSConnectionManager) IsEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// SetGateway updates the endpoint, forwarding to the router.
func (m *AVSConnectionManager) SetGateway(ctx context.Context, gateway string) {
	m.mu.Lock()
	m.gateway = gateway
	m.mu.Unlock()
	m.router.SetGateway(ctx, gateway)
}

// Gateway returns the currently configured endpoint.
func (m *AVSConnectionManager) Gateway() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gateway
}

// Send drops a nil request with a log line (spec.md §4.6: "On send(nullptr)
// -> log and drop"); otherwise it always forwards to the router, even while
// disabled, so the router/transport layer can fail it with
// StatusNotConnected (spec.md §4.6: "On send(req) while disabled -> forward
// anyway").
func (m *AVSConnectionManager) Send(req *MessageRequest) {
	if req == nil {
		m.logger.Warn("avs: Send called with a nil MessageRequest, dropping")
		return
	}
	m.router.Send(req)
}

// AddConnectionStatusObserver registers obs with the underlying router.
func (m *AVSConnectionManager) AddConnectionStatusObserver(obs ConnectionStatusObserver) {
	m.router.AddConnectionStatusObserver(obs)
}

// RemoveConnectionStatusObserver unregisters obs.
func (m *AVSConnectionManager) RemoveConnectionStatusObserver(obs ConnectionStatusObserver) {
	m.router.RemoveConnectionStatusObserver(obs)
}

// AddMessageObserver registers obs with the underlying router.
func (m *AVSConnectionManager) AddMessageObserver(obs MessageObserver) {
	m.router.AddMessageObserver(obs)
}

// RemoveMessageObserver unregisters obs.
func (m *AVSConnectionManager) RemoveMessageObserver(obs MessageObserver) {
	m.router.RemoveMessageObserver(obs)
}

// Close unsubscribes from the connectivity monitor, if one was supplied.
func (m *AVSConnectionManager) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

// onConnectivityChanged adapts InternetConnectionMonitor pushes into the
// wake/verify distinction of SPEC_FULL.md §4: connectivity regained wakes
// the active transport's backoff wait; connectivity lost fires a one-shot
// unauthenticated reachability probe against the current gateway (spec.md
// §4.6: "on connected = false, request a connectivity verification").
func (m *AVSConnectionManager) onConnectivityChanged(connected bool) {
	if !connected {
		m.mu.Lock()
		gateway := m.gateway
		m.mu.Unlock()
		if gateway == "" {
			return
		}
		m.logger.Info("avs: connectivity monitor reports disconnected, verifying reachability")
		m.prober.Probe(context.Background(), gateway, func(reachable bool) {
			if reachable {
				m.logger.Info("avs: gateway still reachable despite connectivity-lost report")
			} else {
				m.logger.Info("avs: gateway confirmed unreachable")
			}
		})
		return
	}
	if !m.reconnectLimiter.Allow() {
		m.logger.Warn("avs: connectivity-triggered wake throttled, too many in a burst")
		return
	}
	m.router.WakeActiveTransport()
}
