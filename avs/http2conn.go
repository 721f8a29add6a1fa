// Copyright 2026 The Go AVS SDK Authors. All rights reserved.
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package avs

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/http2"

	"github.com/avs-sdk/go-avs/internal/util"
)

// ConnectionFactory creates the HTTP2ConnectionFactory collaborator of
// spec.md §6: it yields one http.RoundTripper per connect attempt, used by
// every handler issued against that attempt.
type ConnectionFactory interface {
	New(ctx context.Context, gateway string) (http.RoundTripper, error)
}

// H2ConnectionFactory builds connections with golang.org/x/net/http2's
// explicit Transport rather than relying on net/http's implicit ALPN
// upgrade, so the HTTP/2 connection is inspectable and independently
// configurable (idle timeout, read idle ping) the way spec.md's
// HTTP2ConnectionFactory collaborator is.
type H2ConnectionFactory struct {
	// TLSConfig is cloned and used for every connection. If nil, a default
	// config is used.
	TLSConfig *tls.Config
	// DialTimeout bounds the initial TCP+TLS handshake.
	DialTimeout time.Duration
}

// New dials gateway and returns an *http2.Transport configured for a single
// long-lived connection.
func (f *H2ConnectionFactory) New(ctx context.Context, gateway string) (http.RoundTripper, error) {
	dialTimeout := f.DialTimeout
	if dialTimeout == 0 {
		dialTimeout = 30 * time.Second
	}

	dialer := &net.Dialer{Timeout: dialTimeout}
	tlsConfig := f.TLSConfig
	if tlsConfig == nil {
		tlsConfig = &tls.Config{}
	}
	gatewayHost := gateway
	if u, err := url.Parse(gateway); err == nil && u.Host != "" {
		gatewayHost = u.Host
	}
	if !tlsConfig.InsecureSkipVerify && util.IsLoopback(gatewayHost) {
		// A loopback gateway is a local mock (conformance tests, a gateway
		// simulator run on a developer machine) rather than the real AVS
		// endpoint, which never resolves to loopback. Its certificate is
		// typically self-signed, so verification is relaxed automatically
		// instead of requiring every caller to special-case it.
		tlsConfig = tlsConfig.Clone()
		tlsConfig.InsecureSkipVerify = true
	}

	transport := &http2.Transport{
		TLSClientConfig: tlsConfig.Clone(),
		DialTLSContext: func(ctx context.Context, network, addr string, cfg *tls.Config) (net.Conn, error) {
			return tls.DialWithDialer(dialer, network, addr, cfg)
		},
		ReadIdleTimeout:  idleThreshold,
		PingTimeout:      pingTransferTimeout,
		AllowHTTP:        false,
	}
	return transport, nil
}

// closeConnection releases resources held by a RoundTripper created by New,
// when it supports being closed (http2.Transport does via
// CloseIdleConnections, which is best-effort but sufficient here since each
// transport owns exactly one underlying connection for its lifetime).
func closeConnection(conn http.RoundTripper) {
	if closer, ok := conn.(interface{ CloseIdleConnections() }); ok {
		closer.CloseIdleConnections()
	}
}
