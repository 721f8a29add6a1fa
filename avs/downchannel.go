// Copyright 2026 The Go AVS SDK Authors. All rights reserved.
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package avs

import (
	"context"
	"net/http"
	"time"
)

// downchannelConnectTimeout bounds how long the initial GET may take to
// receive a response code (spec.md §4.2.1: "Connect timeout: 60 seconds").
const downchannelConnectTimeout = 60 * time.Second

// downchannelHandler drives the long-lived server-push GET to
// /v20160207/directives. Exactly one exists per CONNECTED transport
// (invariant 1, spec.md §3).
type downchannelHandler struct {
	id          int64
	gateway     string
	conn        http.RoundTripper
	delegate    authDelegate
	consumer    MessageConsumer
	attachments AttachmentManager
	events      chan<- transportEvent

	cancel context.CancelFunc
}

// startDownchannelHandler fetches a token, issues the GET, and runs to
// completion on its own goroutine, reporting lifecycle events back on
// events. It returns the handler record immediately so the transport can
// track it; cancel() aborts the exchange.
func startDownchannelHandler(parent context.Context, id int64, gateway string, conn http.RoundTripper, delegate authDelegate, consumer MessageConsumer, attachments AttachmentManager, events chan<- transportEvent) *downchannelHandler {
	ctx, cancel := context.WithCancel(parent)
	h := &downchannelHandler{
		id:          id,
		gateway:     gateway,
		conn:        conn,
		delegate:    delegate,
		consumer:    consumer,
		attachments: attachments,
		events:      events,
		cancel:      cancel,
	}
	go h.run(ctx)
	return h
}

func (h *downchannelHandler) run(ctx context.Context) {
	connectCtx, connectCancel := context.WithTimeout(ctx, downchannelConnectTimeout)
	defer connectCancel()

	token, err := withAuth(connectCtx, h.delegate)
	if err != nil {
		h.events <- evDownchannelFinished{reason: ReasonInvalidAuth, err: err}
		return
	}

	req, err := http.NewRequestWithContext(connectCtx, http.MethodGet, gatewayURL(h.gateway, downchannelPath), nil)
	if err != nil {
		h.events <- evDownchannelFinished{reason: ReasonInternalError, err: err}
		return
	}
	applyExchangeHeaders(req, token, nil)

	resp, err := roundTripWithRecover(h.conn, req)
	if err != nil {
		if ctx.Err() != nil {
			h.events <- evDownchannelFinished{reason: ReasonACLClientRequest, err: ctx.Err()}
			return
		}
		h.events <- evDownchannelFinished{reason: classifyNetworkError(err), err: err}
		return
	}

	switch resp.StatusCode {
	case http.StatusOK:
		h.events <- evDownchannelConnected{}
	case http.StatusForbidden:
		h.events <- evDownchannelForbidden{token: token}
	}

	sink := NewMimeResponseSink(contextIDForHandler(h.id), h.consumer, h.attachments)
	_, perr := sink.Process(ctx, resp)

	switch {
	case perr != nil && ctx.Err() != nil:
		h.events <- evDownchannelFinished{reason: ReasonACLClientRequest, err: ctx.Err()}
	case perr != nil:
		h.events <- evDownchannelFinished{reason: ReasonInternalError, err: perr}
	default:
		// Orderly finish: resp.StatusCode==200 and the body closed cleanly
		// means the server ended the downchannel in an orderly fashion
		// (spec.md §4.3 CONNECTED -> SERVER_SIDE_DISCONNECT_ORDERLY); any
		// other status finishing is a connect-path failure, handled by the
		// CONNECTING state.
		if resp.StatusCode == http.StatusOK {
			h.events <- evDownchannelFinished{reason: ReasonServerSideDisconnect}
		} else {
			h.events <- evDownchannelFinished{reason: ReasonInternalError}
		}
	}
}

func (h *downchannelHandler) abort() {
	h.cancel()
}

func contextIDForHandler(id int64) string {
	return formatHandlerID(id)
}
