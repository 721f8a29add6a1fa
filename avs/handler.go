// Copyright 2026 The Go AVS SDK Authors. All rights reserved.
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package avs

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/avs-sdk/go-avs/auth"
)

// authDelegate is an alias of auth.Delegate local to this package so the
// rest of avs never imports the auth package directly (keeps the
// dependency one-directional: auth never imports avs).
type authDelegate = auth.Delegate

var errEmptyToken = errors.New("auth delegate returned an empty token")

// nextHandlerID hands out process-wide unique context ids for handlers,
// used both as the HTTP2Transport's map key and as the MimeResponseSink
// context id that namespaces attachment ids (spec.md §3, §4.3: "context id
// ... is the HTTP/2 request id").
var nextHandlerID atomic.Int64

func newHandlerID() int64 {
	return nextHandlerID.Add(1)
}

// applyExchangeHeaders sets Authorization and then appends req's extra
// headers in order without deduplication (spec.md Open Question 3).
func applyExchangeHeaders(req *http.Request, token string, extra [][2]string) {
	req.Header.Set("Authorization", "Bearer "+token)
	for _, kv := range extra {
		req.Header.Add(kv[0], kv[1])
	}
}

func diagnosticsFromResponse(resp *http.Response) Diagnostics {
	d := Diagnostics{}
	if resp == nil {
		return d
	}
	d.HTTPStatus = resp.StatusCode
	d.AmznRequestID = resp.Header.Get("x-amzn-requestid")
	return d
}

// roundTripWithRecover performs conn.RoundTrip, converting any panic
// propagating out of the HTTP/2 library into a plain error so no panic ever
// escapes a handler goroutine (spec.md §7: "Exceptions from the HTTP/2
// library ... converted to INTERNAL_ERROR").
func roundTripWithRecover(conn http.RoundTripper, req *http.Request) (resp *http.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewTransportError(ReasonInternalError, panicError{r})
		}
	}()
	return conn.RoundTrip(req)
}

type panicError struct {
	value any
}

func (p panicError) Error() string {
	return "recovered panic in HTTP/2 round trip"
}

// withAuth fetches the current bearer token from delegate. An empty token
// (or ErrNoToken) is reported as ReasonInvalidAuth per spec.md §4.3: "Empty
// token -> transition to DISCONNECTING with reason INVALID_AUTH".
func withAuth(ctx context.Context, delegate authDelegate) (string, error) {
	token, err := delegate.GetToken(ctx)
	if err != nil {
		return "", NewTransportError(ReasonInvalidAuth, err)
	}
	if token == "" {
		return "", NewTransportError(ReasonInvalidAuth, errEmptyToken)
	}
	return token, nil
}
