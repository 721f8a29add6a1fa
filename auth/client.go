// Copyright 2026 The Go AVS SDK Authors. All rights reserved.
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package auth implements the AuthDelegate collaborator that the transport
// core fetches bearer tokens from before every outbound-creating step
// (downchannel, message, ping) and reports 403s back to.
package auth

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/oauth2"
)

// ErrNoToken is returned by a Delegate when it has no token to offer and
// none can currently be obtained; the transport treats this identically to
// an empty token (spec.md §4.3: "Empty token -> transition to
// DISCONNECTING with reason INVALID_AUTH").
var ErrNoToken = errors.New("auth: no token available")

// Delegate is the AuthDelegate collaborator of spec.md §6: GetToken is the
// blocking, fast "get_token()" call made before every outbound exchange;
// OnAuthFailure is "on_auth_failure(token)", called when a handler sees a
// 403 so the delegate can discard the offending token.
type Delegate interface {
	// GetToken returns the current bearer token, fetching or refreshing it
	// if necessary. It must return quickly (each exchange handler calls it
	// synchronously from its own goroutine before issuing its request).
	GetToken(ctx context.Context) (string, error)
	// OnAuthFailure is called with the token that a handler received a 403
	// using, so the delegate can invalidate it and force a refresh on the
	// next GetToken.
	OnAuthFailure(token string)
}

// TokenSourceDelegate adapts an oauth2.TokenSource into a Delegate. It keeps
// no token cache of its own: every GetToken calls Source.Token, so caching
// is left to Source (the LWA refresh-token source only refreshes once its
// cached token expires). OnAuthFailure calls Source's Invalidate method, when
// it has one, if the failing token is the last one GetToken handed out.
type TokenSourceDelegate struct {
	Source oauth2.TokenSource

	mu       sync.Mutex
	lastSeen string
}

// NewTokenSourceDelegate wraps source as a Delegate.
func NewTokenSourceDelegate(source oauth2.TokenSource) *TokenSourceDelegate {
	return &TokenSourceDelegate{Source: source}
}

func (d *TokenSourceDelegate) GetToken(ctx context.Context) (string, error) {
	tok, err := d.Source.Token()
	if err != nil {
		return "", err
	}
	if tok == nil || tok.AccessToken == "" {
		return "", ErrNoToken
	}
	d.mu.Lock()
	d.lastSeen = tok.AccessToken
	d.mu.Unlock()
	return tok.AccessToken, nil
}

func (d *TokenSourceDelegate) OnAuthFailure(token string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if token != d.lastSeen {
		// A 403 reported for a token that is no longer the cached one: a
		// newer token has already been fetched since, nothing to
		// invalidate.
		return
	}
	if invalidator, ok := d.Source.(interface{ Invalidate() }); ok {
		invalidator.Invalidate()
	}
	d.lastSeen = ""
}
