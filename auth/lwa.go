// Copyright 2026 The Go AVS SDK Authors. All rights reserved.
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package auth

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// lwaEndpoint is Amazon's Login with Amazon token endpoint.
var lwaEndpoint = oauth2.Endpoint{
	TokenURL: "https://api.amazon.com/auth/o2/token",
}

// LWATokenSource is an oauth2.TokenSource backed by a Login with Amazon
// refresh-token grant. Unlike oauth2's built-in ReuseTokenSource, it
// exposes Invalidate so a Delegate can force the next Token call to fetch a
// fresh access token after the gateway reports a 403, instead of waiting
// for the cached token's own expiry.
type LWATokenSource struct {
	config       oauth2.Config
	refreshToken string

	mu      sync.Mutex
	current *oauth2.Token
}

// NewLWATokenSource constructs a token source that exchanges refreshToken
// for access tokens at LWA using clientID/clientSecret.
func NewLWATokenSource(clientID, clientSecret, refreshToken string) *LWATokenSource {
	return &LWATokenSource{
		config: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     lwaEndpoint,
		},
		refreshToken: refreshToken,
	}
}

// Token returns the cached access token if still valid, otherwise refreshes
// it via the refresh-token grant.
func (s *LWATokenSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current.Valid() {
		return s.current, nil
	}

	src := s.config.TokenSource(context.Background(), &oauth2.Token{RefreshToken: s.refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, err
	}
	s.current = tok
	return tok, nil
}

// Invalidate discards the cached access token, forcing the next Token call
// to refresh regardless of the token's own expiry.
func (s *LWATokenSource) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
}

// unverifiedClaims are the subset of an LWA access token's claims this
// client reads as a proactive-refresh hint. LWA access tokens are opaque to
// third parties; when they happen to be JWT-shaped we parse them without
// signature verification purely to read "exp" and refresh a little early,
// never to authorize anything on the strength of the claims.
type unverifiedClaims struct {
	jwt.RegisteredClaims
}

// ExpiresAt returns the token's expiry, preferring the unverified JWT "exp"
// claim (when the access token happens to be JWT-shaped) over the
// oauth2.Token's own Expiry field, and the zero time when neither is
// available.
func ExpiresAt(tok *oauth2.Token) time.Time {
	if tok == nil {
		return time.Time{}
	}
	var claims unverifiedClaims
	if _, _, err := jwt.NewParser().ParseUnverified(tok.AccessToken, &claims); err == nil {
		if claims.ExpiresAt != nil {
			return claims.ExpiresAt.Time
		}
	}
	return tok.Expiry
}
