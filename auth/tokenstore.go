// Copyright 2026 The Go AVS SDK Authors. All rights reserved.
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package auth

import (
	"context"

	"golang.org/x/oauth2"
)

// TokenStore persists tokens obtained by a Delegate so a later process
// restart can resume without forcing a new LWA authorization-code exchange
// (the core itself never touches disk; a TokenStore is how a caller plugs
// persistence in, matching spec.md §6 "Persisted state: None in the core").
type TokenStore interface {
	Save(ctx context.Context, token *oauth2.Token) error
}

// persistentTokenSource wraps an oauth2.TokenSource, saving every token it
// returns to a TokenStore.
type persistentTokenSource struct {
	wrapped oauth2.TokenSource
	store   TokenStore
	ctx     context.Context
}

// NewPersistentTokenSource returns an oauth2.TokenSource that persists the
// token to store after every successful Token call. Useful wrapping
// *LWATokenSource, which already refreshes on expiry.
func NewPersistentTokenSource(ctx context.Context, wrapped oauth2.TokenSource, store TokenStore) oauth2.TokenSource {
	return &persistentTokenSource{wrapped: wrapped, store: store, ctx: ctx}
}

func (t *persistentTokenSource) Token() (*oauth2.Token, error) {
	token, err := t.wrapped.Token()
	if err != nil {
		return nil, err
	}
	if err := t.store.Save(t.ctx, token); err != nil {
		return nil, err
	}
	return token, nil
}
