// Copyright 2026 The Go AVS SDK Authors. All rights reserved.
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package auth

import (
	"context"
	"sync"
)

// FakeDelegate is a test double implementing Delegate with a settable
// current token and a record of invalidated tokens.
type FakeDelegate struct {
	mu          sync.Mutex
	token       string
	err         error
	invalidated []string
}

// NewFakeDelegate returns a FakeDelegate that hands out token until changed
// with SetToken.
func NewFakeDelegate(token string) *FakeDelegate {
	return &FakeDelegate{token: token}
}

func (f *FakeDelegate) GetToken(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	if f.token == "" {
		return "", ErrNoToken
	}
	return f.token, nil
}

func (f *FakeDelegate) OnAuthFailure(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, token)
	if f.token == token {
		f.token = ""
	}
}

// SetToken changes the token GetToken returns.
func (f *FakeDelegate) SetToken(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = token
}

// SetError makes every GetToken call fail with err until cleared with
// SetError(nil).
func (f *FakeDelegate) SetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// Invalidated returns the tokens OnAuthFailure has been called with, in
// order.
func (f *FakeDelegate) Invalidated() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.invalidated))
	copy(out, f.invalidated)
	return out
}
