// Copyright 2026 The Go AVS SDK Authors. All rights reserved.
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package avs

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// PostConnectOperation is a one-shot action (e.g. state synchronization)
// that must succeed before user messages may be sent on a freshly connected
// transport (spec.md §3, §4.4).
type PostConnectOperation interface {
	// Priority orders operations; lower runs first, ties run in the order
	// they were supplied.
	Priority() uint32
	// Perform runs the operation, given a MessageSender to use for any
	// request it needs to issue. It returns false on unrecoverable
	// failure.
	Perform(ctx context.Context, sender MessageSender) bool
	// Abort unblocks a concurrently-running Perform call; invoked from the
	// stop path and must return quickly.
	Abort()
}

var errPostConnectAlreadyRun = errors.New("avs: PostConnectSequencer.Run called more than once")

// PostConnectSequencer runs a priority-ordered list of PostConnectOperations
// on a dedicated goroutine, gating the CONNECTED transition until every
// operation has succeeded (spec.md §4.4).
type PostConnectSequencer struct {
	ops    []PostConnectOperation
	sender MessageSender

	mu       sync.Mutex
	started  bool
	stopping bool
	current  PostConnectOperation
	done     chan struct{}
}

// NewPostConnectSequencer returns a sequencer that will run ops (sorted by
// ascending Priority, stable on ties) against sender.
func NewPostConnectSequencer(ops []PostConnectOperation, sender MessageSender) *PostConnectSequencer {
	sorted := append([]PostConnectOperation(nil), ops...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority() < sorted[j].Priority() })
	return &PostConnectSequencer{ops: sorted, sender: sender, done: make(chan struct{})}
}

// Run spawns the worker goroutine. Unless Stop is called first, onResult is
// called exactly once, with true iff every operation succeeded; once Stop
// has been called, onResult is not called at all. A
// second call to Run on the same sequencer returns errPostConnectAlreadyRun
// without spawning anything (spec.md §4.4: "A second doPostConnect call on
// the same instance is rejected").
func (s *PostConnectSequencer) Run(ctx context.Context, onResult func(ok bool)) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errPostConnectAlreadyRun
	}
	s.started = true
	s.mu.Unlock()

	go s.run(ctx, onResult)
	return nil
}

func (s *PostConnectSequencer) run(ctx context.Context, onResult func(ok bool)) {
	defer close(s.done)

	ok := true
	for _, op := range s.ops {
		s.mu.Lock()
		if s.stopping {
			s.mu.Unlock()
			ok = false
			break
		}
		s.current = op
		s.mu.Unlock()

		if !op.Perform(ctx, s.sender) {
			ok = false
			break
		}
	}

	s.mu.Lock()
	stopped := s.stopping
	s.mu.Unlock()

	if stopped {
		return
	}
	onResult(ok)
}

// Stop sets the stopping flag, aborts the in-flight operation (if any) to
// unblock its Perform call, and waits for the worker goroutine to exit.
// Safe to call multiple times and from OnDisconnect or a destructor path.
func (s *PostConnectSequencer) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.stopping = true
	current := s.current
	s.mu.Unlock()

	if current != nil {
		current.Abort()
	}
	<-s.done
}
