// Copyright 2026 The Go AVS SDK Authors. All rights reserved.
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package avs

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakePostConnectOp struct {
	priority uint32
	result   bool
	block    chan struct{}
	aborted  chan struct{}
}

func newFakeOp(priority uint32, result bool) *fakePostConnectOp {
	return &fakePostConnectOp{priority: priority, result: result, aborted: make(chan struct{})}
}

func (o *fakePostConnectOp) Priority() uint32 { return o.priority }

func (o *fakePostConnectOp) Perform(ctx context.Context, sender MessageSender) bool {
	if o.block != nil {
		select {
		case <-o.block:
		case <-o.aborted:
			return false
		}
	}
	return o.result
}

func (o *fakePostConnectOp) Abort() {
	select {
	case <-o.aborted:
	default:
		close(o.aborted)
	}
}

type noopSender struct{}

func (noopSender) Send(req *MessageRequest) {}

func TestPostConnectSequencerRunsInPriorityOrder(t *testing.T) {
	var mu sync.Mutex
	var order []uint32
	record := func(p uint32) *fakePostConnectOp {
		op := newFakeOp(p, true)
		return op
	}

	low := record(10)
	high := record(1)
	mid := record(5)

	track := func(op *fakePostConnectOp) PostConnectOperation {
		return trackingOp{op, &mu, &order}
	}

	seq := NewPostConnectSequencer([]PostConnectOperation{track(low), track(high), track(mid)}, noopSender{})

	done := make(chan bool, 1)
	if err := seq.Run(context.Background(), func(ok bool) { done <- ok }); err != nil {
		t.Fatalf("Run: %v", err)
	}

	select {
	case ok := <-done:
		if !ok {
			t.Fatal("expected success")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for sequencer")
	}

	mu.Lock()
	defer mu.Unlock()
	want := []uint32{1, 5, 10}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

type trackingOp struct {
	*fakePostConnectOp
	mu    *sync.Mutex
	order *[]uint32
}

func (t trackingOp) Perform(ctx context.Context, sender MessageSender) bool {
	t.mu.Lock()
	*t.order = append(*t.order, t.priority)
	t.mu.Unlock()
	return t.fakePostConnectOp.Perform(ctx, sender)
}

func TestPostConnectSequencerRejectsSecondRun(t *testing.T) {
	seq := NewPostConnectSequencer([]PostConnectOperation{newFakeOp(1, true)}, noopSender{})
	done := make(chan bool, 2)
	onResult := func(ok bool) { done <- ok }

	if err := seq.Run(context.Background(), onResult); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if err := seq.Run(context.Background(), onResult); err != errPostConnectAlreadyRun {
		t.Fatalf("second Run: got %v, want errPostConnectAlreadyRun", err)
	}
}

func TestPostConnectSequencerStopAbortsInFlightOp(t *testing.T) {
	blocking := newFakeOp(1, true)
	blocking.block = make(chan struct{})

	seq := NewPostConnectSequencer([]PostConnectOperation{blocking}, noopSender{})
	resultCh := make(chan bool, 1)
	if err := seq.Run(context.Background(), func(ok bool) { resultCh <- ok }); err != nil {
		t.Fatalf("Run: %v", err)
	}

	seq.Stop() // should abort the blocked op and return once the worker exits

	select {
	case <-blocking.aborted:
	default:
		t.Fatal("expected Abort to have been called on the in-flight operation")
	}
	select {
	case <-resultCh:
		t.Fatal("onResult must not fire once Stop has been called")
	default:
	}
}
