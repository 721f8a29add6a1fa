// Copyright 2026 The Go AVS SDK Authors. All rights reserved.
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package avs

import "sync"

// outboundQueue is the shared outbound request queue of spec.md §3: owned
// by MessageRouter (C5), drained by whichever HTTP2Transport (C3) is
// currently active. Push is called from arbitrary caller goroutines (via
// MessageSender.Send); Pop is called only from a transport's run loop.
type outboundQueue struct {
	mu    sync.Mutex
	items []*MessageRequest
}

func newOutboundQueue() *outboundQueue {
	return &outboundQueue{}
}

// Push appends req. The caller is responsible for waking whichever
// transport should drain it (HTTP2Transport.Send nudges its own wake
// channel after calling Push).
func (q *outboundQueue) Push(req *MessageRequest) {
	q.mu.Lock()
	q.items = append(q.items, req)
	q.mu.Unlock()
}

// Pop removes and returns the oldest request, FIFO (spec.md §5: "admission
// order equals submission order").
func (q *outboundQueue) Pop() (*MessageRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	req := q.items[0]
	q.items = q.items[1:]
	return req, true
}

// Drain removes and returns every queued request, used when a transport is
// disconnecting and its queued-but-not-yet-admitted requests must fail with
// StatusNotConnected.
func (q *outboundQueue) Drain() []*MessageRequest {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}
