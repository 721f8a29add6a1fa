// Copyright 2026 The Go AVS SDK Authors. All rights reserved.
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package avs

// transportEvent is the union of notifications a handler goroutine can
// deliver to its owning HTTP2Transport's run loop. The run loop is the sole
// goroutine that ever mutates transport state (design note in spec.md §9:
// "encode this invariant by making the handler non-shared across threads
// and requiring the session thread to be the sole mutator") — handlers
// communicate only by sending one of these values on the transport's event
// channel, never by touching transport fields directly.
type transportEvent interface {
	isTransportEvent()
}

type evDownchannelConnected struct{}

func (evDownchannelConnected) isTransportEvent() {}

type evDownchannelForbidden struct {
	token string
}

func (evDownchannelForbidden) isTransportEvent() {}

type evDownchannelFinished struct {
	reason ChangedReason
	err    error
}

func (evDownchannelFinished) isTransportEvent() {}

type evMessageAcked struct {
	id int64
}

func (evMessageAcked) isTransportEvent() {}

type evMessageForbidden struct {
	token string
}

func (evMessageForbidden) isTransportEvent() {}

type evMessageFinished struct {
	id     int64
	status Status
}

func (evMessageFinished) isTransportEvent() {}

type evPingAcked struct {
	ok bool
}

func (evPingAcked) isTransportEvent() {}

type evPingTimeout struct{}

func (evPingTimeout) isTransportEvent() {}

type evPostConnectDone struct {
	ok bool
}

func (evPostConnectDone) isTransportEvent() {}

type evDisconnectRequested struct {
	reason ChangedReason
}

func (evDisconnectRequested) isTransportEvent() {}
