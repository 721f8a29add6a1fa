// Copyright 2026 The Go AVS SDK Authors. All rights reserved.
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package avs

import "io"

// AttachmentReader is a pull-style source for one outbound attachment part.
// Read behaves like io.Reader; a handler treats io.EOF as "part exhausted,
// advance" and any other error as "abort this exchange".
type AttachmentReader interface {
	io.Reader
	// Name is the MIME part name (used for the part's Content-Disposition).
	Name() string
}

// ResultObserver receives the terminal outcome of a single MessageRequest.
// OnStatus is called exactly once per request, after the response (if any)
// has finished. OnExceptionReceived is called at most once, before OnStatus,
// only when the gateway responded with a status other than 200 carrying a
// non-MIME error body.
type ResultObserver interface {
	OnStatus(status Status)
	OnExceptionReceived(body []byte)
}

// MessageRequest is an immutable description of one client-initiated event.
// Once submitted via MessageSender.Send it must not be mutated.
type MessageRequest struct {
	// JSON is the verbatim event body placed in the "metadata" MIME part.
	JSON []byte
	// Attachments are streamed as additional MIME parts, in order, each
	// named after its AttachmentReader.Name().
	Attachments []AttachmentReader
	// Path overrides the default "/v20160207/events" path when non-empty.
	Path string
	// ExtraHeaders are appended to the request after Authorization, in
	// order, without deduplication (spec Open Question 3).
	ExtraHeaders [][2]string
	// Observers are notified of the terminal status. Order is preserved;
	// every observer receives every callback.
	Observers []ResultObserver
}

func (r *MessageRequest) notifyStatus(status Status) {
	for _, obs := range r.Observers {
		obs.OnStatus(status)
	}
}

func (r *MessageRequest) notifyException(body []byte) {
	if len(body) == 0 {
		return
	}
	for _, obs := range r.Observers {
		obs.OnExceptionReceived(body)
	}
}

// MessageSender is the non-blocking send surface exposed to callers.
// Send enqueues req and returns immediately; the terminal status reaches
// req's observers asynchronously, exactly once, even if the sender is
// disabled or disconnected.
type MessageSender interface {
	Send(req *MessageRequest)
}

// MessageConsumer receives parsed JSON directives, keyed by the context id
// of the exchange that produced them (the downchannel, or an event
// response).
type MessageConsumer interface {
	Consume(contextID string, json []byte)
}

// ConnectionStatusObserver is notified of coarse-grained connection status
// changes, never with the same (status, reason) pair twice in succession.
type ConnectionStatusObserver interface {
	OnConnectionStatusChanged(status ConnectionStatus, reason ChangedReason)
}

// MessageObserver receives every directive consumed off any transport.
type MessageObserver interface {
	OnMessage(contextID string, json []byte)
}

// ConnectionStatus is the coarse status reported to ConnectionStatusObserver.
type ConnectionStatus int

const (
	StatusDisconnected ConnectionStatus = iota
	StatusPending
	StatusConnected
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "DISCONNECTED"
	case StatusPending:
		return "PENDING"
	case StatusConnected:
		return "CONNECTED"
	default:
		return "UNKNOWN"
	}
}
