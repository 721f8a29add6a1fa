// Copyright 2026 The Go AVS SDK Authors. All rights reserved.
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package avs

import "fmt"

// RequestStatus is the terminal outcome of a single MessageRequest, delivered
// exactly once to its observers (spec invariant: every submitted request
// sees exactly one terminal status).
type RequestStatus int

const (
	// StatusSuccess means the gateway responded 200.
	StatusSuccess RequestStatus = iota
	// StatusSuccessNoContent means the gateway responded 204.
	StatusSuccessNoContent
	// StatusSuccessAccepted means the gateway responded 202.
	StatusSuccessAccepted
	// StatusNotConnected means no transport was CONNECTED to carry the
	// request, or the owning transport was torn down before a response
	// code arrived.
	StatusNotConnected
	// StatusTimedOut means the request's activity timeout elapsed.
	StatusTimedOut
	// StatusInvalidAuth means the gateway responded 403.
	StatusInvalidAuth
	// StatusBadRequest means the gateway responded 400.
	StatusBadRequest
	// StatusThrottled means the gateway responded 429.
	StatusThrottled
	// StatusServerInternalError means the gateway responded 500.
	StatusServerInternalError
	// StatusRefused means the gateway responded 503.
	StatusRefused
	// StatusServerOtherError covers any other non-2xx, non-tabulated code.
	StatusServerOtherError
	// StatusCanceled means the request's context was canceled, or the
	// transport was disconnected, before a terminal response arrived.
	StatusCanceled
	// StatusInternalError covers a recovered panic or a defect not
	// attributable to the network or the peer, including a response that
	// finished with no response code ever observed.
	StatusInternalError
)

func (s RequestStatus) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusSuccessNoContent:
		return "SUCCESS_NO_CONTENT"
	case StatusSuccessAccepted:
		return "SUCCESS_ACCEPTED"
	case StatusNotConnected:
		return "NOT_CONNECTED"
	case StatusTimedOut:
		return "TIMEDOUT"
	case StatusInvalidAuth:
		return "INVALID_AUTH"
	case StatusBadRequest:
		return "BAD_REQUEST"
	case StatusThrottled:
		return "THROTTLED"
	case StatusServerInternalError:
		return "SERVER_INTERNAL_ERROR_V2"
	case StatusRefused:
		return "REFUSED"
	case StatusServerOtherError:
		return "SERVER_OTHER_ERROR"
	case StatusCanceled:
		return "CANCELED"
	case StatusInternalError:
		return "INTERNAL_ERROR"
	default:
		return "UNKNOWN"
	}
}

// statusForCode maps an HTTP response code to its tabulated RequestStatus
// (spec.md §4.2.2). Callers apply the finished-status overrides (timeout,
// cancellation, internal error, no-code-seen) afterward.
func statusForCode(code int) RequestStatus {
	switch code {
	case 0:
		return StatusInternalError
	case 200:
		return StatusSuccess
	case 202:
		return StatusSuccessAccepted
	case 204:
		return StatusSuccessNoContent
	case 400:
		return StatusBadRequest
	case 403:
		return StatusInvalidAuth
	case 429:
		return StatusThrottled
	case 500:
		return StatusServerInternalError
	case 503:
		return StatusRefused
	default:
		return StatusServerOtherError
	}
}

// Diagnostics carries the gateway's response metadata for a completed
// exchange, supplementing the bare status with the detail the original AVS
// device SDK surfaces for support escalations.
type Diagnostics struct {
	// AmznRequestID is the value of the x-amzn-requestid response header, if
	// present.
	AmznRequestID string
	// HTTPStatus is the HTTP status code of the gateway's response to this
	// exchange, or 0 if no response was ever received.
	HTTPStatus int
}

// Status is the terminal report delivered to a MessageRequest's observers.
type Status struct {
	Status      RequestStatus
	Diagnostics Diagnostics
}

// ChangedReason explains a ConnectionStatus transition or a transport
// teardown. It is a closed enum (spec.md §7); callers that need to branch on
// it should switch exhaustively.
type ChangedReason int

const (
	// ReasonNone is the zero value, used only before any real transition
	// has occurred.
	ReasonNone ChangedReason = iota
	// ReasonSuccess means the transition reflects ordinary successful
	// progress (e.g. PENDING -> CONNECTED).
	ReasonSuccess
	// ReasonACLClientRequest means the caller asked to connect/disconnect;
	// not an error.
	ReasonACLClientRequest
	// ReasonACLDisabled means the manager is disabled; queued sends fail
	// fast with StatusNotConnected and no retry is attempted.
	ReasonACLDisabled
	// ReasonServerSideDisconnect means the downchannel finished in an
	// orderly way while CONNECTED.
	ReasonServerSideDisconnect
	// ReasonServerEndpointChanged means the gateway URL was changed while
	// enabled.
	ReasonServerEndpointChanged
	// ReasonPingTimedOut means the idle-ping handler didn't receive a 204
	// (or didn't finish) within its transfer timeout.
	ReasonPingTimedOut
	// ReasonInvalidAuth means a handler reported 403, or the auth delegate
	// returned an empty token.
	ReasonInvalidAuth
	// ReasonConnectionTimedOut, ReasonDNSTimedOut, ReasonReadTimedOut,
	// ReasonWriteTimedOut are transient network failures: they trigger
	// backoff-retry and never fail already-queued requests.
	ReasonConnectionTimedOut
	ReasonDNSTimedOut
	ReasonReadTimedOut
	ReasonWriteTimedOut
	// ReasonFailureProtocolError and ReasonServerInternalError are treated
	// as transient: backoff, but per-request statuses still propagate.
	ReasonFailureProtocolError
	ReasonServerInternalError
	// ReasonConnectionThrottled backs off with the same retry table (no
	// separate floor is currently configured beyond the table itself).
	ReasonConnectionThrottled
	// ReasonInternalError covers a recovered panic or an HTTP/2 library
	// exception; disconnect and backoff, preserve no state.
	ReasonInternalError
)

func (r ChangedReason) String() string {
	switch r {
	case ReasonNone:
		return "NONE"
	case ReasonSuccess:
		return "SUCCESS"
	case ReasonACLClientRequest:
		return "ACL_CLIENT_REQUEST"
	case ReasonACLDisabled:
		return "ACL_DISABLED"
	case ReasonServerSideDisconnect:
		return "SERVER_SIDE_DISCONNECT"
	case ReasonServerEndpointChanged:
		return "SERVER_ENDPOINT_CHANGED"
	case ReasonPingTimedOut:
		return "PING_TIMEDOUT"
	case ReasonInvalidAuth:
		return "INVALID_AUTH"
	case ReasonConnectionTimedOut:
		return "CONNECTION_TIMEDOUT"
	case ReasonDNSTimedOut:
		return "DNS_TIMEDOUT"
	case ReasonReadTimedOut:
		return "READ_TIMEDOUT"
	case ReasonWriteTimedOut:
		return "WRITE_TIMEDOUT"
	case ReasonFailureProtocolError:
		return "FAILURE_PROTOCOL_ERROR"
	case ReasonServerInternalError:
		return "SERVER_INTERNAL_ERROR"
	case ReasonConnectionThrottled:
		return "CONNECTION_THROTTLED"
	case ReasonInternalError:
		return "INTERNAL_ERROR"
	default:
		return "UNKNOWN"
	}
}

// isTransient reports whether reason should trigger backoff-retry without
// failing already-queued requests (spec.md §7).
func (r ChangedReason) isTransient() bool {
	switch r {
	case ReasonConnectionTimedOut, ReasonDNSTimedOut, ReasonReadTimedOut, ReasonWriteTimedOut,
		ReasonFailureProtocolError, ReasonServerInternalError, ReasonConnectionThrottled,
		ReasonPingTimedOut, ReasonInternalError:
		return true
	default:
		return false
	}
}

// TransportError wraps a ChangedReason with its underlying cause, when one
// exists. It is the single error type transport-internal operations return.
type TransportError struct {
	Reason ChangedReason
	Err    error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return e.Reason.String()
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError constructs a *TransportError. err may be nil.
func NewTransportError(reason ChangedReason, err error) *TransportError {
	return &TransportError{Reason: reason, Err: err}
}
