// Copyright 2026 The Go AVS SDK Authors. All rights reserved.
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package avs

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// State is one value of the HTTP2Transport state machine (spec.md §4.3).
type State int

const (
	StateInit State = iota
	StateConnecting
	StateWaitingToRetryConnect
	StateWaitingPostConnect
	StateConnected
	StateServerSideDisconnectOrderly
	StateDisconnecting
	StateDisconnected
	StateShutdown
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateConnecting:
		return "CONNECTING"
	case StateWaitingToRetryConnect:
		return "WAITING_TO_RETRY_CONNECT"
	case StateWaitingPostConnect:
		return "WAITING_POST_CONNECT"
	case StateConnected:
		return "CONNECTED"
	case StateServerSideDisconnectOrderly:
		return "SERVER_SIDE_DISCONNECT_ORDERLY"
	case StateDisconnecting:
		return "DISCONNECTING"
	case StateDisconnected:
		return "DISCONNECTED"
	case StateShutdown:
		return "SHUTDOWN"
	default:
		return "UNKNOWN"
	}
}

// TransportConfig bundles everything an HTTP2Transport needs at
// construction. Only RetryTable and Logger have defaults; the collaborator
// fields (Delegate, Consumer, Attachments, Queue) are used as given.
type TransportConfig struct {
	Gateway     string
	Factory     ConnectionFactory
	Delegate    authDelegate
	Consumer    MessageConsumer
	Attachments AttachmentManager
	Queue       *outboundQueue
	// PostConnectOperations are run once per successful connect, gating
	// CONNECTED (spec.md §4.4). May be empty.
	PostConnectOperations []PostConnectOperation
	// RetryTable governs reconnect backoff (spec.md §4.3). Defaults to
	// DefaultTransportRetryTable.
	RetryTable RetryTable
	// OnStatusChanged reports every status transition this transport makes
	// (not deduplicated here — MessageRouter (C5) owns cross-transport
	// deduplication per spec.md §4.5).
	OnStatusChanged func(status ConnectionStatus, reason ChangedReason)
	// Logger defaults to slog.Default() when nil.
	Logger *slog.Logger
}

// HTTP2Transport is the session state machine of spec.md §4.3 (C3). One
// instance owns one HTTP/2 connection attempt's worth of handlers; a failed
// or torn-down transport is never reused — MessageRouter constructs a new
// one.
//
// All mutable fields below this comment are touched only by run, the
// single goroutine driving the state machine (design note in spec.md §9).
// Everything else communicates with run exclusively through the events
// channel or the exported methods, which only ever send on a channel or
// read atomics/mutex-guarded snapshot fields.
type HTTP2Transport struct {
	cfg    TransportConfig
	logger *slog.Logger

	events chan transportEvent
	wake   chan struct{}
	done   chan struct{}

	cancel context.CancelFunc

	// run-goroutine-only state:
	state         State
	conn          http.RoundTripper
	attempt       int
	downchannel   *downchannelHandler
	pingCancel    context.CancelFunc
	pingActive    bool
	messages      map[int64]*messageHandlerRecord
	pendingAcks   int
	lastActivity  time.Time
	sequencer     *PostConnectSequencer
	disconnectRsn ChangedReason
	shuttingDown  bool
}

// NewHTTP2Transport constructs a transport in state INIT. Call Connect to
// start it.
func NewHTTP2Transport(cfg TransportConfig) *HTTP2Transport {
	if cfg.RetryTable == nil {
		cfg.RetryTable = DefaultTransportRetryTable
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTP2Transport{
		cfg:      cfg,
		logger:   logger,
		events:   make(chan transportEvent, 16),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		messages: make(map[int64]*messageHandlerRecord),
		state:    StateInit,
	}
}

// Connect transitions INIT -> CONNECTING and starts the run loop. Calling
// Connect more than once is a programmer error; only MessageRouter calls
// this, exactly once per transport instance.
func (t *HTTP2Transport) Connect(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	go t.run(ctx)
}

// Send enqueues req onto the shared queue and nudges the run loop. Non
// blocking (spec.md §5).
func (t *HTTP2Transport) Send(req *MessageRequest) {
	t.cfg.Queue.Push(req)
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// Disconnect requests an orderly shutdown with the given reason. Returns
// once the request has been accepted by the run loop, not once teardown has
// completed; callers that need to wait for full teardown should select on
// Done.
func (t *HTTP2Transport) Disconnect(reason ChangedReason) {
	select {
	case t.events <- evDisconnectRequested{reason: reason}:
	case <-t.done:
	}
}

// DisconnectAndWait requests an orderly shutdown and blocks until the
// transport reaches Done, or ctx expires first. It is used by MessageRouter
// to fan out bounded, cancellable teardown across several transports at
// once (SPEC_FULL.md §3, golang.org/x/sync/errgroup).
func (t *HTTP2Transport) DisconnectAndWait(ctx context.Context, reason ChangedReason) error {
	t.Disconnect(reason)
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("avs: transport did not finish disconnecting: %w", ctx.Err())
	}
}

// WakeRetry cancels an in-progress backoff wait and retries immediately,
// implementing the original SDK's distinction between a "wake" and a full
// teardown-and-reconnect (SPEC_FULL.md §4, ConnectionRetryWaker).
func (t *HTTP2Transport) WakeRetry() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// Done is closed once the transport reaches DISCONNECTED or SHUTDOWN and
// every handler it created has been released.
func (t *HTTP2Transport) Done() <-chan struct{} {
	return t.done
}

func (t *HTTP2Transport) run(ctx context.Context) {
	defer close(t.done)

	t.setState(StateConnecting, ReasonACLClientRequest)
	t.startConnectAttempt(ctx)

	var retryTimer *time.Timer
	idleTicker := time.NewTicker(idleThreshold / 6)
	defer idleTicker.Stop()

	for {
		var retryFired <-chan time.Time
		if retryTimer != nil {
			retryFired = retryTimer.C
		}

		select {
		case <-ctx.Done():
			t.teardown(ReasonACLClientRequest)
			return

		case ev := <-t.events:
			if done := t.handleEvent(ctx, ev); done || t.state == StateDisconnected {
				return
			}

		case <-t.wake:
			switch t.state {
			case StateWaitingToRetryConnect:
				if retryTimer != nil {
					retryTimer.Stop()
					retryTimer = nil
				}
				t.setState(StateConnecting, ReasonACLClientRequest)
				t.startConnectAttempt(ctx)
			case StateConnected:
				t.maybeDequeue(ctx)
			}

		case <-retryFired:
			retryTimer = nil
			t.setState(StateConnecting, ReasonACLClientRequest)
			t.startConnectAttempt(ctx)

		case <-idleTicker.C:
			t.checkIdle(ctx)
		}

		if t.state == StateWaitingToRetryConnect && retryTimer == nil {
			delay := t.cfg.RetryTable.Delay(t.attempt, nil)
			retryTimer = time.NewTimer(delay)
		}
	}
}

func (t *HTTP2Transport) handleEvent(ctx context.Context, ev transportEvent) (done bool) {
	switch e := ev.(type) {
	case evDownchannelConnected:
		if t.state == StateConnecting {
			t.setState(StateWaitingPostConnect, ReasonSuccess)
			t.startPostConnect(ctx)
		}

	case evDownchannelForbidden:
		t.cfg.Delegate.OnAuthFailure(e.token)
		t.teardownInternal(ReasonInvalidAuth)

	case evDownchannelFinished:
		switch {
		case e.reason == ReasonInvalidAuth:
			t.teardownInternal(ReasonInvalidAuth)
		case t.state == StateConnecting:
			t.attempt++
			t.setState(StateWaitingToRetryConnect, e.reason)
		case t.state == StateConnected:
			t.setState(StateServerSideDisconnectOrderly, ReasonServerSideDisconnect)
			t.drainAndDisconnect(ctx)
		case t.state == StateWaitingPostConnect:
			t.teardownInternal(ReasonInternalError)
		}

	case evPostConnectDone:
		if t.state != StateWaitingPostConnect {
			return false
		}
		if e.ok {
			t.attempt = 0
			t.setState(StateConnected, ReasonACLClientRequest)
			t.lastActivity = time.Now()
			t.maybeDequeue(ctx)
		} else {
			t.teardownInternal(ReasonInternalError)
		}

	case evPingAcked:
		t.pingActive = false
		if e.ok {
			t.lastActivity = time.Now()
		} else {
			t.teardownInternal(ReasonPingTimedOut)
		}

	case evPingTimeout:
		t.pingActive = false
		t.teardownInternal(ReasonPingTimedOut)

	case evMessageAcked:
		if rec, ok := t.messages[e.id]; ok && !rec.acked {
			rec.acked = true
			t.pendingAcks--
			t.lastActivity = time.Now()
			t.maybeDequeue(ctx)
		}

	case evMessageForbidden:
		// Notify the delegate now, but don't tear down yet: this request's
		// own handler is still in flight and must still deliver its real
		// terminal status (evMessageFinished, below) before the transport
		// disconnects — tearing down here would race teardownInternal's
		// in-flight-message sweep against that status and could deliver
		// NOT_CONNECTED ahead of (or instead of) INVALID_AUTH.
		t.cfg.Delegate.OnAuthFailure(e.token)

	case evMessageFinished:
		if rec, ok := t.messages[e.id]; ok {
			if !rec.acked {
				rec.acked = true
				t.pendingAcks--
			}
			delete(t.messages, e.id)
			t.lastActivity = time.Now()
			rec.req.notifyStatus(e.status)
			if e.status.Status == StatusInvalidAuth {
				// spec.md §7: a 403 disconnects the transport, once the
				// request it was reported on has received its own terminal
				// status.
				t.teardownInternal(ReasonInvalidAuth)
				return false
			}
			t.maybeDequeue(ctx)
			t.checkDrainComplete()
		}

	case evDisconnectRequested:
		t.teardownInternal(e.reason)
		return t.state == StateDisconnected || t.state == StateShutdown

	default:
		t.logger.Warn("avs: unhandled transport event", slog.Any("event", ev))
	}
	return false
}

func (t *HTTP2Transport) setState(s State, reason ChangedReason) {
	t.state = s
	t.logger.Debug("avs: transport state transition", slog.String("state", s.String()), slog.String("reason", reason.String()))

	switch s {
	case StateConnected:
		t.notifyStatus(StatusConnected, reason)
	case StateConnecting, StateWaitingToRetryConnect, StateServerSideDisconnectOrderly:
		// spec.md §8 Scenario 1: the caller must see PENDING before
		// CONNECTED, whether this is the first connect attempt or a retry.
		t.notifyStatus(StatusPending, reason)
	case StateDisconnected:
		t.notifyStatus(StatusDisconnected, reason)
	}
}

func (t *HTTP2Transport) notifyStatus(status ConnectionStatus, reason ChangedReason) {
	if t.cfg.OnStatusChanged != nil {
		t.cfg.OnStatusChanged(status, reason)
	}
}

func (t *HTTP2Transport) startConnectAttempt(ctx context.Context) {
	conn, err := t.cfg.Factory.New(ctx, t.cfg.Gateway)
	if err != nil {
		t.attempt++
		t.setState(StateWaitingToRetryConnect, classifyNetworkError(err))
		return
	}
	t.conn = conn
	t.downchannel = startDownchannelHandler(ctx, newHandlerID(), t.cfg.Gateway, conn, t.cfg.Delegate, t.cfg.Consumer, t.cfg.Attachments, t.events)
}

func (t *HTTP2Transport) startPostConnect(ctx context.Context) {
	t.sequencer = NewPostConnectSequencer(t.cfg.PostConnectOperations, sendFunc(t.Send))
	_ = t.sequencer.Run(ctx, func(ok bool) {
		select {
		case t.events <- evPostConnectDone{ok: ok}:
		case <-t.done:
		}
	})
}

// sendFunc adapts a plain func(*MessageRequest) into a MessageSender.
type sendFunc func(*MessageRequest)

func (f sendFunc) Send(req *MessageRequest) { f(req) }

func (t *HTTP2Transport) maybeDequeue(ctx context.Context) {
	if t.state != StateConnected {
		return
	}
	for t.pendingAcks == 0 {
		req, ok := t.cfg.Queue.Pop()
		if !ok {
			return
		}
		id := newHandlerID()
		rec := startMessageRequestHandler(ctx, id, t.cfg.Gateway, t.conn, t.cfg.Delegate, t.cfg.Consumer, t.cfg.Attachments, req, t.events)
		t.messages[id] = rec
		t.pendingAcks++
		t.lastActivity = time.Now()
	}
}

func (t *HTTP2Transport) checkIdle(ctx context.Context) {
	if t.state != StateConnected || t.pingActive {
		return
	}
	if time.Since(t.lastActivity) < idleThreshold {
		return
	}
	t.pingActive = true
	t.pingCancel = startPingHandler(ctx, t.cfg.Gateway, t.conn, t.cfg.Delegate, t.events)
}

// drainAndDisconnect is entered from SERVER_SIDE_DISCONNECT_ORDERLY: new
// sends already fail via the router creating a replacement transport, and
// this transport keeps servicing in-flight handlers until they all finish
// (spec.md §4.3).
func (t *HTTP2Transport) drainAndDisconnect(ctx context.Context) {
	t.checkDrainComplete()
}

func (t *HTTP2Transport) checkDrainComplete() {
	if t.state == StateServerSideDisconnectOrderly && len(t.messages) == 0 {
		t.teardownInternal(ReasonServerSideDisconnect)
	}
}

// teardownInternal runs the DISCONNECTING -> DISCONNECTED path: cancel
// every outstanding handler, fail queued-but-not-yet-admitted requests with
// StatusNotConnected, close the connection, and notify DISCONNECTED.
func (t *HTTP2Transport) teardownInternal(reason ChangedReason) {
	if t.state == StateDisconnected || t.state == StateDisconnecting {
		return
	}
	t.state = StateDisconnecting
	t.disconnectRsn = reason

	if t.downchannel != nil {
		t.downchannel.abort()
	}
	if t.pingCancel != nil {
		t.pingCancel()
	}
	for _, rec := range t.messages {
		rec.cancel()
		rec.req.notifyStatus(Status{Status: StatusNotConnected})
	}
	for _, req := range t.cfg.Queue.Drain() {
		req.notifyStatus(Status{Status: StatusNotConnected})
	}
	if t.sequencer != nil {
		t.sequencer.Stop()
	}
	if t.conn != nil {
		closeConnection(t.conn)
	}

	t.state = StateDisconnected
	t.notifyStatus(StatusDisconnected, reason)
}

// teardown handles ctx cancellation (caller-driven shutdown): it runs
// teardownInternal with reason (the run loop passes ACL_CLIENT_REQUEST) and
// then marks the transport SHUTDOWN.
func (t *HTTP2Transport) teardown(reason ChangedReason) {
	t.teardownInternal(reason)
	t.state = StateShutdown
}
