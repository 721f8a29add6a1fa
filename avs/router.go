// Copyright 2026 The Go AVS SDK Authors. All rights reserved.
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package avs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// teardownTimeout bounds how long MessageRouter waits for a transport to
// finish disconnecting before giving up on it and logging instead of
// blocking Disable/SetGateway indefinitely.
const teardownTimeout = 10 * time.Second

// disconnectAll tears down every transport in ts concurrently (bounded),
// reason attributed to each, and returns the combined non-fatal errors from
// any that didn't finish within teardownTimeout. errgroup bounds and
// cancels the fan-out; multierr keeps every transport's error instead of
// discarding all but one the way errgroup.Wait alone would.
func disconnectAll(ts []*HTTP2Transport, reason ChangedReason) error {
	var (
		mu       sync.Mutex
		combined error
	)
	g := new(errgroup.Group)
	g.SetLimit(4)
	for _, t := range ts {
		t := t
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
			defer cancel()
			if err := t.DisconnectAndWait(ctx, reason); err != nil {
				mu.Lock()
				combined = multierr.Append(combined, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return combined
}

// TransportFactory builds a fresh HTTP2Transport bound to gateway. Injected
// so MessageRouter never constructs transports directly (spec.md §4.5:
// "create a new transport via the injected factory"). consumer is the
// router's own fan-out MessageConsumer (MessageRouter.Consumer()); every
// transport the factory builds must wire it in as TransportConfig.Consumer
// so inbound directives reach the router's registered MessageObservers.
type TransportFactory func(gateway string, queue *outboundQueue, consumer MessageConsumer, onStatusChanged func(ConnectionStatus, ChangedReason)) *HTTP2Transport

// NewDefaultTransportFactory returns a TransportFactory that builds an
// HTTP2Transport from a fixed set of collaborators, reused across every
// transport the router creates (on enable, endpoint change, and orderly
// server-side disconnect). This is the factory most callers should pass to
// NewMessageRouter; a hand-written factory is only needed to vary
// collaborators per gateway.
func NewDefaultTransportFactory(connFactory ConnectionFactory, delegate authDelegate, attachments AttachmentManager, postConnectOps []PostConnectOperation, retryTable RetryTable, logger *slog.Logger) TransportFactory {
	return func(gateway string, queue *outboundQueue, consumer MessageConsumer, onStatusChanged func(ConnectionStatus, ChangedReason)) *HTTP2Transport {
		return NewHTTP2Transport(TransportConfig{
			Gateway:               gateway,
			Factory:               connFactory,
			Delegate:              delegate,
			Consumer:              consumer,
			Attachments:           attachments,
			Queue:                 queue,
			PostConnectOperations: postConnectOps,
			RetryTable:            retryTable,
			OnStatusChanged:       onStatusChanged,
			Logger:                logger,
		})
	}
}

// MessageRouter is C5: it owns transport lifecycle, the shared outbound
// queue, and fans out connection-status and message notifications to one
// upstream observer (usually AVSConnectionManager).
type MessageRouter struct {
	factory  TransportFactory
	logger   *slog.Logger
	consumer *fanoutConsumer

	mu       sync.Mutex
	gateway  string
	enabled  bool
	active   *HTTP2Transport
	retained []*HTTP2Transport
	queue    *outboundQueue

	transportStatus map[*HTTP2Transport]ConnectionStatus

	lastStatus ConnectionStatus
	lastReason ChangedReason
	haveStatus bool

	statusObservers  *observerSet[ConnectionStatusObserver]
	messageObservers *observerSet[MessageObserver]
}

// NewMessageRouter constructs a router. factory is called once per
// transport creation (enable, endpoint change, orderly server disconnect).
func NewMessageRouter(factory TransportFactory, logger *slog.Logger) *MessageRouter {
	if logger == nil {
		logger = slog.Default()
	}
	r := &MessageRouter{
		factory:          factory,
		logger:           logger,
		queue:            newOutboundQueue(),
		transportStatus:  make(map[*HTTP2Transport]ConnectionStatus),
		statusObservers:  newObserverSet[ConnectionStatusObserver](),
		messageObservers: newObserverSet[MessageObserver](),
	}
	r.consumer = &fanoutConsumer{router: r}
	return r
}

// Consumer returns the MessageConsumer every transport this router creates
// should be wired to.
func (r *MessageRouter) Consumer() MessageConsumer {
	return r.consumer
}

// AddConnectionStatusObserver registers obs for future status changes.
func (r *MessageRouter) AddConnectionStatusObserver(obs ConnectionStatusObserver) {
	r.statusObservers.add(obs)
}

// RemoveConnectionStatusObserver unregisters obs.
func (r *MessageRouter) RemoveConnectionStatusObserver(obs ConnectionStatusObserver) {
	r.statusObservers.remove(obs)
}

// AddMessageObserver registers obs for future directives.
func (r *MessageRouter) AddMessageObserver(obs MessageObserver) {
	r.messageObservers.add(obs)
}

// RemoveMessageObserver unregisters obs.
func (r *MessageRouter) RemoveMessageObserver(obs MessageObserver) {
	r.messageObservers.remove(obs)
}

// Enable creates and connects a new active transport for gateway, if not
// already connected (spec.md §4.5).
func (r *MessageRouter) Enable(ctx context.Context, gateway string) {
	r.mu.Lock()
	r.enabled = true
	r.gateway = gateway
	if r.active != nil {
		r.mu.Unlock()
		return
	}
	r.notifyStatusLocked(StatusPending, ReasonACLClientRequest)
	t := r.newTransportLocked(gateway)
	r.active = t
	r.mu.Unlock()

	t.Connect(ctx)
	go r.watchRetirement(t)
}

// newTransportLocked builds a transport wired to report back into
// r.transportStatus under its own identity. r.mu must be held (the factory
// call itself does not touch router state, but callers always hold the
// lock when installing the result into r.active/r.retained).
func (r *MessageRouter) newTransportLocked(gateway string) *HTTP2Transport {
	var t *HTTP2Transport
	t = r.factory(gateway, r.queue, r.consumer, func(status ConnectionStatus, reason ChangedReason) {
		r.onTransportStatus(t, status, reason)
	})
	return t
}

// Disable tears down every transport with reason ACL_CLIENT_REQUEST.
func (r *MessageRouter) Disable() {
	r.mu.Lock()
	r.enabled = false
	active := r.active
	retained := append([]*HTTP2Transport(nil), r.retained...)
	r.mu.Unlock()

	all := retained
	if active != nil {
		all = append([]*HTTP2Transport{active}, retained...)
	}
	if err := disconnectAll(all, ReasonACLClientRequest); err != nil {
		r.logger.Warn("avs: one or more transports did not disconnect cleanly", slog.Any("err", err))
	}
}

// SetGateway changes the endpoint. If enabled, every transport is
// disconnected with SERVER_ENDPOINT_CHANGED and a new active transport is
// created (spec.md §4.5); calling with the same URL already in effect is a
// no-op (spec.md §8: "set_gateway(x); set_gateway(x) produces at most one
// disconnect/reconnect cycle").
func (r *MessageRouter) SetGateway(ctx context.Context, gateway string) {
	r.mu.Lock()
	if r.gateway == gateway {
		r.mu.Unlock()
		return
	}
	r.gateway = gateway
	enabled := r.enabled
	active := r.active
	retained := append([]*HTTP2Transport(nil), r.retained...)
	r.active = nil
	r.mu.Unlock()

	all := retained
	if active != nil {
		all = append([]*HTTP2Transport{active}, retained...)
	}
	if err := disconnectAll(all, ReasonServerEndpointChanged); err != nil {
		r.logger.Warn("avs: one or more transports did not disconnect cleanly", slog.Any("err", err))
	}

	if enabled {
		r.Enable(ctx, gateway)
	}
}

// Send forwards req to the active transport, which queues it on the shared
// queue. If no transport is active, req is not queued: it is failed
// immediately with StatusNotConnected, so it still reaches its observer
// with a terminal status (spec.md §6). AVSConnectionManager.Send forwards
// here even while disabled and relies on this.
func (r *MessageRouter) Send(req *MessageRequest) {
	r.mu.Lock()
	active := r.active
	r.mu.Unlock()
	if active == nil {
		req.notifyStatus(Status{Status: StatusNotConnected})
		return
	}
	active.Send(req)
}

// WakeActiveTransport requests the active transport retry immediately if it
// is currently waiting on a backoff timer (SPEC_FULL.md §4).
func (r *MessageRouter) WakeActiveTransport() {
	r.mu.Lock()
	active := r.active
	r.mu.Unlock()
	if active != nil {
		active.WakeRetry()
	}
}

// onTransportStatus is the callback every transport this router creates
// invokes on each of its own state transitions.
func (r *MessageRouter) onTransportStatus(t *HTTP2Transport, status ConnectionStatus, reason ChangedReason) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.transportStatus[t] = status

	if reason == ReasonServerSideDisconnect && status == StatusPending && r.active == t {
		r.spawnReplacementLocked()
	}

	agg := r.aggregateStatusLocked()
	r.notifyStatusLocked(agg, reason)
}

// spawnReplacementLocked retires the current active transport into the
// retained set (to keep draining) and creates a new active transport, used
// on an orderly server-side disconnect (spec.md §4.5). r.mu must be held.
func (r *MessageRouter) spawnReplacementLocked() {
	if r.active != nil {
		r.retained = append(r.retained, r.active)
	}
	t := r.newTransportLocked(r.gateway)
	r.active = t
	go func() {
		t.Connect(context.Background())
		r.watchRetirement(t)
	}()
}

// watchRetirement removes t from the retained set once it fully tears down.
func (r *MessageRouter) watchRetirement(t *HTTP2Transport) {
	<-t.Done()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == t {
		r.active = nil
	}
	for i, rt := range r.retained {
		if rt == t {
			r.retained = append(r.retained[:i], r.retained[i+1:]...)
			break
		}
	}
	delete(r.transportStatus, t)
	agg := r.aggregateStatusLocked()
	r.notifyStatusLocked(agg, ReasonSuccess)
}

// aggregateStatusLocked implements spec.md §4.5's aggregation rule:
// CONNECTED iff any transport reports CONNECTED; otherwise PENDING if any
// is still trying; else DISCONNECTED. r.mu must be held.
func (r *MessageRouter) aggregateStatusLocked() ConnectionStatus {
	if len(r.transportStatus) == 0 {
		return StatusDisconnected
	}
	best := StatusDisconnected
	for _, s := range r.transportStatus {
		if s == StatusConnected {
			return StatusConnected
		}
		if s == StatusPending {
			best = StatusPending
		}
	}
	return best
}

func (r *MessageRouter) notifyStatusLocked(status ConnectionStatus, reason ChangedReason) {
	if r.haveStatus && r.lastStatus == status && r.lastReason == reason {
		return
	}
	r.haveStatus = true
	r.lastStatus = status
	r.lastReason = reason
	r.logger.Debug("avs: router status changed", slog.String("status", status.String()), slog.String("reason", reason.String()))
	r.statusObservers.forEach(func(obs ConnectionStatusObserver) {
		obs.OnConnectionStatusChanged(status, reason)
	})
}

// fanoutConsumer adapts MessageRouter into the MessageConsumer every
// transport delivers parsed directives to, forwarding each one to the
// router's registered message observers.
type fanoutConsumer struct {
	router *MessageRouter
}

func (c *fanoutConsumer) Consume(contextID string, json []byte) {
	c.router.messageObservers.forEach(func(obs MessageObserver) {
		obs.OnMessage(contextID, json)
	})
}
