// Copyright 2026 The Go AVS SDK Authors. All rights reserved.
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package avs

import (
	"context"
	"testing"
)

func noopTransportFactory(gateway string, queue *outboundQueue, consumer MessageConsumer, onStatusChanged func(ConnectionStatus, ChangedReason)) *HTTP2Transport {
	return NewHTTP2Transport(TransportConfig{
		Gateway:         gateway,
		Factory:         erroringConnectionFactory{},
		Consumer:        consumer,
		Attachments:     NewMemoryAttachmentManager(),
		Queue:           queue,
		OnStatusChanged: onStatusChanged,
	})
}

func TestManagerEnableIsIdempotent(t *testing.T) {
	router := NewMessageRouter(noopTransportFactory, nil)
	m := NewAVSConnectionManager(router, nil, nil)
	defer m.Close()

	ctx := context.Background()
	m.Enable(ctx, "https://example.invalid")
	t.Cleanup(m.Disable)
	if !m.IsEnabled() {
		t.Fatal("expected IsEnabled after Enable")
	}
	m.Enable(ctx, "https://example.invalid") // second call must be a no-op
	if m.Gateway() != "https://example.invalid" {
		t.Errorf("Gateway() = %q", m.Gateway())
	}
}

func TestManagerDisableIsIdempotent(t *testing.T) {
	router := NewMessageRouter(noopTransportFactory, nil)
	m := NewAVSConnectionManager(router, nil, nil)
	defer m.Close()

	m.Disable() // disabling while never enabled must be a no-op, not panic
	if m.IsEnabled() {
		t.Fatal("expected not enabled")
	}
}

func TestManagerReconnectNoopWhenDisabled(t *testing.T) {
	router := NewMessageRouter(noopTransportFactory, nil)
	m := NewAVSConnectionManager(router, nil, nil)
	defer m.Close()

	m.Reconnect(context.Background()) // no-op: never enabled
	if m.IsEnabled() {
		t.Fatal("Reconnect must not enable a disabled manager")
	}
}

func TestManagerSendNilRequestDropped(t *testing.T) {
	router := NewMessageRouter(noopTransportFactory, nil)
	m := NewAVSConnectionManager(router, nil, nil)
	defer m.Close()

	m.Send(nil) // must not panic
}

func TestManagerSendWhileDisabledForwardsToRouter(t *testing.T) {
	router := NewMessageRouter(noopTransportFactory, nil)
	m := NewAVSConnectionManager(router, nil, nil)
	defer m.Close()

	var got Status
	req := &MessageRequest{Observers: []ResultObserver{recordingResultObserver{&got}}}
	m.Send(req)

	if got.Status != StatusNotConnected {
		t.Errorf("Send while disabled: got %v, want StatusNotConnected", got.Status)
	}
}
