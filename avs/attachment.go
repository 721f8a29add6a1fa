// Copyright 2026 The Go AVS SDK Authors. All rights reserved.
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package avs

import (
	"bytes"
	"fmt"
	"sync"
)

// WriteOutcome classifies the result of one AttachmentWriter.Write call
// (spec.md §4.1, "Attachment writing").
type WriteOutcome int

const (
	// WriteOK means every byte passed was accepted.
	WriteOK WriteOutcome = iota
	// WriteOKBufferFull means some or all bytes were accepted but the
	// writer's buffer is now full; the caller should pause the receive
	// (backpressure) until capacity frees up.
	WriteOKBufferFull
	// WriteClosed means the writer has already been closed.
	WriteClosed
	// WriteInternalError means the writer failed for a reason unrelated to
	// capacity.
	WriteInternalError
)

// AttachmentWriter is a sink for one attachment's binary bytes. Write is
// called from the network goroutine of whichever handler owns the
// attachment part; implementations must not block indefinitely.
type AttachmentWriter interface {
	// Write attempts to accept p. n is the number of bytes actually
	// consumed; it may be less than len(p) only when outcome is
	// WriteOKBufferFull.
	Write(p []byte) (n int, outcome WriteOutcome)
	// Close marks the attachment complete. Called once, when the owning
	// MIME part ends.
	Close() error
}

// AttachmentManager mints AttachmentWriters keyed by a globally unique
// attachment id. A writer is created at most once per id even across
// retries that redeliver the same MIME part (spec.md §4.1 de-duplication
// contract) — the manager itself is responsible for enforcing that, since
// MimeResponseSink keeps no record of ids and calls CreateWriter for every
// attachment part it sees, and a redelivered part can arrive on a brand new
// MimeResponseSink after a reconnect.
type AttachmentManager interface {
	// GenerateID derives a globally unique attachment id from a
	// request-scoped context id and the MIME part's sanitized Content-ID.
	GenerateID(contextID, contentID string) string
	// CreateWriter returns a writer for id, or nil if one already exists
	// (the caller should treat a nil return as "drop this part's bytes
	// silently", matching the redelivery de-duplication contract).
	CreateWriter(id string) AttachmentWriter
}

// GenerateAttachmentID implements the id-derivation rule shared by every
// AttachmentManager: "<context_id>:<sanitized_content_id>" (spec.md §4.3).
func GenerateAttachmentID(contextID, contentID string) string {
	return fmt.Sprintf("%s:%s", contextID, contentID)
}

// MemoryAttachmentManager is an in-memory AttachmentManager suitable for
// tests and for callers who want to buffer whole attachments in memory
// rather than streaming them to another consumer. It is safe for concurrent
// use.
type MemoryAttachmentManager struct {
	mu      sync.Mutex
	writers map[string]*memoryAttachmentWriter
}

// NewMemoryAttachmentManager returns an empty MemoryAttachmentManager.
func NewMemoryAttachmentManager() *MemoryAttachmentManager {
	return &MemoryAttachmentManager{writers: make(map[string]*memoryAttachmentWriter)}
}

func (m *MemoryAttachmentManager) GenerateID(contextID, contentID string) string {
	return GenerateAttachmentID(contextID, contentID)
}

func (m *MemoryAttachmentManager) CreateWriter(id string) AttachmentWriter {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.writers[id]; exists {
		return nil
	}
	w := &memoryAttachmentWriter{}
	m.writers[id] = w
	return w
}

// Bytes returns the bytes written so far for id, and whether a writer for id
// was ever created.
func (m *MemoryAttachmentManager) Bytes(id string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, exists := m.writers[id]
	if !exists {
		return nil, false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return bytes.Clone(w.buf.Bytes()), true
}

type memoryAttachmentWriter struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
}

func (w *memoryAttachmentWriter) Write(p []byte) (int, WriteOutcome) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, WriteClosed
	}
	n, err := w.buf.Write(p)
	if err != nil {
		return n, WriteInternalError
	}
	return n, WriteOK
}

func (w *memoryAttachmentWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}
