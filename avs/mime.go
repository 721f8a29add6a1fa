// Copyright 2026 The Go AVS SDK Authors. All rights reserved.
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package avs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/avs-sdk/go-avs/internal/wire"
)

var (
	errAttachmentStalled     = errors.New("attachment writer made no progress under backpressure")
	errAttachmentWriteFailed = errors.New("attachment writer closed or failed")
)

// maxErrorBodyBytes bounds the non-MIME error body buffered for a non-2xx
// response (spec.md §4.1).
const maxErrorBodyBytes = 4096

// eventsBoundary is the fixed multipart boundary used on every outbound
// MessageRequest (spec.md §4.2.2, §6). Inbound responses draw their
// boundary from their own Content-Type header and are not required to match
// it, but the gateway always uses it in practice.
const eventsBoundary = "WhooHooZeerOoonie="

// MimeResponseSink consumes one HTTP/2 response body, splits MIME
// multipart, and routes JSON parts to a MessageConsumer and binary parts to
// AttachmentWriters (spec.md §4.1). One sink exists per handler; its
// lifetime equals the handler's.
type MimeResponseSink struct {
	contextID   string
	consumer    MessageConsumer
	attachments AttachmentManager
}

// NewMimeResponseSink constructs a sink for one exchange. contextID
// namespaces any attachment ids produced (spec.md: "the HTTP/2 request id").
func NewMimeResponseSink(contextID string, consumer MessageConsumer, attachments AttachmentManager) *MimeResponseSink {
	return &MimeResponseSink{contextID: contextID, consumer: consumer, attachments: attachments}
}

// Process reads resp.Body to completion, routing parts as they arrive. It
// returns the accumulated non-MIME error body (capped at maxErrorBodyBytes),
// which is only ever non-empty when resp's Content-Type was not multipart.
// A non-nil error means the body could not be fully consumed (network
// failure, or an attachment writer aborting the receive) and the caller
// should treat the exchange as INTERNAL_ERROR.
func (s *MimeResponseSink) Process(ctx context.Context, resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") || params["boundary"] == "" {
		return s.readErrorBody(resp.Body)
	}

	reader := multipart.NewReader(resp.Body, params["boundary"])
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		part, err := reader.NextPart()
		if err == io.EOF {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if perr := s.processPart(part); perr != nil {
			part.Close()
			return nil, perr
		}
		part.Close()
	}
}

func (s *MimeResponseSink) readErrorBody(body io.Reader) ([]byte, error) {
	limited := io.LimitReader(body, maxErrorBodyBytes)
	buf, err := io.ReadAll(limited)
	if err != nil {
		return buf, err
	}
	return buf, nil
}

func (s *MimeResponseSink) processPart(part *multipart.Part) error {
	contentType := part.Header.Get("Content-Type")

	switch {
	case strings.Contains(contentType, "application/json"):
		return s.processJSONPart(part)
	case strings.Contains(contentType, "application/octet-stream") && len(part.Header.Values("Content-ID")) == 1:
		return s.processAttachmentPart(part)
	default:
		_, err := io.Copy(io.Discard, part)
		return err
	}
}

func (s *MimeResponseSink) processJSONPart(part *multipart.Part) error {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, part); err != nil {
		return err
	}
	if buf.Len() == 0 {
		// Re-drive of a previously consumed part: drop silently
		// (spec.md §4.1 de-duplication contract).
		return nil
	}
	// The core never decodes a directive's JSON into a struct (that's left
	// entirely to the MessageConsumer), so the usual field-based strict
	// decode doesn't apply here; the duplicate-key-by-case check still
	// guards against a directive smuggling two differently-cased copies of
	// the same key past whatever the consumer looks at.
	if err := wire.ValidateNoDuplicateKeys(buf.Bytes()); err != nil {
		return NewTransportError(ReasonFailureProtocolError, err)
	}
	s.consumer.Consume(s.contextID, buf.Bytes())
	return nil
}

func (s *MimeResponseSink) processAttachmentPart(part *multipart.Part) error {
	contentID := sanitizeContentID(part.Header.Get("Content-ID"))
	id := s.attachments.GenerateID(s.contextID, contentID)
	writer := s.attachments.CreateWriter(id)
	if writer == nil {
		// Already created for this id on an earlier delivery: drop bytes
		// silently, writer is not re-opened (spec.md §8 property 5).
		_, err := io.Copy(io.Discard, part)
		return err
	}
	defer writer.Close()

	buf := make([]byte, 32*1024)
	for {
		n, rerr := part.Read(buf)
		if n > 0 {
			if werr := s.writeAll(writer, buf[:n]); werr != nil {
				return werr
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}

// writeAll drives an AttachmentWriter to completion for one chunk, failing on
// any non-OK outcome (spec.md §4.1). It does not pause the receive on
// backpressure: see the WriteOKBufferFull case below.
func (s *MimeResponseSink) writeAll(writer AttachmentWriter, p []byte) error {
	for len(p) > 0 {
		n, outcome := writer.Write(p)
		switch outcome {
		case WriteOK:
			p = p[n:]
		case WriteOKBufferFull:
			p = p[n:]
			// Backpressure: Go's http2.Transport has no pull-based pause
			// primitive exposed to callers, so the remaining bytes are
			// offered to the writer again immediately, with no wait in
			// between. A full buffer that accepts no bytes at all aborts
			// the receive with errAttachmentStalled.
			if n == 0 {
				return NewTransportError(ReasonInternalError, errAttachmentStalled)
			}
		default:
			return NewTransportError(ReasonInternalError, errAttachmentWriteFailed)
		}
	}
	return nil
}

// sanitizeContentID strips one surrounding "<...>" pair if present. It does
// not decode percent-escapes (spec.md Open Question 1: preserve source
// behavior even though RFC 2392's cid: handling would normally require it).
func sanitizeContentID(raw string) string {
	if len(raw) >= 2 && raw[0] == '<' && raw[len(raw)-1] == '>' {
		return raw[1 : len(raw)-1]
	}
	return raw
}
