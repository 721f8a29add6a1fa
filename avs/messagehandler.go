// Copyright 2026 The Go AVS SDK Authors. All rights reserved.
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package avs

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// messageActivityTimeout bounds how long a MessageRequestHandler may go
// without observed progress (spec.md §4.2.2: "Activity timeout 15
// seconds"). Go's http.Client/http2.Transport have no native
// forward-progress watchdog distinct from an overall deadline, so this is
// enforced as an overall deadline on the whole exchange, counted from the
// handler's start: an exchange still transferring after 15 seconds times
// out even if it is making progress.
const messageActivityTimeout = 15 * time.Second

// messageHandlerRecord tracks the mutable state of one in-flight
// MessageRequestHandler that the transport's run loop needs: whether a
// response code has been seen yet (the at-most-one-in-flight admission
// gate, spec.md §4.3) and whether the ack notification has already fired
// (spec.md §4.2.2: "exactly once per handler even if invoked multiple
// times").
type messageHandlerRecord struct {
	id      int64
	req     *MessageRequest
	cancel  context.CancelFunc
	acked   bool
	started time.Time
}

// startMessageRequestHandler issues one event POST on its own goroutine.
func startMessageRequestHandler(parent context.Context, id int64, gateway string, conn http.RoundTripper, delegate authDelegate, consumer MessageConsumer, attachments AttachmentManager, req *MessageRequest, events chan<- transportEvent) *messageHandlerRecord {
	ctx, cancel := context.WithTimeout(parent, messageActivityTimeout)
	rec := &messageHandlerRecord{id: id, req: req, cancel: cancel, started: time.Now()}
	go runMessageRequestHandler(ctx, rec, gateway, conn, delegate, consumer, attachments, events)
	return rec
}

func runMessageRequestHandler(ctx context.Context, rec *messageHandlerRecord, gateway string, conn http.RoundTripper, delegate authDelegate, consumer MessageConsumer, attachments AttachmentManager, events chan<- transportEvent) {
	defer rec.cancel()

	token, err := withAuth(ctx, delegate)
	if err != nil {
		events <- evMessageFinished{id: rec.id, status: Status{Status: StatusInvalidAuth}}
		return
	}

	path, perr := eventsPath(rec.req.Path, nil)
	if perr != nil {
		events <- evMessageFinished{id: rec.id, status: Status{Status: StatusInternalError}}
		return
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	_ = mw.SetBoundary(eventsBoundary) // fixed boundary (spec.md §6), always valid

	go writeMultipartBody(mw, pw, rec.req)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, gatewayURL(gateway, path), pr)
	if err != nil {
		events <- evMessageFinished{id: rec.id, status: Status{Status: StatusInternalError}}
		return
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	applyExchangeHeaders(httpReq, token, rec.req.ExtraHeaders)

	resp, err := roundTripWithRecover(conn, httpReq)
	if err != nil {
		status := statusForRoundTripError(ctx, err)
		events <- evMessageFinished{id: rec.id, status: status}
		return
	}

	if resp.StatusCode == http.StatusForbidden {
		events <- evMessageForbidden{token: token}
	}
	events <- evMessageAcked{id: rec.id}

	sink := NewMimeResponseSink(contextIDForHandler(rec.id), consumer, attachments)
	errBody, serr := sink.Process(ctx, resp)

	status := Status{Status: statusForCode(resp.StatusCode), Diagnostics: diagnosticsFromResponse(resp)}
	switch {
	case serr != nil && ctx.Err() == context.DeadlineExceeded:
		status.Status = StatusTimedOut
	case serr != nil && ctx.Err() == context.Canceled:
		status.Status = StatusCanceled
	case serr != nil:
		status.Status = StatusInternalError
	}
	if resp.StatusCode == 0 {
		status.Status = StatusInternalError
	}

	if resp.StatusCode != http.StatusOK {
		rec.req.notifyException(errBody)
	}
	events <- evMessageFinished{id: rec.id, status: status}
}

func statusForRoundTripError(ctx context.Context, err error) Status {
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return Status{Status: StatusTimedOut}
	case context.Canceled:
		return Status{Status: StatusCanceled}
	default:
		return Status{Status: StatusInternalError}
	}
}

// writeMultipartBody streams the event JSON as the "metadata" part followed
// by one part per attachment reader, closing pw with the terminal error (if
// any) so the HTTP request body reports the right failure upstream
// (spec.md §4.2.2 "Outbound pull semantics": an attachment reader's error
// aborts the exchange; a clean io.EOF just advances to the next part —
// multipart.Writer plus io.Pipe gives that for free, since pw.CloseWithError
// surfaces through to the pipe reader http.Client is reading from).
func writeMultipartBody(mw *multipart.Writer, pw *io.PipeWriter, req *MessageRequest) {
	err := writeMultipartBodyParts(mw, req)
	mw.Close()
	pw.CloseWithError(err)
}

func writeMultipartBodyParts(mw *multipart.Writer, req *MessageRequest) error {
	metadata, err := mw.CreatePart(map[string][]string{
		"Content-Type":        {"application/json"},
		"Content-Disposition": {`form-data; name="metadata"`},
	})
	if err != nil {
		return err
	}
	if _, err := metadata.Write(req.JSON); err != nil {
		return err
	}

	for _, reader := range req.Attachments {
		part, err := mw.CreatePart(map[string][]string{
			"Content-Type":        {"application/octet-stream"},
			"Content-Disposition": {`form-data; name="` + reader.Name() + `"`},
		})
		if err != nil {
			return err
		}
		if _, err := io.Copy(part, reader); err != nil {
			return err
		}
	}
	return nil
}
