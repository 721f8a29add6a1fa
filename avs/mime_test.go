// Copyright 2026 The Go AVS SDK Authors. All rights reserved.
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package avs

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"
)

func buildMultipartResponse(t *testing.T, writeParts func(w *multipart.Writer)) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	writeParts(w)
	if err := w.Close(); err != nil {
		t.Fatalf("closing multipart writer: %v", err)
	}
	return &http.Response{
		StatusCode: 200,
		Header: http.Header{
			"Content-Type": {"multipart/form-data; boundary=" + w.Boundary()},
		},
		Body: io.NopCloser(&buf),
	}
}

type recordingConsumer struct {
	got []struct {
		contextID string
		json      string
	}
}

func (c *recordingConsumer) Consume(contextID string, json []byte) {
	c.got = append(c.got, struct {
		contextID string
		json      string
	}{contextID, string(json)})
}

func TestMimeResponseSinkJSONPart(t *testing.T) {
	resp := buildMultipartResponse(t, func(w *multipart.Writer) {
		part, err := w.CreatePart(map[string][]string{
			"Content-Type":        {"application/json"},
			"Content-Disposition": {`form-data; name="metadata"`},
		})
		if err != nil {
			t.Fatal(err)
		}
		part.Write([]byte(`{"x":1}`))
	})

	consumer := &recordingConsumer{}
	sink := NewMimeResponseSink("ctx1", consumer, NewMemoryAttachmentManager())
	if _, err := sink.Process(context.Background(), resp); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(consumer.got) != 1 {
		t.Fatalf("got %d messages, want 1", len(consumer.got))
	}
	if consumer.got[0].contextID != "ctx1" || consumer.got[0].json != `{"x":1}` {
		t.Fatalf("unexpected message: %+v", consumer.got[0])
	}
}

func TestMimeResponseSinkEmptyJSONPartDropped(t *testing.T) {
	resp := buildMultipartResponse(t, func(w *multipart.Writer) {
		part, _ := w.CreatePart(map[string][]string{"Content-Type": {"application/json"}})
		_ = part
	})

	consumer := &recordingConsumer{}
	sink := NewMimeResponseSink("ctx1", consumer, NewMemoryAttachmentManager())
	if _, err := sink.Process(context.Background(), resp); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(consumer.got) != 0 {
		t.Fatalf("got %d messages, want 0 for an empty re-drive", len(consumer.got))
	}
}

func TestMimeResponseSinkAttachmentWrittenOnce(t *testing.T) {
	makeResp := func() *http.Response {
		return buildMultipartResponse(t, func(w *multipart.Writer) {
			part, _ := w.CreatePart(map[string][]string{
				"Content-Type": {"application/octet-stream"},
				"Content-ID":   {"<id1>"},
			})
			part.Write([]byte("ABCD"))
		})
	}

	mgr := NewMemoryAttachmentManager()
	consumer := &recordingConsumer{}

	sink1 := NewMimeResponseSink("ctx", consumer, mgr)
	if _, err := sink1.Process(context.Background(), makeResp()); err != nil {
		t.Fatalf("first Process: %v", err)
	}
	sink2 := NewMimeResponseSink("ctx", consumer, mgr)
	if _, err := sink2.Process(context.Background(), makeResp()); err != nil {
		t.Fatalf("second Process (redelivery): %v", err)
	}

	got, ok := mgr.Bytes("ctx:id1")
	if !ok {
		t.Fatal("expected writer to have been created for ctx:id1")
	}
	if string(got) != "ABCD" {
		t.Fatalf("got bytes %q, want %q (writer must not re-open on redelivery)", got, "ABCD")
	}
}

func TestSanitizeContentID(t *testing.T) {
	cases := map[string]string{
		"<id1>":       "id1",
		"id1":         "id1",
		"<a%20b>":     "a%20b", // percent-escapes are not decoded (Open Question 1)
		"<nested<a>>": "nested<a>",
	}
	for in, want := range cases {
		if got := sanitizeContentID(in); got != want {
			t.Errorf("sanitizeContentID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMimeResponseSinkNonMimeErrorBody(t *testing.T) {
	body := strings.Repeat("x", maxErrorBodyBytes+100)
	resp := &http.Response{
		StatusCode: 403,
		Header:     http.Header{"Content-Type": {"text/plain"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
	sink := NewMimeResponseSink("ctx", &recordingConsumer{}, NewMemoryAttachmentManager())
	got, err := sink.Process(context.Background(), resp)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(got) != maxErrorBodyBytes {
		t.Fatalf("error body len = %d, want %d", len(got), maxErrorBodyBytes)
	}
}
