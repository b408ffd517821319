package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/krinkuto11/acexy-multiplexer/lib/acexy"
)

// inlineUpstream answers Open/Connect synchronously with a short body,
// enough to exercise the handler's readiness wait and response body
// without a real AceStream middleware.
type inlineUpstream struct{ body string }

func (u inlineUpstream) Open(ctx context.Context, key acexy.AceID, extraParams url.Values) (*acexy.Descriptor, error) {
	return &acexy.Descriptor{PlaybackURL: "fake", CommandURL: "fake", StatURL: "fake-stat", Key: key}, nil
}

func (u inlineUpstream) Stop(ctx context.Context, desc *acexy.Descriptor) {}

func (u inlineUpstream) Connect(ctx context.Context, desc *acexy.Descriptor) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(u.body)), nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	registry := acexy.NewRegistry(inlineUpstream{body: "chunk-of-video"}, time.Second)
	return &Server{registry: registry, cfg: Config{}}
}

func TestHandleStream_MissingKeyIsBadRequest(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/ace/getstream", nil)
	rec := httptest.NewRecorder()
	s.HandleStream(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleStream_BothIDAndInfohashIsBadRequest(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/ace/getstream?id=ABC&infohash=XYZ", nil)
	rec := httptest.NewRecorder()
	s.HandleStream(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleStream_ReservedPidIsBadRequest(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/ace/getstream?id=ABC&pid=foo", nil)
	rec := httptest.NewRecorder()
	s.HandleStream(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleStream_HappyPathStreamsBody(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/ace/getstream?id=ABC", nil)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		s.HandleStream(rec, req)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("HandleStream never returned")
	}

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "chunk-of-video" {
		t.Fatalf("body = %q, want %q", rec.Body.String(), "chunk-of-video")
	}
}

func TestHandleStatus_NoKeyReportsRegistrySize(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/ace/status", nil)
	rec := httptest.NewRecorder()
	s.HandleStatus(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := body["streams"]; !ok {
		t.Fatal(`response missing "streams" field`)
	}
}

func TestHandleStatus_UnknownKeyIs404(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/ace/status?id=NOPE", nil)
	rec := httptest.NewRecorder()
	s.HandleStatus(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
