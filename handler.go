package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/krinkuto11/acexy-multiplexer/lib/acexy"
)

const (
	startedTimeout    = 10 * time.Second
	firstChunkTimeout = 5 * time.Second
)

// Server holds the process-wide collaborators the HTTP handlers need.
type Server struct {
	registry *acexy.Registry
	cfg      Config
}

// validateParams enforces the getstream contract: exactly one of id or
// infohash, and pid absent (reserved for the proxy's own per-session
// token).
func validateParams(r *http.Request) (acexy.AceID, error) {
	q := r.URL.Query()
	if q.Get("pid") != "" {
		return acexy.AceID{}, errors.New(`"pid" is reserved and may not be supplied`)
	}
	id, infohash := q.Get("id"), q.Get("infohash")
	if id != "" && infohash != "" {
		return acexy.AceID{}, errors.New("only one of `id` or `infohash` may be supplied")
	}
	if id == "" && infohash == "" {
		return acexy.AceID{}, errors.New("one of `id` or `infohash` is required")
	}
	return acexy.NewAceID(id, infohash)
}

// extraParams returns every query parameter except the ones the
// multiplexer consumes itself, so the rest can be forwarded verbatim to
// the middleware's *open* call.
func extraParams(r *http.Request) url.Values {
	q := r.URL.Query()
	for _, reserved := range []string{"id", "infohash", "pid"} {
		q.Del(reserved)
	}
	return q
}

// HandleStream is the Request Handler (spec §4.F): validate, commit
// headers, attach as a subscriber, wait for readiness, then wait for
// the session to complete, and clean up on every exit path. Every
// request waits for readiness with the same bounds, whether it started
// the producer or joined an existing session; a request that joins a
// session which has not yet delivered its first chunk can time out
// there as well.
func (s *Server) HandleStream(w http.ResponseWriter, r *http.Request) {
	key, err := validateParams(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	contentType := "video/MP2T"
	if s.cfg.M3U8 {
		contentType = "application/x-mpegURL"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}

	sub := acexy.NewSubscriber(w, flusher, r.RemoteAddr)

	st, err := s.registry.Attach(r.Context(), key, extraParams(r), sub)
	if err != nil {
		slog.Warn("attach failed", "key", key.String(), "error", err)
		fmt.Fprintf(w, "error: %s", err)
		return
	}

	defer func() {
		s.registry.Detach(st, sub)
		sub.Close()
	}()

	// Both latches are idempotent, so waiting on them here is correct
	// whether this request started the producer or joined an already
	// flowing session — a late joiner's wait returns immediately.
	if err := st.WaitReady(startedTimeout, firstChunkTimeout); err != nil {
		slog.Warn("readiness timeout", "key", key.String(), "error", err)
		return
	}

	<-st.Done()
}

// HandleStatus serves /ace/status (spec §4.F): with no key, the
// registry size; with a key, that session's subscriber count and stat
// URL, or 404 if no session is registered for it.
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id, infohash := q.Get("id"), q.Get("infohash")
	if id == "" && infohash == "" {
		writeJSON(w, http.StatusOK, map[string]any{"streams": s.registry.Len()})
		return
	}

	key, err := acexy.NewAceID(id, infohash)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	clients, statURL, ok := s.registry.Status(key)
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"clients":   clients,
		"stream_id": key.String(),
		"stat_url":  statURL,
	})
}

func writeJSON(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
