package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// newRouter wires the HTTP surface (spec §6): the fan-out endpoint is
// always reachable at /ace/getstream (+ trailing-slash alias); in M3U8
// mode /ace/manifest.m3u8 (+ trailing-slash alias) is additionally
// routed to the same handler, not a replacement for it.
func newRouter(s *Server) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/ace/getstream", s.HandleStream)
	r.Get("/ace/getstream/", s.HandleStream)
	if s.cfg.M3U8 {
		r.Get("/ace/manifest.m3u8", s.HandleStream)
		r.Get("/ace/manifest.m3u8/", s.HandleStream)
	}
	r.Get("/ace/status", s.HandleStatus)

	return r
}

// httpServer wraps the stdlib server with the graceful Start/Shutdown
// pair this stack's services use.
type httpServer struct {
	srv *http.Server
}

func newHTTPServer(addr string, handler http.Handler) *httpServer {
	return &httpServer{srv: &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}}
}

func (h *httpServer) Start() error {
	slog.Info("http server listening", "addr", h.srv.Addr)
	err := h.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (h *httpServer) Shutdown(ctx context.Context) error {
	return h.srv.Shutdown(ctx)
}
