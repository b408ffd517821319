package acexy

import (
	"io"
	"net/http"
	"sync"
	"time"
)

// Subscriber represents one downstream HTTP response after its headers
// have been committed. It accepts byte chunks written by the Producer
// Loop and tracks the monotonic time of its most recent successful
// write, which is what the stale-subscriber sweep checks against.
//
// Subscriber implements io.Writer so it can be registered directly with
// a pmw.PMultiWriter.
type Subscriber struct {
	out     io.Writer
	flusher http.Flusher
	remote  string

	mu        sync.Mutex
	lastWrite time.Time
	closed    bool
}

// NewSubscriber wraps a prepared downstream response. remote appears in
// the producer's eviction log lines next to the session key, for
// observability only (the session pid is not logged) — it has no
// bearing on dedup or fan-out.
func NewSubscriber(out io.Writer, flusher http.Flusher, remote string) *Subscriber {
	return &Subscriber{
		out:       out,
		flusher:   flusher,
		remote:    remote,
		lastWrite: time.Now(),
	}
}

// Write forwards a chunk to the underlying response and flushes it
// immediately, since downstream clients are reading the body live.
// A write error means the subscriber is broken; the caller (the
// Producer Loop's fan-out) evicts it rather than retrying.
func (s *Subscriber) Write(p []byte) (int, error) {
	n, err := s.out.Write(p)
	if err != nil {
		return n, err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return n, nil
}

// Touch records that a write just succeeded. Called by the fan-out
// loop, never concurrently with itself, so it only needs to guard
// against a racing LastWrite read from the stale sweep.
func (s *Subscriber) Touch() {
	s.mu.Lock()
	s.lastWrite = time.Now()
	s.mu.Unlock()
}

// LastWrite returns the monotonic time of the last successful write.
func (s *Subscriber) LastWrite() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastWrite
}

// RemoteAddr returns the downstream client address this subscriber was
// created for, for log correlation.
func (s *Subscriber) RemoteAddr() string {
	return s.remote
}

// Close is idempotent: it may be called by the Producer Loop on
// eviction/teardown and by the Request Handler on its own exit path
// without coordination between the two.
func (s *Subscriber) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if c, ok := s.out.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
