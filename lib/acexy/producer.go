package acexy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"
)

const (
	// chunkSize bounds every read from the upstream body. Fixed, not
	// configurable — the buffer-size flag is reserved for compatibility
	// but has no effect here (SPEC_FULL §9).
	chunkSize = 8 * 1024

	// staleThreshold and sweepInterval are fixed per spec §5: a
	// subscriber with no successful write in staleThreshold is evicted;
	// the sweep itself runs at most once per sweepInterval.
	staleThreshold = 30 * time.Second
	sweepInterval  = 15 * time.Second
)

type readOutcome struct {
	n   int
	err error
}

// runProducer is the Producer Loop (spec §4.E). It owns st's entire
// life past creation: connecting upstream, fanning chunks out, sweeping
// stale subscribers, and tearing the session down when it exits for any
// reason. Exactly one runProducer goroutine exists per stream, spawned
// once by Registry.Attach when the stream is first created.
func (r *Registry) runProducer(st *stream) {
	defer r.teardown(st)

	body, err := r.upstream.Connect(context.Background(), st.desc)
	if err != nil {
		slog.Warn("upstream connect failed", "key", st.key.String(), "error", err)
		st.started.Fire()
		return
	}
	// started fires before the first body read, regardless of whether
	// any bytes ever arrive (spec §4.E step 2).
	st.started.Fire()
	defer body.Close()

	buf := make([]byte, chunkSize)
	results := make(chan readOutcome, 1)
	read := func() {
		n, err := body.Read(buf)
		results <- readOutcome{n: n, err: err}
	}
	go read()

	timer := time.NewTimer(r.emptyTimeout)
	defer timer.Stop()

	lastSweep := time.Now()
	firstChunkDelivered := false

	for {
		select {
		case <-timer.C:
			slog.Debug("stream empty timeout, normal end of stream", "key", st.key.String())
			return

		case out := <-results:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(r.emptyTimeout)

			if out.n > 0 {
				chunk := append([]byte(nil), buf[:out.n]...)

				now := time.Now()
				if now.Sub(lastSweep) >= sweepInterval {
					r.sweepStale(st, now)
					lastSweep = now
				}

				if r.fanOut(st, chunk) && !firstChunkDelivered {
					st.firstChunk.Fire()
					firstChunkDelivered = true
				}

				if st.subscriberCount() == 0 {
					slog.Debug("last subscriber left, ending session", "key", st.key.String())
					return
				}
			}

			if out.err != nil {
				if errors.Is(out.err, io.EOF) {
					slog.Debug("upstream end of stream", "key", st.key.String())
				} else {
					slog.Warn("upstream read error", "key", st.key.String(), "error", out.err)
				}
				return
			}

			go read()
		}
	}
}

// fanOut writes chunk to every current subscriber, evicting any that
// fail, and reports whether at least one write succeeded.
func (r *Registry) fanOut(st *stream, chunk []byte) bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	results := st.fanout.WriteAll(chunk)
	anySuccess := false
	for _, res := range results {
		sub, ok := res.Writer.(*Subscriber)
		if !ok {
			continue
		}
		if res.Err != nil {
			st.evictLocked(sub)
			sub.Close()
			slog.Debug("evicted subscriber: write failed", "key", st.key.String(), "remote", sub.RemoteAddr(), "error", res.Err)
			continue
		}
		sub.Touch()
		anySuccess = true
	}
	return anySuccess
}

// sweepStale evicts every subscriber whose last successful write is
// older than staleThreshold, bounding how long a hung downstream socket
// can slow the producer.
func (r *Registry) sweepStale(st *stream, now time.Time) {
	st.mu.Lock()
	defer st.mu.Unlock()

	for _, sub := range st.staleSubscribersLocked(now, staleThreshold) {
		st.evictLocked(sub)
		sub.Close()
		slog.Debug("evicted subscriber: stale", "key", st.key.String(), "remote", sub.RemoteAddr())
	}
}

// teardown always runs when runProducer returns, by any path: it closes
// every remaining subscriber, dispatches *stop*, removes the registry
// entry (iff it still maps to this stream), and fires done last.
func (r *Registry) teardown(st *stream) {
	st.mu.Lock()
	remaining := make([]*Subscriber, 0, len(st.subscribers))
	for sub := range st.subscribers {
		remaining = append(remaining, sub)
	}
	st.subscribers = make(map[*Subscriber]struct{})
	st.mu.Unlock()

	for _, sub := range remaining {
		sub.Close()
	}

	r.upstream.Stop(context.Background(), st.desc)

	r.mu.Lock()
	if cur, ok := r.streams[st.key]; ok && cur == st {
		delete(r.streams, st.key)
	}
	r.mu.Unlock()

	st.done.Fire()
}
