package acexy

import (
	"sync"
	"time"

	"github.com/krinkuto11/acexy-multiplexer/lib/pmw"
)

// stream is the per-key session: the Ongoing Stream of spec §4.C. The
// Registry owns its lifetime; the stream owns its subscriber set and
// the producer goroutine reads/writes it under mu.
type stream struct {
	key  AceID
	desc *Descriptor

	mu          sync.Mutex
	subscribers map[*Subscriber]struct{}
	fanout      *pmw.PMultiWriter

	started    *latch
	firstChunk *latch
	done       *latch
}

func newStream(key AceID, desc *Descriptor) *stream {
	return &stream{
		key:         key,
		desc:        desc,
		subscribers: make(map[*Subscriber]struct{}),
		fanout:      pmw.New(),
		started:     newLatch(),
		firstChunk:  newLatch(),
		done:        newLatch(),
	}
}

// addSubscriber registers a new subscriber under the session mutex.
func (s *stream) addSubscriber(sub *Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers[sub] = struct{}{}
	s.fanout.Add(sub)
}

// removeSubscriber detaches a subscriber. Idempotent: removing a
// subscriber the producer already evicted is a no-op.
func (s *stream) removeSubscriber(sub *Subscriber) {
	s.mu.Lock()
	_, present := s.subscribers[sub]
	if present {
		delete(s.subscribers, sub)
		s.fanout.Remove(sub)
	}
	s.mu.Unlock()
}

// evictLocked removes sub from the set; caller must hold s.mu.
func (s *stream) evictLocked(sub *Subscriber) {
	delete(s.subscribers, sub)
	s.fanout.Remove(sub)
}

func (s *stream) subscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}

// staleSubscribersLocked returns subscribers whose last successful write is
// older than threshold, as of now. Caller must hold s.mu.
func (s *stream) staleSubscribersLocked(now time.Time, threshold time.Duration) []*Subscriber {
	var stale []*Subscriber
	for sub := range s.subscribers {
		if now.Sub(sub.LastWrite()) > threshold {
			stale = append(stale, sub)
		}
	}
	return stale
}

// WaitReady blocks until the producer has either connected upstream or
// terminated (startedTimeout bound), then until at least one byte has
// reached a subscriber (firstChunkTimeout bound). Both latches are
// idempotent, so a subscriber attaching to an already-flowing session
// returns immediately from both waits.
func (s *stream) WaitReady(startedTimeout, firstChunkTimeout time.Duration) error {
	if !s.started.WaitTimeout(startedTimeout) {
		return ErrReadinessTimeout
	}
	if !s.firstChunk.WaitTimeout(firstChunkTimeout) {
		return ErrReadinessTimeout
	}
	return nil
}

// Done returns a channel closed once the producer has torn the session
// down (subscribers closed, *stop* dispatched, registry entry removed).
func (s *stream) Done() <-chan struct{} {
	return s.done.Done()
}
