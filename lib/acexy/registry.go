package acexy

import (
	"context"
	"net/url"
	"sync"
	"time"
)

// Registry is the process-wide mapping from content key to Ongoing
// Stream (spec §4.D / §3). A key is present iff a non-finished stream
// exists for it — the producer removes the entry as the very last step
// before its own done signal fires, so registry membership alone tells
// Attach whether to reuse a session or open a fresh one.
type Registry struct {
	mu           sync.Mutex
	streams      map[AceID]*stream
	upstream     UpstreamClient
	emptyTimeout time.Duration
}

// NewRegistry constructs an empty Registry bound to the given upstream
// collaborator. emptyTimeout bounds upstream socket-read inactivity —
// once it elapses without a byte, the session is torn down as a normal
// end-of-stream.
func NewRegistry(upstream UpstreamClient, emptyTimeout time.Duration) *Registry {
	return &Registry{
		streams:      make(map[AceID]*stream),
		upstream:     upstream,
		emptyTimeout: emptyTimeout,
	}
}

// Attach resolves key to an Ongoing Stream, opening a fresh upstream
// session if none is registered, and adds sub to its subscriber set.
// The *open* call (when needed) is made while holding the registry
// mutex, which is what gives the dedup guarantee: at most one *open*
// per key is ever in flight, and at most one stream is ever registered
// for it.
func (r *Registry) Attach(ctx context.Context, key AceID, extraParams url.Values, sub *Subscriber) (*stream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.streams[key]
	if !ok {
		desc, err := r.upstream.Open(ctx, key, extraParams)
		if err != nil {
			return nil, err
		}
		st = newStream(key, desc)
		r.streams[key] = st
	}

	st.addSubscriber(sub)
	if !ok {
		go r.runProducer(st)
	}
	return st, nil
}

// Detach removes sub from st's subscriber set. Idempotent: safe to call
// even if the producer already evicted the subscriber itself.
func (r *Registry) Detach(st *stream, sub *Subscriber) {
	st.removeSubscriber(sub)
}

// Len reports how many sessions are currently registered.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.streams)
}

// TotalSubscribers sums the subscriber count across every registered
// session, for operational snapshots.
func (r *Registry) TotalSubscribers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, st := range r.streams {
		total += st.subscriberCount()
	}
	return total
}

// Status reports the subscriber count and stat URL for key, or
// ok == false if no session is registered for it.
func (r *Registry) Status(key AceID) (clients int, statURL string, ok bool) {
	r.mu.Lock()
	st, found := r.streams[key]
	r.mu.Unlock()
	if !found {
		return 0, "", false
	}
	return st.subscriberCount(), st.desc.StatURL, true
}
