package acexy

import (
	"context"
	"errors"
	"io"
	"net/url"
	"sync"
	"sync/atomic"
)

// fakeUpstream is a deterministic in-memory UpstreamClient: Open and
// Connect never touch the network, and a test can script exactly what
// each call returns/yields, including controllable pacing via a
// pacedReader body.
type fakeUpstream struct {
	mu sync.Mutex

	openCalls  int32
	stopCalls  int32
	openErr    error
	connectErr error

	// bodies supplies one reader per Connect call, in order; if
	// exhausted, an empty reader is returned.
	bodies []io.ReadCloser

	stoppedDescs []*Descriptor
}

func (f *fakeUpstream) Open(ctx context.Context, key AceID, extraParams url.Values) (*Descriptor, error) {
	atomic.AddInt32(&f.openCalls, 1)
	if f.openErr != nil {
		return nil, f.openErr
	}
	return &Descriptor{
		PlaybackURL: "fake://playback/" + key.String(),
		CommandURL:  "fake://command/" + key.String(),
		StatURL:     "fake://stat/" + key.String(),
		Key:         key,
	}, nil
}

func (f *fakeUpstream) Stop(ctx context.Context, desc *Descriptor) {
	atomic.AddInt32(&f.stopCalls, 1)
	f.mu.Lock()
	f.stoppedDescs = append(f.stoppedDescs, desc)
	f.mu.Unlock()
}

func (f *fakeUpstream) Connect(ctx context.Context, desc *Descriptor) (io.ReadCloser, error) {
	if f.connectErr != nil {
		return nil, f.connectErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.bodies) == 0 {
		return io.NopCloser(errReader{}), nil
	}
	body := f.bodies[0]
	f.bodies = f.bodies[1:]
	return body, nil
}

func (f *fakeUpstream) OpenCalls() int { return int(atomic.LoadInt32(&f.openCalls)) }
func (f *fakeUpstream) StopCalls() int { return int(atomic.LoadInt32(&f.stopCalls)) }

// errReader immediately reports EOF.
type errReader struct{}

func (errReader) Read(p []byte) (int, error) { return 0, io.EOF }

// pacedReader yields the given chunks one per Read, back to back, then
// blocks until release (or Close) is called, after which it reports
// io.EOF.
type pacedReader struct {
	mu      sync.Mutex
	chunks  [][]byte
	idx     int
	blocked chan struct{}
	closed  bool
}

func newPacedReader(chunks ...[]byte) *pacedReader {
	return &pacedReader{chunks: chunks, blocked: make(chan struct{})}
}

func (p *pacedReader) Read(buf []byte) (int, error) {
	p.mu.Lock()
	if p.idx >= len(p.chunks) {
		p.mu.Unlock()
		<-p.blocked
		return 0, io.EOF
	}
	chunk := p.chunks[p.idx]
	p.idx++
	p.mu.Unlock()
	n := copy(buf, chunk)
	return n, nil
}

func (p *pacedReader) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.blocked)
	}
	return nil
}

// release unblocks a Read call parked waiting for more input, causing
// the next Read to return io.EOF.
func (p *pacedReader) release() {
	p.Close()
}

var errFakeOpen = errors.New("fake upstream open failed")
