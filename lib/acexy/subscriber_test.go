package acexy

import (
	"bytes"
	"errors"
	"testing"
)

type closingBuffer struct {
	bytes.Buffer
	closeErr error
	closed   int
}

func (c *closingBuffer) Close() error {
	c.closed++
	return c.closeErr
}

func TestSubscriber_WriteThenTouchAdvancesLastWrite(t *testing.T) {
	var buf bytes.Buffer
	sub := NewSubscriber(&buf, nil, "peer")
	before := sub.LastWrite()

	n, err := sub.Write([]byte("chunk"))
	if err != nil || n != len("chunk") {
		t.Fatalf("Write = (%d, %v)", n, err)
	}
	sub.Touch()
	if sub.LastWrite().Before(before) {
		t.Fatal("Touch moved LastWrite backwards")
	}
	if buf.String() != "chunk" {
		t.Fatalf("underlying writer got %q", buf.String())
	}
}

func TestSubscriber_CloseIsIdempotent(t *testing.T) {
	cb := &closingBuffer{}
	sub := NewSubscriber(cb, nil, "peer")

	if err := sub.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := sub.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if cb.closed != 1 {
		t.Fatalf("underlying Close called %d times, want 1", cb.closed)
	}
}

func TestSubscriber_WritePropagatesUnderlyingError(t *testing.T) {
	fail := failingSink{err: errors.New("broken pipe")}
	sub := NewSubscriber(fail, nil, "peer")
	_, err := sub.Write([]byte("x"))
	if err == nil {
		t.Fatal("expected Write to propagate the underlying error")
	}
}

type failingSink struct{ err error }

func (f failingSink) Write(p []byte) (int, error) { return 0, f.err }
