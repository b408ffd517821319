package pmw

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

type failingWriter struct{ err error }

func (f failingWriter) Write(p []byte) (int, error) { return 0, f.err }

func TestPMultiWriter_WriteAllReportsPerWriterOutcome(t *testing.T) {
	var good1, good2 bytes.Buffer
	bad := failingWriter{err: errors.New("boom")}

	w := New(&good1, &good2, bad)
	results := w.WriteAll([]byte("payload"))

	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	failures := 0
	for _, r := range results {
		if r.Err != nil {
			failures++
		}
	}
	if failures != 1 {
		t.Fatalf("got %d failing results, want exactly 1", failures)
	}
	if good1.String() != "payload" || good2.String() != "payload" {
		t.Fatal("healthy writers did not receive the payload")
	}
}

func TestPMultiWriter_AddRemoveLen(t *testing.T) {
	var buf bytes.Buffer
	w := New()
	if w.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", w.Len())
	}
	w.Add(&buf)
	if w.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", w.Len())
	}
	w.Add(&buf) // duplicate add is a no-op
	if w.Len() != 1 {
		t.Fatalf("Len() = %d after duplicate Add, want 1", w.Len())
	}
	w.Remove(&buf)
	if w.Len() != 0 {
		t.Fatalf("Len() = %d after Remove, want 0", w.Len())
	}
}

func TestPMultiWriter_WriteAggregatesErrors(t *testing.T) {
	bad := failingWriter{err: errors.New("boom")}
	w := New(bad)
	_, err := w.Write([]byte("x"))
	var pmwErr PMultiWriterError
	if !errors.As(err, &pmwErr) {
		t.Fatalf("expected PMultiWriterError, got %v (%T)", err, err)
	}
	if len(pmwErr.Errors) != 1 {
		t.Fatalf("got %d aggregated errors, want 1", len(pmwErr.Errors))
	}
}

var _ io.Writer = (*PMultiWriter)(nil)
