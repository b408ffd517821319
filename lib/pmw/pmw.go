// Package pmw (Parallel MultiWriter) contains an implementation of an "io.Writer" that
// duplicates its writes to all the provided writers, similar to the Unix
// tee(1) command. Writers can be added and removed dynamically after creation. Each write is
// done in a separate goroutine, so the writes are done in parallel.
//
// Beyond the plain tee(1) contract, WriteAll exposes the per-writer
// outcome of a fan-out write instead of one aggregated error, so a
// caller that owns many independent downstream consumers (e.g. a
// stream fan-out that must evict exactly the writer that failed,
// leaving the rest untouched) doesn't have to guess which writer was
// at fault.
package pmw

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// PMultiWriter is an implementation of an "io.Writer" that duplicates its writes
// to all the provided writers, similar to the Unix tee(1) command. Writers can be
// added and removed dynamically after creation. Each write is done in a separate
// goroutine, so the writes are done in parallel.
type PMultiWriter struct {
	sync.RWMutex
	writers []io.Writer
}

// PMultiWriterError is an error that occurs when writing to multiple writers.
type PMultiWriterError struct {
	Errors  []error
	Writers int
}

// Error returns a string representation of the error.
func (e PMultiWriterError) Error() string {
	sb := strings.Builder{}
	sb.WriteString(fmt.Sprintf("errors (%d) when writing to %d writers\n", len(e.Errors), e.Writers))
	for _, err := range e.Errors {
		sb.WriteString(err.Error())
		sb.WriteString("\n")
	}
	return sb.String()
}

// WriteResult pairs a writer with the outcome of one parallel write.
type WriteResult struct {
	Writer io.Writer
	Err    error
}

// New creates a writer that duplicates its writes to all the provided writers,
// similar to the Unix tee(1) command. Writers can be added and removed
// dynamically after creation.
func New(writers ...io.Writer) *PMultiWriter {
	pmw := &PMultiWriter{writers: writers}
	return pmw
}

// WriteAll writes p to every registered writer in parallel and reports
// the outcome of each write individually, instead of aggregating them
// into one error. Writers are snapshotted under the read lock before
// dispatch, so a concurrent Add/Remove never races a write in flight.
func (pmw *PMultiWriter) WriteAll(p []byte) []WriteResult {
	pmw.RLock()
	writers := make([]io.Writer, len(pmw.writers))
	copy(writers, pmw.writers)
	pmw.RUnlock()

	results := make([]WriteResult, len(writers))
	var wg sync.WaitGroup
	wg.Add(len(writers))
	for i, w := range writers {
		go func(i int, w io.Writer) {
			defer wg.Done()
			n, err := w.Write(p)
			if err == nil && n < len(p) {
				err = io.ErrShortWrite
			}
			results[i] = WriteResult{Writer: w, Err: err}
		}(i, w)
	}
	wg.Wait()
	return results
}

// Write writes some bytes to all the writers, aggregating any failures
// into a single PMultiWriterError. Kept for callers that only need the
// plain tee(1) contract; WriteAll is what per-writer eviction uses.
func (pmw *PMultiWriter) Write(p []byte) (n int, err error) {
	results := pmw.WriteAll(p)

	errs := make([]error, 0)
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	if len(errs) > 0 {
		return len(p), PMultiWriterError{Errors: errs, Writers: len(results)}
	}
	return len(p), nil
}

// Add appends a writer to the list of writers this multiwriter writes to.
func (pmw *PMultiWriter) Add(w io.Writer) {
	pmw.Lock()
	defer pmw.Unlock()

	for _, ew := range pmw.writers {
		if ew == w {
			return
		}
	}
	pmw.writers = append(pmw.writers, w)
}

// Remove will remove a previously added writer from the list of writers.
func (pmw *PMultiWriter) Remove(w io.Writer) {
	pmw.Lock()
	defer pmw.Unlock()

	var writers []io.Writer
	for _, ew := range pmw.writers {
		if ew != w {
			writers = append(writers, ew)
		}
	}
	pmw.writers = writers
}

// Len reports how many writers are currently registered.
func (pmw *PMultiWriter) Len() int {
	pmw.RLock()
	defer pmw.RUnlock()
	return len(pmw.writers)
}
