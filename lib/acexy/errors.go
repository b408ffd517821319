package acexy

import "errors"

// ErrReadinessTimeout is returned by stream.WaitReady when the producer
// hasn't started, or hasn't delivered a first byte, within the
// configured bound.
var ErrReadinessTimeout = errors.New("timed out waiting for stream readiness")
