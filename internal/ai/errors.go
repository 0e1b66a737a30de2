package ai

import (
	"errors"
	"fmt"
)

// ErrExhausted marks a request abandoned after exhausting its retry budget
// on connection errors or transient HTTP statuses.
var ErrExhausted = errors.New("retries exhausted")

// ErrEmbeddingUnavailable marks connection-level failures against the
// embedding provider: the service is down or unreachable and the caller may
// retry later.
var ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

// EmbeddingError carries a non-transient provider failure (malformed
// response, rejected input, wrong dimensionality).
type EmbeddingError struct {
	StatusCode int
	Message    string
}

func (e *EmbeddingError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("embedding provider error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("embedding provider error: %s", e.Message)
}
