package ai

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"net/http"
	"time"
)

const maxRetries = 3

// retryableStatus reports whether an HTTP status indicates a transient
// provider condition. Validation and auth failures (4xx other than 429) are
// never retried.
func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// doWithRetry executes an HTTP request with exponential backoff and jitter
// for transient failures: connection errors and 429/503/504 responses.
// buildReq is called per attempt because a request body reader cannot be
// replayed.
func doWithRetry(ctx context.Context, client *http.Client, buildReq func() (*http.Request, error)) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			base := time.Second << (attempt - 1)
			backoff := base + time.Duration(rand.Int64N(int64(base/2+1)))
			log.Printf("ai: transient failure, retrying in %s (attempt %d/%d): %v", backoff, attempt, maxRetries, lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := buildReq()
		if err != nil {
			return nil, fmt.Errorf("build request failed: %w", err)
		}

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if retryableStatus(resp.StatusCode) {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			resp.Body.Close()
			lastErr = fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
			continue
		}

		return resp, nil
	}

	return nil, fmt.Errorf("%w: %v", ErrExhausted, lastErr)
}
