package webclient

import (
	"context"
	"net/http"
	"time"
)

// AttemptFunc performs one request and reports its status, body and error.
type AttemptFunc func() (status int, body []byte, err error)

// DoWithRetry retries fn on errors, 429 and 5xx, doubling the delay up to 30s.
// A 4xx other than 429 is returned immediately without an error from here;
// callers decide what a client error means.
func DoWithRetry(ctx context.Context, attempts int, initialDelay time.Duration, fn AttemptFunc) (int, []byte, error) {
	if attempts <= 0 {
		attempts = 1
	}
	if initialDelay <= 0 {
		initialDelay = 2 * time.Second
	}
	delay := initialDelay
	for i := 0; i < attempts; i++ {
		status, body, err := fn()
		if !retryable(status, err) {
			return status, body, nil
		}
		if status >= 400 && status < 500 && status != http.StatusTooManyRequests {
			return status, body, err
		}
		if i == attempts-1 {
			return status, body, err
		}
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return status, body, ctx.Err()
		case <-t.C:
		}
		if delay < 30*time.Second {
			delay *= 2
		}
	}
	return 0, nil, context.DeadlineExceeded
}

func retryable(status int, err error) bool {
	if status == http.StatusTooManyRequests || status >= 500 {
		return true
	}
	return err != nil
}
