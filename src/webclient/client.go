package webclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// NewDefault returns an HTTP client with the given timeout, 60s when zero.
func NewDefault(timeout time.Duration) *http.Client {
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// PostJSON sends body to url with the given headers and retries transient
// failures through DoWithRetry. Non-2xx responses are returned as errors with
// the response body attached.
func PostJSON(ctx context.Context, hc *http.Client, url string, headers map[string]string, body []byte, attempts int) ([]byte, error) {
	status, resp, err := DoWithRetry(ctx, attempts, 2*time.Second, func() (int, []byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return 0, nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		res, err := hc.Do(req)
		if err != nil {
			return 0, nil, err
		}
		defer res.Body.Close()
		b, err := io.ReadAll(res.Body)
		if err != nil {
			return res.StatusCode, nil, err
		}
		if res.StatusCode < 200 || res.StatusCode > 299 {
			return res.StatusCode, b, fmt.Errorf("status %d: %s", res.StatusCode, truncate(b, 300))
		}
		return res.StatusCode, b, nil
	})
	if err != nil {
		return resp, err
	}
	if status < 200 || status > 299 {
		return resp, fmt.Errorf("status %d: %s", status, truncate(resp, 300))
	}
	return resp, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
