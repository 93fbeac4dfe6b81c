package webclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDoWithRetryRecoversFromServerErrors(t *testing.T) {
	calls := 0
	status, body, err := DoWithRetry(context.Background(), 3, time.Millisecond, func() (int, []byte, error) {
		calls++
		if calls < 3 {
			return http.StatusBadGateway, nil, errors.New("bad gateway")
		}
		return http.StatusOK, []byte("ok"), nil
	})
	if err != nil || status != http.StatusOK || string(body) != "ok" {
		t.Fatalf("DoWithRetry = %d %q %v", status, body, err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestDoWithRetryStopsOnClientError(t *testing.T) {
	calls := 0
	status, _, err := DoWithRetry(context.Background(), 5, time.Millisecond, func() (int, []byte, error) {
		calls++
		return http.StatusUnauthorized, nil, errors.New("unauthorized")
	})
	if err == nil || status != http.StatusUnauthorized || calls != 1 {
		t.Fatalf("status=%d err=%v calls=%d", status, err, calls)
	}
}

func TestDoWithRetryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := DoWithRetry(ctx, 3, time.Hour, func() (int, []byte, error) {
		return http.StatusTooManyRequests, nil, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestPostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer k" || r.Header.Get("Content-Type") != "application/json" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		b, _ := io.ReadAll(r.Body)
		_, _ = w.Write(b)
	}))
	defer srv.Close()

	body, err := PostJSON(context.Background(), NewDefault(time.Second), srv.URL, map[string]string{"Authorization": "Bearer k"}, []byte(`{"a":1}`), 1)
	if err != nil || string(body) != `{"a":1}` {
		t.Fatalf("PostJSON = %q, %v", body, err)
	}
	if _, err := PostJSON(context.Background(), NewDefault(time.Second), srv.URL, nil, []byte(`{}`), 1); err == nil {
		t.Fatal("expected error for 400 response")
	}
}
