package driveapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeTokenSource struct{ token string }

func (f fakeTokenSource) Token() (string, error) { return f.token, nil }

func newTestClient(srv *httptest.Server) *Client {
	c := NewClient(srv.URL, srv.URL, srv.Client(), fakeTokenSource{token: "tok"}, nil)
	c.sleepFunc = func(ctx context.Context, d time.Duration) error { return nil }

	return c
}

func TestClient_RetriesOnServerError(t *testing.T) {
	var attempts int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte("{}"))
	}))
	defer srv.Close()

	c := newTestClient(srv)

	resp, err := c.Do(context.Background(), http.MethodGet, "/files/x", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.EqualValues(t, 3, atomic.LoadInt32(&attempts))
}

func TestClient_ClassifiesUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid_token"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv)

	_, err := c.Do(context.Background(), http.MethodGet, "/files/x", nil)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestClient_NonRetryableNotFoundFailsImmediately(t *testing.T) {
	var attempts int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(srv)

	_, err := c.Do(context.Background(), http.MethodGet, "/files/x", nil)
	require.ErrorIs(t, err, ErrNotFound)
	require.EqualValues(t, 1, atomic.LoadInt32(&attempts))
}
