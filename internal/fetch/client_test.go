package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/marketwatch/trendwatch/internal/metrics"
)

func newTestClient(retries int) *Client {
	return New(Config{
		Timeout:        2 * time.Second,
		UserAgent:      "trendwatch-test/0.1",
		MaxRetries:     retries,
		BackoffInitial: time.Millisecond,
		BackoffMax:     5 * time.Millisecond,
	}, zap.NewNop())
}

func TestFetchSuccess(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "trendwatch-test/0.1", r.UserAgent())
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	resp, err := newTestClient(0).Fetch(context.Background(), srv.URL, Options{})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"ok":true}`, string(resp.Body))
}

func TestFetchRetriesServerErrors(t *testing.T) {
	t.Parallel()
	metrics.Init()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resp, err := newTestClient(3).Fetch(context.Background(), srv.URL, Options{})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, int32(3), calls.Load())
}

func TestFetchAuthFailureIsPermanent(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := newTestClient(3).Fetch(context.Background(), srv.URL, Options{})
	require.Error(t, err)
	require.True(t, IsPermanent(err))
	require.Equal(t, http.StatusForbidden, StatusCode(err))
	require.Equal(t, int32(1), calls.Load(), "permanent failures must not consume retry budget")
}

func TestFetchExhaustsRetryBudget(t *testing.T) {
	t.Parallel()
	metrics.Init()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient(2).Fetch(context.Background(), srv.URL, Options{})
	require.Error(t, err)
	require.Equal(t, http.StatusInternalServerError, StatusCode(err))
	require.Equal(t, int32(3), calls.Load())
}

func TestFetchSendsBearerToken(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer sekret", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, err := newTestClient(0).Fetch(context.Background(), srv.URL, Options{BearerToken: "sekret"})
	require.NoError(t, err)
}

func TestFetchJSONSetsAcceptHeader(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "application/json", r.Header.Get("Accept"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, err := newTestClient(0).FetchJSON(context.Background(), srv.URL, Options{})
	require.NoError(t, err)
}

func TestFetchHonorsContextCancellation(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(5).Fetch(ctx, srv.URL, Options{})
	require.Error(t, err)
}
