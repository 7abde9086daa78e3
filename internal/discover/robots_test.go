package discover

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/marketwatch/trendwatch/internal/fetch"
)

func newTestFetchClient(t *testing.T) *fetch.Client {
	t.Helper()
	return fetch.New(fetch.Config{
		Timeout:        2 * time.Second,
		UserAgent:      "trendwatch-test/1.0",
		MaxRetries:     0,
		BackoffInitial: time.Millisecond,
		BackoffMax:     time.Millisecond,
	}, zap.NewNop())
}

func newHTTPGate(t *testing.T, respect bool) *robotsGate {
	t.Helper()
	policy := NewRobotsPolicy(respect, newTestFetchClient(t), "trendwatch-test/1.0", zap.NewNop())
	gate, ok := policy.(*robotsGate)
	require.True(t, ok)
	gate.scheme = "http"
	return gate
}

func serverHost(srv *httptest.Server) string {
	return strings.TrimPrefix(srv.URL, "http://")
}

func TestRobotsPolicyDisabled(t *testing.T) {
	t.Parallel()

	policy := NewRobotsPolicy(false, nil, "trendwatch-test/1.0", zap.NewNop())
	require.True(t, policy.Allowed(context.Background(), "anything.example"))
}

func TestRobotsGateBlocksRootDisallow(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		require.Equal(t, "/robots.txt", r.URL.Path)
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /\n"))
	}))
	defer srv.Close()

	gate := newHTTPGate(t, true)
	host := serverHost(srv)

	require.False(t, gate.Allowed(context.Background(), host))
	// The verdict is cached per host.
	require.False(t, gate.Allowed(context.Background(), host))
	require.Equal(t, int64(1), hits.Load())
}

func TestRobotsGateAllowsScopedDisallow(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /checkout\n"))
	}))
	defer srv.Close()

	gate := newHTTPGate(t, true)
	require.True(t, gate.Allowed(context.Background(), serverHost(srv)))
}

func TestRobotsGateMissingFileAllows(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	gate := newHTTPGate(t, true)
	require.True(t, gate.Allowed(context.Background(), serverHost(srv)))
}

func TestRobotsGateUnreachableHostAllows(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	host := serverHost(srv)
	srv.Close()

	gate := newHTTPGate(t, true)
	require.True(t, gate.Allowed(context.Background(), host))
}
