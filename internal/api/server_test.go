package api

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/marketwatch/trendwatch/internal/metrics"
)

type fakeArtifacts struct {
	artifacts map[string][]byte
	err       error
}

func (f *fakeArtifacts) ReadArtifact(_ context.Context, name string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.artifacts[name]
	if !ok {
		return nil, fmt.Errorf("read artifact %s: %w", name, fs.ErrNotExist)
	}
	return data, nil
}

func newTestServer(t *testing.T, artifacts ArtifactReader) *httptest.Server {
	t.Helper()
	metrics.Init()
	srv := httptest.NewServer(NewServer(artifacts, zap.NewNop()).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestHealthAndReadiness(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeArtifacts{})

	status, body := get(t, srv.URL+"/healthz")
	require.Equal(t, http.StatusOK, status)
	require.JSONEq(t, `{"status":"ok"}`, body)

	status, body = get(t, srv.URL+"/readyz")
	require.Equal(t, http.StatusOK, status)
	require.JSONEq(t, `{"status":"ready"}`, body)
}

func TestReadyzWithoutStore(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, nil)
	status, _ := get(t, srv.URL+"/readyz")
	require.Equal(t, http.StatusServiceUnavailable, status)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeArtifacts{})
	status, body := get(t, srv.URL+"/metrics")
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, body, "trendwatch_")
}

func TestLatestRankingsServed(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"run_id":"run-1","ranked_global":[]}`)
	srv := newTestServer(t, &fakeArtifacts{artifacts: map[string][]byte{
		LatestRankingsName: payload,
	}})

	status, body := get(t, srv.URL+"/v1/rankings/latest")
	require.Equal(t, http.StatusOK, status)
	require.JSONEq(t, string(payload), body)
}

func TestLatestRankingsMissing(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeArtifacts{})
	status, body := get(t, srv.URL+"/v1/rankings/latest")
	require.Equal(t, http.StatusNotFound, status)
	require.Contains(t, body, "no rankings")
}

func TestLatestRankingsReadFailure(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeArtifacts{err: fmt.Errorf("disk on fire")})
	status, _ := get(t, srv.URL+"/v1/rankings/latest")
	require.Equal(t, http.StatusInternalServerError, status)
}

func TestRequestIDHeader(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeArtifacts{})
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}
