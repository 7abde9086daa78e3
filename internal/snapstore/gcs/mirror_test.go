package gcs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

// newTestMirror creates a Mirror pointed at a fake GCS JSON API server.
func newTestMirror(t *testing.T, prefix string, handler http.Handler) (*Mirror, func()) {
	t.Helper()

	server := httptest.NewServer(handler)

	client, err := storage.NewClient(context.Background(),
		option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)

	mirror, err := New(client, Config{Bucket: "test-bucket", Prefix: prefix})
	require.NoError(t, err)
	return mirror, server.Close
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)

	client := &storage.Client{}
	_, err = New(client, Config{})
	require.Error(t, err)
}

func TestWriteArtifactUploadsJSON(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/upload/storage/v1/b/test-bucket/o")
		assert.Equal(t, "runs/rankings-latest.json", r.URL.Query().Get("name"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), `"run_id":"r-1"`)

		fmt.Fprintln(w, `{ "name": "runs/rankings-latest.json" }`)
	})

	mirror, cleanup := newTestMirror(t, "runs/", handler)
	defer cleanup()

	uri, err := mirror.WriteArtifact(context.Background(), "rankings-latest.json", map[string]string{"run_id": "r-1"})
	require.NoError(t, err)
	assert.Equal(t, "gs://test-bucket/runs/rankings-latest.json", uri)
}

func TestWriteArtifactServerError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	mirror, cleanup := newTestMirror(t, "", handler)
	defer cleanup()

	_, err := mirror.WriteArtifact(context.Background(), "rankings-latest.json", map[string]string{})
	assert.Error(t, err)
}

func TestWriteArtifactRejectsEmptyName(t *testing.T) {
	t.Parallel()

	mirror := &Mirror{client: &storage.Client{}, bucket: "b"}
	_, err := mirror.WriteArtifact(context.Background(), "  ", nil)
	require.Error(t, err)
}
