// Package gcs provides an artifact mirror backed by Google Cloud Storage.
// Mirroring is best-effort: the filesystem store stays authoritative and a
// failed upload never fails the run.
package gcs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/marketwatch/trendwatch/internal/market"
)

// Config captures the parameters required to mirror artifacts to GCS.
type Config struct {
	Bucket string
	// Prefix is prepended to every object name, typically the environment
	// or deployment name.
	Prefix string
}

// Mirror uploads output artifacts to a configured GCS bucket.
type Mirror struct {
	client *storage.Client
	bucket string
	prefix string
}

var _ market.ArtifactWriter = (*Mirror)(nil)

// New creates a GCS-backed artifact mirror.
func New(client *storage.Client, cfg Config) (*Mirror, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &Mirror{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// WriteArtifact uploads the payload as a JSON object and returns its
// gs:// URI.
func (m *Mirror) WriteArtifact(ctx context.Context, name string, payload any) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("artifact name is required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal artifact %s: %w", name, err)
	}

	object := name
	if m.prefix != "" {
		object = path.Join(m.prefix, name)
	}

	writer := m.client.Bucket(m.bucket).Object(object).NewWriter(ctx)
	writer.ContentType = "application/json"
	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", m.bucket, object), nil
}
