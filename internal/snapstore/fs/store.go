// Package fs implements a local filesystem snapshot store. Snapshot files
// are named after their capture time so that lexicographic order is
// chronological order.
package fs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/marketwatch/trendwatch/internal/market"
)

const (
	snapshotsDir = "snapshots"
	artifactsDir = "artifacts"

	// timestampLayout zero-pads every component so filenames sort
	// chronologically.
	timestampLayout = "20060102T150405.000000000Z"
)

var unsafePathChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// Config captures the parameters for the filesystem snapshot store.
type Config struct {
	// BaseDir is the root directory where snapshots and artifacts live.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// Store persists snapshots and output artifacts under a base directory.
type Store struct {
	baseDir string
	logger  *zap.Logger
}

var (
	_ market.SnapshotStore  = (*Store)(nil)
	_ market.ArtifactWriter = (*Store)(nil)
)

// New creates a filesystem-backed store rooted at cfg.BaseDir.
func New(cfg Config, logger *zap.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat base directory: %w", err)
		}
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create base directory: %w", mkErr)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	// Check for write permissions up front so a read-only volume fails at
	// startup instead of mid-run.
	testFile := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return nil, fmt.Errorf("clean up writability probe: %w", err)
	}

	return &Store{baseDir: cfg.BaseDir, logger: logger}, nil
}

// WriteSnapshot persists one catalog snapshot and returns its file:// URI.
// The write goes through a temp file and a rename so readers never observe
// a partial snapshot.
func (s *Store) WriteSnapshot(ctx context.Context, snap market.Snapshot) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("context canceled: %w", err)
	}
	if snap.Source == "" {
		return "", fmt.Errorf("snapshot source is required")
	}

	dir, err := s.sourceDir(snap.Source)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create snapshot dir %s: %w", dir, err)
	}

	name := snap.FetchedAt.UTC().Format(timestampLayout) + ".json"
	target := filepath.Join(dir, name)

	payload, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := writeAtomic(target, payload); err != nil {
		return "", err
	}
	return "file://" + target, nil
}

// ListLatestTwo returns up to the two most recent snapshots for the source,
// newest last. A snapshot file that fails to parse is skipped with a warning
// so one corrupted write cannot wedge the source forever.
func (s *Store) ListLatestTwo(ctx context.Context, sourceID string) ([]market.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context canceled: %w", err)
	}
	dir, err := s.sourceDir(sourceID)
	if err != nil {
		return nil, err
	}

	names, err := snapshotNames(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list snapshots for %s: %w", sourceID, err)
	}

	out := make([]market.Snapshot, 0, 2)
	for i := len(names) - 1; i >= 0 && len(out) < 2; i-- {
		snap, readErr := readSnapshot(filepath.Join(dir, names[i]))
		if readErr != nil {
			s.logger.Warn("skipping unreadable snapshot",
				zap.String("source", sourceID),
				zap.String("file", names[i]),
				zap.Error(readErr),
			)
			continue
		}
		out = append(out, snap)
	}

	// Collected newest first; callers expect newest last.
	sort.Slice(out, func(i, j int) bool { return out[i].FetchedAt.Before(out[j].FetchedAt) })
	return out, nil
}

// Sources lists the source IDs with at least one stored snapshot.
func (s *Store) Sources(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context canceled: %w", err)
	}
	entries, err := os.ReadDir(filepath.Join(s.baseDir, snapshotsDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list snapshot sources: %w", err)
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// Prune removes all but the keep newest snapshots of the source and returns
// how many files were deleted.
func (s *Store) Prune(ctx context.Context, sourceID string, keep int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("context canceled: %w", err)
	}
	if keep < 1 {
		return 0, fmt.Errorf("keep must be >= 1, got %d", keep)
	}
	dir, err := s.sourceDir(sourceID)
	if err != nil {
		return 0, err
	}
	names, err := snapshotNames(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("list snapshots for %s: %w", sourceID, err)
	}
	if len(names) <= keep {
		return 0, nil
	}

	deleted := 0
	for _, name := range names[:len(names)-keep] {
		if rmErr := os.Remove(filepath.Join(dir, name)); rmErr != nil {
			s.logger.Warn("prune failed for snapshot",
				zap.String("source", sourceID),
				zap.String("file", name),
				zap.Error(rmErr),
			)
			continue
		}
		deleted++
	}
	return deleted, nil
}

// WriteArtifact writes a named JSON output artifact and returns its
// file:// URI.
func (s *Store) WriteArtifact(ctx context.Context, name string, payload any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("context canceled: %w", err)
	}
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("artifact name is required")
	}

	target, err := s.safeJoin(artifactsDir, sanitizeName(name))
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal artifact %s: %w", name, err)
	}
	if err := writeAtomic(target, data); err != nil {
		return "", err
	}
	return "file://" + target, nil
}

// ReadArtifact returns the raw bytes of a previously written artifact.
func (s *Store) ReadArtifact(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context canceled: %w", err)
	}
	target, err := s.safeJoin(artifactsDir, sanitizeName(name))
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(target)
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", name, err)
	}
	return data, nil
}

func (s *Store) sourceDir(sourceID string) (string, error) {
	key := sanitizeName(sourceID)
	if key == "" {
		return "", fmt.Errorf("source id %q sanitizes to empty", sourceID)
	}
	return s.safeJoin(snapshotsDir, key)
}

// safeJoin joins parts under the base directory and rejects any path that
// escapes it.
func (s *Store) safeJoin(parts ...string) (string, error) {
	full := filepath.Join(append([]string{s.baseDir}, parts...)...)
	cleanBase := filepath.Clean(s.baseDir)
	cleanFull := filepath.Clean(full)
	if !strings.HasPrefix(cleanFull, cleanBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	return cleanFull, nil
}

func sanitizeName(name string) string {
	name = unsafePathChars.ReplaceAllString(name, "_")
	return strings.Trim(name, "._")
}

func writeAtomic(target string, data []byte) error {
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("rename %s: %w", target, err)
	}
	return nil
}

func snapshotNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func readSnapshot(path string) (market.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return market.Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}
	var snap market.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return market.Snapshot{}, fmt.Errorf("parse snapshot: %w", err)
	}
	return snap, nil
}
