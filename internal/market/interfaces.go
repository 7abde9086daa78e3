package market

import (
	"context"
	"time"
)

// SnapshotStore persists and retrieves timestamped snapshot artifacts.
// Filenames must sort lexicographically in chronological order.
type SnapshotStore interface {
	WriteSnapshot(ctx context.Context, snap Snapshot) (string, error)
	// ListLatestTwo returns up to the two most recent snapshots for the
	// source, newest last.
	ListLatestTwo(ctx context.Context, sourceID string) ([]Snapshot, error)
	Sources(ctx context.Context) ([]string, error)
	// Prune deletes all but the keep newest snapshots of the source.
	// Retention only; correctness never depends on it.
	Prune(ctx context.Context, sourceID string, keep int) (int, error)
}

// ArtifactWriter writes a named JSON output artifact and returns its URI.
type ArtifactWriter interface {
	WriteArtifact(ctx context.Context, name string, payload any) (string, error)
}

// CatalogSource fetches the current catalog of one storefront.
type CatalogSource interface {
	FetchCatalog(ctx context.Context, source Source) ([]CatalogItem, error)
}

// TrendSource fetches keyword interest signals.
type TrendSource interface {
	FetchTrend(ctx context.Context) ([]SignalRecord, error)
}

// NewsSource fetches product mentions from headlines.
type NewsSource interface {
	FetchNews(ctx context.Context) ([]SignalRecord, error)
}

// Attributor maps free text to a region signal. The second return is false
// when no signal could be derived.
type Attributor interface {
	Attribute(text string) (RegionSignal, bool)
}

// Publisher pushes run-completion events to an external topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Indexer records artifact metadata rows for downstream lookup.
type Indexer interface {
	IndexArtifact(ctx context.Context, row ArtifactRow) error
	Close()
}

// ArtifactRow is the metadata persisted per written artifact.
type ArtifactRow struct {
	ID        string
	RunID     string
	SourceID  string
	Kind      string
	URI       string
	ItemCount int
	WrittenAt time.Time
}

// Clock returns the current time (swappable in tests).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run and row IDs.
type IDGenerator interface {
	NewID() (string, error)
}
