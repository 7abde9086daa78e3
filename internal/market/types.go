// Package market defines the core types and interfaces shared across the
// trendwatch pipeline: sources, snapshots, derived sale events, region
// signals, and aggregated demand records.
package market

import (
	"time"
)

// SourceKind identifies what class of external origin a Source is.
type SourceKind string

// Source kinds recognized by the pipeline.
const (
	SourceKindStorefront SourceKind = "storefront"
	SourceKindTrendAPI   SourceKind = "trend_api"
	SourceKindNewsAPI    SourceKind = "news_api"
)

// Source describes one external data origin. Sources are loaded at run start
// and never mutated afterwards.
type Source struct {
	// ID is the host for storefronts and a stable name for API sources.
	ID       string     `json:"id" mapstructure:"id"`
	Kind     SourceKind `json:"kind" mapstructure:"kind"`
	Endpoint string     `json:"endpoint,omitempty" mapstructure:"endpoint"`
	// Credential is an optional bearer/token credential carried to upstream
	// calls. Absence degrades to unauthenticated strategies.
	Credential string `json:"-" mapstructure:"credential"`
}

// CatalogItem is one product variant observed inside a snapshot.
// Identity key within a snapshot is (ProductID, VariantID).
type CatalogItem struct {
	ProductID string  `json:"product_id"`
	VariantID string  `json:"variant_id,omitempty"`
	Title     string  `json:"title"`
	Category  string  `json:"category,omitempty"`
	Price     float64 `json:"price"`
	// Inventory is nil when the source did not expose a quantity.
	Inventory *int `json:"inventory_quantity"`
}

// Key returns the identity key for the item.
func (c CatalogItem) Key() ItemKey {
	return ItemKey{ProductID: c.ProductID, VariantID: c.VariantID}
}

// ItemKey identifies a product variant across snapshots of one source.
type ItemKey struct {
	ProductID string
	VariantID string
}

// Snapshot is an immutable, timestamped capture of a source's catalog.
type Snapshot struct {
	Source    string        `json:"source"`
	FetchedAt time.Time     `json:"fetched_at"`
	Items     []CatalogItem `json:"items"`
}

// SaleEvent is derived by diffing two consecutive snapshots of one source.
// UnitsSold is always strictly positive; zero-delta and unknown-inventory
// items emit no event.
type SaleEvent struct {
	Store         string    `json:"store"`
	ProductID     string    `json:"product_id"`
	VariantID     string    `json:"variant_id,omitempty"`
	Title         string    `json:"title"`
	Category      string    `json:"category,omitempty"`
	Price         float64   `json:"price"`
	InventoryPrev int       `json:"inventory_prev"`
	InventoryNow  int       `json:"inventory_now"`
	UnitsSold     int       `json:"units_sold"`
	Revenue       float64   `json:"estimated_revenue"`
	WindowFrom    time.Time `json:"window_from"`
	WindowTo      time.Time `json:"window_to"`
}

// Confidence grades a region signal by match method.
type Confidence string

// Confidence levels, ordered low < medium < high.
const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// RegionUnknown is the explicit bucket for records with no region signal.
const RegionUnknown = "Unknown"

// RegionZipOnly marks text where a 5-digit postal pattern was found but no
// region alias matched: the country is detected, the region is not.
const RegionZipOnly = "US-unknown"

// RegionSignal is a best-effort mapping from free text to a region code.
type RegionSignal struct {
	Region     string     `json:"region"`
	Confidence Confidence `json:"confidence"`
	SourceText string     `json:"source_text,omitempty"`
}

// RegionMetrics accumulates per-region volume for one aggregated record.
type RegionMetrics struct {
	UnitsSold int     `json:"units_sold,omitempty"`
	Revenue   float64 `json:"revenue,omitempty"`
	Interest  float64 `json:"interest,omitempty"`
}

// SignalRecord is the aggregation input shape every source normalizes into:
// sale events joined with store metadata, trend keywords, and news mentions
// all arrive as SignalRecords.
type SignalRecord struct {
	ProductID string `json:"product_id,omitempty"`
	Title     string `json:"title"`
	Category  string `json:"category,omitempty"`
	Price     float64
	UnitsSold int
	Revenue   float64
	// TrendScore is a source-provided 0-100 interest score; nil when the
	// source reports no trend signal. TrendGrowth is the source's reported
	// growth percentage over its lookback window.
	TrendScore  *float64
	TrendGrowth *float64
	// RegionUnits / RegionInterest attribute volume and interest per region.
	RegionUnits    map[string]int
	RegionRevenue  map[string]float64
	RegionInterest map[string]float64
	Store          string
	SourceName     string
}

// AggregatedRecord is one row per unique identity across all sources,
// rebuilt fully on every aggregation run.
type AggregatedRecord struct {
	Identity    string                   `json:"identity"`
	ProductID   string                   `json:"product_id,omitempty"`
	Title       string                   `json:"title"`
	Category    string                   `json:"category,omitempty"`
	AvgPrice    float64                  `json:"average_price,omitempty"`
	UnitsSold   int                      `json:"units_sold"`
	Revenue     float64                  `json:"estimated_revenue"`
	TrendScore  float64                  `json:"trend_score"`
	TrendGrowth float64                  `json:"trend_growth,omitempty"`
	Regions     map[string]RegionMetrics `json:"regions,omitempty"`
	Sources     []string                 `json:"sources,omitempty"`

	NormalizedTrend   float64 `json:"normalized_trend"`
	NormalizedSales   float64 `json:"normalized_sales"`
	NormalizedRevenue float64 `json:"normalized_revenue"`
	DemandScore       float64 `json:"demand_score"`
	// LocalScore is populated only inside per-region ranked lists.
	LocalScore float64 `json:"local_score,omitempty"`
}

// RankedOutput is the top-level ranked artifact written at the end of a run.
type RankedOutput struct {
	GeneratedAt    time.Time                     `json:"generated_at"`
	RunID          string                        `json:"run_id"`
	RankedGlobal   []AggregatedRecord            `json:"ranked_global"`
	RankedByRegion map[string][]AggregatedRecord `json:"ranked_by_region"`
	// Superset carries the wider candidate list for downstream consumers.
	Superset []AggregatedRecord `json:"superset"`
}

// DiffOutput is the aggregated-diff artifact: all sale events of one run.
type DiffOutput struct {
	GeneratedAt time.Time   `json:"generated_at"`
	Count       int         `json:"count"`
	Items       []SaleEvent `json:"items"`
}

// Diagnostic records a non-fatal per-unit failure encountered during a run.
type Diagnostic struct {
	Stage  string    `json:"stage"`
	Unit   string    `json:"unit"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// RunSummary is written alongside the ranked output.
type RunSummary struct {
	RunID       string       `json:"run_id"`
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  time.Time    `json:"finished_at"`
	Snapshots   int          `json:"snapshots"`
	SaleEvents  int          `json:"sale_events"`
	Records     int          `json:"records"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
}
