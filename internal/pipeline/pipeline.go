// Package pipeline orchestrates one batch run: discover storefronts,
// snapshot catalogs, diff against prior snapshots, attribute regions,
// merge trend and news signals, rank, and persist the outputs. Failures
// of individual sources become diagnostics on the run summary; only
// configuration problems abort a run.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/marketwatch/trendwatch/internal/config"
	"github.com/marketwatch/trendwatch/internal/discover"
	"github.com/marketwatch/trendwatch/internal/market"
	"github.com/marketwatch/trendwatch/internal/metrics"
	"github.com/marketwatch/trendwatch/internal/rank"
)

// Artifact names with a stable latest pointer alongside per-run copies.
const (
	latestRankingsName = "rankings-latest.json"
	latestDiffsName    = "diffs-latest.json"
	latestSummaryName  = "run-summary-latest.json"
)

// Discoverer runs one discovery crawl. Matches land in the shared registry.
type Discoverer interface {
	Run(ctx context.Context) ([]string, error)
}

// Differ computes sale events from the latest two snapshots of a source.
type Differ interface {
	DiffSource(ctx context.Context, sourceID string) ([]market.SaleEvent, error)
}

// Locator probes a storefront for a home-region signal.
type Locator interface {
	Locate(ctx context.Context, base string) (market.RegionSignal, bool)
}

// ArtifactStore is the read/write artifact surface the pipeline needs.
type ArtifactStore interface {
	market.ArtifactWriter
	ReadArtifact(ctx context.Context, name string) ([]byte, error)
}

// Deps collects the pipeline's collaborators. Trend, news, mirror, indexer,
// and publisher are optional; nil disables the corresponding step.
type Deps struct {
	Registry   *discover.Registry
	Discoverer Discoverer
	Catalog    market.CatalogSource
	Snapshots  market.SnapshotStore
	Artifacts  ArtifactStore
	Mirror     market.ArtifactWriter
	Differ     Differ
	Locator    Locator
	Trend      market.TrendSource
	News       market.NewsSource
	Indexer    market.Indexer
	Publisher  market.Publisher
	Clock      market.Clock
	IDs        market.IDGenerator
	Logger     *zap.Logger
}

// Pipeline executes batch runs.
type Pipeline struct {
	cfg    config.Config
	scorer *rank.Scorer
	deps   Deps
	log    *zap.Logger
}

// New validates the scoring configuration and builds a Pipeline.
func New(cfg config.Config, deps Deps) (*Pipeline, error) {
	scorer, err := rank.NewScorer(rank.Weights{
		Trend:   cfg.Scoring.WeightTrend,
		Sales:   cfg.Scoring.WeightSales,
		Revenue: cfg.Scoring.WeightRevenue,
	}, cfg.Scoring.TopN, cfg.Scoring.SupersetN)
	if err != nil {
		return nil, fmt.Errorf("scoring config: %w", err)
	}
	switch {
	case deps.Catalog == nil:
		return nil, fmt.Errorf("catalog source is required")
	case deps.Snapshots == nil:
		return nil, fmt.Errorf("snapshot store is required")
	case deps.Artifacts == nil:
		return nil, fmt.Errorf("artifact store is required")
	case deps.Differ == nil:
		return nil, fmt.Errorf("differ is required")
	case deps.Clock == nil:
		return nil, fmt.Errorf("clock is required")
	case deps.IDs == nil:
		return nil, fmt.Errorf("id generator is required")
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{cfg: cfg, scorer: scorer, deps: deps, log: log}, nil
}

// run carries the mutable state of one batch run.
type run struct {
	id          string
	startedAt   time.Time
	mu          sync.Mutex
	diagnostics []market.Diagnostic
	snapshots   int
}

func (r *run) diag(at time.Time, stage, unit, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.diagnostics = append(r.diagnostics, market.Diagnostic{
		Stage: stage, Unit: unit, Reason: reason, At: at,
	})
}

// Run executes one full batch run and returns its summary. The returned
// error is non-nil only when the run could not produce ranked output.
func (p *Pipeline) Run(ctx context.Context) (market.RunSummary, error) {
	runID, err := p.deps.IDs.NewID()
	if err != nil {
		return market.RunSummary{}, fmt.Errorf("generate run id: %w", err)
	}
	st := &run{id: runID, startedAt: p.deps.Clock.Now()}
	p.log.Info("run started", zap.String("run_id", runID))

	hosts := p.stageDiscover(ctx, st)
	sources := p.buildSources(hosts)

	p.stageSnapshot(ctx, st, sources)
	events := p.stageDiff(ctx, st, sources)
	p.persistDiff(ctx, st, events)
	records := p.buildSaleRecords(ctx, events)
	records = append(records, p.stageTrends(ctx, st)...)
	records = append(records, p.stageNews(ctx, st)...)

	ranked, err := p.stageRank(ctx, st, records)
	if err != nil {
		metrics.ObserveRun("failed")
		return p.summary(st, len(events), len(records)), err
	}

	p.stagePrune(ctx, st, sources)

	summary := p.summary(st, len(events), len(records))
	p.persistSummary(ctx, st, summary)
	p.publish(ctx, st, summary, ranked)

	metrics.ObserveRun("ok")
	p.log.Info("run finished",
		zap.String("run_id", runID),
		zap.Int("snapshots", summary.Snapshots),
		zap.Int("sale_events", summary.SaleEvents),
		zap.Int("records", summary.Records),
		zap.Int("diagnostics", len(summary.Diagnostics)),
	)
	return summary, nil
}

// stageDiscover merges previously discovered hosts into the registry, runs
// the crawl, and persists the grown registry. A crawl failure degrades to
// the persisted host set.
func (p *Pipeline) stageDiscover(ctx context.Context, st *run) []string {
	defer p.timeStage("discover")()

	registryName := p.cfg.Discover.RegistryFile
	if data, err := p.deps.Artifacts.ReadArtifact(ctx, registryName); err == nil {
		var persisted []string
		if err := json.Unmarshal(data, &persisted); err != nil {
			st.diag(p.deps.Clock.Now(), "discover", registryName, "corrupt registry file: "+err.Error())
		} else if p.deps.Registry != nil {
			p.deps.Registry.Merge(persisted)
		}
	}

	if p.deps.Discoverer != nil {
		if _, err := p.deps.Discoverer.Run(ctx); err != nil {
			st.diag(p.deps.Clock.Now(), "discover", "crawl", err.Error())
		}
	}
	if p.deps.Registry == nil {
		return nil
	}

	hosts := p.deps.Registry.Hosts()
	if _, err := p.deps.Artifacts.WriteArtifact(ctx, registryName, hosts); err != nil {
		st.diag(p.deps.Clock.Now(), "discover", registryName, "persist registry: "+err.Error())
	}
	return hosts
}

// buildSources joins configured sources with discovered storefront hosts,
// configured entries winning on ID collision so credentials survive.
func (p *Pipeline) buildSources(hosts []string) []market.Source {
	seen := make(map[string]struct{}, len(p.cfg.Sources))
	sources := make([]market.Source, 0, len(p.cfg.Sources)+len(hosts))
	for _, src := range p.cfg.Sources {
		if src.Kind != market.SourceKindStorefront {
			continue
		}
		sources = append(sources, src)
		seen[src.ID] = struct{}{}
	}
	for _, host := range hosts {
		if _, dup := seen[host]; dup {
			continue
		}
		seen[host] = struct{}{}
		sources = append(sources, market.Source{ID: host, Kind: market.SourceKindStorefront})
	}
	return sources
}

// stageSnapshot fetches every storefront catalog through a bounded worker
// pool and persists one snapshot per source.
func (p *Pipeline) stageSnapshot(ctx context.Context, st *run, sources []market.Source) {
	defer p.timeStage("snapshot")()

	concurrency := p.cfg.Catalog.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	queue := make(chan market.Source)
	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for src := range queue {
				p.snapshotOne(ctx, st, src)
			}
		}()
	}
	for _, src := range sources {
		if ctx.Err() != nil {
			break
		}
		queue <- src
	}
	close(queue)
	wg.Wait()
}

func (p *Pipeline) snapshotOne(ctx context.Context, st *run, src market.Source) {
	items, err := p.deps.Catalog.FetchCatalog(ctx, src)
	if err != nil {
		st.diag(p.deps.Clock.Now(), "snapshot", src.ID, err.Error())
		return
	}
	if len(items) == 0 {
		p.log.Debug("empty catalog, skipping snapshot", zap.String("source", src.ID))
		return
	}
	snap := market.Snapshot{Source: src.ID, FetchedAt: p.deps.Clock.Now(), Items: items}
	uri, err := p.deps.Snapshots.WriteSnapshot(ctx, snap)
	if err != nil {
		st.diag(p.deps.Clock.Now(), "snapshot", src.ID, "persist: "+err.Error())
		return
	}
	metrics.ObserveSnapshot(src.ID)
	st.mu.Lock()
	st.snapshots++
	st.mu.Unlock()
	p.indexRow(ctx, st, src.ID, "snapshot", uri, len(items))
}

// stageDiff recomputes sale events from the latest two snapshots of every
// source. Sources with fewer than two snapshots yield nothing.
func (p *Pipeline) stageDiff(ctx context.Context, st *run, sources []market.Source) []market.SaleEvent {
	defer p.timeStage("diff")()

	var events []market.SaleEvent
	for _, src := range sources {
		if ctx.Err() != nil {
			break
		}
		sourceEvents, err := p.deps.Differ.DiffSource(ctx, src.ID)
		if err != nil {
			st.diag(p.deps.Clock.Now(), "diff", src.ID, err.Error())
			continue
		}
		events = append(events, sourceEvents...)
	}
	return events
}

// persistDiff writes the run's sale events as one aggregated-diff artifact,
// per-run plus a latest pointer like the rankings. A failed write degrades to
// a diagnostic since the events stay in memory for the rest of the run.
func (p *Pipeline) persistDiff(ctx context.Context, st *run, events []market.SaleEvent) {
	out := market.DiffOutput{
		GeneratedAt: p.deps.Clock.Now(),
		Count:       len(events),
		Items:       events,
	}
	runName := "diffs-" + st.id + ".json"
	uri, err := p.deps.Artifacts.WriteArtifact(ctx, runName, out)
	if err != nil {
		st.diag(p.deps.Clock.Now(), "diff", runName, "persist: "+err.Error())
		return
	}
	if _, err := p.deps.Artifacts.WriteArtifact(ctx, latestDiffsName, out); err != nil {
		st.diag(p.deps.Clock.Now(), "diff", latestDiffsName, "persist: "+err.Error())
	}
	p.indexRow(ctx, st, "", "diffs", uri, len(events))
	p.mirrorArtifact(ctx, st, runName, out)
}

// buildSaleRecords turns sale events into aggregation inputs, attributing
// each store's volume to its located home region when one can be found.
func (p *Pipeline) buildSaleRecords(ctx context.Context, events []market.SaleEvent) []market.SignalRecord {
	defer p.timeStage("regions")()

	regions := make(map[string]string)
	located := make(map[string]bool)

	records := make([]market.SignalRecord, 0, len(events))
	for _, ev := range events {
		if _, done := located[ev.Store]; !done {
			located[ev.Store] = true
			if p.deps.Locator != nil {
				if sig, ok := p.deps.Locator.Locate(ctx, "https://"+ev.Store); ok {
					regions[ev.Store] = sig.Region
				}
			}
		}

		rec := market.SignalRecord{
			ProductID: ev.ProductID,
			Title:     ev.Title,
			Category:  ev.Category,
			Price:     ev.Price,
			UnitsSold: ev.UnitsSold,
			Revenue:   ev.Revenue,
			Store:     ev.Store,
		}
		if region, ok := regions[ev.Store]; ok {
			rec.RegionUnits = map[string]int{region: ev.UnitsSold}
			rec.RegionRevenue = map[string]float64{region: ev.Revenue}
		}
		records = append(records, rec)
	}
	return records
}

func (p *Pipeline) stageTrends(ctx context.Context, st *run) []market.SignalRecord {
	if p.deps.Trend == nil {
		return nil
	}
	defer p.timeStage("trends")()
	records, err := p.deps.Trend.FetchTrend(ctx)
	if err != nil {
		st.diag(p.deps.Clock.Now(), "trends", "trend_api", err.Error())
		return nil
	}
	return records
}

func (p *Pipeline) stageNews(ctx context.Context, st *run) []market.SignalRecord {
	if p.deps.News == nil {
		return nil
	}
	defer p.timeStage("news")()
	records, err := p.deps.News.FetchNews(ctx)
	if err != nil {
		st.diag(p.deps.Clock.Now(), "news", "news_api", err.Error())
		return nil
	}
	return records
}

// stageRank aggregates, scores, and persists the ranked output. Failing to
// write the ranked artifact fails the run.
func (p *Pipeline) stageRank(ctx context.Context, st *run, records []market.SignalRecord) (market.RankedOutput, error) {
	defer p.timeStage("rank")()

	aggregated := rank.Aggregate(records)
	ranked := p.scorer.Rank(aggregated, st.id, p.deps.Clock.Now())

	runName := "rankings-" + st.id + ".json"
	uri, err := p.deps.Artifacts.WriteArtifact(ctx, runName, ranked)
	if err != nil {
		return market.RankedOutput{}, fmt.Errorf("write ranked artifact: %w", err)
	}
	if _, err := p.deps.Artifacts.WriteArtifact(ctx, latestRankingsName, ranked); err != nil {
		return market.RankedOutput{}, fmt.Errorf("write latest rankings: %w", err)
	}
	p.indexRow(ctx, st, "", "rankings", uri, len(ranked.RankedGlobal))
	p.mirrorArtifact(ctx, st, runName, ranked)
	return ranked, nil
}

func (p *Pipeline) stagePrune(ctx context.Context, st *run, sources []market.Source) {
	keep := p.cfg.Storage.KeepSnapshots
	if keep <= 0 {
		return
	}
	defer p.timeStage("prune")()
	for _, src := range sources {
		if _, err := p.deps.Snapshots.Prune(ctx, src.ID, keep); err != nil {
			st.diag(p.deps.Clock.Now(), "prune", src.ID, err.Error())
		}
	}
}

func (p *Pipeline) persistSummary(ctx context.Context, st *run, summary market.RunSummary) {
	if _, err := p.deps.Artifacts.WriteArtifact(ctx, latestSummaryName, summary); err != nil {
		st.diag(p.deps.Clock.Now(), "summary", latestSummaryName, err.Error())
		return
	}
	p.mirrorArtifact(ctx, st, latestSummaryName, summary)
}

func (p *Pipeline) publish(ctx context.Context, st *run, summary market.RunSummary, ranked market.RankedOutput) {
	if p.deps.Publisher == nil {
		return
	}
	event := map[string]any{
		"run_id":       summary.RunID,
		"finished_at":  summary.FinishedAt,
		"ranked_count": len(ranked.RankedGlobal),
	}
	if _, err := p.deps.Publisher.Publish(ctx, p.cfg.PubSub.TopicName, event); err != nil {
		st.diag(p.deps.Clock.Now(), "publish", p.cfg.PubSub.TopicName, err.Error())
	}
}

func (p *Pipeline) mirrorArtifact(ctx context.Context, st *run, name string, payload any) {
	if p.deps.Mirror == nil {
		return
	}
	if _, err := p.deps.Mirror.WriteArtifact(ctx, name, payload); err != nil {
		st.diag(p.deps.Clock.Now(), "mirror", name, err.Error())
	}
}

func (p *Pipeline) indexRow(ctx context.Context, st *run, sourceID, kind, uri string, count int) {
	if p.deps.Indexer == nil {
		return
	}
	rowID, err := p.deps.IDs.NewID()
	if err != nil {
		st.diag(p.deps.Clock.Now(), "index", kind, err.Error())
		return
	}
	row := market.ArtifactRow{
		ID:        rowID,
		RunID:     st.id,
		SourceID:  sourceID,
		Kind:      kind,
		URI:       uri,
		ItemCount: count,
		WrittenAt: p.deps.Clock.Now(),
	}
	if err := p.deps.Indexer.IndexArtifact(ctx, row); err != nil {
		st.diag(p.deps.Clock.Now(), "index", kind, err.Error())
	}
}

func (p *Pipeline) summary(st *run, saleEvents, records int) market.RunSummary {
	st.mu.Lock()
	defer st.mu.Unlock()
	return market.RunSummary{
		RunID:       st.id,
		StartedAt:   st.startedAt,
		FinishedAt:  p.deps.Clock.Now(),
		Snapshots:   st.snapshots,
		SaleEvents:  saleEvents,
		Records:     records,
		Diagnostics: st.diagnostics,
	}
}

func (p *Pipeline) timeStage(name string) func() {
	start := time.Now()
	return func() {
		metrics.ObserveStage(name, time.Since(start))
	}
}
