package rank

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/marketwatch/trendwatch/internal/market"
)

const (
	// Per-region local scores blend the global composite with the
	// region's raw metric at a fixed 60/40 split.
	localGlobalWeight = 0.6
	localRegionWeight = 0.4

	weightSumTolerance = 1e-9
)

// Weights are the composite demand score coefficients. They must sum to 1.
type Weights struct {
	Trend   float64
	Sales   float64
	Revenue float64
}

// Validate fails fast on weights outside [0,1] or not summing to 1.0.
func (w Weights) Validate() error {
	for name, v := range map[string]float64{"trend": w.Trend, "sales": w.Sales, "revenue": w.Revenue} {
		if v < 0 || v > 1 {
			return fmt.Errorf("weight %s = %v outside [0, 1]", name, v)
		}
	}
	if sum := w.Trend + w.Sales + w.Revenue; math.Abs(sum-1.0) > weightSumTolerance {
		return fmt.Errorf("weights sum to %v, want 1.0", sum)
	}
	return nil
}

// Scorer normalizes aggregated records and produces ranked lists.
type Scorer struct {
	weights   Weights
	topN      int
	supersetN int
}

// NewScorer validates the weights and list bounds.
func NewScorer(weights Weights, topN, supersetN int) (*Scorer, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	if topN <= 0 {
		return nil, fmt.Errorf("topN must be positive, got %d", topN)
	}
	if supersetN < topN {
		return nil, fmt.Errorf("supersetN %d must be >= topN %d", supersetN, topN)
	}
	return &Scorer{weights: weights, topN: topN, supersetN: supersetN}, nil
}

// Rank scores the records and returns bounded global and per-region
// rankings plus the wider superset. The output is fully determined by the
// input set and weights.
func (s *Scorer) Rank(records []market.AggregatedRecord, runID string, generatedAt time.Time) market.RankedOutput {
	scored := make([]market.AggregatedRecord, len(records))
	copy(scored, records)

	normalizeColumn(scored,
		func(r *market.AggregatedRecord) float64 { return r.TrendScore },
		func(r *market.AggregatedRecord, v float64) { r.NormalizedTrend = v })
	normalizeColumn(scored,
		func(r *market.AggregatedRecord) float64 { return float64(r.UnitsSold) },
		func(r *market.AggregatedRecord, v float64) { r.NormalizedSales = v })
	normalizeColumn(scored,
		func(r *market.AggregatedRecord) float64 { return r.Revenue },
		func(r *market.AggregatedRecord, v float64) { r.NormalizedRevenue = v })

	for i := range scored {
		scored[i].DemandScore = s.weights.Trend*scored[i].NormalizedTrend +
			s.weights.Sales*scored[i].NormalizedSales +
			s.weights.Revenue*scored[i].NormalizedRevenue
	}

	sortGlobal(scored)

	return market.RankedOutput{
		GeneratedAt:    generatedAt,
		RunID:          runID,
		RankedGlobal:   truncated(scored, s.topN),
		RankedByRegion: s.rankByRegion(scored),
		Superset:       truncated(scored, s.supersetN),
	}
}

// normalizeColumn linearly rescales one raw column to 0-100 over the
// candidate set. A constant column maps to the midpoint so it neither
// dominates nor divides by zero.
func normalizeColumn(records []market.AggregatedRecord, get func(*market.AggregatedRecord) float64, set func(*market.AggregatedRecord, float64)) {
	if len(records) == 0 {
		return
	}
	min, max := get(&records[0]), get(&records[0])
	for i := range records {
		v := get(&records[i])
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	for i := range records {
		if max == min {
			set(&records[i], 50)
			continue
		}
		set(&records[i], (get(&records[i])-min)/(max-min)*100)
	}
}

// sortGlobal orders by composite descending, then normalized sales
// descending, then identity ascending for full determinism.
func sortGlobal(records []market.AggregatedRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].DemandScore != records[j].DemandScore {
			return records[i].DemandScore > records[j].DemandScore
		}
		if records[i].NormalizedSales != records[j].NormalizedSales {
			return records[i].NormalizedSales > records[j].NormalizedSales
		}
		return records[i].Identity < records[j].Identity
	})
}

// rankByRegion buckets records per region and ranks each bucket by local
// score. Records with no region data land in the Unknown bucket with their
// global composite as the local score.
func (s *Scorer) rankByRegion(scored []market.AggregatedRecord) map[string][]market.AggregatedRecord {
	buckets := make(map[string][]market.AggregatedRecord)
	for _, rec := range scored {
		if len(rec.Regions) == 0 {
			entry := rec
			entry.LocalScore = rec.DemandScore
			buckets[market.RegionUnknown] = append(buckets[market.RegionUnknown], entry)
			continue
		}
		for region, metrics := range rec.Regions {
			entry := rec
			entry.LocalScore = localGlobalWeight*rec.DemandScore + localRegionWeight*regionMetric(metrics)
			buckets[region] = append(buckets[region], entry)
		}
	}

	for region, bucket := range buckets {
		sort.SliceStable(bucket, func(i, j int) bool {
			if bucket[i].LocalScore != bucket[j].LocalScore {
				return bucket[i].LocalScore > bucket[j].LocalScore
			}
			if bucket[i].NormalizedSales != bucket[j].NormalizedSales {
				return bucket[i].NormalizedSales > bucket[j].NormalizedSales
			}
			return bucket[i].Identity < bucket[j].Identity
		})
		buckets[region] = truncated(bucket, s.topN)
	}
	return buckets
}

// regionMetric picks the raw local blend input: interest when a trend
// source reported it, else inferred unit volume.
func regionMetric(m market.RegionMetrics) float64 {
	if m.Interest > 0 {
		return m.Interest
	}
	return float64(m.UnitsSold)
}

func truncated(records []market.AggregatedRecord, n int) []market.AggregatedRecord {
	if len(records) > n {
		records = records[:n]
	}
	out := make([]market.AggregatedRecord, len(records))
	copy(out, records)
	return out
}
