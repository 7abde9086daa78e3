// Package rank merges heterogeneous signal records into per-identity
// aggregates and produces deterministic global and per-region rankings.
package rank

import (
	"math"
	"sort"

	"github.com/marketwatch/trendwatch/internal/market"
)

// Aggregate merges signal records keyed by identity (stable product id,
// else normalized title). Units and revenue sum across sources; the trend
// score takes the latest reported value rather than summing; overlapping
// region entries sum. Output order is ascending by identity so repeated
// runs over the same input are byte-identical.
func Aggregate(records []market.SignalRecord) []market.AggregatedRecord {
	type accumulator struct {
		rec        market.AggregatedRecord
		priceSum   float64
		priceCount int
		sources    map[string]struct{}
	}

	byIdentity := make(map[string]*accumulator)
	order := make([]string, 0, len(records))

	for _, r := range records {
		identity := r.Identity()
		acc, ok := byIdentity[identity]
		if !ok {
			acc = &accumulator{
				rec:     market.AggregatedRecord{Identity: identity},
				sources: make(map[string]struct{}),
			}
			byIdentity[identity] = acc
			order = append(order, identity)
		}

		if acc.rec.ProductID == "" {
			acc.rec.ProductID = r.ProductID
		}
		if acc.rec.Title == "" {
			acc.rec.Title = r.Title
		}
		if acc.rec.Category == "" {
			acc.rec.Category = r.Category
		}

		acc.rec.UnitsSold += r.UnitsSold
		acc.rec.Revenue += r.Revenue
		if r.TrendScore != nil {
			acc.rec.TrendScore = *r.TrendScore
		}
		if r.TrendGrowth != nil {
			acc.rec.TrendGrowth = *r.TrendGrowth
		}
		if r.Price > 0 {
			acc.priceSum += r.Price
			acc.priceCount++
		}

		mergeRegions(&acc.rec, r)

		for _, name := range []string{r.SourceName, r.Store} {
			if name == "" {
				continue
			}
			if _, dup := acc.sources[name]; !dup {
				acc.sources[name] = struct{}{}
				acc.rec.Sources = append(acc.rec.Sources, name)
			}
		}
	}

	sort.Strings(order)
	out := make([]market.AggregatedRecord, 0, len(order))
	for _, identity := range order {
		acc := byIdentity[identity]
		if acc.priceCount > 0 {
			acc.rec.AvgPrice = round2(acc.priceSum / float64(acc.priceCount))
		}
		acc.rec.Revenue = round2(acc.rec.Revenue)
		sort.Strings(acc.rec.Sources)
		out = append(out, acc.rec)
	}
	return out
}

func mergeRegions(rec *market.AggregatedRecord, r market.SignalRecord) {
	if len(r.RegionUnits) == 0 && len(r.RegionRevenue) == 0 && len(r.RegionInterest) == 0 {
		return
	}
	if rec.Regions == nil {
		rec.Regions = make(map[string]market.RegionMetrics)
	}
	for region, units := range r.RegionUnits {
		m := rec.Regions[region]
		m.UnitsSold += units
		rec.Regions[region] = m
	}
	for region, revenue := range r.RegionRevenue {
		m := rec.Regions[region]
		m.Revenue = round2(m.Revenue + revenue)
		rec.Regions[region] = m
	}
	for region, interest := range r.RegionInterest {
		m := rec.Regions[region]
		// Colliding interest reports sum, matching units and revenue.
		m.Interest += interest
		rec.Regions[region] = m
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
