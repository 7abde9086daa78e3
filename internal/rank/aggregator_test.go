package rank

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/marketwatch/trendwatch/internal/market"
)

func floatp(v float64) *float64 { return &v }

func TestAggregateJoinsByProductID(t *testing.T) {
	t.Parallel()

	records := []market.SignalRecord{
		{ProductID: "p1", Title: "Wool Socks", UnitsSold: 4, Revenue: 40, Price: 10, Store: "shop-a.example"},
		{ProductID: "p1", Title: "Wool Socks", UnitsSold: 6, Revenue: 72, Price: 12, Store: "shop-b.example"},
	}

	out := Aggregate(records)
	require.Len(t, out, 1)
	require.Equal(t, "p1", out[0].Identity)
	require.Equal(t, 10, out[0].UnitsSold)
	require.Equal(t, 112.0, out[0].Revenue)
	require.Equal(t, 11.0, out[0].AvgPrice)
	require.Equal(t, []string{"shop-a.example", "shop-b.example"}, out[0].Sources)
}

func TestAggregateTitleFallbackIdentity(t *testing.T) {
	t.Parallel()

	records := []market.SignalRecord{
		{Title: "  Wool   SOCKS ", UnitsSold: 1, SourceName: "trends"},
		{Title: "wool socks", UnitsSold: 2, SourceName: "news"},
		{Title: "cotton socks", UnitsSold: 1, SourceName: "news"},
	}

	out := Aggregate(records)
	require.Len(t, out, 2)
	// Output sorted ascending by identity.
	require.Equal(t, "cotton socks", out[0].Identity)
	require.Equal(t, "wool socks", out[1].Identity)
	require.Equal(t, 3, out[1].UnitsSold)
}

func TestAggregateTrendScoreLatestWinsNotSummed(t *testing.T) {
	t.Parallel()

	records := []market.SignalRecord{
		{ProductID: "p1", Title: "Lamp", TrendScore: floatp(40), TrendGrowth: floatp(5)},
		{ProductID: "p1", Title: "Lamp", TrendScore: floatp(70), TrendGrowth: floatp(12)},
		{ProductID: "p1", Title: "Lamp"}, // no trend report leaves the value alone
	}

	out := Aggregate(records)
	require.Len(t, out, 1)
	require.Equal(t, 70.0, out[0].TrendScore)
	require.Equal(t, 12.0, out[0].TrendGrowth)
}

func TestAggregateMergesRegionsBySum(t *testing.T) {
	t.Parallel()

	records := []market.SignalRecord{
		{
			ProductID:     "p1",
			Title:         "Lamp",
			RegionUnits:   map[string]int{"US-TX": 3},
			RegionRevenue: map[string]float64{"US-TX": 30},
		},
		{
			ProductID:      "p1",
			Title:          "Lamp",
			RegionUnits:    map[string]int{"US-TX": 2, "US-CA": 1},
			RegionInterest: map[string]float64{"US-TX": 55},
		},
		{
			ProductID:      "p1",
			Title:          "Lamp",
			RegionInterest: map[string]float64{"US-TX": 25},
		},
	}

	out := Aggregate(records)
	require.Len(t, out, 1)
	require.Equal(t, 5, out[0].Regions["US-TX"].UnitsSold)
	require.Equal(t, 30.0, out[0].Regions["US-TX"].Revenue)
	require.Equal(t, 80.0, out[0].Regions["US-TX"].Interest)
	require.Equal(t, 1, out[0].Regions["US-CA"].UnitsSold)
}

func TestAggregateNoRegionsLeavesMapNil(t *testing.T) {
	t.Parallel()

	out := Aggregate([]market.SignalRecord{{ProductID: "p1", Title: "Lamp"}})
	require.Len(t, out, 1)
	require.Nil(t, out[0].Regions)
}
