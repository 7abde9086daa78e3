// Package diffsnap infers sale events by diffing the two most recent
// catalog snapshots of a source. Inventory decreases become sold units;
// items with unknown inventory on either side emit nothing.
package diffsnap

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/marketwatch/trendwatch/internal/market"
	"github.com/marketwatch/trendwatch/internal/metrics"
)

// Differ loads snapshot pairs from the store and computes sale events.
type Differ struct {
	store  market.SnapshotStore
	logger *zap.Logger
}

// New builds a Differ.
func New(store market.SnapshotStore, logger *zap.Logger) *Differ {
	return &Differ{store: store, logger: logger}
}

// DiffSource returns the sale events for one source's most recent snapshot
// window. Sources with fewer than two snapshots yield no events.
func (d *Differ) DiffSource(ctx context.Context, sourceID string) ([]market.SaleEvent, error) {
	snaps, err := d.store.ListLatestTwo(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("load snapshots for %s: %w", sourceID, err)
	}
	if len(snaps) < 2 {
		d.logger.Debug("not enough snapshots to diff", zap.String("source", sourceID), zap.Int("have", len(snaps)))
		return nil, nil
	}

	events := Diff(snaps[0], snaps[1])
	metrics.ObserveSaleEvents(sourceID, len(events))
	d.logger.Info("snapshot diff complete",
		zap.String("source", sourceID),
		zap.Int("events", len(events)),
	)
	return events, nil
}

// Diff computes sale events between a previous and current snapshot of the
// same source. Only strictly positive deltas with known inventory on both
// sides are emitted; revenue uses the current snapshot's price.
func Diff(prev, cur market.Snapshot) []market.SaleEvent {
	prevInventory := make(map[market.ItemKey]*int, len(prev.Items))
	for _, item := range prev.Items {
		prevInventory[item.Key()] = item.Inventory
	}

	var events []market.SaleEvent
	for _, item := range cur.Items {
		before, known := prevInventory[item.Key()]
		if !known || before == nil || item.Inventory == nil {
			continue
		}
		sold := *before - *item.Inventory
		if sold <= 0 {
			continue
		}
		events = append(events, market.SaleEvent{
			Store:         cur.Source,
			ProductID:     item.ProductID,
			VariantID:     item.VariantID,
			Title:         item.Title,
			Category:      item.Category,
			Price:         item.Price,
			InventoryPrev: *before,
			InventoryNow:  *item.Inventory,
			UnitsSold:     sold,
			Revenue:       round2(float64(sold) * item.Price),
			WindowFrom:    prev.FetchedAt,
			WindowTo:      cur.FetchedAt,
		})
	}
	return events
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
