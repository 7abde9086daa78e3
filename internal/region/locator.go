package region

import (
	"bytes"
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/marketwatch/trendwatch/internal/fetch"
	"github.com/marketwatch/trendwatch/internal/market"
)

// probePaths are the pages most likely to carry an address, most specific
// first.
var probePaths = []string{
	"/contact",
	"/contact-us",
	"/about",
	"/about-us",
	"/pages/contact-us",
	"/",
}

// StoreLocator derives a storefront's home region by probing its contact
// and about pages. Structured JSON-LD addresses win over free text.
type StoreLocator struct {
	client *fetch.Client
	attr   *Attributor
	logger *zap.Logger
}

// NewStoreLocator builds a StoreLocator.
func NewStoreLocator(client *fetch.Client, attr *Attributor, logger *zap.Logger) *StoreLocator {
	return &StoreLocator{client: client, attr: attr, logger: logger}
}

// Locate probes the storefront rooted at base and returns the best region
// signal found. A high-confidence structured match short-circuits the page
// walk; otherwise the best free-text match across all probed pages wins.
// Fetch failures skip the page; no signal at all returns false.
func (l *StoreLocator) Locate(ctx context.Context, base string) (market.RegionSignal, bool) {
	base = strings.TrimRight(base, "/")

	var (
		best  market.RegionSignal
		found bool
	)
	for _, path := range probePaths {
		if ctx.Err() != nil {
			return best, found
		}
		pageURL := base + path
		resp, err := l.client.Fetch(ctx, pageURL, fetch.Options{})
		if err != nil {
			l.logger.Debug("locator page skipped", zap.String("url", pageURL), zap.Error(err))
			continue
		}
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
		if err != nil {
			continue
		}

		for _, block := range ldBlocks(doc) {
			if sig, ok := l.attr.AttributeStructured(block); ok && sig.Confidence == market.ConfidenceHigh {
				sig.SourceText = pageURL
				return sig, true
			}
		}

		if sig, ok := l.attr.Attribute(doc.Find("body").Text()); ok {
			if !found || stronger(sig.Confidence, best.Confidence) {
				sig.SourceText = pageURL
				best, found = sig, true
			}
		}
	}
	return best, found
}

func ldBlocks(doc *goquery.Document) []string {
	var blocks []string
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, sel *goquery.Selection) {
		blocks = append(blocks, sel.Text())
	})
	return blocks
}

var confidenceRank = map[market.Confidence]int{
	market.ConfidenceLow:    1,
	market.ConfidenceMedium: 2,
	market.ConfidenceHigh:   3,
}

func stronger(a, b market.Confidence) bool {
	return confidenceRank[a] > confidenceRank[b]
}
