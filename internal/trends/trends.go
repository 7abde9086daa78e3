// Package trends holds the search-trend and news-headline source clients.
// Both providers return arbitrary JSON; missing keys or malformed fields
// degrade to empty results rather than run failures.
package trends

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/marketwatch/trendwatch/internal/config"
	"github.com/marketwatch/trendwatch/internal/fetch"
	"github.com/marketwatch/trendwatch/internal/market"
)

const defaultGeo = "US"

// Client pulls daily trending searches from a SerpApi-style endpoint and
// turns them into keyword signal records with optional per-region interest.
type Client struct {
	http       *fetch.Client
	cfg        config.TrendsConfig
	attributor market.Attributor
	log        *zap.Logger
}

// New builds a trend client. The attributor maps provider region names
// (typically US state names) onto region codes; it may be nil, in which
// case regional interest is dropped.
func New(httpClient *fetch.Client, cfg config.TrendsConfig, attributor market.Attributor, log *zap.Logger) *Client {
	return &Client{http: httpClient, cfg: cfg, attributor: attributor, log: log}
}

// trendPayload is the subset of the provider response we read. flexFloat
// absorbs the provider's habit of quoting numbers.
type trendPayload struct {
	Days []struct {
		Searches []struct {
			Query    string         `json:"query"`
			Interest *trendInterest `json:"interest"`
		} `json:"trending_searches"`
	} `json:"daily_trending_searches"`
}

type trendInterest struct {
	Average  flexFloat            `json:"average"`
	Growth   flexFloat            `json:"growth"`
	ByRegion map[string]flexFloat `json:"by_region"`
}

// FetchTrend implements market.TrendSource.
func (c *Client) FetchTrend(ctx context.Context) ([]market.SignalRecord, error) {
	if c.cfg.Endpoint == "" || c.cfg.APIKey == "" {
		c.log.Info("trend source not configured, skipping")
		return nil, nil
	}

	geo := c.cfg.Geo
	if geo == "" {
		geo = defaultGeo
	}
	query := url.Values{}
	query.Set("engine", "google_trends_daily_trending_searches")
	query.Set("geo", geo)
	query.Set("api_key", c.cfg.APIKey)

	resp, err := c.http.FetchJSON(ctx, c.cfg.Endpoint+"?"+query.Encode(), fetch.Options{})
	if err != nil {
		return nil, fmt.Errorf("trend fetch: %w", err)
	}

	var payload trendPayload
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		c.log.Warn("trend response not parseable, treating as empty", zap.Error(err))
		return nil, nil
	}

	var records []market.SignalRecord
	seen := make(map[string]struct{})
	for _, day := range payload.Days {
		for _, search := range day.Searches {
			title := market.NormalizeTitle(search.Query)
			if title == "" {
				continue
			}
			if _, dup := seen[title]; dup {
				continue
			}
			seen[title] = struct{}{}

			rec := market.SignalRecord{Title: search.Query, SourceName: "trends"}
			if search.Interest != nil {
				score := float64(search.Interest.Average)
				growth := float64(search.Interest.Growth)
				rec.TrendScore = &score
				rec.TrendGrowth = &growth
				rec.RegionInterest = c.regionInterest(search.Interest.ByRegion)
			}
			records = append(records, rec)
		}
	}
	c.log.Info("trend keywords fetched", zap.Int("count", len(records)), zap.String("geo", geo))
	return records, nil
}

// regionInterest resolves provider region names to region codes. Names the
// attributor cannot place collapse into the Unknown bucket.
func (c *Client) regionInterest(byRegion map[string]flexFloat) map[string]float64 {
	if len(byRegion) == 0 || c.attributor == nil {
		return nil
	}
	out := make(map[string]float64, len(byRegion))
	for name, score := range byRegion {
		region := market.RegionUnknown
		if sig, ok := c.attributor.Attribute(name); ok {
			region = sig.Region
		}
		out[region] += float64(score)
	}
	return out
}

// flexFloat decodes a JSON number or a numeric string.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parse number %q: %w", s, err)
	}
	*f = flexFloat(v)
	return nil
}
