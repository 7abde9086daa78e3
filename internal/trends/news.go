package trends

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/marketwatch/trendwatch/internal/config"
	"github.com/marketwatch/trendwatch/internal/fetch"
	"github.com/marketwatch/trendwatch/internal/market"
)

const defaultNewsPageSize = 50

// NewsClient pulls top headlines from a NewsAPI-style endpoint. Each
// headline becomes a mention record that joins other signals by title.
type NewsClient struct {
	http *fetch.Client
	cfg  config.NewsConfig
	log  *zap.Logger
}

// NewNews builds a news client.
func NewNews(httpClient *fetch.Client, cfg config.NewsConfig, log *zap.Logger) *NewsClient {
	return &NewsClient{http: httpClient, cfg: cfg, log: log}
}

type newsPayload struct {
	Articles []struct {
		Title  string `json:"title"`
		Source struct {
			Name string `json:"name"`
		} `json:"source"`
	} `json:"articles"`
}

// FetchNews implements market.NewsSource.
func (c *NewsClient) FetchNews(ctx context.Context) ([]market.SignalRecord, error) {
	if c.cfg.Endpoint == "" || c.cfg.APIKey == "" {
		c.log.Info("news source not configured, skipping")
		return nil, nil
	}

	country := c.cfg.Country
	if country == "" {
		country = "us"
	}
	pageSize := c.cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultNewsPageSize
	}
	query := url.Values{}
	query.Set("country", country)
	query.Set("pageSize", strconv.Itoa(pageSize))

	headers := http.Header{}
	headers.Set("X-Api-Key", c.cfg.APIKey)
	resp, err := c.http.FetchJSON(ctx, c.cfg.Endpoint+"?"+query.Encode(), fetch.Options{Headers: headers})
	if err != nil {
		return nil, fmt.Errorf("news fetch: %w", err)
	}

	var payload newsPayload
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		c.log.Warn("news response not parseable, treating as empty", zap.Error(err))
		return nil, nil
	}

	var records []market.SignalRecord
	seen := make(map[string]struct{})
	for _, article := range payload.Articles {
		title := market.NormalizeTitle(article.Title)
		if title == "" {
			continue
		}
		if _, dup := seen[title]; dup {
			continue
		}
		seen[title] = struct{}{}
		records = append(records, market.SignalRecord{Title: article.Title, SourceName: "news"})
	}
	c.log.Info("news headlines fetched", zap.Int("count", len(records)), zap.String("country", country))
	return records, nil
}
