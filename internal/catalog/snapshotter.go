// Package catalog fetches a storefront's current product catalog through a
// chain of access strategies: authenticated admin API, public catalog JSON,
// then HTML extraction, in that order. The first strategy yielding items
// wins.
//
// An empty result is returned as-is and callers do not persist a snapshot
// for it, so a transient outage cannot make the whole inventory look sold
// when the next real snapshot arrives.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/marketwatch/trendwatch/internal/fetch"
	"github.com/marketwatch/trendwatch/internal/market"
)

const adminAPIPath = "/admin/api/2024-07/products.json"

// Config bounds catalog fetching.
type Config struct {
	// PageSize is the per-page limit for paginated strategies. A page
	// shorter than this signals end-of-data.
	PageSize int
	// MaxPages caps pagination per source.
	MaxPages int
	// HTMLMaxProducts caps how many product-detail JSON documents the
	// HTML strategy fetches.
	HTMLMaxProducts int
}

// Snapshotter captures storefront catalogs. It implements
// market.CatalogSource.
type Snapshotter struct {
	client   *fetch.Client
	cfg      Config
	detector *Detector
	renderer Renderer
	logger   *zap.Logger
}

var _ market.CatalogSource = (*Snapshotter)(nil)

// New builds a Snapshotter. renderer may be nil, which disables headless
// promotion for JS-heavy pages.
func New(client *fetch.Client, cfg Config, detector *Detector, renderer Renderer, logger *zap.Logger) *Snapshotter {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 250
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 20
	}
	if cfg.HTMLMaxProducts <= 0 {
		cfg.HTMLMaxProducts = 40
	}
	if detector == nil {
		detector = NewDetector(0)
	}
	return &Snapshotter{
		client:   client,
		cfg:      cfg,
		detector: detector,
		renderer: renderer,
		logger:   logger,
	}
}

// FetchCatalog tries each access strategy in priority order and returns the
// first non-empty normalized item list. When every strategy fails the
// joined errors are returned; a source that is genuinely empty yields
// (nil, nil) so the caller can record an empty snapshot.
func (s *Snapshotter) FetchCatalog(ctx context.Context, source market.Source) ([]market.CatalogItem, error) {
	type strategy struct {
		name string
		run  func(context.Context, market.Source) ([]market.CatalogItem, error)
	}

	strategies := make([]strategy, 0, 3)
	if source.Credential != "" {
		strategies = append(strategies, strategy{"admin-api", s.fetchAdminAPI})
	}
	strategies = append(strategies,
		strategy{"products-json", s.fetchProductsJSON},
		strategy{"html", s.fetchHTML},
	)

	var errs []error
	for _, st := range strategies {
		items, err := st.run(ctx, source)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			s.logger.Warn("catalog strategy failed",
				zap.String("source", source.ID),
				zap.String("strategy", st.name),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", st.name, err))
			continue
		}
		if len(items) > 0 {
			s.logger.Info("catalog fetched",
				zap.String("source", source.ID),
				zap.String("strategy", st.name),
				zap.Int("items", len(items)),
			)
			return items, nil
		}
	}
	if len(errs) == len(strategies) {
		return nil, errors.Join(errs...)
	}
	return nil, nil
}

func (s *Snapshotter) fetchAdminAPI(ctx context.Context, source market.Source) ([]market.CatalogItem, error) {
	headers := http.Header{}
	headers.Set("X-Shopify-Access-Token", source.Credential)
	return s.fetchPaged(ctx, baseURL(source)+adminAPIPath, fetch.Options{Headers: headers})
}

func (s *Snapshotter) fetchProductsJSON(ctx context.Context, source market.Source) ([]market.CatalogItem, error) {
	return s.fetchPaged(ctx, baseURL(source)+"/products.json", fetch.Options{})
}

// fetchPaged walks limit/page pagination until a short page.
func (s *Snapshotter) fetchPaged(ctx context.Context, endpoint string, opts fetch.Options) ([]market.CatalogItem, error) {
	var all productsPayload
	for page := 1; page <= s.cfg.MaxPages; page++ {
		url := fmt.Sprintf("%s?limit=%d&page=%d", endpoint, s.cfg.PageSize, page)
		resp, err := s.client.FetchJSON(ctx, url, opts)
		if err != nil {
			return nil, err
		}
		payload, err := decodeProducts(resp.Body)
		if err != nil {
			return nil, err
		}
		all.Products = append(all.Products, payload.Products...)
		if len(payload.Products) < s.cfg.PageSize {
			break
		}
	}
	return normalizeProducts(all), nil
}

type singleProductPayload struct {
	Product productRecord `json:"product"`
}

// fetchHTML scrapes listing pages for JSON-LD product blocks and per-product
// detail JSON derived from /products/<handle> links. Individual page
// failures are skipped.
func (s *Snapshotter) fetchHTML(ctx context.Context, source market.Source) ([]market.CatalogItem, error) {
	base := baseURL(source)

	var (
		items    []market.CatalogItem
		handles  []string
		pageErrs []error
	)
	for _, pageURL := range []string{base + "/", base + "/collections/all"} {
		body, err := s.pageBody(ctx, pageURL)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			s.logger.Debug("listing page skipped", zap.String("url", pageURL), zap.Error(err))
			pageErrs = append(pageErrs, err)
			continue
		}
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			continue
		}
		items = append(items, extractJSONLDProducts(doc)...)
		handles = append(handles, productHandles(doc, s.cfg.HTMLMaxProducts)...)
	}

	if len(items) == 0 && len(handles) == 0 && len(pageErrs) > 0 {
		return nil, errors.Join(pageErrs...)
	}

	for _, handle := range capped(dedupeStrings(handles), s.cfg.HTMLMaxProducts) {
		resp, err := s.client.FetchJSON(ctx, base+"/products/"+handle+".json", fetch.Options{})
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			continue
		}
		var payload singleProductPayload
		if err := json.Unmarshal(resp.Body, &payload); err != nil {
			continue
		}
		items = append(items, normalizeProducts(productsPayload{
			Products: []productRecord{payload.Product},
		})...)
	}

	return dedupeItems(items), nil
}

// pageBody fetches a page and promotes it through the headless renderer
// when the static body looks like a JS shell. Render failures fall back to
// the static body.
func (s *Snapshotter) pageBody(ctx context.Context, pageURL string) ([]byte, error) {
	resp, err := s.client.Fetch(ctx, pageURL, fetch.Options{})
	if err != nil {
		return nil, err
	}
	if s.renderer == nil || !s.detector.ShouldPromote(resp.Body) {
		return resp.Body, nil
	}
	rendered, renderErr := s.renderer.Render(ctx, pageURL)
	if renderErr != nil {
		s.logger.Warn("headless render failed, using static body",
			zap.String("url", pageURL),
			zap.Error(renderErr),
		)
		return resp.Body, nil
	}
	return rendered, nil
}

// baseURL resolves the fetch root for a source: its configured endpoint if
// present, else https on its host.
func baseURL(source market.Source) string {
	base := source.Endpoint
	if base == "" {
		base = "https://" + source.ID
	}
	return strings.TrimRight(base, "/")
}

// dedupeItems keeps the first occurrence per identity. Items without stable
// identifiers dedupe on normalized title so JSON-LD extractions do not
// collapse into one.
func dedupeItems(items []market.CatalogItem) []market.CatalogItem {
	seen := make(map[string]struct{}, len(items))
	out := items[:0]
	for _, item := range items {
		key := item.ProductID + "\x00" + item.VariantID
		if item.ProductID == "" && item.VariantID == "" {
			key = "title\x00" + market.NormalizeTitle(item.Title)
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, s := range in {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func capped(in []string, max int) []string {
	if len(in) > max {
		return in[:max]
	}
	return in
}
