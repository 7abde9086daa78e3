package discover

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/marketwatch/trendwatch/internal/metrics"
)

// binaryExtensions filters links that can never be storefront pages.
var binaryExtensions = regexp.MustCompile(`(?i)\.(jpg|jpeg|png|gif|svg|pdf|zip|mp4|webm|mp3)(\?|$)`)

// Config holds the crawl bounds for one discovery run.
type Config struct {
	Seeds          []string
	MaxPages       int
	MaxDepth       int
	Delay          time.Duration
	Concurrency    int
	RespectRobots  bool
	StrictHostOnly bool
	UserAgent      string
	Timeout        time.Duration
}

// Discoverer crawls outward from seed URLs, classifying hosts against a
// platform and accumulating matches into a registry.
type Discoverer struct {
	cfg      Config
	platform Platform
	robots   RobotsPolicy
	registry *Registry
	logger   *zap.Logger
	fetched  atomic.Int64
}

// New builds a Discoverer. The registry may be pre-populated with hosts from
// earlier runs; discovery only ever adds to it.
func New(cfg Config, platform Platform, robots RobotsPolicy, registry *Registry, logger *zap.Logger) *Discoverer {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 200
	}
	return &Discoverer{
		cfg:      cfg,
		platform: platform,
		robots:   robots,
		registry: registry,
		logger:   logger,
	}
}

// Run executes the crawl until the frontier empties or the page budget is
// spent, and returns the sorted host list. Per-page failures are logged and
// skipped; they never abort the crawl.
func (d *Discoverer) Run(ctx context.Context) ([]string, error) {
	collector, err := d.initCollector(ctx)
	if err != nil {
		return nil, err
	}

	for _, seed := range d.cfg.Seeds {
		if err := collector.Visit(seed); err != nil {
			d.logger.Warn("seed visit failed", zap.String("url", seed), zap.Error(err))
		}
	}
	collector.Wait()

	d.logger.Info("discovery finished",
		zap.Int64("pages_fetched", d.fetched.Load()),
		zap.Int("hosts", d.registry.Len()),
	)
	return d.registry.Hosts(), nil
}

// PagesFetched reports how much of the page budget the run consumed.
func (d *Discoverer) PagesFetched() int64 {
	return d.fetched.Load()
}

func (d *Discoverer) initCollector(ctx context.Context) (*colly.Collector, error) {
	collector := colly.NewCollector(
		// Colly counts the seed page as depth 1; the configured bound counts
		// seeds as depth 0.
		colly.MaxDepth(d.cfg.MaxDepth+1),
		colly.UserAgent(d.cfg.UserAgent),
		colly.Async(true),
	)
	collector.AllowURLRevisit = false
	// Robots gating happens in OnRequest through the cached policy so the
	// conservative root-disallow rule applies per host, not per path.
	collector.IgnoreRobotsTxt = true
	if d.cfg.Timeout > 0 {
		collector.SetRequestTimeout(d.cfg.Timeout)
	}

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: d.cfg.Concurrency,
		Delay:       d.cfg.Delay,
	}); err != nil {
		return nil, fmt.Errorf("set collector limits: %w", err)
	}

	collector.OnRequest(func(r *colly.Request) {
		// Budget and cancellation are cooperative: checked before new work.
		if ctx.Err() != nil || d.fetched.Load() >= int64(d.cfg.MaxPages) {
			r.Abort()
			return
		}
		host := NormalizeHost(r.URL.Hostname())
		if host == "" {
			r.Abort()
			return
		}
		if !d.robots.Allowed(ctx, r.URL.Host) {
			d.logger.Debug("host blocked by robots", zap.String("host", host))
			r.Abort()
		}
	})

	collector.OnResponse(func(r *colly.Response) {
		d.fetched.Add(1)
		metrics.ObserveDiscoveryPage("fetched")
		d.classifyPage(r)
	})

	collector.OnHTML("a[href]", func(e *colly.HTMLElement) {
		link := e.Request.AbsoluteURL(e.Attr("href"))
		if !eligibleLink(link) {
			return
		}
		// Depth bookkeeping and the visited set live inside the collector.
		if err := e.Request.Visit(link); err != nil {
			d.logger.Debug("link enqueue skipped", zap.String("url", link), zap.Error(err))
		}
	})

	collector.OnError(func(r *colly.Response, err error) {
		metrics.ObserveDiscoveryPage("failed")
		d.logger.Warn("page fetch failed",
			zap.String("url", r.Request.URL.String()),
			zap.Int("status_code", r.StatusCode),
			zap.Error(err),
		)
	})

	return collector, nil
}

func (d *Discoverer) classifyPage(r *colly.Response) {
	host := NormalizeHost(r.Request.URL.Host)
	method, matched := d.platform.Classify(host, r.Request.URL, r.Body)
	if !matched {
		return
	}
	if d.cfg.StrictHostOnly && !strings.HasSuffix(host, d.platform.DomainSuffix) {
		d.logger.Debug("candidate skipped by strict host filter", zap.String("host", host))
		return
	}
	if d.registry.Add(host) {
		metrics.ObserveHostDiscovered()
		d.logger.Info("storefront discovered",
			zap.String("host", host),
			zap.String("method", method),
		)
	}
}

func eligibleLink(link string) bool {
	if link == "" {
		return false
	}
	if !strings.HasPrefix(link, "http://") && !strings.HasPrefix(link, "https://") {
		return false
	}
	return !binaryExtensions.MatchString(link)
}
