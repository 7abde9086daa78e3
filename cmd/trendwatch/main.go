// Package main wires the trendwatch pipeline binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/marketwatch/trendwatch/internal/api"
	"github.com/marketwatch/trendwatch/internal/catalog"
	"github.com/marketwatch/trendwatch/internal/clock/system"
	"github.com/marketwatch/trendwatch/internal/config"
	"github.com/marketwatch/trendwatch/internal/diffsnap"
	"github.com/marketwatch/trendwatch/internal/discover"
	"github.com/marketwatch/trendwatch/internal/fetch"
	"github.com/marketwatch/trendwatch/internal/id/uuid"
	"github.com/marketwatch/trendwatch/internal/index"
	"github.com/marketwatch/trendwatch/internal/logging"
	"github.com/marketwatch/trendwatch/internal/market"
	"github.com/marketwatch/trendwatch/internal/metrics"
	"github.com/marketwatch/trendwatch/internal/pipeline"
	pubsubpublisher "github.com/marketwatch/trendwatch/internal/publisher/pubsub"
	"github.com/marketwatch/trendwatch/internal/region"
	"github.com/marketwatch/trendwatch/internal/snapstore/fs"
	"github.com/marketwatch/trendwatch/internal/snapstore/gcs"
	"github.com/marketwatch/trendwatch/internal/trends"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "trendwatch: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfgPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := fs.New(fs.Config{BaseDir: cfg.Storage.BaseDir}, logger.Named("store"))
	if err != nil {
		return fmt.Errorf("init snapshot store: %w", err)
	}

	httpClient := fetch.New(fetch.Config{
		Timeout:        cfg.HTTP.Timeout(),
		UserAgent:      cfg.HTTP.UserAgent,
		MaxRetries:     cfg.HTTP.MaxRetries,
		BackoffInitial: time.Duration(cfg.HTTP.BackoffInitialMs) * time.Millisecond,
		BackoffMax:     time.Duration(cfg.HTTP.BackoffMaxMs) * time.Millisecond,
		MaxRedirects:   cfg.HTTP.MaxRedirects,
	}, logger.Named("fetch"))

	registry := discover.NewRegistry()
	robots := discover.NewRobotsPolicy(cfg.Discover.RespectRobots, httpClient, cfg.HTTP.UserAgent, logger.Named("robots"))
	discoverer := discover.New(discover.Config{
		Seeds:          cfg.Discover.Seeds,
		MaxPages:       cfg.Discover.MaxPages,
		MaxDepth:       cfg.Discover.MaxDepth,
		Delay:          cfg.Discover.Delay(),
		Concurrency:    cfg.Discover.Concurrency,
		RespectRobots:  cfg.Discover.RespectRobots,
		StrictHostOnly: cfg.Discover.StrictHostOnly,
		UserAgent:      cfg.HTTP.UserAgent,
		Timeout:        cfg.HTTP.Timeout(),
	}, discover.Shopify(), robots, registry, logger.Named("discover"))

	var renderer catalog.Renderer
	if cfg.Catalog.Headless.Enabled {
		chromedpRenderer, err := catalog.NewChromedpRenderer(catalog.RendererConfig{
			MaxParallel: cfg.Catalog.Headless.MaxParallel,
			NavTimeout:  time.Duration(cfg.Catalog.Headless.NavTimeoutSec) * time.Second,
			UserAgent:   cfg.HTTP.UserAgent,
		}, logger.Named("renderer"))
		if err != nil {
			logger.Warn("headless renderer init failed, continuing without it", zap.Error(err))
		} else {
			renderer = chromedpRenderer
			defer func() {
				_ = chromedpRenderer.Close()
			}()
		}
	}
	snapshotter := catalog.New(httpClient, catalog.Config{
		PageSize:        cfg.Catalog.PageSize,
		MaxPages:        cfg.Catalog.MaxPages,
		HTMLMaxProducts: cfg.Catalog.HTMLMaxProducts,
	}, catalog.NewDetector(cfg.Catalog.Headless.PromotionThresh), renderer, logger.Named("catalog"))

	attributor := region.New()
	locator := region.NewStoreLocator(httpClient, attributor, logger.Named("locator"))

	deps := pipeline.Deps{
		Registry:   registry,
		Discoverer: discoverer,
		Catalog:    snapshotter,
		Snapshots:  store,
		Artifacts:  store,
		Differ:     diffsnap.New(store, logger.Named("diff")),
		Locator:    locator,
		Trend:      trends.New(httpClient, cfg.Trends, attributor, logger.Named("trends")),
		News:       trends.NewNews(httpClient, cfg.News, logger.Named("news")),
		Clock:      system.New(),
		IDs:        uuid.New(),
		Logger:     logger.Named("pipeline"),
	}

	if cfg.Storage.GCSBucket != "" {
		gcsClient, err := storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("init gcs client: %w", err)
		}
		defer func() {
			_ = gcsClient.Close()
		}()
		mirror, err := gcs.New(gcsClient, gcs.Config{
			Bucket: cfg.Storage.GCSBucket,
			Prefix: cfg.Storage.GCSPrefix,
		})
		if err != nil {
			return fmt.Errorf("init gcs mirror: %w", err)
		}
		deps.Mirror = mirror
	}

	if cfg.DB.DSN != "" {
		indexer, err := index.New(ctx, cfg.DB)
		if err != nil {
			return fmt.Errorf("init artifact index: %w", err)
		}
		defer indexer.Close()
		deps.Indexer = indexer
	}

	if cfg.PubSub.ProjectID != "" {
		publisher, err := pubsubpublisher.New(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return fmt.Errorf("init pubsub publisher: %w", err)
		}
		defer func() {
			_ = publisher.Close()
		}()
		deps.Publisher = publisher
	}

	pipe, err := pipeline.New(cfg, deps)
	if err != nil {
		return err
	}

	var statusServer *http.Server
	if cfg.Server.Enabled {
		statusServer = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           api.NewServer(store, logger.Named("api")).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("status server listening", zap.String("addr", statusServer.Addr))
			if err := statusServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("status server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = statusServer.Shutdown(shutdownCtx)
		}()
	}

	summary, err := pipe.Run(ctx)
	if err != nil {
		return fmt.Errorf("pipeline run: %w", err)
	}
	logTop(logger, cfg, summary)
	return nil
}

// logTop gives a one-line operational recap of the run outcome.
func logTop(logger *zap.Logger, cfg config.Config, summary market.RunSummary) {
	logger.Info("run complete",
		zap.String("run_id", summary.RunID),
		zap.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)),
		zap.Int("snapshots", summary.Snapshots),
		zap.Int("sale_events", summary.SaleEvents),
		zap.Int("records", summary.Records),
		zap.Int("diagnostics", len(summary.Diagnostics)),
		zap.Int("top_n", cfg.Scoring.TopN),
	)
}
