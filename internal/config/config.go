// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/marketwatch/trendwatch/internal/market"
)

// Config captures every knob the pipeline reads, loaded via Viper.
type Config struct {
	Logging  LoggingConfig   `mapstructure:"logging"`
	Server   ServerConfig    `mapstructure:"server"`
	HTTP     HTTPConfig      `mapstructure:"http"`
	Discover DiscoverConfig  `mapstructure:"discover"`
	Catalog  CatalogConfig   `mapstructure:"catalog"`
	Scoring  ScoringConfig   `mapstructure:"scoring"`
	Storage  StorageConfig   `mapstructure:"storage"`
	DB       DBConfig        `mapstructure:"db"`
	PubSub   PubSubConfig    `mapstructure:"pubsub"`
	Trends   TrendsConfig    `mapstructure:"trends"`
	News     NewsConfig      `mapstructure:"news"`
	Sources  []market.Source `mapstructure:"sources"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// ServerConfig controls the status HTTP server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// HTTPConfig configures the shared fetch client.
type HTTPConfig struct {
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	MaxRetries       int    `mapstructure:"max_retries"`
	BackoffInitialMs int    `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int    `mapstructure:"backoff_max_ms"`
	MaxRedirects     int    `mapstructure:"max_redirects"`
	UserAgent        string `mapstructure:"user_agent"`
}

// Timeout returns the per-request timeout as a duration.
func (c HTTPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// DiscoverConfig governs the storefront discovery crawl.
type DiscoverConfig struct {
	Seeds          []string `mapstructure:"seeds"`
	MaxPages       int      `mapstructure:"max_pages"`
	MaxDepth       int      `mapstructure:"max_depth"`
	DelayMs        int      `mapstructure:"delay_ms"`
	Concurrency    int      `mapstructure:"concurrency"`
	RespectRobots  bool     `mapstructure:"respect_robots"`
	StrictHostOnly bool     `mapstructure:"strict_host_only"`
	RegistryFile   string   `mapstructure:"registry_file"`
}

// Delay returns the politeness delay between requests.
func (c DiscoverConfig) Delay() time.Duration {
	return time.Duration(c.DelayMs) * time.Millisecond
}

// CatalogConfig governs catalog snapshotting.
type CatalogConfig struct {
	PageSize        int            `mapstructure:"page_size"`
	MaxPages        int            `mapstructure:"max_pages"`
	HTMLMaxProducts int            `mapstructure:"html_max_products"`
	Concurrency     int            `mapstructure:"concurrency"`
	Headless        HeadlessConfig `mapstructure:"headless"`
}

// HeadlessConfig configures the chromedp rendering fallback.
type HeadlessConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	MaxParallel     int  `mapstructure:"max_parallel"`
	NavTimeoutSec   int  `mapstructure:"nav_timeout_seconds"`
	PromotionThresh int  `mapstructure:"promotion_threshold"`
}

// ScoringConfig holds the composite demand score weights and list bounds.
type ScoringConfig struct {
	WeightTrend   float64 `mapstructure:"weight_trend"`
	WeightSales   float64 `mapstructure:"weight_sales"`
	WeightRevenue float64 `mapstructure:"weight_revenue"`
	TopN          int     `mapstructure:"top_n"`
	SupersetN     int     `mapstructure:"superset_n"`
}

// StorageConfig sets artifact locations and retention.
type StorageConfig struct {
	BaseDir       string `mapstructure:"base_dir"`
	KeepSnapshots int    `mapstructure:"keep_snapshots"`
	GCSBucket     string `mapstructure:"gcs_bucket"`
	GCSPrefix     string `mapstructure:"gcs_prefix"`
}

// DBConfig controls the optional Postgres artifact index.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// PubSubConfig holds metadata for run-completion notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// TrendsConfig points at the search-trend provider.
type TrendsConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	APIKey   string `mapstructure:"api_key"`
	Geo      string `mapstructure:"geo"`
}

// NewsConfig points at the news-headlines provider.
type NewsConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	APIKey   string `mapstructure:"api_key"`
	Country  string `mapstructure:"country"`
	PageSize int    `mapstructure:"page_size"`
}

// Load builds a Config from disk and environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TRENDWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", true)
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.port", 8080)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.max_retries", 2)
	v.SetDefault("http.backoff_initial_ms", 250)
	v.SetDefault("http.backoff_max_ms", 5000)
	v.SetDefault("http.max_redirects", 5)
	v.SetDefault("http.user_agent", "trendwatch-bot/0.1 (+https://github.com/marketwatch/trendwatch)")
	v.SetDefault("discover.max_pages", 200)
	v.SetDefault("discover.max_depth", 3)
	v.SetDefault("discover.delay_ms", 600)
	v.SetDefault("discover.concurrency", 2)
	v.SetDefault("discover.respect_robots", true)
	v.SetDefault("discover.strict_host_only", false)
	v.SetDefault("discover.registry_file", "discovered_stores.json")
	v.SetDefault("catalog.page_size", 250)
	v.SetDefault("catalog.max_pages", 20)
	v.SetDefault("catalog.html_max_products", 40)
	v.SetDefault("catalog.concurrency", 3)
	v.SetDefault("catalog.headless.enabled", false)
	v.SetDefault("catalog.headless.max_parallel", 1)
	v.SetDefault("catalog.headless.nav_timeout_seconds", 25)
	v.SetDefault("catalog.headless.promotion_threshold", 2048)
	v.SetDefault("scoring.weight_trend", 0.6)
	v.SetDefault("scoring.weight_sales", 0.3)
	v.SetDefault("scoring.weight_revenue", 0.1)
	v.SetDefault("scoring.top_n", 10)
	v.SetDefault("scoring.superset_n", 200)
	v.SetDefault("storage.base_dir", "data")
	v.SetDefault("storage.keep_snapshots", 30)
	v.SetDefault("db.table", "artifacts")
	v.SetDefault("trends.geo", "US")
	v.SetDefault("news.country", "us")
	v.SetDefault("news.page_size", 10)
}

// Validate enforces required values; violations are fatal at startup before
// any network work happens.
func (c Config) Validate() error {
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0")
	}
	if c.Discover.Concurrency <= 0 {
		return fmt.Errorf("discover.concurrency must be > 0")
	}
	if c.Discover.MaxPages <= 0 {
		return fmt.Errorf("discover.max_pages must be > 0")
	}
	if c.Catalog.Concurrency <= 0 {
		return fmt.Errorf("catalog.concurrency must be > 0")
	}
	if c.Catalog.Headless.Enabled && c.Catalog.Headless.MaxParallel <= 0 {
		return fmt.Errorf("catalog.headless.max_parallel must be > 0 when headless is enabled")
	}
	if err := c.Scoring.Validate(); err != nil {
		return err
	}
	if c.Storage.BaseDir == "" {
		return fmt.Errorf("storage.base_dir is required")
	}
	if c.Storage.KeepSnapshots < 2 {
		return fmt.Errorf("storage.keep_snapshots must be >= 2 so the differ keeps a window")
	}
	for i, src := range c.Sources {
		if src.ID == "" {
			return fmt.Errorf("sources[%d].id is required", i)
		}
	}
	return nil
}

// Validate checks the weights sum to 1.0 and the list bounds are sane.
func (s ScoringConfig) Validate() error {
	for name, w := range map[string]float64{
		"scoring.weight_trend":   s.WeightTrend,
		"scoring.weight_sales":   s.WeightSales,
		"scoring.weight_revenue": s.WeightRevenue,
	} {
		if w < 0 || w > 1 {
			return fmt.Errorf("%s must be in [0, 1]", name)
		}
	}
	sum := s.WeightTrend + s.WeightSales + s.WeightRevenue
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("scoring weights must sum to 1.0, got %g", sum)
	}
	if s.TopN <= 0 {
		return fmt.Errorf("scoring.top_n must be > 0")
	}
	if s.SupersetN < s.TopN {
		return fmt.Errorf("scoring.superset_n must be >= scoring.top_n")
	}
	return nil
}
