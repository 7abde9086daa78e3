package discover

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/marketwatch/trendwatch/internal/metrics"
)

type blockAllPolicy struct{}

func (blockAllPolicy) Allowed(context.Context, string) bool { return false }

func testDiscoverConfig() Config {
	return Config{
		MaxPages:    50,
		MaxDepth:    2,
		Delay:       time.Millisecond,
		Concurrency: 1,
		UserAgent:   "trendwatch-test/1.0",
		Timeout:     2 * time.Second,
	}
}

func TestDiscovererRegistersStorefrontHosts(t *testing.T) {
	metrics.Init()

	shop := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body><div data-shopify="1">socks</div></body></html>`))
	}))
	defer shop.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `<html><body>
			<a href="/blog">blog</a>
			<a href="%s/">shop</a>
			<a href="/banner.png">banner</a>
		</body></html>`, shop.URL)
	})
	mux.HandleFunc("/blog", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body><p>nothing to see</p></body></html>`))
	})
	directory := httptest.NewServer(mux)
	defer directory.Close()

	cfg := testDiscoverConfig()
	cfg.Seeds = []string{directory.URL}

	d := New(cfg, Shopify(), NewRobotsPolicy(false, nil, cfg.UserAgent, zap.NewNop()), NewRegistry(), zap.NewNop())
	hosts, err := d.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, []string{serverHost(shop)}, hosts)
	// Seed, blog, and shop pages; the png link is filtered before visiting.
	require.Equal(t, int64(3), d.PagesFetched())
}

func TestDiscovererHonorsPageBudget(t *testing.T) {
	metrics.Init()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><body><a href="/p/%s/next">next</a></body></html>`, r.URL.Path)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := testDiscoverConfig()
	cfg.Seeds = []string{srv.URL}
	cfg.MaxPages = 1
	cfg.MaxDepth = 10

	d := New(cfg, Shopify(), NewRobotsPolicy(false, nil, cfg.UserAgent, zap.NewNop()), NewRegistry(), zap.NewNop())
	_, err := d.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), d.PagesFetched())
}

func TestDiscovererStrictHostFilter(t *testing.T) {
	metrics.Init()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body><div data-shopify="1"></div></body></html>`))
	}))
	defer srv.Close()

	cfg := testDiscoverConfig()
	cfg.Seeds = []string{srv.URL}
	cfg.StrictHostOnly = true

	d := New(cfg, Shopify(), NewRobotsPolicy(false, nil, cfg.UserAgent, zap.NewNop()), NewRegistry(), zap.NewNop())
	hosts, err := d.Run(context.Background())
	require.NoError(t, err)
	require.Empty(t, hosts)
	require.Equal(t, int64(1), d.PagesFetched())
}

func TestDiscovererRobotsBlockStopsFetch(t *testing.T) {
	metrics.Init()

	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		hits++
	}))
	defer srv.Close()

	cfg := testDiscoverConfig()
	cfg.Seeds = []string{srv.URL}

	d := New(cfg, Shopify(), blockAllPolicy{}, NewRegistry(), zap.NewNop())
	hosts, err := d.Run(context.Background())
	require.NoError(t, err)
	require.Empty(t, hosts)
	require.Zero(t, d.PagesFetched())
	require.Zero(t, hits)
}

func TestDiscovererMergePreservesPriorHosts(t *testing.T) {
	metrics.Init()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body><p>not a shop</p></body></html>`))
	}))
	defer srv.Close()

	reg := NewRegistry()
	reg.Merge([]string{"prior-shop.myshopify.com"})

	cfg := testDiscoverConfig()
	cfg.Seeds = []string{srv.URL}

	d := New(cfg, Shopify(), NewRobotsPolicy(false, nil, cfg.UserAgent, zap.NewNop()), reg, zap.NewNop())
	hosts, err := d.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"prior-shop.myshopify.com"}, hosts)
}
