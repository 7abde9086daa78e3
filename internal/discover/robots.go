package discover

import (
	"context"
	"fmt"
	"sync"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"

	"github.com/marketwatch/trendwatch/internal/fetch"
)

// RobotsPolicy decides whether a host may be crawled at all.
type RobotsPolicy interface {
	Allowed(ctx context.Context, host string) bool
}

// NewRobotsPolicy builds a policy honoring the respect toggle. A host whose
// robots.txt disallows the site root for our user agent (including the bare
// wildcard `Disallow: /`) is blocked entirely.
func NewRobotsPolicy(respect bool, client *fetch.Client, userAgent string, logger *zap.Logger) RobotsPolicy {
	if !respect {
		return &allowAllPolicy{}
	}
	return &robotsGate{
		client:    client,
		userAgent: userAgent,
		scheme:    "https",
		logger:    logger,
	}
}

type allowAllPolicy struct{}

func (*allowAllPolicy) Allowed(context.Context, string) bool { return true }

// robotsGate caches one verdict per host; the cache is read-mostly after
// first population.
type robotsGate struct {
	client    *fetch.Client
	userAgent string
	scheme    string
	logger    *zap.Logger
	cache     sync.Map
}

// Allowed implements RobotsPolicy. Fetch failures allow access: an absent or
// unreachable robots.txt never blocks the crawl.
func (g *robotsGate) Allowed(ctx context.Context, host string) bool {
	key := NormalizeHost(host)
	if verdict, ok := g.cache.Load(key); ok {
		allowed, assertOK := verdict.(bool)
		return assertOK && allowed
	}
	allowed := g.check(ctx, key)
	g.cache.Store(key, allowed)
	return allowed
}

func (g *robotsGate) check(ctx context.Context, host string) bool {
	resp, err := g.client.Fetch(ctx, fmt.Sprintf("%s://%s/robots.txt", g.scheme, host), fetch.Options{})
	if err != nil {
		status := fetch.StatusCode(err)
		if status == 0 {
			g.logger.Warn("robots fetch failed; allowing host", zap.String("host", host), zap.Error(err))
			return true
		}
		data, parseErr := robotstxt.FromStatusAndBytes(status, nil)
		if parseErr != nil {
			return true
		}
		return g.rootAllowed(data)
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, resp.Body)
	if err != nil {
		g.logger.Warn("robots parse failed; allowing host", zap.String("host", host), zap.Error(err))
		return true
	}
	return g.rootAllowed(data)
}

func (g *robotsGate) rootAllowed(data *robotstxt.RobotsData) bool {
	group := data.FindGroup(g.userAgent)
	if group == nil {
		return true
	}
	return group.Test("/")
}
