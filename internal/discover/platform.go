// Package discover implements the storefront discovery crawl: a breadth-first
// frontier over seed URLs that classifies hosts as target-platform storefronts
// and accumulates them into a host registry.
package discover

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Platform describes the classification heuristics for one storefront
// platform, evaluated in order of decreasing reliability.
type Platform struct {
	Name string
	// DomainSuffix is the platform's canonical hosted-shop domain suffix.
	DomainSuffix string
	// AssetPatterns are substrings matched against script/link asset URLs.
	AssetPatterns []string
	// Markers are platform-specific fragments looked up in the page markup.
	Markers []string
	// CatalogPath matches URL paths that only the platform's catalog uses.
	CatalogPath *regexp.Regexp
}

// Classification methods, ordered by reliability. First match wins and a
// positive classification is never downgraded.
const (
	MatchDomain      = "domain"
	MatchAssets      = "assets"
	MatchMarkers     = "markers"
	MatchCatalogPath = "catalog-path"
)

// Shopify returns the heuristics for Shopify-hosted storefronts.
func Shopify() Platform {
	return Platform{
		Name:         "shopify",
		DomainSuffix: ".myshopify.com",
		AssetPatterns: []string{
			"cdn.shopify.com",
			"shopify.js",
			"shopify_common",
			"shopify_assets",
		},
		Markers: []string{
			"Shopify.analytics",
			"Shopify.theme",
			"Shopify.shop",
			"data-shopify",
			"shopify-section",
		},
		CatalogPath: regexp.MustCompile(`(?i)/(collections|products)/[a-z0-9-]+`),
	}
}

// Classify runs the heuristic ladder over a fetched page and reports the
// match method, or false when the host does not look like a platform shop.
func (p Platform) Classify(host string, pageURL *url.URL, body []byte) (string, bool) {
	if host == "" {
		return "", false
	}
	if p.matchesDomain(host) {
		return MatchDomain, true
	}
	if len(body) == 0 {
		return "", false
	}
	if p.referencesAssets(body) {
		return MatchAssets, true
	}
	if p.containsMarkers(body) {
		return MatchMarkers, true
	}
	if p.matchesCatalogPath(pageURL, body) {
		return MatchCatalogPath, true
	}
	return "", false
}

// matchesDomain reports whether host carries the canonical platform suffix.
func (p Platform) matchesDomain(host string) bool {
	return p.DomainSuffix != "" && strings.HasSuffix(strings.ToLower(host), p.DomainSuffix)
}

func (p Platform) referencesAssets(body []byte) bool {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return false
	}
	found := false
	doc.Find("script[src], link[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		src, ok := sel.Attr("src")
		if !ok {
			src, _ = sel.Attr("href")
		}
		src = strings.ToLower(src)
		for _, pattern := range p.AssetPatterns {
			if strings.Contains(src, pattern) {
				found = true
				return false
			}
		}
		return true
	})
	return found
}

func (p Platform) containsMarkers(body []byte) bool {
	lower := bytes.ToLower(body)
	for _, marker := range p.Markers {
		if bytes.Contains(lower, bytes.ToLower([]byte(marker))) {
			return true
		}
	}
	return false
}

func (p Platform) matchesCatalogPath(pageURL *url.URL, body []byte) bool {
	if p.CatalogPath == nil {
		return false
	}
	if pageURL != nil && p.CatalogPath.MatchString(pageURL.Path) {
		return true
	}
	return p.CatalogPath.Match(body)
}

// NormalizeHost lowercases a hostname and strips a leading www prefix so
// registry entries dedupe case-insensitively. Ports are kept.
func NormalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	return strings.TrimPrefix(host, "www.")
}
