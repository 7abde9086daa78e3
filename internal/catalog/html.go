package catalog

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/marketwatch/trendwatch/internal/market"
)

var productPathPattern = regexp.MustCompile(`(?i)/products/([a-z0-9][a-z0-9-]*)`)

// ldNode is a tolerant JSON-LD node. Real storefront markup nests products
// under @graph, inside arrays, or at top level, with prices quoted or not.
type ldNode struct {
	Type     json.RawMessage `json:"@type"`
	Graph    []ldNode        `json:"@graph"`
	Name     string          `json:"name"`
	SKU      string          `json:"sku"`
	Category string          `json:"category"`
	Offers   json.RawMessage `json:"offers"`
}

type ldOffer struct {
	Price flexFloat `json:"price"`
}

// extractJSONLDProducts pulls Product nodes out of every ld+json script
// block in the document. Malformed blocks are skipped.
func extractJSONLDProducts(doc *goquery.Document) []market.CatalogItem {
	var items []market.CatalogItem
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, sel *goquery.Selection) {
		items = append(items, parseLDBlock([]byte(sel.Text()))...)
	})
	return items
}

func parseLDBlock(raw []byte) []market.CatalogItem {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}
	var nodes []ldNode
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &nodes); err != nil {
			return nil
		}
	} else {
		var node ldNode
		if err := json.Unmarshal(raw, &node); err != nil {
			return nil
		}
		nodes = []ldNode{node}
	}

	var items []market.CatalogItem
	for _, n := range nodes {
		items = append(items, productsFromNode(n)...)
	}
	return items
}

func productsFromNode(n ldNode) []market.CatalogItem {
	var items []market.CatalogItem
	for _, child := range n.Graph {
		items = append(items, productsFromNode(child)...)
	}
	if !isProductNode(n.Type) || n.Name == "" {
		return items
	}
	items = append(items, market.CatalogItem{
		ProductID: n.SKU,
		Title:     n.Name,
		Category:  n.Category,
		Price:     offerPrice(n.Offers),
		// JSON-LD never exposes stock counts.
		Inventory: nil,
	})
	return items
}

// isProductNode handles @type as a string or a list of strings.
func isProductNode(raw json.RawMessage) bool {
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return strings.EqualFold(single, "Product")
	}
	var multi []string
	if err := json.Unmarshal(raw, &multi); err == nil {
		for _, t := range multi {
			if strings.EqualFold(t, "Product") {
				return true
			}
		}
	}
	return false
}

// offerPrice reads offers.price from a single offer or the first of a list.
func offerPrice(raw json.RawMessage) float64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0
	}
	if raw[0] == '[' {
		var offers []ldOffer
		if err := json.Unmarshal(raw, &offers); err != nil || len(offers) == 0 {
			return 0
		}
		return offers[0].Price.Value
	}
	var offer ldOffer
	if err := json.Unmarshal(raw, &offer); err != nil {
		return 0
	}
	return offer.Price.Value
}

// productHandles collects unique product handles from listing links, in
// document order, capped at max.
func productHandles(doc *goquery.Document, max int) []string {
	seen := make(map[string]struct{})
	var handles []string
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		m := productPathPattern.FindStringSubmatch(href)
		if m == nil {
			return true
		}
		handle := strings.ToLower(m[1])
		if _, dup := seen[handle]; dup {
			return true
		}
		seen[handle] = struct{}{}
		handles = append(handles, handle)
		return len(handles) < max
	})
	return handles
}
