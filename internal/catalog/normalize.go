package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/marketwatch/trendwatch/internal/market"
)

// flexFloat decodes a JSON number that storefronts serve either as a bare
// number or as a quoted string ("12.50"). Null and empty string decode to
// unset.
type flexFloat struct {
	Value float64
	Set   bool
}

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode quoted number: %w", err)
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("parse number %q: %w", s, err)
		}
		f.Value, f.Set = v, true
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("decode number: %w", err)
	}
	f.Value, f.Set = v, true
	return nil
}

// flexID decodes identifiers served as numbers or strings into strings.
type flexID string

func (id *flexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode quoted id: %w", err)
		}
		*id = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decode id: %w", err)
	}
	*id = flexID(n.String())
	return nil
}

// productsPayload is the storefront catalog JSON shape. Every field is
// optional; absent fields normalize to explicit zero values or nil.
type productsPayload struct {
	Products []productRecord `json:"products"`
}

type productRecord struct {
	ID          flexID          `json:"id"`
	Title       string          `json:"title"`
	ProductType string          `json:"product_type"`
	Category    string          `json:"category"`
	Price       flexFloat       `json:"price"`
	Variants    []variantRecord `json:"variants"`
}

type variantRecord struct {
	ID                flexID    `json:"id"`
	Title             string    `json:"title"`
	Price             flexFloat `json:"price"`
	InventoryQuantity *int      `json:"inventory_quantity"`
}

// normalizeProducts flattens a catalog payload into CatalogItems, one per
// variant, or one per product when a product carries no variants. Identity
// keys are deduplicated within the result; the first occurrence wins.
func normalizeProducts(payload productsPayload) []market.CatalogItem {
	items := make([]market.CatalogItem, 0, len(payload.Products))
	seen := make(map[market.ItemKey]struct{})

	add := func(item market.CatalogItem) {
		key := item.Key()
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		items = append(items, item)
	}

	for _, p := range payload.Products {
		category := p.ProductType
		if category == "" {
			category = p.Category
		}
		if len(p.Variants) == 0 {
			add(market.CatalogItem{
				ProductID: string(p.ID),
				Title:     p.Title,
				Category:  category,
				Price:     priceOf(p.Price, flexFloat{}),
				Inventory: nil,
			})
			continue
		}
		for _, v := range p.Variants {
			title := p.Title
			if v.Title != "" && !strings.EqualFold(v.Title, "default title") {
				title = p.Title + " - " + v.Title
			}
			add(market.CatalogItem{
				ProductID: string(p.ID),
				VariantID: string(v.ID),
				Title:     title,
				Category:  category,
				Price:     priceOf(v.Price, p.Price),
				Inventory: copyInt(v.InventoryQuantity),
			})
		}
	}
	return items
}

// priceOf prefers the variant price and falls back to the product price.
// Sources that hide prices normalize to zero rather than failing.
func priceOf(primary, fallback flexFloat) float64 {
	if primary.Set {
		return primary.Value
	}
	return fallback.Value
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func decodeProducts(body []byte) (productsPayload, error) {
	var payload productsPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return productsPayload{}, fmt.Errorf("decode products payload: %w", err)
	}
	return payload, nil
}
