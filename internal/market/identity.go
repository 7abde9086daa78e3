package market

import "strings"

// Identity returns the aggregation join key for a signal record: the stable
// product identifier when present, otherwise the normalized title. Records
// with neither are keyed under "unknown".
func (r SignalRecord) Identity() string {
	if id := strings.TrimSpace(r.ProductID); id != "" {
		return id
	}
	if title := NormalizeTitle(r.Title); title != "" {
		return title
	}
	return "unknown"
}

// NormalizeTitle lowercases and collapses internal whitespace so that
// cosmetically different titles join onto one identity.
func NormalizeTitle(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), " ")
}
