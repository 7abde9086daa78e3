package catalog

import "bytes"

// Detector decides when a static HTML fetch should be promoted to the
// headless renderer.
type Detector struct {
	BodyLengthThreshold int
}

// NewDetector creates a promotion detector.
func NewDetector(threshold int) *Detector {
	if threshold == 0 {
		threshold = 2048
	}
	return &Detector{BodyLengthThreshold: threshold}
}

var spaMarkers = [][]byte{
	[]byte("__next"),
	[]byte("id=\"root\""),
	[]byte("id=\"app\""),
	[]byte("data-reactroot"),
}

// ShouldPromote reports whether the static body looks like a JS-rendered
// shell that hides the catalog from a plain fetch.
func (d *Detector) ShouldPromote(body []byte) bool {
	if len(body) == 0 {
		return true
	}
	if len(body) < d.BodyLengthThreshold && scriptDensityHigh(body) {
		return true
	}
	for _, marker := range spaMarkers {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	return false
}

// scriptDensityHigh reports whether script tags cover at least a quarter of
// the document. Unterminated tags count through end of document.
func scriptDensityHigh(body []byte) bool {
	lower := bytes.ToLower(body)
	total := len(lower)
	if total == 0 {
		return false
	}

	open := []byte("<script")
	closing := []byte("</script>")

	covered := 0
	for pos := 0; pos < total; {
		i := bytes.Index(lower[pos:], open)
		if i < 0 {
			break
		}
		start := pos + i
		rest := lower[start:]

		end := bytes.Index(rest, closing)
		if end < 0 {
			covered += total - start
			break
		}
		covered += end + len(closing)
		pos = start + end + len(closing)
	}

	return covered > 0 && covered*4 >= total
}
