package catalog

import (
	"strings"
	"testing"
)

func TestShouldPromote(t *testing.T) {
	t.Parallel()

	d := NewDetector(0)
	testCases := []struct {
		name string
		body string
		want bool
	}{
		{"empty body", "", true},
		{"react root marker", `<html><body><div id="root"></div></body></html>`, true},
		{"next marker", `<html><body><div class="__next"></div></body></html>`, true},
		{
			"small script-heavy shell",
			`<html><head><script>window.__STATE__=` + strings.Repeat("x", 600) + `</script></head><body>hi</body></html>`,
			true,
		},
		{
			"large static page",
			`<html><body>` + strings.Repeat("<p>socks</p>", 400) + `</body></html>`,
			false,
		},
		{"small plain page", `<html><body><h1>Socks</h1><p>buy socks</p></body></html>`, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := d.ShouldPromote([]byte(tc.body)); got != tc.want {
				t.Fatalf("ShouldPromote = %v; want %v", got, tc.want)
			}
		})
	}
}

func TestScriptDensityHandlesUnterminatedTag(t *testing.T) {
	t.Parallel()

	body := `<html><script>var a = 1;` // never closed
	if !scriptDensityHigh([]byte(body)) {
		t.Fatal("expected unterminated script to count as coverage")
	}
}

func TestNewRendererDisabled(t *testing.T) {
	t.Parallel()

	_, err := NewChromedpRenderer(RendererConfig{MaxParallel: 0}, nil)
	if err != ErrRendererDisabled {
		t.Fatalf("expected ErrRendererDisabled, got %v", err)
	}
}
