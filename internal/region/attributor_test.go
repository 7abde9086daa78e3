package region

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/marketwatch/trendwatch/internal/market"
)

func TestAttributeDictionaryMatch(t *testing.T) {
	t.Parallel()

	a := New()
	testCases := []struct {
		name       string
		text       string
		wantRegion string
		wantConf   market.Confidence
		wantMatch  bool
	}{
		{
			name:       "city and state free text",
			text:       "Ships from Austin, Texas within 2 business days",
			wantRegion: "US-TX",
			wantConf:   market.ConfidenceMedium,
			wantMatch:  true,
		},
		{
			name:       "messy whitespace and case",
			text:       "  OUR  WAREHOUSE:\n\tPortland  ",
			wantRegion: "US-OR",
			wantConf:   market.ConfidenceMedium,
			wantMatch:  true,
		},
		{
			name:       "state abbreviation",
			text:       "123 Main St, Nashville, TN 37201",
			wantRegion: "US-TN",
			wantConf:   market.ConfidenceMedium,
			wantMatch:  true,
		},
		{
			name:       "abbreviation only",
			text:       "Returns: PO Box 99, WY",
			wantRegion: "US-WY",
			wantConf:   market.ConfidenceMedium,
			wantMatch:  true,
		},
		{
			name:       "west virginia is not virginia",
			text:       "Made in West Virginia",
			wantRegion: "US-WV",
			wantConf:   market.ConfidenceMedium,
			wantMatch:  true,
		},
		{
			name:       "canadian province",
			text:       "Our studio is in Toronto",
			wantRegion: "CA-ON",
			wantConf:   market.ConfidenceMedium,
			wantMatch:  true,
		},
		{
			name:       "country priority prefers US",
			text:       "Offices in California and Ontario",
			wantRegion: "US-CA",
			wantConf:   market.ConfidenceMedium,
			wantMatch:  true,
		},
		{
			name:       "zip only yields marker",
			text:       "Ships from 90210",
			wantRegion: market.RegionZipOnly,
			wantConf:   market.ConfidenceLow,
			wantMatch:  true,
		},
		{
			name:      "no signal",
			text:      "Free shipping worldwide!",
			wantMatch: false,
		},
		{
			name:      "lowercase tx in prose is not a state",
			text:      "thanks for the tx, it went through",
			wantMatch: false,
		},
		{
			name:      "empty text",
			text:      "",
			wantMatch: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			sig, ok := a.Attribute(tc.text)
			require.Equal(t, tc.wantMatch, ok)
			if !tc.wantMatch {
				return
			}
			require.Equal(t, tc.wantRegion, sig.Region)
			require.Equal(t, tc.wantConf, sig.Confidence)
		})
	}
}

func TestAttributeStructuredIsHighConfidence(t *testing.T) {
	t.Parallel()

	a := New()
	sig, ok := a.AttributeStructured(`{"@type":"PostalAddress","addressRegion":"TX","addressLocality":"Austin"}`)
	require.True(t, ok)
	require.Equal(t, "US-TX", sig.Region)
	require.Equal(t, market.ConfidenceHigh, sig.Confidence)

	// Zip-only stays low even in structured data.
	sig, ok = a.AttributeStructured(`{"postalCode":"90210"}`)
	require.True(t, ok)
	require.Equal(t, market.RegionZipOnly, sig.Region)
	require.Equal(t, market.ConfidenceLow, sig.Confidence)
}
