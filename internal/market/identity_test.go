package market

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIdentityPrefersProductID(t *testing.T) {
	t.Parallel()

	rec := SignalRecord{ProductID: "p-123", Title: "Wireless Earbuds"}
	require.Equal(t, "p-123", rec.Identity())
}

func TestIdentityFallsBackToNormalizedTitle(t *testing.T) {
	t.Parallel()

	rec := SignalRecord{Title: "  Wireless   EARBUDS "}
	require.Equal(t, "wireless earbuds", rec.Identity())
}

func TestIdentityUnknownWhenEmpty(t *testing.T) {
	t.Parallel()

	require.Equal(t, "unknown", SignalRecord{}.Identity())
}

func TestNormalizeTitle(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"Air Fryer":         "air fryer",
		"  Air\tFryer  XL ": "air fryer xl",
		"":                  "",
	}
	for in, want := range cases {
		require.Equal(t, want, NormalizeTitle(in))
	}
}
