package uuid

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewIDProducesUniqueValues(t *testing.T) {
	t.Parallel()

	gen := New()
	seen := make(map[string]struct{})
	for range 100 {
		id, err := gen.NewID()
		require.NoError(t, err)
		require.Len(t, id, 36)
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
}
