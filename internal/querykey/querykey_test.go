package querykey

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeysAreUniqueAndSorted(t *testing.T) {
	keys := All()
	seen := map[Key]bool{}
	for _, k := range keys {
		require.False(t, seen[k], "duplicate key %s", k)
		seen[k] = true
	}
	require.True(t, sort.SliceIsSorted(keys, func(i, j int) bool { return keys[i] < keys[j] }))
}

func TestLookup(t *testing.T) {
	k, ok := Lookup("range-ips")
	require.True(t, ok)
	require.Equal(t, RangeIPs, k)

	_, ok = Lookup("nope")
	require.False(t, ok)
}
