package memregion

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTranslateLowerMemory(t *testing.T) {
	r := New(1, 16)
	b, err := r.Translate(0x10, 1)
	require.NoError(t, err)
	b[0] = 0x42

	b2, err := r.Translate(0x10, 1)
	require.NoError(t, err)
	require.Equal(t, byte(0x42), b2[0])
}

func TestTranslateHighAddressGoesToUpper(t *testing.T) {
	r := New(1, uint32(ArgumentsBase/PageSize))
	b, err := r.Translate(0xFE000000, 1)
	require.NoError(t, err)
	b[0] = 0x99

	require.True(t, r.Disjoint())
}

// Seed test 6 (spec.md §8): write at 0x10 (lower), then 0xFE000000 (near
// arguments base), then 0x20 (lower again); each address must read back
// its last written byte, and the regions must remain disjoint.
func TestMemorySplitSeedScenario(t *testing.T) {
	r := New(1, uint32(ArgumentsBase/PageSize))

	b1, err := r.Translate(0x10, 1)
	require.NoError(t, err)
	b1[0] = 0x11

	b2, err := r.Translate(0xFE000000, 1)
	require.NoError(t, err)
	b2[0] = 0x22

	b3, err := r.Translate(0x20, 1)
	require.NoError(t, err)
	b3[0] = 0x33

	r1, err := r.Translate(0x10, 1)
	require.NoError(t, err)
	require.Equal(t, byte(0x11), r1[0])

	r2, err := r.Translate(0xFE000000, 1)
	require.NoError(t, err)
	require.Equal(t, byte(0x22), r2[0])

	r3, err := r.Translate(0x20, 1)
	require.NoError(t, err)
	require.Equal(t, byte(0x33), r3[0])

	require.True(t, r.Disjoint())
}

func TestTranslateArgumentsRegion(t *testing.T) {
	r := New(1, 16)
	r.WriteArguments(0, []byte("hello"))
	b, err := r.Translate(ArgumentsBase, 5)
	require.NoError(t, err)
	require.Equal(t, "hello", string(b))
}

func TestTranslateCrossingArgumentsBaseTraps(t *testing.T) {
	r := New(1, uint32(ArgumentsBase/PageSize))
	_, err := r.Translate(ArgumentsBase-2, 4)
	require.Error(t, err)
}

func TestGrowReturnsPreviousPageCountAndCapsAtMax(t *testing.T) {
	r := New(1, 2)
	prev, ok := r.Grow(1)
	require.True(t, ok)
	require.Equal(t, uint32(1), prev)
	require.Equal(t, uint32(2), r.Pages())

	_, ok = r.Grow(1)
	require.False(t, ok)
}

func TestMergeKeepsRegionsDisjoint(t *testing.T) {
	r := New(1, uint32(ArgumentsBase/PageSize))
	// An access at lowAddressThreshold is served by upper memory.
	b, err := r.Translate(lowAddressThreshold, 1)
	require.NoError(t, err)
	b[0] = 0x5a
	require.Greater(t, r.upper.Len(), 0)

	// Growing lower to within mergeThreshold of upper's begin triggers a merge.
	r.Grow(uint32((lowAddressThreshold - mergeThreshold) / PageSize))
	require.Equal(t, 0, r.upper.Len())
	require.True(t, r.Disjoint())

	b2, err := r.Translate(lowAddressThreshold, 1)
	require.NoError(t, err)
	require.Equal(t, byte(0x5a), b2[0])
}
