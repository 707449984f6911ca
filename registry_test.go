package perthread

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry_GetOnEmptyShardReturnsNil(t *testing.T) {
	r := newRegistry(8)
	require.Nil(t, r.get(123))
}

func TestRegistry_SetThenGetRoundTrips(t *testing.T) {
	r := newRegistry(8)
	m := newPerThreadMap(&handleID{id: 1}, "v")
	r.set(42, m)
	require.Same(t, m, r.get(42))
}

func TestRegistry_DeleteRemovesEntry(t *testing.T) {
	r := newRegistry(8)
	m := newPerThreadMap(&handleID{id: 1}, "v")
	r.set(7, m)
	r.delete(7)
	require.Nil(t, r.get(7))
}

func TestRegistry_DeleteOnMissingGoroutineIsNoOp(t *testing.T) {
	r := newRegistry(8)
	require.NotPanics(t, func() { r.delete(999) })
}

func TestRegistry_ShardCountRoundsUpToPowerOfTwo(t *testing.T) {
	r := newRegistry(10)
	require.Equal(t, 16, len(r.shards))
}

func TestRegistry_NonPositiveShardCountFallsBackToDefault(t *testing.T) {
	r := newRegistry(0)
	require.Equal(t, defaultShardCount, len(r.shards))
}

func TestRegistry_DistinctGoroutineIDsCanShareAShard(t *testing.T) {
	// With only one shard every goroutine ID maps to it; this should
	// still behave correctly, just with maximal contention.
	r := newRegistry(1)
	require.Equal(t, 1, len(r.shards))
	m1 := newPerThreadMap(&handleID{id: 1}, "a")
	m2 := newPerThreadMap(&handleID{id: 2}, "b")
	r.set(1, m1)
	r.set(2, m2)
	require.Same(t, m1, r.get(1))
	require.Same(t, m2, r.get(2))
}

func TestConfigure_WithShardCountReplacesDefaultRegistry(t *testing.T) {
	original := defaultRegistry
	defer func() { defaultRegistry = original }()

	Configure(WithShardCount(4))
	require.Equal(t, 4, len(defaultRegistry.shards))
}

func TestNextPowerOfTwo(t *testing.T) {
	cases := map[int]int{
		0:  1,
		1:  1,
		2:  2,
		3:  4,
		5:  8,
		64: 64,
		65: 128,
	}
	for in, want := range cases {
		require.Equal(t, want, nextPowerOfTwo(in), "input %d", in)
	}
}
