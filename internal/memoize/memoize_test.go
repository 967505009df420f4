package memoize

// ============================================================================
// Tracked Memoization test file
// Purpose: verify cache-hit behavior, error non-caching, and that
// TrackedCacheClear flushes every registered cache.
// ============================================================================

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap_CachesSuccessfulCalls(t *testing.T) {
	calls := 0
	fn := Wrap(8, func(k string) (int, error) {
		calls++
		return len(k), nil
	})

	v1, err := fn("hello")
	require.NoError(t, err)
	assert.Equal(t, 5, v1)

	v2, err := fn("hello")
	require.NoError(t, err)
	assert.Equal(t, 5, v2)
	assert.Equal(t, 1, calls, "second call should hit cache, not re-invoke fn")
}

func TestWrap_DoesNotCacheErrors(t *testing.T) {
	calls := 0
	fn := Wrap(8, func(k string) (int, error) {
		calls++
		return 0, fmt.Errorf("boom")
	})

	_, err := fn("x")
	require.Error(t, err)
	_, err = fn("x")
	require.Error(t, err)
	assert.Equal(t, 2, calls, "failed calls must not be cached")
}

func TestTrackedCacheClear_FlushesAllRegisteredCaches(t *testing.T) {
	calls := 0
	fn := Wrap(8, func(k string) (int, error) {
		calls++
		return len(k), nil
	})

	_, err := fn("abc")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	TrackedCacheClear()

	_, err = fn("abc")
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "cleared cache must re-invoke fn")
}

func TestCache_GetAdd(t *testing.T) {
	c, err := NewCache[string, int](4)
	require.NoError(t, err)

	_, ok := c.Get("k")
	assert.False(t, ok)

	c.Add("k", 42)
	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, 42, v)

	c.Purge()
	_, ok = c.Get("k")
	assert.False(t, ok)
}
