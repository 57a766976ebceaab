package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCacheKey(t *testing.T) {
	assert.Equal(t, CacheKey("ph", "ds"), CacheKey("ph", "ds"))
	assert.Len(t, CacheKey("ph", "ds"), 32)
	assert.NotEqual(t, CacheKey("ph", "ds"), CacheKey("ph", "ds2"))
	// separators keep ("a","bc") and ("ab","c") apart
	assert.NotEqual(t, CacheKey("a", "bc"), CacheKey("ab", "c"))
}

func TestVersionHash(t *testing.T) {
	at := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	params := map[string]any{"base_date": "2024-06-09", "region": "east"}
	base := VersionHash("SELECT 1", params, at)

	assert.Equal(t, base, VersionHash("SELECT 1", map[string]any{"region": "east", "base_date": "2024-06-09"}, at))
	assert.Equal(t, base, VersionHash("SELECT 1", params, at.In(time.FixedZone("UTC+8", 8*3600))))
	assert.NotEqual(t, base, VersionHash("SELECT 2", params, at))
	assert.NotEqual(t, base, VersionHash("SELECT 1", map[string]any{"base_date": "2024-06-10"}, at))
	assert.NotEqual(t, base, VersionHash("SELECT 1", params, at.Add(time.Second)))
}

func TestExecutionBatchID(t *testing.T) {
	at := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)

	id := ExecutionBatchID(at, "2024-06", "ph")
	assert.Len(t, id, 16)
	assert.Equal(t, id, ExecutionBatchID(at, "2024-06", "ph"))
	assert.NotEqual(t, id, ExecutionBatchID(at, "2024-05", "ph"))
	assert.NotEqual(t, id, ExecutionBatchID(at, "2024-06", "ph2"))
}
