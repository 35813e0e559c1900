package jobs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressKey(t *testing.T) {
	assert.Equal(t, "job:progress:abc", ProgressKey("abc"))
}

func TestProgressCacheSetGet(t *testing.T) {
	cache := NewMemoryProgressCache()
	cache.Set("job:progress:1", Progress{Processed: 500, Total: 1000, Percentage: 50, CurrentFile: "export.csv"}, time.Hour)

	got, ok := cache.Get("job:progress:1")
	require.True(t, ok)
	assert.Equal(t, 50, got.Percentage)
	assert.Equal(t, "export.csv", got.CurrentFile)

	_, ok = cache.Get("job:progress:2")
	assert.False(t, ok)
}

func TestProgressCacheExpiry(t *testing.T) {
	cache := NewMemoryProgressCache()
	cache.Set("job:progress:1", Progress{Processed: 1}, 10*time.Millisecond)

	time.Sleep(30 * time.Millisecond)

	_, ok := cache.Get("job:progress:1")
	assert.False(t, ok)
}

func TestProgressCacheDelete(t *testing.T) {
	cache := NewMemoryProgressCache()
	cache.Set("job:progress:1", Progress{Processed: 1}, time.Hour)
	cache.Delete("job:progress:1")

	_, ok := cache.Get("job:progress:1")
	assert.False(t, ok)
}

func TestProgressCacheOverwrite(t *testing.T) {
	cache := NewMemoryProgressCache()
	cache.Set("job:progress:1", Progress{Processed: 100}, time.Hour)
	cache.Set("job:progress:1", Progress{Processed: 200}, time.Hour)

	got, ok := cache.Get("job:progress:1")
	require.True(t, ok)
	assert.Equal(t, 200, got.Processed)
}
