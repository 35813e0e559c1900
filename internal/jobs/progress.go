package jobs

import (
	"sync"
	"time"
)

// Progress is the live counter published while a file is being ingested. It
// is written far more often than job results and is allowed to disappear
// once its TTL lapses; the job record remains the durable answer.
type Progress struct {
	Processed   int    `json:"processed"`
	Total       int    `json:"total"`
	Percentage  int    `json:"percentage"`
	CurrentFile string `json:"current_file"`
}

// ProgressKey builds the cache key for a job's live progress entry.
func ProgressKey(jobID string) string {
	return "job:progress:" + jobID
}

// ProgressCache stores short-lived progress entries keyed by job.
type ProgressCache interface {
	Set(key string, value Progress, ttl time.Duration)
	Get(key string) (Progress, bool)
	Delete(key string)
}

type progressEntry struct {
	value     Progress
	expiresAt time.Time
}

// MemoryProgressCache is a TTL map. Expired entries are dropped lazily on
// read and opportunistically on write.
type MemoryProgressCache struct {
	mu      sync.Mutex
	entries map[string]progressEntry
}

func NewMemoryProgressCache() *MemoryProgressCache {
	return &MemoryProgressCache{entries: make(map[string]progressEntry)}
}

func (c *MemoryProgressCache) Set(key string, value Progress, ttl time.Duration) {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) > 64 {
		for k, e := range c.entries {
			if now.After(e.expiresAt) {
				delete(c.entries, k)
			}
		}
	}
	c.entries[key] = progressEntry{value: value, expiresAt: now.Add(ttl)}
}

func (c *MemoryProgressCache) Get(key string) (Progress, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return Progress{}, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		return Progress{}, false
	}
	return entry.value, true
}

func (c *MemoryProgressCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}
