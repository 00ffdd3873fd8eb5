package agent

import (
	"fmt"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	defaultObsCacheSize = 128
	defaultObsCacheTTL  = 10 * time.Minute
)

// obsEntry holds one cached observation along with the timestamp it was
// stored.
type obsEntry struct {
	observation string
	storedAt    time.Time
}

// ObservationCache serves repeated read-only actions (web_search, fetch_url,
// read_file) from memory so a loop that revisits the same source does not
// pay for the fetch twice. Mutating actions are never cached; a save_file
// invalidates any cached read of that file.
type ObservationCache struct {
	cache *lru.Cache[string, obsEntry]
	ttl   time.Duration
}

// NewObservationCache creates a cache with the given size and TTL; zero
// values fall back to the defaults.
func NewObservationCache(size int, ttl time.Duration) *ObservationCache {
	if size <= 0 {
		size = defaultObsCacheSize
	}
	if ttl <= 0 {
		ttl = defaultObsCacheTTL
	}
	cache, err := lru.New[string, obsEntry](size)
	if err != nil {
		// lru.New only errors on non-positive size which we guard above.
		cache = nil
	}
	return &ObservationCache{cache: cache, ttl: ttl}
}

// Key returns the cache key for an action, or "" when the action is not
// cacheable.
func (c *ObservationCache) Key(action Action) string {
	switch a := action.(type) {
	case WebSearch:
		return ActionWebSearch + ":" + a.Query + ":" + strconv.Itoa(a.NumResults)
	case FetchURL:
		return ActionFetchURL + ":" + a.URL
	case ReadFile:
		return readFileKey(a.Filename)
	}
	return ""
}

// Get returns the cached observation for key when present and fresh.
func (c *ObservationCache) Get(key string) (string, bool) {
	if c == nil || c.cache == nil || key == "" {
		return "", false
	}
	entry, ok := c.cache.Get(key)
	if !ok {
		return "", false
	}
	if time.Since(entry.storedAt) >= c.ttl {
		c.cache.Remove(key)
		return "", false
	}
	return entry.observation, true
}

// Put stores an observation under key. Failures must not be cached; the
// caller checks IsErrorObservation first.
func (c *ObservationCache) Put(key, observation string) {
	if c == nil || c.cache == nil || key == "" {
		return
	}
	c.cache.Add(key, obsEntry{observation: observation, storedAt: time.Now()})
}

// InvalidateFile drops the cached read of filename after a write to it.
func (c *ObservationCache) InvalidateFile(filename string) {
	if c == nil || c.cache == nil {
		return
	}
	c.cache.Remove(readFileKey(filename))
}

func readFileKey(filename string) string {
	return fmt.Sprintf("%s:%s", ActionReadFile, filename)
}
