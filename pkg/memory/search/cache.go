package search

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/corticalco/engram/pkg/memory"
)

// resultCache is a best-effort accelerator for repeated queries. Entries are
// keyed on the query's semantically relevant fields and expire after the TTL;
// store mutations never invalidate them, so staleness is bounded only by the
// TTL. On overflow the oldest-inserted entry is evicted — insertion-time
// order, not access-time.
type resultCache struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	entries    map[string]*cacheEntry
	order      []string
}

type cacheEntry struct {
	result     *memory.SearchResult
	insertedAt time.Time
}

func newResultCache(maxEntries int, ttl time.Duration) *resultCache {
	return &resultCache{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]*cacheEntry),
	}
}

func (c *resultCache) get(key string) (*memory.SearchResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Since(entry.insertedAt) > c.ttl {
		c.remove(key)
		return nil, false
	}
	return copyResult(entry.result), true
}

func (c *resultCache) put(key string, result *memory.SearchResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		c.remove(key)
	}

	for len(c.entries) >= c.maxEntries && len(c.order) > 0 {
		c.remove(c.order[0])
	}

	c.entries[key] = &cacheEntry{result: copyResult(result), insertedAt: time.Now()}
	c.order = append(c.order, key)
}

// copyResult shallow-copies a result with a fresh records slice. The cache
// hands copies in and out so no caller ever aliases the cached entry; a hit
// within the TTL always returns what was cached, regardless of what earlier
// callers did with their result.
func copyResult(result *memory.SearchResult) *memory.SearchResult {
	out := *result
	out.Records = append([]memory.ScoredRecord(nil), result.Records...)
	return &out
}

// remove deletes an entry and its order slot. Caller holds mu.
func (c *resultCache) remove(key string) {
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *resultCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// cacheKey serializes the query fields that determine result identity: text,
// owner, types, sorted tags, importance bounds and limit. Pagination offset
// and expiry opt-in are deliberately included too — they change the result
// set — while precomputed embeddings are not (two queries with the same text
// share a key).
func cacheKey(q *memory.Query) string {
	var b strings.Builder

	b.WriteString("q=")
	b.WriteString(q.Text)
	b.WriteString("|u=")
	b.WriteString(q.UserID)
	b.WriteString("|a=")
	b.WriteString(q.AgentID)

	if len(q.Types) > 0 {
		types := make([]string, len(q.Types))
		for i, t := range q.Types {
			types[i] = string(t)
		}
		sort.Strings(types)
		b.WriteString("|t=")
		b.WriteString(strings.Join(types, ","))
	}

	if len(q.Tags) > 0 {
		tags := append([]string(nil), q.Tags...)
		sort.Strings(tags)
		b.WriteString("|g=")
		b.WriteString(strings.Join(tags, ","))
	}

	if q.MinImportance != nil {
		b.WriteString("|imin=")
		b.WriteString(strconv.FormatFloat(*q.MinImportance, 'f', -1, 64))
	}
	if q.MaxImportance != nil {
		b.WriteString("|imax=")
		b.WriteString(strconv.FormatFloat(*q.MaxImportance, 'f', -1, 64))
	}
	if q.Since != nil {
		b.WriteString("|since=")
		b.WriteString(strconv.FormatInt(q.Since.UnixNano(), 10))
	}
	if q.Until != nil {
		b.WriteString("|until=")
		b.WriteString(strconv.FormatInt(q.Until.UnixNano(), 10))
	}

	b.WriteString("|l=")
	b.WriteString(strconv.Itoa(q.Limit))
	b.WriteString("|o=")
	b.WriteString(strconv.Itoa(q.Offset))
	if q.IncludeExpired {
		b.WriteString("|x=1")
	}

	return b.String()
}
