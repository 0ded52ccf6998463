package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aman-churiwal/marketplace-gateway/internal/models"
)

const (
	DefaultTTL     = 5 * time.Minute
	DefaultMaxSize = 1000
)

type entry struct {
	page      models.ListingPage
	etag      string
	timestamp time.Time
	ttl       time.Duration
}

func (e *entry) expired(now time.Time) bool {
	return now.Sub(e.timestamp) > e.ttl
}

// ListingCache is a process-local store of listing pages keyed by query
// fingerprint, serving HTTP conditional-GET semantics. Entries expire
// after their TTL and the oldest entry is evicted once MaxSize is hit.
// A single mutex guards every operation so expiry and eviction stay
// atomic with the read or write they accompany.
type ListingCache struct {
	mu         sync.Mutex
	entries    map[string]*entry
	maxSize    int
	defaultTTL time.Duration
}

type Config struct {
	MaxSize    int
	DefaultTTL time.Duration
}

func New(cfg Config) *ListingCache {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultMaxSize
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultTTL
	}

	return &ListingCache{
		entries:    make(map[string]*entry),
		maxSize:    cfg.MaxSize,
		defaultTTL: cfg.DefaultTTL,
	}
}

// Get looks up a cached page. On a miss or an expired entry it returns
// (nil, "", false) and drops the stale entry. When ifNoneMatch equals the
// stored etag it returns (nil, etag, true) so the transport can answer
// with a 304 without re-serializing the body.
func (c *ListingCache) Get(key, ifNoneMatch string) (*models.ListingPage, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, "", false
	}

	if e.expired(time.Now()) {
		delete(c.entries, key)
		return nil, "", false
	}

	if ifNoneMatch != "" && ifNoneMatch == e.etag {
		return nil, e.etag, true
	}

	page := e.page
	return &page, e.etag, false
}

// Set stores a page under key and returns its etag. A zero ttl uses the
// cache default. When the cache is full the entry with the oldest write
// timestamp is evicted first.
func (c *ListingCache) Set(key string, page models.ListingPage, ttl time.Duration) string {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	etag := computeETag(page)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	c.entries[key] = &entry{
		page:      page,
		etag:      etag,
		timestamp: time.Now(),
		ttl:       ttl,
	}

	return etag
}

// Invalidate removes the given keys, or every entry when called with
// none. A successful publish must flush the whole cache since it can
// shift sort order and counts for any cached query.
func (c *ListingCache) Invalidate(keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(keys) == 0 {
		c.entries = make(map[string]*entry)
		return
	}

	for _, key := range keys {
		delete(c.entries, key)
	}
}

// CleanupExpired sweeps out every expired entry and returns how many were
// removed. Expiry is already checked lazily in Get; the sweep only bounds
// memory for entries that are written but never read again.
func (c *ListingCache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0

	for key, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, key)
			removed++
		}
	}

	return removed
}

// Len returns the number of entries currently held, expired or not.
func (c *ListingCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

// evictOldest drops the entry with the oldest write timestamp.
// Caller must hold c.mu.
func (c *ListingCache) evictOldest() {
	var oldestKey string
	var oldest time.Time

	for key, e := range c.entries {
		if oldestKey == "" || e.timestamp.Before(oldest) {
			oldestKey = key
			oldest = e.timestamp
		}
	}

	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// GenerateCacheKey derives a deterministic key from the given parameters.
// Parameters are sorted by name before hashing so semantically identical
// queries map to the same key regardless of argument order.
func GenerateCacheKey(params map[string]string) string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "%s=%s;", name, params[name])
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// computeETag hashes the canonical JSON serialization of the page.
// encoding/json emits struct fields in declaration order and map keys
// sorted, so identical content yields identical etags across processes.
func computeETag(page models.ListingPage) string {
	data, _ := json.Marshal(page)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
