package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/issuematch-mcp/pkg/types"
)

const (
	// DefaultTTL is how long a stored result stays visible
	DefaultTTL = 30 * time.Minute
	// DefaultMaxSize is the maximum number of stored results
	DefaultMaxSize = 5000
)

// KeyPayload is the canonical input of MakeKey
type KeyPayload struct {
	IssueTitle       string
	IssueDescription string
	FilePaths        []string // order is significant
}

// Stats reports cache activity since creation or the last Purge
type Stats struct {
	Size        int     `json:"size"`
	MaxSize     int     `json:"max_size"`
	TTLSeconds  float64 `json:"ttl_seconds"`
	Hits        uint64  `json:"hits"`
	Misses      uint64  `json:"misses"`
	Expirations uint64  `json:"expirations"`
	Evictions   uint64  `json:"evictions"`
}

// entry is a serialized pipeline result with its store time
type entry struct {
	value    []byte
	storedAt time.Time
}

// Cache is a bounded, TTL-expiring store of pipeline results keyed by request fingerprint.
// A single mutex guards the LRU list and the counters; expired entries are only
// removed when they are looked up or pushed out by eviction.
type Cache struct {
	mu      sync.Mutex
	lru     *lru.Cache[string, *entry]
	ttl     time.Duration
	maxSize int
	now     func() time.Time

	hits        uint64
	misses      uint64
	expirations uint64
	evictions   uint64
}

// Option configures a Cache
type Option func(*Cache)

// WithClock replaces time.Now, mainly for tests
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a cache holding at most maxSize entries, each visible for ttl
func New(maxSize int, ttl time.Duration, opts ...Option) *Cache {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	c := &Cache{
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	store, err := lru.New[string, *entry](maxSize)
	if err != nil {
		// This should never happen with a positive size
		panic(fmt.Sprintf("failed to create LRU cache: %v", err))
	}
	c.lru = store

	return c
}

// Get returns a fresh copy of the result stored under key.
// A hit marks the entry most recently used; an expired entry is deleted and reported absent.
func (c *Cache) Get(key string) (*types.PipelineResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(key)
	if !ok {
		c.misses++
		return nil, false
	}

	if c.now().Sub(e.storedAt) >= c.ttl {
		c.lru.Remove(key)
		c.expirations++
		c.misses++
		return nil, false
	}

	var result types.PipelineResult
	if err := json.Unmarshal(e.value, &result); err != nil {
		// Corrupt entries are dropped rather than served
		c.lru.Remove(key)
		c.misses++
		return nil, false
	}

	c.hits++
	return &result, true
}

// Set stores value under key with the current time, evicting the least recently used entry when full
func (c *Cache) Set(key string, value *types.PipelineResult) error {
	if value == nil {
		return fmt.Errorf("cache: nil value for key %s", key)
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: encode value: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if evicted := c.lru.Add(key, &entry{value: data, storedAt: c.now()}); evicted {
		c.evictions++
	}
	return nil
}

// Len returns the number of stored entries, including expired ones not yet looked up
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Purge removes every entry and resets the counters
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Purge()
	c.hits, c.misses, c.expirations, c.evictions = 0, 0, 0, 0
}

// Stats returns a snapshot of the cache counters
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Size:        c.lru.Len(),
		MaxSize:     c.maxSize,
		TTLSeconds:  c.ttl.Seconds(),
		Hits:        c.hits,
		Misses:      c.misses,
		Expirations: c.expirations,
		Evictions:   c.evictions,
	}
}

// MakeKey computes the hex SHA-256 fingerprint of a request payload.
// Every field is length-prefixed so that no two payloads share a serialization.
func MakeKey(p KeyPayload) string {
	var data strings.Builder
	writeField(&data, "title", p.IssueTitle)
	writeField(&data, "description", p.IssueDescription)
	data.WriteString("files:")
	data.WriteString(strconv.Itoa(len(p.FilePaths)))
	data.WriteString("|")
	for _, path := range p.FilePaths {
		writeField(&data, "path", path)
	}

	sum := sha256.Sum256([]byte(data.String()))
	return hex.EncodeToString(sum[:])
}

func writeField(b *strings.Builder, name, value string) {
	b.WriteString(name)
	b.WriteString(":")
	b.WriteString(strconv.Itoa(len(value)))
	b.WriteString(":")
	b.WriteString(value)
	b.WriteString("|")
}
