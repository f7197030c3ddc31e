// Package cache is a short-TTL result cache that lets an identical repeated
// request bypass the whole ranking pipeline. Entries are never deleted
// explicitly: keys embed the session state they answered for, so a stale
// entry simply stops matching and TTL reclaims it.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sievedocs/sieve/models"
)

// ErrMiss is returned by KV implementations for absent or expired keys.
var ErrMiss = errors.New("cache miss")

// KV is the expiring key-value collaborator behind the cache.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Key identifies one cacheable request. Any input that could change the
// correct answer must appear here. ShownPages is the size of the session's
// shown-id set at request time: the write-back after each answered search
// grows it, so a replay only happens while session state is unchanged.
type Key struct {
	Query      string
	SourceIDs  []string
	SessionID  string
	Offset     int
	ShownPages int
}

// Entry is the cached payload: the optimized result list plus the candidate
// total the original response reported.
type Entry struct {
	Results []models.OptimizedResult `json:"results"`
	Total   int                      `json:"total"`
}

// Cache stores optimized result lists. Reads and writes are best-effort: a
// store outage degrades to always-miss, never to a failed request.
type Cache struct {
	kv     KV
	ttl    time.Duration
	logger *log.Logger
}

// New builds a Cache with the given TTL.
func New(kv KV, ttl time.Duration, logger *log.Logger) *Cache {
	if logger == nil {
		logger = log.New(log.Writer(), "[CACHE] ", log.LstdFlags)
	}
	return &Cache{kv: kv, ttl: ttl, logger: logger}
}

// Get returns the cached entry for the key, or (Entry{}, false) on miss.
func (c *Cache) Get(ctx context.Context, key Key) (Entry, bool) {
	data, err := c.kv.Get(ctx, key.hash())
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			c.logger.Printf("cache read degraded to miss: %v", err)
		}
		return Entry{}, false
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.logger.Printf("cache entry corrupt, treating as miss: %v", err)
		return Entry{}, false
	}
	return entry, true
}

// Set stores an entry under the key for the cache TTL. Errors are logged, not
// returned.
func (c *Cache) Set(ctx context.Context, key Key, entry Entry) {
	data, err := json.Marshal(entry)
	if err != nil {
		c.logger.Printf("cache encode failed: %v", err)
		return
	}
	if err := c.kv.Set(ctx, key.hash(), data, c.ttl); err != nil {
		c.logger.Printf("cache write failed: %v", err)
	}
}

// hash builds a stable key from the normalized query, the sorted source id
// set, the session id, the pagination offset, and the shown-set size.
func (k Key) hash() string {
	sources := append([]string(nil), k.SourceIDs...)
	sort.Strings(sources)

	var b strings.Builder
	b.WriteString(normalizeQuery(k.Query))
	b.WriteByte('|')
	b.WriteString(strings.Join(sources, ","))
	b.WriteByte('|')
	b.WriteString(k.SessionID)
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(k.Offset))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(k.ShownPages))

	sum := sha256.Sum256([]byte(b.String()))
	return "search:" + hex.EncodeToString(sum[:])
}

// normalizeQuery lowercases and collapses whitespace so trivially different
// spellings of one query share a cache entry.
func normalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}
