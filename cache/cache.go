package cache

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Category groups cache keys by the kind of hardware state they hold. Each
// category has its own staleness bound.
type Category string

const (
	CategoryPosition     Category = "position"
	CategoryGPIO         Category = "gpio"
	CategorySensor       Category = "sensor"
	CategoryFan          Category = "fan"
	CategoryPWM          Category = "pwm"
	CategoryActuator     Category = "actuator"
	CategoryPrinterState Category = "printer_state"
	CategoryCustom       Category = "custom"
)

// DefaultTTL is the category's worst-case staleness bound. Push invalidation
// keeps entries fresher in the common case; the TTL is the safety net.
func (c Category) DefaultTTL() time.Duration {
	switch c {
	case CategoryPosition:
		return 100 * time.Millisecond
	case CategorySensor:
		return 500 * time.Millisecond
	case CategoryGPIO, CategoryFan, CategoryPWM, CategoryActuator:
		return time.Second
	case CategoryPrinterState:
		return 2 * time.Second
	default:
		return 5 * time.Second
	}
}

// Fetcher pulls fresh state for a key from the backend on a miss or after
// expiry. One fetcher is registered per category.
type Fetcher func(ctx context.Context, key string) (interface{}, error)

// Entry is a cached hardware-state value. Replacement is atomic per key and
// the version counter detects stale overwrite races.
type Entry struct {
	Key       string
	Category  Category
	Value     interface{}
	TTL       time.Duration
	ExpiresAt time.Time
	Version   uint64
}

func (e *Entry) expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// Stats counts cache activity since construction.
type Stats struct {
	Hits          uint64
	Misses        uint64
	Refreshes     uint64
	Invalidations uint64
	Entries       int
}

// HitRate is the fraction of gets served without a backend fetch.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// StateCache is the keyed store of volatile hardware state. Gets within a
// key's TTL are served locally; expired or missing keys are fetched from the
// backend through the category's fetcher, deduplicated across concurrent
// callers.
type StateCache struct {
	mu       sync.RWMutex
	entries  map[string]*Entry
	fetchers map[Category]Fetcher
	group    singleflight.Group
	stats    Stats

	sweepInterval time.Duration
	logger        *slog.Logger
	stop          chan struct{}
	stopOnce      sync.Once
}

// NewStateCache creates an empty cache. Start must be called to run the
// background sweep.
func NewStateCache(sweepInterval time.Duration, logger *slog.Logger) *StateCache {
	return &StateCache{
		entries:       make(map[string]*Entry),
		fetchers:      make(map[Category]Fetcher),
		sweepInterval: sweepInterval,
		logger:        logger.With("component", "state_cache"),
		stop:          make(chan struct{}),
	}
}

// RegisterFetcher installs the pull-refresh function for a category.
// Later registrations override earlier ones.
func (c *StateCache) RegisterFetcher(cat Category, f Fetcher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetchers[cat] = f
}

// Get returns the cached value for key if it has not expired; otherwise it
// fetches from the backend, stores the result with the category TTL, and
// returns it. A fetch failure leaves any stale entry in place and is
// surfaced to the caller.
func (c *StateCache) Get(ctx context.Context, key string, cat Category) (interface{}, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	if ok && !entry.expired(time.Now()) {
		value := entry.Value
		c.mu.RUnlock()
		c.mu.Lock()
		c.stats.Hits++
		c.mu.Unlock()
		return value, nil
	}
	var beforeVersion uint64
	if ok {
		beforeVersion = entry.Version
	}
	fetcher, hasFetcher := c.fetchers[cat]
	c.mu.RUnlock()

	c.mu.Lock()
	c.stats.Misses++
	c.mu.Unlock()

	if !hasFetcher {
		return nil, fmt.Errorf("no fetcher registered for category %q", cat)
	}

	// Concurrent misses on the same key share one backend fetch.
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		value, err := fetcher(ctx, key)
		if err != nil {
			return nil, err
		}
		return c.storeFetched(key, value, cat, beforeVersion), nil
	})
	if err != nil {
		return nil, fmt.Errorf("cache refresh for %q failed: %w", key, err)
	}
	return v, nil
}

// storeFetched installs a fetch result unless an explicit Set superseded it
// while the fetch was in flight, in which case the fetched value is dropped
// and the newer value returned.
func (c *StateCache) storeFetched(key string, value interface{}, cat Category, beforeVersion uint64) interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[key]; ok && existing.Version > beforeVersion {
		return existing.Value
	}
	c.put(key, value, cat.DefaultTTL(), cat)
	c.stats.Refreshes++
	return value
}

// Set writes a value directly, e.g. after a successful mutation, bypassing a
// backend fetch. A zero ttl uses the category default.
func (c *StateCache) Set(key string, value interface{}, ttl time.Duration, cat Category) {
	if ttl <= 0 {
		ttl = cat.DefaultTTL()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.put(key, value, ttl, cat)
}

// put assumes c.mu is held.
func (c *StateCache) put(key string, value interface{}, ttl time.Duration, cat Category) {
	var version uint64 = 1
	if existing, ok := c.entries[key]; ok {
		version = existing.Version + 1
	}
	c.entries[key] = &Entry{
		Key:       key,
		Category:  cat,
		Value:     value,
		TTL:       ttl,
		ExpiresAt: time.Now().Add(ttl),
		Version:   version,
	}
	c.stats.Entries = len(c.entries)
}

// Invalidate removes a single entry. Returns whether it existed.
func (c *StateCache) Invalidate(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; !ok {
		return false
	}
	delete(c.entries, key)
	c.stats.Invalidations++
	c.stats.Entries = len(c.entries)
	return true
}

// InvalidatePattern removes every entry whose key matches the glob pattern.
// Unrelated keys keep their original expiry.
func (c *StateCache) InvalidatePattern(pattern string) (int, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return 0, fmt.Errorf("bad invalidation pattern %q: %w", pattern, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	for key := range c.entries {
		if ok, _ := path.Match(pattern, key); ok {
			delete(c.entries, key)
			count++
		}
	}
	c.stats.Invalidations += uint64(count)
	c.stats.Entries = len(c.entries)
	if count > 0 {
		c.logger.Debug("invalidated entries by pattern", "pattern", pattern, "count", count)
	}
	return count, nil
}

// InvalidateCategory removes every entry in a category.
func (c *StateCache) InvalidateCategory(cat Category) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	for key, entry := range c.entries {
		if entry.Category == cat {
			delete(c.entries, key)
			count++
		}
	}
	c.stats.Invalidations += uint64(count)
	c.stats.Entries = len(c.entries)
	return count
}

// Clear drops every entry.
func (c *StateCache) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := len(c.entries)
	c.entries = make(map[string]*Entry)
	c.stats.Invalidations += uint64(count)
	c.stats.Entries = 0
	return count
}

// Peek returns the live entry for a key without refreshing it.
func (c *StateCache) Peek(key string) (*Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	if !ok || entry.expired(time.Now()) {
		return nil, false
	}
	cp := *entry
	return &cp, true
}

// Keys returns all cached keys, expired ones included.
func (c *StateCache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	return keys
}

// Warm pre-fetches a set of keys. Returns how many were loaded.
func (c *StateCache) Warm(ctx context.Context, keys map[string]Category) int {
	count := 0
	for key, cat := range keys {
		if _, err := c.Get(ctx, key, cat); err != nil {
			c.logger.Warn("cache warm failed", "key", key, "error", err)
			continue
		}
		count++
	}
	return count
}

// Stats returns a snapshot of the counters.
func (c *StateCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.stats
	s.Entries = len(c.entries)
	return s
}

// Start runs the periodic sweep that evicts expired entries so read-never
// keys do not accumulate.
func (c *StateCache) Start() {
	go func() {
		ticker := time.NewTicker(c.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-c.stop:
				return
			case <-ticker.C:
				c.sweep()
			}
		}
	}()
}

// Stop halts the background sweep.
func (c *StateCache) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *StateCache) sweep() {
	now := time.Now()
	c.mu.Lock()
	evicted := 0
	for key, entry := range c.entries {
		if entry.expired(now) {
			delete(c.entries, key)
			evicted++
		}
	}
	c.stats.Entries = len(c.entries)
	c.mu.Unlock()
	if evicted > 0 {
		c.logger.Debug("swept expired entries", "evicted", evicted)
	}
}
