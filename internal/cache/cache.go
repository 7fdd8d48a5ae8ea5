package cache

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/metal-toolbox/placer/internal/metrics"
	"github.com/metal-toolbox/placer/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
)

// Tier is a partition of the specification cache with its own expiry policy.
type Tier string

const (
	// TierRawCatalog holds whole decoded catalogs, entries never expire.
	TierRawCatalog Tier = "raw_catalog"

	// TierResolvedSpec holds unit to specification joins.
	TierResolvedSpec Tier = "resolved_spec"

	// TierSearch holds free text search results, bounded by a soft cap.
	TierSearch Tier = "search"
)

// Tiers returns the cache tiers.
func Tiers() []Tier {
	return []Tier{TierRawCatalog, TierResolvedSpec, TierSearch}
}

const (
	DefaultResolvedTTL   = 5 * time.Minute
	DefaultSearchTTL     = 10 * time.Minute
	DefaultSearchSoftCap = 4096
	DefaultEvictBatch    = 256
	DefaultSweepInterval = 128
)

// Options configures the cache expiry and eviction parameters,
// zero values are replaced by the defaults.
type Options struct {
	ResolvedTTL   time.Duration `mapstructure:"resolved_ttl"`
	SearchTTL     time.Duration `mapstructure:"search_ttl"`
	SearchSoftCap int           `mapstructure:"search_soft_cap"`
	EvictBatch    int           `mapstructure:"evict_batch"`
	SweepInterval int           `mapstructure:"sweep_interval"`
}

func (o *Options) setDefaults() {
	if o.ResolvedTTL <= 0 {
		o.ResolvedTTL = DefaultResolvedTTL
	}

	if o.SearchTTL <= 0 {
		o.SearchTTL = DefaultSearchTTL
	}

	if o.SearchSoftCap <= 0 {
		o.SearchSoftCap = DefaultSearchSoftCap
	}

	if o.EvictBatch <= 0 {
		o.EvictBatch = DefaultEvictBatch
	}

	if o.SweepInterval <= 0 {
		o.SweepInterval = DefaultSweepInterval
	}
}

type item struct {
	payload   any
	expiresAt time.Time // zero for no expiry
	seq       uint64
}

func (i *item) expired(now time.Time) bool {
	return !i.expiresAt.IsZero() && now.After(i.expiresAt)
}

// Cache is the specification cache shared by the catalog store and identity resolver.
//
// Keys are of the form <component type>/<rest>, see Key.
type Cache struct {
	mu     sync.RWMutex
	tiers  map[Tier]map[string]*item
	opts   Options
	logger *logrus.Logger

	// seq orders insertions for FIFO eviction.
	seq uint64

	// writes counts Set calls since the last sweep.
	writes int

	hits   atomic.Uint64
	misses atomic.Uint64

	now func() time.Time
}

// Stats is a point in time summary of the cache.
type Stats struct {
	Hits   uint64       `json:"hits"`
	Misses uint64       `json:"misses"`
	Size   int          `json:"size"`
	Tiers  map[Tier]int `json:"tiers"`
}

// New returns a cache with the given options.
func New(opts Options, logger *logrus.Logger) *Cache {
	opts.setDefaults()

	c := &Cache{
		tiers:  make(map[Tier]map[string]*item, len(Tiers())),
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}

	for _, tier := range Tiers() {
		c.tiers[tier] = map[string]*item{}
	}

	return c
}

// Key returns a cache key for the component type and key parts.
func Key(componentType model.ComponentType, parts ...string) string {
	return string(componentType) + "/" + strings.Join(parts, "/")
}

// Get returns the payload stored under key in the tier.
//
// Expired entries are treated as misses and removed.
func (c *Cache) Get(tier Tier, key string) (any, bool) {
	c.mu.RLock()
	it, exists := c.tiers[tier][key]
	c.mu.RUnlock()

	if exists && it.expired(c.now()) {
		c.mu.Lock()
		// the entry may have been replaced while the lock was released
		if current, ok := c.tiers[tier][key]; ok && current == it {
			delete(c.tiers[tier], key)
			c.evicted(tier, "expired", 1)
		}
		c.mu.Unlock()

		exists = false
	}

	if !exists {
		c.misses.Add(1)
		metrics.CacheLookupCounter.With(prometheus.Labels{"tier": string(tier), "result": "miss"}).Inc()

		return nil, false
	}

	c.hits.Add(1)
	metrics.CacheLookupCounter.With(prometheus.Labels{"tier": string(tier), "result": "hit"}).Inc()

	return it.payload, true
}

// Set stores the payload under key in the tier.
//
// A zero ttl applies the tier default. Raw catalog entries never expire, a ttl given for them is ignored.
// Writes to an unknown tier are ignored.
func (c *Cache) Set(tier Tier, key string, payload any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, exists := c.tiers[tier]
	if !exists {
		c.logger.WithFields(logrus.Fields{"tier": tier, "key": key}).Warn("cache write to unknown tier ignored")
		return
	}

	if ttl <= 0 || tier == TierRawCatalog {
		ttl = c.defaultTTL(tier)
	}

	now := c.now()
	c.seq++

	it := &item{payload: payload, seq: c.seq}
	if ttl > 0 {
		it.expiresAt = now.Add(ttl)
	}

	entries[key] = it

	c.writes++
	if c.writes >= c.opts.SweepInterval {
		c.writes = 0
		c.sweep(now)
	}

	if tier == TierSearch && len(entries) > c.opts.SearchSoftCap {
		c.evict(tier)
	}
}

func (c *Cache) defaultTTL(tier Tier) time.Duration {
	switch tier {
	case TierResolvedSpec:
		return c.opts.ResolvedTTL
	case TierSearch:
		return c.opts.SearchTTL
	default:
		return 0
	}
}

// sweep drops expired entries from all tiers, the caller holds the write lock.
func (c *Cache) sweep(now time.Time) {
	for tier, entries := range c.tiers {
		var count int

		for key, it := range entries {
			if it.expired(now) {
				delete(entries, key)
				count++
			}
		}

		if count > 0 {
			c.evicted(tier, "expired", count)
		}
	}
}

// evict drops the oldest entries of the tier in batches until it is within the soft cap,
// the caller holds the write lock.
func (c *Cache) evict(tier Tier) {
	entries := c.tiers[tier]

	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}

	slices.SortFunc(keys, func(a, b string) int {
		if entries[a].seq < entries[b].seq {
			return -1
		}

		return 1
	})

	var count int
	for len(entries) > c.opts.SearchSoftCap {
		end := count + c.opts.EvictBatch
		if end > len(keys) {
			end = len(keys)
		}

		for _, key := range keys[count:end] {
			delete(entries, key)
		}

		count = end
	}

	c.evicted(tier, "capacity", count)

	c.logger.WithFields(logrus.Fields{
		"tier":    tier,
		"evicted": count,
		"size":    len(entries),
	}).Debug("cache tier evicted to soft cap")
}

func (c *Cache) evicted(tier Tier, reason string, count int) {
	metrics.CacheEvictCounter.With(prometheus.Labels{"tier": string(tier), "reason": reason}).Add(float64(count))
}

// Invalidate drops every entry of the component type from all tiers,
// it returns the number of entries dropped.
//
// Each tier map is replaced rather than modified so readers holding a payload
// never observe a partially invalidated tier.
func (c *Cache) Invalidate(componentType model.ComponentType) int {
	prefix := string(componentType) + "/"

	c.mu.Lock()
	defer c.mu.Unlock()

	var dropped int

	for tier, entries := range c.tiers {
		kept := make(map[string]*item, len(entries))

		for key, it := range entries {
			if strings.HasPrefix(key, prefix) {
				dropped++
				continue
			}

			kept[key] = it
		}

		c.tiers[tier] = kept
	}

	c.logger.WithFields(logrus.Fields{
		"componentType": componentType,
		"dropped":       dropped,
	}).Info("cache invalidated")

	return dropped
}

// Stats returns the cache hit, miss counters and sizes.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Tiers:  make(map[Tier]int, len(c.tiers)),
	}

	for tier, entries := range c.tiers {
		stats.Tiers[tier] = len(entries)
		stats.Size += len(entries)
	}

	return stats
}
