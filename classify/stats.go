package classify

import (
	"math"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/redfs/redfs/metadata"
)

// FrequencyPerDay computes spec.md §4.6's frequency observation:
// (read_count + write_count) / max(age_days, 1).
func FrequencyPerDay(stats metadata.AccessStats, now time.Time) float64 {
	ageDays := now.Sub(stats.CreatedAt).Hours() / 24
	if ageDays < 1 {
		ageDays = 1
	}
	return float64(stats.ReadCount+stats.WriteCount) / ageDays
}

// RecencyHours computes spec.md §4.6's recency observation: hours since
// the more recent of last_read/last_write. An extent with no access yet
// reports an effectively infinite recency so it never receives a Hot bonus.
func RecencyHours(stats metadata.AccessStats, now time.Time) float64 {
	last := stats.LastRead
	if stats.LastWrite.After(last) {
		last = stats.LastWrite
	}
	if last.IsZero() {
		return math.Inf(1)
	}
	return now.Sub(last).Hours()
}

// Advance runs stats through Classify and returns the updated
// classification, without mutating stats itself — callers persist the
// result onto the extent record through the metadata store.
func Advance(stats metadata.AccessStats, now time.Time) metadata.Classification {
	freq := FrequencyPerDay(stats, now)
	recency := RecencyHours(stats, now)
	current := stats.Classification
	if current == "" {
		current = metadata.ClassWarm
	}
	return Classify(freq, recency, current)
}

// Cache is an LRU of recently classified extents' AccessStats, the
// read-path fast case spec.md's expansion calls for: a hit here skips a
// metadata.Store.LoadExtent round trip purely to re-read AccessStats ahead
// of a read. It carries no consistency obligation — every write still goes
// straight through metadata, and a cache miss falls back to it too.
type Cache struct {
	lru *lru.Cache
}

// NewCache builds a cache holding up to capacity entries.
func NewCache(capacity int) (*Cache, error) {
	c, err := lru.New(capacity)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: c}, nil
}

func (c *Cache) Get(extentUID string) (metadata.AccessStats, bool) {
	v, ok := c.lru.Get(extentUID)
	if !ok {
		return metadata.AccessStats{}, false
	}
	return v.(metadata.AccessStats), true
}

func (c *Cache) Put(extentUID string, stats metadata.AccessStats) {
	c.lru.Add(extentUID, stats)
}

func (c *Cache) Invalidate(extentUID string) {
	c.lru.Remove(extentUID)
}
