package cache_test

import (
	"sync"
	"testing"
	"time"

	"github.com/jroosing/dnsverdict/internal/cache"
	"github.com/jroosing/dnsverdict/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDisk struct {
	mu   sync.Mutex
	data map[string]struct {
		v model.Verdict
		t time.Time
	}
}

func newFakeDisk() *fakeDisk {
	return &fakeDisk{data: map[string]struct {
		v model.Verdict
		t time.Time
	}{}}
}

func (f *fakeDisk) Get(domain string) (model.Verdict, time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.data[domain]
	return e.v, e.t, ok
}

func (f *fakeDisk) Put(domain string, v model.Verdict, insertedAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[domain] = struct {
		v model.Verdict
		t time.Time
	}{v, insertedAt}
}

func (f *fakeDisk) PurgeExpired(ttl time.Duration) {}

func TestCache_MemoryHitMiss(t *testing.T) {
	c := cache.New(10, time.Minute)
	_, ok := c.Lookup("example.com")
	assert.False(t, ok)

	c.Store("example.com", model.Verdict{Domain: "example.com", Risk: model.RiskLow})
	v, ok := c.Lookup("example.com")
	require.True(t, ok)
	assert.Equal(t, "example.com", v.Domain)
}

func TestCache_ExpiredEntryIsMiss(t *testing.T) {
	c := cache.New(10, 10*time.Millisecond)
	c.Store("a.com", model.Verdict{Domain: "a.com"})
	time.Sleep(20 * time.Millisecond)
	_, ok := c.Lookup("a.com")
	assert.False(t, ok)
}

func TestCache_LRUEviction(t *testing.T) {
	// Capacity 2 leaves one slot per stripe; a.com and q.com hash to the
	// same lock stripe, so storing q.com evicts a.com while b.com (a
	// different stripe) survives.
	c := cache.New(2, time.Minute)
	c.Store("a.com", model.Verdict{Domain: "a.com"})
	c.Store("b.com", model.Verdict{Domain: "b.com"})
	c.Store("q.com", model.Verdict{Domain: "q.com"})

	_, ok := c.Lookup("a.com")
	assert.False(t, ok, "oldest same-stripe entry should be evicted")
	_, ok = c.Lookup("b.com")
	assert.True(t, ok)
	_, ok = c.Lookup("q.com")
	assert.True(t, ok)
}

func TestCache_MonotonicFreshness_ReasoningOnlyOverwritesStale(t *testing.T) {
	c := cache.New(10, time.Minute)
	c.Store("a.com", model.Verdict{Domain: "a.com", Source: model.SourceReasoning, Risk: model.RiskHigh})

	// A non-Reasoning verdict must not overwrite a live Reasoning-sourced entry.
	c.Store("a.com", model.Verdict{Domain: "a.com", Source: model.SourceHeuristic, Risk: model.RiskLow})
	v, ok := c.Lookup("a.com")
	require.True(t, ok)
	assert.Equal(t, model.SourceReasoning, v.Source)

	// Only Reasoning may overwrite a live non-Reasoning entry, but Metadata
	// can still write into an empty slot.
	c.Store("b.com", model.Verdict{Domain: "b.com", Source: model.SourceMetadata, Risk: model.RiskMedium})
	v, ok = c.Lookup("b.com")
	require.True(t, ok)
	assert.Equal(t, model.SourceMetadata, v.Source)
}

func TestCache_MonotonicFreshness_FreshReasoningNotOverwrittenByReasoning(t *testing.T) {
	c := cache.New(10, time.Minute)
	c.Store("c.com", model.Verdict{Domain: "c.com", Source: model.SourceReasoning, Risk: model.RiskHigh, Summary: "first"})

	// A second Reasoning result must not replace a still-fresh Reasoning
	// entry: overwrites happen only when the cached source is not Reasoning
	// or the cached entry is expired.
	c.Store("c.com", model.Verdict{Domain: "c.com", Source: model.SourceReasoning, Risk: model.RiskCritical, Summary: "second"})
	v, ok := c.Lookup("c.com")
	require.True(t, ok)
	assert.Equal(t, "first", v.Summary)
	assert.Equal(t, model.RiskHigh, v.Risk)
}

func TestCache_DiskFallthroughAndPromotion(t *testing.T) {
	disk := newFakeDisk()
	disk.Put("seeded.com", model.Verdict{Domain: "seeded.com", Risk: model.RiskLow}, time.Now())

	c := cache.New(10, time.Minute, cache.WithDisk(disk, time.Hour))
	v, ok := c.Lookup("seeded.com")
	require.True(t, ok)
	assert.Equal(t, "seeded.com", v.Domain)
	assert.Equal(t, int64(1), c.GetStats().DiskHits)
}

func TestCache_ExpiredDiskEntryFilteredAtRead(t *testing.T) {
	disk := newFakeDisk()
	disk.Put("stale.com", model.Verdict{Domain: "stale.com"}, time.Now().Add(-2*time.Hour))

	c := cache.New(10, time.Minute, cache.WithDisk(disk, time.Hour))
	_, ok := c.Lookup("stale.com")
	assert.False(t, ok)
}

func TestCache_PurgeExpired(t *testing.T) {
	c := cache.New(10, 5*time.Millisecond)
	c.Store("a.com", model.Verdict{Domain: "a.com"})
	time.Sleep(15 * time.Millisecond)
	c.PurgeExpired()
	assert.Equal(t, 0, c.GetStats().Entries)
}
