package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"aetherflow/internal/log"
)

type countingObserver struct{ hits, misses int }

func (o *countingObserver) CacheHit(string)  { o.hits++ }
func (o *countingObserver) CacheMiss(string) { o.misses++ }

func newTestCache(size int, ttl time.Duration) (*LRUCache[string], *time.Time) {
	now := time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRUCache[string]("test", size, ttl)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestLRUCacheGetSet(t *testing.T) {
	c, _ := newTestCache(2, time.Minute)
	obs := &countingObserver{}
	c.WithObserver(obs)

	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Set("a", "1")
	c.Set("b", "2")
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	// "b" is least recently used now
	c.Set("c", "3")
	_, ok = c.Get("b")
	assert.False(t, ok)
	assert.Equal(t, 2, c.Size())

	assert.Equal(t, 1, obs.hits)
	assert.Equal(t, 2, obs.misses)
}

func TestLRUCacheTTL(t *testing.T) {
	c, now := newTestCache(10, time.Minute)
	c.Set("a", "1")
	c.Set("b", "2")

	*now = now.Add(30 * time.Second)
	c.Set("b", "2")
	*now = now.Add(45 * time.Second)

	_, ok := c.Get("a")
	assert.False(t, ok, "expired")
	assert.Equal(t, 0, c.CleanExpired())

	*now = now.Add(time.Minute)
	assert.Equal(t, 1, c.CleanExpired())
	assert.Zero(t, c.Size())
}

func TestLRUCacheDelete(t *testing.T) {
	c, _ := newTestCache(10, time.Minute)
	c.Set("u1", "x")
	c.Set("u2", "x")

	c.Delete("u1")
	c.Delete("missing")
	_, ok := c.Get("u1")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Size())
}

func TestManager(t *testing.T) {
	c, now := newTestCache(10, time.Second)
	c.Set("a", "1")
	*now = now.Add(time.Minute)

	m := NewManager(log.Discard())
	m.Register(c)
	assert.Equal(t, 1, m.CleanNow())

	m.StartCleanup(time.Hour)
	m.StartCleanup(time.Hour)
	m.Stop()
	m.Stop()

	idle := NewManager(nil)
	idle.Stop()
}
