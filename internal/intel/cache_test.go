package intel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualClock struct{ t time.Time }

func (m *manualClock) now() time.Time          { return m.t }
func (m *manualClock) advance(d time.Duration) { m.t = m.t.Add(d) }

func newClockedCache(ttl time.Duration) (*ttlCache[string], *manualClock) {
	clk := &manualClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := newTTLCache[string](ttl)
	c.now = clk.now
	return c, clk
}

func TestCache_SetAndGet(t *testing.T) {
	c, _ := newClockedCache(time.Minute)
	c.set("k", "v")

	v, ok := c.get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)

	_, ok = c.get("missing")
	assert.False(t, ok)
}

func TestCache_ExpiryKeepsStale(t *testing.T) {
	c, clk := newClockedCache(time.Minute)
	c.set("k", "v")
	clk.advance(2 * time.Minute)

	_, ok := c.get("k")
	assert.False(t, ok, "expired entry should miss")

	v, ok := c.stale("k")
	require.True(t, ok, "stale read should still hit")
	assert.Equal(t, "v", v)
}

func TestCache_Evict(t *testing.T) {
	c, clk := newClockedCache(time.Minute)
	c.set("a", "1")
	c.set("b", "2")
	clk.advance(30 * time.Second)
	c.set("c", "3")
	clk.advance(45 * time.Second)

	assert.Equal(t, 2, c.evict())
	assert.Equal(t, 1, c.len())
	_, ok := c.get("c")
	assert.True(t, ok)
}
