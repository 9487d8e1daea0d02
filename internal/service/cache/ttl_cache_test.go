package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLCacheGetSet(t *testing.T) {
	c := NewTTLCache()

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("k", "v", time.Minute)
	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)

	c.Delete("k")
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestTTLCacheExpiry(t *testing.T) {
	c := NewTTLCache()
	c.Set("short", 1, 10*time.Millisecond)
	c.Set("forever", 2, 0) // zero ttl never expires

	time.Sleep(25 * time.Millisecond)

	_, ok := c.Get("short")
	assert.False(t, ok, "expired entries read as absent")
	v, ok := c.Get("forever")
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestTTLCacheEvictsAtCapacity(t *testing.T) {
	c := NewTTLCacheSize(8)
	for i := 0; i < 20; i++ {
		c.Set(fmt.Sprintf("k%d", i), i, time.Minute)
	}
	assert.LessOrEqual(t, c.Len(), 8, "the size bound holds under sustained writes")
}

func TestTTLCacheEvictsExpiredFirst(t *testing.T) {
	c := NewTTLCacheSize(3)
	c.Set("stale1", 1, time.Nanosecond)
	c.Set("stale2", 2, time.Nanosecond)
	c.Set("live1", 3, time.Minute)
	time.Sleep(time.Millisecond)

	// capacity is reached, the sweep should reclaim the expired pair
	c.Set("live2", 4, time.Minute)

	_, ok := c.Get("live1")
	assert.True(t, ok, "live entries survive a sweep that had expired ones to reclaim")
	_, ok = c.Get("live2")
	assert.True(t, ok)
}

func TestTTLCacheBytesRoundTrip(t *testing.T) {
	c := NewTTLCache()

	require.NoError(t, c.SetBytes("b", []byte("payload"), time.Minute))
	b, ok, err := c.GetBytes("b")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), b)

	// non-byte entries are invisible through the bytes view
	c.Set("s", "not bytes", time.Minute)
	_, ok, err = c.GetBytes("s")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLayeredBackfillsFront(t *testing.T) {
	front := NewTTLCache()
	back := NewTTLCache()
	l := NewLayered(front, back)

	require.NoError(t, back.SetBytes("k", []byte("from-back"), time.Minute))

	b, ok, err := l.GetBytes("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("from-back"), b)

	fb, ok, err := front.GetBytes("k")
	require.NoError(t, err)
	require.True(t, ok, "a second-level hit is copied into the front")
	assert.Equal(t, []byte("from-back"), fb)
}

func TestLayeredWritesBothLevels(t *testing.T) {
	front := NewTTLCache()
	back := NewTTLCache()
	l := NewLayered(front, back)

	require.NoError(t, l.SetBytes("k", []byte("v"), time.Minute))

	_, ok, _ := front.GetBytes("k")
	assert.True(t, ok)
	_, ok, _ = back.GetBytes("k")
	assert.True(t, ok)
}

func TestLayeredFrontOnly(t *testing.T) {
	l := NewLayered(NewTTLCache(), nil)

	require.NoError(t, l.SetBytes("k", []byte("v"), time.Minute))
	b, ok, err := l.GetBytes("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), b)

	_, ok, err = l.GetBytes("missing")
	require.NoError(t, err)
	assert.False(t, ok)
}
