package cache

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

const ttl = 5 * time.Minute

func TestGet_HitBeforeExpiry(t *testing.T) {
	c := New(ttl)
	c.Put("1234567890", json.RawMessage(`{"name":"x"}`), t0)

	e, ok := c.Get("1234567890", t0.Add(ttl-time.Millisecond))
	require.True(t, ok)
	assert.JSONEq(t, `{"name":"x"}`, string(e.Payload))
	assert.Equal(t, t0, e.StoredAt)
	assert.Equal(t, t0.Add(ttl), e.ExpiresAt)
}

func TestGet_MissAtAndAfterExpiry(t *testing.T) {
	c := New(ttl)
	c.Put("k", json.RawMessage(`{}`), t0)

	_, ok := c.Get("k", t0.Add(ttl))
	assert.False(t, ok)

	// the stale entry is purged as a side effect
	assert.Equal(t, 0, c.Len())
}

func TestGet_MissingKey(t *testing.T) {
	c := New(ttl)
	_, ok := c.Get("nope", t0)
	assert.False(t, ok)
}

func TestPut_OverwriteRefreshesExpiry(t *testing.T) {
	c := New(ttl)
	c.Put("k", json.RawMessage(`{"v":1}`), t0)
	c.Put("k", json.RawMessage(`{"v":2}`), t0.Add(4*time.Minute))

	e, ok := c.Get("k", t0.Add(6*time.Minute))
	require.True(t, ok)
	assert.JSONEq(t, `{"v":2}`, string(e.Payload))
	assert.Equal(t, 1, c.Len())
}

func TestEvictExpired(t *testing.T) {
	c := New(ttl)
	c.Put("old", json.RawMessage(`{}`), t0)
	c.Put("new", json.RawMessage(`{}`), t0.Add(2*time.Minute))

	removed := c.EvictExpired(t0.Add(ttl))
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, c.Len())

	_, ok := c.Get("new", t0.Add(ttl))
	assert.True(t, ok)
}

func TestPut_MaxEntriesPrefersExpiredVictims(t *testing.T) {
	c := New(ttl, WithMaxEntries(2))
	c.Put("a", json.RawMessage(`{}`), t0)
	c.Put("b", json.RawMessage(`{}`), t0.Add(4*time.Minute))

	// a has expired by now, so it is the one to go
	now := t0.Add(ttl + time.Second)
	c.Put("c", json.RawMessage(`{}`), now)

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("b", now)
	assert.True(t, ok)
	_, ok = c.Get("c", now)
	assert.True(t, ok)
}

func TestPut_MaxEntriesEvictsSoonestToExpire(t *testing.T) {
	c := New(ttl, WithMaxEntries(3))
	for i := 0; i < 3; i++ {
		c.Put(fmt.Sprintf("k%d", i), json.RawMessage(`{}`), t0.Add(time.Duration(i)*time.Second))
	}

	now := t0.Add(10 * time.Second)
	c.Put("k3", json.RawMessage(`{}`), now)

	assert.Equal(t, 3, c.Len())
	_, ok := c.Get("k0", now)
	assert.False(t, ok)
	_, ok = c.Get("k3", now)
	assert.True(t, ok)
}

func TestPut_OverwriteDoesNotEvictWhenFull(t *testing.T) {
	c := New(ttl, WithMaxEntries(2))
	c.Put("a", json.RawMessage(`{}`), t0)
	c.Put("b", json.RawMessage(`{}`), t0)
	c.Put("a", json.RawMessage(`{"v":2}`), t0.Add(time.Second))

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("b", t0.Add(time.Second))
	assert.True(t, ok)
}

func TestStop_Idempotent(t *testing.T) {
	c := New(ttl)
	c.StartJanitor(time.Hour, time.Now)
	c.Stop()
	c.Stop()
}
