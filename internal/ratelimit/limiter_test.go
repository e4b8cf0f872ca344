package ratelimit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func TestDecide_FirstRequestAdmitted(t *testing.T) {
	l := New(1, time.Minute)

	d := l.Decide("10.0.0.1", t0)
	require.True(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, 1, d.Limit)
}

func TestDecide_RejectsOverLimitWithinWindow(t *testing.T) {
	l := New(3, time.Minute)

	for i := 0; i < 3; i++ {
		require.True(t, l.Allow("ip", t0.Add(time.Duration(i)*time.Second)), "request %d", i)
	}

	d := l.Decide("ip", t0.Add(59*time.Second))
	assert.False(t, d.Allowed)
	assert.Equal(t, time.Second, d.RetryAfter)
}

func TestDecide_RejectedRequestsAreNotRecorded(t *testing.T) {
	l := New(1, time.Minute)

	require.True(t, l.Allow("ip", t0))
	for i := 1; i <= 5; i++ {
		require.False(t, l.Allow("ip", t0.Add(time.Duration(i)*10*time.Second)))
	}

	// only the first admission is in the log, so the window reopens at t0+W
	assert.True(t, l.Allow("ip", t0.Add(time.Minute)))
}

func TestDecide_AdmitsAgainAfterFullWindow(t *testing.T) {
	l := New(2, time.Minute)

	require.True(t, l.Allow("ip", t0))
	require.True(t, l.Allow("ip", t0))
	require.False(t, l.Allow("ip", t0.Add(59999*time.Millisecond)))

	assert.True(t, l.Allow("ip", t0.Add(time.Minute)))
}

func TestDecide_WindowSlides(t *testing.T) {
	l := New(2, time.Minute)

	require.True(t, l.Allow("ip", t0))
	require.True(t, l.Allow("ip", t0.Add(30*time.Second)))
	require.False(t, l.Allow("ip", t0.Add(45*time.Second)))

	// first entry expired, second still inside
	require.True(t, l.Allow("ip", t0.Add(61*time.Second)))
	assert.False(t, l.Allow("ip", t0.Add(62*time.Second)))
}

func TestDecide_IdentitiesAreIndependent(t *testing.T) {
	l := New(1, time.Minute)

	assert.True(t, l.Allow("a", t0))
	assert.True(t, l.Allow("b", t0))
	assert.False(t, l.Allow("a", t0))
}

func TestDecide_ZeroLimitRejectsEverything(t *testing.T) {
	l := New(0, time.Minute)
	assert.False(t, l.Allow("ip", t0))
}

func TestDecide_ConcurrentSameIdentityNeverOverAdmits(t *testing.T) {
	l := New(10, time.Minute)

	var admitted int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("ip", t0) {
				atomic.AddInt64(&admitted, 1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 10, admitted)
}

func TestCleanup_DropsIdleIdentities(t *testing.T) {
	l := New(5, time.Minute)

	l.Allow("old", t0)
	l.Allow("fresh", t0.Add(50*time.Second))
	require.Equal(t, 2, l.Identities())

	removed := l.Cleanup(t0.Add(70 * time.Second))
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, l.Identities())
}
