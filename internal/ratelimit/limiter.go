package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/akl7777777/number-intel/internal/clock"
)

// Decision is the outcome of a single admission check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// RetryAfter is how long until the oldest logged request leaves the
	// window. Zero when allowed.
	RetryAfter time.Duration
}

// Limiter admits at most Limit requests per identity in any trailing Window.
// Each identity keeps an exact log of admitted timestamps, so checks cost
// O(Limit) but never over-admit at window edges.
type Limiter struct {
	mu     sync.Mutex
	logs   map[string][]time.Time
	limit  int
	window time.Duration
}

func New(limit int, window time.Duration) *Limiter {
	return &Limiter{
		logs:   make(map[string][]time.Time),
		limit:  limit,
		window: window,
	}
}

func (l *Limiter) Limit() int { return l.limit }
func (l *Limiter) Window() time.Duration { return l.window }

// Allow records a request at now if identity is under its limit.
func (l *Limiter) Allow(identity string, now time.Time) bool {
	return l.Decide(identity, now).Allowed
}

// Decide prunes identity's log, then appends now if there is room.
// Rejected requests are not recorded.
func (l *Limiter) Decide(identity string, now time.Time) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	valid := prune(l.logs[identity], now.Add(-l.window))

	if len(valid) >= l.limit {
		l.logs[identity] = valid
		d := Decision{Allowed: false, Limit: l.limit}
		if len(valid) > 0 {
			d.RetryAfter = valid[0].Add(l.window).Sub(now)
		}
		return d
	}

	valid = append(valid, now)
	l.logs[identity] = valid
	return Decision{Allowed: true, Limit: l.limit, Remaining: l.limit - len(valid)}
}

// prune keeps timestamps strictly after cutoff. Logs are append-only in
// time order, so the first kept entry ends the scan.
func prune(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(times) && !times[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return times
	}
	// copy down so the backing array doesn't grow without bound
	n := copy(times, times[i:])
	return times[:n]
}

// Identities returns how many identities currently hold a log.
func (l *Limiter) Identities() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.logs)
}

// Cleanup drops identities with no requests left in the window.
func (l *Limiter) Cleanup(now time.Time) int {
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for id, times := range l.logs {
		valid := prune(times, cutoff)
		if len(valid) == 0 {
			delete(l.logs, id)
			removed++
			continue
		}
		l.logs[id] = valid
	}
	return removed
}

// StartJanitor runs Cleanup every interval until ctx is done.
func (l *Limiter) StartJanitor(ctx context.Context, clk clock.Clock, every time.Duration) {
	if every <= 0 {
		return
	}

	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				l.Cleanup(clk.Now())
			}
		}
	}()
}
