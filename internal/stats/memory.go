package stats

import (
	"context"
	"sync"
)

// Memory keeps per-outcome counters in process. Handy for /stats and tests.
type Memory struct {
	mu       sync.Mutex
	total    int64
	outcomes map[string]int64
}

func NewMemory() *Memory {
	return &Memory{outcomes: make(map[string]int64)}
}

func (m *Memory) Record(_ context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total++
	m.outcomes[ev.Outcome]++
	return nil
}

func (m *Memory) Total() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

func (m *Memory) Outcomes() map[string]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64, len(m.outcomes))
	for k, v := range m.outcomes {
		out[k] = v
	}
	return out
}

func (m *Memory) Close() error { return nil }
