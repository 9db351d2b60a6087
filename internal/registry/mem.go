package registry

import (
	"context"
	"sync"
	"time"
)

// MemRegistry is an in-memory Registry used by unit tests.
type MemRegistry struct {
	mu   sync.Mutex
	data map[string]map[string]time.Time // project -> shard -> last processed
}

func NewMemRegistry() *MemRegistry {
	return &MemRegistry{data: make(map[string]map[string]time.Time)}
}

func (m *MemRegistry) LoadAndConsolidateShardLastProcessed(_ context.Context, project string) (map[string]time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]time.Time)
	for shard, ts := range m.data[project] {
		out[shard] = ts
	}
	return out, nil
}

func (m *MemRegistry) UpdateShardLastProcessed(_ context.Context, project, shard string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[project] == nil {
		m.data[project] = make(map[string]time.Time)
	}
	if existing, ok := m.data[project][shard]; !ok || now.After(existing) {
		m.data[project][shard] = now
	}
	return nil
}
