package store

import (
	"context"
	"sync"
)

// Memory keeps summaries in process memory.
type Memory struct {
	mu        sync.RWMutex
	summaries map[string]Summary
}

func NewMemory() *Memory {
	return &Memory{summaries: make(map[string]Summary)}
}

func (m *Memory) Save(_ context.Context, s Summary) error {
	s.Best = s.Best.Clone()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries[s.ID] = s
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (Summary, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.summaries[id]
	if !ok {
		return Summary{}, false, nil
	}
	s.Best = s.Best.Clone()
	return s, true, nil
}

func (m *Memory) List(_ context.Context, f Filter) ([]Summary, error) {
	m.mu.RLock()
	out := make([]Summary, 0, len(m.summaries))
	for _, s := range m.summaries {
		if f.match(s) {
			s.Best = s.Best.Clone()
			out = append(out, s)
		}
	}
	m.mu.RUnlock()

	return recent(out, f.Limit), nil
}

func (m *Memory) Close() error {
	return nil
}
