package skill

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu     sync.RWMutex
	skills map[string]Skill
	now    func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{skills: make(map[string]Skill), now: time.Now}
}

func (m *MemoryStore) Put(_ context.Context, s Skill) error {
	if err := Validate(&s); err != nil {
		return err
	}
	s.UpdatedAt = m.now().UTC()
	m.mu.Lock()
	m.skills[s.Name] = s
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, name string) (*Skill, error) {
	m.mu.RLock()
	s, ok := m.skills[name]
	m.mu.RUnlock()
	if !ok {
		return nil, notFound(name)
	}
	return &s, nil
}

func (m *MemoryStore) Delete(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.skills[name]
	delete(m.skills, name)
	return ok, nil
}

func (m *MemoryStore) Exists(_ context.Context, name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.skills[name]
	return ok, nil
}

// List returns the stored names, sorted.
func (m *MemoryStore) List(_ context.Context) ([]string, error) {
	m.mu.RLock()
	names := make([]string, 0, len(m.skills))
	for name := range m.skills {
		names = append(names, name)
	}
	m.mu.RUnlock()
	sort.Strings(names)
	return names, nil
}
