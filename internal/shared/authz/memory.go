package authz

import (
	"context"
	"sync"
)

// MemoryLevels is the in-memory LevelStore used in development and tests.
type MemoryLevels struct {
	mu     sync.RWMutex
	levels map[string]Role
}

func NewMemoryLevels() *MemoryLevels {
	return &MemoryLevels{levels: make(map[string]Role)}
}

func (m *MemoryLevels) GetLevel(_ context.Context, principal string) (Role, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	role, found := m.levels[principal]
	return role, found, nil
}

func (m *MemoryLevels) SetLevel(_ context.Context, principal string, role Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.levels[principal] = role
	return nil
}

var _ LevelStore = (*MemoryLevels)(nil)
