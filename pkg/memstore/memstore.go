// Package memstore implements in-memory registry storage. Nothing
// survives a restart; intended for tests and local development.
package memstore

import (
	"sync"

	"github.com/roguetalk/roguetalk/pkg/registry"
)

// Store keeps identity bindings and positions in memory.
type Store struct {
	mu        sync.Mutex
	keyByName map[string]registry.Key
	nameByKey map[registry.Key]string
	positions map[string]registry.Position
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		keyByName: map[string]registry.Key{},
		nameByKey: map[registry.Key]string{},
		positions: map[string]registry.Position{},
	}
}

func (m *Store) GetKeyByName(name string) (*registry.Key, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if k, ok := m.keyByName[name]; ok {
		return &k, nil
	}
	return nil, nil
}

func (m *Store) GetNameByKey(key registry.Key) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nameByKey[key], nil
}

func (m *Store) Register(name string, key registry.Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if k, ok := m.keyByName[name]; ok && k != key {
		return registry.ErrNameTaken
	}
	if n, ok := m.nameByKey[key]; ok && n != name {
		return registry.ErrKeyBound
	}
	m.keyByName[name] = key
	m.nameByKey[key] = name
	return nil
}

func (m *Store) SavePosition(name string, pos registry.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[name] = pos
	return nil
}

func (m *Store) LoadPosition(name string) (*registry.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.positions[name]; ok {
		return &p, nil
	}
	return nil, nil
}
