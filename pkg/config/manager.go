// Package config manages persistent application configuration as named
// sections over a JSON file store. Each section owns its schema and
// validation; the manager handles registration, load, and save.
package config

import (
	"fmt"
	"sync"
)

// Section is one named unit of configuration.
type Section interface {
	// ID returns the stable section identifier used as the storage key.
	ID() string

	// Data returns the section's current data in storable form.
	Data() map[string]interface{}

	// SetData replaces the section's state from stored data. Unknown keys
	// are ignored so older files keep loading.
	SetData(data map[string]interface{}) error

	// Validate checks the section's current state.
	Validate() error
}

// Manager coordinates sections over a Store.
type Manager struct {
	store Store

	mu       sync.RWMutex
	sections map[string]Section
}

// NewManager creates a manager over the given store.
func NewManager(store Store) *Manager {
	return &Manager{
		store:    store,
		sections: make(map[string]Section),
	}
}

// RegisterSection adds a section. Duplicate ids are an error.
func (m *Manager) RegisterSection(s Section) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sections[s.ID()]; exists {
		return fmt.Errorf("section %q is already registered", s.ID())
	}
	m.sections[s.ID()] = s
	return nil
}

// GetSection returns a registered section by id.
func (m *Manager) GetSection(id string) (Section, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sections[id]
	return s, ok
}

// LoadAll populates every registered section from the store and validates it.
func (m *Manager) LoadAll() error {
	if err := m.store.Load(); err != nil {
		return err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for id, s := range m.sections {
		data, err := m.store.GetSection(id)
		if err != nil {
			return fmt.Errorf("failed to read section %q: %w", id, err)
		}
		if err := s.SetData(data); err != nil {
			return fmt.Errorf("failed to apply section %q: %w", id, err)
		}
		if err := s.Validate(); err != nil {
			return fmt.Errorf("section %q is invalid: %w", id, err)
		}
	}
	return nil
}

// SaveAll writes every registered section back to the store.
func (m *Manager) SaveAll() error {
	m.mu.RLock()
	for id, s := range m.sections {
		if err := m.store.SetSection(id, s.Data()); err != nil {
			m.mu.RUnlock()
			return fmt.Errorf("failed to stage section %q: %w", id, err)
		}
	}
	m.mu.RUnlock()
	return m.store.Save()
}
