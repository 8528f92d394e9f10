package config

import (
	"sync"
)

var (
	globalManager *Manager
	globalMu      sync.Mutex
)

// Initialize creates the global configuration manager with the default
// sections and loads it from configPath (empty = ~/.parley/config.json).
// Called once at application startup.
func Initialize(configPath string) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	store, err := NewFileStore(configPath)
	if err != nil {
		return err
	}

	manager := NewManager(store)
	for _, s := range []Section{
		NewProvidersSection(),
		NewLimitsSection(),
		NewModelAllowlistSection(),
	} {
		if err := manager.RegisterSection(s); err != nil {
			return err
		}
	}

	if err := manager.LoadAll(); err != nil {
		return err
	}

	globalManager = manager
	return nil
}

// Global returns the global configuration manager. Panics if Initialize has
// not been called.
func Global() *Manager {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalManager == nil {
		panic("config not initialized: call config.Initialize first")
	}
	return globalManager
}

// IsInitialized reports whether Initialize has completed.
func IsInitialized() bool {
	globalMu.Lock()
	defer globalMu.Unlock()
	return globalManager != nil
}

// GetProviders returns the providers section, or nil before initialization.
func GetProviders() *ProvidersSection {
	return sectionAs[*ProvidersSection](SectionIDProviders)
}

// GetLimits returns the limits section, or nil before initialization.
func GetLimits() *LimitsSection {
	return sectionAs[*LimitsSection](SectionIDLimits)
}

// GetModelAllowlist returns the model allowlist section, or nil before
// initialization.
func GetModelAllowlist() *ModelAllowlistSection {
	return sectionAs[*ModelAllowlistSection](SectionIDModelAllowlist)
}

func sectionAs[T Section](id string) T {
	var zero T
	if !IsInitialized() {
		return zero
	}
	s, ok := Global().GetSection(id)
	if !ok {
		return zero
	}
	typed, ok := s.(T)
	if !ok {
		return zero
	}
	return typed
}
