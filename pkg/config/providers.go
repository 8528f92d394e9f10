package config

import (
	"fmt"
	"sync"

	"github.com/parley-ai/parley/pkg/types"
)

// SectionIDProviders is the identifier for the providers section.
const SectionIDProviders = "providers"

// ProviderEntry is the stored configuration of one provider.
type ProviderEntry struct {
	BaseURL      string `json:"base_url,omitempty"`
	AuthRef      string `json:"auth_ref"`
	DefaultModel string `json:"default_model"`
}

// ProvidersSection holds per-provider endpoints, credential references, and
// default models. Secrets never live here: AuthRef names a credential for the
// resolver, typically an environment variable.
type ProvidersSection struct {
	mu      sync.RWMutex
	entries map[string]ProviderEntry
}

// NewProvidersSection creates the section with sensible defaults for every
// supported provider.
func NewProvidersSection() *ProvidersSection {
	return &ProvidersSection{
		entries: map[string]ProviderEntry{
			string(types.ProviderOpenAI):    {AuthRef: "OPENAI_API_KEY", DefaultModel: "gpt-4o"},
			string(types.ProviderAnthropic): {AuthRef: "ANTHROPIC_API_KEY", DefaultModel: "claude-sonnet-4-5"},
			string(types.ProviderGemini):    {AuthRef: "GEMINI_API_KEY", DefaultModel: "gemini-2.0-flash"},
		},
	}
}

// ID returns the section identifier.
func (s *ProvidersSection) ID() string {
	return SectionIDProviders
}

// Data returns the current configuration data.
func (s *ProvidersSection) Data() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]interface{}, len(s.entries))
	for name, e := range s.entries {
		out[name] = map[string]interface{}{
			"base_url":      e.BaseURL,
			"auth_ref":      e.AuthRef,
			"default_model": e.DefaultModel,
		}
	}
	return out
}

// SetData updates the configuration from the provided data. Providers missing
// from data keep their defaults.
func (s *ProvidersSection) SetData(data map[string]interface{}) error {
	if data == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for name, raw := range data {
		m, ok := raw.(map[string]interface{})
		if !ok {
			return fmt.Errorf("invalid provider entry %q: expected object, got %T", name, raw)
		}
		entry := s.entries[name]
		if v, ok := m["base_url"].(string); ok {
			entry.BaseURL = v
		}
		if v, ok := m["auth_ref"].(string); ok {
			entry.AuthRef = v
		}
		if v, ok := m["default_model"].(string); ok {
			entry.DefaultModel = v
		}
		s.entries[name] = entry
	}
	return nil
}

// Validate checks that every configured provider is a known one.
func (s *ProvidersSection) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for name := range s.entries {
		if _, err := types.ParseProvider(name); err != nil {
			return fmt.Errorf("provider %q: %w", name, err)
		}
	}
	return nil
}

// Get returns the entry for a provider.
func (s *ProvidersSection) Get(p types.Provider) (ProviderEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[string(p)]
	return e, ok
}

// Set replaces the entry for a provider.
func (s *ProvidersSection) Set(p types.Provider, e ProviderEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[string(p)] = e
}

// Meta builds a ProviderMeta for a provider, using the entry's default model
// when modelID is empty.
func (s *ProvidersSection) Meta(p types.Provider, modelID string) (types.ProviderMeta, error) {
	e, ok := s.Get(p)
	if !ok {
		return types.ProviderMeta{}, fmt.Errorf("provider %q is not configured", p)
	}
	if modelID == "" {
		modelID = e.DefaultModel
	}
	return types.NewProviderMeta(string(p), modelID, e.AuthRef)
}
