package config

import (
	"fmt"
	"sync"

	"github.com/gobwas/glob"
)

// SectionIDModelAllowlist is the identifier for the model allowlist section.
const SectionIDModelAllowlist = "model_allowlist"

// ModelAllowlistSection restricts which model ids may be used. Patterns are
// glob-matched against "<provider>/<model>"; an empty pattern list allows
// everything.
type ModelAllowlistSection struct {
	mu       sync.RWMutex
	patterns []string
	compiled []glob.Glob
}

// NewModelAllowlistSection creates the section with no restrictions.
func NewModelAllowlistSection() *ModelAllowlistSection {
	return &ModelAllowlistSection{}
}

// ID returns the section identifier.
func (s *ModelAllowlistSection) ID() string {
	return SectionIDModelAllowlist
}

// Data returns the current configuration data.
func (s *ModelAllowlistSection) Data() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	patterns := make([]interface{}, len(s.patterns))
	for i, p := range s.patterns {
		patterns[i] = p
	}
	return map[string]interface{}{"patterns": patterns}
}

// SetData updates the configuration from the provided data.
func (s *ModelAllowlistSection) SetData(data map[string]interface{}) error {
	if data == nil {
		return nil
	}
	raw, ok := data["patterns"]
	if !ok {
		return nil
	}
	list, ok := raw.([]interface{})
	if !ok {
		return fmt.Errorf("invalid patterns type: expected list, got %T", raw)
	}

	patterns := make([]string, 0, len(list))
	for i, item := range list {
		p, ok := item.(string)
		if !ok {
			return fmt.Errorf("invalid pattern at index %d: expected string, got %T", i, item)
		}
		patterns = append(patterns, p)
	}
	return s.SetPatterns(patterns)
}

// SetPatterns replaces and recompiles the pattern list.
func (s *ModelAllowlistSection) SetPatterns(patterns []string) error {
	compiled := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return fmt.Errorf("invalid allowlist pattern %q: %w", p, err)
		}
		compiled = append(compiled, g)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.patterns = patterns
	s.compiled = compiled
	return nil
}

// Validate recompiles all patterns.
func (s *ModelAllowlistSection) Validate() error {
	s.mu.RLock()
	patterns := s.patterns
	s.mu.RUnlock()

	for _, p := range patterns {
		if _, err := glob.Compile(p); err != nil {
			return fmt.Errorf("invalid allowlist pattern %q: %w", p, err)
		}
	}
	return nil
}

// Allowed reports whether the provider/model pair passes the allowlist.
func (s *ModelAllowlistSection) Allowed(provider, model string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.compiled) == 0 {
		return true
	}
	key := provider + "/" + model
	for _, g := range s.compiled {
		if g.Match(key) {
			return true
		}
	}
	return false
}

// Patterns returns the configured pattern list.
func (s *ModelAllowlistSection) Patterns() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.patterns))
	copy(out, s.patterns)
	return out
}
