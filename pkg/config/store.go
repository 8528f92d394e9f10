package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Store persists section configuration data.
type Store interface {
	Load() error
	Save() error
	GetSection(sectionID string) (map[string]interface{}, error)
	SetSection(sectionID string, data map[string]interface{}) error
}

// FileStore implements Store over a single JSON file with one object per
// section.
type FileStore struct {
	path    string
	version string

	mu   sync.RWMutex
	data map[string]map[string]interface{}
}

// NewFileStore creates a file-based store. An empty path defaults to
// ~/.parley/config.json. A missing file is not an error; it appears on the
// first Save.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, ".parley", "config.json")
	}

	s := &FileStore{
		path:    path,
		version: "1.0",
		data:    make(map[string]map[string]interface{}),
	}
	if err := s.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	return s, nil
}

type fileLayout struct {
	Version  string                            `json:"version"`
	Sections map[string]map[string]interface{} `json:"sections"`
}

// Load reads the configuration file. A nonexistent file loads as empty.
func (s *FileStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.data = make(map[string]map[string]interface{})
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var layout fileLayout
	if err := json.Unmarshal(raw, &layout); err != nil {
		return fmt.Errorf("failed to decode config file: %w", err)
	}
	if layout.Version != "" {
		s.version = layout.Version
	}
	s.data = layout.Sections
	if s.data == nil {
		s.data = make(map[string]map[string]interface{})
	}
	return nil
}

// Save writes the configuration atomically: temp file then rename.
func (s *FileStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	raw, err := json.MarshalIndent(fileLayout{Version: s.version, Sections: s.data}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0600); err != nil {
		return fmt.Errorf("failed to write temp config file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename temp config file: %w", err)
	}
	return nil
}

// GetSection returns a copy of one section's data; an unknown section returns
// an empty map.
func (s *FileStore) GetSection(sectionID string) (map[string]interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]interface{}, len(s.data[sectionID]))
	for k, v := range s.data[sectionID] {
		out[k] = v
	}
	return out, nil
}

// SetSection replaces one section's data.
func (s *FileStore) SetSection(sectionID string, data map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := make(map[string]interface{}, len(data))
	for k, v := range data {
		cp[k] = v
	}
	s.data[sectionID] = cp
	return nil
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}
