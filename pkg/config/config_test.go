package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-ai/parley/pkg/types"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	store, err := NewFileStore(path)
	require.NoError(t, err)

	require.NoError(t, store.SetSection("limits", map[string]interface{}{
		"subscriber_buffer": 32,
	}))
	require.NoError(t, store.Save())

	store2, err := NewFileStore(path)
	require.NoError(t, err)
	data, err := store2.GetSection("limits")
	require.NoError(t, err)
	assert.EqualValues(t, 32, data["subscriber_buffer"])
}

func TestFileStoreMissingFileIsEmpty(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)

	data, err := store.GetSection("anything")
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestFileStoreRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := NewFileStore(path)
	assert.Error(t, err)
}

func TestManagerLoadSaveSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	store, err := NewFileStore(path)
	require.NoError(t, err)

	m := NewManager(store)
	limits := NewLimitsSection()
	require.NoError(t, m.RegisterSection(limits))
	assert.Error(t, m.RegisterSection(NewLimitsSection()), "duplicate section id")

	require.NoError(t, m.LoadAll())
	require.NoError(t, m.SaveAll())

	// A second manager over the same file sees the saved state.
	store2, err := NewFileStore(path)
	require.NoError(t, err)
	m2 := NewManager(store2)
	limits2 := NewLimitsSection()
	require.NoError(t, m2.RegisterSection(limits2))
	require.NoError(t, m2.LoadAll())
	assert.Equal(t, limits.StreamTimeout(), limits2.StreamTimeout())
}

func TestProvidersSectionDefaultsAndMeta(t *testing.T) {
	s := NewProvidersSection()

	entry, ok := s.Get(types.ProviderAnthropic)
	require.True(t, ok)
	assert.Equal(t, "ANTHROPIC_API_KEY", entry.AuthRef)

	meta, err := s.Meta(types.ProviderAnthropic, "")
	require.NoError(t, err)
	assert.Equal(t, entry.DefaultModel, meta.ModelID)

	meta, err = s.Meta(types.ProviderAnthropic, "claude-haiku-4-5")
	require.NoError(t, err)
	assert.Equal(t, "claude-haiku-4-5", meta.ModelID)
}

func TestProvidersSectionSetData(t *testing.T) {
	s := NewProvidersSection()
	require.NoError(t, s.SetData(map[string]interface{}{
		"openai": map[string]interface{}{
			"base_url":      "http://localhost:11434/v1",
			"auth_ref":      "LOCAL_KEY",
			"default_model": "llama3",
		},
	}))

	entry, ok := s.Get(types.ProviderOpenAI)
	require.True(t, ok)
	assert.Equal(t, "http://localhost:11434/v1", entry.BaseURL)
	assert.Equal(t, "llama3", entry.DefaultModel)

	// Other providers keep their defaults.
	entry, ok = s.Get(types.ProviderGemini)
	require.True(t, ok)
	assert.Equal(t, "GEMINI_API_KEY", entry.AuthRef)

	assert.NoError(t, s.Validate())
}

func TestProvidersSectionValidateRejectsUnknown(t *testing.T) {
	s := NewProvidersSection()
	require.NoError(t, s.SetData(map[string]interface{}{
		"llamacpp": map[string]interface{}{"auth_ref": "X"},
	}))
	assert.ErrorIs(t, s.Validate(), types.ErrInvalidProvider)
}

func TestLimitsSectionSetDataAndValidate(t *testing.T) {
	s := NewLimitsSection()
	require.NoError(t, s.SetData(map[string]interface{}{
		"stream_timeout_seconds": float64(90),
		"subscriber_buffer":      float64(8),
		"max_tool_output_bytes":  float64(1024),
		"idle_ttl_minutes":       float64(10),
	}))

	assert.Equal(t, 90*time.Second, s.StreamTimeout())
	assert.Equal(t, 8, s.SubscriberBuffer())
	assert.Equal(t, 1024, s.MaxToolOutputBytes())
	assert.Equal(t, 10*time.Minute, s.IdleTTL())
	assert.NoError(t, s.Validate())

	require.NoError(t, s.SetData(map[string]interface{}{"subscriber_buffer": float64(0)}))
	assert.Error(t, s.Validate())
}

func TestModelAllowlist(t *testing.T) {
	s := NewModelAllowlistSection()

	// Empty allowlist allows everything.
	assert.True(t, s.Allowed("openai", "gpt-4o"))

	require.NoError(t, s.SetPatterns([]string{"openai/gpt-4*", "anthropic/claude-*"}))
	assert.True(t, s.Allowed("openai", "gpt-4o"))
	assert.True(t, s.Allowed("anthropic", "claude-sonnet-4-5"))
	assert.False(t, s.Allowed("gemini", "gemini-2.0-flash"))
	assert.False(t, s.Allowed("openai", "o3-mini"))

	assert.Error(t, s.SetPatterns([]string{"[bad"}))
}

func TestModelAllowlistSetData(t *testing.T) {
	s := NewModelAllowlistSection()
	require.NoError(t, s.SetData(map[string]interface{}{
		"patterns": []interface{}{"gemini/*"},
	}))
	assert.True(t, s.Allowed("gemini", "gemini-2.0-flash"))
	assert.False(t, s.Allowed("openai", "gpt-4o"))

	assert.Error(t, s.SetData(map[string]interface{}{"patterns": "not-a-list"}))
}
