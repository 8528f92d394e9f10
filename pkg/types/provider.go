// Package types defines the canonical, provider-agnostic representation of a
// conversation: messages, content parts, tool calls, usage, stream events, and
// turns. Every provider's wire format is translated to and from these types by
// the adapters in pkg/llm; everything downstream (history, sessions, UI)
// speaks only this form.
//
// The constructors in this package are the single normalization point. Values
// that passed through NewProviderMeta or NewUsage are trusted by every other
// component and are never re-validated.
package types

import (
	"errors"
	"fmt"
)

// Provider identifies an LLM backend family.
type Provider string

const (
	// ProviderOpenAI covers the OpenAI chat completions API and compatibles.
	ProviderOpenAI Provider = "openai"

	// ProviderAnthropic covers the Anthropic messages API.
	ProviderAnthropic Provider = "anthropic"

	// ProviderGemini covers the Google Gemini generateContent API.
	ProviderGemini Provider = "gemini"
)

// ErrInvalidProvider is returned when a provider string is not in the
// allowlist. Unknown providers are rejected, never silently coerced.
var ErrInvalidProvider = errors.New("invalid provider")

// ParseProvider validates a provider string against the allowlist.
func ParseProvider(s string) (Provider, error) {
	switch Provider(s) {
	case ProviderOpenAI, ProviderAnthropic, ProviderGemini:
		return Provider(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidProvider, s)
}

// ProviderMeta identifies the provider, model, and credential reference a
// session or turn was configured with. AuthRef is an opaque id resolved to a
// transport credential by the caller's credential resolver; the actual secret
// never lives in canonical data.
type ProviderMeta struct {
	Provider Provider `json:"provider"`
	ModelID  string   `json:"model_id"`
	AuthRef  string   `json:"auth_ref,omitempty"`
}

// NewProviderMeta validates the provider string and assembles a ProviderMeta.
// Returns ErrInvalidProvider for providers outside the allowlist.
func NewProviderMeta(provider, modelID, authRef string) (ProviderMeta, error) {
	p, err := ParseProvider(provider)
	if err != nil {
		return ProviderMeta{}, err
	}
	if modelID == "" {
		return ProviderMeta{}, fmt.Errorf("%w: empty model id", ErrInvalidProvider)
	}
	return ProviderMeta{Provider: p, ModelID: modelID, AuthRef: authRef}, nil
}
