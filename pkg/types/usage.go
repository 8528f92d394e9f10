package types

import (
	"errors"
	"fmt"
)

// ErrInvalidUsage is returned by NewUsage for negative token counts.
var ErrInvalidUsage = errors.New("invalid usage")

// Usage contains token accounting for a single turn.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`

	// Estimated is true when the counts were computed client-side because the
	// provider did not report usage for the turn.
	Estimated bool `json:"estimated,omitempty"`
}

// NewUsage validates token counts and computes TotalTokens when the provider
// did not report one (total == 0).
func NewUsage(prompt, completion, total int) (Usage, error) {
	if prompt < 0 || completion < 0 || total < 0 {
		return Usage{}, fmt.Errorf("%w: negative token count (prompt=%d completion=%d total=%d)",
			ErrInvalidUsage, prompt, completion, total)
	}
	if total == 0 {
		total = prompt + completion
	}
	return Usage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: total}, nil
}

// Add accumulates another usage record into u.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
	u.Estimated = u.Estimated || other.Estimated
}
