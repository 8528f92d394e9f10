package types

// Turn is one complete exchange at a given index in a thread: the messages
// that were added (user input, assistant output, tool calls and their
// outputs), the stream events that produced them, and the provider
// configuration and usage for the exchange.
//
// Turns are append-only. (ThreadID, TurnIndex) is unique and TurnIndex is
// contiguous from 0 within a thread; editing history means forking a new
// thread, never mutating a past turn.
type Turn struct {
	ThreadID string `json:"thread_id"`

	// ParentThreadID and ForkFromTurnIndex record fork lineage. For a root
	// thread ParentThreadID is empty and ForkFromTurnIndex is 0. For a fork,
	// turns [0, ForkFromTurnIndex) are read from the parent.
	ParentThreadID    string `json:"parent_thread_id,omitempty"`
	ForkFromTurnIndex int    `json:"fork_from_turn_index,omitempty"`

	TurnIndex int    `json:"turn_index"`
	Label     string `json:"label,omitempty"`

	Messages []Message     `json:"messages"`
	Events   []StreamEvent `json:"events,omitempty"`

	Meta  ProviderMeta `json:"meta"`
	Usage Usage        `json:"usage"`
}

// AssistantText returns the concatenated assistant text of the turn.
func (t Turn) AssistantText() string {
	var b []byte
	for _, m := range t.Messages {
		if m.Role == RoleAssistant {
			b = append(b, m.Text()...)
		}
	}
	return string(b)
}
