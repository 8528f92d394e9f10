package types

import "encoding/json"

// StreamEventType tags the variant of a StreamEvent.
type StreamEventType string

const (
	// EventContent carries an incremental text delta.
	EventContent StreamEventType = "content"

	// EventFunctionCall carries one or more fully assembled tool calls.
	EventFunctionCall StreamEventType = "function_call"

	// EventUsage carries token usage reported by the provider.
	EventUsage StreamEventType = "usage"

	// EventError terminates the stream with a failure reason.
	EventError StreamEventType = "error"

	// EventDone terminates the stream successfully.
	EventDone StreamEventType = "done"
)

// StreamEvent is one canonical event produced while a generation streams.
// Exactly one EventDone or EventError terminates a stream; no events follow
// it. Raw retains the untranslated provider payload for diagnostics.
type StreamEvent struct {
	Type StreamEventType `json:"type"`

	// Delta is the text fragment for EventContent.
	Delta string `json:"delta,omitempty"`

	// Calls holds assembled tool calls for EventFunctionCall.
	Calls []ToolCall `json:"calls,omitempty"`

	// Usage holds token accounting for EventUsage.
	Usage *Usage `json:"usage,omitempty"`

	// Message is the human-readable reason for EventError.
	Message string `json:"message,omitempty"`

	Raw json.RawMessage `json:"raw,omitempty"`
}

// NewContentEvent creates a content delta event.
func NewContentEvent(delta string) StreamEvent {
	return StreamEvent{Type: EventContent, Delta: delta}
}

// NewFunctionCallEvent creates an event carrying assembled tool calls.
func NewFunctionCallEvent(calls ...ToolCall) StreamEvent {
	return StreamEvent{Type: EventFunctionCall, Calls: calls}
}

// NewUsageEvent creates a usage event.
func NewUsageEvent(usage Usage) StreamEvent {
	return StreamEvent{Type: EventUsage, Usage: &usage}
}

// NewErrorEvent creates a terminal error event.
func NewErrorEvent(message string) StreamEvent {
	return StreamEvent{Type: EventError, Message: message}
}

// NewDoneEvent creates a terminal completion event.
func NewDoneEvent() StreamEvent {
	return StreamEvent{Type: EventDone}
}

// IsTerminal reports whether this event ends the stream.
func (e StreamEvent) IsTerminal() bool {
	return e.Type == EventDone || e.Type == EventError
}
