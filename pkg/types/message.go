package types

// Role is the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is one function invocation requested by the model. ArgumentsJSON
// is the raw JSON-encoded argument payload, kept verbatim and never partially
// parsed, so provider-specific argument shapes survive round trips exactly.
type ToolCall struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ArgumentsJSON string `json:"arguments_json"`
}

// PartType tags the variant of a message Part.
type PartType string

const (
	// PartText is a plain text segment.
	PartText PartType = "text"

	// PartFunctionCall records a function invocation the assistant requested.
	PartFunctionCall PartType = "function_call"

	// PartFunctionCallOutput records the result returned for a prior call.
	PartFunctionCallOutput PartType = "function_call_output"
)

// Part is one element of a message body. Exactly the fields for its Type are
// populated: Text for PartText; CallID, Name, and ArgumentsJSON for
// PartFunctionCall; CallID and Output for PartFunctionCallOutput.
type Part struct {
	Type PartType `json:"type"`

	Text string `json:"text,omitempty"`

	CallID        string `json:"call_id,omitempty"`
	Name          string `json:"name,omitempty"`
	ArgumentsJSON string `json:"arguments_json,omitempty"`

	Output string `json:"output,omitempty"`
}

// TextPart creates a plain text part.
func TextPart(text string) Part {
	return Part{Type: PartText, Text: text}
}

// FunctionCallPart creates a part recording a requested function call.
func FunctionCallPart(callID, name, argumentsJSON string) Part {
	return Part{Type: PartFunctionCall, CallID: callID, Name: name, ArgumentsJSON: argumentsJSON}
}

// FunctionOutputPart creates a part recording a function call's output.
func FunctionOutputPart(callID, output string) Part {
	return Part{Type: PartFunctionCallOutput, CallID: callID, Output: output}
}

// Message is one entry in a conversation, owned by the Turn that contains it.
type Message struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// NewSystemMessage creates a single-text system message.
func NewSystemMessage(text string) Message {
	return Message{Role: RoleSystem, Parts: []Part{TextPart(text)}}
}

// NewUserMessage creates a single-text user message.
func NewUserMessage(text string) Message {
	return Message{Role: RoleUser, Parts: []Part{TextPart(text)}}
}

// NewAssistantMessage creates a single-text assistant message.
func NewAssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Parts: []Part{TextPart(text)}}
}

// Text returns the concatenated plain text of all text parts.
func (m Message) Text() string {
	var b []byte
	for _, p := range m.Parts {
		if p.Type == PartText && p.Text != "" {
			b = append(b, p.Text...)
		}
	}
	return string(b)
}

// ToolCalls returns the function calls recorded in this message, in order.
func (m Message) ToolCalls() []ToolCall {
	var calls []ToolCall
	for _, p := range m.Parts {
		if p.Type == PartFunctionCall {
			calls = append(calls, ToolCall{ID: p.CallID, Name: p.Name, ArgumentsJSON: p.ArgumentsJSON})
		}
	}
	return calls
}
