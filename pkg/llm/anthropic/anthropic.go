// Package anthropic implements the translator adapter for the Anthropic
// messages API.
//
// The messages API differs from the canonical form in three ways the adapter
// has to bridge: the system prompt is a top-level field rather than a
// message, tool calls are tool_use content blocks inside assistant messages,
// and tool outputs are tool_result blocks that must appear inside a user
// message.
package anthropic

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/parley-ai/parley/pkg/llm"
	"github.com/parley-ai/parley/pkg/types"
)

const (
	// DefaultBaseURL is the default Anthropic API base URL.
	DefaultBaseURL = "https://api.anthropic.com"

	// apiVersion is the anthropic-version header value.
	apiVersion = "2023-06-01"

	// defaultMaxTokens is used when no explicit output budget is configured;
	// the messages API requires max_tokens on every request.
	defaultMaxTokens = 4096
)

// Adapter translates canonical turns to and from the messages wire format.
type Adapter struct {
	baseURL   string
	maxTokens int
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithBaseURL sets a custom default base URL.
func WithBaseURL(baseURL string) Option {
	return func(a *Adapter) {
		a.baseURL = baseURL
	}
}

// WithMaxTokens sets the max_tokens sent on every request.
func WithMaxTokens(n int) Option {
	return func(a *Adapter) {
		a.maxTokens = n
	}
}

// New creates an Anthropic adapter.
func New(opts ...Option) *Adapter {
	a := &Adapter{baseURL: DefaultBaseURL, maxTokens: defaultMaxTokens}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Provider implements llm.Adapter.
func (a *Adapter) Provider() types.Provider {
	return types.ProviderAnthropic
}

// contentBlock is the wire shape of a message content element.
type contentBlock struct {
	Type string `json:"type"`

	Text string `json:"text,omitempty"`

	// tool_use fields
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result fields
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
}

type wireMessage struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

// BuildRequest assembles a streaming messages request. System messages
// anywhere in the canonical history are concatenated into the top-level
// system field; everything else is replayed in order.
func (a *Adapter) BuildRequest(history []types.Turn, next types.Message, meta types.ProviderMeta, cred llm.Credential) (*llm.Request, error) {
	var canonical []types.Message
	for _, turn := range history {
		canonical = append(canonical, turn.Messages...)
	}
	canonical = append(canonical, next)

	var system string
	var messages []wireMessage

	for _, msg := range canonical {
		if msg.Role == types.RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += msg.Text()
			continue
		}

		blocks, role, err := convertMessage(msg)
		if err != nil {
			return nil, err
		}
		if len(blocks) == 0 {
			continue
		}
		messages = append(messages, wireMessage{Role: role, Content: blocks})
	}

	reqBody := map[string]interface{}{
		"model":      meta.ModelID,
		"messages":   messages,
		"max_tokens": a.maxTokens,
		"stream":     true,
	}
	if system != "" {
		reqBody["system"] = system
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	baseURL := a.baseURL
	if cred.BaseURL != "" {
		baseURL = cred.BaseURL
	}

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	headers.Set("X-Api-Key", cred.APIKey)
	headers.Set("Anthropic-Version", apiVersion)
	headers.Set("Accept", "text/event-stream")

	return &llm.Request{
		Method:  http.MethodPost,
		URL:     baseURL + "/v1/messages",
		Headers: headers,
		Body:    body,
	}, nil
}

// convertMessage maps one canonical message to wire content blocks and the
// wire role carrying them. Tool outputs travel as tool_result blocks in a
// user message; the canonical tool role maps accordingly.
func convertMessage(msg types.Message) ([]contentBlock, string, error) {
	role := "user"
	if msg.Role == types.RoleAssistant {
		role = "assistant"
	}

	var blocks []contentBlock
	for _, part := range msg.Parts {
		switch part.Type {
		case types.PartText:
			if part.Text == "" {
				continue
			}
			blocks = append(blocks, contentBlock{Type: "text", Text: part.Text})
		case types.PartFunctionCall:
			input, err := argumentsObject(part.ArgumentsJSON)
			if err != nil {
				return nil, "", err
			}
			blocks = append(blocks, contentBlock{Type: "tool_use", ID: part.CallID, Name: part.Name, Input: input})
			role = "assistant"
		case types.PartFunctionCallOutput:
			blocks = append(blocks, contentBlock{Type: "tool_result", ToolUseID: part.CallID, Content: part.Output})
			role = "user"
		default:
			return nil, "", fmt.Errorf("%w: part type %q has no Anthropic mapping", llm.ErrUnsupportedContent, part.Type)
		}
	}
	return blocks, role, nil
}

// argumentsObject validates the raw argument payload; the messages API
// requires tool_use input to be a JSON object.
func argumentsObject(argumentsJSON string) (json.RawMessage, error) {
	if argumentsJSON == "" {
		return json.RawMessage("{}"), nil
	}
	if !json.Valid([]byte(argumentsJSON)) {
		return nil, fmt.Errorf("%w: tool arguments are not valid JSON", llm.ErrTranslationFailure)
	}
	return json.RawMessage(argumentsJSON), nil
}

// TranslateToolCall implements llm.Adapter.
func (a *Adapter) TranslateToolCall(tc types.ToolCall) (json.RawMessage, error) {
	input, err := argumentsObject(tc.ArgumentsJSON)
	if err != nil {
		return nil, err
	}
	return json.Marshal(contentBlock{Type: "tool_use", ID: tc.ID, Name: tc.Name, Input: input})
}

// ParseToolCall is the inverse of TranslateToolCall.
func (a *Adapter) ParseToolCall(raw json.RawMessage) (types.ToolCall, error) {
	var b contentBlock
	if err := json.Unmarshal(raw, &b); err != nil {
		return types.ToolCall{}, fmt.Errorf("%w: %v", llm.ErrTranslationFailure, err)
	}
	if b.Type != "tool_use" {
		return types.ToolCall{}, fmt.Errorf("%w: expected tool_use block, got %q", llm.ErrTranslationFailure, b.Type)
	}
	return types.ToolCall{ID: b.ID, Name: b.Name, ArgumentsJSON: string(b.Input)}, nil
}

// TranslateToolOutput implements llm.Adapter.
func (a *Adapter) TranslateToolOutput(callID, output string) (json.RawMessage, error) {
	return json.Marshal(contentBlock{Type: "tool_result", ToolUseID: callID, Content: output})
}

// OpenStream implements llm.Adapter.
func (a *Adapter) OpenStream(body io.ReadCloser) llm.Stream {
	return newStream(body)
}
