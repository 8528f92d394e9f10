// Package openai implements the translator adapter for the OpenAI chat
// completions API and compatible endpoints (Azure, local models, proxies).
package openai

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/openai/openai-go"

	"github.com/parley-ai/parley/pkg/llm"
	"github.com/parley-ai/parley/pkg/types"
)

const (
	// DefaultBaseURL is the default OpenAI API base URL.
	DefaultBaseURL = "https://api.openai.com/v1"
)

// Adapter translates canonical turns to and from the chat completions wire
// format. It is stateless; per-stream state lives in the Stream.
type Adapter struct {
	baseURL string
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithBaseURL sets a custom default base URL for OpenAI-compatible APIs.
// A credential's BaseURL still takes precedence per request.
func WithBaseURL(baseURL string) Option {
	return func(a *Adapter) {
		a.baseURL = baseURL
	}
}

// New creates an OpenAI adapter.
func New(opts ...Option) *Adapter {
	a := &Adapter{baseURL: DefaultBaseURL}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Provider implements llm.Adapter.
func (a *Adapter) Provider() types.Provider {
	return types.ProviderOpenAI
}

// BuildRequest assembles a streaming chat completions request, replaying the
// full canonical history (including tool calls and outputs that originated
// under other providers) as OpenAI messages in original order.
func (a *Adapter) BuildRequest(history []types.Turn, next types.Message, meta types.ProviderMeta, cred llm.Credential) (*llm.Request, error) {
	var canonical []types.Message
	for _, turn := range history {
		canonical = append(canonical, turn.Messages...)
	}
	canonical = append(canonical, next)

	wireMessages, err := convertMessages(canonical)
	if err != nil {
		return nil, err
	}

	reqBody := map[string]interface{}{
		"model":          meta.ModelID,
		"messages":       wireMessages,
		"stream":         true,
		"stream_options": map[string]interface{}{"include_usage": true},
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
	headers.Set("Authorization", "Bearer "+cred.APIKey)
	headers.Set("Accept", "text/event-stream")

	return &llm.Request{
		Method:  http.MethodPost,
		URL:     baseURL + "/chat/completions",
		Headers: headers,
		Body:    body,
	}, nil
}

// convertMessages maps canonical messages to OpenAI's message param union.
// Function call outputs become separate role:"tool" messages, as the API
// requires, regardless of how they were grouped canonically.
func convertMessages(messages []types.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))

	for _, msg := range messages {
		var (
			text    string
			calls   []openai.ChatCompletionMessageToolCallParam
			outputs []types.Part
		)
		for _, part := range msg.Parts {
			switch part.Type {
			case types.PartText:
				text += part.Text
			case types.PartFunctionCall:
				calls = append(calls, openai.ChatCompletionMessageToolCallParam{
					ID: part.CallID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      part.Name,
						Arguments: part.ArgumentsJSON,
					},
				})
			case types.PartFunctionCallOutput:
				outputs = append(outputs, part)
			default:
				return nil, fmt.Errorf("%w: part type %q has no OpenAI mapping", llm.ErrUnsupportedContent, part.Type)
			}
		}

		switch {
		case len(calls) > 0:
			asst := openai.ChatCompletionAssistantMessageParam{ToolCalls: calls}
			if text != "" {
				asst.Content.OfString = openai.String(text)
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &asst})
		case len(outputs) == 0:
			switch msg.Role {
			case types.RoleSystem:
				out = append(out, openai.SystemMessage(text))
			case types.RoleUser:
				out = append(out, openai.UserMessage(text))
			case types.RoleAssistant:
				out = append(out, openai.AssistantMessage(text))
			case types.RoleTool:
				return nil, fmt.Errorf("%w: tool message without function output", llm.ErrUnsupportedContent)
			default:
				return nil, fmt.Errorf("%w: role %q has no OpenAI mapping", llm.ErrUnsupportedContent, msg.Role)
			}
		}

		for _, part := range outputs {
			out = append(out, openai.ToolMessage(part.Output, part.CallID))
		}
	}

	return out, nil
}

// wireToolCall is the assistant-side function call shape used inside
// tool_calls arrays.
type wireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

// TranslateToolCall implements llm.Adapter.
func (a *Adapter) TranslateToolCall(tc types.ToolCall) (json.RawMessage, error) {
	var w wireToolCall
	w.ID = tc.ID
	w.Type = "function"
	w.Function.Name = tc.Name
	w.Function.Arguments = tc.ArgumentsJSON
	return json.Marshal(w)
}

// ParseToolCall is the inverse of TranslateToolCall.
func (a *Adapter) ParseToolCall(raw json.RawMessage) (types.ToolCall, error) {
	var w wireToolCall
	if err := json.Unmarshal(raw, &w); err != nil {
		return types.ToolCall{}, fmt.Errorf("%w: %v", llm.ErrTranslationFailure, err)
	}
	return types.ToolCall{ID: w.ID, Name: w.Function.Name, ArgumentsJSON: w.Function.Arguments}, nil
}

// TranslateToolOutput implements llm.Adapter.
func (a *Adapter) TranslateToolOutput(callID, output string) (json.RawMessage, error) {
	return json.Marshal(map[string]string{
		"role":         "tool",
		"tool_call_id": callID,
		"content":      output,
	})
}

// OpenStream implements llm.Adapter.
func (a *Adapter) OpenStream(body io.ReadCloser) llm.Stream {
	return newStream(body)
}
