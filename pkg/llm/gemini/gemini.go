// Package gemini implements the translator adapter for the Google Gemini
// generateContent API.
//
// Gemini's function-calling idiom has no call ids: calls are matched to
// responses by function name and order. The adapter synthesizes canonical
// call ids when decoding, and resolves canonical call ids back to function
// names (from the replayed history) when encoding, so cross-provider
// continuity survives in both directions.
package gemini

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/parley-ai/parley/pkg/llm"
	"github.com/parley-ai/parley/pkg/types"
)

const (
	// DefaultBaseURL is the default Gemini API base URL.
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
)

// Adapter translates canonical turns to and from the generateContent wire
// format.
type Adapter struct {
	baseURL string
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithBaseURL sets a custom default base URL.
func WithBaseURL(baseURL string) Option {
	return func(a *Adapter) {
		a.baseURL = baseURL
	}
}

// New creates a Gemini adapter.
func New(opts ...Option) *Adapter {
	a := &Adapter{baseURL: DefaultBaseURL}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Provider implements llm.Adapter.
func (a *Adapter) Provider() types.Provider {
	return types.ProviderGemini
}

type wirePart struct {
	Text string `json:"text,omitempty"`

	FunctionCall *struct {
		Name string          `json:"name"`
		Args json.RawMessage `json:"args"`
	} `json:"functionCall,omitempty"`

	FunctionResponse *struct {
		Name     string          `json:"name"`
		Response json.RawMessage `json:"response"`
	} `json:"functionResponse,omitempty"`
}

type wireContent struct {
	Role  string     `json:"role,omitempty"`
	Parts []wirePart `json:"parts"`
}

// BuildRequest assembles a streaming generateContent request, replaying the
// full canonical history. System messages are lifted into systemInstruction;
// assistant turns become role "model".
func (a *Adapter) BuildRequest(history []types.Turn, next types.Message, meta types.ProviderMeta, cred llm.Credential) (*llm.Request, error) {
	var canonical []types.Message
	for _, turn := range history {
		canonical = append(canonical, turn.Messages...)
	}
	canonical = append(canonical, next)

	// Call id -> function name, for functionResponse translation. Calls are
	// recorded as the walk proceeds, so outputs always follow their call.
	callNames := make(map[string]string)

	var system string
	var contents []wireContent

	for _, msg := range canonical {
		if msg.Role == types.RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += msg.Text()
			continue
		}

		content, err := convertMessage(msg, callNames)
		if err != nil {
			return nil, err
		}
		if len(content.Parts) == 0 {
			continue
		}
		contents = append(contents, content)
	}

	reqBody := map[string]interface{}{
		"contents": contents,
	}
	if system != "" {
		reqBody["systemInstruction"] = wireContent{Parts: []wirePart{{Text: system}}}
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
	headers.Set("X-Goog-Api-Key", cred.APIKey)
	headers.Set("Accept", "text/event-stream")

	return &llm.Request{
		Method:  http.MethodPost,
		URL:     fmt.Sprintf("%s/v1beta/models/%s:streamGenerateContent?alt=sse", baseURL, meta.ModelID),
		Headers: headers,
		Body:    body,
	}, nil
}

func convertMessage(msg types.Message, callNames map[string]string) (wireContent, error) {
	role := "user"
	if msg.Role == types.RoleAssistant {
		role = "model"
	}

	var parts []wirePart
	for _, part := range msg.Parts {
		switch part.Type {
		case types.PartText:
			if part.Text == "" {
				continue
			}
			parts = append(parts, wirePart{Text: part.Text})
		case types.PartFunctionCall:
			callNames[part.CallID] = part.Name
			wp, err := functionCallPart(part.Name, part.ArgumentsJSON)
			if err != nil {
				return wireContent{}, err
			}
			parts = append(parts, wp)
			role = "model"
		case types.PartFunctionCallOutput:
			name, ok := callNames[part.CallID]
			if !ok {
				return wireContent{}, fmt.Errorf("%w: function output %q has no preceding call in history", llm.ErrTranslationFailure, part.CallID)
			}
			parts = append(parts, functionResponsePart(name, part.Output))
			role = "user"
		default:
			return wireContent{}, fmt.Errorf("%w: part type %q has no Gemini mapping", llm.ErrUnsupportedContent, part.Type)
		}
	}
	return wireContent{Role: role, Parts: parts}, nil
}

func functionCallPart(name, argumentsJSON string) (wirePart, error) {
	if argumentsJSON == "" {
		argumentsJSON = "{}"
	}
	if !json.Valid([]byte(argumentsJSON)) {
		return wirePart{}, fmt.Errorf("%w: tool arguments are not valid JSON", llm.ErrTranslationFailure)
	}
	var p wirePart
	p.FunctionCall = &struct {
		Name string          `json:"name"`
		Args json.RawMessage `json:"args"`
	}{Name: name, Args: json.RawMessage(argumentsJSON)}
	return p, nil
}

func functionResponsePart(name, output string) wirePart {
	// The API requires response to be an object; non-object outputs are
	// wrapped under an "output" key.
	response := json.RawMessage(output)
	if !isJSONObject(output) {
		wrapped, _ := json.Marshal(map[string]string{"output": output})
		response = wrapped
	}
	var p wirePart
	p.FunctionResponse = &struct {
		Name     string          `json:"name"`
		Response json.RawMessage `json:"response"`
	}{Name: name, Response: response}
	return p
}

func isJSONObject(s string) bool {
	var m map[string]json.RawMessage
	return json.Unmarshal([]byte(s), &m) == nil
}

// TranslateToolCall implements llm.Adapter. The canonical call id is dropped:
// Gemini's wire format has none.
func (a *Adapter) TranslateToolCall(tc types.ToolCall) (json.RawMessage, error) {
	p, err := functionCallPart(tc.Name, tc.ArgumentsJSON)
	if err != nil {
		return nil, err
	}
	return json.Marshal(p)
}

// ParseToolCall is the inverse of TranslateToolCall. The returned call id is
// synthesized from the function name since the wire format carries none.
func (a *Adapter) ParseToolCall(raw json.RawMessage) (types.ToolCall, error) {
	var p wirePart
	if err := json.Unmarshal(raw, &p); err != nil {
		return types.ToolCall{}, fmt.Errorf("%w: %v", llm.ErrTranslationFailure, err)
	}
	if p.FunctionCall == nil {
		return types.ToolCall{}, fmt.Errorf("%w: expected functionCall part", llm.ErrTranslationFailure)
	}
	return types.ToolCall{
		ID:            p.FunctionCall.Name + "-0",
		Name:          p.FunctionCall.Name,
		ArgumentsJSON: string(p.FunctionCall.Args),
	}, nil
}

// TranslateToolOutput implements llm.Adapter. callID must be resolvable to a
// function name by the caller; here the id is used directly as the name when
// it carries one (BuildRequest resolves ids against history instead).
func (a *Adapter) TranslateToolOutput(callID, output string) (json.RawMessage, error) {
	return json.Marshal(functionResponsePart(callID, output))
}

// OpenStream implements llm.Adapter.
func (a *Adapter) OpenStream(body io.ReadCloser) llm.Stream {
	return newStream(body)
}
