package openai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/parley-ai/parley/pkg/llm"
	"github.com/parley-ai/parley/pkg/llm/sse"
	"github.com/parley-ai/parley/pkg/types"
)

// chunk is the wire shape of one streaming chat completion frame.
type chunk struct {
	Choices []struct {
		Index int `json:"index"`
		Delta struct {
			Role      string `json:"role"`
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// stream decodes the SSE chat completions stream into canonical events.
// Tool call arguments arrive as fragments spread over many frames, keyed by
// tool call index; they are reassembled here and emitted as a single
// function_call event when the provider signals finish_reason "tool_calls".
type stream struct {
	body io.ReadCloser
	dec  *sse.Decoder

	calls  map[int]*types.ToolCall
	closed bool
	done   bool
}

func newStream(body io.ReadCloser) *stream {
	return &stream{
		body:  body,
		dec:   sse.NewDecoder(body),
		calls: make(map[int]*types.ToolCall),
	}
}

func (s *stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.body.Close()
}

func (s *stream) Recv() (types.StreamEvent, error) {
	if s.done {
		return types.StreamEvent{}, io.EOF
	}

	for {
		frame, err := s.dec.Next()
		if err == io.EOF {
			// Some compatible endpoints close the connection without [DONE].
			s.done = true
			return types.NewDoneEvent(), nil
		}
		if err != nil {
			return types.StreamEvent{}, err
		}

		data := bytes.TrimSpace(frame.Data)
		if bytes.Equal(data, []byte("[DONE]")) {
			s.done = true
			ev := types.NewDoneEvent()
			ev.Raw = append(json.RawMessage(nil), data...)
			return ev, nil
		}

		ev, ok, err := s.translate(data)
		if err != nil {
			return types.StreamEvent{}, err
		}
		if !ok {
			continue
		}
		if ev.IsTerminal() {
			s.done = true
		}
		return ev, nil
	}
}

// translate maps one decoded frame to at most one canonical event.
func (s *stream) translate(data []byte) (types.StreamEvent, bool, error) {
	var c chunk
	if err := json.Unmarshal(data, &c); err != nil {
		return types.StreamEvent{}, false, fmt.Errorf("%w: malformed stream chunk: %v", llm.ErrTranslationFailure, err)
	}

	raw := append(json.RawMessage(nil), data...)

	if c.Error != nil {
		ev := types.NewErrorEvent(c.Error.Message)
		ev.Raw = raw
		return ev, true, nil
	}

	if len(c.Choices) == 0 {
		if c.Usage != nil {
			usage, err := types.NewUsage(c.Usage.PromptTokens, c.Usage.CompletionTokens, c.Usage.TotalTokens)
			if err != nil {
				return types.StreamEvent{}, false, fmt.Errorf("%w: %v", llm.ErrTranslationFailure, err)
			}
			ev := types.NewUsageEvent(usage)
			ev.Raw = raw
			return ev, true, nil
		}
		return types.StreamEvent{}, false, nil
	}

	choice := c.Choices[0]

	for _, tc := range choice.Delta.ToolCalls {
		call := s.calls[tc.Index]
		if call == nil {
			call = &types.ToolCall{}
			s.calls[tc.Index] = call
		}
		if tc.ID != "" {
			call.ID = tc.ID
		}
		if tc.Function.Name != "" {
			call.Name += tc.Function.Name
		}
		call.ArgumentsJSON += tc.Function.Arguments
	}

	if choice.FinishReason != nil && *choice.FinishReason == "tool_calls" {
		ev := types.NewFunctionCallEvent(s.assembledCalls()...)
		ev.Raw = raw
		return ev, true, nil
	}

	if choice.Delta.Content != "" {
		ev := types.NewContentEvent(choice.Delta.Content)
		ev.Raw = raw
		return ev, true, nil
	}

	return types.StreamEvent{}, false, nil
}

func (s *stream) assembledCalls() []types.ToolCall {
	indexes := make([]int, 0, len(s.calls))
	for i := range s.calls {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	calls := make([]types.ToolCall, 0, len(indexes))
	for _, i := range indexes {
		call := *s.calls[i]
		if call.ArgumentsJSON == "" {
			call.ArgumentsJSON = "{}"
		}
		calls = append(calls, call)
	}
	s.calls = make(map[int]*types.ToolCall)
	return calls
}
