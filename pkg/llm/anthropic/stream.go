package anthropic

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/parley-ai/parley/pkg/llm"
	"github.com/parley-ai/parley/pkg/llm/sse"
	"github.com/parley-ai/parley/pkg/types"
)

// streamFrame is the union of payload shapes across the messages API stream
// event types; only the fields for the named event are populated.
type streamFrame struct {
	Type string `json:"type"`

	Message *struct {
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	} `json:"message,omitempty"`

	Index        int `json:"index"`
	ContentBlock *struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"content_block,omitempty"`

	Delta *struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
		StopReason  string `json:"stop_reason"`
	} `json:"delta,omitempty"`

	Usage *struct {
		OutputTokens int `json:"output_tokens"`
	} `json:"usage,omitempty"`

	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// stream decodes the messages API SSE stream. Tool call arguments arrive as
// input_json_delta fragments per content block and are emitted as one
// function_call event at the block's content_block_stop. Input token usage
// arrives on message_start and is held until message_delta reports output
// tokens, so exactly one usage event is produced per turn.
type stream struct {
	body io.ReadCloser
	dec  *sse.Decoder

	inputTokens int
	blocks      map[int]*types.ToolCall

	closed bool
	done   bool
}

func newStream(body io.ReadCloser) *stream {
	return &stream{
		body:   body,
		dec:    sse.NewDecoder(body),
		blocks: make(map[int]*types.ToolCall),
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
			s.done = true
			return types.NewDoneEvent(), nil
		}
		if err != nil {
			return types.StreamEvent{}, err
		}

		ev, ok, err := s.translate(frame.Data)
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

func (s *stream) translate(data []byte) (types.StreamEvent, bool, error) {
	var f streamFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return types.StreamEvent{}, false, fmt.Errorf("%w: malformed stream frame: %v", llm.ErrTranslationFailure, err)
	}

	raw := append(json.RawMessage(nil), data...)

	switch f.Type {
	case "message_start":
		if f.Message != nil {
			s.inputTokens = f.Message.Usage.InputTokens
		}
		return types.StreamEvent{}, false, nil

	case "content_block_start":
		if f.ContentBlock != nil && f.ContentBlock.Type == "tool_use" {
			s.blocks[f.Index] = &types.ToolCall{ID: f.ContentBlock.ID, Name: f.ContentBlock.Name}
		}
		return types.StreamEvent{}, false, nil

	case "content_block_delta":
		if f.Delta == nil {
			return types.StreamEvent{}, false, nil
		}
		switch f.Delta.Type {
		case "text_delta":
			ev := types.NewContentEvent(f.Delta.Text)
			ev.Raw = raw
			return ev, true, nil
		case "input_json_delta":
			if call := s.blocks[f.Index]; call != nil {
				call.ArgumentsJSON += f.Delta.PartialJSON
			}
			return types.StreamEvent{}, false, nil
		}
		return types.StreamEvent{}, false, nil

	case "content_block_stop":
		call := s.blocks[f.Index]
		if call == nil {
			return types.StreamEvent{}, false, nil
		}
		delete(s.blocks, f.Index)
		if call.ArgumentsJSON == "" {
			call.ArgumentsJSON = "{}"
		}
		ev := types.NewFunctionCallEvent(*call)
		ev.Raw = raw
		return ev, true, nil

	case "message_delta":
		output := 0
		if f.Usage != nil {
			output = f.Usage.OutputTokens
		}
		usage, err := types.NewUsage(s.inputTokens, output, 0)
		if err != nil {
			return types.StreamEvent{}, false, fmt.Errorf("%w: %v", llm.ErrTranslationFailure, err)
		}
		ev := types.NewUsageEvent(usage)
		ev.Raw = raw
		return ev, true, nil

	case "message_stop":
		ev := types.NewDoneEvent()
		ev.Raw = raw
		return ev, true, nil

	case "error":
		msg := "provider error"
		if f.Error != nil && f.Error.Message != "" {
			msg = f.Error.Message
		}
		ev := types.NewErrorEvent(msg)
		ev.Raw = raw
		return ev, true, nil

	case "ping":
		return types.StreamEvent{}, false, nil
	}

	// Unknown event types are forward-compatible noise.
	return types.StreamEvent{}, false, nil
}
