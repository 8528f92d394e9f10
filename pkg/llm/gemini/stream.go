package gemini

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/parley-ai/parley/pkg/llm"
	"github.com/parley-ai/parley/pkg/llm/sse"
	"github.com/parley-ai/parley/pkg/types"
)

// streamFrame is the wire shape of one streamGenerateContent SSE frame.
type streamFrame struct {
	Candidates []struct {
		Content struct {
			Parts []wirePart `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// stream decodes the generateContent SSE stream. A single frame can carry
// text, function calls, and (on the final frame) usage; the decoded events
// are queued and handed out one Recv at a time in wire order. The stream ends
// when the connection closes — there is no explicit done marker — so EOF
// produces the terminal done event.
//
// Function call ids are synthesized as "<name>-<n>" with n counting calls
// within the stream, since the wire format has none.
type stream struct {
	body io.ReadCloser
	dec  *sse.Decoder

	pending  []types.StreamEvent
	callSeq  int
	usageSet bool
	usage    types.Usage

	closed bool
	done   bool
}

func newStream(body io.ReadCloser) *stream {
	return &stream{body: body, dec: sse.NewDecoder(body)}
}

func (s *stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.body.Close()
}

func (s *stream) Recv() (types.StreamEvent, error) {
	for {
		if len(s.pending) > 0 {
			ev := s.pending[0]
			s.pending = s.pending[1:]
			if ev.IsTerminal() {
				s.done = true
			}
			return ev, nil
		}
		if s.done {
			return types.StreamEvent{}, io.EOF
		}

		frame, err := s.dec.Next()
		if err == io.EOF {
			if s.usageSet {
				s.pending = append(s.pending, types.NewUsageEvent(s.usage))
			}
			s.pending = append(s.pending, types.NewDoneEvent())
			continue
		}
		if err != nil {
			return types.StreamEvent{}, err
		}

		if err := s.translate(frame.Data); err != nil {
			return types.StreamEvent{}, err
		}
	}
}

func (s *stream) translate(data []byte) error {
	var f streamFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("%w: malformed stream frame: %v", llm.ErrTranslationFailure, err)
	}

	raw := append(json.RawMessage(nil), data...)

	if f.Error != nil {
		ev := types.NewErrorEvent(f.Error.Message)
		ev.Raw = raw
		s.pending = append(s.pending, ev)
		return nil
	}

	// Usage metadata is cumulative across frames; the last value wins and is
	// emitted just before the terminal done event.
	if f.UsageMetadata != nil {
		usage, err := types.NewUsage(f.UsageMetadata.PromptTokenCount, f.UsageMetadata.CandidatesTokenCount, f.UsageMetadata.TotalTokenCount)
		if err != nil {
			return fmt.Errorf("%w: %v", llm.ErrTranslationFailure, err)
		}
		s.usage = usage
		s.usageSet = true
	}

	if len(f.Candidates) == 0 {
		return nil
	}

	var calls []types.ToolCall
	for _, part := range f.Candidates[0].Content.Parts {
		switch {
		case part.FunctionCall != nil:
			args := string(part.FunctionCall.Args)
			if args == "" {
				args = "{}"
			}
			calls = append(calls, types.ToolCall{
				ID:            fmt.Sprintf("%s-%d", part.FunctionCall.Name, s.callSeq),
				Name:          part.FunctionCall.Name,
				ArgumentsJSON: args,
			})
			s.callSeq++
		case part.Text != "":
			ev := types.NewContentEvent(part.Text)
			ev.Raw = raw
			s.pending = append(s.pending, ev)
		}
	}
	if len(calls) > 0 {
		ev := types.NewFunctionCallEvent(calls...)
		ev.Raw = raw
		s.pending = append(s.pending, ev)
	}
	return nil
}
