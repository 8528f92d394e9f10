package anthropic

import (
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-ai/parley/pkg/llm"
	"github.com/parley-ai/parley/pkg/types"
)

func mustMeta(t *testing.T) types.ProviderMeta {
	t.Helper()
	meta, err := types.NewProviderMeta("anthropic", "claude-sonnet-4-5", "anthropic-default")
	require.NoError(t, err)
	return meta
}

// TestBuildRequestCrossProviderReplay is the provider-switch scenario: a
// prior turn generated under OpenAI (OpenAI-style call ids, role:"tool"
// output message) must be replayed through Anthropic's tool_use/tool_result
// idiom, in original order.
func TestBuildRequestCrossProviderReplay(t *testing.T) {
	openaiMeta, err := types.NewProviderMeta("openai", "gpt-4o", "openai-default")
	require.NoError(t, err)

	history := []types.Turn{{
		ThreadID:  "t1",
		TurnIndex: 0,
		Meta:      openaiMeta,
		Messages: []types.Message{
			types.NewSystemMessage("You are terse."),
			types.NewUserMessage("weather in Oslo?"),
			{Role: types.RoleAssistant, Parts: []types.Part{
				types.FunctionCallPart("call_1", "get_weather", `{"city":"Oslo"}`),
			}},
			{Role: types.RoleTool, Parts: []types.Part{
				types.FunctionOutputPart("call_1", `{"temp_c":4}`),
			}},
			types.NewAssistantMessage("4°C."),
		},
	}}

	a := New(WithMaxTokens(2048))
	req, err := a.BuildRequest(history, types.NewUserMessage("continue"), mustMeta(t), llm.Credential{APIKey: "sk-ant"})
	require.NoError(t, err)

	assert.Equal(t, "https://api.anthropic.com/v1/messages", req.URL)
	assert.Equal(t, "sk-ant", req.Headers.Get("X-Api-Key"))
	assert.Equal(t, "2023-06-01", req.Headers.Get("Anthropic-Version"))

	var body struct {
		Model     string `json:"model"`
		System    string `json:"system"`
		MaxTokens int    `json:"max_tokens"`
		Stream    bool   `json:"stream"`
		Messages  []struct {
			Role    string `json:"role"`
			Content []struct {
				Type      string          `json:"type"`
				Text      string          `json:"text"`
				ID        string          `json:"id"`
				Name      string          `json:"name"`
				Input     json.RawMessage `json:"input"`
				ToolUseID string          `json:"tool_use_id"`
				Content   string          `json:"content"`
			} `json:"content"`
		} `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(req.Body, &body))

	assert.Equal(t, "claude-sonnet-4-5", body.Model)
	assert.Equal(t, "You are terse.", body.System, "system message lifted out of history")
	assert.Equal(t, 2048, body.MaxTokens)
	assert.True(t, body.Stream)

	require.Len(t, body.Messages, 5)
	assert.Equal(t, "user", body.Messages[0].Role)

	// OpenAI-originated tool call, now as a tool_use block.
	assert.Equal(t, "assistant", body.Messages[1].Role)
	require.Len(t, body.Messages[1].Content, 1)
	assert.Equal(t, "tool_use", body.Messages[1].Content[0].Type)
	assert.Equal(t, "call_1", body.Messages[1].Content[0].ID)
	assert.Equal(t, "get_weather", body.Messages[1].Content[0].Name)
	assert.JSONEq(t, `{"city":"Oslo"}`, string(body.Messages[1].Content[0].Input))

	// Tool output as a tool_result block in a user message.
	assert.Equal(t, "user", body.Messages[2].Role)
	assert.Equal(t, "tool_result", body.Messages[2].Content[0].Type)
	assert.Equal(t, "call_1", body.Messages[2].Content[0].ToolUseID)
	assert.Equal(t, `{"temp_c":4}`, body.Messages[2].Content[0].Content)

	assert.Equal(t, "assistant", body.Messages[3].Role)
	assert.Equal(t, "continue", body.Messages[4].Content[0].Text)
}

func TestStreamDecodesMessagesEvents(t *testing.T) {
	raw := strings.Join([]string{
		`event: message_start`,
		`data: {"type":"message_start","message":{"usage":{"input_tokens":25,"output_tokens":1}}}`,
		``,
		`event: content_block_start`,
		`data: {"type":"content_block_start","index":0,"content_block":{"type":"text"}}`,
		``,
		`event: content_block_delta`,
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hi"}}`,
		``,
		`event: ping`,
		`data: {"type":"ping"}`,
		``,
		`event: content_block_start`,
		`data: {"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"toolu_1","name":"get_weather"}}`,
		``,
		`event: content_block_delta`,
		`data: {"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"city\":"}}`,
		``,
		`event: content_block_delta`,
		`data: {"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"\"Oslo\"}"}}`,
		``,
		`event: content_block_stop`,
		`data: {"type":"content_block_stop","index":1}`,
		``,
		`event: message_delta`,
		`data: {"type":"message_delta","delta":{"stop_reason":"tool_use"},"usage":{"output_tokens":14}}`,
		``,
		`event: message_stop`,
		`data: {"type":"message_stop"}`,
		``,
	}, "\n")

	s := New().OpenStream(io.NopCloser(strings.NewReader(raw)))
	defer s.Close()

	ev, err := s.Recv()
	require.NoError(t, err)
	assert.Equal(t, types.EventContent, ev.Type)
	assert.Equal(t, "Hi", ev.Delta)

	ev, err = s.Recv()
	require.NoError(t, err)
	require.Equal(t, types.EventFunctionCall, ev.Type)
	require.Len(t, ev.Calls, 1)
	assert.Equal(t, "toolu_1", ev.Calls[0].ID)
	assert.Equal(t, "get_weather", ev.Calls[0].Name)
	assert.Equal(t, `{"city":"Oslo"}`, ev.Calls[0].ArgumentsJSON)

	ev, err = s.Recv()
	require.NoError(t, err)
	require.Equal(t, types.EventUsage, ev.Type)
	assert.Equal(t, 25, ev.Usage.PromptTokens)
	assert.Equal(t, 14, ev.Usage.CompletionTokens)
	assert.Equal(t, 39, ev.Usage.TotalTokens)

	ev, err = s.Recv()
	require.NoError(t, err)
	assert.Equal(t, types.EventDone, ev.Type)

	_, err = s.Recv()
	assert.Equal(t, io.EOF, err)
}

func TestStreamErrorEvent(t *testing.T) {
	raw := "event: error\ndata: {\"type\":\"error\",\"error\":{\"message\":\"overloaded\"}}\n\n"
	s := New().OpenStream(io.NopCloser(strings.NewReader(raw)))
	defer s.Close()

	ev, err := s.Recv()
	require.NoError(t, err)
	assert.Equal(t, types.EventError, ev.Type)
	assert.Equal(t, "overloaded", ev.Message)

	_, err = s.Recv()
	assert.Equal(t, io.EOF, err)
}

func TestToolCallRoundTrip(t *testing.T) {
	a := New()
	original := types.ToolCall{ID: "toolu_3", Name: "search", ArgumentsJSON: `{"q":"fjords"}`}

	wire, err := a.TranslateToolCall(original)
	require.NoError(t, err)

	back, err := a.ParseToolCall(wire)
	require.NoError(t, err)
	assert.Equal(t, original, back)
}

func TestTranslateRejectsInvalidArguments(t *testing.T) {
	a := New()
	_, err := a.TranslateToolCall(types.ToolCall{ID: "x", Name: "f", ArgumentsJSON: "{broken"})
	assert.ErrorIs(t, err, llm.ErrTranslationFailure)
}
