package gemini

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
	meta, err := types.NewProviderMeta("gemini", "gemini-2.0-flash", "gemini-default")
	require.NoError(t, err)
	return meta
}

func TestBuildRequestCrossProviderReplay(t *testing.T) {
	anthropicMeta, err := types.NewProviderMeta("anthropic", "claude-sonnet-4-5", "")
	require.NoError(t, err)

	// Tool exchange originated under Anthropic; Gemini has no call ids, so
	// the adapter must resolve the output back to the function name.
	history := []types.Turn{{
		ThreadID:  "t1",
		TurnIndex: 0,
		Meta:      anthropicMeta,
		Messages: []types.Message{
			types.NewSystemMessage("Answer briefly."),
			types.NewUserMessage("weather in Oslo?"),
			{Role: types.RoleAssistant, Parts: []types.Part{
				types.FunctionCallPart("toolu_1", "get_weather", `{"city":"Oslo"}`),
			}},
			{Role: types.RoleTool, Parts: []types.Part{
				types.FunctionOutputPart("toolu_1", `{"temp_c":4}`),
			}},
		},
	}}

	a := New()
	req, err := a.BuildRequest(history, types.NewUserMessage("continue"), mustMeta(t), llm.Credential{APIKey: "g-key"})
	require.NoError(t, err)

	assert.Equal(t, "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.0-flash:streamGenerateContent?alt=sse", req.URL)
	assert.Equal(t, "g-key", req.Headers.Get("X-Goog-Api-Key"))

	var body struct {
		SystemInstruction struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"systemInstruction"`
		Contents []struct {
			Role  string `json:"role"`
			Parts []struct {
				Text         string `json:"text"`
				FunctionCall *struct {
					Name string          `json:"name"`
					Args json.RawMessage `json:"args"`
				} `json:"functionCall"`
				FunctionResponse *struct {
					Name     string          `json:"name"`
					Response json.RawMessage `json:"response"`
				} `json:"functionResponse"`
			} `json:"parts"`
		} `json:"contents"`
	}
	require.NoError(t, json.Unmarshal(req.Body, &body))

	require.Len(t, body.SystemInstruction.Parts, 1)
	assert.Equal(t, "Answer briefly.", body.SystemInstruction.Parts[0].Text)

	require.Len(t, body.Contents, 4)
	assert.Equal(t, "user", body.Contents[0].Role)

	assert.Equal(t, "model", body.Contents[1].Role)
	require.NotNil(t, body.Contents[1].Parts[0].FunctionCall)
	assert.Equal(t, "get_weather", body.Contents[1].Parts[0].FunctionCall.Name)
	assert.JSONEq(t, `{"city":"Oslo"}`, string(body.Contents[1].Parts[0].FunctionCall.Args))

	assert.Equal(t, "user", body.Contents[2].Role)
	require.NotNil(t, body.Contents[2].Parts[0].FunctionResponse)
	assert.Equal(t, "get_weather", body.Contents[2].Parts[0].FunctionResponse.Name, "output resolved to function name")
	assert.JSONEq(t, `{"temp_c":4}`, string(body.Contents[2].Parts[0].FunctionResponse.Response))

	assert.Equal(t, "continue", body.Contents[3].Parts[0].Text)
}

func TestBuildRequestOrphanOutputFails(t *testing.T) {
	history := []types.Turn{{
		ThreadID: "t1",
		Messages: []types.Message{
			{Role: types.RoleTool, Parts: []types.Part{
				types.FunctionOutputPart("missing", "x"),
			}},
		},
	}}
	_, err := New().BuildRequest(history, types.NewUserMessage("hi"), mustMeta(t), llm.Credential{APIKey: "k"})
	assert.ErrorIs(t, err, llm.ErrTranslationFailure)
}

func TestStreamDecodesTextCallsAndUsage(t *testing.T) {
	raw := strings.Join([]string{
		`data: {"candidates":[{"content":{"parts":[{"text":"It is "}]}}],"usageMetadata":{"promptTokenCount":9,"candidatesTokenCount":2,"totalTokenCount":11}}`,
		``,
		`data: {"candidates":[{"content":{"parts":[{"functionCall":{"name":"get_weather","args":{"city":"Oslo"}}}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":9,"candidatesTokenCount":5,"totalTokenCount":14}}`,
		``,
	}, "\n")

	s := New().OpenStream(io.NopCloser(strings.NewReader(raw)))
	defer s.Close()

	ev, err := s.Recv()
	require.NoError(t, err)
	assert.Equal(t, types.EventContent, ev.Type)
	assert.Equal(t, "It is ", ev.Delta)

	ev, err = s.Recv()
	require.NoError(t, err)
	require.Equal(t, types.EventFunctionCall, ev.Type)
	require.Len(t, ev.Calls, 1)
	assert.Equal(t, "get_weather", ev.Calls[0].Name)
	assert.Equal(t, "get_weather-0", ev.Calls[0].ID, "synthesized id")
	assert.JSONEq(t, `{"city":"Oslo"}`, ev.Calls[0].ArgumentsJSON)

	// Final cumulative usage is emitted before the synthesized done event.
	ev, err = s.Recv()
	require.NoError(t, err)
	require.Equal(t, types.EventUsage, ev.Type)
	assert.Equal(t, 9, ev.Usage.PromptTokens)
	assert.Equal(t, 5, ev.Usage.CompletionTokens)
	assert.Equal(t, 14, ev.Usage.TotalTokens)

	ev, err = s.Recv()
	require.NoError(t, err)
	assert.Equal(t, types.EventDone, ev.Type)

	_, err = s.Recv()
	assert.Equal(t, io.EOF, err)
}

func TestStreamErrorPayload(t *testing.T) {
	raw := `data: {"error":{"message":"quota exceeded"}}` + "\n\n"
	s := New().OpenStream(io.NopCloser(strings.NewReader(raw)))
	defer s.Close()

	ev, err := s.Recv()
	require.NoError(t, err)
	assert.Equal(t, types.EventError, ev.Type)
	assert.Equal(t, "quota exceeded", ev.Message)

	_, err = s.Recv()
	assert.Equal(t, io.EOF, err)
}

func TestToolCallRoundTrip(t *testing.T) {
	a := New()
	wire, err := a.TranslateToolCall(types.ToolCall{ID: "anything", Name: "search", ArgumentsJSON: `{"q":"x"}`})
	require.NoError(t, err)

	back, err := a.ParseToolCall(wire)
	require.NoError(t, err)
	assert.Equal(t, "search", back.Name)
	assert.JSONEq(t, `{"q":"x"}`, back.ArgumentsJSON)
}
