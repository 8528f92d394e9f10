package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/parley-ai/parley/pkg/types"
)

func TestCount(t *testing.T) {
	e := NewEstimator()

	assert.Equal(t, 0, e.Count(""))
	assert.Greater(t, e.Count("hello world"), 0)
	assert.GreaterOrEqual(t, e.Count("a longer sentence with several words in it"), e.Count("short"))
}

func TestCountMessageIncludesToolParts(t *testing.T) {
	e := NewEstimator()

	plain := types.NewUserMessage("hi")
	withCall := types.Message{Role: types.RoleAssistant, Parts: []types.Part{
		types.FunctionCallPart("call_1", "get_weather", `{"city":"Oslo","units":"metric"}`),
	}}

	assert.Greater(t, e.CountMessage(withCall), e.CountMessage(plain))
}

func TestEstimateUsage(t *testing.T) {
	e := NewEstimator()

	prompt := []types.Message{types.NewSystemMessage("be terse"), types.NewUserMessage("weather?")}
	completion := []types.Message{types.NewAssistantMessage("4°C and raining.")}

	u := e.EstimateUsage(prompt, completion)
	assert.True(t, u.Estimated)
	assert.Greater(t, u.PromptTokens, 0)
	assert.Greater(t, u.CompletionTokens, 0)
	assert.Equal(t, u.PromptTokens+u.CompletionTokens, u.TotalTokens)
}
