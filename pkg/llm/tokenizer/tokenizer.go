// Package tokenizer estimates token counts for canonical messages. The
// session manager uses it when a provider stream ends without reporting usage,
// so every persisted turn carries at least an estimate.
package tokenizer

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/parley-ai/parley/pkg/types"
)

// defaultEncoding covers modern chat models well enough for estimation.
const defaultEncoding = "cl100k_base"

// perMessageOverhead approximates the framing tokens each chat message costs
// on the wire (role markers, separators).
const perMessageOverhead = 4

// Estimator counts tokens with a BPE encoding, falling back to a bytes/4
// heuristic when the encoding cannot be loaded (offline environments).
type Estimator struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewEstimator creates an estimator. The encoding is loaded lazily on first
// use.
func NewEstimator() *Estimator {
	return &Estimator{}
}

func (e *Estimator) encoding() *tiktoken.Tiktoken {
	e.once.Do(func() {
		enc, err := tiktoken.GetEncoding(defaultEncoding)
		if err != nil {
			return
		}
		e.enc = enc
	})
	return e.enc
}

// Count returns the estimated token count of a text fragment.
func (e *Estimator) Count(text string) int {
	if text == "" {
		return 0
	}
	if enc := e.encoding(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	// Rough heuristic: one token per four bytes, minimum one.
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}

// CountMessage returns the estimated token count of one message, including
// tool call arguments and outputs.
func (e *Estimator) CountMessage(msg types.Message) int {
	var sb strings.Builder
	for _, part := range msg.Parts {
		sb.WriteString(part.Text)
		sb.WriteString(part.Name)
		sb.WriteString(part.ArgumentsJSON)
		sb.WriteString(part.Output)
	}
	return e.Count(sb.String()) + perMessageOverhead
}

// CountMessages sums CountMessage over a slice.
func (e *Estimator) CountMessages(msgs []types.Message) int {
	total := 0
	for _, m := range msgs {
		total += e.CountMessage(m)
	}
	return total
}

// EstimateUsage builds a Usage value marked as estimated, from the prompt
// messages sent and the assistant messages received.
func (e *Estimator) EstimateUsage(prompt, completion []types.Message) types.Usage {
	p := e.CountMessages(prompt)
	c := e.CountMessages(completion)
	return types.Usage{
		PromptTokens:     p,
		CompletionTokens: c,
		TotalTokens:      p + c,
		Estimated:        true,
	}
}
