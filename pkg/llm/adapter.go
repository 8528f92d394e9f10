// Package llm defines the provider translator contract: the bidirectional
// mapping between the canonical conversation form in pkg/types and each
// provider's request/response/stream wire format.
//
// One Adapter exists per provider family (pkg/llm/openai, pkg/llm/anthropic,
// pkg/llm/gemini), selected through a static Registry keyed on the
// types.Provider enum. Adapters are pure translators: they build outbound
// request payloads and decode inbound stream frames, but never perform I/O
// themselves. Network access goes through the Transport collaborator, and
// credentials are resolved through the CredentialResolver collaborator.
//
// Example usage:
//
//	reg := llm.NewRegistry(openai.New(), anthropic.New(), gemini.New())
//	adapter, _ := reg.Get(types.ProviderAnthropic)
//	req, err := adapter.BuildRequest(history, userMsg, meta, cred)
//	if err != nil {
//	    return err // e.g. llm.ErrUnsupportedContent, before any network call
//	}
//	body, _ := transport.OpenStream(ctx, req)
//	stream := adapter.OpenStream(body)
//	defer stream.Close()
//	for {
//	    ev, err := stream.Recv()
//	    ...
//	}
package llm

import (
	"encoding/json"
	"io"

	"github.com/parley-ai/parley/pkg/types"
)

// Adapter translates between canonical form and one provider's wire format.
//
// Implementations must be stateless and safe for concurrent use; all
// per-stream state (frame reassembly, tool-call argument accumulation) lives
// in the Stream returned by OpenStream.
type Adapter interface {
	// Provider returns the provider family this adapter serves.
	Provider() types.Provider

	// BuildRequest assembles the full outbound payload for a new user turn,
	// replaying the entire canonical history — including tool calls and
	// outputs that originated under a different provider — through this
	// provider's own idiom, in original order.
	//
	// Returns ErrUnsupportedContent if a part type has no mapping for this
	// provider. Errors are returned before any network activity.
	BuildRequest(history []types.Turn, next types.Message, meta types.ProviderMeta, cred Credential) (*Request, error)

	// OpenStream wraps a raw response body with the provider's stream framing
	// and event translation. The returned Stream owns the body and closes it.
	OpenStream(body io.ReadCloser) Stream

	// TranslateToolCall maps a canonical tool call into this provider's wire
	// representation of an assistant-issued function call.
	TranslateToolCall(tc types.ToolCall) (json.RawMessage, error)

	// TranslateToolOutput maps a canonical tool output into this provider's
	// wire representation of a function call result.
	TranslateToolOutput(callID, output string) (json.RawMessage, error)
}

// Stream decodes provider stream frames into canonical events.
//
// Recv returns events in the order produced by the provider; it never
// reorders. Each frame maps to at most one canonical event (frames that carry
// nothing observable, such as keepalives, are skipped internally). The raw
// frame is preserved in StreamEvent.Raw. After a terminal event (done or
// error) Recv returns io.EOF.
type Stream interface {
	Recv() (types.StreamEvent, error)
	Close() error
}
