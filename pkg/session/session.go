// Package session runs streaming chat turns against a configured provider and
// persists each completed exchange as an immutable turn.
//
// A session binds one thread to one active provider configuration. Exactly
// one turn streams at a time; subscribers observe the live event flow, and a
// turn enters history only after its stream ends successfully — a cancelled
// or failed stream leaves no trace in the thread.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/parley-ai/parley/pkg/llm"
	"github.com/parley-ai/parley/pkg/types"
)

// ReconfigureMode selects when a provider change takes effect.
type ReconfigureMode int

const (
	// Immediate applies the new configuration now, cancelling any in-flight
	// stream. Partial output of the cancelled stream is discarded.
	Immediate ReconfigureMode = iota

	// Deferred records the new configuration and applies it when the next
	// turn starts. An in-flight stream finishes under the old configuration.
	Deferred
)

const (
	cancelledReason = "cancelled"
	timeoutReason   = "timeout"
)

// ChatSession is one live conversation bound to a thread. Created through
// Manager.Open.
type ChatSession struct {
	ID       string
	ThreadID string

	mgr *Manager

	mu         sync.Mutex
	status     Status
	meta       types.ProviderMeta
	pending    *types.ProviderMeta
	cancel     context.CancelFunc
	lastErr    string
	lastActive time.Time
	closed     bool

	bcast *broadcaster

	// wg tracks the in-flight worker so close can wait for it.
	wg sync.WaitGroup
}

// Meta returns the active provider configuration.
func (s *ChatSession) Meta() types.ProviderMeta {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta
}

// Status returns the session's current lifecycle state.
func (s *ChatSession) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// LastError returns the reason of the most recent failed or cancelled turn.
func (s *ChatSession) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Subscribe attaches a listener to the session's event flow. Events stream
// from the moment of subscription; there is no replay of earlier events. The
// detach func removes the listener without affecting the stream.
func (s *ChatSession) Subscribe() (<-chan types.StreamEvent, func()) {
	return s.bcast.subscribe()
}

// Reconfigure changes the session's provider configuration.
func (s *ChatSession) Reconfigure(meta types.ProviderMeta, mode ReconfigureMode) error {
	// Reject unknown providers before touching session state.
	if _, err := s.mgr.registry.Get(meta.Provider); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}

	switch mode {
	case Deferred:
		m := meta
		s.pending = &m
	default:
		s.meta = meta
		s.pending = nil
		if s.status == StatusStreaming && s.cancel != nil {
			s.cancel()
		}
	}
	s.lastActive = time.Now()
	return nil
}

// Cancel aborts the in-flight stream, if any. The stream ends with a
// synthetic error event and its partial output is discarded. Cancelling an
// idle session is a no-op.
func (s *ChatSession) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusStreaming && s.cancel != nil {
		s.cancel()
	}
}

// SendTurn starts streaming one turn for the given user (or tool-output)
// message.
//
// Translation happens synchronously: a request the active provider cannot
// express fails here, before any network activity, and the session stays
// idle. Once the request is built the stream runs in the background;
// subscribers receive its events, and the completed turn is appended to the
// thread as the final step. Returns ErrStreamBusy while a stream is in
// flight.
func (s *ChatSession) SendTurn(msg types.Message) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.status == StatusStreaming {
		s.mu.Unlock()
		return ErrStreamBusy
	}
	if s.pending != nil {
		s.meta = *s.pending
		s.pending = nil
	}
	meta := s.meta
	s.mu.Unlock()

	msg = truncateToolOutputs(msg, s.mgr.maxToolOutputBytes)

	adapter, err := s.mgr.registry.Get(meta.Provider)
	if err != nil {
		return err
	}
	cred, err := s.mgr.creds.Resolve(meta.AuthRef)
	if err != nil {
		return err
	}
	turns, err := s.mgr.store.GetThread(s.ThreadID)
	if err != nil {
		return err
	}
	req, err := adapter.BuildRequest(turns, msg, meta, cred)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.status == StatusStreaming {
		s.mu.Unlock()
		return ErrStreamBusy
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.mgr.streamTimeout)
	s.status = StatusStreaming
	s.cancel = cancel
	s.lastActive = time.Now()
	s.wg.Add(1)
	s.mu.Unlock()

	go s.run(ctx, cancel, adapter, req, turnInput{
		msg:       msg,
		meta:      meta,
		turnIndex: len(turns),
		prompt:    flattenMessages(turns, msg),
	})
	return nil
}

type turnInput struct {
	msg       types.Message
	meta      types.ProviderMeta
	turnIndex int
	prompt    []types.Message
}

// run drives one stream to completion. It owns the session's Streaming state
// and always releases it, even on panic: one session blowing up must not take
// the process or its siblings down.
func (s *ChatSession) run(ctx context.Context, cancel context.CancelFunc, adapter llm.Adapter, req *llm.Request, in turnInput) {
	defer s.wg.Done()
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			s.mgr.logf("session %s: panic in stream worker: %v", s.ID, r)
			ev := types.NewErrorEvent(fmt.Sprintf("internal error: %v", r))
			s.bcast.publish(ev)
			s.finish(StatusFailed, ev.Message)
		}
	}()

	body, err := s.mgr.transport.OpenStream(ctx, req)
	if err != nil {
		s.endAbnormally(ctx, err)
		return
	}

	stream := adapter.OpenStream(body)
	defer stream.Close()

	var (
		text   strings.Builder
		calls  []types.ToolCall
		usage  *types.Usage
		events []types.StreamEvent
	)

	for {
		if ctx.Err() != nil {
			s.endAbnormally(ctx, ctx.Err())
			return
		}

		ev, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			// Streams synthesize a terminal event before EOF; reaching EOF
			// without one means the connection died mid-stream.
			s.endAbnormally(ctx, errors.New("stream ended without terminal event"))
			return
		}
		if err != nil {
			s.endAbnormally(ctx, err)
			return
		}

		events = append(events, ev)
		// The done event is withheld until the turn is durably appended, so
		// subscribers never observe success for a turn that was not recorded.
		if ev.Type != types.EventDone {
			s.bcast.publish(ev)
		}

		switch ev.Type {
		case types.EventContent:
			text.WriteString(ev.Delta)
		case types.EventFunctionCall:
			calls = append(calls, ev.Calls...)
		case types.EventUsage:
			u := *ev.Usage
			usage = &u
		case types.EventError:
			s.finish(StatusFailed, ev.Message)
			return
		case types.EventDone:
			s.complete(in, text.String(), calls, usage, events)
			return
		}
	}
}

// complete assembles the finished turn and appends it to the thread. The
// append is the last step: nothing is persisted unless the stream ended with
// a done event and the append itself succeeds.
func (s *ChatSession) complete(in turnInput, text string, calls []types.ToolCall, usage *types.Usage, events []types.StreamEvent) {
	assistant := types.Message{Role: types.RoleAssistant}
	if text != "" {
		assistant.Parts = append(assistant.Parts, types.TextPart(text))
	}
	for _, c := range calls {
		assistant.Parts = append(assistant.Parts, types.FunctionCallPart(c.ID, c.Name, c.ArgumentsJSON))
	}
	messages := []types.Message{in.msg}
	if len(assistant.Parts) > 0 {
		messages = append(messages, assistant)
	}

	var u types.Usage
	if usage != nil {
		u = *usage
	} else {
		// Provider reported nothing; estimate so the turn still carries
		// accounting.
		u = s.mgr.estimator.EstimateUsage(in.prompt, []types.Message{assistant})
	}

	turn := types.Turn{
		ThreadID:  s.ThreadID,
		TurnIndex: in.turnIndex,
		Messages:  messages,
		Events:    events,
		Meta:      in.meta,
		Usage:     u,
	}

	if err := s.mgr.store.AppendTurn(s.ThreadID, turn); err != nil {
		s.mgr.logf("session %s: failed to persist turn %d: %v", s.ID, in.turnIndex, err)
		ev := types.NewErrorEvent(fmt.Sprintf("failed to persist turn: %v", err))
		s.bcast.publish(ev)
		s.finish(StatusFailed, ev.Message)
		return
	}
	s.finish(StatusIdle, "")
	s.bcast.publish(types.NewDoneEvent())
}

// endAbnormally publishes the synthetic terminal event for a stream that did
// not end on its own: cancellation, timeout, or a transport failure. Partial
// output is discarded.
func (s *ChatSession) endAbnormally(ctx context.Context, cause error) {
	reason := cause.Error()
	status := StatusFailed
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		reason = cancelledReason
		status = StatusCancelled
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		reason = timeoutReason
	}
	s.bcast.publish(types.NewErrorEvent(reason))
	s.finish(status, reason)
}

func (s *ChatSession) finish(status Status, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	s.cancel = nil
	s.lastErr = reason
	s.lastActive = time.Now()
}

// close cancels any in-flight stream, waits for the worker, and detaches all
// subscribers.
func (s *ChatSession) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.bcast.close()
}

func (s *ChatSession) idleSince() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive, s.status != StatusStreaming
}

// truncateToolOutputs bounds function output parts before they enter the
// canonical record. Oversized outputs are cut and marked rather than
// rejected.
func truncateToolOutputs(msg types.Message, maxBytes int) types.Message {
	if maxBytes <= 0 {
		return msg
	}
	oversized := false
	for _, p := range msg.Parts {
		if p.Type == types.PartFunctionCallOutput && len(p.Output) > maxBytes {
			oversized = true
			break
		}
	}
	if !oversized {
		return msg
	}

	parts := make([]types.Part, len(msg.Parts))
	copy(parts, msg.Parts)
	for i, p := range parts {
		if p.Type == types.PartFunctionCallOutput && len(p.Output) > maxBytes {
			parts[i].Output = p.Output[:maxBytes] + "\n[output truncated]"
		}
	}
	msg.Parts = parts
	return msg
}

func flattenMessages(turns []types.Turn, next types.Message) []types.Message {
	var out []types.Message
	for _, t := range turns {
		out = append(out, t.Messages...)
	}
	return append(out, next)
}
