package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parley-ai/parley/pkg/history"
	"github.com/parley-ai/parley/pkg/llm"
	"github.com/parley-ai/parley/pkg/llm/tokenizer"
	"github.com/parley-ai/parley/pkg/logging"
	"github.com/parley-ai/parley/pkg/types"
)

const (
	// DefaultStreamTimeout bounds a single turn's stream end to end.
	DefaultStreamTimeout = 5 * time.Minute

	// DefaultSubscriberBuffer is the per-subscriber event channel capacity.
	DefaultSubscriberBuffer = 64

	// DefaultMaxToolOutputBytes bounds one tool output entering a turn.
	DefaultMaxToolOutputBytes = 64 << 10

	// DefaultIdleTTL is how long an idle session lives before reaping.
	DefaultIdleTTL = 30 * time.Minute
)

// Manager owns the live session registry and the collaborators every session
// streams through. Sessions are created with Open, addressed by id, and
// reaped after sitting idle for the configured TTL.
type Manager struct {
	registry  *llm.Registry
	transport llm.Transport
	creds     llm.CredentialResolver
	store     history.Store
	estimator *tokenizer.Estimator
	logger    *logging.Logger

	streamTimeout      time.Duration
	subscriberBuffer   int
	maxToolOutputBytes int
	idleTTL            time.Duration

	mu       sync.Mutex
	sessions map[string]*ChatSession
	stopped  bool

	reaperStop chan struct{}
	reaperDone chan struct{}
}

// Option configures a Manager.
type Option func(*Manager)

// WithStreamTimeout sets the hard per-turn stream timeout.
func WithStreamTimeout(d time.Duration) Option {
	return func(m *Manager) { m.streamTimeout = d }
}

// WithSubscriberBuffer sets the per-subscriber channel capacity.
func WithSubscriberBuffer(n int) Option {
	return func(m *Manager) { m.subscriberBuffer = n }
}

// WithMaxToolOutputBytes bounds tool outputs entering turns. Zero disables
// truncation.
func WithMaxToolOutputBytes(n int) Option {
	return func(m *Manager) { m.maxToolOutputBytes = n }
}

// WithIdleTTL sets how long an idle session lives. Zero disables reaping.
func WithIdleTTL(d time.Duration) Option {
	return func(m *Manager) { m.idleTTL = d }
}

// WithLogger sets the manager's logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a session manager over the given collaborators.
func NewManager(registry *llm.Registry, transport llm.Transport, creds llm.CredentialResolver, store history.Store, opts ...Option) *Manager {
	m := &Manager{
		registry:           registry,
		transport:          transport,
		creds:              creds,
		store:              store,
		estimator:          tokenizer.NewEstimator(),
		streamTimeout:      DefaultStreamTimeout,
		subscriberBuffer:   DefaultSubscriberBuffer,
		maxToolOutputBytes: DefaultMaxToolOutputBytes,
		idleTTL:            DefaultIdleTTL,
		sessions:           make(map[string]*ChatSession),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.idleTTL > 0 {
		m.reaperStop = make(chan struct{})
		m.reaperDone = make(chan struct{})
		go m.reapLoop()
	}
	return m
}

// Open creates a session on a thread. An empty threadID creates a fresh,
// unlabelled thread. The provider in meta must be registered.
func (m *Manager) Open(threadID string, meta types.ProviderMeta) (*ChatSession, error) {
	if _, err := m.registry.Get(meta.Provider); err != nil {
		return nil, err
	}

	if threadID == "" {
		info, err := m.store.CreateThread("")
		if err != nil {
			return nil, err
		}
		threadID = info.ID
	} else if _, err := m.store.GetInfo(threadID); err != nil {
		return nil, err
	}

	s := &ChatSession{
		ID:         uuid.New().String(),
		ThreadID:   threadID,
		mgr:        m,
		meta:       meta,
		lastActive: time.Now(),
		bcast:      newBroadcaster(m.subscriberBuffer),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return nil, ErrSessionClosed
	}
	m.sessions[s.ID] = s
	m.logf("session %s opened on thread %s (%s/%s)", s.ID, threadID, meta.Provider, meta.ModelID)
	return s, nil
}

// Get returns a live session by id.
func (m *Manager) Get(id string) (*ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Close ends a session: any in-flight stream is cancelled and all
// subscribers are detached. The thread and its turns remain.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	s.close()
	m.logf("session %s closed", id)
	return nil
}

// Shutdown closes every session and stops the reaper. The manager accepts no
// new sessions afterwards.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	sessions := make([]*ChatSession, 0, len(m.sessions))
	for id, s := range m.sessions {
		sessions = append(sessions, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if m.reaperStop != nil {
		close(m.reaperStop)
		<-m.reaperDone
	}
	for _, s := range sessions {
		s.close()
	}
}

func (m *Manager) reapLoop() {
	defer close(m.reaperDone)

	interval := m.idleTTL / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.reaperStop:
			return
		case <-ticker.C:
			m.reapIdle(time.Now())
		}
	}
}

// reapIdle closes sessions that have been idle longer than the TTL. Streaming
// sessions are never reaped.
func (m *Manager) reapIdle(now time.Time) {
	m.mu.Lock()
	var expired []*ChatSession
	for id, s := range m.sessions {
		last, idle := s.idleSince()
		if idle && now.Sub(last) > m.idleTTL {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		s.close()
		m.logf("session %s reaped after %s idle", s.ID, m.idleTTL)
	}
}

func (m *Manager) logf(format string, v ...interface{}) {
	if m.logger != nil {
		m.logger.Infof(format, v...)
	}
}
