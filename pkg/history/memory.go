package history

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parley-ai/parley/pkg/types"
)

// memThread holds one thread's metadata and its local turns. Local turn
// indices start at forkFrom and continue the parent's numbering.
type memThread struct {
	info  ThreadInfo
	turns []types.Turn
}

// MemoryStore is an in-memory Store. It backs tests and ephemeral sessions;
// durable history uses SQLiteStore.
type MemoryStore struct {
	mu      sync.RWMutex
	threads map[string]*memThread
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{threads: make(map[string]*memThread)}
}

// CreateThread implements Store.
func (s *MemoryStore) CreateThread(label string) (ThreadInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := ThreadInfo{
		ID:        uuid.New().String(),
		Label:     label,
		CreatedAt: time.Now(),
	}
	s.threads[info.ID] = &memThread{info: info}
	return info, nil
}

// AppendTurn implements Store.
func (s *MemoryStore) AppendTurn(threadID string, turn types.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	th, ok := s.threads[threadID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrThreadNotFound, threadID)
	}

	next := th.info.ForkFromTurnIndex + len(th.turns)
	if turn.TurnIndex != next {
		return fmt.Errorf("%w: thread %s expects index %d, got %d", ErrTurnIndexConflict, threadID, next, turn.TurnIndex)
	}

	turn.ThreadID = threadID
	turn.ParentThreadID = th.info.ParentID
	turn.ForkFromTurnIndex = th.info.ForkFromTurnIndex
	th.turns = append(th.turns, turn)
	return nil
}

// Fork implements Store.
func (s *MemoryStore) Fork(parentThreadID string, forkFrom int, label string) (ThreadInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parent, ok := s.threads[parentThreadID]
	if !ok {
		return ThreadInfo{}, fmt.Errorf("%w: %s", ErrThreadNotFound, parentThreadID)
	}

	parentLen := parent.info.ForkFromTurnIndex + len(parent.turns)
	if forkFrom < 0 || forkFrom > parentLen {
		return ThreadInfo{}, fmt.Errorf("%w: fork at %d, parent has %d turns", ErrForkPointOutOfRange, forkFrom, parentLen)
	}

	info := ThreadInfo{
		ID:                uuid.New().String(),
		ParentID:          parentThreadID,
		ForkFromTurnIndex: forkFrom,
		Label:             label,
		CreatedAt:         time.Now(),
		TurnCount:         forkFrom,
	}
	s.threads[info.ID] = &memThread{info: info}
	return info, nil
}

// GetThread implements Store. The parent chain is walked up to the root and
// each ancestor contributes the index range below its child's fork point.
func (s *MemoryStore) GetThread(threadID string) ([]types.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolveLocked(threadID)
}

func (s *MemoryStore) resolveLocked(threadID string) ([]types.Turn, error) {
	th, ok := s.threads[threadID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrThreadNotFound, threadID)
	}

	var turns []types.Turn
	if th.info.ParentID != "" {
		parentTurns, err := s.resolveLocked(th.info.ParentID)
		if err != nil {
			return nil, err
		}
		turns = append(turns, parentTurns[:th.info.ForkFromTurnIndex]...)
	}
	return append(turns, th.turns...), nil
}

// GetInfo implements Store.
func (s *MemoryStore) GetInfo(threadID string) (ThreadInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	th, ok := s.threads[threadID]
	if !ok {
		return ThreadInfo{}, fmt.Errorf("%w: %s", ErrThreadNotFound, threadID)
	}
	info := th.info
	info.TurnCount = th.info.ForkFromTurnIndex + len(th.turns)
	return info, nil
}

// ListThreads implements Store.
func (s *MemoryStore) ListThreads() ([]ThreadInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ThreadInfo, 0, len(s.threads))
	for _, th := range s.threads {
		info := th.info
		info.TurnCount = th.info.ForkFromTurnIndex + len(th.turns)
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Rename implements Store.
func (s *MemoryStore) Rename(threadID, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	th, ok := s.threads[threadID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrThreadNotFound, threadID)
	}
	th.info.Label = label
	return nil
}
