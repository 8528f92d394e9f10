// Package history stores branching conversation threads as append-only turn
// logs.
//
// A thread is a sequence of turns with contiguous indices from 0. Editing the
// past never happens in place: a fork creates a new thread that shares the
// parent's turns up to the fork point and diverges from there. Forks record
// only lineage pointers — parent turns are resolved on read, never copied —
// so a fork is O(1) regardless of history length.
package history

import (
	"errors"
	"time"

	"github.com/parley-ai/parley/pkg/types"
)

var (
	// ErrThreadNotFound indicates an unknown thread id.
	ErrThreadNotFound = errors.New("thread not found")

	// ErrTurnIndexConflict indicates an append whose turn index is not the
	// thread's next contiguous index.
	ErrTurnIndexConflict = errors.New("turn index conflict")

	// ErrForkPointOutOfRange indicates a fork index outside [0, len(thread)].
	ErrForkPointOutOfRange = errors.New("fork point out of range")
)

// ThreadInfo is the metadata of one thread.
type ThreadInfo struct {
	ID                string    `json:"id"`
	ParentID          string    `json:"parent_id,omitempty"`
	ForkFromTurnIndex int       `json:"fork_from_turn_index,omitempty"`
	Label             string    `json:"label,omitempty"`
	CreatedAt         time.Time `json:"created_at"`

	// TurnCount is the resolved length of the thread, shared parent turns
	// included.
	TurnCount int `json:"turn_count"`
}

// Store is the persistence contract for threads and turns.
//
// Implementations must be safe for concurrent use. The session manager is the
// single writer per thread, but reads (GetThread, ListThreads) happen
// concurrently with appends.
type Store interface {
	// CreateThread creates an empty root thread.
	CreateThread(label string) (ThreadInfo, error)

	// AppendTurn appends a turn to a thread. turn.TurnIndex must equal the
	// thread's next index or ErrTurnIndexConflict is returned and nothing is
	// written.
	AppendTurn(threadID string, turn types.Turn) error

	// Fork creates a new thread sharing the parent's turns [0, forkFrom).
	// forkFrom must be within [0, len(parent)].
	Fork(parentThreadID string, forkFrom int, label string) (ThreadInfo, error)

	// GetThread returns the thread's full resolved turn sequence, shared
	// parent turns included, ordered by turn index from 0.
	GetThread(threadID string) ([]types.Turn, error)

	// GetInfo returns the thread's metadata.
	GetInfo(threadID string) (ThreadInfo, error)

	// ListThreads returns all threads, most recently created first.
	ListThreads() ([]ThreadInfo, error)

	// Rename sets the thread's label.
	Rename(threadID, label string) error
}

// NextIndex returns the index the next appended turn must carry given a
// resolved thread length.
func NextIndex(turns []types.Turn) int {
	return len(turns)
}
