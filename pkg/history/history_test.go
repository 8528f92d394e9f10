package history

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-ai/parley/pkg/types"
)

// runStoreTests exercises the Store contract against every implementation.
func runStoreTests(t *testing.T, open func(t *testing.T) Store) {
	t.Run("AppendIsContiguous", func(t *testing.T) {
		s := open(t)
		th, err := s.CreateThread("root")
		require.NoError(t, err)

		for i := 0; i < 3; i++ {
			require.NoError(t, s.AppendTurn(th.ID, turnAt(i)))
		}

		turns, err := s.GetThread(th.ID)
		require.NoError(t, err)
		require.Len(t, turns, 3)
		for i, turn := range turns {
			assert.Equal(t, i, turn.TurnIndex)
			assert.Equal(t, th.ID, turn.ThreadID)
		}

		info, err := s.GetInfo(th.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, info.TurnCount)
	})

	t.Run("AppendWrongIndexConflicts", func(t *testing.T) {
		s := open(t)
		th, err := s.CreateThread("")
		require.NoError(t, err)

		require.NoError(t, s.AppendTurn(th.ID, turnAt(0)))

		assert.ErrorIs(t, s.AppendTurn(th.ID, turnAt(0)), ErrTurnIndexConflict)
		assert.ErrorIs(t, s.AppendTurn(th.ID, turnAt(2)), ErrTurnIndexConflict)

		// The failed appends wrote nothing.
		turns, err := s.GetThread(th.ID)
		require.NoError(t, err)
		assert.Len(t, turns, 1)
	})

	t.Run("AppendUnknownThread", func(t *testing.T) {
		s := open(t)
		assert.ErrorIs(t, s.AppendTurn("nope", turnAt(0)), ErrThreadNotFound)
	})

	t.Run("ForkSharesPrefixAndDiverges", func(t *testing.T) {
		s := open(t)
		root, err := s.CreateThread("root")
		require.NoError(t, err)
		for i := 0; i < 4; i++ {
			require.NoError(t, s.AppendTurn(root.ID, turnAt(i)))
		}

		fork, err := s.Fork(root.ID, 2, "alternative")
		require.NoError(t, err)
		assert.Equal(t, root.ID, fork.ParentID)
		assert.Equal(t, 2, fork.ForkFromTurnIndex)

		// The fork continues the parent's numbering at the fork point.
		require.NoError(t, s.AppendTurn(fork.ID, turnAt(2)))

		forkTurns, err := s.GetThread(fork.ID)
		require.NoError(t, err)
		require.Len(t, forkTurns, 3)
		assert.Equal(t, root.ID, forkTurns[0].ThreadID, "shared turns come from the parent")
		assert.Equal(t, fork.ID, forkTurns[2].ThreadID)
		for i, turn := range forkTurns {
			assert.Equal(t, i, turn.TurnIndex)
		}

		// The parent is untouched.
		rootTurns, err := s.GetThread(root.ID)
		require.NoError(t, err)
		require.Len(t, rootTurns, 4)
		for _, turn := range rootTurns {
			assert.Equal(t, root.ID, turn.ThreadID)
		}
	})

	t.Run("ForkOfFork", func(t *testing.T) {
		s := open(t)
		root, err := s.CreateThread("root")
		require.NoError(t, err)
		for i := 0; i < 2; i++ {
			require.NoError(t, s.AppendTurn(root.ID, turnAt(i)))
		}

		f1, err := s.Fork(root.ID, 2, "f1")
		require.NoError(t, err)
		require.NoError(t, s.AppendTurn(f1.ID, turnAt(2)))

		f2, err := s.Fork(f1.ID, 3, "f2")
		require.NoError(t, err)
		require.NoError(t, s.AppendTurn(f2.ID, turnAt(3)))

		turns, err := s.GetThread(f2.ID)
		require.NoError(t, err)
		require.Len(t, turns, 4)
		assert.Equal(t, root.ID, turns[0].ThreadID)
		assert.Equal(t, f1.ID, turns[2].ThreadID)
		assert.Equal(t, f2.ID, turns[3].ThreadID)
	})

	t.Run("ForkPointOutOfRange", func(t *testing.T) {
		s := open(t)
		root, err := s.CreateThread("root")
		require.NoError(t, err)
		require.NoError(t, s.AppendTurn(root.ID, turnAt(0)))

		_, err = s.Fork(root.ID, 2, "")
		assert.ErrorIs(t, err, ErrForkPointOutOfRange)

		_, err = s.Fork(root.ID, -1, "")
		assert.ErrorIs(t, err, ErrForkPointOutOfRange)

		_, err = s.Fork("nope", 0, "")
		assert.ErrorIs(t, err, ErrThreadNotFound)
	})

	t.Run("RenameAndList", func(t *testing.T) {
		s := open(t)
		a, err := s.CreateThread("first")
		require.NoError(t, err)
		_, err = s.CreateThread("second")
		require.NoError(t, err)

		require.NoError(t, s.Rename(a.ID, "renamed"))
		assert.ErrorIs(t, s.Rename("nope", "x"), ErrThreadNotFound)

		infos, err := s.ListThreads()
		require.NoError(t, err)
		require.Len(t, infos, 2)

		labels := map[string]string{}
		for _, info := range infos {
			labels[info.ID] = info.Label
		}
		assert.Equal(t, "renamed", labels[a.ID])
	})

	t.Run("GetThreadUnknown", func(t *testing.T) {
		s := open(t)
		_, err := s.GetThread("nope")
		assert.ErrorIs(t, err, ErrThreadNotFound)
		_, err = s.GetInfo("nope")
		assert.ErrorIs(t, err, ErrThreadNotFound)
	})
}

func turnAt(index int) types.Turn {
	meta, _ := types.NewProviderMeta("openai", "gpt-4o", "openai-default")
	return types.Turn{
		TurnIndex: index,
		Messages: []types.Message{
			types.NewUserMessage(fmt.Sprintf("question %d", index)),
			types.NewAssistantMessage(fmt.Sprintf("answer %d", index)),
		},
		Meta:  meta,
		Usage: types.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}
}

func TestMemoryStore(t *testing.T) {
	runStoreTests(t, func(t *testing.T) Store {
		return NewMemoryStore()
	})
}

func TestSQLiteStore(t *testing.T) {
	runStoreTests(t, func(t *testing.T) Store {
		s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "parley.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parley.db")

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	th, err := s.CreateThread("durable")
	require.NoError(t, err)
	require.NoError(t, s.AppendTurn(th.ID, turnAt(0)))
	require.NoError(t, s.Close())

	s2, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer s2.Close()

	turns, err := s2.GetThread(th.ID)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "question 0", turns[0].Messages[0].Text())
	assert.Equal(t, 15, turns[0].Usage.TotalTokens)

	info, err := s2.GetInfo(th.ID)
	require.NoError(t, err)
	assert.Equal(t, "durable", info.Label)
}
