package history

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/parley-ai/parley/pkg/types"
)

// SQLiteStore is the durable Store. Turns are stored as JSON payloads keyed by
// (thread_id, turn_index); the canonical form is the schema, so provider or
// model changes never require a migration.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path. ":memory:"
// gives a throwaway database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Keep sqlite responsive under contention.
	_, _ = db.Exec("PRAGMA busy_timeout = 5000;")
	_, _ = db.Exec("PRAGMA journal_mode = WAL;")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL;")

	schema := []string{
		`CREATE TABLE IF NOT EXISTS threads (
			id TEXT PRIMARY KEY,
			parent_id TEXT,
			fork_from INTEGER NOT NULL DEFAULT 0,
			label TEXT,
			created_at_ns INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_threads_parent ON threads(parent_id);`,
		`CREATE TABLE IF NOT EXISTS turns (
			thread_id TEXT NOT NULL,
			turn_index INTEGER NOT NULL,
			payload TEXT NOT NULL,
			created_at_ns INTEGER NOT NULL,
			PRIMARY KEY (thread_id, turn_index)
		);`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateThread implements Store.
func (s *SQLiteStore) CreateThread(label string) (ThreadInfo, error) {
	info := ThreadInfo{
		ID:        uuid.New().String(),
		Label:     label,
		CreatedAt: time.Now(),
	}
	_, err := s.db.Exec(
		`INSERT INTO threads(id, parent_id, fork_from, label, created_at_ns) VALUES(?, NULL, 0, ?, ?)`,
		info.ID, nullIfEmpty(label), info.CreatedAt.UnixNano(),
	)
	if err != nil {
		return ThreadInfo{}, fmt.Errorf("failed to create thread: %w", err)
	}
	return info, nil
}

// AppendTurn implements Store. The next-index check and the insert run in one
// transaction, so concurrent appends to the same thread cannot both succeed
// with the same index.
func (s *SQLiteStore) AppendTurn(threadID string, turn types.Turn) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var parentID sql.NullString
	var forkFrom int
	err = tx.QueryRow(`SELECT parent_id, fork_from FROM threads WHERE id = ?`, threadID).Scan(&parentID, &forkFrom)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrThreadNotFound, threadID)
	}
	if err != nil {
		return err
	}

	var next int
	err = tx.QueryRow(
		`SELECT COALESCE(MAX(turn_index) + 1, ?) FROM turns WHERE thread_id = ?`,
		forkFrom, threadID,
	).Scan(&next)
	if err != nil {
		return err
	}
	if turn.TurnIndex != next {
		return fmt.Errorf("%w: thread %s expects index %d, got %d", ErrTurnIndexConflict, threadID, next, turn.TurnIndex)
	}

	turn.ThreadID = threadID
	turn.ParentThreadID = parentID.String
	turn.ForkFromTurnIndex = forkFrom
	payload, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("failed to marshal turn: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO turns(thread_id, turn_index, payload, created_at_ns) VALUES(?, ?, ?, ?)`,
		threadID, turn.TurnIndex, string(payload), time.Now().UnixNano(),
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// Fork implements Store.
func (s *SQLiteStore) Fork(parentThreadID string, forkFrom int, label string) (ThreadInfo, error) {
	parentLen, err := s.resolvedLength(parentThreadID)
	if err != nil {
		return ThreadInfo{}, err
	}
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
	_, err = s.db.Exec(
		`INSERT INTO threads(id, parent_id, fork_from, label, created_at_ns) VALUES(?, ?, ?, ?, ?)`,
		info.ID, parentThreadID, forkFrom, nullIfEmpty(label), info.CreatedAt.UnixNano(),
	)
	if err != nil {
		return ThreadInfo{}, fmt.Errorf("failed to create fork: %w", err)
	}
	return info, nil
}

// GetThread implements Store.
func (s *SQLiteStore) GetThread(threadID string) ([]types.Turn, error) {
	info, err := s.GetInfo(threadID)
	if err != nil {
		return nil, err
	}

	var turns []types.Turn
	if info.ParentID != "" {
		parentTurns, err := s.GetThread(info.ParentID)
		if err != nil {
			return nil, err
		}
		if info.ForkFromTurnIndex > len(parentTurns) {
			return nil, fmt.Errorf("%w: fork at %d, parent has %d turns", ErrForkPointOutOfRange, info.ForkFromTurnIndex, len(parentTurns))
		}
		turns = append(turns, parentTurns[:info.ForkFromTurnIndex]...)
	}

	rows, err := s.db.Query(
		`SELECT payload FROM turns WHERE thread_id = ? ORDER BY turn_index ASC`,
		threadID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var turn types.Turn
		if err := json.Unmarshal([]byte(payload), &turn); err != nil {
			return nil, fmt.Errorf("failed to unmarshal turn: %w", err)
		}
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}

// GetInfo implements Store.
func (s *SQLiteStore) GetInfo(threadID string) (ThreadInfo, error) {
	var info ThreadInfo
	var parentID, label sql.NullString
	var createdNS int64
	err := s.db.QueryRow(
		`SELECT id, parent_id, fork_from, label, created_at_ns FROM threads WHERE id = ?`,
		threadID,
	).Scan(&info.ID, &parentID, &info.ForkFromTurnIndex, &label, &createdNS)
	if errors.Is(err, sql.ErrNoRows) {
		return ThreadInfo{}, fmt.Errorf("%w: %s", ErrThreadNotFound, threadID)
	}
	if err != nil {
		return ThreadInfo{}, err
	}
	info.ParentID = parentID.String
	info.Label = label.String
	info.CreatedAt = time.Unix(0, createdNS)

	info.TurnCount, err = s.resolvedLengthFrom(info)
	if err != nil {
		return ThreadInfo{}, err
	}
	return info, nil
}

func (s *SQLiteStore) resolvedLength(threadID string) (int, error) {
	var parentID sql.NullString
	var forkFrom int
	err := s.db.QueryRow(`SELECT parent_id, fork_from FROM threads WHERE id = ?`, threadID).Scan(&parentID, &forkFrom)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", ErrThreadNotFound, threadID)
	}
	if err != nil {
		return 0, err
	}
	return s.resolvedLengthFrom(ThreadInfo{ID: threadID, ForkFromTurnIndex: forkFrom})
}

func (s *SQLiteStore) resolvedLengthFrom(info ThreadInfo) (int, error) {
	var next int
	err := s.db.QueryRow(
		`SELECT COALESCE(MAX(turn_index) + 1, ?) FROM turns WHERE thread_id = ?`,
		info.ForkFromTurnIndex, info.ID,
	).Scan(&next)
	if err != nil {
		return 0, err
	}
	return next, nil
}

// ListThreads implements Store.
func (s *SQLiteStore) ListThreads() ([]ThreadInfo, error) {
	rows, err := s.db.Query(`SELECT id FROM threads ORDER BY created_at_ns DESC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]ThreadInfo, 0, len(ids))
	for _, id := range ids {
		info, err := s.GetInfo(id)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, nil
}

// Rename implements Store.
func (s *SQLiteStore) Rename(threadID, label string) error {
	res, err := s.db.Exec(`UPDATE threads SET label = ? WHERE id = ?`, nullIfEmpty(label), threadID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrThreadNotFound, threadID)
	}
	return nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
