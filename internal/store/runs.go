package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// --- Run operations ---

// InsertRun records a cycle outcome.
func (s *Store) InsertRun(r *Run) error {
	_, err := s.db.Exec(
		`INSERT INTO runs (id, buffer, outcome, strategies, started_at, duration_ms, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Buffer, r.Outcome, r.Strategies, r.StartedAt.UTC(), r.Duration.Milliseconds(), nullString(r.Error),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first. A non-empty buffer
// restricts the result to runs of that buffer.
func (s *Store) RecentRuns(buffer string, limit int) ([]*Run, error) {
	query := "SELECT id, buffer, outcome, strategies, started_at, duration_ms, error FROM runs"
	var args []any
	if buffer != "" {
		query += " WHERE buffer = ?"
		args = append(args, buffer)
	}
	query += " ORDER BY started_at DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("recent runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r := &Run{}
		var (
			ms     int64
			errMsg sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Buffer, &r.Outcome, &r.Strategies, &r.StartedAt, &ms, &errMsg); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Duration = time.Duration(ms) * time.Millisecond
		r.Error = errMsg.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// --- Metadata operations ---

// SetMetadata stores value under key, replacing any previous value.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		"INSERT INTO metadata (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set metadata: %w", err)
	}
	return nil
}

// GetMetadata returns the value stored under key, or "" when unset.
func (s *Store) GetMetadata(key string) (string, error) {
	var v string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get metadata: %w", err)
	}
	return v, nil
}
