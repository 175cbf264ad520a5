package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/needle/internal/domain"
	"github.com/ashureev/needle/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db    *sql.DB
	retry shared.RetryPolicy
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL lets several worker processes share the file.
	dsn := "file:" + dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db, retry: shared.DefaultRetryPolicy}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS votes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL DEFAULT '',
		session_id TEXT NOT NULL DEFAULT '',
		message_index INTEGER NOT NULL,
		liked INTEGER NOT NULL,
		prompt TEXT NOT NULL,
		response TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_votes_session ON votes(session_id, id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// RecordVote stores one vote, retrying while another process holds the
// write lock.
func (s *SQLiteStore) RecordVote(ctx context.Context, fb domain.Feedback) error {
	createdAt := fb.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
	INSERT INTO votes (user_id, session_id, message_index, liked, prompt, response, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

	err := shared.RetryOnConflict(ctx, s.retry, "record_vote", func() error {
		_, err := s.db.ExecContext(ctx, query,
			fb.UserID, fb.SessionID, fb.MessageIndex, fb.Liked,
			fb.Prompt, fb.Response, createdAt.UnixMilli(),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("insert vote: %w", err)
	}
	return nil
}

// ListVotes returns the votes of a session, oldest first.
func (s *SQLiteStore) ListVotes(ctx context.Context, sessionID string) ([]domain.Feedback, error) {
	query := `
		SELECT user_id, session_id, message_index, liked, prompt, response, created_at
		FROM votes WHERE session_id = ? ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query votes: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close votes rows", "error", closeErr)
		}
	}()

	var votes []domain.Feedback
	for rows.Next() {
		var fb domain.Feedback
		var createdAt int64
		if err := rows.Scan(
			&fb.UserID, &fb.SessionID, &fb.MessageIndex, &fb.Liked,
			&fb.Prompt, &fb.Response, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan vote row: %w", err)
		}
		fb.CreatedAt = time.UnixMilli(createdAt)
		votes = append(votes, fb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate votes: %w", err)
	}

	return votes, nil
}

// CountVotes returns the number of likes and dislikes.
func (s *SQLiteStore) CountVotes(ctx context.Context) (int64, int64, error) {
	query := `
		SELECT COALESCE(SUM(CASE WHEN liked THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN liked THEN 0 ELSE 1 END), 0)
		FROM votes`

	var likes, dislikes int64
	if err := s.db.QueryRowContext(ctx, query).Scan(&likes, &dislikes); err != nil {
		return 0, 0, fmt.Errorf("count votes: %w", err)
	}
	return likes, dislikes, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

var _ Repository = (*SQLiteStore)(nil)
