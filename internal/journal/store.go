// Package journal keeps an on-disk audit trail of editor round trips.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one recorded round trip.
type Entry struct {
	ID        int64
	SessionID string
	Command   string
	FilePath  string
	ElementID string
	Success   bool
	Error     string
	Duration  time.Duration
	CreatedAt time.Time
}

// SQLiteStore persists entries in a single-table SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create journal directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open journal: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, logger: logger}
	if err := runMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal migration failed: %w", err)
	}
	return store, nil
}

// Record appends an entry. A zero CreatedAt is stamped with the current time.
func (s *SQLiteStore) Record(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	success := 0
	if e.Success {
		success = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO round_trips (session_id, command, file_path, element_id, success, error, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SessionID, e.Command, e.FilePath, e.ElementID, success, e.Error,
		e.Duration.Milliseconds(), e.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record round trip: %w", err)
	}
	return nil
}

const selectEntries = `SELECT id, session_id, command, COALESCE(file_path, ''), COALESCE(element_id, ''),
		success, COALESCE(error, ''), duration_ms, created_at FROM round_trips`

// Recent returns up to limit entries, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.query(ctx, selectEntries+` ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
}

// ForSession returns every entry of one session in the order it was recorded.
func (s *SQLiteStore) ForSession(ctx context.Context, sessionID string) ([]Entry, error) {
	return s.query(ctx, selectEntries+` WHERE session_id = ? ORDER BY id`, sessionID)
}

func (s *SQLiteStore) query(ctx context.Context, q string, args ...any) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var success int
		var durMS, created int64
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Command, &e.FilePath, &e.ElementID,
			&success, &e.Error, &durMS, &created); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		e.Success = success == 1
		e.Duration = time.Duration(durMS) * time.Millisecond
		e.CreatedAt = time.UnixMilli(created)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Prune deletes entries older than the cutoff and reports how many went.
func (s *SQLiteStore) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM round_trips WHERE created_at < ?`, olderThan.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune journal: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Info("pruned journal", "removed", n, "cutoff", olderThan)
	}
	return n, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
