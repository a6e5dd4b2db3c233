package session

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteStore keeps sessions in a local SQLite file. The CLI uses it so a
// login survives between invocations.
type SQLiteStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// OpenSQLite opens (or creates) the database at path.
func OpenSQLite(path string, ttl time.Duration) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("session: creating %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("session: opening %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("session: creating schema: %w", err)
	}
	return &SQLiteStore{db: db, ttl: ttl, now: time.Now}, nil
}

func (s *SQLiteStore) expiry() int64 {
	if s.ttl <= 0 {
		return 0
	}
	return s.now().Add(s.ttl).UnixNano()
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, sessionID, key string) (string, bool, error) {
	var (
		value     string
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM session_values WHERE session_id = ? AND key = ?`,
		sessionID, key).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("session: sqlite get: %w", err)
	}
	if expiresAt != 0 && expiresAt <= s.now().UnixNano() {
		if err := s.Clear(ctx, sessionID); err != nil {
			return "", false, err
		}
		return "", false, nil
	}
	return value, true, nil
}

// Set implements Store.
func (s *SQLiteStore) Set(ctx context.Context, sessionID, key, value string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("session: sqlite begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	exp := s.expiry()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO session_values (session_id, key, value, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (session_id, key) DO UPDATE SET value = excluded.value`,
		sessionID, key, value, exp); err != nil {
		return fmt.Errorf("session: sqlite set: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE session_values SET expires_at = ? WHERE session_id = ?`, exp, sessionID); err != nil {
		return fmt.Errorf("session: sqlite touch: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("session: sqlite commit: %w", err)
	}
	return nil
}

// Remove implements Store.
func (s *SQLiteStore) Remove(ctx context.Context, sessionID string, keys ...string) error {
	for _, k := range keys {
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM session_values WHERE session_id = ? AND key = ?`, sessionID, k); err != nil {
			return fmt.Errorf("session: sqlite remove: %w", err)
		}
	}
	return nil
}

// Clear implements Store.
func (s *SQLiteStore) Clear(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM session_values WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("session: sqlite clear: %w", err)
	}
	return nil
}

// Purge deletes every expired session and returns how many rows it removed.
func (s *SQLiteStore) Purge(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM session_values WHERE expires_at != 0 AND expires_at <= ?`, s.now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("session: sqlite purge: %w", err)
	}
	return res.RowsAffected()
}

// HealthCheck implements Store.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
