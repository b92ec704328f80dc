package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sessionsSchema = `
CREATE TABLE IF NOT EXISTS sessions (
  id         TEXT PRIMARY KEY,
  payload    TEXT NOT NULL,
  expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS sessions_expires_at ON sessions (expires_at);`

// SQLiteStore persists sessions in a single-file database, each as one JSON
// document with an expiry timestamp in unix millis. Expiry is enforced on
// read and by a background sweep, so a crashed or restarted server still
// forgets stale games.
type SQLiteStore struct {
	sqlDB *sql.DB
	done  chan struct{}
}

func OpenSQLiteStore(path string, sweepInterval time.Duration) (*SQLiteStore, error) {
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(sessionsSchema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create sessions table: %w", err)
	}

	s := &SQLiteStore{
		sqlDB: sqlDB,
		done:  make(chan struct{}),
	}
	if sweepInterval > 0 {
		go s.sweepLoop(sweepInterval)
	}

	return s, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Session, error) {
	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT payload, expires_at FROM sessions WHERE id = ?`,
		id,
	)

	var payload string
	var expiresAt int64
	if err := row.Scan(&payload, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGameNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	if time.Now().UnixMilli() >= expiresAt {
		_, _ = s.sqlDB.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
		return nil, ErrGameNotFound
	}

	var session Session
	if err := json.Unmarshal([]byte(payload), &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}

	return &session, nil
}

func (s *SQLiteStore) Set(ctx context.Context, session *Session, ttl time.Duration) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO sessions (id, payload, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET payload = excluded.payload, expires_at = excluded.expires_at`,
		session.ID,
		string(payload),
		time.Now().Add(ttl).UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("set session: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	close(s.done)

	return s.sqlDB.Close()
}

func (s *SQLiteStore) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			_, _ = s.sqlDB.Exec(`DELETE FROM sessions WHERE expires_at <= ?`, time.Now().UnixMilli())
		}
	}
}

var _ Store = (*MemoryStore)(nil)
var _ Store = (*SQLiteStore)(nil)
