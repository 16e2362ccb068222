package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteOptions tunes the SQLite backend.
type SQLiteOptions struct {
	// PollInterval is how often Watch checks for commits from other
	// connections. Defaults to 500ms.
	PollInterval time.Duration
	// BusyTimeout is how long a writer waits for a lock held by another
	// process. Defaults to 5s.
	BusyTimeout time.Duration
}

// SQLite keeps all keys in a single kv table. Other processes' commits are
// detected by polling PRAGMA data_version, which only changes when a
// different connection writes.
type SQLite struct {
	db   *sql.DB
	opts SQLiteOptions
	subs subscribers

	mu          sync.Mutex
	snapshot    map[string]string
	dataVersion int64
}

// NewSQLite opens (creating if needed) the database at dbPath.
func NewSQLite(dbPath string, opts SQLiteOptions) (*SQLite, error) {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = 5 * time.Second
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)",
		dbPath, opts.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// data_version is per connection; a single connection makes every
	// change it reports come from another process.
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db, opts: opts}
	ctx := context.Background()
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	snap, err := s.readAll(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.snapshot = snap
	if s.dataVersion, err = s.readDataVersion(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS kv (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updated_at INTEGER NOT NULL
);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create kv table: %w", err)
	}
	return nil
}

func (s *SQLite) Get(key string) (string, bool, error) {
	if err := validateKey(key); err != nil {
		return "", false, err
	}
	var value string
	err := s.db.QueryRowContext(context.Background(), `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLite) Set(key, value string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	const stmt = `
INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
  value=excluded.value,
  updated_at=excluded.updated_at;
`
	if _, err := s.db.ExecContext(context.Background(), stmt, key, value, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("failed to persist %s: %w", key, err)
	}
	s.mu.Lock()
	s.snapshot[key] = value
	s.mu.Unlock()
	return nil
}

func (s *SQLite) Remove(key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(context.Background(), `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	s.mu.Lock()
	delete(s.snapshot, key)
	s.mu.Unlock()
	return nil
}

func (s *SQLite) Subscribe(fn func(Change)) func() {
	return s.subs.add(fn)
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

// Watch polls for commits made by other processes until ctx is cancelled.
func (s *SQLite) Watch(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.Poll(ctx); err != nil && ctx.Err() == nil {
				return err
			}
		}
	}
}

// Poll checks once for external commits and notifies subscribers of every
// key whose value changed since the last poll.
func (s *SQLite) Poll(ctx context.Context) error {
	version, err := s.readDataVersion(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if version == s.dataVersion {
		s.mu.Unlock()
		return nil
	}
	s.dataVersion = version
	s.mu.Unlock()

	current, err := s.readAll(ctx)
	if err != nil {
		return err
	}

	var changes []Change
	s.mu.Lock()
	for key, value := range current {
		if old, ok := s.snapshot[key]; !ok || old != value {
			changes = append(changes, Change{Key: key})
		}
	}
	for key := range s.snapshot {
		if _, ok := current[key]; !ok {
			changes = append(changes, Change{Key: key, Removed: true})
		}
	}
	s.snapshot = current
	s.mu.Unlock()

	for _, c := range changes {
		s.subs.notify(c)
	}
	return nil
}

func (s *SQLite) readDataVersion(ctx context.Context) (int64, error) {
	var v int64
	if err := s.db.QueryRowContext(ctx, `PRAGMA data_version`).Scan(&v); err != nil {
		return 0, fmt.Errorf("read data_version: %w", err)
	}
	return v, nil
}

func (s *SQLite) readAll(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM kv`)
	if err != nil {
		return nil, fmt.Errorf("list kv: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan kv: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}
