package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteStorage persists sessions in a SQLite database so they survive
// restarts. Values are stored as a JSON object.
type SQLiteStorage struct {
	db        *sql.DB
	closeOnce sync.Once
	now       func() time.Time

	saveStmt    *sql.Stmt
	loadStmt    *sql.Stmt
	deleteStmt  *sql.Stmt
	cleanupStmt *sql.Stmt
}

// NewSQLiteStorage opens (or creates) the database at path. Use ":memory:"
// for a throwaway store.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	if path == "" {
		return nil, errors.New("session: sqlite path cannot be empty")
	}
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite only supports a single writer; an in-memory database also
	// exists per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	st := &SQLiteStorage{db: db, now: time.Now}
	if err := st.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := st.prepareStatements(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}
	return st, nil
}

func (st *SQLiteStorage) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		data TEXT NOT NULL,
		max_age_ms INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at);
	`
	_, err := st.db.Exec(schema)
	return err
}

func (st *SQLiteStorage) prepareStatements() error {
	var err error

	st.saveStmt, err = st.db.Prepare(`
		INSERT INTO sessions (id, data, max_age_ms, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			data = excluded.data,
			max_age_ms = excluded.max_age_ms,
			expires_at = excluded.expires_at
	`)
	if err != nil {
		return fmt.Errorf("prepare save: %w", err)
	}

	st.loadStmt, err = st.db.Prepare(`SELECT data, max_age_ms, expires_at FROM sessions WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("prepare load: %w", err)
	}

	st.deleteStmt, err = st.db.Prepare(`DELETE FROM sessions WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("prepare delete: %w", err)
	}

	st.cleanupStmt, err = st.db.Prepare(`DELETE FROM sessions WHERE expires_at < ?`)
	if err != nil {
		return fmt.Errorf("prepare cleanup: %w", err)
	}
	return nil
}

// Save implements Storage.
func (st *SQLiteStorage) Save(ctx context.Context, s *Session) error {
	data, expiresAt := s.snapshot()
	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", s.id, err)
	}
	_, err = st.saveStmt.ExecContext(ctx, s.id, string(encoded), s.maxAge.Milliseconds(), expiresAt.UnixNano())
	if err != nil {
		return fmt.Errorf("save session %s: %w", s.id, err)
	}
	return nil
}

// Load implements Storage. Expired rows are deleted on the way out.
func (st *SQLiteStorage) Load(ctx context.Context, id string) (*Session, error) {
	var (
		encoded   string
		maxAgeMS  int64
		expiresAt int64
	)
	err := st.loadStmt.QueryRowContext(ctx, id).Scan(&encoded, &maxAgeMS, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}

	s := &Session{
		id:        id,
		data:      make(map[string]string),
		maxAge:    time.Duration(maxAgeMS) * time.Millisecond,
		expiresAt: time.Unix(0, expiresAt),
	}
	if s.Expired(st.now()) {
		if err := st.Delete(ctx, id); err != nil {
			return nil, err
		}
		return nil, nil
	}
	if err := json.Unmarshal([]byte(encoded), &s.data); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return s, nil
}

// Delete implements Storage.
func (st *SQLiteStorage) Delete(ctx context.Context, id string) error {
	if _, err := st.deleteStmt.ExecContext(ctx, id); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

// DeleteExpired implements Storage.
func (st *SQLiteStorage) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := st.cleanupStmt.ExecContext(ctx, now.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return int(n), nil
}

// Close releases the prepared statements and the database.
func (st *SQLiteStorage) Close() error {
	var err error
	st.closeOnce.Do(func() {
		for _, stmt := range []*sql.Stmt{st.saveStmt, st.loadStmt, st.deleteStmt, st.cleanupStmt} {
			if stmt != nil {
				_ = stmt.Close()
			}
		}
		err = st.db.Close()
	})
	return err
}
