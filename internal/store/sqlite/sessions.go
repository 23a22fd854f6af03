// Package sqlite implements the session store on an embedded SQLite file.
package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nextlevelbuilder/jobagent/internal/store"
)

// SessionStore persists sessions in a local SQLite database.
type SessionStore struct {
	db *sqlx.DB
}

type historyRow struct {
	Role      string `db:"role"`
	Content   string `db:"content"`
	ToolName  string `db:"tool_name"`
	CreatedAt int64  `db:"created_at"` // unix nanoseconds
}

// Open opens (or creates) the database at path and initializes the schema.
func Open(ctx context.Context, path string) (*SessionStore, error) {
	db, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer keeps appends strictly ordered.
	db.SetMaxOpenConns(1)

	s := &SessionStore{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	slog.Info("session store opened", "path", path)
	return s, nil
}

func (s *SessionStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			provider TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
		)`,
		`CREATE TABLE IF NOT EXISTS session_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			tool_name TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_session_history_session ON session_history(session_id, id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SessionStore) GetOrCreate(ctx context.Context, id, provider string) (*store.Session, error) {
	if err := store.ValidateSessionID(id); err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO sessions (id, provider) VALUES (?, ?)`, id, provider,
	); err != nil {
		return nil, fmt.Errorf("create session %s: %w", id, err)
	}

	sess := &store.Session{ID: id}
	if err := s.db.GetContext(ctx, &sess.Provider,
		`SELECT provider FROM sessions WHERE id = ?`, id,
	); err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}

	var rows []historyRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT role, content, tool_name, created_at FROM session_history
		 WHERE session_id = ? ORDER BY id`, id,
	); err != nil {
		return nil, fmt.Errorf("load history %s: %w", id, err)
	}
	for _, r := range rows {
		sess.History = append(sess.History, store.HistoryEntry{
			Role:      store.Role(r.Role),
			Content:   r.Content,
			ToolName:  r.ToolName,
			CreatedAt: time.Unix(0, r.CreatedAt).UTC(),
		})
	}
	return sess, nil
}

func (s *SessionStore) AppendHistory(ctx context.Context, sessionID string, e store.HistoryEntry) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO session_history (session_id, role, content, tool_name, created_at)
		 SELECT ?, ?, ?, ?, ? WHERE EXISTS (SELECT 1 FROM sessions WHERE id = ?)`,
		sessionID, string(e.Role), e.Content, e.ToolName, e.CreatedAt.UnixNano(), sessionID,
	)
	if err != nil {
		return fmt.Errorf("append history %s: %w", sessionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrSessionNotFound
	}
	return nil
}

func (s *SessionStore) Close() error { return s.db.Close() }
