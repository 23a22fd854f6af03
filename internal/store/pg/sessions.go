// Package pg implements the session store on Postgres.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/nextlevelbuilder/jobagent/internal/store"
)

// SessionStore persists sessions in Postgres. History rows are ordered by a
// BIGSERIAL id, so append order is preserved across concurrent writers.
type SessionStore struct {
	db *sqlx.DB
}

type historyRow struct {
	Role      string    `db:"role"`
	Content   string    `db:"content"`
	ToolName  string    `db:"tool_name"`
	CreatedAt time.Time `db:"created_at"`
}

// Open migrates the schema at dsn and returns a store on a fresh pool.
func Open(ctx context.Context, dsn string) (*SessionStore, error) {
	if err := Migrate(dsn); err != nil {
		return nil, err
	}
	db, err := OpenDB(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return NewSessionStore(db), nil
}

// NewSessionStore wraps db. The schema must already be migrated.
func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: sqlx.NewDb(db, "pgx")}
}

func (s *SessionStore) GetOrCreate(ctx context.Context, id, provider string) (*store.Session, error) {
	if err := store.ValidateSessionID(id); err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO agent_sessions (id, provider) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`,
		id, provider,
	); err != nil {
		return nil, fmt.Errorf("create session %s: %w", id, err)
	}

	sess := &store.Session{ID: id}
	if err := s.db.GetContext(ctx, &sess.Provider,
		`SELECT provider FROM agent_sessions WHERE id = $1`, id,
	); err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}

	var rows []historyRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT role, content, tool_name, created_at FROM agent_session_history
		 WHERE session_id = $1 ORDER BY id`, id,
	); err != nil {
		return nil, fmt.Errorf("load history %s: %w", id, err)
	}
	for _, r := range rows {
		sess.History = append(sess.History, store.HistoryEntry{
			Role:      store.Role(r.Role),
			Content:   r.Content,
			ToolName:  r.ToolName,
			CreatedAt: r.CreatedAt,
		})
	}
	return sess, nil
}

func (s *SessionStore) AppendHistory(ctx context.Context, sessionID string, e store.HistoryEntry) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO agent_session_history (session_id, role, content, tool_name, created_at)
		 SELECT $1, $2, $3, $4, $5 WHERE EXISTS (SELECT 1 FROM agent_sessions WHERE id = $1)`,
		sessionID, string(e.Role), e.Content, e.ToolName, e.CreatedAt,
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

func (s *SessionStore) Close() error {
	err := s.db.Close()
	if errors.Is(err, sql.ErrConnDone) {
		return nil
	}
	return err
}
