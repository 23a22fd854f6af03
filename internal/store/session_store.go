package store

import (
	"context"
	"errors"
)

// ErrSessionNotFound is returned when a session ID is unknown to the store.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore persists sessions and their append-only history.
type SessionStore interface {
	// GetOrCreate loads a session with its full history, creating an empty one
	// tagged with provider when it does not exist yet.
	GetOrCreate(ctx context.Context, id, provider string) (*Session, error)

	// AppendHistory appends one entry at the end of the session's history.
	AppendHistory(ctx context.Context, sessionID string, entry HistoryEntry) error

	Close() error
}
