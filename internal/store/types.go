package store

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who produced a history entry.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
	RoleTool  Role = "tool"
)

// Job is a unit of work created by the scheduler. The agent only reads it.
type Job struct {
	ID        string    `json:"id"`
	Prompt    string    `json:"prompt"`
	SessionID string    `json:"session_id"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryEntry is one append-only transcript line.
type HistoryEntry struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	ToolName  string    `json:"tool_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is the persisted conversation state for one interaction thread.
// A run appends to History and never touches the other fields.
type Session struct {
	ID       string         `json:"id"`
	History  []HistoryEntry `json:"history"`
	Provider string         `json:"provider"`
}

// GenNewID generates a new UUID v7 (time-ordered) string.
func GenNewID() string {
	return uuid.Must(uuid.NewV7()).String()
}
