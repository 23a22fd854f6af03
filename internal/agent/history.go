package agent

import (
	"context"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/nextlevelbuilder/jobagent/internal/providers"
	"github.com/nextlevelbuilder/jobagent/internal/store"
)

const (
	// DefaultToolResultLimit is the longest tool entry, in characters, kept in history.
	DefaultToolResultLimit = 1000

	// TruncationMarker is appended to tool entries cut at the limit.
	TruncationMarker = "… [truncated]"
)

// History is the append-only transcript of one run. Entries are mirrored
// onto the session and persisted through the session store when one is set.
type History struct {
	session *store.Session
	store   store.SessionStore
	limit   int
	logger  *slog.Logger
}

func newHistory(sess *store.Session, st store.SessionStore, limit int, logger *slog.Logger) *History {
	if limit <= 0 {
		limit = DefaultToolResultLimit
	}
	return &History{session: sess, store: st, limit: limit, logger: logger}
}

func (h *History) AppendUser(ctx context.Context, text string) {
	h.append(ctx, store.HistoryEntry{Role: store.RoleUser, Content: text})
}

func (h *History) AppendModel(ctx context.Context, text string) {
	h.append(ctx, store.HistoryEntry{Role: store.RoleModel, Content: text})
}

// AppendTool records a tool outcome, truncated to the history limit.
func (h *History) AppendTool(ctx context.Context, toolName, output string) {
	h.append(ctx, store.HistoryEntry{
		Role:     store.RoleTool,
		ToolName: toolName,
		Content:  Truncate(output, h.limit),
	})
}

func (h *History) append(ctx context.Context, e store.HistoryEntry) {
	e.CreatedAt = time.Now().UTC()
	h.session.History = append(h.session.History, e)
	if h.store == nil {
		return
	}
	if err := h.store.AppendHistory(ctx, h.session.ID, e); err != nil {
		h.logger.Warn("history persist failed", "session", h.session.ID, "role", e.Role, "error", err)
	}
}

// Len returns the number of entries.
func (h *History) Len() int { return len(h.session.History) }

// Entries returns a copy of the transcript.
func (h *History) Entries() []store.HistoryEntry {
	return append([]store.HistoryEntry(nil), h.session.History...)
}

// Messages projects the transcript onto the provider's two roles. Tool
// entries become user messages that wrap the tool output.
func (h *History) Messages() []providers.Message {
	msgs := make([]providers.Message, 0, len(h.session.History))
	for _, e := range h.session.History {
		switch e.Role {
		case store.RoleModel:
			msgs = append(msgs, providers.Message{Role: providers.RoleModel, Text: e.Content})
		case store.RoleTool:
			name := e.ToolName
			if name == "" {
				name = "system"
			}
			msgs = append(msgs, providers.Message{
				Role: providers.RoleUser,
				Text: "[Tool result: " + name + "]\n" + e.Content,
			})
		default:
			msgs = append(msgs, providers.Message{Role: providers.RoleUser, Text: e.Content})
		}
	}
	return msgs
}

// Truncate cuts s to limit characters and appends TruncationMarker. Strings
// within the limit are returned unchanged.
func Truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit]) + TruncationMarker
}
