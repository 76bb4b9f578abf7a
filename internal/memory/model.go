package memory

import (
	"time"

	"github.com/google/uuid"
)

// Entry sources.
const (
	SourceConversation   = "conversation"
	SourceDocument       = "document-derived"
	SourceInitialization = "initialization"
)

// SeedUserID owns the sentinel entry that bootstraps an empty store.
const SeedUserID = "system"

// Entry is a row in the memories table: one persisted unit of text with its
// embedding and ownership metadata.
type Entry struct {
	ID        uuid.UUID `json:"id"`
	UserID    string    `json:"user_id"`
	Source    string    `json:"source"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Metadata renders the entry's metadata the way retrieval consumers expect:
// source, user_id and a human-readable second-precision timestamp.
func (e Entry) Metadata() map[string]any {
	return map[string]any{
		"source":    e.Source,
		"user_id":   e.UserID,
		"timestamp": e.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}
