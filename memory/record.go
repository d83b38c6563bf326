package memory

import (
	"time"

	"github.com/google/uuid"
)

// Record is one stored memory.
type Record struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"-"`
	// Source names what produced the record, usually the session id.
	Source    string    `json:"source,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewRecord creates a record with a fresh id. The embedding is set later.
func NewRecord(text, source string) Record {
	return Record{
		ID:        uuid.NewString(),
		Text:      text,
		Source:    source,
		CreatedAt: time.Now().UTC(),
	}
}

// truncate truncates a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen < 3 {
		return "..."
	}
	return s[:maxLen-3] + "..."
}
