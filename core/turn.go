package core

import (
	"fmt"
	"time"
)

// Role identifies who produced a Turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// MetaError marks a Turn that reports a failed step rather than real content.
const MetaError = "error"

// Turn is one message in a conversation.
// Turns are values: once built they are never modified in place.
type Turn struct {
	Role      Role              `json:"role"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewTurn creates a Turn with a private copy of metadata.
func NewTurn(role Role, content string, metadata map[string]string) Turn {
	var meta map[string]string
	if len(metadata) > 0 {
		meta = make(map[string]string, len(metadata))
		for k, v := range metadata {
			meta[k] = v
		}
	}
	return Turn{
		Role:      role,
		Content:   content,
		Metadata:  meta,
		CreatedAt: time.Now().UTC(),
	}
}

// UserTurn is shorthand for NewTurn(RoleUser, content, nil).
func UserTurn(content string) Turn { return NewTurn(RoleUser, content, nil) }

// AssistantTurn is shorthand for NewTurn(RoleAssistant, content, nil).
func AssistantTurn(content string) Turn { return NewTurn(RoleAssistant, content, nil) }

// SystemTurn is shorthand for NewTurn(RoleSystem, content, nil).
func SystemTurn(content string) Turn { return NewTurn(RoleSystem, content, nil) }

// ErrorTurn converts a failed step into an assistant reply that says so.
func ErrorTurn(err error) Turn {
	return NewTurn(RoleAssistant, fmt.Sprintf("Error: %v", err), map[string]string{MetaError: "true"})
}

// IsError reports whether the Turn was produced by ErrorTurn.
func (t Turn) IsError() bool {
	return t.Metadata[MetaError] == "true"
}

// CloneTurns returns a copy of turns that shares no backing array with the input.
func CloneTurns(turns []Turn) []Turn {
	if turns == nil {
		return nil
	}
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}

// LastOfRole returns the most recent Turn with the given role.
func LastOfRole(turns []Turn, role Role) (Turn, bool) {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == role {
			return turns[i], true
		}
	}
	return Turn{}, false
}
