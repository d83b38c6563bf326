// Package session keeps per-conversation chat history.
//
// A session is created the first time it is referenced, grows by appending
// turns, and is emptied only by Clear. Writes to one session are serialized;
// different sessions never block each other.
package session

import (
	"context"
	"errors"

	"github.com/becomeliminal/nim-graph/core"
)

// ErrClosed is returned by stores used after Close.
var ErrClosed = errors.New("session store closed")

// Store is the chat history backend.
type Store interface {
	// History returns the turns of a session in insertion order.
	// Unknown sessions have an empty history.
	History(ctx context.Context, sessionID string) ([]core.Turn, error)

	// Append adds turns to the end of a session's history.
	Append(ctx context.Context, sessionID string, turns ...core.Turn) error

	// Clear empties a session's history.
	Clear(ctx context.Context, sessionID string) error

	// Sessions lists the ids of sessions that have at least one turn.
	Sessions(ctx context.Context) ([]string, error)

	// Close releases resources.
	Close() error
}
