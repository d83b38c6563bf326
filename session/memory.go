package session

import (
	"context"
	"sort"
	"sync"

	"github.com/becomeliminal/nim-graph/core"
)

// MemoryStore keeps history in process memory. Lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*history
	closed   bool
}

type history struct {
	mu    sync.Mutex
	turns []core.Turn
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*history)}
}

// getOrCreate returns the history for a session, creating it on first use.
func (s *MemoryStore) getOrCreate(sessionID string) (*history, error) {
	s.mu.RLock()
	h, ok := s.sessions[sessionID]
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	if ok {
		return h, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check after acquiring write lock
	if h, ok := s.sessions[sessionID]; ok {
		return h, nil
	}
	h = &history{}
	s.sessions[sessionID] = h
	return h, nil
}

func (s *MemoryStore) History(ctx context.Context, sessionID string) ([]core.Turn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h, err := s.getOrCreate(sessionID)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	out := core.CloneTurns(h.turns)
	if out == nil {
		out = []core.Turn{}
	}
	return out, nil
}

func (s *MemoryStore) Append(ctx context.Context, sessionID string, turns ...core.Turn) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h, err := s.getOrCreate(sessionID)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, turns...)
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h, err := s.getOrCreate(sessionID)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = nil
	return nil
}

func (s *MemoryStore) Sessions(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	ids := make([]string, 0, len(s.sessions))
	for id, h := range s.sessions {
		h.mu.Lock()
		n := len(h.turns)
		h.mu.Unlock()
		if n > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.sessions = nil
	return nil
}
