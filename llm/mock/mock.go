// Package mock provides a scripted language model for tests.
package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/becomeliminal/nim-graph/llm"
)

// Handler answers one request.
type Handler func(ctx context.Context, req *llm.Request) (*llm.Reply, error)

// Model is a scripted llm.Model that records every request.
type Model struct {
	mu       sync.Mutex
	handlers map[string]Handler
	fallback Handler
	calls    []*llm.Request
}

// New creates a model that answers with fallback unless a purpose handler is set.
func New(fallback Handler) *Model {
	if fallback == nil {
		fallback = func(ctx context.Context, req *llm.Request) (*llm.Reply, error) {
			return nil, fmt.Errorf("mock: no handler for purpose %q", req.Purpose)
		}
	}
	return &Model{handlers: make(map[string]Handler), fallback: fallback}
}

// On sets the handler for requests with the given purpose.
func (m *Model) On(purpose string, h Handler) *Model {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[purpose] = h
	return m
}

// Invoke records req and dispatches it.
func (m *Model) Invoke(ctx context.Context, req *llm.Request) (*llm.Reply, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	h, ok := m.handlers[req.Purpose]
	if !ok {
		h = m.fallback
	}
	m.mu.Unlock()
	return h(ctx, req)
}

// Calls returns the recorded requests.
func (m *Model) Calls() []*llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*llm.Request(nil), m.calls...)
}

// CallsFor returns the recorded requests with the given purpose.
func (m *Model) CallsFor(purpose string) []*llm.Request {
	var out []*llm.Request
	for _, c := range m.Calls() {
		if c.Purpose == purpose {
			out = append(out, c)
		}
	}
	return out
}

// Text replies with fixed text.
func Text(s string) Handler {
	return func(context.Context, *llm.Request) (*llm.Reply, error) {
		return &llm.Reply{Text: s}, nil
	}
}

// JSON replies with v as the structured payload.
func JSON(v any) Handler {
	return func(context.Context, *llm.Request) (*llm.Reply, error) {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return &llm.Reply{Text: string(data), Structured: data}, nil
	}
}

// Fail replies with err.
func Fail(err error) Handler {
	return func(context.Context, *llm.Request) (*llm.Reply, error) {
		return nil, err
	}
}

// Sequence replies with each handler in turn, repeating the last one.
func Sequence(handlers ...Handler) Handler {
	var mu sync.Mutex
	i := 0
	return func(ctx context.Context, req *llm.Request) (*llm.Reply, error) {
		mu.Lock()
		h := handlers[i]
		if i < len(handlers)-1 {
			i++
		}
		mu.Unlock()
		return h(ctx, req)
	}
}
