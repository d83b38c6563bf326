// Package tools exposes external capabilities to the language model.
//
// A Gateway lists tool definitions and invokes tools by name with JSON
// arguments. Tool-level failures (an unknown restaurant, a closed lot) come
// back as results carrying an "error" key so the model can react to them;
// transport failures are returned as *core.ToolInvocationError.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/becomeliminal/nim-graph/core"
)

// Definition describes one callable tool.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// Gateway is the tool capability handed to the model.
type Gateway interface {
	// Definitions lists the tools the gateway can invoke.
	Definitions() []Definition

	// Invoke calls a tool with JSON arguments and returns its JSON result.
	Invoke(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error)
}

// ErrorResult encodes a tool-level failure the model should see.
func ErrorResult(msg string) json.RawMessage {
	data, _ := json.Marshal(map[string]string{"error": msg})
	return data
}

// Handler runs a local tool.
type Handler func(ctx context.Context, args json.RawMessage) (any, error)

// Static is an in-process Gateway backed by Go functions.
type Static struct {
	mu       sync.RWMutex
	defs     map[string]Definition
	handlers map[string]Handler
}

// NewStatic creates an empty in-process gateway.
func NewStatic() *Static {
	return &Static{
		defs:     make(map[string]Definition),
		handlers: make(map[string]Handler),
	}
}

// Register adds or replaces a tool.
func (s *Static) Register(def Definition, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if def.InputSchema == nil {
		def.InputSchema = ObjectSchema(map[string]any{})
	}
	s.defs[def.Name] = def
	s.handlers[def.Name] = h
}

// Definitions returns tools sorted by name.
func (s *Static) Definitions() []Definition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Definition, 0, len(s.defs))
	for _, d := range s.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Invoke runs the named handler. A handler error becomes an error result.
func (s *Static) Invoke(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	s.mu.RLock()
	h, ok := s.handlers[name]
	s.mu.RUnlock()
	if !ok {
		return nil, &core.ToolInvocationError{Tool: name, Err: fmt.Errorf("unknown tool")}
	}
	result, err := h(ctx, args)
	if err != nil {
		return ErrorResult(err.Error()), nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return nil, &core.ToolInvocationError{Tool: name, Err: fmt.Errorf("marshal result: %w", err)}
	}
	return data, nil
}

// Filter restricts a gateway to tools whose names start with one of prefixes.
func Filter(g Gateway, prefixes ...string) Gateway {
	return &filtered{next: g, prefixes: prefixes}
}

type filtered struct {
	next     Gateway
	prefixes []string
}

func (f *filtered) allowed(name string) bool {
	for _, p := range f.prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

func (f *filtered) Definitions() []Definition {
	var out []Definition
	for _, d := range f.next.Definitions() {
		if f.allowed(d.Name) {
			out = append(out, d)
		}
	}
	return out
}

func (f *filtered) Invoke(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	if !f.allowed(name) {
		return nil, &core.ToolInvocationError{Tool: name, Err: fmt.Errorf("tool not available here")}
	}
	return f.next.Invoke(ctx, name, args)
}

// Multi merges several gateways. Earlier gateways win on name clashes.
func Multi(gateways ...Gateway) Gateway {
	return multi(gateways)
}

type multi []Gateway

func (m multi) Definitions() []Definition {
	seen := make(map[string]bool)
	var out []Definition
	for _, g := range m {
		for _, d := range g.Definitions() {
			if !seen[d.Name] {
				seen[d.Name] = true
				out = append(out, d)
			}
		}
	}
	return out
}

func (m multi) Invoke(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	for _, g := range m {
		for _, d := range g.Definitions() {
			if d.Name == name {
				return g.Invoke(ctx, name, args)
			}
		}
	}
	return nil, &core.ToolInvocationError{Tool: name, Err: fmt.Errorf("unknown tool")}
}
