// Package llm is the language model capability used by graph nodes.
//
// Every provider reply is normalized at the boundary into a Reply with the
// text, an optional structured payload, and the raw provider response.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/becomeliminal/nim-graph/core"
	"github.com/becomeliminal/nim-graph/tools"
)

// Schema asks the model for a single JSON object of a fixed shape.
type Schema struct {
	Name        string
	Description string
	Properties  map[string]any
	Required    []string
}

// Request is one model invocation.
type Request struct {
	// Purpose labels the call for logs and metrics, e.g. "chat" or "evaluate".
	Purpose string

	// System is prepended to any system turns found in Messages.
	System string

	// Messages is the conversation. System turns are folded into the system prompt.
	Messages []core.Turn

	// Schema, when set, forces a structured reply in Reply.Structured.
	Schema *Schema

	// Tools, when set, lets the model call tools until it produces text.
	Tools tools.Gateway

	// MaxTokens overrides the adapter default when positive.
	MaxTokens int64
}

// ToolCall records one tool use made while answering.
type ToolCall struct {
	Name    string          `json:"name"`
	Input   json.RawMessage `json:"input"`
	Output  json.RawMessage `json:"output,omitempty"`
	IsError bool            `json:"is_error,omitempty"`
}

// Reply is the normalized model response.
type Reply struct {
	Text       string
	Structured json.RawMessage
	ToolCalls  []ToolCall
	// Raw is the provider's own response value.
	Raw any
}

// Model is a language model.
type Model interface {
	Invoke(ctx context.Context, req *Request) (*Reply, error)
}

// ModelFunc adapts a function to Model.
type ModelFunc func(ctx context.Context, req *Request) (*Reply, error)

func (f ModelFunc) Invoke(ctx context.Context, req *Request) (*Reply, error) {
	return f(ctx, req)
}

// Decode invokes m with a schema and unmarshals the structured reply into T.
func Decode[T any](ctx context.Context, m Model, req *Request) (T, error) {
	var out T
	if req.Schema == nil {
		return out, &core.LanguageModelError{Op: req.Purpose, Err: fmt.Errorf("structured request without schema")}
	}
	reply, err := m.Invoke(ctx, req)
	if err != nil {
		return out, asModelError(req.Purpose, err)
	}
	if reply == nil || len(reply.Structured) == 0 {
		return out, &core.LanguageModelError{Op: req.Purpose, Err: fmt.Errorf("reply has no structured output")}
	}
	if err := json.Unmarshal(reply.Structured, &out); err != nil {
		return out, &core.LanguageModelError{Op: req.Purpose, Err: fmt.Errorf("decode %s: %w", req.Schema.Name, err)}
	}
	return out, nil
}

// Text invokes m and returns the trimmed reply text.
func Text(ctx context.Context, m Model, req *Request) (string, error) {
	reply, err := m.Invoke(ctx, req)
	if err != nil {
		return "", asModelError(req.Purpose, err)
	}
	if reply == nil {
		return "", &core.LanguageModelError{Op: req.Purpose, Err: fmt.Errorf("empty reply")}
	}
	return strings.TrimSpace(reply.Text), nil
}

func asModelError(op string, err error) error {
	var lme *core.LanguageModelError
	if errors.As(err, &lme) {
		return err
	}
	return &core.LanguageModelError{Op: op, Err: err}
}

// SplitSystem folds system turns into one system prompt and returns the rest.
func SplitSystem(system string, turns []core.Turn) (string, []core.Turn) {
	var parts []string
	if strings.TrimSpace(system) != "" {
		parts = append(parts, system)
	}
	convo := make([]core.Turn, 0, len(turns))
	for _, t := range turns {
		if t.Role == core.RoleSystem {
			if strings.TrimSpace(t.Content) != "" {
				parts = append(parts, t.Content)
			}
			continue
		}
		convo = append(convo, t)
	}
	return strings.Join(parts, "\n\n"), convo
}
