// Package orchestrator processes user turns: it loads the session history,
// runs the graph, and records the exchange.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/becomeliminal/nim-graph/core"
	"github.com/becomeliminal/nim-graph/engine"
	"github.com/becomeliminal/nim-graph/nodes"
	"github.com/becomeliminal/nim-graph/session"
)

// Orchestrator runs one turn at a time per session.
type Orchestrator struct {
	workflow     *engine.Workflow
	sessions     session.Store
	locks        *session.Locker
	validate     *validator.Validate
	systemPrompt string
	logger       *zap.Logger
}

// Option configures the orchestrator.
type Option func(*Orchestrator)

// WithSystemPrompt sets the system turn placed before the history.
func WithSystemPrompt(p string) Option {
	return func(o *Orchestrator) { o.systemPrompt = p }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// New creates an orchestrator.
func New(workflow *engine.Workflow, sessions session.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		workflow:     workflow,
		sessions:     sessions,
		locks:        session.NewLocker(),
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		systemPrompt: nodes.DefaultSystemPrompt,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.Named("orchestrator")
	return o
}

// Send processes one user message and returns the assistant's reply.
//
// Only definition, routing and step limit failures, cancellation and
// history storage errors are returned. Everything else arrives as reply
// content. The exchange is recorded only when the run succeeds.
func (o *Orchestrator) Send(ctx context.Context, in core.Input) (core.Turn, error) {
	in = in.Normalize()
	if err := o.validate.Struct(in); err != nil {
		return core.Turn{}, fmt.Errorf("%w: %v", core.ErrEmptyInput, err)
	}

	unlock, err := o.locks.Lock(ctx, in.SessionID)
	if err != nil {
		return core.Turn{}, err
	}
	defer unlock()

	history, err := o.sessions.History(ctx, in.SessionID)
	if err != nil {
		return core.Turn{}, fmt.Errorf("load history: %w", err)
	}

	user := core.UserTurn(in.Message)
	messages := make([]core.Turn, 0, len(history)+2)
	if o.systemPrompt != "" {
		messages = append(messages, core.SystemTurn(o.systemPrompt))
	}
	messages = append(messages, history...)
	messages = append(messages, user)

	start := time.Now()
	final, err := o.workflow.Run(ctx, engine.State{engine.MessagesKey: messages}, in.SessionID)
	if err != nil {
		o.logger.Error("run failed", zap.String("session_id", in.SessionID), zap.Error(err))
		return core.Turn{}, err
	}

	answer, ok := engine.LastMessage(final)
	if !ok || answer.Role != core.RoleAssistant {
		answer = core.ErrorTurn(errors.New("the assistant produced no reply"))
	}

	if err := o.sessions.Append(ctx, in.SessionID, user, answer); err != nil {
		return answer, fmt.Errorf("save history: %w", err)
	}
	o.logger.Info("turn done",
		zap.String("session_id", in.SessionID),
		zap.Bool("stored", final.Bool(nodes.KeyStored)),
		zap.Bool("error", answer.IsError()),
		zap.Duration("took", time.Since(start)))
	return answer, nil
}

// History returns a session's recorded turns.
func (o *Orchestrator) History(ctx context.Context, sessionID string) ([]core.Turn, error) {
	return o.sessions.History(ctx, sessionID)
}

// Sessions lists the ids of sessions with recorded turns, sorted.
func (o *Orchestrator) Sessions(ctx context.Context) ([]string, error) {
	return o.sessions.Sessions(ctx)
}

// Clear forgets a session's history. Long-term memory is kept.
func (o *Orchestrator) Clear(ctx context.Context, sessionID string) error {
	unlock, err := o.locks.Lock(ctx, sessionID)
	if err != nil {
		return err
	}
	defer unlock()
	return o.sessions.Clear(ctx, sessionID)
}
