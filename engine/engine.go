// Package engine runs conversation graphs.
//
// A graph is a set of named nodes joined by static, conditional and fan-out
// edges. A run proceeds in supersteps: every active task runs concurrently,
// their updates are merged into the state in dispatch order through the
// channel reducers, and the outgoing edges of each task pick the next set of
// tasks. Node failures are contained: an error, panic or timeout becomes an
// error turn in the conversation and the run carries on along the node's
// normal edge. Only definition, routing and step limit errors end a run.
package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/becomeliminal/nim-graph/core"
)

// DefaultMaxSteps bounds a run when no limit is configured.
const DefaultMaxSteps = 25

// Workflow is a compiled, immutable graph ready to run.
type Workflow struct {
	nodes       map[string]*node
	outgoing    map[string][]edge
	channels    map[string]Reducer
	maxSteps    int
	nodeTimeout time.Duration
	concurrency int
	logger      *zap.Logger
	metrics     *Metrics
}

// Option configures a compiled workflow.
type Option func(*Workflow)

// WithMaxSteps sets the superstep limit.
func WithMaxSteps(n int) Option {
	return func(w *Workflow) {
		w.maxSteps = n
	}
}

// WithNodeTimeout sets a default timeout for nodes without their own.
func WithNodeTimeout(d time.Duration) Option {
	return func(w *Workflow) {
		w.nodeTimeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Workflow) {
		w.logger = l
	}
}

// WithMetrics records node and run metrics.
func WithMetrics(m *Metrics) Option {
	return func(w *Workflow) {
		w.metrics = m
	}
}

// WithConcurrency caps how many tasks of one step run at once.
func WithConcurrency(n int) Option {
	return func(w *Workflow) {
		w.concurrency = n
	}
}

// Compile validates a definition and freezes it into a Workflow.
func Compile(def *Definition, opts ...Option) (*Workflow, error) {
	w := &Workflow{
		nodes:    make(map[string]*node, len(def.nodes)),
		outgoing: make(map[string][]edge),
		channels: make(map[string]Reducer, len(def.channels)),
		maxSteps: DefaultMaxSteps,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}

	problems := def.validate()
	if w.maxSteps <= 0 {
		problems = append(problems, fmt.Sprintf("max steps must be positive, got %d", w.maxSteps))
	}
	if len(problems) > 0 {
		return nil, &GraphDefinitionError{Problems: problems}
	}

	for name, n := range def.nodes {
		cp := *n
		w.nodes[name] = &cp
	}
	for _, e := range def.edges {
		w.outgoing[e.from] = append(w.outgoing[e.from], e)
	}
	for name, r := range def.channels {
		w.channels[name] = r
	}
	w.logger = w.logger.Named("engine")
	return w, nil
}

type ctxKey struct{}

// SessionID returns the session a node is running for, or "".
func SessionID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// Execution is a run started in the background.
type Execution struct {
	// ID identifies the run in logs.
	ID string

	done  chan struct{}
	state State
	err   error
}

// Wait blocks until the run finishes.
func (e *Execution) Wait() (State, error) {
	<-e.done
	return e.state, e.err
}

// Done is closed when the run finishes.
func (e *Execution) Done() <-chan struct{} {
	return e.done
}

// Start runs the graph in the background.
func (w *Workflow) Start(ctx context.Context, initial State, sessionID string) *Execution {
	exec := &Execution{ID: uuid.New().String(), done: make(chan struct{})}
	go func() {
		defer close(exec.done)
		exec.state, exec.err = w.run(ctx, exec.ID, initial, sessionID)
	}()
	return exec
}

// Run executes the graph to completion and returns the final state.
func (w *Workflow) Run(ctx context.Context, initial State, sessionID string) (State, error) {
	return w.Start(ctx, initial, sessionID).Wait()
}

type task struct {
	node  string
	input State // set for fan-out tasks, nil means the shared state
}

func (w *Workflow) run(ctx context.Context, runID string, initial State, sessionID string) (State, error) {
	ctx = context.WithValue(ctx, ctxKey{}, sessionID)
	logger := w.logger.With(zap.String("run_id", runID), zap.String("session_id", sessionID))

	state := initial.Clone()

	active, err := w.next(ctx, nil, Start, state)
	if err != nil {
		w.metrics.runFailed("routing")
		return state, err
	}

	steps := 0
	for len(active) > 0 {
		if err := ctx.Err(); err != nil {
			w.metrics.runFailed("canceled")
			return state, err
		}
		if steps >= w.maxSteps {
			w.metrics.runFailed("step_limit")
			logger.Warn("step limit exceeded", zap.Int("limit", w.maxSteps))
			return state, &StepLimitExceededError{Limit: w.maxSteps}
		}
		steps++

		updates := w.step(ctx, logger, active, state)
		for i, u := range updates {
			merged, err := w.merge(state, u)
			if err != nil {
				logger.Warn("contained merge failure", zap.String("node", active[i].node), zap.Error(err))
				merged, _ = w.merge(state, Update{MessagesKey: core.ErrorTurn(err)})
			}
			state = merged
		}

		var following []task
		seen := make(map[string]bool)
		for _, t := range active {
			nt, err := w.next(ctx, nil, t.node, state)
			if err != nil {
				w.metrics.runFailed("routing")
				return state, err
			}
			for _, n := range nt {
				if n.input == nil {
					if seen[n.node] {
						continue
					}
					seen[n.node] = true
				}
				following = append(following, n)
			}
		}
		active = following
	}

	w.metrics.runFinished(steps)
	logger.Debug("run finished", zap.Int("steps", steps))
	return state, nil
}

// step runs the active tasks concurrently and returns their updates in
// dispatch order.
func (w *Workflow) step(ctx context.Context, logger *zap.Logger, active []task, state State) []Update {
	updates := make([]Update, len(active))
	var g errgroup.Group
	if w.concurrency > 0 {
		g.SetLimit(w.concurrency)
	}
	for i, t := range active {
		input := t.input
		if input == nil {
			input = state.Clone()
		}
		g.Go(func() error {
			updates[i] = w.execute(ctx, logger, w.nodes[t.node], input)
			return nil
		})
	}
	_ = g.Wait()
	return updates
}

type outcome struct {
	update Update
	err    error
	status string
}

// execute runs one node, turning any failure into an error turn.
func (w *Workflow) execute(ctx context.Context, logger *zap.Logger, n *node, input State) Update {
	timeout := n.timeout
	if timeout == 0 {
		timeout = w.nodeTimeout
	}
	nctx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		nctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	result := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("node panicked", zap.String("node", n.name), zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
				result <- outcome{err: fmt.Errorf("node %s panicked: %v", n.name, r), status: "panic"}
			}
		}()
		u, err := n.fn(nctx, input)
		if err != nil {
			result <- outcome{err: fmt.Errorf("node %s: %w", n.name, err), status: "error"}
			return
		}
		result <- outcome{update: u, status: "ok"}
	}()

	var out outcome
	select {
	case out = <-result:
	case <-nctx.Done():
		out = outcome{err: fmt.Errorf("node %s: %w", n.name, nctx.Err()), status: "timeout"}
	}

	if out.err == nil {
		for key := range out.update {
			if _, ok := w.channels[key]; !ok {
				out = outcome{err: fmt.Errorf("node %s wrote undeclared channel %q", n.name, key), status: "error"}
				break
			}
		}
	}

	took := time.Since(start)
	w.metrics.observeNode(n.name, out.status, took)
	if out.err != nil {
		logger.Warn("contained node failure",
			zap.String("node", n.name),
			zap.String("status", out.status),
			zap.Duration("took", took),
			zap.Error(out.err))
		return Update{MessagesKey: core.ErrorTurn(out.err)}
	}
	logger.Debug("node finished", zap.String("node", n.name), zap.Duration("took", took))
	return out.update
}

// merge applies an update to a copy of state.
func (w *Workflow) merge(state State, u Update) (State, error) {
	if len(u) == 0 {
		return state, nil
	}
	out := make(State, len(state)+len(u))
	for k, v := range state {
		out[k] = v
	}
	for key, value := range u {
		reducer, ok := w.channels[key]
		if !ok {
			return state, fmt.Errorf("undeclared channel %q", key)
		}
		merged, err := reducer(state[key], value)
		if err != nil {
			return state, fmt.Errorf("merge channel %q: %w", key, err)
		}
		out[key] = merged
	}
	return out, nil
}

// next resolves the outgoing edges of a node against the merged state.
func (w *Workflow) next(ctx context.Context, out []task, from string, state State) ([]task, error) {
	for _, e := range w.outgoing[from] {
		switch e.kind {
		case staticEdge:
			if e.to != End {
				out = append(out, task{node: e.to})
			}
		case conditionalEdge:
			label, err := callPredicate(ctx, e.predicate, state.Clone())
			if err != nil {
				return nil, &RoutingError{From: from, Err: err}
			}
			to, ok := e.routes[label]
			if !ok {
				return nil, &RoutingError{From: from, Label: label}
			}
			if to != End {
				out = append(out, task{node: to})
			}
		case fanOutEdge:
			sends, err := callDispatcher(ctx, e.dispatcher, state.Clone())
			if err != nil {
				return nil, &RoutingError{From: from, Err: err}
			}
			for _, s := range sends {
				if !contains(e.targets, s.Node) {
					return nil, &RoutingError{From: from, Label: s.Node}
				}
				input := s.State
				if input == nil {
					input = State{}
				}
				out = append(out, task{node: s.Node, input: input.Clone()})
			}
		}
	}
	return out, nil
}

func callPredicate(ctx context.Context, p Predicate, s State) (label string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("predicate panicked: %v", r)
		}
	}()
	return p(ctx, s)
}

func callDispatcher(ctx context.Context, d Dispatcher, s State) (sends []Send, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispatcher panicked: %v", r)
		}
	}()
	return d(ctx, s)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
