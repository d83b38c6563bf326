package engine

import (
	"context"
	"fmt"
	"time"
)

// Reserved node names marking where a run begins and ends.
const (
	Start = "__start__"
	End   = "__end__"
)

// NodeFunc is one processing step. It reads a snapshot of the state and
// returns the channels it wants to change.
type NodeFunc func(ctx context.Context, state State) (Update, error)

// Predicate picks the label of a conditional edge.
type Predicate func(ctx context.Context, state State) (string, error)

// Send schedules one node with its own input state in the next step.
type Send struct {
	Node  string
	State State
}

// Dispatcher fans work out to parallel tasks.
type Dispatcher func(ctx context.Context, state State) ([]Send, error)

// NodeOption configures a node.
type NodeOption func(*node)

// NodeTimeout bounds a single execution of the node.
func NodeTimeout(d time.Duration) NodeOption {
	return func(n *node) {
		n.timeout = d
	}
}

type node struct {
	name    string
	fn      NodeFunc
	timeout time.Duration
}

type edgeKind int

const (
	staticEdge edgeKind = iota
	conditionalEdge
	fanOutEdge
)

type edge struct {
	kind       edgeKind
	from       string
	to         string
	predicate  Predicate
	routes     map[string]string
	dispatcher Dispatcher
	targets    []string
}

// Definition is a graph under construction. Methods record mistakes instead
// of failing, and Compile reports them all at once.
type Definition struct {
	nodes    map[string]*node
	order    []string
	edges    []edge
	channels map[string]Reducer
	problems []string
}

// NewDefinition creates an empty definition with the messages channel declared.
func NewDefinition() *Definition {
	return &Definition{
		nodes:    make(map[string]*node),
		channels: map[string]Reducer{MessagesKey: AppendTurns},
	}
}

func (d *Definition) problem(format string, args ...any) {
	d.problems = append(d.problems, fmt.Sprintf(format, args...))
}

// AddNode declares a node.
func (d *Definition) AddNode(name string, fn NodeFunc, opts ...NodeOption) *Definition {
	switch {
	case name == "":
		d.problem("node with empty name")
		return d
	case name == Start || name == End:
		d.problem("node name %q is reserved", name)
		return d
	case fn == nil:
		d.problem("node %q has no function", name)
		return d
	}
	if _, ok := d.nodes[name]; ok {
		d.problem("node %q declared twice", name)
		return d
	}
	n := &node{name: name, fn: fn}
	for _, opt := range opts {
		opt(n)
	}
	d.nodes[name] = n
	d.order = append(d.order, name)
	return d
}

// AddEdge adds an unconditional edge. Several edges from one node run their
// targets in parallel.
func (d *Definition) AddEdge(from, to string) *Definition {
	d.edges = append(d.edges, edge{kind: staticEdge, from: from, to: to})
	return d
}

// AddConditionalEdges routes from a node to routes[label] where label is
// the predicate's result.
func (d *Definition) AddConditionalEdges(from string, predicate Predicate, routes map[string]string) *Definition {
	if predicate == nil {
		d.problem("conditional edge from %q has no predicate", from)
		return d
	}
	if len(routes) == 0 {
		d.problem("conditional edge from %q has no routes", from)
		return d
	}
	copied := make(map[string]string, len(routes))
	for k, v := range routes {
		copied[k] = v
	}
	d.edges = append(d.edges, edge{kind: conditionalEdge, from: from, predicate: predicate, routes: copied})
	return d
}

// AddFanOut lets a dispatcher schedule any number of tasks on the given targets.
func (d *Definition) AddFanOut(from string, dispatcher Dispatcher, targets ...string) *Definition {
	if dispatcher == nil {
		d.problem("fan-out from %q has no dispatcher", from)
		return d
	}
	if len(targets) == 0 {
		d.problem("fan-out from %q has no targets", from)
		return d
	}
	d.edges = append(d.edges, edge{kind: fanOutEdge, from: from, dispatcher: dispatcher, targets: append([]string(nil), targets...)})
	return d
}

// Channel declares a state channel and its reducer.
func (d *Definition) Channel(name string, reducer Reducer) *Definition {
	if name == "" || reducer == nil {
		d.problem("channel %q needs a name and a reducer", name)
		return d
	}
	d.channels[name] = reducer
	return d
}

// Nodes lists declared node names in declaration order.
func (d *Definition) Nodes() []string {
	return append([]string(nil), d.order...)
}

// validate returns every structural problem of the definition.
func (d *Definition) validate() []string {
	problems := append([]string(nil), d.problems...)
	isSource := func(name string) bool {
		_, ok := d.nodes[name]
		return ok || name == Start
	}
	isTarget := func(name string) bool {
		_, ok := d.nodes[name]
		return ok || name == End
	}

	fromStart := 0
	for _, e := range d.edges {
		if !isSource(e.from) {
			problems = append(problems, fmt.Sprintf("edge source %q is not a declared node", e.from))
		}
		if e.from == Start {
			fromStart++
		}
		switch e.kind {
		case staticEdge:
			if !isTarget(e.to) {
				problems = append(problems, fmt.Sprintf("edge %s -> %s targets an undeclared node", e.from, e.to))
			}
		case conditionalEdge:
			for label, to := range e.routes {
				if !isTarget(to) {
					problems = append(problems, fmt.Sprintf("route %s[%s] -> %s targets an undeclared node", e.from, label, to))
				}
			}
		case fanOutEdge:
			for _, to := range e.targets {
				if _, ok := d.nodes[to]; !ok {
					problems = append(problems, fmt.Sprintf("fan-out %s -> %s targets an undeclared node", e.from, to))
				}
			}
		}
	}
	switch {
	case fromStart == 0:
		problems = append(problems, "no edge leaves the start")
	case fromStart > 1:
		problems = append(problems, fmt.Sprintf("%d edges leave the start, want exactly one", fromStart))
	}
	return problems
}
