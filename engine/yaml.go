package engine

import (
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"
)

// Registry resolves the names used in a topology file.
type Registry struct {
	Nodes       map[string]NodeFunc
	Predicates  map[string]Predicate
	Dispatchers map[string]Dispatcher
	// Reducers extends the built-in append_turns, overwrite and append_strings.
	Reducers map[string]Reducer
}

// Topology is the YAML form of a graph definition.
type Topology struct {
	Name     string        `yaml:"name"`
	Channels []ChannelSpec `yaml:"channels"`
	Nodes    []NodeSpec    `yaml:"nodes"`
	Edges    []EdgeSpec    `yaml:"edges"`
}

// ChannelSpec declares a channel.
type ChannelSpec struct {
	Name    string `yaml:"name"`
	Reducer string `yaml:"reducer"`
}

// NodeSpec declares a node. Func defaults to Name.
type NodeSpec struct {
	Name    string `yaml:"name"`
	Func    string `yaml:"func"`
	Timeout string `yaml:"timeout"`
}

// EdgeSpec declares one edge. Exactly one of To, Condition or Dispatch is set.
type EdgeSpec struct {
	From      string            `yaml:"from"`
	To        string            `yaml:"to"`
	Condition string            `yaml:"condition"`
	Routes    map[string]string `yaml:"routes"`
	Dispatch  string            `yaml:"dispatch"`
	Targets   []string          `yaml:"targets"`
}

var builtinReducers = map[string]Reducer{
	"append_turns":   AppendTurns,
	"overwrite":      Overwrite,
	"append_strings": AppendStrings,
}

// LoadDefinition reads a YAML topology and resolves it against reg.
// Structural checks are left to Compile.
func LoadDefinition(r io.Reader, reg Registry) (*Definition, error) {
	var topo Topology
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&topo); err != nil {
		return nil, fmt.Errorf("decode topology: %w", err)
	}
	return topo.Definition(reg)
}

// Definition builds a graph definition from the topology.
func (t *Topology) Definition(reg Registry) (*Definition, error) {
	def := NewDefinition()

	for _, c := range t.Channels {
		reducer, ok := reg.Reducers[c.Reducer]
		if !ok {
			reducer, ok = builtinReducers[c.Reducer]
		}
		if !ok {
			return nil, fmt.Errorf("channel %q: unknown reducer %q", c.Name, c.Reducer)
		}
		def.Channel(c.Name, reducer)
	}

	for _, n := range t.Nodes {
		key := n.Func
		if key == "" {
			key = n.Name
		}
		fn, ok := reg.Nodes[key]
		if !ok {
			return nil, fmt.Errorf("node %q: unknown func %q", n.Name, key)
		}
		var opts []NodeOption
		if n.Timeout != "" {
			d, err := time.ParseDuration(n.Timeout)
			if err != nil {
				return nil, fmt.Errorf("node %q: parse timeout: %w", n.Name, err)
			}
			opts = append(opts, NodeTimeout(d))
		}
		def.AddNode(n.Name, fn, opts...)
	}

	for i, e := range t.Edges {
		from := marker(e.From)
		if e.kinds() > 1 {
			return nil, fmt.Errorf("edge %d from %q: set only one of to, condition or dispatch", i, e.From)
		}
		switch {
		case e.Condition != "":
			pred, ok := reg.Predicates[e.Condition]
			if !ok {
				return nil, fmt.Errorf("edge %d: unknown predicate %q", i, e.Condition)
			}
			routes := make(map[string]string, len(e.Routes))
			for label, to := range e.Routes {
				routes[label] = marker(to)
			}
			def.AddConditionalEdges(from, pred, routes)
		case e.Dispatch != "":
			disp, ok := reg.Dispatchers[e.Dispatch]
			if !ok {
				return nil, fmt.Errorf("edge %d: unknown dispatcher %q", i, e.Dispatch)
			}
			def.AddFanOut(from, disp, e.Targets...)
		case e.To != "":
			def.AddEdge(from, marker(e.To))
		default:
			return nil, fmt.Errorf("edge %d from %q: needs to, condition or dispatch", i, e.From)
		}
	}
	return def, nil
}

func (e EdgeSpec) kinds() int {
	n := 0
	for _, v := range []string{e.To, e.Condition, e.Dispatch} {
		if v != "" {
			n++
		}
	}
	return n
}

// marker maps START and END to the reserved names. Other spellings are
// ordinary node names.
func marker(name string) string {
	switch name {
	case "START":
		return Start
	case "END":
		return End
	}
	return name
}
