package orchestrator

import (
	"go.uber.org/zap"

	"github.com/becomeliminal/nim-graph/engine"
	"github.com/becomeliminal/nim-graph/llm"
	"github.com/becomeliminal/nim-graph/nodes"
	"github.com/becomeliminal/nim-graph/search"
	"github.com/becomeliminal/nim-graph/tools"
)

// Graph kinds.
const (
	KindAssistant = "assistant"
	KindRouter    = "router"
)

// Deps are the collaborators the standard graphs are built from.
type Deps struct {
	Model  llm.Model
	Memory nodes.Memory
	// Tools may be nil; chat then answers without tools.
	Tools tools.Gateway
	// Search may be nil; search.None is used.
	Search search.Provider

	SystemPrompt        string
	DuplicateSimilarity float32
	ReportDir           string
	Logger              *zap.Logger
}

func (d Deps) options() []nodes.Option {
	opts := []nodes.Option{}
	if d.Logger != nil {
		opts = append(opts, nodes.WithLogger(d.Logger))
	}
	if d.SystemPrompt != "" {
		opts = append(opts, nodes.WithSystemPrompt(d.SystemPrompt))
	}
	if d.DuplicateSimilarity > 0 {
		opts = append(opts, nodes.WithDuplicateSimilarity(d.DuplicateSimilarity))
	}
	if d.ReportDir != "" {
		opts = append(opts, nodes.WithReportDir(d.ReportDir))
	}
	return opts
}

func (d Deps) provider() search.Provider {
	if d.Search == nil {
		return search.None
	}
	return d.Search
}

// Registry exposes the standard nodes, predicates and dispatchers by name
// for topology files.
func Registry(d Deps) engine.Registry {
	opts := d.options()
	withTools := append(append([]nodes.Option(nil), opts...), nodes.WithTools(d.Tools))
	router := nodes.NewRouter(d.Model, opts...)
	return engine.Registry{
		Nodes: map[string]engine.NodeFunc{
			"retrieve":    nodes.Retrieve(d.Memory, opts...),
			"chat":        nodes.Chat(d.Model, withTools...),
			"evaluate":    nodes.Evaluate(d.Model, opts...),
			"search":      nodes.Search(d.Model, d.provider(), opts...),
			"store":       nodes.Store(d.Model, d.Memory, opts...),
			"acknowledge": nodes.Acknowledge,
			"email":       nodes.ToolAgent("email", d.Model, d.Tools, []string{"email_", "gmail_"}, opts...),
			"calendar":    nodes.ToolAgent("calendar", d.Model, d.Tools, []string{"calendar_"}, opts...),
			"plan":        nodes.Plan(d.Model, opts...),
			"write":       nodes.Write(d.Model, withTools...),
			"synthesize":  nodes.Synthesize,
			"export":      nodes.Export(opts...),
		},
		Predicates: map[string]engine.Predicate{
			"evaluation": nodes.EvaluationRoute,
			"intent":     router.Predicate(),
		},
		Dispatchers: map[string]engine.Dispatcher{
			"sections": nodes.PlanDispatch,
		},
	}
}

// AssistantGraph is retrieve, chat, evaluate, then store when the answer
// holds or search and store when it does not.
func AssistantGraph(d Deps) *engine.Definition {
	reg := Registry(d)
	def := nodes.Channels(engine.NewDefinition())
	addAssistantPath(def, reg)
	return def.AddEdge(engine.Start, "retrieve")
}

func addAssistantPath(def *engine.Definition, reg engine.Registry) {
	for _, name := range []string{"retrieve", "chat", "evaluate", "search", "store"} {
		def.AddNode(name, reg.Nodes[name])
	}
	def.AddEdge("retrieve", "chat").
		AddEdge("chat", "evaluate").
		AddConditionalEdges("evaluate", reg.Predicates["evaluation"], map[string]string{
			nodes.RouteAnswered:   "store",
			nodes.RouteUnanswered: "search",
		}).
		AddEdge("search", "store").
		AddEdge("store", engine.End)
}

// RouterGraph classifies each turn first. Chat runs the assistant path,
// store remembers and acknowledges, email and calendar go to scoped tool
// agents, and agentic requests produce a report written in parallel.
func RouterGraph(d Deps) *engine.Definition {
	reg := Registry(d)
	def := nodes.Channels(engine.NewDefinition())
	addAssistantPath(def, reg)

	def.AddNode("remember", reg.Nodes["store"]).
		AddNode("acknowledge", reg.Nodes["acknowledge"]).
		AddNode("email", reg.Nodes["email"]).
		AddNode("calendar", reg.Nodes["calendar"]).
		AddNode("plan", reg.Nodes["plan"]).
		AddNode(nodes.WriteNode, reg.Nodes["write"]).
		AddNode("synthesize", reg.Nodes["synthesize"]).
		AddNode("export", reg.Nodes["export"])

	def.AddConditionalEdges(engine.Start, reg.Predicates["intent"], map[string]string{
		string(nodes.IntentChat):     "retrieve",
		string(nodes.IntentStore):    "remember",
		string(nodes.IntentEmail):    "email",
		string(nodes.IntentCalendar): "calendar",
		string(nodes.IntentAgentic):  "plan",
	})
	return def.AddEdge("remember", "acknowledge").
		AddEdge("acknowledge", engine.End).
		AddEdge("email", engine.End).
		AddEdge("calendar", engine.End).
		AddFanOut("plan", reg.Dispatchers["sections"], nodes.WriteNode).
		AddEdge(nodes.WriteNode, "synthesize").
		AddEdge("synthesize", "export").
		AddEdge("export", engine.End)
}

// Definition returns the standard graph of the given kind.
func Definition(kind string, d Deps) (*engine.Definition, bool) {
	switch kind {
	case KindAssistant:
		return AssistantGraph(d), true
	case KindRouter:
		return RouterGraph(d), true
	}
	return nil, false
}
