package nodes

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/becomeliminal/nim-graph/core"
	"github.com/becomeliminal/nim-graph/engine"
	"github.com/becomeliminal/nim-graph/llm"
	"github.com/becomeliminal/nim-graph/tools"
)

// Intent is what the user wants from a turn.
type Intent string

const (
	IntentChat     Intent = "chat"
	IntentStore    Intent = "store"
	IntentEmail    Intent = "email"
	IntentCalendar Intent = "calendar"
	IntentAgentic  Intent = "agentic"
)

// Intents lists every intent in a stable order.
var Intents = []Intent{IntentChat, IntentStore, IntentEmail, IntentCalendar, IntentAgentic}

// Valid reports whether i is a known intent.
func (i Intent) Valid() bool {
	for _, known := range Intents {
		if i == known {
			return true
		}
	}
	return false
}

func intentNames() []string {
	names := make([]string, len(Intents))
	for i, intent := range Intents {
		names[i] = string(intent)
	}
	return names
}

var routeSchema = &llm.Schema{
	Name:        "route_intent",
	Description: "The intent of the user's request.",
	Properties: map[string]any{
		"intent": tools.StringEnumProperty("the intent of the request", intentNames()...),
		"reason": tools.StringProperty("short explanation of the choice"),
	},
	Required: []string{"intent"},
}

type routeDecision struct {
	Intent string `json:"intent"`
	Reason string `json:"reason"`
}

// Router classifies requests into intents.
type Router struct {
	model  llm.Model
	logger *zap.Logger
}

// NewRouter creates a router.
func NewRouter(model llm.Model, opts ...Option) *Router {
	o := newOptions(opts)
	return &Router{model: model, logger: o.logger.Named("router")}
}

// Classify returns the intent of text. Ambiguous answers and model
// failures fall back to chat.
func (r *Router) Classify(ctx context.Context, text string) Intent {
	if strings.TrimSpace(text) == "" {
		return IntentChat
	}
	decision, err := llm.Decode[routeDecision](ctx, r.model, &llm.Request{
		Purpose:  "route",
		System:   routerPrompt,
		Messages: []core.Turn{core.UserTurn(text)},
		Schema:   routeSchema,
	})
	if err != nil {
		r.logger.Warn("classification failed, defaulting to chat", zap.Error(err))
		return IntentChat
	}
	intent := Intent(strings.ToLower(strings.TrimSpace(decision.Intent)))
	if !intent.Valid() {
		r.logger.Warn("ambiguous intent, defaulting to chat", zap.String("intent", decision.Intent))
		return IntentChat
	}
	r.logger.Debug("classified", zap.String("intent", string(intent)), zap.String("reason", decision.Reason))
	return intent
}

// Predicate routes on the intent of the latest user turn.
func (r *Router) Predicate() engine.Predicate {
	return func(ctx context.Context, s engine.State) (string, error) {
		user, _ := latestUser(s)
		return string(r.Classify(ctx, user.Content)), nil
	}
}
