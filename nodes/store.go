package nodes

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/becomeliminal/nim-graph/core"
	"github.com/becomeliminal/nim-graph/engine"
	"github.com/becomeliminal/nim-graph/llm"
	"github.com/becomeliminal/nim-graph/memory"
	"github.com/becomeliminal/nim-graph/tools"
)

var storeSchema = &llm.Schema{
	Name:        "store_decision",
	Description: "Whether and what to store in long-term memory.",
	Properties: map[string]any{
		"should_store":     tools.BooleanProperty("true if the message holds a new personal fact or preference"),
		"message_to_store": tools.StringProperty("the fact in a clean, concise form; empty when not storing"),
		"reason":           tools.StringProperty("short explanation of the decision"),
		"is_duplicate":     tools.BooleanProperty("true if an existing memory already states this fact"),
	},
	Required: []string{"should_store", "message_to_store", "reason", "is_duplicate"},
}

// StoreDecision is the model's verdict on a user message.
type StoreDecision struct {
	ShouldStore    bool   `json:"should_store"`
	MessageToStore string `json:"message_to_store"`
	Reason         string `json:"reason"`
	IsDuplicate    bool   `json:"is_duplicate"`
}

// Store decides whether the latest user turn holds a personal fact worth
// remembering and, if so, writes it to memory in chunks. Duplicates are
// never written: either the model flags one or a retrieved memory is at
// least as similar as the duplicate threshold.
func Store(model llm.Model, mem Memory, opts ...Option) engine.NodeFunc {
	o := newOptions(opts)
	logger := o.logger.Named("store")
	return func(ctx context.Context, s engine.State) (engine.Update, error) {
		user, ok := latestUser(s)
		if !ok || strings.TrimSpace(user.Content) == "" {
			return storeResult(false, "no user message", false, ""), nil
		}

		matches, err := mem.Search(ctx, user.Content)
		if err != nil {
			logger.Warn("retrieval before store failed", zap.Error(err))
			return storeResult(false, err.Error(), false, ""), nil
		}
		nearDuplicate := false
		for _, m := range matches {
			if m.Similarity >= o.duplicateSimilarity {
				nearDuplicate = true
				break
			}
		}

		existing := memory.FormatMatches(matches)
		if existing == "" {
			existing = "None"
		}
		decision, err := llm.Decode[StoreDecision](ctx, model, &llm.Request{
			Purpose: "store_decision",
			System:  storeDecisionPrompt,
			Messages: []core.Turn{core.UserTurn(fmt.Sprintf(
				"Existing memories:\n%s\n\nUser message:\n%s", existing, user.Content))},
			Schema: storeSchema,
		})
		if err != nil {
			logger.Warn("store decision failed", zap.Error(err))
			return storeResult(false, err.Error(), false, ""), nil
		}

		if nearDuplicate && !decision.IsDuplicate {
			decision.IsDuplicate = true
			decision.Reason = "an existing memory already states this"
		}
		if decision.IsDuplicate {
			decision.ShouldStore = false
		}
		text := strings.TrimSpace(decision.MessageToStore)
		if decision.ShouldStore && text == "" {
			decision.ShouldStore = false
			decision.Reason = "nothing to store"
		}
		if !decision.ShouldStore {
			logger.Debug("not storing",
				zap.Bool("is_duplicate", decision.IsDuplicate),
				zap.String("reason", decision.Reason))
			return storeResult(false, decision.Reason, decision.IsDuplicate, text), nil
		}

		source := "conversation"
		if id := engine.SessionID(ctx); id != "" {
			source = "session:" + id
		}
		if _, err := mem.Remember(ctx, text, source); err != nil {
			logger.Warn("remember failed", zap.Error(err))
			return storeResult(false, err.Error(), false, text), nil
		}
		return storeResult(true, decision.Reason, false, text), nil
	}
}

func storeResult(stored bool, reason string, duplicate bool, text string) engine.Update {
	return engine.Update{
		KeyStored:         stored,
		KeyReason:         reason,
		KeyIsDuplicate:    duplicate,
		KeyMessageToStore: text,
	}
}
