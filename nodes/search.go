package nodes

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/becomeliminal/nim-graph/core"
	"github.com/becomeliminal/nim-graph/engine"
	"github.com/becomeliminal/nim-graph/llm"
	"github.com/becomeliminal/nim-graph/search"
)

// Search answers from a web search when the chat answer was a deflection.
// It rewrites the question into a self-contained query, searches, and
// answers from the results. The new answer replaces the deflection.
func Search(model llm.Model, provider search.Provider, opts ...Option) engine.NodeFunc {
	o := newOptions(opts)
	logger := o.logger.Named("search")
	return func(ctx context.Context, s engine.State) (engine.Update, error) {
		turns := conversation(engine.Messages(s))
		if n := len(turns); n > 0 && turns[n-1].Role == core.RoleAssistant {
			turns = turns[:n-1]
		}
		question, ok := core.LastOfRole(turns, core.RoleUser)
		if !ok {
			return nil, fmt.Errorf("no user question to search for")
		}

		query := rewriteQuery(ctx, model, turns, question.Content, logger)

		results, err := provider.Search(ctx, query)
		if err != nil {
			logger.Warn("search failed", zap.String("query", query), zap.Error(err))
			results = nil
		}

		answer, err := llm.Text(ctx, model, &llm.Request{
			Purpose:  "answer_from_search",
			System:   answerFromSearchPrompt + search.Format(results),
			Messages: turns,
		})
		if err != nil {
			return nil, err
		}
		if answer == "" {
			answer = "I don't know."
		}

		logger.Debug("answered from search", zap.String("query", query), zap.Int("results", len(results)))
		turn := core.NewTurn(core.RoleAssistant, answer, map[string]string{
			"source": "search",
			"query":  query,
		})
		return engine.Update{KeyMessages: engine.ReplaceLast(turn)}, nil
	}
}

// rewriteQuery resolves references in the question against the history.
// It falls back to the raw question.
func rewriteQuery(ctx context.Context, model llm.Model, turns []core.Turn, question string, logger *zap.Logger) string {
	var history strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&history, "%s: %s\n", t.Role, t.Content)
	}
	query, err := llm.Text(ctx, model, &llm.Request{
		Purpose: "rewrite_query",
		System:  rewritePrompt,
		Messages: []core.Turn{core.UserTurn(fmt.Sprintf(
			"Conversation:\n%s\nLatest question: %s", history.String(), question))},
	})
	if err != nil || query == "" {
		logger.Warn("query rewrite failed, using question", zap.Error(err))
		return question
	}
	return strings.Trim(query, "\"' \n")
}
