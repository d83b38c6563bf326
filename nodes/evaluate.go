package nodes

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/becomeliminal/nim-graph/core"
	"github.com/becomeliminal/nim-graph/engine"
	"github.com/becomeliminal/nim-graph/llm"
	"github.com/becomeliminal/nim-graph/tools"
)

// Labels returned by EvaluationRoute.
const (
	RouteAnswered   = "answered"
	RouteUnanswered = "unanswered"
)

var evaluationSchema = &llm.Schema{
	Name:        "evaluation",
	Description: "Whether the assistant's answer addresses the question.",
	Properties: map[string]any{
		"result": tools.BooleanProperty("true if the answer substantively addresses the question"),
	},
	Required: []string{"result"},
}

type evaluation struct {
	Result bool `json:"result"`
}

// Evaluate judges whether the last assistant turn answers the last user
// turn and writes the verdict to result.
//
// An error turn or a failed judgement counts as answered so the graph does
// not retry a broken model through the search path.
func Evaluate(model llm.Model, opts ...Option) engine.NodeFunc {
	o := newOptions(opts)
	logger := o.logger.Named("evaluate")
	return func(ctx context.Context, s engine.State) (engine.Update, error) {
		turns := engine.Messages(s)
		question, hasQ := core.LastOfRole(turns, core.RoleUser)
		answer, hasA := core.LastOfRole(turns, core.RoleAssistant)
		switch {
		case !hasQ:
			return engine.Update{KeyResult: true}, nil
		case !hasA:
			return engine.Update{KeyResult: false}, nil
		case answer.IsError():
			return engine.Update{KeyResult: true}, nil
		}

		verdict, err := llm.Decode[evaluation](ctx, model, &llm.Request{
			Purpose: "evaluate",
			System:  evaluatePrompt,
			Messages: []core.Turn{core.UserTurn(fmt.Sprintf(
				"Question:\n%s\n\nAnswer:\n%s", question.Content, answer.Content))},
			Schema: evaluationSchema,
		})
		if err != nil {
			logger.Warn("evaluation failed, keeping answer", zap.Error(err))
			return engine.Update{KeyResult: true}, nil
		}
		logger.Debug("evaluated answer", zap.Bool("result", verdict.Result))
		return engine.Update{KeyResult: verdict.Result}, nil
	}
}

// EvaluationRoute routes on the result channel.
func EvaluationRoute(_ context.Context, s engine.State) (string, error) {
	if s.Bool(KeyResult) {
		return RouteAnswered, nil
	}
	return RouteUnanswered, nil
}
