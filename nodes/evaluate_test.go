package nodes

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-graph/core"
	"github.com/becomeliminal/nim-graph/llm"
	"github.com/becomeliminal/nim-graph/llm/mock"
)

// judge flags deflections the way a model following the rubric would.
func judge(ctx context.Context, req *llm.Request) (*llm.Reply, error) {
	answer := req.Messages[0].Content[strings.Index(req.Messages[0].Content, "Answer:"):]
	deflected := strings.Contains(strings.ToLower(answer), "i don't know")
	return mock.JSON(map[string]bool{"result": !deflected})(ctx, req)
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name   string
		turns  []core.Turn
		want   bool
		called bool
	}{
		{
			name:   "deflection",
			turns:  []core.Turn{core.UserTurn("current weather in Munich"), core.AssistantTurn("I don't know")},
			want:   false,
			called: true,
		},
		{
			name:   "direct answer",
			turns:  []core.Turn{core.UserTurn("What is my name?"), core.AssistantTurn("Your name is Shibin.")},
			want:   true,
			called: true,
		},
		{
			name:  "error turn is not retried",
			turns: []core.Turn{core.UserTurn("hi"), core.ErrorTurn(errModelDown)},
			want:  true,
		},
		{
			name:  "no answer yet",
			turns: []core.Turn{core.UserTurn("hi")},
			want:  false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := mock.New(nil).On("evaluate", judge)
			u, err := Evaluate(model)(context.Background(), state(tt.turns...))
			require.NoError(t, err)
			assert.Equal(t, tt.want, u[KeyResult])
			assert.Equal(t, tt.called, len(model.CallsFor("evaluate")) == 1)
		})
	}
}

func TestEvaluateFailureKeepsAnswer(t *testing.T) {
	model := mock.New(nil).On("evaluate", mock.Fail(errModelDown))
	u, err := Evaluate(model)(context.Background(), state(core.UserTurn("q"), core.AssistantTurn("a")))
	require.NoError(t, err)
	assert.Equal(t, true, u[KeyResult])
}

func TestEvaluationRoute(t *testing.T) {
	label, err := EvaluationRoute(context.Background(), state())
	require.NoError(t, err)
	assert.Equal(t, RouteUnanswered, label)

	s := state()
	s[KeyResult] = true
	label, err = EvaluationRoute(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, RouteAnswered, label)
}
