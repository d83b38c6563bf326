package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/becomeliminal/nim-graph/core"
)

func say(text string) NodeFunc {
	return func(ctx context.Context, s State) (Update, error) {
		return Update{MessagesKey: core.AssistantTurn(text)}, nil
	}
}

func contents(s State) []string {
	var out []string
	for _, t := range Messages(s) {
		out = append(out, t.Content)
	}
	return out
}

func userState(text string) State {
	return State{MessagesKey: []core.Turn{core.UserTurn(text)}}
}

func TestCompileValidation(t *testing.T) {
	noop := say("x")
	tests := []struct {
		name    string
		build   func() *Definition
		wantErr string
	}{
		{
			name: "valid linear",
			build: func() *Definition {
				return NewDefinition().AddNode("a", noop).AddEdge(Start, "a").AddEdge("a", End)
			},
		},
		{
			name: "node without outgoing edge",
			build: func() *Definition {
				return NewDefinition().AddNode("a", noop).AddEdge(Start, "a")
			},
		},
		{
			name: "no start edge",
			build: func() *Definition {
				return NewDefinition().AddNode("a", noop).AddEdge("a", End)
			},
			wantErr: "no edge leaves the start",
		},
		{
			name: "two start edges",
			build: func() *Definition {
				return NewDefinition().AddNode("a", noop).AddNode("b", noop).
					AddEdge(Start, "a").AddEdge(Start, "b")
			},
			wantErr: "2 edges leave the start",
		},
		{
			name: "undeclared target",
			build: func() *Definition {
				return NewDefinition().AddNode("a", noop).AddEdge(Start, "a").AddEdge("a", "b")
			},
			wantErr: `edge a -> b targets an undeclared node`,
		},
		{
			name: "undeclared source",
			build: func() *Definition {
				return NewDefinition().AddNode("a", noop).AddEdge(Start, "a").AddEdge("ghost", "a")
			},
			wantErr: `edge source "ghost"`,
		},
		{
			name: "undeclared route",
			build: func() *Definition {
				pred := func(ctx context.Context, s State) (string, error) { return "x", nil }
				return NewDefinition().AddNode("a", noop).AddEdge(Start, "a").
					AddConditionalEdges("a", pred, map[string]string{"x": "store_node"})
			},
			wantErr: "route a[x] -> store_node",
		},
		{
			name: "reserved node name",
			build: func() *Definition {
				return NewDefinition().AddNode(End, noop).AddEdge(Start, End)
			},
			wantErr: "reserved",
		},
		{
			name: "duplicate node",
			build: func() *Definition {
				return NewDefinition().AddNode("a", noop).AddNode("a", noop).AddEdge(Start, "a")
			},
			wantErr: "declared twice",
		},
		{
			name: "edge into start",
			build: func() *Definition {
				return NewDefinition().AddNode("a", noop).AddEdge(Start, "a").AddEdge("a", Start)
			},
			wantErr: "targets an undeclared node",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := Compile(tt.build())
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.NotNil(t, w)
				return
			}
			var defErr *GraphDefinitionError
			require.ErrorAs(t, err, &defErr)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCompileRejectsNonPositiveMaxSteps(t *testing.T) {
	def := NewDefinition().AddNode("a", say("x")).AddEdge(Start, "a")
	_, err := Compile(def, WithMaxSteps(0))
	var defErr *GraphDefinitionError
	assert.ErrorAs(t, err, &defErr)
}

func TestRunLinear(t *testing.T) {
	def := NewDefinition().
		AddNode("a", say("one")).
		AddNode("b", say("two")).
		AddEdge(Start, "a").
		AddEdge("a", "b").
		AddEdge("b", End)
	w, err := Compile(def, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	out, err := w.Run(context.Background(), userState("hi"), "s1")
	require.NoError(t, err)
	if diff := cmp.Diff([]string{"hi", "one", "two"}, contents(out)); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
}

func TestRunDoesNotMutateInitialState(t *testing.T) {
	def := NewDefinition().AddNode("a", say("one")).AddEdge(Start, "a")
	w, err := Compile(def)
	require.NoError(t, err)

	initial := userState("hi")
	_, err = w.Run(context.Background(), initial, "s1")
	require.NoError(t, err)
	assert.Len(t, Messages(initial), 1)
}

func TestConditionalRouting(t *testing.T) {
	build := func(label string) *Workflow {
		pred := func(ctx context.Context, s State) (string, error) { return label, nil }
		def := NewDefinition().
			AddNode("decide", say("deciding")).
			AddNode("yes", say("took yes")).
			AddNode("no", say("took no")).
			AddEdge(Start, "decide").
			AddConditionalEdges("decide", pred, map[string]string{"yes": "yes", "no": "no", "stop": End})
		w, err := Compile(def)
		require.NoError(t, err)
		return w
	}

	out, err := build("no").Run(context.Background(), userState("q"), "s")
	require.NoError(t, err)
	assert.Equal(t, []string{"q", "deciding", "took no"}, contents(out))

	out, err = build("stop").Run(context.Background(), userState("q"), "s")
	require.NoError(t, err)
	assert.Equal(t, []string{"q", "deciding"}, contents(out))

	_, err = build("store_node").Run(context.Background(), userState("q"), "s")
	var routeErr *RoutingError
	require.ErrorAs(t, err, &routeErr)
	assert.Equal(t, "decide", routeErr.From)
	assert.Equal(t, "store_node", routeErr.Label)
}

func TestPredicateFailureIsRoutingError(t *testing.T) {
	boom := errors.New("boom")
	pred := func(ctx context.Context, s State) (string, error) { return "", boom }
	def := NewDefinition().AddNode("a", say("x")).AddEdge(Start, "a").
		AddConditionalEdges("a", pred, map[string]string{"x": End})
	w, err := Compile(def)
	require.NoError(t, err)

	_, err = w.Run(context.Background(), userState("q"), "s")
	var routeErr *RoutingError
	require.ErrorAs(t, err, &routeErr)
	assert.ErrorIs(t, err, boom)
}

func TestPredicatePanicIsRoutingError(t *testing.T) {
	pred := func(ctx context.Context, s State) (string, error) {
		var m map[string]string
		m["x"] = "boom"
		return "x", nil
	}
	def := NewDefinition().AddNode("a", say("x")).AddEdge(Start, "a").
		AddConditionalEdges("a", pred, map[string]string{"x": End})
	w, err := Compile(def)
	require.NoError(t, err)

	_, err = w.Run(context.Background(), userState("q"), "s")
	var routeErr *RoutingError
	require.ErrorAs(t, err, &routeErr)
	assert.Equal(t, "a", routeErr.From)
	assert.Contains(t, err.Error(), "predicate panicked")
}

func TestDispatcherPanicIsRoutingError(t *testing.T) {
	dispatch := func(ctx context.Context, s State) ([]Send, error) {
		panic("no sections")
	}
	def := NewDefinition().
		AddNode("plan", say("p")).
		AddNode("write", say("w")).
		AddEdge(Start, "plan").
		AddFanOut("plan", dispatch, "write")
	w, err := Compile(def)
	require.NoError(t, err)

	_, err = w.Run(context.Background(), userState("q"), "s")
	var routeErr *RoutingError
	require.ErrorAs(t, err, &routeErr)
	assert.Equal(t, "plan", routeErr.From)
	assert.Contains(t, err.Error(), "dispatcher panicked: no sections")
}

func TestSelfLoopHitsStepLimit(t *testing.T) {
	var runs atomic.Int32
	loop := func(ctx context.Context, s State) (Update, error) {
		runs.Add(1)
		return nil, nil
	}
	def := NewDefinition().AddNode("loop", loop).AddEdge(Start, "loop").AddEdge("loop", "loop")

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	w, err := Compile(def, WithMaxSteps(5), WithMetrics(metrics))
	require.NoError(t, err)

	_, err = w.Run(context.Background(), userState("q"), "s")
	var limitErr *StepLimitExceededError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, 5, limitErr.Limit)
	assert.Equal(t, int32(5), runs.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.runFailures.WithLabelValues("step_limit")))
}

func TestDefaultStepLimit(t *testing.T) {
	def := NewDefinition().AddNode("loop", say("again")).AddEdge(Start, "loop").AddEdge("loop", "loop")
	w, err := Compile(def)
	require.NoError(t, err)

	out, err := w.Run(context.Background(), userState("q"), "s")
	var limitErr *StepLimitExceededError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, DefaultMaxSteps, limitErr.Limit)
	assert.Len(t, Messages(out), DefaultMaxSteps+1)
}

func TestNodeFailuresAreContained(t *testing.T) {
	tests := []struct {
		name string
		fn   NodeFunc
		want string
	}{
		{
			name: "error",
			fn: func(ctx context.Context, s State) (Update, error) {
				return nil, errors.New("model unavailable")
			},
			want: "model unavailable",
		},
		{
			name: "panic",
			fn: func(ctx context.Context, s State) (Update, error) {
				panic("nil map")
			},
			want: "panicked",
		},
		{
			name: "timeout",
			fn: func(ctx context.Context, s State) (Update, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
			want: "deadline exceeded",
		},
		{
			name: "ignores context",
			fn: func(ctx context.Context, s State) (Update, error) {
				time.Sleep(200 * time.Millisecond)
				return Update{MessagesKey: core.AssistantTurn("late")}, nil
			},
			want: "deadline exceeded",
		},
		{
			name: "undeclared channel",
			fn: func(ctx context.Context, s State) (Update, error) {
				return Update{"mystery": 1}, nil
			},
			want: `undeclared channel "mystery"`,
		},
		{
			name: "wrong value type",
			fn: func(ctx context.Context, s State) (Update, error) {
				return Update{MessagesKey: 42}, nil
			},
			want: "unsupported update int",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := NewDefinition().
				AddNode("flaky", tt.fn, NodeTimeout(20*time.Millisecond)).
				AddNode("after", say("carried on")).
				AddEdge(Start, "flaky").
				AddEdge("flaky", "after").
				AddEdge("after", End)
			w, err := Compile(def, WithLogger(zaptest.NewLogger(t)))
			require.NoError(t, err)

			out, err := w.Run(context.Background(), userState("q"), "s")
			require.NoError(t, err)

			msgs := Messages(out)
			require.Len(t, msgs, 3)
			assert.True(t, msgs[1].IsError())
			assert.True(t, strings.HasPrefix(msgs[1].Content, "Error:"))
			assert.Contains(t, msgs[1].Content, tt.want)
			assert.Equal(t, "carried on", msgs[2].Content)
		})
	}
}

func TestFanOutMergesInDispatchOrder(t *testing.T) {
	sections := []string{"slow", "medium", "fast"}
	delays := map[string]time.Duration{"slow": 60 * time.Millisecond, "medium": 30 * time.Millisecond, "fast": 0}

	dispatch := func(ctx context.Context, s State) ([]Send, error) {
		var sends []Send
		for _, sec := range s.Strings("sections") {
			sends = append(sends, Send{Node: "write", State: State{"section": sec}})
		}
		return sends, nil
	}
	write := func(ctx context.Context, s State) (Update, error) {
		sec := s.String("section")
		time.Sleep(delays[sec])
		return Update{"completed": "section " + sec}, nil
	}
	var sawAll atomic.Bool
	join := func(ctx context.Context, s State) (Update, error) {
		sawAll.Store(len(s.Strings("completed")) == 3)
		return Update{MessagesKey: core.AssistantTurn(strings.Join(s.Strings("completed"), ","))}, nil
	}

	def := NewDefinition().
		Channel("sections", Overwrite).
		Channel("completed", AppendStrings).
		AddNode("plan", func(ctx context.Context, s State) (Update, error) {
			return Update{"sections": sections}, nil
		}).
		AddNode("write", write).
		AddNode("join", join).
		AddEdge(Start, "plan").
		AddFanOut("plan", dispatch, "write").
		AddEdge("write", "join").
		AddEdge("join", End)
	w, err := Compile(def, WithConcurrency(3))
	require.NoError(t, err)

	out, err := w.Run(context.Background(), userState("report"), "s")
	require.NoError(t, err)
	assert.Equal(t, []string{"section slow", "section medium", "section fast"}, out.Strings("completed"))
	assert.True(t, sawAll.Load(), "join should run once after all writers")
	assert.Len(t, Messages(out), 2)
}

func TestFanOutToUndeclaredTarget(t *testing.T) {
	dispatch := func(ctx context.Context, s State) ([]Send, error) {
		return []Send{{Node: "other"}}, nil
	}
	def := NewDefinition().
		AddNode("plan", say("p")).
		AddNode("write", say("w")).
		AddNode("other", say("o")).
		AddEdge(Start, "plan").
		AddFanOut("plan", dispatch, "write")
	w, err := Compile(def)
	require.NoError(t, err)

	_, err = w.Run(context.Background(), userState("q"), "s")
	var routeErr *RoutingError
	require.ErrorAs(t, err, &routeErr)
	assert.Equal(t, "other", routeErr.Label)
}

func TestParallelStaticEdgesJoinOnce(t *testing.T) {
	var joins atomic.Int32
	def := NewDefinition().
		Channel("parts", AppendStrings).
		AddNode("split", say("split")).
		AddNode("left", func(ctx context.Context, s State) (Update, error) {
			return Update{"parts": "left"}, nil
		}).
		AddNode("right", func(ctx context.Context, s State) (Update, error) {
			return Update{"parts": "right"}, nil
		}).
		AddNode("join", func(ctx context.Context, s State) (Update, error) {
			joins.Add(1)
			return nil, nil
		}).
		AddEdge(Start, "split").
		AddEdge("split", "left").
		AddEdge("split", "right").
		AddEdge("left", "join").
		AddEdge("right", "join")
	w, err := Compile(def)
	require.NoError(t, err)

	out, err := w.Run(context.Background(), userState("q"), "s")
	require.NoError(t, err)
	assert.Equal(t, []string{"left", "right"}, out.Strings("parts"))
	assert.Equal(t, int32(1), joins.Load())
}

func TestReplaceLast(t *testing.T) {
	def := NewDefinition().
		AddNode("answer", say("I don't know")).
		AddNode("search", func(ctx context.Context, s State) (Update, error) {
			return Update{MessagesKey: ReplaceLast(core.AssistantTurn("It is sunny."))}, nil
		}).
		AddEdge(Start, "answer").
		AddEdge("answer", "search")
	w, err := Compile(def)
	require.NoError(t, err)

	out, err := w.Run(context.Background(), userState("weather?"), "s")
	require.NoError(t, err)
	assert.Equal(t, []string{"weather?", "It is sunny."}, contents(out))
}

func TestSessionIDVisibleToNodes(t *testing.T) {
	var seen string
	def := NewDefinition().AddNode("a", func(ctx context.Context, s State) (Update, error) {
		seen = SessionID(ctx)
		return nil, nil
	}).AddEdge(Start, "a")
	w, err := Compile(def)
	require.NoError(t, err)

	exec := w.Start(context.Background(), userState("q"), "session-42")
	assert.NotEmpty(t, exec.ID)
	_, err = exec.Wait()
	require.NoError(t, err)
	assert.Equal(t, "session-42", seen)
}

func TestRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	def := NewDefinition().AddNode("a", func(ctx context.Context, s State) (Update, error) {
		cancel()
		return nil, nil
	}).AddEdge(Start, "a").AddEdge("a", "a")
	w, err := Compile(def)
	require.NoError(t, err)

	_, err = w.Run(ctx, userState("q"), "s")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMetricsCountNodeStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	def := NewDefinition().
		AddNode("ok", say("fine")).
		AddNode("bad", func(ctx context.Context, s State) (Update, error) { return nil, fmt.Errorf("nope") }).
		AddEdge(Start, "ok").
		AddEdge("ok", "bad")
	w, err := Compile(def, WithMetrics(metrics))
	require.NoError(t, err)

	_, err = w.Run(context.Background(), userState("q"), "s")
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.nodeRuns.WithLabelValues("ok", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.nodeRuns.WithLabelValues("bad", "error")))
}
