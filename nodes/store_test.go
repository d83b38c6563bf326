package nodes

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/becomeliminal/nim-graph/core"
	"github.com/becomeliminal/nim-graph/engine"
	"github.com/becomeliminal/nim-graph/llm"
	"github.com/becomeliminal/nim-graph/llm/mock"
	"github.com/becomeliminal/nim-graph/memory"
)

// decider stores personal statements unless an existing memory covers them.
func decider(ctx context.Context, req *llm.Request) (*llm.Reply, error) {
	text := req.Messages[0].Content
	existing := text[:strings.Index(text, "User message:")]
	message := strings.TrimSpace(text[strings.Index(text, "User message:")+len("User message:"):])
	switch {
	case strings.HasSuffix(message, "?"):
		return mock.JSON(StoreDecision{Reason: "a question, not a fact"})(ctx, req)
	case strings.Contains(existing, "spicy") && strings.Contains(strings.ToLower(message), "spicy"):
		// Models sometimes flag a duplicate and still ask to store it.
		return mock.JSON(StoreDecision{ShouldStore: true, IsDuplicate: true, MessageToStore: "User likes spicy food", Reason: "already known"})(ctx, req)
	default:
		return mock.JSON(StoreDecision{ShouldStore: true, MessageToStore: message, Reason: "personal fact"})(ctx, req)
	}
}

func TestStorePersistsPersonalFact(t *testing.T) {
	mem := newMemory(t)
	model := mock.New(nil).On("store_decision", decider)
	node := Store(model, mem, WithLogger(zaptest.NewLogger(t)))

	u, err := node(context.Background(), state(core.SystemTurn("assistant"), core.UserTurn("My name is Shibin")))
	require.NoError(t, err)
	assert.Equal(t, true, u[KeyStored])
	assert.Equal(t, false, u[KeyIsDuplicate])
	assert.Equal(t, "My name is Shibin", u[KeyMessageToStore])

	n, err := mem.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStoreDeduplicates(t *testing.T) {
	mem := newMemory(t, "User likes spicy food")
	model := mock.New(nil).On("store_decision", decider)

	u, err := Store(model, mem)(context.Background(), state(core.UserTurn("I really like spicy food")))
	require.NoError(t, err)
	assert.Equal(t, false, u[KeyStored])
	assert.Equal(t, true, u[KeyIsDuplicate])

	n, err := mem.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	req := model.CallsFor("store_decision")[0]
	assert.Contains(t, req.Messages[0].Content, "Document: User likes spicy food")
}

func TestStoreNearDuplicateBySimilarity(t *testing.T) {
	mem := &fakeMemory{matches: []memory.Match{{Record: memory.Record{Text: "User lives in Munich"}, Similarity: 0.97}}}
	model := mock.New(nil).On("store_decision", mock.JSON(StoreDecision{ShouldStore: true, MessageToStore: "User lives in Munich"}))

	u, err := Store(model, mem)(context.Background(), state(core.UserTurn("I live in Munich")))
	require.NoError(t, err)
	assert.Equal(t, false, u[KeyStored])
	assert.Equal(t, true, u[KeyIsDuplicate])
	assert.Empty(t, mem.remembered)
}

func TestStoreSkipsQuestions(t *testing.T) {
	mem := &fakeMemory{}
	model := mock.New(nil).On("store_decision", decider)

	u, err := Store(model, mem)(context.Background(), state(core.UserTurn("What's the weather?")))
	require.NoError(t, err)
	assert.Equal(t, false, u[KeyStored])
	assert.Equal(t, "a question, not a fact", u[KeyReason])
	assert.Empty(t, mem.remembered)
}

func TestStoreFailuresAreReported(t *testing.T) {
	tests := []struct {
		name  string
		mem   *fakeMemory
		model *mock.Model
	}{
		{"model", &fakeMemory{}, mock.New(nil).On("store_decision", mock.Fail(errModelDown))},
		{"retrieve", &fakeMemory{searchErr: errModelDown}, mock.New(nil).On("store_decision", decider)},
		{"write", &fakeMemory{rememberEr: errModelDown}, mock.New(nil).On("store_decision", decider)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := Store(tt.model, tt.mem)(context.Background(), state(core.UserTurn("I have a cat named Mochi")))
			require.NoError(t, err)
			assert.Equal(t, false, u[KeyStored])
			assert.Contains(t, u[KeyReason], "model down")
		})
	}
}

func TestStoreChunksLongFacts(t *testing.T) {
	mem := newMemory(t)
	long := strings.Repeat("User enjoys long walks along the Isar river in spring. ", 25)
	model := mock.New(nil).On("store_decision", mock.JSON(StoreDecision{ShouldStore: true, MessageToStore: long}))

	def := Channels(engine.NewDefinition()).
		AddNode("store", Store(model, mem)).
		AddEdge(engine.Start, "store")
	w, err := engine.Compile(def)
	require.NoError(t, err)

	out, err := w.Run(context.Background(), state(core.UserTurn("about my walks")), "s1")
	require.NoError(t, err)
	assert.True(t, out.Bool(KeyStored))

	matches, err := mem.Search(context.Background(), "walks along the Isar")
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	for _, m := range matches {
		assert.LessOrEqual(t, len(m.Text), 500)
		assert.Equal(t, "session:s1", m.Source)
	}
	n, err := mem.Count(context.Background())
	require.NoError(t, err)
	assert.Greater(t, n, 1)
}
