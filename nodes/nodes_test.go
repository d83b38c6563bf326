package nodes

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/becomeliminal/nim-graph/core"
	"github.com/becomeliminal/nim-graph/engine"
	"github.com/becomeliminal/nim-graph/llm"
	"github.com/becomeliminal/nim-graph/memory"
	"github.com/becomeliminal/nim-graph/memory/embedder/hashing"
	"github.com/becomeliminal/nim-graph/memory/store/chromem"
)

func newMemory(t *testing.T, facts ...string) *memory.Manager {
	t.Helper()
	store, err := chromem.New(chromem.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	m := memory.NewManager(store, hashing.New(0), nil, memory.WithLogger(zaptest.NewLogger(t)))
	for _, f := range facts {
		_, err := m.Remember(context.Background(), f, "seed")
		require.NoError(t, err)
	}
	return m
}

// fakeMemory returns canned matches and records writes.
type fakeMemory struct {
	mu         sync.Mutex
	matches    []memory.Match
	searchErr  error
	rememberEr error
	remembered []string
}

func (f *fakeMemory) Search(ctx context.Context, query string) ([]memory.Match, error) {
	return f.matches, f.searchErr
}

func (f *fakeMemory) Retrieve(ctx context.Context, query string) (string, error) {
	if f.searchErr != nil {
		return "", f.searchErr
	}
	return memory.FormatMatches(f.matches), nil
}

func (f *fakeMemory) Remember(ctx context.Context, text, source string) ([]memory.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rememberEr != nil {
		return nil, f.rememberEr
	}
	f.remembered = append(f.remembered, text)
	return []memory.Record{memory.NewRecord(text, source)}, nil
}

func state(turns ...core.Turn) engine.State {
	return engine.State{KeyMessages: turns}
}

func lastTurn(t *testing.T, u engine.Update) core.Turn {
	t.Helper()
	turn, ok := u[KeyMessages].(core.Turn)
	require.True(t, ok, "update should carry one turn, got %T", u[KeyMessages])
	return turn
}

// promptText flattens a request for assertions.
func promptText(req *llm.Request) string {
	var b strings.Builder
	b.WriteString(req.System)
	for _, t := range req.Messages {
		b.WriteString("\n")
		b.WriteString(t.Content)
	}
	return b.String()
}

var errModelDown = errors.New("model down")
