package orchestrator

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

func routerModel() *mock.Model {
	return assistantModel().
		On("route", func(ctx context.Context, req *llm.Request) (*llm.Reply, error) {
			text := strings.ToLower(req.Messages[0].Content)
			intent := "chat"
			switch {
			case strings.Contains(text, "parking") && strings.Contains(text, "calendar"):
				intent = "agentic"
			case strings.HasPrefix(text, "my name is"):
				intent = "store"
			case strings.Contains(text, "calendar"):
				intent = "calendar"
			}
			return mock.JSON(map[string]string{"intent": intent})(ctx, req)
		}).
		On("plan", mock.JSON(map[string]any{"topic": "Sasou visit", "sections": []string{"Parking near Sasou", "Calendar entry"}})).
		On("write_section", func(ctx context.Context, req *llm.Request) (*llm.Reply, error) {
			content := req.Messages[0].Content
			return &llm.Reply{Text: "## " + strings.TrimSpace(content[strings.Index(content, "Section:")+8:])}, nil
		})
}

func TestRouterGraphAgenticRequest(t *testing.T) {
	h := newHarness(t, KindRouter, routerModel(), nil)

	reply, err := h.orch.Send(context.Background(), core.Input{
		SessionID: "s1",
		Message:   "find parking near Sasou and add it to my calendar",
	})
	require.NoError(t, err)
	assert.Equal(t, "report", reply.Metadata["source"])
	assert.Contains(t, reply.Content, "## Parking near Sasou")
	assert.Contains(t, reply.Content, "## Calendar entry")
	assert.Empty(t, h.model.CallsFor("chat"), "agentic requests skip the chat path")
}

func TestRouterGraphStoreIntent(t *testing.T) {
	h := newHarness(t, KindRouter, routerModel(), nil)

	reply, err := h.orch.Send(context.Background(), core.Input{SessionID: "s1", Message: "My name is Shibin"})
	require.NoError(t, err)
	assert.Equal(t, "Got it, I'll remember that: User's name is Shibin", reply.Content)

	n, err := h.memory.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRouterGraphChatAndCalendar(t *testing.T) {
	h := newHarness(t, KindRouter, routerModel(), nil)

	reply, err := h.orch.Send(context.Background(), core.Input{SessionID: "s1", Message: "which restaurant is open?"})
	require.NoError(t, err)
	assert.Equal(t, "search", reply.Metadata["source"], "a deflection falls through to search")
	require.Len(t, h.model.CallsFor("chat"), 1)

	reply, err = h.orch.Send(context.Background(), core.Input{SessionID: "s1", Message: "what's on my calendar?"})
	require.NoError(t, err)
	assert.Contains(t, reply.Content, "no calendar tools are connected")
}
