package mock

import (
	"context"
	"strings"

	"github.com/becomeliminal/nim-graph/core"
	"github.com/becomeliminal/nim-graph/llm"
)

// Offline returns a model that answers without any provider, for demos and
// smoke runs. Chat repeats what memory retrieved, every answer is judged
// satisfactory, routing always picks chat, and first-person statements
// ("My name is ...", "I like ...") are stored.
func Offline() *Model {
	return New(func(ctx context.Context, req *llm.Request) (*llm.Reply, error) {
		return &llm.Reply{Text: "(offline) " + lastUser(req.Messages)}, nil
	}).
		On("chat", offlineChat).
		On("evaluate", JSON(map[string]bool{"result": true})).
		On("route", JSON(map[string]string{"intent": "chat", "reason": "offline"})).
		On("store_decision", offlineStore).
		On("plan", JSON(map[string]any{"topic": "Notes", "sections": []string{"Summary"}}))
}

func lastUser(turns []core.Turn) string {
	t, _ := core.LastOfRole(turns, core.RoleUser)
	return t.Content
}

func offlineChat(ctx context.Context, req *llm.Request) (*llm.Reply, error) {
	system, convo := llm.SplitSystem(req.System, req.Messages)
	var docs []string
	for _, line := range strings.Split(system, "\n") {
		if doc, ok := strings.CutPrefix(line, "Document: "); ok {
			docs = append(docs, doc)
		}
	}
	if len(docs) > 0 {
		return &llm.Reply{Text: "From what I remember: " + strings.Join(docs, "; ")}, nil
	}
	return &llm.Reply{Text: "(offline) You said: " + lastUser(convo)}, nil
}

func offlineStore(ctx context.Context, req *llm.Request) (*llm.Reply, error) {
	prompt := lastUser(req.Messages)
	existing, msg, _ := strings.Cut(prompt, "User message:\n")
	msg = strings.TrimSpace(msg)

	fact := ""
	lower := strings.ToLower(msg)
	switch {
	case strings.HasSuffix(msg, "?"):
	case strings.HasPrefix(lower, "my "):
		fact = "User's " + msg[3:]
	case strings.HasPrefix(lower, "i "):
		fact = "User " + msg[2:]
	}
	fact = strings.TrimSuffix(fact, ".")

	decision := map[string]any{"should_store": false, "message_to_store": "", "reason": "not a personal fact", "is_duplicate": false}
	switch {
	case fact == "":
	case strings.Contains(existing, "Document: "+fact):
		decision["is_duplicate"] = true
		decision["reason"] = "already remembered"
	default:
		decision["should_store"] = true
		decision["message_to_store"] = fact
		decision["reason"] = "personal fact"
	}
	return JSON(decision)(ctx, req)
}
