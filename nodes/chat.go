package nodes

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/becomeliminal/nim-graph/core"
	"github.com/becomeliminal/nim-graph/engine"
	"github.com/becomeliminal/nim-graph/llm"
)

// Chat answers the conversation. The prompt is the leading system turns
// (or the configured system prompt when there are none), then the retrieved
// memories as a system note, then the rest of the conversation. Failures
// become an assistant turn stating the error.
func Chat(model llm.Model, opts ...Option) engine.NodeFunc {
	o := newOptions(opts)
	logger := o.logger.Named("chat")
	return func(ctx context.Context, s engine.State) (engine.Update, error) {
		prompt := chatPrompt(engine.Messages(s), o.systemPrompt, s.String(KeyRetrievedInfo))

		reply, err := model.Invoke(ctx, &llm.Request{
			Purpose:  "chat",
			Messages: prompt,
			Tools:    o.tools,
		})
		if err != nil {
			logger.Warn("chat failed", zap.Error(err))
			return engine.Update{KeyMessages: core.ErrorTurn(err)}, nil
		}

		text := strings.TrimSpace(reply.Text)
		if text == "" {
			text = "I'm sorry, I couldn't come up with an answer."
		}
		meta := map[string]string{}
		if len(reply.ToolCalls) > 0 {
			names := make([]string, 0, len(reply.ToolCalls))
			for _, c := range reply.ToolCalls {
				names = append(names, c.Name)
			}
			meta["tools"] = strings.Join(names, ",")
		}
		return engine.Update{KeyMessages: core.NewTurn(core.RoleAssistant, text, meta)}, nil
	}
}

func chatPrompt(turns []core.Turn, systemPrompt, retrieved string) []core.Turn {
	lead := 0
	for lead < len(turns) && turns[lead].Role == core.RoleSystem {
		lead++
	}

	out := make([]core.Turn, 0, len(turns)+2)
	if lead == 0 && systemPrompt != "" {
		out = append(out, core.SystemTurn(systemPrompt))
	}
	out = append(out, turns[:lead]...)
	if strings.TrimSpace(retrieved) != "" {
		out = append(out, core.SystemTurn(RetrievedInfoNote+retrieved))
	}
	return append(out, turns[lead:]...)
}
