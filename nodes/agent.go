package nodes

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/becomeliminal/nim-graph/core"
	"github.com/becomeliminal/nim-graph/engine"
	"github.com/becomeliminal/nim-graph/llm"
	"github.com/becomeliminal/nim-graph/tools"
)

// Acknowledge turns the outcome of Store into a reply.
func Acknowledge(_ context.Context, s engine.State) (engine.Update, error) {
	text := s.String(KeyMessageToStore)
	switch {
	case s.Bool(KeyStored):
		return reply(core.AssistantTurn(fmt.Sprintf("Got it, I'll remember that: %s", text))), nil
	case s.Bool(KeyIsDuplicate):
		return reply(core.AssistantTurn("I already know that.")), nil
	default:
		reason := s.String(KeyReason)
		if reason == "" {
			reason = "there was nothing personal to remember"
		}
		return reply(core.AssistantTurn(fmt.Sprintf("I didn't store anything: %s.", strings.TrimSuffix(reason, ".")))), nil
	}
}

// ToolAgent lets the model work with the tools whose names start with one
// of prefixes, e.g. "email_" or "calendar_".
func ToolAgent(capability string, model llm.Model, gateway tools.Gateway, prefixes []string, opts ...Option) engine.NodeFunc {
	o := newOptions(opts)
	logger := o.logger.Named(capability)
	var scoped tools.Gateway
	if gateway != nil {
		scoped = tools.Filter(gateway, prefixes...)
	}
	return func(ctx context.Context, s engine.State) (engine.Update, error) {
		if scoped == nil || len(scoped.Definitions()) == 0 {
			return reply(core.AssistantTurn(fmt.Sprintf(
				"I can't help with %s yet: no %s tools are connected.", capability, capability))), nil
		}
		prompt := chatPrompt(engine.Messages(s), o.systemPrompt, "")
		text, err := llm.Text(ctx, model, &llm.Request{
			Purpose:  capability,
			Messages: prompt,
			Tools:    scoped,
		})
		if err != nil {
			logger.Warn("tool agent failed", zap.Error(err))
			return reply(core.ErrorTurn(err)), nil
		}
		return reply(core.AssistantTurn(text)), nil
	}
}
