// Package anthropic adapts the Anthropic Messages API to llm.Model.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/becomeliminal/nim-graph/core"
	"github.com/becomeliminal/nim-graph/llm"
	"github.com/becomeliminal/nim-graph/tools"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-sonnet-4-20250514"

// Client calls Claude through the Messages API.
type Client struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	maxTurns  int
	logger    *zap.Logger
}

// Option configures the client.
type Option func(*config)

type config struct {
	model      string
	maxTokens  int64
	maxTurns   int
	logger     *zap.Logger
	reqOptions []option.RequestOption
}

// WithModel sets the Claude model.
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithMaxTokens sets the default response token limit.
func WithMaxTokens(n int64) Option {
	return func(c *config) { c.maxTokens = n }
}

// WithMaxTurns caps model round trips in one tool-using call.
func WithMaxTurns(n int) Option {
	return func(c *config) { c.maxTurns = n }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithRequestOptions passes options through to the SDK, e.g. a base URL.
func WithRequestOptions(opts ...option.RequestOption) Option {
	return func(c *config) { c.reqOptions = append(c.reqOptions, opts...) }
}

// New creates a client with the given API key.
func New(apiKey string, opts ...Option) *Client {
	cfg := config{
		model:     DefaultModel,
		maxTokens: 4096,
		maxTurns:  10,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	reqOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, cfg.reqOptions...)
	return &Client{
		client:    anthropic.NewClient(reqOpts...),
		model:     cfg.model,
		maxTokens: cfg.maxTokens,
		maxTurns:  cfg.maxTurns,
		logger:    cfg.logger.Named("anthropic"),
	}
}

// Invoke runs one request. Structured requests force a single tool call
// whose input is the reply; tool-enabled requests loop until the model
// stops calling tools.
func (c *Client) Invoke(ctx context.Context, req *llm.Request) (*llm.Reply, error) {
	system, convo := llm.SplitSystem(req.System, req.Messages)
	messages := toMessages(convo)
	if len(messages) == 0 {
		return nil, &core.LanguageModelError{Op: req.Purpose, Err: fmt.Errorf("no messages to send")}
	}

	maxTokens := c.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: maxTokens,
		Messages:  messages,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	switch {
	case req.Schema != nil:
		return c.structured(ctx, req, params)
	case req.Tools != nil && len(req.Tools.Definitions()) > 0:
		return c.toolLoop(ctx, req, params)
	default:
		resp, err := c.create(ctx, req.Purpose, params)
		if err != nil {
			return nil, err
		}
		return &llm.Reply{Text: textOf(resp), Raw: resp}, nil
	}
}

func (c *Client) create(ctx context.Context, purpose string, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	start := time.Now()
	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, &core.LanguageModelError{Op: purpose, Err: fmt.Errorf("claude API error: %w", err)}
	}
	c.logger.Debug("messages call",
		zap.String("purpose", purpose),
		zap.Int64("input_tokens", resp.Usage.InputTokens),
		zap.Int64("output_tokens", resp.Usage.OutputTokens),
		zap.Duration("took", time.Since(start)))
	return resp, nil
}

func (c *Client) structured(ctx context.Context, req *llm.Request, params anthropic.MessageNewParams) (*llm.Reply, error) {
	schema := req.Schema
	params.Tools = []anthropic.ToolUnionParam{{
		OfTool: &anthropic.ToolParam{
			Name:        schema.Name,
			Description: anthropic.String(schema.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: schema.Properties,
				Required:   schema.Required,
			},
		},
	}}
	params.ToolChoice = anthropic.ToolChoiceUnionParam{
		OfTool: &anthropic.ToolChoiceToolParam{Name: schema.Name},
	}

	resp, err := c.create(ctx, req.Purpose, params)
	if err != nil {
		return nil, err
	}
	for _, block := range resp.Content {
		if block.Type == "tool_use" && block.Name == schema.Name {
			return &llm.Reply{
				Text:       string(block.Input),
				Structured: json.RawMessage(block.Input),
				Raw:        resp,
			}, nil
		}
	}
	return nil, &core.LanguageModelError{Op: req.Purpose, Err: fmt.Errorf("model did not call %s", schema.Name)}
}

func (c *Client) toolLoop(ctx context.Context, req *llm.Request, params anthropic.MessageNewParams) (*llm.Reply, error) {
	params.Tools = toolParams(req.Tools.Definitions())
	var calls []llm.ToolCall

	for turn := 0; turn < c.maxTurns; turn++ {
		if ctx.Err() != nil {
			return nil, &core.LanguageModelError{Op: req.Purpose, Err: fmt.Errorf("timed out: %w", ctx.Err())}
		}

		resp, err := c.create(ctx, req.Purpose, params)
		if err != nil {
			return nil, err
		}

		var results []anthropic.ContentBlockParamUnion
		for _, block := range resp.Content {
			if block.Type != "tool_use" {
				continue
			}
			out, isErr := c.runTool(ctx, req.Tools, block.Name, block.Input)
			calls = append(calls, llm.ToolCall{
				Name:    block.Name,
				Input:   json.RawMessage(block.Input),
				Output:  out,
				IsError: isErr,
			})
			results = append(results, anthropic.NewToolResultBlock(block.ID, string(out), isErr))
		}

		// If no tool calls, we're done
		if len(results) == 0 {
			return &llm.Reply{Text: textOf(resp), ToolCalls: calls, Raw: resp}, nil
		}

		// Continue loop with tool results
		params.Messages = append(params.Messages, resp.ToParam(), anthropic.NewUserMessage(results...))
	}
	return nil, &core.LanguageModelError{Op: req.Purpose, Err: fmt.Errorf("exceeded maximum turns (%d)", c.maxTurns)}
}

// runTool invokes a tool and reports failures back to the model as error results.
func (c *Client) runTool(ctx context.Context, gw tools.Gateway, name string, input json.RawMessage) (json.RawMessage, bool) {
	start := time.Now()
	out, err := gw.Invoke(ctx, name, input)
	c.logger.Debug("tool call",
		zap.String("tool", name),
		zap.Duration("took", time.Since(start)),
		zap.Error(err))
	if err != nil {
		return tools.ErrorResult(err.Error()), true
	}
	var probe struct {
		Error *string `json:"error"`
	}
	if json.Unmarshal(out, &probe) == nil && probe.Error != nil {
		return out, true
	}
	return out, false
}

func toolParams(defs []tools.Definition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, d := range defs {
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        d.Name,
				Description: anthropic.String(d.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: tools.SchemaProperties(d.InputSchema),
					Required:   tools.SchemaRequired(d.InputSchema),
				},
			},
		})
	}
	return out
}

// toMessages converts turns to API messages, merging consecutive turns of
// the same role and making sure the conversation opens with a user turn.
func toMessages(turns []core.Turn) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	var role core.Role
	var blocks []anthropic.ContentBlockParamUnion
	flush := func() {
		if len(blocks) == 0 {
			return
		}
		if role == core.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		} else {
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
		blocks = nil
	}
	for _, t := range turns {
		if strings.TrimSpace(t.Content) == "" {
			continue
		}
		if len(out) == 0 && len(blocks) == 0 && t.Role == core.RoleAssistant {
			blocks = append(blocks, anthropic.NewTextBlock("(conversation resumed)"))
			role = core.RoleUser
			flush()
		}
		if t.Role != role {
			flush()
			role = t.Role
		}
		blocks = append(blocks, anthropic.NewTextBlock(t.Content))
	}
	flush()
	return out
}

func textOf(resp *anthropic.Message) string {
	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return strings.TrimSpace(b.String())
}
