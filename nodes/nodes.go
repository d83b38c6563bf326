// Package nodes implements the processing steps of the assistant graphs.
//
// Every node is an engine.NodeFunc built from its collaborators: a
// language model, the memory manager, a tool gateway or a search provider.
// Nodes read a snapshot of the graph state and return only the channels
// they change.
package nodes

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/becomeliminal/nim-graph/core"
	"github.com/becomeliminal/nim-graph/engine"
	"github.com/becomeliminal/nim-graph/memory"
	"github.com/becomeliminal/nim-graph/tools"
)

// State channels written by the nodes.
const (
	KeyMessages          = engine.MessagesKey
	KeyRetrievedInfo     = "retrieved_info"
	KeyResult            = "result"
	KeyStored            = "stored"
	KeyReason            = "reason"
	KeyIsDuplicate       = "is_duplicate"
	KeyMessageToStore    = "message_to_store"
	KeyTopic             = "topic"
	KeySections          = "sections"
	KeySection           = "section"
	KeyCompletedSections = "completed_sections"
	KeyFinalReport       = "final_report"
	KeyReportFile        = "report_file"
)

// DefaultDuplicateSimilarity is the similarity at which a retrieved memory
// counts as the same fact.
const DefaultDuplicateSimilarity float32 = 0.95

// Channels declares every channel the nodes write.
func Channels(def *engine.Definition) *engine.Definition {
	for _, key := range []string{
		KeyRetrievedInfo, KeyResult, KeyStored, KeyReason, KeyIsDuplicate,
		KeyMessageToStore, KeyTopic, KeySections, KeyFinalReport, KeyReportFile,
	} {
		def.Channel(key, engine.Overwrite)
	}
	return def.Channel(KeyCompletedSections, engine.AppendStrings)
}

// Memory is what the nodes need from the memory subsystem.
type Memory interface {
	Search(ctx context.Context, query string) ([]memory.Match, error)
	// Retrieve returns the matches for query formatted for a prompt.
	Retrieve(ctx context.Context, query string) (string, error)
	Remember(ctx context.Context, text, source string) ([]memory.Record, error)
}

// Option configures a node.
type Option func(*options)

type options struct {
	logger              *zap.Logger
	systemPrompt        string
	tools               tools.Gateway
	duplicateSimilarity float32
	reportDir           string
	maxSections         int
	now                 func() time.Time
}

func newOptions(opts []Option) *options {
	o := &options{
		logger:              zap.NewNop(),
		systemPrompt:        DefaultSystemPrompt,
		duplicateSimilarity: DefaultDuplicateSimilarity,
		maxSections:         5,
		now:                 time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithSystemPrompt sets the base system prompt used when the conversation
// carries none.
func WithSystemPrompt(p string) Option {
	return func(o *options) { o.systemPrompt = p }
}

// WithTools grants the model access to a tool gateway.
func WithTools(g tools.Gateway) Option {
	return func(o *options) { o.tools = g }
}

// WithDuplicateSimilarity sets the similarity at which Store treats a
// retrieved memory as a duplicate.
func WithDuplicateSimilarity(s float32) Option {
	return func(o *options) { o.duplicateSimilarity = s }
}

// WithReportDir makes Export write reports into dir.
func WithReportDir(dir string) Option {
	return func(o *options) { o.reportDir = dir }
}

// WithMaxSections caps the sections Plan may produce.
func WithMaxSections(n int) Option {
	return func(o *options) { o.maxSections = n }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func latestUser(s engine.State) (core.Turn, bool) {
	return core.LastOfRole(engine.Messages(s), core.RoleUser)
}

// conversation returns the non-system turns.
func conversation(turns []core.Turn) []core.Turn {
	out := make([]core.Turn, 0, len(turns))
	for _, t := range turns {
		if t.Role != core.RoleSystem {
			out = append(out, t)
		}
	}
	return out
}

func reply(t core.Turn) engine.Update {
	return engine.Update{KeyMessages: t}
}
