package nodes

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/becomeliminal/nim-graph/core"
	"github.com/becomeliminal/nim-graph/engine"
	"github.com/becomeliminal/nim-graph/llm"
	"github.com/becomeliminal/nim-graph/tools"
)

// WriteNode is the node name PlanDispatch sends sections to.
const WriteNode = "write"

// SectionSeparator joins report sections.
const SectionSeparator = "\n\n---\n\n"

var planSchema = &llm.Schema{
	Name:        "report_plan",
	Description: "A short report outline.",
	Properties: map[string]any{
		"topic":    tools.StringProperty("the report topic"),
		"sections": tools.ArrayProperty("section titles in order", tools.StringProperty("section title")),
	},
	Required: []string{"topic", "sections"},
}

type reportPlan struct {
	Topic    string   `json:"topic"`
	Sections []string `json:"sections"`
}

// Plan outlines a report for the latest user request.
func Plan(model llm.Model, opts ...Option) engine.NodeFunc {
	o := newOptions(opts)
	logger := o.logger.Named("plan")
	return func(ctx context.Context, s engine.State) (engine.Update, error) {
		user, ok := latestUser(s)
		if !ok {
			return nil, fmt.Errorf("no request to plan")
		}
		plan, err := llm.Decode[reportPlan](ctx, model, &llm.Request{
			Purpose:  "plan",
			System:   planPrompt,
			Messages: []core.Turn{user},
			Schema:   planSchema,
		})
		if err != nil {
			return nil, err
		}

		var sections []string
		for _, sec := range plan.Sections {
			if sec = strings.TrimSpace(sec); sec != "" {
				sections = append(sections, sec)
			}
		}
		if len(sections) == 0 {
			sections = []string{user.Content}
		}
		if o.maxSections > 0 && len(sections) > o.maxSections {
			sections = sections[:o.maxSections]
		}
		topic := strings.TrimSpace(plan.Topic)
		if topic == "" {
			topic = user.Content
		}
		logger.Debug("planned report", zap.String("topic", topic), zap.Strings("sections", sections))
		return engine.Update{KeyTopic: topic, KeySections: sections}, nil
	}
}

// PlanDispatch sends one write task per planned section.
func PlanDispatch(_ context.Context, s engine.State) ([]engine.Send, error) {
	user, _ := latestUser(s)
	topic := s.String(KeyTopic)
	sections := s.Strings(KeySections)
	sends := make([]engine.Send, 0, len(sections))
	for _, sec := range sections {
		sends = append(sends, engine.Send{
			Node: WriteNode,
			State: engine.State{
				KeyTopic:    topic,
				KeySection:  sec,
				KeyMessages: []core.Turn{user},
			},
		})
	}
	return sends, nil
}

// Write drafts one section, using tools when available.
func Write(model llm.Model, opts ...Option) engine.NodeFunc {
	o := newOptions(opts)
	return func(ctx context.Context, s engine.State) (engine.Update, error) {
		section := s.String(KeySection)
		request := ""
		if user, ok := latestUser(s); ok {
			request = user.Content
		}
		text, err := llm.Text(ctx, model, &llm.Request{
			Purpose: "write_section",
			System:  writeSectionPrompt,
			Messages: []core.Turn{core.UserTurn(fmt.Sprintf(
				"Report topic: %s\nOriginal request: %s\nSection: %s",
				s.String(KeyTopic), request, section))},
			Tools: o.tools,
		})
		if err != nil {
			return nil, fmt.Errorf("write section %q: %w", section, err)
		}
		return engine.Update{KeyCompletedSections: text}, nil
	}
}

// Synthesize joins the written sections into the final report and replies with it.
func Synthesize(_ context.Context, s engine.State) (engine.Update, error) {
	sections := s.Strings(KeyCompletedSections)
	if len(sections) == 0 {
		return reply(core.AssistantTurn("I couldn't write any part of the report.")), nil
	}
	report := strings.Join(sections, SectionSeparator)
	if topic := s.String(KeyTopic); topic != "" {
		report = "# " + topic + "\n\n" + report
	}
	return engine.Update{
		KeyFinalReport: report,
		KeyMessages:    core.NewTurn(core.RoleAssistant, report, map[string]string{"source": "report"}),
	}, nil
}

// Export saves the final report as markdown when a report directory is set.
// A failed export is logged and leaves the reply untouched.
func Export(opts ...Option) engine.NodeFunc {
	o := newOptions(opts)
	logger := o.logger.Named("export")
	return func(ctx context.Context, s engine.State) (engine.Update, error) {
		report := s.String(KeyFinalReport)
		if o.reportDir == "" || report == "" {
			return nil, nil
		}
		if err := os.MkdirAll(o.reportDir, 0o755); err != nil {
			logger.Warn("create report dir", zap.Error(err))
			return nil, nil
		}
		// The suffix keeps reports finished within the same second apart.
		name := fmt.Sprintf("report_%s_%s.md", o.now().UTC().Format("20060102_150405"), uuid.NewString()[:8])
		path := filepath.Join(o.reportDir, name)
		if err := os.WriteFile(path, []byte(report+"\n"), 0o644); err != nil {
			logger.Warn("write report", zap.Error(err))
			return nil, nil
		}
		logger.Info("exported report", zap.String("path", path))
		return engine.Update{KeyReportFile: path}, nil
	}
}
