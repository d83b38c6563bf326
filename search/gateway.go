package search

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/becomeliminal/nim-graph/core"
	"github.com/becomeliminal/nim-graph/tools"
)

// Gateway searches through a tool exposed on a tools.Gateway, such as a
// search server connected over MCP. The tool receives {"query": ...} and may
// return a list of results, an object with a "results" list, or plain text.
type Gateway struct {
	gateway tools.Gateway
	tool    string
}

// NewGateway creates a provider that calls tool on g.
func NewGateway(g tools.Gateway, tool string) *Gateway {
	return &Gateway{gateway: g, tool: tool}
}

// Search invokes the search tool.
func (p *Gateway) Search(ctx context.Context, query string) ([]Result, error) {
	args, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return nil, err
	}
	raw, err := p.gateway.Invoke(ctx, p.tool, args)
	if err != nil {
		return nil, err
	}
	return parseResults(p.tool, raw)
}

func parseResults(tool string, raw json.RawMessage) ([]Result, error) {
	var list []Result
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}

	var obj struct {
		Results []Result `json:"results"`
		Error   *string  `json:"error"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.Error != nil {
			return nil, &core.ToolInvocationError{Tool: tool, Err: fmt.Errorf("%s", *obj.Error)}
		}
		if obj.Results != nil {
			return obj.Results, nil
		}
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return []Result{{Title: tool, Content: text}}, nil
	}
	return []Result{{Title: tool, Content: string(raw)}}, nil
}
