package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/becomeliminal/nim-graph/core"
)

// DefaultTavilyEndpoint is the Tavily search API.
const DefaultTavilyEndpoint = "https://api.tavily.com/search"

// Tavily searches with the Tavily API.
type Tavily struct {
	apiKey     string
	endpoint   string
	maxResults int
	client     *http.Client
	logger     *zap.Logger
}

// TavilyOption configures the Tavily provider.
type TavilyOption func(*Tavily)

// WithEndpoint overrides the API endpoint.
func WithEndpoint(url string) TavilyOption {
	return func(t *Tavily) { t.endpoint = url }
}

// WithMaxResults sets how many results to request.
func WithMaxResults(n int) TavilyOption {
	return func(t *Tavily) { t.maxResults = n }
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) TavilyOption {
	return func(t *Tavily) { t.client = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) TavilyOption {
	return func(t *Tavily) { t.logger = l }
}

// NewTavily creates a Tavily provider.
func NewTavily(apiKey string, opts ...TavilyOption) *Tavily {
	t := &Tavily{
		apiKey:     apiKey,
		endpoint:   DefaultTavilyEndpoint,
		maxResults: 5,
		client:     &http.Client{Timeout: 30 * time.Second},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.Named("tavily")
	return t
}

type tavilyRequest struct {
	APIKey        string `json:"api_key"`
	Query         string `json:"query"`
	MaxResults    int    `json:"max_results"`
	SearchDepth   string `json:"search_depth"`
	IncludeAnswer bool   `json:"include_answer"`
}

type tavilyResponse struct {
	Results []Result `json:"results"`
}

// Search runs the query.
func (t *Tavily) Search(ctx context.Context, query string) ([]Result, error) {
	body, err := json.Marshal(tavilyRequest{
		APIKey:      t.apiKey,
		Query:       query,
		MaxResults:  t.maxResults,
		SearchDepth: "basic",
	})
	if err != nil {
		return nil, t.fail(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, t.fail(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, t.fail(fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, t.fail(fmt.Errorf("API error (status %d): %s", resp.StatusCode, bytes.TrimSpace(msg)))
	}

	var out tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, t.fail(fmt.Errorf("parse response: %w", err))
	}
	t.logger.Debug("search done",
		zap.String("query", query),
		zap.Int("results", len(out.Results)),
		zap.Duration("took", time.Since(start)))
	return out.Results, nil
}

func (t *Tavily) fail(err error) error {
	return &core.ToolInvocationError{Tool: "tavily", Err: err}
}
