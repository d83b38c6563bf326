// Package search runs web searches for the search node.
package search

import (
	"context"
	"fmt"
	"strings"
)

// Result is one search hit.
type Result struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score,omitempty"`
}

// Provider answers a query with a ranked list of results.
type Provider interface {
	Search(ctx context.Context, query string) ([]Result, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, query string) ([]Result, error)

func (f ProviderFunc) Search(ctx context.Context, query string) ([]Result, error) {
	return f(ctx, query)
}

// Format renders results as a numbered plain-text list for a prompt.
func Format(results []Result) string {
	if len(results) == 0 {
		return "No results."
	}
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] %s", i+1, r.Title)
		if r.URL != "" {
			fmt.Fprintf(&b, " (%s)", r.URL)
		}
		if content := strings.TrimSpace(r.Content); content != "" {
			b.WriteString("\n")
			b.WriteString(content)
		}
	}
	return b.String()
}

// None is a provider that never finds anything.
var None Provider = ProviderFunc(func(ctx context.Context, query string) ([]Result, error) {
	return nil, nil
})
