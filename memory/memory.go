package memory

import (
	"context"
	"strings"
)

// Match is a Record returned by a similarity query.
type Match struct {
	Record
	// Similarity is the cosine similarity to the query, highest first.
	Similarity float32
}

// Format renders the match the way it is injected into prompts.
func (m Match) Format() string {
	return "Document: " + m.Text
}

// FormatMatches joins matches one per line. Empty input gives "".
func FormatMatches(matches []Match) string {
	if len(matches) == 0 {
		return ""
	}
	parts := make([]string, 0, len(matches))
	for _, m := range matches {
		parts = append(parts, m.Format())
	}
	return strings.Join(parts, "\n")
}

// Store is the vector storage backend interface.
// Records are only ever added; Reset is the sole way to forget.
type Store interface {
	// Add saves records. Each record must carry its embedding.
	Add(ctx context.Context, records ...Record) error

	// Query returns up to k records by similarity, highest first.
	// Asking for more records than exist is not an error.
	Query(ctx context.Context, embedding []float32, k int) ([]Match, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	// Reset removes every record.
	Reset(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// Embedder converts text to vector embeddings.
// Implementations: hashing (offline default), onnx (MiniLM), cache (decorator).
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns embedding vector size.
	Dimensions() int
}
