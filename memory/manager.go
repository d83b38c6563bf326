package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/becomeliminal/nim-graph/core"
)

// Config holds Manager configuration.
type Config struct {
	// TopK is how many memories Retrieve returns.
	// Default: 4
	TopK int

	// ChunkSize is the maximum characters per stored record.
	// Default: 500
	ChunkSize int

	// ChunkOverlap is the characters shared by consecutive chunks.
	// Default: 0
	ChunkOverlap int

	// MinSimilarity drops matches scoring below it. Zero keeps everything.
	MinSimilarity float32

	// Timeout bounds each embed and store call. Zero means no extra bound.
	Timeout time.Duration
}

// DefaultConfig returns sensible defaults.
var DefaultConfig = &Config{
	TopK:         4,
	ChunkSize:    500,
	ChunkOverlap: 0,
}

// Manager retrieves and records memories.
type Manager struct {
	store    Store
	embedder Embedder
	config   *Config
	logger   *zap.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		m.logger = l.Named("memory")
	}
}

// NewManager creates a new Manager.
func NewManager(store Store, embedder Embedder, config *Config, opts ...Option) *Manager {
	if config == nil {
		config = DefaultConfig
	}
	m := &Manager{
		store:    store,
		embedder: embedder,
		config:   config,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.config.Timeout > 0 {
		return context.WithTimeout(ctx, m.config.Timeout)
	}
	return context.WithCancel(ctx)
}

// Search returns the top-k memories most similar to query.
func (m *Manager) Search(ctx context.Context, query string) ([]Match, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	embedding, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, &core.MemoryStoreError{Op: "embed", Err: fmt.Errorf("embed query: %w", err)}
	}

	topK := m.config.TopK
	if topK <= 0 {
		topK = DefaultConfig.TopK
	}
	matches, err := m.store.Query(ctx, embedding, topK)
	if err != nil {
		return nil, &core.MemoryStoreError{Op: "query", Err: fmt.Errorf("query store: %w", err)}
	}

	if m.config.MinSimilarity > 0 {
		kept := matches[:0]
		for _, match := range matches {
			if match.Similarity >= m.config.MinSimilarity {
				kept = append(kept, match)
			}
		}
		matches = kept
	}

	m.logger.Debug("retrieved memories",
		zap.Int("count", len(matches)),
		zap.String("query", truncate(query, 50)))
	return matches, nil
}

// Retrieve finds relevant memories and returns them formatted for a prompt.
// No matches gives "".
func (m *Manager) Retrieve(ctx context.Context, query string) (string, error) {
	matches, err := m.Search(ctx, query)
	if err != nil {
		return "", err
	}
	return FormatMatches(matches), nil
}

// Remember chunks text and stores every chunk as its own record.
func (m *Manager) Remember(ctx context.Context, text, source string) ([]Record, error) {
	chunks := SplitText(text, m.config.ChunkSize, m.config.ChunkOverlap)
	if len(chunks) == 0 {
		return nil, nil
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	records := make([]Record, 0, len(chunks))
	for i, chunk := range chunks {
		rec := NewRecord(chunk, source)
		embedding, err := m.embedder.Embed(ctx, chunk)
		if err != nil {
			return nil, &core.MemoryStoreError{Op: "embed", Err: fmt.Errorf("embed chunk %d: %w", i+1, err)}
		}
		rec.Embedding = embedding
		records = append(records, rec)
	}

	if err := m.store.Add(ctx, records...); err != nil {
		return nil, &core.MemoryStoreError{Op: "add", Err: err}
	}

	m.logger.Info("stored memory",
		zap.Int("chunks", len(records)),
		zap.String("source", source),
		zap.String("text", truncate(text, 50)))
	return records, nil
}

// Count returns the number of stored records.
func (m *Manager) Count(ctx context.Context) (int, error) {
	n, err := m.store.Count(ctx)
	if err != nil {
		return 0, &core.MemoryStoreError{Op: "count", Err: err}
	}
	return n, nil
}

// Reset forgets everything.
func (m *Manager) Reset(ctx context.Context) error {
	if err := m.store.Reset(ctx); err != nil {
		return &core.MemoryStoreError{Op: "reset", Err: err}
	}
	m.logger.Warn("memory reset")
	return nil
}
