package chromem

import (
	"context"
	"fmt"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/becomeliminal/nim-graph/memory"
)

// DefaultCollection is the collection name used when none is configured.
const DefaultCollection = "personal_memory"

// ChromemStore wraps chromem-go for vector storage.
// chromem-go is a pure Go, embedded vector database.
type ChromemStore struct {
	db         *chromem.DB
	name       string
	collection *chromem.Collection
	mu         sync.RWMutex
	logger     *zap.Logger
}

// Option configures a ChromemStore.
type Option func(*options)

type options struct {
	persistDir string
	collection string
	logger     *zap.Logger
}

// WithPersistDir stores the database under dir so memories survive restarts.
func WithPersistDir(dir string) Option {
	return func(o *options) { o.persistDir = dir }
}

// WithCollection sets the collection name.
func WithCollection(name string) Option {
	return func(o *options) { o.collection = name }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New creates a new chromem-based store.
func New(opts ...Option) (*ChromemStore, error) {
	o := options{collection: DefaultCollection, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	db := chromem.NewDB()
	if o.persistDir != "" {
		var err error
		db, err = chromem.NewPersistentDB(o.persistDir, false)
		if err != nil {
			return nil, fmt.Errorf("open persistent db: %w", err)
		}
	}

	s := &ChromemStore{
		db:     db,
		name:   o.collection,
		logger: o.logger.Named("chromem"),
	}
	col, err := s.openCollection()
	if err != nil {
		return nil, err
	}
	s.collection = col
	return s, nil
}

func (s *ChromemStore) openCollection() (*chromem.Collection, error) {
	col, err := s.db.GetOrCreateCollection(
		s.name,
		nil, // No collection metadata
		nil, // No embedding func (we provide embeddings)
	)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	return col, nil
}

// Add saves records with their embeddings.
func (s *ChromemStore) Add(ctx context.Context, records ...memory.Record) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range records {
		if len(rec.Embedding) == 0 {
			return fmt.Errorf("record %s has no embedding", rec.ID)
		}
		doc := chromem.Document{
			ID:        rec.ID,
			Content:   rec.Text,
			Embedding: rec.Embedding,
			Metadata: map[string]string{
				"source":     rec.Source,
				"created_at": rec.CreatedAt.Format(time.RFC3339Nano),
			},
		}
		if err := s.collection.AddDocument(ctx, doc); err != nil {
			return fmt.Errorf("add document: %w", err)
		}
		s.logger.Debug("stored record", zap.String("id", rec.ID), zap.String("source", rec.Source))
	}
	return nil
}

// Query retrieves records by vector similarity.
func (s *ChromemStore) Query(ctx context.Context, embedding []float32, k int) ([]memory.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// chromem-go requires nResults <= collection size
	count := s.collection.Count()
	if count == 0 || k <= 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	results, err := s.collection.QueryEmbedding(ctx, embedding, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	matches := make([]memory.Match, 0, len(results))
	for _, r := range results {
		createdAt, _ := time.Parse(time.RFC3339Nano, r.Metadata["created_at"])
		matches = append(matches, memory.Match{
			Record: memory.Record{
				ID:        r.ID,
				Text:      r.Content,
				Embedding: r.Embedding,
				Source:    r.Metadata["source"],
				CreatedAt: createdAt,
			},
			Similarity: r.Similarity,
		})
	}
	s.logger.Debug("query complete", zap.Int("requested", k), zap.Int("returned", len(matches)))
	return matches, nil
}

// Count returns the number of stored records.
func (s *ChromemStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collection.Count(), nil
}

// Reset drops and recreates the collection.
func (s *ChromemStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.DeleteCollection(s.name); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	col, err := s.openCollection()
	if err != nil {
		return err
	}
	s.collection = col
	return nil
}

// Close releases resources.
func (s *ChromemStore) Close() error {
	// Persistent DBs write on every add; nothing to flush.
	return nil
}
