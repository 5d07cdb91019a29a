package lore

import (
	"context"
	"fmt"

	chromem "github.com/philippgille/chromem-go"
)

// LocalStore keeps lore in an embedded chromem-go database, persisted
// under a directory when one is given.
type LocalStore struct {
	db         *chromem.DB
	collection *chromem.Collection
}

// NewLocalStore opens the collection in persistDir, or an in-memory database
// when persistDir is empty.
func NewLocalStore(persistDir, collection string, embedder Embedder) (*LocalStore, error) {
	db := chromem.NewDB()
	if persistDir != "" {
		var err error
		db, err = chromem.NewPersistentDB(persistDir, false)
		if err != nil {
			return nil, fmt.Errorf("opening lore database: %w", err)
		}
	}

	embed := func(ctx context.Context, text string) ([]float32, error) {
		return embedder.Embed(ctx, text)
	}
	col, err := db.GetOrCreateCollection(collection, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("opening collection %q: %w", collection, err)
	}
	return &LocalStore{db: db, collection: col}, nil
}

func (s *LocalStore) Add(ctx context.Context, chunks []Chunk) error {
	for _, c := range chunks {
		err := s.collection.AddDocument(ctx, chromem.Document{
			ID:       c.ID,
			Content:  c.Text,
			Metadata: c.Metadata,
		})
		if err != nil {
			return fmt.Errorf("adding %s: %w", c.ID, err)
		}
	}
	return nil
}

// Query returns up to k chunks, most similar first.
func (s *LocalStore) Query(ctx context.Context, query string, k int) ([]Chunk, error) {
	// chromem rejects requests for more results than it holds.
	k = min(k, s.collection.Count())
	if k <= 0 {
		return nil, nil
	}
	results, err := s.collection.Query(ctx, query, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying lore: %w", err)
	}
	chunks := make([]Chunk, len(results))
	for i, r := range results {
		chunks[i] = Chunk{ID: r.ID, Text: r.Content, Metadata: r.Metadata}
	}
	return chunks, nil
}

func (s *LocalStore) Count(context.Context) (int, error) {
	return s.collection.Count(), nil
}

func (s *LocalStore) Close() error {
	return nil
}

var _ Store = (*LocalStore)(nil)
