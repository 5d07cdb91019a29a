// Package lore retrieves campaign canon for the generator.
//
// Lore lives as markdown files under a lore root. Ingest splits them into
// sections and stores them in a vector store; Retrieve formats the closest
// sections as tagged context text.
package lore

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmbedding is returned when an embedding cannot be produced.
	ErrEmbedding = errors.New("embedding failed")

	// ErrUnknownProvider is returned by Open for an unsupported provider.
	ErrUnknownProvider = errors.New("unknown lore provider")
)

// Chunk is one stored lore section.
type Chunk struct {
	ID       string
	Text     string
	Metadata map[string]string
}

// Tag renders the chunk's provenance as type:name:section.
func (c Chunk) Tag() string {
	get := func(k string) string {
		if v := c.Metadata[k]; v != "" {
			return v
		}
		return "?"
	}
	return fmt.Sprintf("%s:%s:%s", get("type"), get("name"), get("section"))
}

// Store holds lore chunks and finds those closest to a query.
type Store interface {
	Add(ctx context.Context, chunks []Chunk) error
	Query(ctx context.Context, query string, k int) ([]Chunk, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Close() error
}

// Retriever produces the canon context for a turn.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) (string, error)
}

// Format renders chunks as "[type:name:section]" blocks separated by blank
// lines.
func Format(chunks []Chunk) string {
	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		parts = append(parts, "["+c.Tag()+"]\n"+c.Text)
	}
	return strings.Join(parts, "\n\n")
}

type storeRetriever struct {
	store Store
}

// NewRetriever retrieves from store.
func NewRetriever(store Store) Retriever {
	return &storeRetriever{store: store}
}

func (r *storeRetriever) Retrieve(ctx context.Context, query string, k int) (string, error) {
	chunks, err := r.store.Query(ctx, query, k)
	if err != nil {
		return "", fmt.Errorf("retrieving lore: %w", err)
	}
	return Format(chunks), nil
}

type nopRetriever struct{}

// Nop returns a retriever that never finds anything, for campaigns without
// a lore store.
func Nop() Retriever {
	return nopRetriever{}
}

func (nopRetriever) Retrieve(context.Context, string, int) (string, error) {
	return "", nil
}
