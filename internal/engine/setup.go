package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tatianab/chronicle/internal/chapter"
	"github.com/tatianab/chronicle/internal/config"
	"github.com/tatianab/chronicle/internal/delta"
	"github.com/tatianab/chronicle/internal/journal"
	"github.com/tatianab/chronicle/internal/lore"
	"github.com/tatianab/chronicle/internal/models"
)

// Open wires an engine for the campaign described by cfg. It has no
// generator and no lore; commands that play turns add them with
// GeminiOption and LoreOption.
func Open(cfg *config.Config, logger *slog.Logger, opts ...Option) *Engine {
	store := models.NewStore(cfg.Paths.State, cfg.Paths.Snapshots,
		models.WithCompression(cfg.Snapshots.Compress),
		models.WithLogger(logger.With("component", "store")))
	j := journal.New(cfg.Paths.Sessions, cfg.Paths.Public,
		journal.WithLogger(logger.With("component", "journal")))
	c := chapter.New(cfg.Paths.ChapterState, cfg.Paths.Chapters, j,
		chapter.WithLogger(logger.With("component", "chapter")))

	base := []Option{
		WithParser(delta.NewParser(delta.WithRepair(cfg.Delta.Repair))),
		WithModel(cfg.Model),
		WithLogger(logger.With("component", "engine")),
	}
	return New(store, j, c, append(base, opts...)...)
}

// OpenLore opens the lore store cfg selects. It returns nil when lore is
// disabled.
func OpenLore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (lore.Store, error) {
	store, err := lore.Open(ctx, lore.Options{
		Provider:    cfg.Lore.Provider,
		Target:      cfg.Lore.Target,
		Collection:  cfg.Lore.Collection,
		PersistPath: cfg.Lore.PersistPath,
		Embedder:    lore.NewOllamaEmbedder(cfg.Embedding.Target, cfg.Embedding.Model),
		Logger:      logger.With("component", "lore"),
	})
	if err != nil {
		return nil, fmt.Errorf("opening lore store: %w", err)
	}
	return store, nil
}

// LoreOption retrieves canon from the store cfg selects and closes it with
// the engine. With lore disabled the option changes nothing.
func LoreOption(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Option, error) {
	store, err := OpenLore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return func(*Engine) {}, nil
	}
	return func(e *Engine) {
		WithRetriever(lore.NewRetriever(store), cfg.Lore.TopK)(e)
		withCloser(store.Close)(e)
	}, nil
}

// GeminiOption generates turns with the Gemini model cfg names and closes
// the client with the engine.
func GeminiOption(ctx context.Context, cfg *config.Config) (Option, error) {
	key, err := cfg.APIKey()
	if err != nil {
		return nil, err
	}
	g, err := NewGemini(ctx, key, cfg.Model)
	if err != nil {
		return nil, err
	}
	return func(e *Engine) {
		WithGenerator(g)(e)
		withCloser(g.Close)(e)
	}, nil
}
