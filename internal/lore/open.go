package lore

import (
	"context"
	"fmt"
	"log/slog"
)

// Options selects and configures a lore store.
type Options struct {
	// Provider is "none", "chromem" or "chroma".
	Provider    string
	Target      string
	Collection  string
	PersistPath string
	Embedder    Embedder
	Logger      *slog.Logger
}

// Open returns the store for opts. The "none" provider yields a nil store
// and no error.
func Open(ctx context.Context, opts Options) (Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	switch opts.Provider {
	case "", "none":
		return nil, nil
	case "chromem":
		s, err := NewLocalStore(opts.PersistPath, opts.Collection, opts.Embedder)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "chroma":
		s, err := NewChromaStore(ctx, opts.Target, opts.Collection, opts.Embedder, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, opts.Provider)
	}
}
