// Package engine runs the turn pipeline: retrieve canon, ask the generator,
// fold the delta into the world state, record the turn and file it under
// the active chapter.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tatianab/chronicle/internal/chapter"
	"github.com/tatianab/chronicle/internal/delta"
	"github.com/tatianab/chronicle/internal/journal"
	"github.com/tatianab/chronicle/internal/lore"
	"github.com/tatianab/chronicle/internal/merge"
	"github.com/tatianab/chronicle/internal/models"
)

// DefaultTopK is how many lore chunks are retrieved per turn.
const DefaultTopK = 6

// MissingNarration is shown at the table when the response had no
// narration section.
const MissingNarration = "(No GM_NARRATION found; check the session log.)"

// ErrNoGenerator is returned by ProcessTurn on an engine built without a
// generator.
var ErrNoGenerator = errors.New("no generator configured")

// TurnResult is what the table sees of a processed turn.
type TurnResult struct {
	Turn      int
	Narration string
	Notes     string

	StateUpdated bool
	// DeltaErr says why the delta could not be read. It is nil when the
	// delta parsed, even if some entries were dropped.
	DeltaErr error
	Issues   []delta.Issue

	// InChapter reports whether the turn was added to the active chapter.
	InChapter bool
	// State is the world state after the turn.
	State models.WorldState
}

// Display returns the narration, or a placeholder when there was none.
func (r *TurnResult) Display() string {
	if r.Narration == "" {
		return MissingNarration
	}
	return r.Narration
}

type Engine struct {
	store     *models.Store
	journal   *journal.Journal
	chapters  *chapter.Chapters
	generator Generator
	retriever lore.Retriever
	parser    *delta.Parser
	model     string
	topK      int
	logger    *slog.Logger
	closers   []func() error
}

type Option func(*Engine)

func WithGenerator(g Generator) Option {
	return func(e *Engine) { e.generator = g }
}

// WithRetriever sets where canon comes from and how many chunks to ask for.
func WithRetriever(r lore.Retriever, topK int) Option {
	return func(e *Engine) {
		e.retriever = r
		if topK > 0 {
			e.topK = topK
		}
	}
}

func WithParser(p *delta.Parser) Option {
	return func(e *Engine) { e.parser = p }
}

// WithModel sets the model identifier written into turn records.
func WithModel(name string) Option {
	return func(e *Engine) { e.model = name }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// withCloser registers cleanup to run on Close.
func withCloser(fn func() error) Option {
	return func(e *Engine) { e.closers = append(e.closers, fn) }
}

func New(store *models.Store, j *journal.Journal, c *chapter.Chapters, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		journal:   j,
		chapters:  c,
		retriever: lore.Nop(),
		parser:    delta.NewParser(),
		topK:      DefaultTopK,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.model == "" {
		if named, ok := e.generator.(interface{ Name() string }); ok {
			e.model = named.Name()
		}
	}
	return e
}

// Close releases the generator and lore store.
func (e *Engine) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		errs = append(errs, e.closers[i]())
	}
	return errors.Join(errs...)
}

// ProcessTurn plays one turn of input. Blank input is ignored and yields a
// nil result.
//
// A response without a readable delta still completes the turn: the state
// is left as it was and the GM-only record says so. When persistence fails
// the result is returned alongside the error so the narration is not lost.
func (e *Engine) ProcessTurn(ctx context.Context, input string) (*TurnResult, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, nil
	}
	if e.generator == nil {
		return nil, ErrNoGenerator
	}

	state, err := e.store.Load()
	if err != nil {
		return nil, err
	}
	turn, err := e.journal.NextTurn()
	if err != nil {
		return nil, err
	}
	logger := e.logger.With("turn", turn)

	canon, err := e.retriever.Retrieve(ctx, input, e.topK)
	if err != nil {
		logger.Warn("lore retrieval failed, continuing without canon", "error", err)
		canon = ""
	}

	stateJSON, err := models.Encode(state)
	if err != nil {
		return nil, err
	}
	raw, err := e.generator.Generate(ctx, Request{Canon: canon, State: string(stateJSON), Input: input})
	if err != nil {
		return nil, fmt.Errorf("generating turn %d: %w", turn, err)
	}

	sections := delta.Split(raw)
	res := &TurnResult{
		Turn:      turn,
		Narration: sections.Narration,
		Notes:     sections.Notes,
		State:     state,
	}
	rec := journal.Record{
		Turn:      turn,
		Model:     e.model,
		Input:     input,
		Narration: sections.Narration,
		Notes:     sections.Notes,
		Canon:     canon,
		Raw:       raw,
		When:      state.When(),
	}

	var errs []error
	d, err := e.parser.ParseOutput(raw)
	if err != nil {
		res.DeltaErr = err
		rec.FailReason = "delta parse failed"
		logger.Warn("state not updated", "error", err)
	} else {
		res.Issues = d.Issues
		rec.Delta = d
		for _, issue := range d.Issues {
			logger.Warn("dropped delta entry", "path", issue.Path, "reason", issue.Reason)
		}

		next := merge.Apply(state, d)
		if err := e.store.Save(next); err != nil {
			logger.Error("state not saved", "error", err)
			errs = append(errs, err)
			rec.FailReason = "state save failed"
			rec.Delta = nil
		} else {
			res.StateUpdated = true
			res.State = next
			rec.StateUpdated = true
			rec.When = next.When()
			if rec.Changes, err = merge.Diff(state, next); err != nil {
				logger.Warn("state diff failed", "error", err)
			}
		}
	}

	if err := e.journal.Write(rec); err != nil {
		logger.Error("turn records not written", "error", err)
		return res, errors.Join(append(errs, err)...)
	}

	res.InChapter, err = e.chapters.Add(turn)
	if err != nil {
		logger.Error("turn not added to chapter", "error", err)
		errs = append(errs, err)
	}

	logger.Info("turn processed",
		"state_updated", res.StateUpdated,
		"dropped", len(res.Issues),
		"in_chapter", res.InChapter)
	return res, errors.Join(errs...)
}

// State returns the current world state.
func (e *Engine) State() (models.WorldState, error) {
	return e.store.Load()
}

// Snapshot copies the state document under label and returns its path.
func (e *Engine) Snapshot(label string) (string, error) {
	return e.store.Snapshot(label)
}

func (e *Engine) Snapshots() ([]models.Snapshot, error) {
	return e.store.ListSnapshots()
}

func (e *Engine) ChapterStart(slug, title string) (chapter.State, error) {
	return e.chapters.Start(slug, title)
}

func (e *Engine) ChapterStatus() (chapter.State, error) {
	return e.chapters.Status()
}

func (e *Engine) ChapterCompile() (string, error) {
	return e.chapters.Compile()
}

func (e *Engine) ChapterEnd() (string, error) {
	return e.chapters.End()
}
