// Package chapter groups turns into named chapters and compiles their public
// records into one shareable document.
package chapter

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/tatianab/chronicle/internal/fsutil"
	"github.com/tatianab/chronicle/internal/journal"
)

var (
	// ErrNoActiveChapter is returned by Compile and End when no chapter is
	// active.
	ErrNoActiveChapter = errors.New("no active chapter")

	// ErrInvalidSlug is returned by Start for a slug that cannot be used as
	// a file name.
	ErrInvalidSlug = errors.New("invalid chapter slug")
)

// State is the persisted chapter state.
type State struct {
	Active bool   `yaml:"active"`
	Slug   string `yaml:"slug,omitempty"`
	Title  string `yaml:"title,omitempty"`
	Turns  []int  `yaml:"turns"`
}

// Records gives access to public turn records.
type Records interface {
	Public(turn int) ([]byte, error)
}

// Chapters is the chapter state machine.
type Chapters struct {
	statePath   string
	chaptersDir string
	records     Records
	logger      *slog.Logger
}

type Option func(*Chapters)

func WithLogger(l *slog.Logger) Option {
	return func(c *Chapters) { c.logger = l }
}

func New(statePath, chaptersDir string, records Records, opts ...Option) *Chapters {
	c := &Chapters{
		statePath:   statePath,
		chaptersDir: chaptersDir,
		records:     records,
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Status returns the current chapter state. A campaign that never started a
// chapter is inactive.
func (c *Chapters) Status() (State, error) {
	data, err := os.ReadFile(c.statePath)
	if errors.Is(err, os.ErrNotExist) {
		return State{Turns: []int{}}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("reading chapter state: %w", err)
	}
	var st State
	if err := yaml.Unmarshal(data, &st); err != nil {
		return State{}, fmt.Errorf("decoding chapter state: %w", err)
	}
	if st.Turns == nil {
		st.Turns = []int{}
	}
	return st, nil
}

func (c *Chapters) save(st State) error {
	data, err := yaml.Marshal(st)
	if err != nil {
		return fmt.Errorf("encoding chapter state: %w", err)
	}
	err = fsutil.WriteFileAtomic(c.statePath, 0o644, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
	if err != nil {
		return fmt.Errorf("saving chapter state: %w", err)
	}
	return nil
}

// Start makes slug the active chapter with no turns. Any chapter that was
// active is abandoned without being compiled. An empty title is derived
// from the slug.
func (c *Chapters) Start(slug, title string) (State, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" || fsutil.SafeName(slug, "") != slug {
		return State{}, fmt.Errorf("%w: %q", ErrInvalidSlug, slug)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultTitle(slug)
	}

	prev, err := c.Status()
	if err != nil {
		return State{}, err
	}
	if prev.Active {
		c.logger.Warn("abandoning active chapter", "slug", prev.Slug, "turns", len(prev.Turns))
	}

	st := State{Active: true, Slug: slug, Title: title, Turns: []int{}}
	if err := c.save(st); err != nil {
		return State{}, err
	}
	c.logger.Info("chapter started", "slug", slug, "title", title)
	return st, nil
}

// Add appends turn to the active chapter. It reports false, and changes
// nothing, when no chapter is active.
func (c *Chapters) Add(turn int) (bool, error) {
	st, err := c.Status()
	if err != nil {
		return false, err
	}
	if !st.Active {
		return false, nil
	}
	st.Turns = append(st.Turns, turn)
	if err := c.save(st); err != nil {
		return false, err
	}
	return true, nil
}

// Compile writes the active chapter's document and returns its path.
func (c *Chapters) Compile() (string, error) {
	st, err := c.Status()
	if err != nil {
		return "", err
	}
	if !st.Active {
		return "", ErrNoActiveChapter
	}
	return c.compile(st)
}

// End compiles the active chapter if it has any turns, then deactivates it.
// The returned path is empty when there was nothing to compile.
func (c *Chapters) End() (string, error) {
	st, err := c.Status()
	if err != nil {
		return "", err
	}
	if !st.Active {
		return "", ErrNoActiveChapter
	}

	var path string
	if len(st.Turns) > 0 {
		if path, err = c.compile(st); err != nil {
			return "", err
		}
	}
	if err := c.save(State{Turns: []int{}}); err != nil {
		return path, err
	}
	c.logger.Info("chapter ended", "slug", st.Slug, "turns", len(st.Turns))
	return path, nil
}

// Path returns where the compiled document for slug is written.
func (c *Chapters) Path(slug string) string {
	return filepath.Join(c.chaptersDir, slug+".md")
}

func (c *Chapters) compile(st State) (string, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# %s\n\n", st.Title)

	nums := make([]string, len(st.Turns))
	for i, t := range st.Turns {
		nums[i] = journal.FormatTurn(t)
	}
	fmt.Fprintf(&buf, "_Compiled from turns: %s_\n\n", strings.Join(nums, ", "))

	for _, t := range st.Turns {
		data, err := c.records.Public(t)
		switch {
		case errors.Is(err, os.ErrNotExist):
			c.logger.Warn("public record missing", "turn", t)
			fmt.Fprintf(&buf, "## Missing %s\n\n---\n\n", journal.FileName(t))
			continue
		case err != nil:
			return "", fmt.Errorf("reading turn %d: %w", t, err)
		}
		buf.WriteString(strings.TrimSpace(string(data)))
		buf.WriteString("\n\n---\n\n")
	}

	path := c.Path(st.Slug)
	err := fsutil.WriteFileAtomic(path, 0o644, func(w io.Writer) error {
		_, err := w.Write(buf.Bytes())
		return err
	})
	if err != nil {
		return "", fmt.Errorf("writing chapter: %w", err)
	}
	c.logger.Info("chapter compiled", "slug", st.Slug, "path", path, "turns", len(st.Turns))
	return path, nil
}

// DefaultTitle turns a slug such as "the-long_road" into "The Long Road".
func DefaultTitle(slug string) string {
	words := strings.Fields(strings.NewReplacer("-", " ", "_", " ").Replace(slug))
	return cases.Title(language.English).String(strings.Join(words, " "))
}

// ParseStartArgs splits `<slug> [title]` as typed at the table. The title
// may be wrapped in double quotes.
func ParseStartArgs(args string) (slug, title string, err error) {
	args = strings.TrimSpace(args)
	if args == "" {
		return "", "", fmt.Errorf("%w: missing slug", ErrInvalidSlug)
	}
	slug, title = args, ""
	if i := strings.IndexFunc(args, unicode.IsSpace); i >= 0 {
		slug, title = args[:i], strings.TrimSpace(args[i:])
	}
	if len(title) >= 2 && strings.HasPrefix(title, `"`) && strings.HasSuffix(title, `"`) {
		title = strings.TrimSpace(title[1 : len(title)-1])
	}
	return slug, title, nil
}
