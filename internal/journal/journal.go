// Package journal numbers turns and writes their records.
//
// Every turn produces two markdown files with the same name: a full,
// GM-only record in the sessions directory and a reduced public record that
// is safe to hand to players. Both are created once and never rewritten.
package journal

import (
	"embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/tatianab/chronicle/internal/delta"
	"github.com/tatianab/chronicle/internal/fsutil"
)

//go:embed templates/*.md.tmpl
var templateFS embed.FS

var templates = template.Must(template.New("journal").Funcs(template.FuncMap{
	"turn":      FormatTurn,
	"trim":      strings.TrimSpace,
	"stamp":     func(t time.Time) string { return t.Format(time.DateTime) },
	"deltaJSON": func(d *delta.Delta) string { return d.Indent() },
	"notes":     engineNotes,
}).ParseFS(templateFS, "templates/*.md.tmpl"))

var turnFile = regexp.MustCompile(`^turn_(\d+)\.md$`)

// ErrTurnExists is returned when a record for the turn is already on disk.
var ErrTurnExists = errors.New("turn record already exists")

// Record is everything known about one processed turn.
type Record struct {
	Turn      int
	Timestamp time.Time
	Model     string

	Input     string
	Narration string
	Notes     string

	// StateUpdated is false when the delta could not be applied; FailReason
	// then says why.
	StateUpdated bool
	FailReason   string

	Delta   *delta.Delta
	Changes string
	Canon   string
	Raw     string

	// When is the campaign clock shown in the public header.
	When string
}

// Journal writes turn records under two directories.
type Journal struct {
	sessionsDir string
	publicDir   string
	now         func() time.Time
	logger      *slog.Logger
}

type Option func(*Journal)

// WithClock overrides the clock used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(j *Journal) { j.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(j *Journal) { j.logger = l }
}

func New(sessionsDir, publicDir string, opts ...Option) *Journal {
	j := &Journal{
		sessionsDir: sessionsDir,
		publicDir:   publicDir,
		now:         time.Now,
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// FormatTurn renders a turn number the way it appears in file names and
// headers: zero-padded to four digits.
func FormatTurn(n int) string {
	return fmt.Sprintf("%04d", n)
}

// FileName returns the record file name for turn n.
func FileName(n int) string {
	return "turn_" + FormatTurn(n) + ".md"
}

// NextTurn returns one more than the highest turn recorded in either
// directory, or 1 for a new campaign. Gaps are not filled.
func (j *Journal) NextTurn() (int, error) {
	highest := 0
	for _, dir := range []string{j.sessionsDir, j.publicDir} {
		n, err := maxTurn(dir)
		if err != nil {
			return 0, err
		}
		highest = max(highest, n)
	}
	return highest + 1, nil
}

func maxTurn(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("scanning %s: %w", dir, err)
	}
	highest := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := turnFile.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		highest = max(highest, n)
	}
	return highest, nil
}

// Write creates the GM-only and public records for rec.Turn. It fails with
// ErrTurnExists rather than overwrite an existing record.
func (j *Journal) Write(rec Record) error {
	if rec.Turn < 1 {
		return fmt.Errorf("invalid turn number %d", rec.Turn)
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = j.now()
	}

	name := FileName(rec.Turn)
	if err := j.render(filepath.Join(j.sessionsDir, name), "record.md.tmpl", rec); err != nil {
		return err
	}
	if err := j.render(filepath.Join(j.publicDir, name), "public.md.tmpl", rec); err != nil {
		return err
	}
	j.logger.Debug("wrote turn records", "turn", rec.Turn, "state_updated", rec.StateUpdated)
	return nil
}

func (j *Journal) render(path, tmpl string, rec Record) error {
	err := fsutil.CreateExclusive(path, 0o644, func(w io.Writer) error {
		return templates.ExecuteTemplate(w, tmpl, rec)
	})
	if errors.Is(err, os.ErrExist) {
		return fmt.Errorf("%w: %s", ErrTurnExists, path)
	}
	if err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// Public returns the public record of turn n.
func (j *Journal) Public(n int) ([]byte, error) {
	return os.ReadFile(filepath.Join(j.publicDir, FileName(n)))
}

// Record returns the GM-only record of turn n.
func (j *Journal) Record(n int) ([]byte, error) {
	return os.ReadFile(filepath.Join(j.sessionsDir, FileName(n)))
}

// FailureMarker is appended to the engine notes of a turn whose state was
// not updated.
func FailureMarker(reason string) string {
	return fmt.Sprintf("[NOTE] State was NOT updated (%s).", reason)
}

func engineNotes(rec Record) string {
	var parts []string
	if notes := strings.TrimSpace(rec.Notes); notes != "" {
		parts = append(parts, notes)
	}
	if rec.Delta != nil && len(rec.Delta.Issues) > 0 {
		var b strings.Builder
		b.WriteString("Dropped delta entries:")
		for _, issue := range rec.Delta.Issues {
			b.WriteString("\n- ")
			b.WriteString(issue.String())
		}
		parts = append(parts, b.String())
	}
	if !rec.StateUpdated {
		reason := rec.FailReason
		if reason == "" {
			reason = "delta parse failed"
		}
		parts = append(parts, FailureMarker(reason))
	}
	return strings.Join(parts, "\n\n")
}
