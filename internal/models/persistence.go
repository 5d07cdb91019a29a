package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/tatianab/chronicle/internal/fsutil"
)

const (
	snapshotExt           = ".json"
	compressedSnapshotExt = ".json.zst"
	snapshotTimeLayout    = "20060102_150405"
)

// Store owns the canonical state document and its snapshots.
type Store struct {
	statePath   string
	snapshotDir string
	compress    bool
	now         func() time.Time
	logger      *slog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithCompression makes new snapshots zstd-compressed.
func WithCompression(compress bool) StoreOption {
	return func(s *Store) { s.compress = compress }
}

// WithClock overrides the clock used to stamp snapshots.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the store's logger.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

func NewStore(statePath, snapshotDir string, opts ...StoreOption) *Store {
	s := &Store{
		statePath:   statePath,
		snapshotDir: snapshotDir,
		now:         time.Now,
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the location of the state document.
func (s *Store) Path() string {
	return s.statePath
}

// Load reads the state document, writing the initial document first if the
// campaign has never been saved.
func (s *Store) Load() (WorldState, error) {
	data, err := os.ReadFile(s.statePath)
	if errors.Is(err, os.ErrNotExist) {
		state := Initial()
		if err := s.Save(state); err != nil {
			return WorldState{}, fmt.Errorf("initialising state: %w", err)
		}
		s.logger.Info("created initial state document", "path", s.statePath)
		return state, nil
	}
	if err != nil {
		return WorldState{}, fmt.Errorf("reading state: %w", err)
	}
	return decodeState(data)
}

// Save replaces the state document. The previous document stays in place if
// anything fails.
func (s *Store) Save(state WorldState) error {
	data, err := Encode(state)
	if err != nil {
		return err
	}
	err = fsutil.WriteFileAtomic(s.statePath, 0o644, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
	if err != nil {
		return fmt.Errorf("saving state: %w", err)
	}
	return nil
}

// Encode renders state the way it is stored on disk.
func Encode(state WorldState) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(state); err != nil {
		return nil, fmt.Errorf("encoding state: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeState(data []byte) (WorldState, error) {
	var state WorldState
	if err := json.Unmarshal(data, &state); err != nil {
		return WorldState{}, fmt.Errorf("decoding state: %w", err)
	}
	return state, nil
}

// Snapshot is a labelled, point-in-time copy of the state document.
type Snapshot struct {
	Name       string
	Path       string
	Label      string
	TakenAt    time.Time
	Compressed bool
}

// Snapshot copies the current state document into the snapshot directory
// and returns the snapshot's path. Existing snapshots are never replaced.
func (s *Store) Snapshot(label string) (string, error) {
	if _, err := s.Load(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(s.statePath)
	if err != nil {
		return "", fmt.Errorf("reading state: %w", err)
	}

	ext := snapshotExt
	if s.compress {
		ext = compressedSnapshotExt
	}
	base := s.now().Format(snapshotTimeLayout) + "_" + fsutil.SafeName(label, "snapshot")

	for i := 1; ; i++ {
		name := base
		if i > 1 {
			name = fmt.Sprintf("%s_%d", base, i)
		}
		path := filepath.Join(s.snapshotDir, name+ext)

		err := fsutil.CreateExclusive(path, 0o444, func(w io.Writer) error {
			return s.writeSnapshot(w, data)
		})
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("writing snapshot: %w", err)
		}
		s.logger.Info("snapshot saved", "path", path)
		return path, nil
	}
}

func (s *Store) writeSnapshot(w io.Writer, data []byte) error {
	if !s.compress {
		_, err := w.Write(data)
		return err
	}
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	if _, err := enc.Write(data); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

// ListSnapshots returns every snapshot, oldest first.
func (s *Store) ListSnapshots() ([]Snapshot, error) {
	entries, err := os.ReadDir(s.snapshotDir)
	if errors.Is(err, os.ErrNotExist) {
		return []Snapshot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}

	snaps := []Snapshot{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		snap, ok := parseSnapshotName(entry.Name())
		if !ok {
			continue
		}
		snap.Path = filepath.Join(s.snapshotDir, entry.Name())
		snaps = append(snaps, snap)
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Name < snaps[j].Name })
	return snaps, nil
}

// LoadSnapshot reads the snapshot with the given file name.
func (s *Store) LoadSnapshot(name string) (WorldState, error) {
	if name != filepath.Base(name) {
		return WorldState{}, fmt.Errorf("invalid snapshot name %q", name)
	}
	data, err := os.ReadFile(filepath.Join(s.snapshotDir, name))
	if err != nil {
		return WorldState{}, fmt.Errorf("reading snapshot: %w", err)
	}
	if strings.HasSuffix(name, compressedSnapshotExt) {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return WorldState{}, err
		}
		defer dec.Close()
		if data, err = dec.DecodeAll(data, nil); err != nil {
			return WorldState{}, fmt.Errorf("decompressing snapshot: %w", err)
		}
	}
	return decodeState(data)
}

func parseSnapshotName(name string) (Snapshot, bool) {
	snap := Snapshot{Name: name}
	var stem string
	switch {
	case strings.HasSuffix(name, compressedSnapshotExt):
		stem = strings.TrimSuffix(name, compressedSnapshotExt)
		snap.Compressed = true
	case strings.HasSuffix(name, snapshotExt):
		stem = strings.TrimSuffix(name, snapshotExt)
	default:
		return Snapshot{}, false
	}

	if len(stem) < len(snapshotTimeLayout)+2 {
		return Snapshot{}, false
	}
	taken, err := time.ParseInLocation(snapshotTimeLayout, stem[:len(snapshotTimeLayout)], time.Local)
	if err != nil {
		return Snapshot{}, false
	}
	snap.TakenAt = taken
	snap.Label = stem[len(snapshotTimeLayout)+1:]
	return snap, true
}
