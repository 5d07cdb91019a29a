package lore

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// minSectionLength is the shortest section, in characters, worth storing.
const minSectionLength = 50

// Section is a "## " headed block of a lore file.
type Section struct {
	Header string
	Body   string
}

// ParseSections splits markdown into its level-two sections. Text before
// the first "## " header is dropped.
func ParseSections(text string) []Section {
	var (
		sections []Section
		current  *Section
		body     []string
	)
	flush := func() {
		if current != nil {
			current.Body = strings.Join(body, "\n")
			sections = append(sections, *current)
		}
	}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.HasPrefix(line, "## ") {
			flush()
			current = &Section{Header: strings.TrimSpace(line)}
			body = nil
			continue
		}
		body = append(body, line)
	}
	flush()
	return sections
}

// FileChunks turns the lore file at path, which lives under root, into
// chunks.
func FileChunks(root, path string) ([]Chunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return nil, err
	}
	rel = filepath.ToSlash(rel)

	kind := "general"
	if dir, _, ok := strings.Cut(rel, "/"); ok {
		kind = strings.TrimRight(dir, "s")
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	var chunks []Chunk
	for i, s := range ParseSections(string(data)) {
		text := strings.TrimSpace(s.Header + "\n" + s.Body)
		if utf8.RuneCountInString(text) < minSectionLength {
			continue
		}
		chunks = append(chunks, Chunk{
			ID:   fmt.Sprintf("%s:%d", rel, i),
			Text: text,
			Metadata: map[string]string{
				"type":        kind,
				"name":        name,
				"section":     strings.TrimPrefix(s.Header, "## "),
				"source_file": rel,
				"canon":       "hard",
			},
		})
	}
	return chunks, nil
}

// Chunks collects the chunks of every markdown file under root, in walk
// order.
func Chunks(root string) ([]Chunk, error) {
	var all []Chunk
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".md") {
			return nil
		}
		chunks, err := FileChunks(root, path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		all = append(all, chunks...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return all, nil
}

// Ingest stores every chunk under root and returns how many were stored.
// Chunk ids are stable, so ingesting twice replaces rather than duplicates.
func Ingest(ctx context.Context, store Store, root string) (int, error) {
	chunks, err := Chunks(root)
	if err != nil {
		return 0, err
	}
	if err := store.Add(ctx, chunks); err != nil {
		return 0, err
	}
	return len(chunks), nil
}
