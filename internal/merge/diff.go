package merge

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/tatianab/chronicle/internal/models"
)

// Diff renders the line-level changes between two states as "+ " and "- "
// prefixed lines of their indented JSON form. It returns "" when nothing
// changed.
func Diff(before, after models.WorldState) (string, error) {
	a, err := models.Encode(before)
	if err != nil {
		return "", err
	}
	b, err := models.Encode(after)
	if err != nil {
		return "", err
	}

	dmp := diffmatchpatch.New()
	ac, bc, lines := dmp.DiffLinesToChars(string(a), string(b))
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(ac, bc, false), lines)

	var out strings.Builder
	for _, d := range diffs {
		var prefix string
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			prefix = "+ "
		case diffmatchpatch.DiffDelete:
			prefix = "- "
		default:
			continue
		}
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if strings.TrimSpace(line) == "" {
				continue
			}
			out.WriteString(prefix)
			out.WriteString(strings.TrimSuffix(line, "\n"))
			out.WriteByte('\n')
		}
	}
	return out.String(), nil
}
