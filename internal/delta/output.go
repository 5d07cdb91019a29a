package delta

import (
	"regexp"
	"strings"
)

// Section headers of a generator response, in their required order.
const (
	HeaderNarration = "GM_NARRATION:"
	HeaderNotes     = "ENGINE_NOTES:"
	HeaderDelta     = "STATE_DELTA_JSON:"
)

var (
	narrationRe = regexp.MustCompile(`(?is)GM_NARRATION:\s*(.*?)(?:\nENGINE_NOTES:|\z)`)
	notesRe     = regexp.MustCompile(`(?is)ENGINE_NOTES:\s*(.*?)(?:\nSTATE_DELTA_JSON:|\z)`)
	fenceRe     = regexp.MustCompile("(?is)STATE_DELTA_JSON:\\s*```(?:json)?\\s*(\\{.*?\\})\\s*```")
)

// Sections holds the prose parts of a generator response.
type Sections struct {
	Narration string
	Notes     string
}

// Split pulls the narration and engine notes out of raw. Either comes back
// empty when its header is missing; Split never fails.
func Split(raw string) Sections {
	var s Sections
	if m := narrationRe.FindStringSubmatch(raw); m != nil {
		s.Narration = strings.TrimSpace(m[1])
	}
	if m := notesRe.FindStringSubmatch(raw); m != nil {
		s.Notes = strings.TrimSpace(m[1])
	}
	return s
}

// Extract returns the JSON object inside the fenced block that follows the
// STATE_DELTA_JSON header. It returns ErrNoDelta when the header or the
// fence is missing.
func Extract(raw string) ([]byte, error) {
	m := fenceRe.FindStringSubmatch(raw)
	if m == nil {
		return nil, ErrNoDelta
	}
	return []byte(m[1]), nil
}
