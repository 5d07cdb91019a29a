// Package delta turns the structured half of a generator response into a
// typed, validated state delta.
//
// A delta arrives as an untrusted JSON object. Unknown keys are ignored,
// missing keys mean "no change", and malformed entries are dropped one at a
// time so that the rest of the delta still applies. Every drop is reported
// as an Issue for the GM-only record.
package delta

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrNoDelta is returned when a generator response has no fenced
	// STATE_DELTA_JSON block.
	ErrNoDelta = errors.New("no STATE_DELTA_JSON fenced block found")

	// ErrMalformed is returned when the fenced block is not a JSON object.
	ErrMalformed = errors.New("malformed state delta")
)

// Facet keys, in the order their operations are applied.
const (
	KeyTimeAdvance  = "time_advance"
	KeyPartyMove    = "party_move"
	KeyDiscover     = "discover"
	KeyQuestsAdd    = "quests_add"
	KeyQuestsUpdate = "quests_update"
	KeyFactsAdd     = "facts_add"
	KeyNPCsUpsert   = "npcs_upsert"
	KeyNotesAdd     = "notes_add"
)

var facetOrder = []string{
	KeyTimeAdvance,
	KeyPartyMove,
	KeyDiscover,
	KeyQuestsAdd,
	KeyQuestsUpdate,
	KeyFactsAdd,
	KeyNPCsUpsert,
	KeyNotesAdd,
}

// Issue records a part of a delta that was dropped.
type Issue struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s", i.Path, i.Reason)
}

// Delta is an ordered list of operations, one per facet present in the
// source object.
type Delta struct {
	Ops    []Op
	Issues []Issue
}

// Empty reports whether d changes nothing.
func (d *Delta) Empty() bool {
	return d == nil || len(d.Ops) == 0
}

// MarshalJSON renders the accepted operations back into the wire shape.
// Dropped entries do not appear.
func (d Delta) MarshalJSON() ([]byte, error) {
	doc := make(map[string]Op, len(d.Ops))
	for _, op := range d.Ops {
		doc[op.Key()] = op
	}
	return json.Marshal(doc)
}

// Indent renders d for humans. A nil or empty delta renders as "{}".
func (d *Delta) Indent() string {
	if d.Empty() {
		return "{}"
	}
	data, err := json.Marshal(d)
	if err != nil {
		return "{}"
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return string(data)
	}
	return buf.String()
}
