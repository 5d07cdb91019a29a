package delta

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/tatianab/chronicle/internal/models"
)

func mustParse(t *testing.T, block string) *Delta {
	t.Helper()
	d, err := Parse([]byte(block))
	if err != nil {
		t.Fatalf("Parse(%s): %v", block, err)
	}
	return d
}

func opByKey(d *Delta, key string) Op {
	for _, op := range d.Ops {
		if op.Key() == key {
			return op
		}
	}
	return nil
}

func TestParseFullDelta(t *testing.T) {
	d := mustParse(t, `{
	  "notes_add": ["check the well"],
	  "time_advance": {"day": 2, "watch": "Evening"},
	  "party_move": {"region_id": "vale", "site_id": null},
	  "discover": {
	    "regions": [{"region_id": "vale", "party_name": "Green Vale"}],
	    "sites": [{"site_id": "mill", "region_id": "vale"}],
	    "factions": [{"faction_id": "millers"}]
	  },
	  "quests_add": [{"id": "q1", "title": "Find Hild", "status": "open"}],
	  "quests_update": [{"id": "q0", "status": "done", "notes": "paid in full"}],
	  "facts_add": ["X", "Y"],
	  "npcs_upsert": [{"id": "n1", "name": "Hild", "attitude": null}]
	}`)

	if len(d.Issues) != 0 {
		t.Fatalf("unexpected issues: %v", d.Issues)
	}

	var keys []string
	for _, op := range d.Ops {
		keys = append(keys, op.Key())
	}
	if !reflect.DeepEqual(keys, facetOrder) {
		t.Errorf("ops out of canonical order: %v", keys)
	}

	ta := opByKey(d, KeyTimeAdvance).(TimeAdvance)
	if *ta.Day != 2 || *ta.Watch != models.WatchEvening {
		t.Errorf("time_advance = %+v", ta)
	}

	pm := opByKey(d, KeyPartyMove).(PartyMove)
	if *pm.RegionID != "vale" || pm.SiteID != nil {
		t.Errorf("party_move = %+v", pm)
	}

	qu := opByKey(d, KeyQuestsUpdate).(QuestsUpdate)
	if !reflect.DeepEqual(qu[0].Notes, Notes{"paid in full"}) {
		t.Errorf("quests_update notes = %v", qu[0].Notes)
	}

	npcs := opByKey(d, KeyNPCsUpsert).(NPCsUpsert)
	if npcs[0].Attitude != nil || *npcs[0].Name != "Hild" {
		t.Errorf("npcs_upsert = %+v", npcs[0])
	}
}

func TestParseIgnoresUnknownKeys(t *testing.T) {
	d := mustParse(t, `{"weather": "storm", "facts_add": ["A"], "future_key": {"x": 1}}`)
	if len(d.Ops) != 1 || len(d.Issues) != 0 {
		t.Fatalf("expected one op and no issues, got %+v", d)
	}
}

func TestParseEmptyObject(t *testing.T) {
	d := mustParse(t, `{}`)
	if !d.Empty() {
		t.Errorf("expected empty delta, got %+v", d.Ops)
	}
	if d.Indent() != "{}" {
		t.Errorf("Indent() = %q", d.Indent())
	}
}

func TestParseDropsMalformedEntries(t *testing.T) {
	d := mustParse(t, `{
	  "quests_add": [{"title": "no id"}, {"id": "q2", "title": "ok"}, "junk", {"id": ""}],
	  "npcs_upsert": [{"id": "n1", "role": 7}, {"id": "n2", "role": "smith"}],
	  "facts_add": ["A", 3, "B"],
	  "discover": {"sites": [{"party_name": "nameless"}, {"site_id": "mill"}], "regions": "vale"}
	}`)

	qa := opByKey(d, KeyQuestsAdd).(QuestsAdd)
	if len(qa) != 1 || qa[0].ID != "q2" {
		t.Errorf("quests_add = %+v", qa)
	}
	npcs := opByKey(d, KeyNPCsUpsert).(NPCsUpsert)
	if len(npcs) != 1 || npcs[0].ID != "n2" {
		t.Errorf("npcs_upsert = %+v", npcs)
	}
	facts := opByKey(d, KeyFactsAdd).(FactsAdd)
	if !reflect.DeepEqual(facts, FactsAdd{"A", "B"}) {
		t.Errorf("facts_add = %v", facts)
	}
	disc := opByKey(d, KeyDiscover).(Discover)
	if len(disc.Sites) != 1 || disc.Sites[0].SiteID != "mill" || disc.Regions != nil {
		t.Errorf("discover = %+v", disc)
	}

	wantPaths := map[string]bool{
		"/quests_add/0":     true,
		"/quests_add/2":     true,
		"/quests_add/3":     true,
		"/npcs_upsert/0":    true,
		"/facts_add/1":      true,
		"/discover/sites/0": true,
		"/discover/regions": true,
	}
	for _, issue := range d.Issues {
		if !wantPaths[issue.Path] {
			t.Errorf("unexpected issue %s", issue)
		}
		delete(wantPaths, issue.Path)
	}
	for path := range wantPaths {
		t.Errorf("missing issue for %s", path)
	}
}

func TestParseObjectFacetDropsOnlyBadField(t *testing.T) {
	d := mustParse(t, `{"time_advance": {"day": 4, "watch": "teatime"}, "party_move": {"region_id": 12, "site_id": "gate"}}`)

	ta := opByKey(d, KeyTimeAdvance).(TimeAdvance)
	if ta.Day == nil || *ta.Day != 4 || ta.Watch != nil {
		t.Errorf("time_advance = %+v", ta)
	}
	pm := opByKey(d, KeyPartyMove).(PartyMove)
	if pm.RegionID != nil || pm.SiteID == nil || *pm.SiteID != "gate" {
		t.Errorf("party_move = %+v", pm)
	}
	if len(d.Issues) != 2 {
		t.Errorf("expected 2 issues, got %v", d.Issues)
	}
}

func TestParseDayAsWholeNumber(t *testing.T) {
	tests := []struct {
		block string
		want  int
	}{
		{`{"time_advance": {"day": 2.0}}`, 2},
		{`{"time_advance": {"day": 2e1}}`, 20},
		{`{"time_advance": {"day": 7}}`, 7},
	}
	for _, tt := range tests {
		d := mustParse(t, tt.block)
		if len(d.Issues) != 0 {
			t.Errorf("%s: unexpected issues %v", tt.block, d.Issues)
		}
		ta, ok := opByKey(d, KeyTimeAdvance).(TimeAdvance)
		if !ok || ta.Day == nil || *ta.Day != tt.want {
			t.Errorf("%s: time_advance = %+v, want day %d", tt.block, ta, tt.want)
		}
	}

	d := mustParse(t, `{"time_advance": {"day": 2.5, "watch": "night"}}`)
	ta := opByKey(d, KeyTimeAdvance).(TimeAdvance)
	if ta.Day != nil || ta.Watch == nil {
		t.Errorf("fractional day kept: %+v", ta)
	}
	if len(d.Issues) != 1 || d.Issues[0].Path != "/time_advance/day" {
		t.Errorf("issues = %v", d.Issues)
	}
}

func TestParseDropsWrongFacetType(t *testing.T) {
	d := mustParse(t, `{"facts_add": "just one", "notes_add": ["kept"], "time_advance": null}`)
	if len(d.Ops) != 1 || d.Ops[0].Key() != KeyNotesAdd {
		t.Errorf("ops = %+v", d.Ops)
	}
	if len(d.Issues) != 1 || d.Issues[0].Path != "/facts_add" {
		t.Errorf("issues = %v", d.Issues)
	}
}

func TestParseRejectsNonObjects(t *testing.T) {
	for _, block := range []string{`[1,2]`, `"delta"`, `{"facts_add": [`, `{} {}`, ``} {
		if _, err := Parse([]byte(block)); !errors.Is(err, ErrMalformed) {
			t.Errorf("Parse(%q) = %v, want ErrMalformed", block, err)
		}
	}
}

func TestParseWithRepair(t *testing.T) {
	block := []byte(`{"facts_add": ["A", "B",], "notes_add": ['single quoted']}`)

	if _, err := Parse(block); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected default parser to fail, got %v", err)
	}

	d, err := NewParser(WithRepair(true)).Parse(block)
	if err != nil {
		t.Fatalf("repairing parser: %v", err)
	}
	facts := opByKey(d, KeyFactsAdd).(FactsAdd)
	if !reflect.DeepEqual(facts, FactsAdd{"A", "B"}) {
		t.Errorf("facts_add = %v", facts)
	}
}

func TestDeltaMarshalJSON(t *testing.T) {
	d := mustParse(t, `{"npcs_upsert": [{"id": "n1", "name": "Hild", "role": null}], "facts_add": ["A"], "bogus": 1}`)

	data, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"facts_add":["A"],"npcs_upsert":[{"id":"n1","name":"Hild"}]}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}

	again := mustParse(t, string(data))
	if !reflect.DeepEqual(again.Ops, d.Ops) {
		t.Errorf("re-parsed ops differ: %+v vs %+v", again.Ops, d.Ops)
	}
}

const goodOutput = `GM_NARRATION:
The mill wheel groans as you approach.

ENGINE_NOTES:
Assumed the miller is home.

STATE_DELTA_JSON:
` + "```json" + `
{"facts_add": ["The mill wheel groans."]}
` + "```\n"

func TestSplit(t *testing.T) {
	s := Split(goodOutput)
	if s.Narration != "The mill wheel groans as you approach." {
		t.Errorf("Narration = %q", s.Narration)
	}
	if s.Notes != "Assumed the miller is home." {
		t.Errorf("Notes = %q", s.Notes)
	}

	s = Split("gm_narration: only narration here")
	if s.Narration != "only narration here" || s.Notes != "" {
		t.Errorf("Split without notes = %+v", s)
	}

	if s := Split("free text with no headers"); s != (Sections{}) {
		t.Errorf("expected empty sections, got %+v", s)
	}
}

func TestExtract(t *testing.T) {
	block, err := Extract(goodOutput)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if string(block) != `{"facts_add": ["The mill wheel groans."]}` {
		t.Errorf("block = %s", block)
	}

	plainFence := "STATE_DELTA_JSON:\n```\n{\"notes_add\": [\"x\"]}\n```"
	if _, err := Extract(plainFence); err != nil {
		t.Errorf("plain fence: %v", err)
	}

	missing := []string{
		"GM_NARRATION:\nhi\nENGINE_NOTES:\nnone",
		"STATE_DELTA_JSON:\n{\"facts_add\": []}",
		"```json\n{}\n```",
	}
	for _, raw := range missing {
		if _, err := Extract(raw); !errors.Is(err, ErrNoDelta) {
			t.Errorf("Extract(%q) = %v, want ErrNoDelta", raw, err)
		}
	}
}

func TestParseOutputMalformedFence(t *testing.T) {
	raw := strings.Replace(goodOutput, `["The mill wheel groans."]`, `["unterminated}`, 1)
	_, err := NewParser().ParseOutput(raw)
	if err == nil {
		t.Fatal("expected an error for a malformed fenced block")
	}
	if !errors.Is(err, ErrMalformed) && !errors.Is(err, ErrNoDelta) {
		t.Errorf("unexpected error type: %v", err)
	}
	if s := Split(raw); s.Narration == "" {
		t.Error("narration should still be extracted")
	}
}
