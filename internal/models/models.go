package models

import (
	"fmt"
	"slices"
	"strings"
)

// Watch is a coarse time-of-day bucket.
type Watch string

const (
	WatchMorning   Watch = "morning"
	WatchAfternoon Watch = "afternoon"
	WatchEvening   Watch = "evening"
	WatchNight     Watch = "night"
)

// Watches lists the valid watches in the order they pass during a day.
var Watches = []Watch{WatchMorning, WatchAfternoon, WatchEvening, WatchNight}

// ParseWatch normalises s and reports whether it names a known watch.
func ParseWatch(s string) (Watch, bool) {
	w := Watch(strings.ToLower(strings.TrimSpace(s)))
	return w, slices.Contains(Watches, w)
}

// Time is the campaign clock.
type Time struct {
	Day   *int  `json:"day,omitempty"`
	Watch Watch `json:"watch,omitempty"`

	Extra Extra `json:"-"`
}

// Location is where the party currently is. SiteID is nil while the party
// is out in the open within a region, and is written as null.
type Location struct {
	RegionID *string `json:"region_id,omitempty"`
	SiteID   *string `json:"site_id"`

	Extra Extra `json:"-"`
}

// Party holds party-wide state.
type Party struct {
	Location Location `json:"location"`

	Extra Extra `json:"-"`
}

// Region is a discovered region.
type Region struct {
	PartyName string `json:"party_name,omitempty"` // what the party calls it

	Extra Extra `json:"-"`
}

// Site is a discovered site, optionally placed inside a region.
type Site struct {
	PartyName string `json:"party_name,omitempty"`
	RegionID  string `json:"region_id,omitempty"`

	Extra Extra `json:"-"`
}

// Faction is a discovered faction.
type Faction struct {
	PartyName string `json:"party_name,omitempty"`

	Extra Extra `json:"-"`
}

// Discovered indexes everything the party has learned about, keyed by the
// stable identifiers used in lore.
type Discovered struct {
	Regions  map[string]Region  `json:"regions"`
	Sites    map[string]Site    `json:"sites"`
	Factions map[string]Faction `json:"factions"`

	Extra Extra `json:"-"`
}

// Quest is a tracked quest. Notes only ever grow.
type Quest struct {
	ID     string   `json:"id"`
	Title  string   `json:"title,omitempty"`
	Status string   `json:"status,omitempty"`
	Notes  []string `json:"notes,omitempty"`

	Extra Extra `json:"-"`
}

// NPC is what the table knows about a non-player character.
type NPC struct {
	Name     string `json:"name,omitempty"`
	Role     string `json:"role,omitempty"`
	Attitude string `json:"attitude,omitempty"`
	Location string `json:"location,omitempty"`

	Extra Extra `json:"-"`
}

// WorldState is the canonical narrative state of a campaign. It is
// persisted as a single JSON document.
type WorldState struct {
	Time       Time           `json:"time"`
	Party      Party          `json:"party"`
	Discovered Discovered     `json:"discovered"`
	Quests     []Quest        `json:"quests"`
	Facts      []string       `json:"facts"`
	NPCs       map[string]NPC `json:"npcs"`
	Notes      []string       `json:"notes"`

	// Extra carries top-level keys this version does not model so that a
	// load/save cycle never drops them. The nested records do the same.
	Extra Extra `json:"-"`
}

// Initial returns the document a new campaign starts from.
func Initial() WorldState {
	day := 1
	s := WorldState{Time: Time{Day: &day, Watch: WatchMorning}}
	s.normalize()
	return s
}

// Clone returns a deep copy of s sharing no memory with it. Nil
// collections come back empty.
func (s WorldState) Clone() WorldState {
	c := WorldState{
		Time: Time{Day: clonePtr(s.Time.Day), Watch: s.Time.Watch, Extra: s.Time.Extra.Clone()},
		Party: Party{
			Location: Location{
				RegionID: clonePtr(s.Party.Location.RegionID),
				SiteID:   clonePtr(s.Party.Location.SiteID),
				Extra:    s.Party.Location.Extra.Clone(),
			},
			Extra: s.Party.Extra.Clone(),
		},
		Discovered: Discovered{
			Regions:  cloneValues(s.Discovered.Regions, func(r Region) Region { r.Extra = r.Extra.Clone(); return r }),
			Sites:    cloneValues(s.Discovered.Sites, func(st Site) Site { st.Extra = st.Extra.Clone(); return st }),
			Factions: cloneValues(s.Discovered.Factions, func(f Faction) Faction { f.Extra = f.Extra.Clone(); return f }),
			Extra:    s.Discovered.Extra.Clone(),
		},
		Facts: slices.Clone(s.Facts),
		NPCs:  cloneValues(s.NPCs, func(n NPC) NPC { n.Extra = n.Extra.Clone(); return n }),
		Notes: slices.Clone(s.Notes),
		Extra: s.Extra.Clone(),
	}

	if s.Quests != nil {
		c.Quests = make([]Quest, len(s.Quests))
		for i, q := range s.Quests {
			q.Notes = slices.Clone(q.Notes)
			q.Extra = q.Extra.Clone()
			c.Quests[i] = q
		}
	}

	c.normalize()
	return c
}

func (s *WorldState) normalize() {
	if s.Discovered.Regions == nil {
		s.Discovered.Regions = map[string]Region{}
	}
	if s.Discovered.Sites == nil {
		s.Discovered.Sites = map[string]Site{}
	}
	if s.Discovered.Factions == nil {
		s.Discovered.Factions = map[string]Faction{}
	}
	if s.Quests == nil {
		s.Quests = []Quest{}
	}
	if s.Facts == nil {
		s.Facts = []string{}
	}
	if s.NPCs == nil {
		s.NPCs = map[string]NPC{}
	}
	if s.Notes == nil {
		s.Notes = []string{}
	}
}

// Quest returns the quest with the given id.
func (s WorldState) Quest(id string) (Quest, bool) {
	i := slices.IndexFunc(s.Quests, func(q Quest) bool { return q.ID == id })
	if i < 0 {
		return Quest{}, false
	}
	return s.Quests[i], true
}

// When renders the campaign clock for record headers, e.g. "Day 3, Evening".
// It returns "" when neither day nor watch is known.
func (s WorldState) When() string {
	var parts []string
	if s.Time.Day != nil {
		parts = append(parts, fmt.Sprintf("Day %d", *s.Time.Day))
	}
	if s.Time.Watch != "" {
		w := string(s.Time.Watch)
		parts = append(parts, strings.ToUpper(w[:1])+w[1:])
	}
	return strings.Join(parts, ", ")
}

type worldStateFields WorldState

func (s WorldState) MarshalJSON() ([]byte, error) {
	c := s.Clone()
	return marshalObject(worldStateFields(c), c.Extra)
}

func (s *WorldState) UnmarshalJSON(data []byte) error {
	var fields worldStateFields
	extra, err := unmarshalObject(data, &fields, "time", "party", "discovered", "quests", "facts", "npcs", "notes")
	if err != nil {
		return err
	}
	fields.Extra = extra
	*s = WorldState(fields)
	s.normalize()
	return nil
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
