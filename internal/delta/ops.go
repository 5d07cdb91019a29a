package delta

import (
	"encoding/json"

	"github.com/tatianab/chronicle/internal/models"
)

// Op is one facet of a delta. The concrete types below are the only
// implementations.
type Op interface {
	Key() string
	isOp()
}

// TimeAdvance moves the campaign clock. Nil fields leave the clock alone.
type TimeAdvance struct {
	Day   *int          `json:"day,omitempty"`
	Watch *models.Watch `json:"watch,omitempty"`
}

// PartyMove relocates the party. Region and site move independently.
type PartyMove struct {
	RegionID *string `json:"region_id,omitempty"`
	SiteID   *string `json:"site_id,omitempty"`
}

// Discover records newly learned regions, sites and factions.
type Discover struct {
	Regions  []RegionFind  `json:"regions,omitempty"`
	Sites    []SiteFind    `json:"sites,omitempty"`
	Factions []FactionFind `json:"factions,omitempty"`
}

type RegionFind struct {
	RegionID  string `json:"region_id"`
	PartyName string `json:"party_name,omitempty"`
}

type SiteFind struct {
	SiteID    string `json:"site_id"`
	PartyName string `json:"party_name,omitempty"`
	RegionID  string `json:"region_id,omitempty"`
}

type FactionFind struct {
	FactionID string `json:"faction_id"`
	PartyName string `json:"party_name,omitempty"`
}

// QuestsAdd proposes new quests. Entries whose id already exists are
// ignored when merged.
type QuestsAdd []NewQuest

type NewQuest struct {
	ID     string `json:"id"`
	Title  string `json:"title,omitempty"`
	Status string `json:"status,omitempty"`
	Notes  Notes  `json:"notes,omitempty"`
}

// QuestsUpdate changes existing quests, matched by id.
type QuestsUpdate []QuestChange

type QuestChange struct {
	ID     string  `json:"id"`
	Status *string `json:"status,omitempty"`
	Notes  Notes   `json:"notes,omitempty"`
}

// FactsAdd proposes facts; exact duplicates are ignored when merged.
type FactsAdd []string

// NPCsUpsert creates or updates NPC records field by field. A nil field,
// whether it was null or absent in the source, is left untouched.
type NPCsUpsert []NPCChange

type NPCChange struct {
	ID       string  `json:"id"`
	Name     *string `json:"name,omitempty"`
	Role     *string `json:"role,omitempty"`
	Attitude *string `json:"attitude,omitempty"`
	Location *string `json:"location,omitempty"`
}

// NotesAdd appends engine notes; duplicates are kept.
type NotesAdd []string

func (TimeAdvance) Key() string  { return KeyTimeAdvance }
func (PartyMove) Key() string    { return KeyPartyMove }
func (Discover) Key() string     { return KeyDiscover }
func (QuestsAdd) Key() string    { return KeyQuestsAdd }
func (QuestsUpdate) Key() string { return KeyQuestsUpdate }
func (FactsAdd) Key() string     { return KeyFactsAdd }
func (NPCsUpsert) Key() string   { return KeyNPCsUpsert }
func (NotesAdd) Key() string     { return KeyNotesAdd }

func (TimeAdvance) isOp()  {}
func (PartyMove) isOp()    {}
func (Discover) isOp()     {}
func (QuestsAdd) isOp()    {}
func (QuestsUpdate) isOp() {}
func (FactsAdd) isOp()     {}
func (NPCsUpsert) isOp()   {}
func (NotesAdd) isOp()     {}

// Notes accepts either a single string or a list of strings.
type Notes []string

func (n *Notes) UnmarshalJSON(data []byte) error {
	var one *string
	if err := json.Unmarshal(data, &one); err == nil {
		if one == nil {
			*n = nil
		} else {
			*n = Notes{*one}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*n = many
	return nil
}
