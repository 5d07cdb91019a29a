// Package merge folds a parsed delta into the world state.
//
// Apply never mutates its input and never removes information: keys are
// only ever added to the discovery and NPC maps, quests and notes only grow,
// and a null or absent value in the delta leaves the target untouched.
package merge

import (
	"slices"

	"github.com/tatianab/chronicle/internal/delta"
	"github.com/tatianab/chronicle/internal/models"
)

// Apply returns the state that results from applying d to state. The
// returned value shares no memory with state.
func Apply(state models.WorldState, d *delta.Delta) models.WorldState {
	next := state.Clone()
	if d == nil {
		return next
	}
	for _, op := range d.Ops {
		switch op := op.(type) {
		case delta.TimeAdvance:
			advanceTime(&next, op)
		case delta.PartyMove:
			moveParty(&next, op)
		case delta.Discover:
			discover(&next, op)
		case delta.QuestsAdd:
			addQuests(&next, op)
		case delta.QuestsUpdate:
			updateQuests(&next, op)
		case delta.FactsAdd:
			addFacts(&next, op)
		case delta.NPCsUpsert:
			upsertNPCs(&next, op)
		case delta.NotesAdd:
			addNotes(&next, op)
		}
	}
	return next
}

func advanceTime(s *models.WorldState, op delta.TimeAdvance) {
	if op.Day != nil {
		day := *op.Day
		s.Time.Day = &day
	}
	if op.Watch != nil {
		s.Time.Watch = *op.Watch
	}
}

func moveParty(s *models.WorldState, op delta.PartyMove) {
	loc := &s.Party.Location
	if op.RegionID != nil {
		region := *op.RegionID
		loc.RegionID = &region
	}
	if op.SiteID != nil {
		site := *op.SiteID
		loc.SiteID = &site
	}
}

func discover(s *models.WorldState, op delta.Discover) {
	for _, f := range op.Regions {
		if f.RegionID == "" {
			continue
		}
		r := s.Discovered.Regions[f.RegionID]
		setNonEmpty(&r.PartyName, f.PartyName)
		s.Discovered.Regions[f.RegionID] = r
	}
	for _, f := range op.Sites {
		if f.SiteID == "" {
			continue
		}
		site := s.Discovered.Sites[f.SiteID]
		setNonEmpty(&site.PartyName, f.PartyName)
		setNonEmpty(&site.RegionID, f.RegionID)
		s.Discovered.Sites[f.SiteID] = site
	}
	for _, f := range op.Factions {
		if f.FactionID == "" {
			continue
		}
		fac := s.Discovered.Factions[f.FactionID]
		setNonEmpty(&fac.PartyName, f.PartyName)
		s.Discovered.Factions[f.FactionID] = fac
	}
}

// setNonEmpty overwrites *dst with v unless v is empty.
func setNonEmpty(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func addQuests(s *models.WorldState, op delta.QuestsAdd) {
	for _, q := range op {
		if q.ID == "" {
			continue
		}
		if _, exists := s.Quest(q.ID); exists {
			continue
		}
		s.Quests = append(s.Quests, models.Quest{
			ID:     q.ID,
			Title:  q.Title,
			Status: q.Status,
			Notes:  nonEmpty(q.Notes),
		})
	}
}

func updateQuests(s *models.WorldState, op delta.QuestsUpdate) {
	for _, u := range op {
		i := slices.IndexFunc(s.Quests, func(q models.Quest) bool { return q.ID == u.ID })
		if i < 0 {
			continue
		}
		q := &s.Quests[i]
		if u.Status != nil && *u.Status != "" {
			q.Status = *u.Status
		}
		q.Notes = append(q.Notes, nonEmpty(u.Notes)...)
	}
}

func addFacts(s *models.WorldState, op delta.FactsAdd) {
	for _, f := range op {
		if f == "" || slices.Contains(s.Facts, f) {
			continue
		}
		s.Facts = append(s.Facts, f)
	}
}

func upsertNPCs(s *models.WorldState, op delta.NPCsUpsert) {
	for _, u := range op {
		if u.ID == "" {
			continue
		}
		npc := s.NPCs[u.ID]
		set(&npc.Name, u.Name)
		set(&npc.Role, u.Role)
		set(&npc.Attitude, u.Attitude)
		set(&npc.Location, u.Location)
		s.NPCs[u.ID] = npc
	}
}

func set(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func addNotes(s *models.WorldState, op delta.NotesAdd) {
	s.Notes = append(s.Notes, nonEmpty(op)...)
}

func nonEmpty[S ~[]string](in S) []string {
	var out []string
	for _, v := range in {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
