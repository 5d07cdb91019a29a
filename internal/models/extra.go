package models

import (
	"bytes"
	"encoding/json"
	"slices"
)

// Extra holds the members of a JSON object that have no field of their
// own. State documents are also edited by hand and by older tools, and
// whatever they add is written back as found.
type Extra map[string]json.RawMessage

// Clone returns a deep copy of e. A nil Extra stays nil.
func (e Extra) Clone() Extra {
	if e == nil {
		return nil
	}
	c := make(Extra, len(e))
	for k, v := range e {
		c[k] = slices.Clone(v)
	}
	return c
}

// marshalObject encodes fields and merges extra into the resulting object.
// A modelled field always wins over an extra of the same name.
func marshalObject(fields any, extra Extra) ([]byte, error) {
	data, err := marshal(fields)
	if err != nil || len(extra) == 0 {
		return data, err
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	for k, v := range extra {
		if _, known := doc[k]; !known {
			doc[k] = v
		}
	}
	return marshal(doc)
}

// marshal is json.Marshal without HTML escaping, matching Encode.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// unmarshalObject decodes data into fields and returns the members not
// named in known.
func unmarshalObject(data []byte, fields any, known ...string) (Extra, error) {
	if err := json.Unmarshal(data, fields); err != nil {
		return nil, err
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	for _, k := range known {
		delete(doc, k)
	}
	if len(doc) == 0 {
		return nil, nil
	}
	return Extra(doc), nil
}

func cloneValues[K comparable, V any](m map[K]V, clone func(V) V) map[K]V {
	if m == nil {
		return nil
	}
	c := make(map[K]V, len(m))
	for k, v := range m {
		c[k] = clone(v)
	}
	return c
}

type (
	timeFields       Time
	locationFields   Location
	partyFields      Party
	regionFields     Region
	siteFields       Site
	factionFields    Faction
	discoveredFields Discovered
	questFields      Quest
	npcFields        NPC
)

func (t Time) MarshalJSON() ([]byte, error) { return marshalObject(timeFields(t), t.Extra) }

func (t *Time) UnmarshalJSON(data []byte) error {
	var f timeFields
	extra, err := unmarshalObject(data, &f, "day", "watch")
	if err != nil {
		return err
	}
	f.Extra = extra
	*t = Time(f)
	return nil
}

func (l Location) MarshalJSON() ([]byte, error) {
	return marshalObject(locationFields(l), l.Extra)
}

func (l *Location) UnmarshalJSON(data []byte) error {
	var f locationFields
	extra, err := unmarshalObject(data, &f, "region_id", "site_id")
	if err != nil {
		return err
	}
	f.Extra = extra
	*l = Location(f)
	return nil
}

func (p Party) MarshalJSON() ([]byte, error) { return marshalObject(partyFields(p), p.Extra) }

func (p *Party) UnmarshalJSON(data []byte) error {
	var f partyFields
	extra, err := unmarshalObject(data, &f, "location")
	if err != nil {
		return err
	}
	f.Extra = extra
	*p = Party(f)
	return nil
}

func (r Region) MarshalJSON() ([]byte, error) { return marshalObject(regionFields(r), r.Extra) }

func (r *Region) UnmarshalJSON(data []byte) error {
	var f regionFields
	extra, err := unmarshalObject(data, &f, "party_name")
	if err != nil {
		return err
	}
	f.Extra = extra
	*r = Region(f)
	return nil
}

func (s Site) MarshalJSON() ([]byte, error) { return marshalObject(siteFields(s), s.Extra) }

func (s *Site) UnmarshalJSON(data []byte) error {
	var f siteFields
	extra, err := unmarshalObject(data, &f, "party_name", "region_id")
	if err != nil {
		return err
	}
	f.Extra = extra
	*s = Site(f)
	return nil
}

func (f Faction) MarshalJSON() ([]byte, error) { return marshalObject(factionFields(f), f.Extra) }

func (f *Faction) UnmarshalJSON(data []byte) error {
	var fields factionFields
	extra, err := unmarshalObject(data, &fields, "party_name")
	if err != nil {
		return err
	}
	fields.Extra = extra
	*f = Faction(fields)
	return nil
}

func (d Discovered) MarshalJSON() ([]byte, error) {
	return marshalObject(discoveredFields(d), d.Extra)
}

func (d *Discovered) UnmarshalJSON(data []byte) error {
	var f discoveredFields
	extra, err := unmarshalObject(data, &f, "regions", "sites", "factions")
	if err != nil {
		return err
	}
	f.Extra = extra
	*d = Discovered(f)
	return nil
}

func (q Quest) MarshalJSON() ([]byte, error) { return marshalObject(questFields(q), q.Extra) }

func (q *Quest) UnmarshalJSON(data []byte) error {
	var f questFields
	extra, err := unmarshalObject(data, &f, "id", "title", "status", "notes")
	if err != nil {
		return err
	}
	f.Extra = extra
	*q = Quest(f)
	return nil
}

func (n NPC) MarshalJSON() ([]byte, error) { return marshalObject(npcFields(n), n.Extra) }

func (n *NPC) UnmarshalJSON(data []byte) error {
	var f npcFields
	extra, err := unmarshalObject(data, &f, "name", "role", "attitude", "location")
	if err != nil {
		return err
	}
	f.Extra = extra
	*n = NPC(f)
	return nil
}
