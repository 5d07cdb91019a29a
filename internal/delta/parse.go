package delta

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/tatianab/chronicle/internal/models"
)

//go:embed schema.json
var schemaJSON string

var deltaSchema = jsonschema.MustCompileString("delta.schema.json", schemaJSON)

// Parser decodes fenced delta blocks.
type Parser struct {
	repair bool
}

// Option configures a Parser.
type Option func(*Parser)

// WithRepair lets the parser run a syntactically broken block through a
// JSON repairer once before giving up.
func WithRepair(repair bool) Option {
	return func(p *Parser) { p.repair = repair }
}

func NewParser(opts ...Option) *Parser {
	p := &Parser{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse decodes a delta with the default parser.
func Parse(block []byte) (*Delta, error) {
	return NewParser().Parse(block)
}

// ParseOutput extracts and decodes the delta from a full generator response.
func (p *Parser) ParseOutput(raw string) (*Delta, error) {
	block, err := Extract(raw)
	if err != nil {
		return nil, err
	}
	return p.Parse(block)
}

// Parse decodes block, which must hold a single JSON object. Only a block
// that is not a JSON object at all is an error; everything else degrades to
// dropped entries recorded in Delta.Issues.
func (p *Parser) Parse(block []byte) (*Delta, error) {
	tree, err := decodeTree(block)
	if err != nil && p.repair {
		fixed, rerr := jsonrepair.JSONRepair(string(block))
		if rerr == nil {
			block = []byte(fixed)
			tree, err = decodeTree(block)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	doc, ok := tree.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: top level is %s, not an object", ErrMalformed, jsonKind(tree))
	}
	normalizeWatch(doc)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(block, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	d := &decoder{raw: raw, bad: validate(doc), delta: &Delta{}}
	d.decode()
	return d.delta, nil
}

func decodeTree(block []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(block))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("trailing data after JSON value")
	}
	return tree, nil
}

// normalizeWatch lower-cases time_advance.watch so that "Evening" passes the
// enum check.
func normalizeWatch(doc map[string]any) {
	ta, ok := doc[KeyTimeAdvance].(map[string]any)
	if !ok {
		return
	}
	if w, ok := ta["watch"].(string); ok {
		ta["watch"] = strings.ToLower(strings.TrimSpace(w))
	}
}

// violations maps JSON pointers inside the delta to the first schema error
// reported there.
type violations map[string]string

func validate(doc map[string]any) violations {
	bad := violations{}
	err := deltaSchema.Validate(doc)
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return bad
	}
	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			if _, seen := bad[e.InstanceLocation]; !seen {
				bad[e.InstanceLocation] = e.Message
			}
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	return bad
}

// at returns the first violation at ptr or anywhere beneath it.
func (v violations) at(ptr string) (string, bool) {
	if msg, ok := v[ptr]; ok {
		return msg, true
	}
	keys := make([]string, 0, len(v))
	for k := range v {
		if strings.HasPrefix(k, ptr+"/") {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return "", false
	}
	sort.Strings(keys)
	return v[keys[0]], true
}

// exact reports a violation at ptr itself.
func (v violations) exact(ptr string) (string, bool) {
	msg, ok := v[ptr]
	return msg, ok
}

type decoder struct {
	raw   map[string]json.RawMessage
	bad   violations
	delta *Delta
}

func (d *decoder) drop(ptr, reason string) {
	d.delta.Issues = append(d.delta.Issues, Issue{Path: ptr, Reason: reason})
}

func (d *decoder) decode() {
	for _, key := range facetOrder {
		msg, present := d.raw[key]
		if !present || isNull(msg) {
			continue
		}
		ptr := "/" + key
		if reason, ok := d.bad.exact(ptr); ok {
			d.drop(ptr, reason)
			continue
		}

		var op Op
		switch key {
		case KeyTimeAdvance:
			op = d.timeAdvance(ptr, msg)
		case KeyPartyMove:
			op = d.partyMove(ptr, msg)
		case KeyDiscover:
			op = d.discover(ptr, msg)
		case KeyQuestsAdd:
			if entries := decodeList[NewQuest](d, ptr, msg); len(entries) > 0 {
				op = QuestsAdd(entries)
			}
		case KeyQuestsUpdate:
			if entries := decodeList[QuestChange](d, ptr, msg); len(entries) > 0 {
				op = QuestsUpdate(entries)
			}
		case KeyFactsAdd:
			if entries := decodeList[string](d, ptr, msg); len(entries) > 0 {
				op = FactsAdd(entries)
			}
		case KeyNPCsUpsert:
			if entries := decodeList[NPCChange](d, ptr, msg); len(entries) > 0 {
				op = NPCsUpsert(entries)
			}
		case KeyNotesAdd:
			if entries := decodeList[string](d, ptr, msg); len(entries) > 0 {
				op = NotesAdd(entries)
			}
		}
		if op != nil {
			d.delta.Ops = append(d.delta.Ops, op)
		}
	}
}

// decodeList decodes every entry of a list facet that passed validation.
func decodeList[T any](d *decoder, ptr string, msg json.RawMessage) []T {
	var items []json.RawMessage
	if err := json.Unmarshal(msg, &items); err != nil {
		d.drop(ptr, err.Error())
		return nil
	}
	out := make([]T, 0, len(items))
	for i, item := range items {
		itemPtr := ptr + "/" + strconv.Itoa(i)
		if reason, ok := d.bad.at(itemPtr); ok {
			d.drop(itemPtr, reason)
			continue
		}
		var v T
		if err := json.Unmarshal(item, &v); err != nil {
			d.drop(itemPtr, err.Error())
			continue
		}
		out = append(out, v)
	}
	return out
}

// fields decodes an object facet into its members. With deep set, a member
// is dropped for any violation inside it; otherwise only for a violation on
// the member itself, leaving nested entries to be judged one by one.
func (d *decoder) fields(ptr string, msg json.RawMessage, deep bool) map[string]json.RawMessage {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(msg, &obj); err != nil {
		d.drop(ptr, err.Error())
		return nil
	}
	names := make([]string, 0, len(obj))
	for name := range obj {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fieldPtr := ptr + "/" + name
		check := d.bad.exact
		if deep {
			check = d.bad.at
		}
		if reason, ok := check(fieldPtr); ok {
			d.drop(fieldPtr, reason)
			delete(obj, name)
		}
	}
	return obj
}

func (d *decoder) timeAdvance(ptr string, msg json.RawMessage) Op {
	obj := d.fields(ptr, msg, true)
	var ta TimeAdvance
	if raw, ok := obj["day"]; ok && !isNull(raw) {
		if day, err := wholeNumber(raw); err != nil {
			d.drop(ptr+"/day", err.Error())
		} else {
			ta.Day = &day
		}
	}
	if raw, ok := obj["watch"]; ok && !isNull(raw) {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if w, ok := models.ParseWatch(s); ok {
				ta.Watch = &w
			} else {
				d.drop(ptr+"/watch", fmt.Sprintf("unknown watch %q", s))
			}
		}
	}
	if ta.Day == nil && ta.Watch == nil {
		return nil
	}
	return ta
}

func (d *decoder) partyMove(ptr string, msg json.RawMessage) Op {
	obj := d.fields(ptr, msg, true)
	pm := PartyMove{
		RegionID: nonEmpty(obj["region_id"]),
		SiteID:   nonEmpty(obj["site_id"]),
	}
	if pm.RegionID == nil && pm.SiteID == nil {
		return nil
	}
	return pm
}

func (d *decoder) discover(ptr string, msg json.RawMessage) Op {
	obj := d.fields(ptr, msg, false)
	var disc Discover
	if raw, ok := obj["regions"]; ok && !isNull(raw) {
		disc.Regions = decodeList[RegionFind](d, ptr+"/regions", raw)
	}
	if raw, ok := obj["sites"]; ok && !isNull(raw) {
		disc.Sites = decodeList[SiteFind](d, ptr+"/sites", raw)
	}
	if raw, ok := obj["factions"]; ok && !isNull(raw) {
		disc.Factions = decodeList[FactionFind](d, ptr+"/factions", raw)
	}
	if len(disc.Regions)+len(disc.Sites)+len(disc.Factions) == 0 {
		return nil
	}
	return disc
}

// wholeNumber decodes an integer, accepting forms such as 2.0 and 2e1
// that JSON Schema also counts as integers.
func wholeNumber(raw json.RawMessage) (int, error) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, err
	}
	if i, err := n.Int64(); err == nil {
		return int(i), nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, fmt.Errorf("%s is not a whole number", n)
	}
	return int(f), nil
}

func nonEmpty(raw json.RawMessage) *string {
	if raw == nil || isNull(raw) {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || s == "" {
		return nil
	}
	return &s
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "an array"
	case string:
		return "a string"
	case bool:
		return "a boolean"
	case json.Number:
		return "a number"
	default:
		return fmt.Sprintf("%T", v)
	}
}
