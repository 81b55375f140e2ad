// Package reference holds the static, overridable lookup tables that map
// qualitative psychometric bands to musical defaults: tempo ranges, dynamics,
// meters, modes, articulations, intervals and instrument palettes.
//
// A [Table] is immutable once built and is safe for concurrent use. Per-frame
// customisation happens through [types.Adjustments], which take strict
// precedence over the table default of the entry selected by the current band.
package reference

import (
	"math"
	"slices"
	"strings"

	"github.com/Planet9V/mpn-conductor-standalone-sub000/pkg/types"
)

// Category groups reference entries.
type Category string

const (
	CategoryRhythm       Category = "rhythm"
	CategoryDynamics     Category = "dynamics"
	CategoryMode         Category = "mode"
	CategoryArticulation Category = "articulation"
	CategoryIntervals    Category = "intervals"
)

// IsValid reports whether c is a recognised category.
func (c Category) IsValid() bool {
	switch c {
	case CategoryRhythm, CategoryDynamics, CategoryMode, CategoryArticulation, CategoryIntervals:
		return true
	}
	return false
}

// Subcategories used by the lookups.
const (
	SubTempo         = "tempo"
	SubTimeSignature = "time_signature"
	SubVolumeLevel   = "volume_level"
	SubScaleMode     = "scale_mode"
	SubAttackStyle   = "attack_style"
	SubRelationship  = "relationship"
)

// Stability is the qualitative entropy band that selects a tempo range.
type Stability string

const (
	StabilityStrategic   Stability = "strategic"
	StabilityOperational Stability = "operational"
	StabilityCrisis      Stability = "crisis"
)

// Relationship is the quality of the bond between two actors.
type Relationship string

const (
	RelationshipAligned         Relationship = "aligned"
	RelationshipCreativeTension Relationship = "creative_tension"
	RelationshipConflict        Relationship = "conflict"
)

// Range is an inclusive numeric range.
type Range struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

// Center returns the midpoint of r.
func (r Range) Center() float64 { return (r.Min + r.Max) / 2 }

// Entry is one row of the reference dictionary.
type Entry struct {
	ID          string   `yaml:"id"`
	Category    Category `yaml:"category"`
	Subcategory string   `yaml:"subcategory"`

	// Element is the musical element the entry stands for, e.g. "4/4" or
	// "phrygian". Lookups return it verbatim.
	Element string `yaml:"element"`

	// Trait is the qualitative key the entry answers to (a stability band, a
	// register, a bias keyword or a relationship quality).
	Trait string `yaml:"trait,omitempty"`

	// Condition is a numeric match expression over the driving scalar.
	Condition string `yaml:"condition,omitempty"`

	// BPM is the tempo range of a tempo entry.
	BPM *Range `yaml:"bpm,omitempty"`

	// Velocity is the MIDI velocity range of a dynamics entry.
	Velocity *Range `yaml:"velocity,omitempty"`

	// Default is the entry's scalar default (BPM, velocity or semitones).
	Default float64 `yaml:"default,omitempty"`

	cond Condition
}

// DynamicMark maps a threshold on the trauma axis to a notated dynamic.
type DynamicMark struct {
	Label     string  `yaml:"label"`
	Threshold float64 `yaml:"threshold"`
}

// Table is a complete reference dictionary.
type Table struct {
	Version  string                                 `yaml:"version"`
	Entries  []Entry                                `yaml:"entries"`
	Marks    []DynamicMark                          `yaml:"dynamic_marks"`
	Palettes map[Orchestration]map[string][]string `yaml:"palettes"`

	byID map[string]int
}

// Dynamics is the result of a dynamics lookup.
type Dynamics struct {
	// Velocity is the MIDI velocity 0-127.
	Velocity int

	// Label is derived from the threshold table and is never overridden.
	Label string

	// EntryID is the band entry that backed the lookup, or "" when no entry
	// matched.
	EntryID string
}

// Fallbacks used when no entry matches.
var (
	fallbackTempo    = Range{Min: 80, Max: 100}
	fallbackDynamics = Dynamics{Velocity: 72, Label: "mf"}
)

const (
	fallbackMeter = "4/4"
	tempoSpread   = 10
)

// prepare parses conditions and builds the id index. It must run before a
// table is shared.
func (t *Table) prepare() error {
	t.byID = make(map[string]int, len(t.Entries))
	for i := range t.Entries {
		c, err := ParseCondition(t.Entries[i].Condition)
		if err != nil {
			return err
		}
		t.Entries[i].cond = c
		t.byID[t.Entries[i].ID] = i
	}
	slices.SortStableFunc(t.Marks, func(a, b DynamicMark) int {
		switch {
		case a.Threshold < b.Threshold:
			return -1
		case a.Threshold > b.Threshold:
			return 1
		}
		return 0
	})
	return nil
}

// Entry returns the entry with the given id.
func (t *Table) Entry(id string) (Entry, bool) {
	i, ok := t.byID[id]
	if !ok {
		return Entry{}, false
	}
	return t.Entries[i], true
}

func (t *Table) byCondition(cat Category, sub string, v float64) (Entry, bool) {
	for _, e := range t.Entries {
		if e.Category == cat && e.Subcategory == sub && e.Condition != "" && e.cond.Match(v) {
			return e, true
		}
	}
	return Entry{}, false
}

func (t *Table) byTrait(cat Category, sub, trait string) (Entry, bool) {
	for _, e := range t.Entries {
		if e.Category != cat || (sub != "" && e.Subcategory != sub) {
			continue
		}
		if strings.EqualFold(e.Trait, trait) {
			return e, true
		}
	}
	return Entry{}, false
}

// TempoRange returns the BPM range of the stability band. When adj carries a
// tempo for the band's entry, the range is recentred on it with a fixed ±10
// BPM spread.
func (t *Table) TempoRange(s Stability, adj types.Adjustments) (Range, string) {
	e, ok := t.byTrait(CategoryRhythm, SubTempo, string(s))
	if !ok {
		return fallbackTempo, ""
	}
	if a, ok := adj[e.ID]; ok && a.Tempo > 0 {
		return Range{Min: a.Tempo - tempoSpread, Max: a.Tempo + tempoSpread}, e.ID
	}
	if e.BPM != nil {
		return *e.BPM, e.ID
	}
	return fallbackTempo, e.ID
}

// Dynamics maps trauma to a velocity and label. The velocity interpolates
// linearly across the band's velocity range; an adjustment carrying dynamics
// for the band entry replaces it outright. The label always comes from the
// threshold table.
func (t *Table) Dynamics(trauma float64, adj types.Adjustments) Dynamics {
	e, ok := t.byCondition(CategoryDynamics, SubVolumeLevel, trauma)
	if !ok {
		return fallbackDynamics
	}

	v := e.Default
	if e.Velocity != nil {
		lo, hi := e.cond.Bounds()
		frac := 0.0
		if hi > lo {
			frac = (min(max(trauma, lo), hi) - lo) / (hi - lo)
		}
		v = e.Velocity.Min + frac*(e.Velocity.Max-e.Velocity.Min)
	}
	if a, ok := adj[e.ID]; ok {
		if a.Dynamics > 0 {
			v = a.Dynamics
		}
		v += a.VelocityOffset
	}

	return Dynamics{
		Velocity: ClampVelocity(v),
		Label:    t.Label(trauma),
		EntryID:  e.ID,
	}
}

// Label returns the dynamic mark with the highest threshold not above v.
func (t *Table) Label(v float64) string {
	if len(t.Marks) == 0 {
		return fallbackDynamics.Label
	}
	label := t.Marks[0].Label
	for _, m := range t.Marks {
		if v < m.Threshold {
			break
		}
		label = m.Label
	}
	return label
}

// TimeSignature returns the meter for the entropy level.
func (t *Table) TimeSignature(entropy float64) string {
	if e, ok := t.byCondition(CategoryRhythm, SubTimeSignature, entropy); ok {
		return e.Element
	}
	return fallbackMeter
}

// ModeName returns the scale mode associated with an RSI register.
func (t *Table) ModeName(reg types.Register) string {
	if e, ok := t.byTrait(CategoryMode, SubScaleMode, string(reg)); ok {
		return e.Element
	}
	return "ionian"
}

// Articulation picks an articulation. High trauma dominates; otherwise the
// first bias that names an articulation entry wins.
func (t *Table) Articulation(trauma float64, biases []string) types.Articulation {
	switch {
	case trauma > 0.7:
		return types.ArticulationSforzando
	case trauma > 0.5:
		return types.ArticulationMarcato
	}
	for _, b := range biases {
		bias := strings.ToLower(b)
		for _, e := range t.Entries {
			if e.Category != CategoryArticulation || e.Trait == "" {
				continue
			}
			if strings.Contains(bias, strings.ToLower(e.Trait)) {
				return types.Articulation(e.Element)
			}
		}
	}
	return types.ArticulationLegato
}

// Interval returns the interval in semitones that voices a relationship.
func (t *Table) Interval(q Relationship) int {
	if e, ok := t.byTrait(CategoryIntervals, SubRelationship, string(q)); ok {
		return int(e.Default)
	}
	return 7
}

// Instruments returns the instrument palette for a DISC trait under the
// given orchestration. Orchestrations that do not voice the trait fall back
// to the full orchestra palette.
func (t *Table) Instruments(o Orchestration, trait string) []string {
	if p, ok := t.Palettes[o][trait]; ok && len(p) > 0 {
		return slices.Clone(p)
	}
	if p, ok := t.Palettes[FullOrchestra][trait]; ok {
		return slices.Clone(p)
	}
	return nil
}

// ClampVelocity rounds v and clamps it to the MIDI range.
func ClampVelocity(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	return int(math.Round(min(max(v, 0), 127)))
}
