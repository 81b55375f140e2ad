// Package style holds musical style presets: bundles of rhythm, harmony and
// texture parameters layered over an orchestration mode.
package style

import (
	"cmp"
	"slices"

	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/reference"
)

// Rhythm groups the rhythmic parameters of a preset.
type Rhythm struct {
	// BaseDivision is the pulse subdivision (4, 8, 16 or 32).
	BaseDivision int `yaml:"base_division" json:"baseDivision"`

	// Syncopation is the off-beat weight in [0, 1].
	Syncopation float64 `yaml:"syncopation_weight" json:"syncopation"`

	// Swing delays off-beat eighths to the last triplet.
	Swing bool `yaml:"swing" json:"swing"`

	// TempoRange is the preferred BPM range.
	TempoRange [2]int `yaml:"tempo_range" json:"tempoRange"`
}

// Harmony groups the harmonic parameters of a preset.
type Harmony struct {
	// Complexity runs from triads (0) to clusters (1).
	Complexity float64 `yaml:"complexity" json:"complexity"`

	// DissonanceTolerance runs from consonant (0) to dissonant (1).
	DissonanceTolerance float64 `yaml:"dissonance_tolerance" json:"dissonanceTolerance"`

	PreferredModes []string `yaml:"preferred_modes" json:"preferredModes"`
}

// Texture groups the textural parameters of a preset.
type Texture struct {
	// Density runs from sparse (0) to dense (1).
	Density float64 `yaml:"density" json:"density"`

	// Strictness of voice leading: 1 is strict classical, 0 is free.
	Strictness float64 `yaml:"voice_leading_strictness" json:"strictness"`
}

// Preset is one named style.
type Preset struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Orchestration is the ensemble the style was written for, if any.
	Orchestration reference.Orchestration `yaml:"orchestration,omitempty" json:"orchestration,omitempty"`

	Rhythm  Rhythm  `yaml:"rhythm" json:"rhythm"`
	Harmony Harmony `yaml:"harmony" json:"harmony"`
	Texture Texture `yaml:"texture" json:"texture"`
}

const (
	sparseDensity      = 0.25
	dissonantTolerance = 0.8
)

// Sparse reports whether the style silences voices that are not speaking.
func (p Preset) Sparse() bool { return p.Texture.Density < sparseDensity }

// Dissonant reports whether the style pushes chords one step further up the
// tension ladder.
func (p Preset) Dissonant() bool { return p.Harmony.DissonanceTolerance >= dissonantTolerance }

// Catalog is an immutable set of presets keyed by id.
type Catalog struct {
	presets map[string]Preset
}

// NewCatalog builds a catalog from presets. Later presets replace earlier
// ones with the same id.
func NewCatalog(presets ...Preset) *Catalog {
	c := &Catalog{presets: make(map[string]Preset, len(presets))}
	for _, p := range presets {
		c.presets[p.ID] = p
	}
	return c
}

// Get returns the preset with the given id.
func (c *Catalog) Get(id string) (Preset, bool) {
	p, ok := c.presets[id]
	return p, ok
}

// All returns every preset sorted by id.
func (c *Catalog) All() []Preset {
	out := make([]Preset, 0, len(c.presets))
	for _, p := range c.presets {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b Preset) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// Merge returns a catalog holding c overlaid with other.
func (c *Catalog) Merge(other *Catalog) *Catalog {
	out := NewCatalog(c.All()...)
	for id, p := range other.presets {
		out.presets[id] = p
	}
	return out
}
