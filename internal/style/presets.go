package style

import (
	"sync"

	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/reference"
)

// DefaultID is the style used until one is selected.
const DefaultID = "orchestral"

func builtins() []Preset {
	return []Preset{
		{
			ID: "orchestral", Name: "Full Orchestra",
			Description:   "Grand, sweeping textures with functional harmony and dramatic dynamic range.",
			Orchestration: reference.FullOrchestra,
			Rhythm:        Rhythm{BaseDivision: 4, Syncopation: 0.2, TempoRange: [2]int{60, 100}},
			Harmony:       Harmony{Complexity: 0.3, DissonanceTolerance: 0.4, PreferredModes: []string{"ionian", "aeolian", "mixolydian"}},
			Texture:       Texture{Density: 0.8, Strictness: 0.9},
		},
		{
			ID: "chamber_death", Name: "Chamber Death",
			Description:   "Sparse strings and low woodwinds with minor modalities.",
			Orchestration: reference.ChamberDeath,
			Rhythm:        Rhythm{BaseDivision: 8, Syncopation: 0.3, TempoRange: [2]int{40, 70}},
			Harmony:       Harmony{Complexity: 0.6, DissonanceTolerance: 0.8, PreferredModes: []string{"phrygian", "locrian", "harmonic_minor"}},
			Texture:       Texture{Density: 0.2, Strictness: 0.85},
		},
		{
			ID: "jazz_noir", Name: "Jazz Noir",
			Description:   "Muted brass, walking bass and diminished chords with late-night swing.",
			Orchestration: reference.JazzEnsemble,
			Rhythm:        Rhythm{BaseDivision: 8, Syncopation: 0.7, Swing: true, TempoRange: [2]int{70, 110}},
			Harmony:       Harmony{Complexity: 0.9, DissonanceTolerance: 0.7, PreferredModes: []string{"dorian", "altered", "diminished"}},
			Texture:       Texture{Density: 0.4, Strictness: 0.5},
		},
		{
			ID: "wagnerian", Name: "Leitmotif (Wagnerian)",
			Description:   "Thematic development through harmonic and rhythmic mutation.",
			Orchestration: reference.LeitmotifWagnerian,
			Rhythm:        Rhythm{BaseDivision: 4, Syncopation: 0.1, TempoRange: [2]int{50, 90}},
			Harmony:       Harmony{Complexity: 0.7, DissonanceTolerance: 0.6, PreferredModes: []string{"chromatic", "major", "minor"}},
			Texture:       Texture{Density: 0.9, Strictness: 0.8},
		},
		{
			ID: "minimalist_void", Name: "Minimalist Void",
			Description:   "Single sustained tones, vast silences and glacial harmonic movement.",
			Orchestration: reference.MinimalistVoid,
			Rhythm:        Rhythm{BaseDivision: 4, TempoRange: [2]int{30, 60}},
			Harmony:       Harmony{Complexity: 0.1, DissonanceTolerance: 0.2, PreferredModes: []string{"lydian", "ionian"}},
			Texture:       Texture{Density: 0.1, Strictness: 0.6},
		},
		{
			ID: "cyber_glitch", Name: "Cyber Glitch",
			Description:   "Stuttering rhythms, microtonal clusters and algorithmic fragmentation.",
			Orchestration: reference.CyberGlitch,
			Rhythm:        Rhythm{BaseDivision: 32, Syncopation: 0.95, TempoRange: [2]int{140, 200}},
			Harmony:       Harmony{Complexity: 1, DissonanceTolerance: 1, PreferredModes: []string{"chromatic", "whole-tone", "octatonic"}},
			Texture:       Texture{Density: 0.3},
		},
		{
			ID: "jazz", Name: "Cool Jazz Ensemble",
			Description: "Extended harmonies, swing rhythms and an improvisational feel.",
			Rhythm:      Rhythm{BaseDivision: 8, Syncopation: 0.8, Swing: true, TempoRange: [2]int{80, 140}},
			Harmony:     Harmony{Complexity: 0.9, DissonanceTolerance: 0.6, PreferredModes: []string{"dorian", "mixolydian", "blues"}},
			Texture:     Texture{Density: 0.5, Strictness: 0.4},
		},
		{
			ID: "minimalist", Name: "Glass/Reich Minimalism",
			Description:   "Repetitive pulse patterns and slowly shifting harmonies.",
			Orchestration: reference.MinimalistVoid,
			Rhythm:        Rhythm{BaseDivision: 8, Syncopation: 0.1, TempoRange: [2]int{110, 160}},
			Harmony:       Harmony{Complexity: 0.2, DissonanceTolerance: 0.1, PreferredModes: []string{"ionian", "lydian"}},
			Texture:       Texture{Density: 0.6, Strictness: 0.7},
		},
		{
			ID: "avant_garde", Name: "Avant-Garde / Atonal",
			Description: "Jagged rhythms and complete harmonic freedom.",
			Rhythm:      Rhythm{BaseDivision: 16, Syncopation: 0.9, TempoRange: [2]int{40, 180}},
			Harmony:     Harmony{Complexity: 1, DissonanceTolerance: 1, PreferredModes: []string{"chromatic", "whole-tone"}},
			Texture:     Texture{Density: 0.3, Strictness: 0.1},
		},
		{
			ID: "chamber", Name: "Intimate Chamber",
			Description:   "Delicate, transparent textures for emotional dialogue.",
			Orchestration: reference.StringQuartet,
			Rhythm:        Rhythm{BaseDivision: 4, Syncopation: 0.1, TempoRange: [2]int{50, 80}},
			Harmony:       Harmony{Complexity: 0.4, DissonanceTolerance: 0.3, PreferredModes: []string{"aeolian", "harmonic_minor"}},
			Texture:       Texture{Density: 0.3, Strictness: 0.95},
		},
		{
			ID: "electronic", Name: "Dark Electronic",
			Description: "Synthesised textures, steady machine pulses and minor harmonies.",
			Rhythm:      Rhythm{BaseDivision: 16, Syncopation: 0.3, TempoRange: [2]int{100, 130}},
			Harmony:     Harmony{Complexity: 0.4, DissonanceTolerance: 0.5, PreferredModes: []string{"phrygian", "locrian"}},
			Texture:     Texture{Density: 0.7},
		},
		{
			ID: "baroque", Name: "Baroque Counterpoint",
			Description: "Strict voice leading and driving harmonic rhythm.",
			Rhythm:      Rhythm{BaseDivision: 16, Syncopation: 0.1, TempoRange: [2]int{80, 120}},
			Harmony:     Harmony{Complexity: 0.3, DissonanceTolerance: 0.2, PreferredModes: []string{"ionian", "harmonic_minor"}},
			Texture:     Texture{Density: 0.6, Strictness: 1},
		},
		{
			ID: "romantic", Name: "Romantic Expressive",
			Description: "Ebb and flow of tempo with lush harmonies.",
			Rhythm:      Rhythm{BaseDivision: 8, Syncopation: 0.2, TempoRange: [2]int{40, 100}},
			Harmony:     Harmony{Complexity: 0.6, DissonanceTolerance: 0.5, PreferredModes: []string{"major", "minor"}},
			Texture:     Texture{Density: 0.9, Strictness: 0.7},
		},
		{
			ID: "strings_only", Name: "Strings Only",
			Description:   "String quartet voicing with expressive portamento.",
			Orchestration: reference.StringQuartet,
			Rhythm:        Rhythm{BaseDivision: 8, Syncopation: 0.2, TempoRange: [2]int{50, 100}},
			Harmony:       Harmony{Complexity: 0.5, DissonanceTolerance: 0.4, PreferredModes: []string{"aeolian", "dorian", "mixolydian"}},
			Texture:       Texture{Density: 0.7, Strictness: 0.9},
		},
		{
			ID: "solo_piano", Name: "Solo Piano",
			Description: "Single instrument reduction with intimate dynamics.",
			Rhythm:      Rhythm{BaseDivision: 16, Syncopation: 0.3, TempoRange: [2]int{40, 120}},
			Harmony:     Harmony{Complexity: 0.6, DissonanceTolerance: 0.5, PreferredModes: []string{"all"}},
			Texture:     Texture{Density: 0.5, Strictness: 0.7},
		},
	}
}

var defaultCatalog = sync.OnceValue(func() *Catalog {
	return NewCatalog(builtins()...)
})

// Default returns the built-in catalog.
func Default() *Catalog { return defaultCatalog() }
