// Package leitmotif generates per-actor signature motifs, caches them in an
// explicitly owned [Registry] and derives transformed variants from the
// cached base.
//
// Generation is deterministic: the same profile always produces the same
// motif. Transformations never mutate their input.
package leitmotif

import (
	"math"
	"slices"

	"github.com/Planet9V/mpn-conductor-standalone-sub000/pkg/types"
)

var archetypeIntervals = map[types.Archetype][]int{
	types.ArchetypeHero:              {4, 3, 5},
	types.ArchetypeShadow:            {1, 6, 1},
	types.ArchetypeMentor:            {5, 4, 3},
	types.ArchetypeHerald:            {7, 5, 7},
	types.ArchetypeThresholdGuardian: {2, 2, 2},
	types.ArchetypeShapeshifter:      {3, 4, 3, 4},
	types.ArchetypeTrickster:         {1, 11, 1, 11},
}

var defaultIntervals = []int{4, 3, 5}

var archetypeInstruments = map[types.Archetype]string{
	types.ArchetypeHero:              "french_horn",
	types.ArchetypeShadow:            "bass_clarinet",
	types.ArchetypeMentor:            "oboe",
	types.ArchetypeHerald:            "trumpet",
	types.ArchetypeThresholdGuardian: "timpani",
	types.ArchetypeShapeshifter:      "viola",
	types.ArchetypeTrickster:         "piccolo",
}

const defaultInstrument = "piano"

// discRoot is the root pitch class per dominant DISC trait.
var discRoot = map[string]int{"D": 2, "I": 0, "S": 7, "C": 9}

var (
	rhythmStable   = []float64{1, 1, 2}
	rhythmModerate = []float64{1, 0.5, 0.5, 1}
	rhythmAnxious  = []float64{0.5, 0.5, 0.25, 0.75, 1}
)

// DefaultTempo is the motif tempo for profiles without a Big Five vector.
const DefaultTempo = 80

// ID returns the motif identifier for an actor.
func ID(actorID string) string { return "leitmotif_" + actorID }

// Generate derives a motif from a profile. The archetype fixes the interval
// pattern and therefore the sequence length.
func Generate(p types.ActorProfile) types.Leitmotif {
	intervals, ok := archetypeIntervals[p.Archetype]
	if !ok {
		intervals = defaultIntervals
	}
	intervals = slices.Clone(intervals)

	root := 0
	if p.DISC != nil {
		root = discRoot[p.DISC.Dominant()]
	}

	pitches := Pitches(root, intervals)

	rhythm := rhythmStable
	if p.BigFive != nil {
		switch {
		case p.BigFive.N > 0.7:
			rhythm = rhythmAnxious
		case p.BigFive.N > 0.4:
			rhythm = rhythmModerate
		}
	}

	mode := "major"
	if slices.Contains(intervals, 3) && !slices.Contains(intervals, 4) {
		mode = "minor"
	}

	instrument, ok := archetypeInstruments[p.Archetype]
	if !ok {
		instrument = defaultInstrument
	}

	octave := 4
	if p.DISC != nil {
		switch {
		case p.DISC.D > 0.5:
			octave = 5
		case p.DISC.C > 0.5:
			octave = 3
		}
	}

	tempo := DefaultTempo
	if p.BigFive != nil {
		tempo = int(math.Round(60 + p.BigFive.E*60))
	}

	return types.Leitmotif{
		ID:             ID(p.ID),
		ActorID:        p.ID,
		ActorName:      p.DisplayName(),
		PitchClasses:   pitches,
		Intervals:      intervals,
		Rhythm:         fitRhythm(rhythm, len(pitches)),
		BaseOctave:     octave,
		Key:            types.PitchName(root) + " " + mode,
		Mode:           mode,
		Instrument:     instrument,
		Tempo:          tempo,
		Transformation: types.TransformOriginal,
	}
}

// Pitches walks intervals from root and returns the pitch classes visited,
// root included.
func Pitches(root int, intervals []int) []int {
	cur := ((root % 12) + 12) % 12
	out := make([]int, 0, len(intervals)+1)
	out = append(out, cur)
	for _, iv := range intervals {
		cur = ((cur+iv)%12 + 12) % 12
		out = append(out, cur)
	}
	return out
}

// fitRhythm repeats pattern until it covers n notes and truncates it to n.
func fitRhythm(pattern []float64, n int) []float64 {
	out := make([]float64, 0, n)
	for len(out) < n {
		out = append(out, pattern...)
	}
	return out[:n]
}
