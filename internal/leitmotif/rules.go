package leitmotif

import (
	"cmp"
	"math"
	"slices"

	"github.com/Planet9V/mpn-conductor-standalone-sub000/pkg/types"
)

// ── Modes ───────────────────────────────────────────────────────────────────

// Mode is a diatonic church mode.
type Mode string

const (
	Ionian     Mode = "Ionian"
	Dorian     Mode = "Dorian"
	Phrygian   Mode = "Phrygian"
	Lydian     Mode = "Lydian"
	Mixolydian Mode = "Mixolydian"
	Aeolian    Mode = "Aeolian"
	Locrian    Mode = "Locrian"
)

var modeScales = map[Mode][]int{
	Ionian:     {0, 2, 4, 5, 7, 9, 11},
	Dorian:     {0, 2, 3, 5, 7, 9, 10},
	Phrygian:   {0, 1, 3, 5, 7, 8, 10},
	Lydian:     {0, 2, 4, 6, 7, 9, 11},
	Mixolydian: {0, 2, 4, 5, 7, 9, 10},
	Aeolian:    {0, 2, 3, 5, 7, 8, 10},
	Locrian:    {0, 1, 3, 5, 6, 8, 10},
}

// ModeScale returns the scale degrees of m in semitones above the tonic.
// Unknown modes yield the Ionian scale.
func ModeScale(m Mode) []int {
	s, ok := modeScales[m]
	if !ok {
		s = modeScales[Ionian]
	}
	return slices.Clone(s)
}

// ModalTransformation picks the mode a motif is recoloured into. The
// dominant register chooses a pair of modes and trauma above 0.6 selects the
// darker one.
func ModalTransformation(rsi types.RSI, trauma float64) Mode {
	dark := trauma > 0.6
	switch dominantRegister(rsi) {
	case types.RegisterReal:
		if dark {
			return Aeolian
		}
		return Dorian
	case types.RegisterSymbolic:
		if dark {
			return Mixolydian
		}
		return Lydian
	default:
		if dark {
			return Locrian
		}
		return Phrygian
	}
}

// dominantRegister breaks ties in real, symbolic, imaginary order.
func dominantRegister(rsi types.RSI) types.Register {
	switch {
	case rsi.Real >= rsi.Symbolic && rsi.Real >= rsi.Imaginary:
		return types.RegisterReal
	case rsi.Symbolic >= rsi.Imaginary:
		return types.RegisterSymbolic
	default:
		return types.RegisterImaginary
	}
}

// ── Orchestration level ─────────────────────────────────────────────────────

// Level is the ensemble size a moment calls for.
type Level string

const (
	LevelSolo          Level = "SOLO"
	LevelChamber       Level = "CHAMBER"
	LevelSection       Level = "SECTION"
	LevelFullOrchestra Level = "FULL_ORCHESTRA"
	LevelTutti         Level = "TUTTI_FORTISSIMO"
)

var levelInstruments = map[Level][]string{
	LevelSolo:          {"piano", "celeste", "solo_violin"},
	LevelChamber:       {"violin", "cello", "clarinet", "oboe", "piano"},
	LevelSection:       {"violin_section", "cello_section", "brass_section", "woodwind_section"},
	LevelFullOrchestra: {"strings", "brass", "woodwinds", "percussion", "harp"},
	LevelTutti:         {"strings", "brass", "woodwinds", "percussion", "timpani", "cymbals", "choir"},
}

// OrchestrationLevel weighs trauma over entropy to size the ensemble.
func OrchestrationLevel(trauma, entropy float64) Level {
	intensity := trauma*0.7 + entropy*0.3
	switch {
	case intensity < 0.2:
		return LevelSolo
	case intensity < 0.4:
		return LevelChamber
	case intensity < 0.6:
		return LevelSection
	case intensity < 0.85:
		return LevelFullOrchestra
	default:
		return LevelTutti
	}
}

// LevelInstruments returns the recommended instruments for l.
func LevelInstruments(l Level) []string {
	return slices.Clone(levelInstruments[l])
}

// ── Fragmentation ───────────────────────────────────────────────────────────

// FragmentLevel names how far a theme has broken down.
type FragmentLevel string

const (
	FragmentFull        FragmentLevel = "full"
	FragmentTruncated   FragmentLevel = "truncated"
	FragmentCore        FragmentLevel = "core_motif"
	FragmentSparse      FragmentLevel = "interval_only"
	FragmentDissolution FragmentLevel = "dissolution"
)

// Fragment is a theme after fragmentation.
type Fragment struct {
	Level FragmentLevel
	Notes []types.NoteEvent
}

// FragmentNotes breaks notes down as entropy and trauma rise. The result
// never aliases notes.
func FragmentNotes(notes []types.NoteEvent, entropy, trauma float64) Fragment {
	score := entropy*0.6 + trauma*0.4
	switch {
	case score < 0.25:
		return Fragment{Level: FragmentFull, Notes: slices.Clone(notes)}
	case score < 0.5:
		n := int(math.Ceil(float64(len(notes)) * 0.6))
		return Fragment{Level: FragmentTruncated, Notes: slices.Clone(notes[:n])}
	case score < 0.75:
		return Fragment{Level: FragmentCore, Notes: slices.Clone(notes[:min(4, len(notes))])}
	case score < 0.9:
		var sparse []types.NoteEvent
		for i, n := range notes {
			if i%2 == 0 {
				sparse = append(sparse, n)
			}
		}
		return Fragment{Level: FragmentSparse, Notes: sparse}
	default:
		if len(notes) == 0 {
			return Fragment{Level: FragmentDissolution}
		}
		first := notes[0]
		first.Duration = 4
		return Fragment{Level: FragmentDissolution, Notes: []types.NoteEvent{first}}
	}
}

// ── Harmonic recontextualisation ────────────────────────────────────────────

// Emotional poles of a recontextualisation.
const (
	Hope          = "hope"
	Innocence     = "innocence"
	Unity         = "unity"
	Despair       = "despair"
	Corruption    = "corruption"
	Fragmentation = "fragmentation"
)

var recontext = map[[2]string]map[string]string{
	{Hope, Despair}: {
		"Cmaj": "Cm", "Gmaj": "Gm", "Fmaj": "Fm",
		"Amaj": "Am", "Dmaj": "Dm", "Emaj": "Em",
	},
	{Innocence, Corruption}: {
		"Cmaj7": "Cdim7", "Am7": "Am7b5", "Fmaj7": "Fdim7",
		"Gmaj7": "G7#9", "Dm7": "Dm7b5",
	},
	{Unity, Fragmentation}: {
		"Cmaj": "Csus2", "Gmaj": "Gsus4", "Fmaj": "Fsus2",
		"Am": "Am/E", "Dm": "Dm/A",
	},
}

// ChordShift is a chord reharmonised for an emotional shift.
type ChordShift struct {
	Original    string `json:"original"`
	Transformed string `json:"transformed"`
	Shift       string `json:"shift"`
}

// Recontextualize swaps chord for its counterpart under the from→to shift.
// Chords without a counterpart are returned unchanged.
func Recontextualize(chord, from, to string) ChordShift {
	out := chord
	if t, ok := recontext[[2]string{from, to}][chord]; ok {
		out = t
	}
	return ChordShift{Original: chord, Transformed: out, Shift: from + " → " + to}
}

// ── Contrapuntal layering ───────────────────────────────────────────────────

// VoicePart is a choral register in a contrapuntal texture.
type VoicePart string

const (
	Soprano VoicePart = "soprano"
	Alto    VoicePart = "alto"
	Tenor   VoicePart = "tenor"
	Bass    VoicePart = "bass"
)

var voiceParts = []VoicePart{Soprano, Alto, Tenor, Bass}

// LayerInput is one active actor offered for layering.
type LayerInput struct {
	ActorID    string
	Activation float64
	IsSpeaking bool
	Notes      []types.NoteEvent
}

// Layer is one ranked voice of a contrapuntal texture.
type Layer struct {
	ActorID      string
	Part         VoicePart
	OctaveOffset int
	VolumeDB     float64
	Notes        []types.NoteEvent
}

// minLayerVelocity keeps background voices audible.
const minLayerVelocity = 30

// LayerContrapuntally ranks voices (speakers first, then by activation) and
// pushes each lower rank further into the background.
func LayerContrapuntally(voices []LayerInput) []Layer {
	sorted := slices.Clone(voices)
	slices.SortStableFunc(sorted, func(a, b LayerInput) int {
		if a.IsSpeaking != b.IsSpeaking {
			if a.IsSpeaking {
				return -1
			}
			return 1
		}
		return cmp.Compare(b.Activation, a.Activation)
	})

	out := make([]Layer, len(sorted))
	for i, v := range sorted {
		notes := make([]types.NoteEvent, len(v.Notes))
		for j, n := range v.Notes {
			n.Velocity = max(minLayerVelocity, n.Velocity-20*i)
			notes[j] = n
		}
		out[i] = Layer{
			ActorID:      v.ActorID,
			Part:         voiceParts[min(i, len(voiceParts)-1)],
			OctaveOffset: -i,
			VolumeDB:     -6 * float64(i),
			Notes:        notes,
		}
	}
	return out
}
