package composer

import (
	"strconv"
	"strings"

	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/calculus"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/reference"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/pkg/types"
)

var chordOffsets = map[string][]int{
	"major":                 {0, 4, 7},
	"minor":                 {0, 3, 7},
	"dim":                   {0, 3, 6},
	"aug":                   {0, 4, 8},
	calculus.ChordDim:       {0, 3, 6},
	calculus.ChordAug:       {0, 4, 8},
	calculus.ChordMajor7:    {0, 4, 7, 11},
	calculus.ChordMinor7:    {0, 3, 7, 10},
	calculus.ChordDominant7: {0, 4, 7, 10},
}

// ChordOffsets returns the semitone offsets above the root for chordType.
// Unknown types are treated as a major triad.
func ChordOffsets(chordType string) []int {
	if o, ok := chordOffsets[strings.ToLower(chordType)]; ok {
		return append([]int(nil), o...)
	}
	return []int{0, 4, 7}
}

// Chord is a voiced chord.
type Chord struct {
	// Voicing holds the MIDI notes from lowest to highest.
	Voicing []int
	Notes   []types.NoteEvent
}

// OrchestrateChord voices root and chordType for the given orchestration
// around octave 4. Full orchestra doubles the root in the bass, minimalist
// keeps only a bare fifth, jazz adds the ninth.
func OrchestrateChord(root, chordType string, params types.MusicalParams, o reference.Orchestration, startBeat, duration float64) Chord {
	base := NameToMidi(root + "4")
	offsets := ChordOffsets(chordType)

	var voicing []int
	switch o {
	case reference.FullOrchestra, reference.LeitmotifWagnerian:
		voicing = append(voicing, base-12)
		for _, off := range offsets {
			voicing = append(voicing, base+off)
		}
	case reference.MinimalistVoid:
		voicing = []int{base - 12, base + 7}
	case reference.JazzEnsemble:
		for _, off := range offsets {
			voicing = append(voicing, base+off)
		}
		voicing = append(voicing, base+14)
	default:
		for _, off := range offsets {
			voicing = append(voicing, base+off)
		}
	}

	notes := make([]types.NoteEvent, len(voicing))
	for i, m := range voicing {
		m = min(max(m, 0), 127)
		voicing[i] = m
		notes[i] = types.NoteEvent{
			Pitch:        MidiToName(m),
			MIDINote:     m,
			Duration:     duration,
			StartBeat:    startBeat,
			Velocity:     reference.ClampVelocity(float64(params.Velocity)),
			Articulation: params.Articulation,
		}
	}
	return Chord{Voicing: voicing, Notes: notes}
}

// MidiToName converts a MIDI note number to a name such as "C4".
func MidiToName(midi int) string {
	return types.PitchName(midi) + strconv.Itoa(floorDiv(midi, 12)-1)
}

// NameToMidi converts a name such as "C#4" or "Eb3" to a MIDI number.
// A missing octave means octave 4 and an unparsable name yields 60.
func NameToMidi(name string) int {
	name = strings.TrimSpace(name)
	pc, ok := types.PitchClass(name)
	if !ok {
		return 60
	}
	rest := name[1:]
	if rest != "" && (rest[0] == '#' || rest[0] == 'b') {
		rest = rest[1:]
	}
	octave := 4
	if n, err := strconv.Atoi(rest); err == nil {
		octave = n
	}
	// B#4 is spelled in octave 4 but sounds as C5.
	if strings.HasPrefix(strings.ToUpper(name[:1]), "B") && pc == 0 {
		octave++
	}
	if strings.HasPrefix(strings.ToUpper(name[:1]), "C") && pc == 11 {
		octave--
	}
	return min(max((octave+1)*12+pc, 0), 127)
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
