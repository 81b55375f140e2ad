package composer_test

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/composer"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/reference"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/pkg/types"
)

func motif(rhythm ...float64) types.Leitmotif {
	return types.Leitmotif{
		ID:           "leitmotif_macbeth",
		ActorID:      "macbeth",
		PitchClasses: []int{0, 4, 7, 0},
		Rhythm:       rhythm,
		BaseOctave:   4,
		Instrument:   "cello",
	}
}

func params() types.MusicalParams {
	return types.MusicalParams{Velocity: 100, Key: "C Major", Mode: "ionian", ChordRoot: "C", ChordType: "major7"}
}

func TestComposeMelody_Deterministic(t *testing.T) {
	t.Parallel()

	c := composer.New()
	req := composer.MelodyRequest{ActorID: "macbeth", Frame: 7, Duration: 4, Intensity: 0.9}
	a := c.ComposeMelody(context.Background(), motif(), params(), req)
	b := c.ComposeMelody(context.Background(), motif(), params(), req)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("same request produced different melodies:\n%v\n%v", a, b)
	}
}

func TestComposeMelody_MotifRhythm(t *testing.T) {
	t.Parallel()

	notes := composer.New().ComposeMelody(context.Background(), motif(1, 1, 2, 1), params(),
		composer.MelodyRequest{ActorID: "macbeth", Duration: 4, StartBeat: 0, Intensity: 0.5})

	if len(notes) != 4 {
		t.Fatalf("got %d notes, want 4", len(notes))
	}
	wantStart := []float64{0, 1, 2, 4}
	wantDur := []float64{1, 1, 2, 1}
	for i, n := range notes {
		if n.StartBeat != wantStart[i] || n.Duration != wantDur[i] {
			t.Errorf("note %d start/dur = %v/%v, want %v/%v", i, n.StartBeat, n.Duration, wantStart[i], wantDur[i])
		}
		if n.Velocity < 80 || n.Velocity > 100 {
			t.Errorf("note %d velocity = %d, want in [80, 100]", i, n.Velocity)
		}
		if n.Pitch != composer.MidiToName(n.MIDINote) {
			t.Errorf("note %d pitch %q does not match midi %d", i, n.Pitch, n.MIDINote)
		}
	}
	if notes[0].MIDINote != 60 {
		t.Errorf("first note = %d, want 60", notes[0].MIDINote)
	}
	if notes[3].Articulation != types.ArticulationTenuto {
		t.Errorf("last note articulation = %q, want tenuto", notes[3].Articulation)
	}
	for _, n := range notes[:3] {
		if n.Articulation != types.ArticulationNormal {
			t.Errorf("articulation = %q, want normal", n.Articulation)
		}
	}
}

func TestComposeMelody_Rests(t *testing.T) {
	t.Parallel()

	notes := composer.New().ComposeMelody(context.Background(), motif(1, -1, 1), params(),
		composer.MelodyRequest{ActorID: "macbeth", Duration: 3, Intensity: 0.5})
	if len(notes) != 2 {
		t.Fatalf("got %d notes, want 2", len(notes))
	}
	if notes[1].StartBeat != 2 {
		t.Errorf("note after rest starts at %v, want 2", notes[1].StartBeat)
	}
}

func TestComposeMelody_IntensityPattern(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		intensity float64
		duration  float64
		wantNotes int
		first     types.Articulation
		second    types.Articulation
	}{
		{name: "calm", intensity: 0.1, duration: 4, wantNotes: 6, first: types.ArticulationLegato, second: types.ArticulationLegato},
		{name: "agitated", intensity: 0.9, duration: 1, wantNotes: 7, first: types.ArticulationMarcato, second: types.ArticulationStaccato},
		{name: "moderate", intensity: 0.3, duration: 1, wantNotes: 3, first: types.ArticulationNormal, second: types.ArticulationNormal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := types.Leitmotif{ActorID: "witch"}
			notes := composer.New().ComposeMelody(context.Background(), m, params(),
				composer.MelodyRequest{ActorID: "witch", Duration: tt.duration, Intensity: tt.intensity})
			if len(notes) != tt.wantNotes {
				t.Fatalf("got %d notes, want %d", len(notes), tt.wantNotes)
			}
			if notes[0].Articulation != tt.first || notes[1].Articulation != tt.second {
				t.Errorf("articulations = %q, %q; want %q, %q", notes[0].Articulation, notes[1].Articulation, tt.first, tt.second)
			}
		})
	}
}

func TestComposeMelody_DefaultPitches(t *testing.T) {
	t.Parallel()

	notes := composer.New().ComposeMelody(context.Background(), types.Leitmotif{}, params(),
		composer.MelodyRequest{ActorID: "x", Duration: 2, Intensity: 0.5})
	if len(notes) == 0 || notes[0].MIDINote != 60 {
		t.Fatalf("melody should open on middle C: %+v", notes)
	}
	for _, n := range notes {
		if n.MIDINote < 60 || n.MIDINote > 67 {
			t.Errorf("pitch %d outside the default scale", n.MIDINote)
		}
	}
}

func TestComposeMelody_Swing(t *testing.T) {
	t.Parallel()

	req := composer.MelodyRequest{ActorID: "noir", Duration: 1, Intensity: 0.5, Swing: true}
	notes := composer.New().ComposeMelody(context.Background(), motif(0.5, 0.5), params(), req)
	if len(notes) != 2 {
		t.Fatalf("got %d notes, want 2", len(notes))
	}
	if notes[0].StartBeat != 0 {
		t.Errorf("downbeat moved to %v", notes[0].StartBeat)
	}
	if math.Abs(notes[1].StartBeat-(0.5+1.0/6)) > 1e-9 {
		t.Errorf("off-beat start = %v, want %v", notes[1].StartBeat, 0.5+1.0/6)
	}
}

type fakeSource struct {
	notes  []composer.Note
	err    error
	prompt composer.Prompt
}

func (f *fakeSource) Melody(_ context.Context, p composer.Prompt) ([]composer.Note, error) {
	f.prompt = p
	return f.notes, f.err
}

func TestComposeMelody_Source(t *testing.T) {
	t.Parallel()

	src := &fakeSource{notes: []composer.Note{
		{Pitch: "E4", Duration: 1, Velocity: 90},
		{Pitch: "bogus", Duration: 0, Velocity: 90},
		{Pitch: "G4", Duration: 2, Velocity: 200},
	}}
	c := composer.New(composer.WithMelodySource(src))
	state := types.PsychometricState{Trauma: 0.7, Entropy: 0.2, Biases: []string{"confirmation"}}
	notes := c.ComposeMelody(context.Background(), motif(), params(), composer.MelodyRequest{
		ActorID: "macbeth", Duration: 4, StartBeat: 1, AI: &composer.AIRequest{Temperature: 0.8, State: state},
	})

	want := []types.NoteEvent{
		{Pitch: "E4", MIDINote: 64, Duration: 1, StartBeat: 1, Velocity: 90},
		{Pitch: "G4", MIDINote: 67, Duration: 2, StartBeat: 2, Velocity: 127},
	}
	if !reflect.DeepEqual(notes, want) {
		t.Errorf("notes = %+v, want %+v", notes, want)
	}
	if src.prompt.Bias != "confirmation" || src.prompt.Chord != "Cmajor7" || src.prompt.Instrument != "cello" {
		t.Errorf("prompt = %+v", src.prompt)
	}
}

func TestComposeMelody_SourceFallback(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		src    *fakeSource
		reason string
	}{
		{name: "error", src: &fakeSource{err: errors.New("rate limited")}, reason: composer.FallbackError},
		{name: "empty", src: &fakeSource{}, reason: composer.FallbackEmpty},
		{name: "unplayable", src: &fakeSource{notes: []composer.Note{{Pitch: "C4"}}}, reason: composer.FallbackEmpty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var reasons []string
			c := composer.New(
				composer.WithMelodySource(tt.src),
				composer.WithFallbackHook(func(r string) { reasons = append(reasons, r) }),
			)
			req := composer.MelodyRequest{ActorID: "macbeth", Duration: 4, Intensity: 0.5}
			want := composer.New().ComposeMelody(context.Background(), motif(1, 1, 2), params(), req)

			req.AI = &composer.AIRequest{}
			got := c.ComposeMelody(context.Background(), motif(1, 1, 2), params(), req)
			if !reflect.DeepEqual(got, want) {
				t.Errorf("fallback melody differs from algorithmic melody")
			}
			if len(reasons) != 1 || reasons[0] != tt.reason {
				t.Errorf("fallback reasons = %v, want [%s]", reasons, tt.reason)
			}
		})
	}
}

func TestCounterpoint(t *testing.T) {
	t.Parallel()

	in := []types.NoteEvent{{Pitch: "C4", MIDINote: 60, Duration: 1, Velocity: 100}, {Pitch: "C#0", MIDINote: 13, Velocity: 50}}
	out := composer.Counterpoint(in, -12)
	if out[0].MIDINote != 48 || out[0].Pitch != "C3" || out[0].Velocity != 70 {
		t.Errorf("out[0] = %+v", out[0])
	}
	if out[1].MIDINote != 1 || out[1].Velocity != 35 {
		t.Errorf("out[1] = %+v", out[1])
	}
	if in[0].MIDINote != 60 {
		t.Error("Counterpoint mutated its input")
	}
}

func TestOrchestrateChord(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		root      string
		chordType string
		orch      reference.Orchestration
		want      []int
	}{
		{name: "full major7", root: "C", chordType: "major7", orch: reference.FullOrchestra, want: []int{48, 60, 64, 67, 71}},
		{name: "minimalist", root: "C", chordType: "major7", orch: reference.MinimalistVoid, want: []int{48, 67}},
		{name: "jazz dominant7", root: "G", chordType: "dominant7", orch: reference.JazzEnsemble, want: []int{67, 71, 74, 77, 81}},
		{name: "quartet minor", root: "A", chordType: "minor", orch: reference.StringQuartet, want: []int{69, 72, 76}},
		{name: "diminished", root: "B", chordType: "diminished", orch: reference.ChamberDeath, want: []int{71, 74, 77}},
		{name: "augmented", root: "C", chordType: "augmented", orch: reference.CyberGlitch, want: []int{60, 64, 68}},
		{name: "unknown type", root: "F", chordType: "sus", orch: reference.StringQuartet, want: []int{65, 69, 72}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := params()
			p.Articulation = types.ArticulationLegato
			ch := composer.OrchestrateChord(tt.root, tt.chordType, p, tt.orch, 0, 4)
			if !reflect.DeepEqual(ch.Voicing, tt.want) {
				t.Errorf("voicing = %v, want %v", ch.Voicing, tt.want)
			}
			for _, n := range ch.Notes {
				if n.Duration != 4 || n.Velocity != 100 || n.Articulation != types.ArticulationLegato {
					t.Errorf("chord note = %+v", n)
				}
			}
		})
	}
}

func TestMidiNames(t *testing.T) {
	t.Parallel()

	for midi, name := range map[int]string{0: "C-1", 60: "C4", 61: "C#4", 69: "A4", 127: "G9"} {
		if got := composer.MidiToName(midi); got != name {
			t.Errorf("MidiToName(%d) = %q, want %q", midi, got, name)
		}
	}
	for name, midi := range map[string]int{"C4": 60, "Eb3": 51, "B#3": 60, "Cb4": 59, "A": 69, "g9": 127, "zz": 60, "C-1": 0} {
		if got := composer.NameToMidi(name); got != midi {
			t.Errorf("NameToMidi(%q) = %d, want %d", name, got, midi)
		}
	}
}
