package export_test

import (
	"bytes"
	"testing"

	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/export"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/pkg/types"
)

func TestWriteMML(t *testing.T) {
	t.Parallel()

	s := types.Score{
		Title: "Dagger",
		Frames: []types.Frame{
			{
				Global: types.Global{Tempo: 90},
				Staves: []types.Stave{
					{ActorID: "macbeth", ActorName: "Macbeth", Instrument: "trumpet", Notes: []types.NoteEvent{
						{MIDINote: 64, Duration: 1.5, StartBeat: 1, Velocity: 127},
						{MIDINote: 60, Duration: 1, StartBeat: 0, Velocity: 127},
					}},
					{ActorID: "global_harmony", ActorName: "Global Harmony", Instrument: "pad_synth", Notes: []types.NoteEvent{
						{MIDINote: 48, Duration: 4, Velocity: 64},
						{MIDINote: 52, Duration: 4, Velocity: 64},
					}},
				},
			},
			{
				Global: types.Global{Tempo: 140},
				Staves: []types.Stave{
					{ActorID: "global_harmony", Notes: []types.NoteEvent{{MIDINote: 49, Duration: 2, StartBeat: 2, Velocity: 64}}},
				},
			},
		},
	}

	var buf bytes.Buffer
	if err := export.WriteMML(&buf, s); err != nil {
		t.Fatalf("WriteMML: %v", err)
	}
	want := "/* Dagger */\n" +
		"/* Macbeth (trumpet) */\n" +
		"t90 o5 v16 c4 e4^8 r4^8 t140 r1;\n" +
		"/* Global Harmony (pad_synth) */\n" +
		"o4 v8 c1 r2 c#2;\n"
	if got := buf.String(); got != want {
		t.Errorf("WriteMML =\n%s\nwant\n%s", got, want)
	}
}

func TestWriteMML_LongFrameKeepsTracksAligned(t *testing.T) {
	t.Parallel()

	s := types.Score{Frames: []types.Frame{{
		Staves: []types.Stave{
			{ActorID: "a", ActorName: "A", Instrument: "cello", Notes: []types.NoteEvent{{MIDINote: 36, Duration: 6, Velocity: 127}}},
			{ActorID: "b", ActorName: "B", Instrument: "flute"},
		},
	}}}
	var buf bytes.Buffer
	if err := export.WriteMML(&buf, s); err != nil {
		t.Fatalf("WriteMML: %v", err)
	}
	want := "/*  */\n/* A (cello) */\no3 v16 c1^2;\n/* B (flute) */\nr1^2;\n"
	if got := buf.String(); got != want {
		t.Errorf("WriteMML =\n%q\nwant\n%q", got, want)
	}
}
