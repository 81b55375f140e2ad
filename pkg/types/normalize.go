package types

import "strings"

// Defaults for partial script lines and frames.
const (
	DefaultSpeaker       = "Instrumental Ensemble"
	DefaultText          = "[Instrumental]"
	DefaultTempo         = 80
	DefaultTimeSignature = "4/4"
	DefaultKey           = "C Major"
	DefaultMode          = "Ionian"
	DefaultDynamics      = "mf"
	DefaultInstrument    = "piano"
)

// Normalize fills the fallbacks of a script line: speaker falls back to
// character, text to name, analysis to the resolved text. Whitespace-only
// fields count as missing.
func (l ScriptLine) Normalize() ScriptLine {
	out := ScriptLine{Chord: l.Chord}
	out.Speaker = firstNonEmpty(l.Speaker, l.Character, DefaultSpeaker)
	out.Character = firstNonEmpty(l.Character, out.Speaker)
	out.Text = firstNonEmpty(l.Text, l.Name, DefaultText)
	out.Name = firstNonEmpty(l.Name, out.Text)
	out.Analysis = firstNonEmpty(l.Analysis, out.Text)
	return out
}

// Normalize returns f with every required field concrete: empty strings get
// their defaults and nil slices become empty.
func (f Frame) Normalize() Frame {
	f.ScriptLine = firstNonEmpty(f.ScriptLine, DefaultText)
	f.Speaker = firstNonEmpty(f.Speaker, DefaultSpeaker)

	if f.Global.Tempo <= 0 {
		f.Global.Tempo = DefaultTempo
	}
	f.Global.TimeSignature = firstNonEmpty(f.Global.TimeSignature, DefaultTimeSignature)
	f.Global.Key = firstNonEmpty(f.Global.Key, DefaultKey)
	f.Global.Mode = firstNonEmpty(f.Global.Mode, DefaultMode)
	f.Global.Dynamics = firstNonEmpty(f.Global.Dynamics, DefaultDynamics)

	staves := make([]Stave, len(f.Staves))
	for i, s := range f.Staves {
		s.ActorName = firstNonEmpty(s.ActorName, s.ActorID)
		s.Instrument = firstNonEmpty(s.Instrument, DefaultInstrument)
		if s.InstrumentFamily == "" {
			s.InstrumentFamily = FamilyKeyboard
		}
		s.DynamicLabel = firstNonEmpty(s.DynamicLabel, DefaultDynamics)
		if s.Articulation == "" {
			s.Articulation = ArticulationNormal
		}
		if s.Timbre == (Timbre{}) {
			s.Timbre = DefaultTimbre()
		}
		if s.Notes == nil {
			s.Notes = []NoteEvent{}
		}
		if s.Leitmotif.Transformation == "" {
			s.Leitmotif.Transformation = TransformOriginal
		}
		s.Leitmotif.Instrument = firstNonEmpty(s.Leitmotif.Instrument, s.Instrument)
		if s.Leitmotif.PitchClasses == nil {
			s.Leitmotif.PitchClasses = []int{}
		}
		if s.Leitmotif.Intervals == nil {
			s.Leitmotif.Intervals = []int{}
		}
		if s.Leitmotif.Rhythm == nil {
			s.Leitmotif.Rhythm = []float64{}
		}
		staves[i] = s
	}
	f.Staves = staves

	f.Harmony.ChordRoot = firstNonEmpty(f.Harmony.ChordRoot, "C")
	f.Harmony.ChordType = firstNonEmpty(f.Harmony.ChordType, "major7")
	f.Harmony.Chord = firstNonEmpty(f.Harmony.Chord, f.Harmony.ChordRoot+"maj7")
	f.Harmony.RomanNumeral = firstNonEmpty(f.Harmony.RomanNumeral, "I")
	if f.Harmony.Function == "" {
		f.Harmony.Function = FunctionTonic
	}
	if f.Harmony.Voicing == nil {
		f.Harmony.Voicing = []int{}
	}
	if f.Graph.Nodes == nil {
		f.Graph.Nodes = []GraphNode{}
	}
	if f.Graph.Edges == nil {
		f.Graph.Edges = []GraphEdge{}
	}
	return f
}

// firstNonEmpty returns the first value with non-space content, trimmed.
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
