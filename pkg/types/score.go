package types

import (
	"slices"
	"time"
)

// Articulation names how a note is attacked and connected.
type Articulation string

const (
	ArticulationLegato    Articulation = "legato"
	ArticulationStaccato  Articulation = "staccato"
	ArticulationMarcato   Articulation = "marcato"
	ArticulationTenuto    Articulation = "tenuto"
	ArticulationSforzando Articulation = "sforzando"
	ArticulationNormal    Articulation = "normal"
)

// InstrumentFamily is the coarse orchestral section of an instrument.
type InstrumentFamily string

const (
	FamilyBrass      InstrumentFamily = "brass"
	FamilyWoodwind   InstrumentFamily = "woodwind"
	FamilyStrings    InstrumentFamily = "strings"
	FamilyKeyboard   InstrumentFamily = "keyboard"
	FamilyPercussion InstrumentFamily = "percussion"
)

// Timbre describes envelope and colour modulation of a voice.
type Timbre struct {
	Attack  float64 `json:"attack"`
	Decay   float64 `json:"decay"`
	Sustain float64 `json:"sustain"`
	Release float64 `json:"release"`
	Vibrato float64 `json:"vibrato"`

	// Detuning is in cents, -50 to +50.
	Detuning float64 `json:"detuning"`

	// FilterCutoff is in Hz.
	FilterCutoff float64 `json:"filterCutoff"`
}

// DefaultTimbre returns the neutral envelope used when nothing modulates it.
func DefaultTimbre() Timbre {
	return Timbre{Attack: 0.1, Decay: 0.3, Sustain: 0.7, Release: 0.4, Vibrato: 0.3, FilterCutoff: 5000}
}

// MusicalParams is the output of the psychometric calculus. It is recomputed
// every frame and never persisted by the engine.
type MusicalParams struct {
	// Tempo in BPM.
	Tempo int `json:"tempo"`

	// TimeSignature such as "4/4".
	TimeSignature string `json:"timeSignature"`

	// Key such as "C Major" or "C# minor".
	Key string `json:"key"`

	// Mode such as "ionian" or "phrygian".
	Mode string `json:"mode"`

	// StabilityMode is the mode chosen by the lyapunov stability rule.
	StabilityMode string `json:"stabilityMode"`

	// Lyapunov is the stability scalar; negative is stable.
	Lyapunov float64 `json:"lyapunov"`

	// Velocity is the MIDI velocity 0-127.
	Velocity int `json:"velocity"`

	// DynamicLabel is the notated dynamic ("pp" … "ff").
	DynamicLabel string `json:"dynamicLabel"`

	Articulation Articulation `json:"articulation"`
	Timbre       Timbre       `json:"timbre"`

	ChordRoot string  `json:"chordRoot"`
	ChordType string  `json:"chordType"`
	Tension   float64 `json:"tension"`

	// Instrument is the suggested instrument for the state's DISC profile.
	Instrument       string           `json:"instrument"`
	InstrumentFamily InstrumentFamily `json:"instrumentFamily"`
}

// NoteEvent is one note of a stave.
type NoteEvent struct {
	// Pitch is the note name with octave, e.g. "C4" or "D#5".
	Pitch string `json:"pitch"`

	// MIDINote is the MIDI note number (60 = C4).
	MIDINote int `json:"midiNote"`

	// Duration in beats.
	Duration float64 `json:"duration"`

	// StartBeat is the position within the measure.
	StartBeat float64 `json:"startBeat"`

	// Velocity 0-127.
	Velocity int `json:"velocity"`

	Articulation Articulation `json:"articulation"`
}

// Transformation names a leitmotif transformation.
type Transformation string

const (
	TransformOriginal           Transformation = "original"
	TransformInverted           Transformation = "inverted"
	TransformRetrograde         Transformation = "retrograde"
	TransformRetrogradeInverted Transformation = "retrograde_inverted"
	TransformFragmented         Transformation = "fragmented"
	TransformAugmented          Transformation = "augmented"
	TransformDiminished         Transformation = "diminished"
	TransformChromaticDescent   Transformation = "chromatic_descent"
	TransformWholeToneAscent    Transformation = "whole_tone_ascent"
	TransformModalShift         Transformation = "modal_shift"
	TransformRecontextualized   Transformation = "recontextualized"
)

// Leitmotif is a short signature motif tied to one actor.
type Leitmotif struct {
	ID        string `json:"id"`
	ActorID   string `json:"actorId"`
	ActorName string `json:"actorName"`

	// PitchClasses are 0-11 (C = 0).
	PitchClasses []int `json:"pitchClasses"`

	// Intervals are semitone steps between consecutive pitches.
	Intervals []int `json:"intervals"`

	// Rhythm holds relative durations (1 = quarter note). Negative values are rests.
	Rhythm []float64 `json:"rhythm"`

	BaseOctave int    `json:"baseOctave"`
	Key        string `json:"key"`
	Mode       string `json:"mode"`
	Instrument string `json:"instrument"`
	Tempo      int    `json:"tempo"`

	// Transformation is the transformation that produced this value.
	Transformation Transformation `json:"transformation"`
}

// Clone returns a deep copy of m.
func (m Leitmotif) Clone() Leitmotif {
	m.PitchClasses = slices.Clone(m.PitchClasses)
	m.Intervals = slices.Clone(m.Intervals)
	m.Rhythm = slices.Clone(m.Rhythm)
	return m
}

// StaveState is the psychometric snapshot attached to a stave.
type StaveState struct {
	Trauma  float64 `json:"trauma"`
	Entropy float64 `json:"entropy"`
	RSI     RSI     `json:"rsi"`
}

// Stave is the per-actor output of one frame.
type Stave struct {
	ActorID          string           `json:"actorId"`
	ActorName        string           `json:"actorName"`
	Instrument       string           `json:"instrument"`
	InstrumentFamily InstrumentFamily `json:"instrumentFamily"`
	VoiceID          string           `json:"voiceId,omitempty"`

	Leitmotif Leitmotif   `json:"leitmotif"`
	Notes     []NoteEvent `json:"notes"`

	Timbre       Timbre       `json:"timbre"`
	Dynamic      int          `json:"dynamic"`
	DynamicLabel string       `json:"dynamicLabel"`
	Articulation Articulation `json:"articulation"`

	IsSpeaking bool    `json:"isSpeaking"`
	Activation float64 `json:"activation"`

	State StaveState `json:"psychometricState"`
}

// Clone returns a deep copy of s.
func (s Stave) Clone() Stave {
	s.Leitmotif = s.Leitmotif.Clone()
	s.Notes = slices.Clone(s.Notes)
	return s
}

// HarmonicFunction classifies a chord's role within the key.
type HarmonicFunction string

const (
	FunctionTonic       HarmonicFunction = "tonic"
	FunctionSubdominant HarmonicFunction = "subdominant"
	FunctionDominant    HarmonicFunction = "dominant"
)

// Harmony is the global harmonic state of one frame.
type Harmony struct {
	Chord        string           `json:"chord"`
	ChordRoot    string           `json:"chordRoot"`
	ChordType    string           `json:"chordType"`
	RomanNumeral string           `json:"romanNumeral"`
	Tension      float64          `json:"tension"`
	Function     HarmonicFunction `json:"function"`
	Voicing      []int            `json:"voicing"`
}

// GraphNode is one node of the relation graph.
type GraphNode struct {
	ID         string  `json:"id"`
	Label      string  `json:"label"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Activation float64 `json:"activation"`

	// Type is "actor" or "concept".
	Type string `json:"type"`
}

// GraphEdge is one edge of the relation graph.
type GraphEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`

	// Type is "speech", "reference", "tension" or "harmony".
	Type   string  `json:"type"`
	Weight float64 `json:"weight"`
}

// Graph is the lightweight relation graph attached to a frame.
type Graph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// Global holds the frame-wide musical parameters.
type Global struct {
	Tempo         int    `json:"tempo"`
	TimeSignature string `json:"timeSignature"`
	Key           string `json:"key"`
	Mode          string `json:"mode"`
	Dynamics      string `json:"dynamics"`
}

// ScriptLine is one raw dialogue line as received from the host. Every field
// is optional; the orchestrator normalises it once at its boundary.
type ScriptLine struct {
	Speaker   string `json:"speaker,omitempty" yaml:"speaker,omitempty"`
	Character string `json:"character,omitempty" yaml:"character,omitempty"`
	Text      string `json:"text,omitempty" yaml:"text,omitempty"`
	Name      string `json:"name,omitempty" yaml:"name,omitempty"`
	Chord     string `json:"chord,omitempty" yaml:"chord,omitempty"`
	Analysis  string `json:"analysis,omitempty" yaml:"analysis,omitempty"`
}

// Frame is the atomic, immutable unit of generated output for one narrative
// beat. A regenerated frame supersedes the old one; frames are never mutated.
type Frame struct {
	Index int `json:"frameIndex"`

	// Timestamp is milliseconds from the scenario start.
	Timestamp int64 `json:"timestamp"`

	ScriptLine string `json:"scriptLine"`
	Speaker    string `json:"speaker"`

	Global  Global  `json:"global"`
	Staves  []Stave `json:"staves"`
	Harmony Harmony `json:"harmony"`
	Graph   Graph   `json:"graph"`
}

// Clone returns a deep copy of f. Frames are shared between the buffer,
// playback and export, so every holder that hands one out clones it.
func (f Frame) Clone() Frame {
	if f.Staves != nil {
		staves := make([]Stave, len(f.Staves))
		for i, s := range f.Staves {
			staves[i] = s.Clone()
		}
		f.Staves = staves
	}
	f.Harmony.Voicing = slices.Clone(f.Harmony.Voicing)
	f.Graph.Nodes = slices.Clone(f.Graph.Nodes)
	f.Graph.Edges = slices.Clone(f.Graph.Edges)
	return f
}

// Statistics summarises a collected score.
type Statistics struct {
	TotalFrames    int     `json:"totalFrames"`
	DurationMs     int64   `json:"duration"`
	AverageTrauma  float64 `json:"averageTrauma"`
	AverageEntropy float64 `json:"averageEntropy"`
	DominantKey    string  `json:"dominantKey"`
	DominantMode   string  `json:"dominantMode"`
}

// Score is a collected buffer of frames ready for persistence or export.
type Score struct {
	ID          string               `json:"id"`
	Title       string               `json:"title"`
	Source      string               `json:"source"`
	GeneratedAt time.Time            `json:"generatedAt"`
	Version     string               `json:"version"`
	Actors      []ActorProfile       `json:"actors"`
	Leitmotifs  map[string]Leitmotif `json:"leitmotifs"`
	Frames      []Frame              `json:"frames"`
	Statistics  Statistics           `json:"statistics"`
}
