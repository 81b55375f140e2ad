package orchestrator

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/calculus"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/composer"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/leitmotif"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/observe"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/reference"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/style"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/pkg/types"
)

// Global harmony pad stave.
const (
	GlobalHarmonyID   = "global_harmony"
	globalHarmonyName = "Global Harmony"
	padInstrument     = "pad_synth"
)

const (
	activationDecay     = 0.1
	activationThreshold = 0.3
	measureBeats        = 4
	graphRadius         = 5
	edgeThreshold       = 0.2
)

// frameInput is everything one frame is computed from, captured under the
// lock so the frame is a pure function of it.
type frameInput struct {
	line    types.ScriptLine
	trauma  float64
	entropy float64
	rsi     types.RSI
	force   calculus.Force
	index   int
	mode    reference.Orchestration
	style   style.Preset
	ai      AIConfig
	adj     types.Adjustments
	variant types.VariantOverride
}

// assemble builds one frame. The caller holds o.mu.
func (o *Orchestrator) assemble(ctx context.Context, raw types.ScriptLine, trauma, entropy float64) types.Frame {
	start := time.Now()
	line := raw.Normalize()
	ctx, span := observe.StartSpan(ctx, "orchestrator.ProcessFrame", observe.FrameAttrs(o.frameIndex, line.Speaker))
	defer span.End()

	force := calculus.ReadForce(line.Chord, line.Analysis)
	in := frameInput{
		line:    line,
		trauma:  clampUnit(trauma),
		entropy: clampUnit(entropy),
		rsi:     force.RSI,
		force:   force,
		index:   o.frameIndex,
		mode:    o.mode,
		style:   o.style,
		ai:      o.ai,
		adj:     o.adjustments,
		variant: o.variant,
	}

	global := calculus.Compute(types.PsychometricState{
		Trauma:  in.trauma,
		Entropy: in.entropy,
		RSI:     in.rsi,
	}, in.adj, calculus.WithTable(o.table), calculus.WithOrchestration(in.mode))

	speakerID, _ := o.resolveSpeaker(line.Speaker)
	harmony, chord := o.harmony(in, global)

	staves := make([]types.Stave, 0, len(o.cast)+1)
	for _, a := range o.cast {
		staves = append(staves, o.stave(ctx, in, a, a.ID == speakerID, global))
	}
	if in.mode == reference.LeitmotifWagnerian {
		staves = layer(staves)
	}
	staves = append(staves, padStave(in, global, chord))

	frame := types.Frame{
		Index:      in.index,
		Timestamp:  int64(in.index) * FrameDurationMs,
		ScriptLine: line.Text,
		Speaker:    line.Speaker,
		Global: types.Global{
			Tempo:         global.Tempo,
			TimeSignature: global.TimeSignature,
			Key:           global.Key,
			Mode:          global.Mode,
			Dynamics:      global.DynamicLabel,
		},
		Staves:  staves,
		Harmony: harmony,
		Graph:   buildGraph(staves, in.rsi, speakerID),
	}.Normalize()

	o.frameIndex++
	if o.metrics != nil {
		o.metrics.RecordFrame(ctx, string(in.mode), time.Since(start).Seconds())
	}
	observe.Logger(ctx).Debug("frame assembled",
		"frame", frame.Index,
		"speaker", speakerID,
		"chord", frame.Harmony.Chord,
		"tempo", frame.Global.Tempo,
	)
	return frame
}

// resolveSpeaker maps a speaker label to an actor id of the cast.
func (o *Orchestrator) resolveSpeaker(label string) (string, bool) {
	m, ok := o.resolver.Resolve(label, o.cast)
	if !ok {
		return "", false
	}
	if !m.Exact {
		o.log.Debug("speaker resolved fuzzily", "label", label, "actor", m.ActorID, "confidence", m.Confidence)
	}
	return m.ActorID, true
}

// stave computes one actor's stave and updates its memory.
func (o *Orchestrator) stave(ctx context.Context, in frameInput, a types.ActorProfile, speaking bool, global types.MusicalParams) types.Stave {
	st := o.actors[a.ID]
	if st == nil {
		st = &actorState{}
		o.actors[a.ID] = st
	}

	if speaking {
		st.activation = 1
	} else {
		st.activation = math.Max(0, st.activation-activationDecay)
	}
	active := speaking || st.activation > activationThreshold

	state := types.PsychometricState{
		Trauma:    in.trauma,
		Entropy:   in.entropy,
		RSI:       in.rsi,
		DISC:      a.DISC,
		DarkTriad: a.DarkTriad,
		Biases:    a.Biases,
	}
	params := calculus.Compute(state, in.adj, calculus.WithTable(o.table), calculus.WithOrchestration(in.mode))

	tctx := leitmotif.TransformContext{
		Trauma:        in.trauma,
		Entropy:       in.entropy,
		RSI:           in.rsi,
		PrevRegister:  st.prevRegister,
		ChordRoot:     global.ChordRoot,
		PrevChordRoot: st.prevChord,
	}
	st.prevRegister = in.rsi.Dominant()
	st.prevChord = global.ChordRoot

	var motif types.Leitmotif
	if active {
		motif = o.registry.Transform(a.ID, tctx)
	} else if e, ok := o.registry.Get(a.ID); ok {
		motif = e.Motif.Clone()
	}

	instrument := params.Instrument
	variant, hasVariant := in.variant.For(a.ID)
	if hasVariant && variant.Instrument != "" {
		instrument = variant.Instrument
	}
	motif.Instrument = instrument

	dynamic := params.Velocity
	var notes []types.NoteEvent
	req := composer.MelodyRequest{
		ActorID:  a.ID,
		Frame:    in.index,
		Duration: measureBeats,
		Swing:    in.style.Rhythm.Swing,
	}
	switch {
	case speaking:
		req.Intensity = in.trauma
		if in.ai.Enabled {
			req.AI = &composer.AIRequest{Temperature: in.ai.Temperature, State: state}
		}
		notes = o.composer.ComposeMelody(ctx, motif, params, req)
		if motif.Transformation == types.TransformFragmented {
			notes = leitmotif.FragmentNotes(notes, in.entropy, in.trauma).Notes
		}
	case active && !in.style.Sparse():
		counter := params
		counter.Velocity = reference.ClampVelocity(float64(params.Velocity) * 0.5)
		dynamic = counter.Velocity
		req.Intensity = in.trauma * 0.5
		notes = o.composer.ComposeMelody(ctx, motif, counter, req)
	}

	if hasVariant && variant.DynamicsOffset != 0 {
		dynamic = reference.ClampVelocity(float64(dynamic) + variant.DynamicsOffset)
		for i := range notes {
			notes[i].Velocity = reference.ClampVelocity(float64(notes[i].Velocity) + variant.DynamicsOffset)
		}
	}

	return types.Stave{
		ActorID:          a.ID,
		ActorName:        a.DisplayName(),
		Instrument:       instrument,
		InstrumentFamily: reference.FamilyOf(instrument),
		VoiceID:          variant.VoiceID,
		Leitmotif:        motif,
		Notes:            notes,
		Timbre:           params.Timbre,
		Dynamic:          dynamic,
		DynamicLabel:     params.DynamicLabel,
		Articulation:     params.Articulation,
		IsSpeaking:       speaking,
		Activation:       st.activation,
		State:            types.StaveState{Trauma: in.trauma, Entropy: in.entropy, RSI: in.rsi},
	}
}

// layer pushes secondary voices into the background, speakers first.
func layer(staves []types.Stave) []types.Stave {
	var inputs []leitmotif.LayerInput
	pos := make(map[string]int)
	for i, s := range staves {
		if len(s.Notes) == 0 {
			continue
		}
		pos[s.ActorID] = i
		inputs = append(inputs, leitmotif.LayerInput{
			ActorID:    s.ActorID,
			Activation: s.Activation,
			IsSpeaking: s.IsSpeaking,
			Notes:      s.Notes,
		})
	}
	for _, l := range leitmotif.LayerContrapuntally(inputs) {
		staves[pos[l.ActorID]].Notes = l.Notes
	}
	return staves
}

func padStave(in frameInput, global types.MusicalParams, chord composer.Chord) types.Stave {
	return types.Stave{
		ActorID:          GlobalHarmonyID,
		ActorName:        globalHarmonyName,
		Instrument:       padInstrument,
		InstrumentFamily: reference.FamilyOf(padInstrument),
		Leitmotif: types.Leitmotif{
			ID:             leitmotif.ID(GlobalHarmonyID),
			ActorID:        GlobalHarmonyID,
			ActorName:      globalHarmonyName,
			BaseOctave:     3,
			Instrument:     padInstrument,
			Transformation: types.TransformOriginal,
		},
		Notes:        chord.Notes,
		Timbre:       global.Timbre,
		Dynamic:      global.Velocity,
		DynamicLabel: global.DynamicLabel,
		Articulation: types.ArticulationLegato,
		Activation:   0.5,
		State:        types.StaveState{Trauma: in.trauma, Entropy: in.entropy, RSI: in.rsi},
	}
}

// harmony derives the frame chord. Tension blends the harmonic tension of
// the registers with the frame trauma; a chord hint can only raise it.
func (o *Orchestrator) harmony(in frameInput, global types.MusicalParams) (types.Harmony, composer.Chord) {
	tension := clampUnit((global.Tension + in.trauma) / 2)
	if strings.TrimSpace(in.line.Chord) != "" {
		tension = math.Max(tension, in.force.Tension)
	}
	chordType := calculus.TensionToChordType(tension)
	if in.style.Dissonant() {
		chordType = raiseChordType(chordType)
	}

	params := global
	params.Articulation = types.ArticulationLegato
	if strings.TrimSpace(in.line.Chord) != "" {
		params.Velocity = reference.ClampVelocity(float64(global.Velocity) * (0.7 + 0.3*in.force.Libido))
	}
	chord := composer.OrchestrateChord(global.ChordRoot, chordType, params, in.mode, 0, measureBeats)

	numeral := RomanNumeral(chordType, global.Key)
	return types.Harmony{
		Chord:        ChordSymbol(global.ChordRoot, chordType),
		ChordRoot:    global.ChordRoot,
		ChordType:    chordType,
		RomanNumeral: numeral,
		Tension:      tension,
		Function:     Function(numeral),
		Voicing:      chord.Voicing,
	}, chord
}

func raiseChordType(t string) string {
	for i, c := range calculus.ChordTypes {
		if c == t && i+1 < len(calculus.ChordTypes) {
			return calculus.ChordTypes[i+1]
		}
	}
	return t
}

// ChordSymbol renders root and chord type as a lead-sheet symbol.
func ChordSymbol(root, chordType string) string {
	switch chordType {
	case calculus.ChordMajor7:
		return root + "maj7"
	case calculus.ChordMinor7:
		return root + "m7"
	case calculus.ChordDominant7:
		return root + "7"
	case calculus.ChordDim:
		return root + "dim"
	case calculus.ChordAug:
		return root + "aug"
	default:
		return root + chordType
	}
}

// RomanNumeral names the chord's scale degree within key.
func RomanNumeral(chordType, key string) string {
	minor := strings.Contains(strings.ToLower(key), "minor")
	switch chordType {
	case calculus.ChordMajor7:
		if minor {
			return "III"
		}
		return "I"
	case calculus.ChordMinor7:
		if minor {
			return "i"
		}
		return "ii"
	case calculus.ChordDominant7:
		return "V"
	case calculus.ChordDim:
		return "vii°"
	case calculus.ChordAug:
		return "III+"
	default:
		return "I"
	}
}

var functions = map[string]types.HarmonicFunction{
	"I": types.FunctionTonic, "i": types.FunctionTonic, "vi": types.FunctionTonic, "VI": types.FunctionTonic,
	"IV": types.FunctionSubdominant, "iv": types.FunctionSubdominant, "ii": types.FunctionSubdominant, "II": types.FunctionSubdominant,
	"V": types.FunctionDominant, "v": types.FunctionDominant, "vii": types.FunctionDominant, "VII": types.FunctionDominant,
}

// Function classifies a roman numeral. Quality marks (° and +) are ignored;
// unlisted degrees count as tonic.
func Function(numeral string) types.HarmonicFunction {
	n := strings.TrimRight(numeral, "°+")
	if f, ok := functions[n]; ok {
		return f
	}
	return types.FunctionTonic
}

var concepts = []struct {
	reg  types.Register
	x, y float64
}{
	{types.RegisterReal, 0, 5},
	{types.RegisterSymbolic, -4, -3},
	{types.RegisterImaginary, 4, -3},
}

// buildGraph lays staves on a circle and links the speaker to every register
// above the edge threshold.
func buildGraph(staves []types.Stave, rsi types.RSI, speakerID string) types.Graph {
	g := types.Graph{
		Nodes: make([]types.GraphNode, 0, len(staves)+len(concepts)),
		Edges: []types.GraphEdge{},
	}
	for i, s := range staves {
		angle := float64(i) / float64(len(staves)) * 2 * math.Pi
		g.Nodes = append(g.Nodes, types.GraphNode{
			ID:         s.ActorID,
			Label:      s.ActorName,
			X:          math.Cos(angle) * graphRadius,
			Y:          math.Sin(angle) * graphRadius,
			Activation: s.Activation,
			Type:       "actor",
		})
	}
	for _, c := range concepts {
		id := string(c.reg)
		g.Nodes = append(g.Nodes, types.GraphNode{
			ID:         id,
			Label:      strings.ToUpper(id[:1]) + id[1:],
			X:          c.x,
			Y:          c.y,
			Activation: rsi.Value(c.reg),
			Type:       "concept",
		})
		if speakerID != "" && rsi.Value(c.reg) > edgeThreshold {
			g.Edges = append(g.Edges, types.GraphEdge{
				Source: speakerID,
				Target: id,
				Type:   "reference",
				Weight: rsi.Value(c.reg),
			})
		}
	}
	return g
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return min(max(v, 0), 1)
}
