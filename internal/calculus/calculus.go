// Package calculus maps a psychometric state to musical parameters.
//
// [Compute] is pure and deterministic: identical inputs always produce
// bit-identical output. Trauma resolves velocity, dynamic label and
// articulation; entropy resolves tempo and meter. The two axes never
// cross-resolve.
package calculus

import (
	"math"
	"strings"

	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/reference"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/pkg/types"
)

// Stability modes chosen by the lyapunov rule.
const (
	StableMode       = "Ionian"
	TransitionalMode = "Lydian"
	UnstableMode     = "Phrygian"
)

// DefaultInstrument is used when the state carries no DISC profile.
const DefaultInstrument = "piano"

// Option configures a [Compute] call.
type Option func(*computeConfig)

type computeConfig struct {
	table *reference.Table
	orch  reference.Orchestration
}

// WithTable replaces the built-in reference table.
func WithTable(t *reference.Table) Option {
	return func(c *computeConfig) {
		if t != nil {
			c.table = t
		}
	}
}

// WithOrchestration selects the palette used for instrument selection.
// Defaults to [reference.FullOrchestra].
func WithOrchestration(o reference.Orchestration) Option {
	return func(c *computeConfig) {
		if o.IsValid() {
			c.orch = o
		}
	}
}

// Compute derives the musical parameters of one frame. Scalars outside [0, 1]
// are clamped and NaN counts as zero. adj may be nil.
func Compute(state types.PsychometricState, adj types.Adjustments, opts ...Option) types.MusicalParams {
	cfg := computeConfig{table: reference.Default(), orch: reference.FullOrchestra}
	for _, o := range opts {
		o(&cfg)
	}
	tbl := cfg.table

	trauma := unit(state.Trauma)
	entropy := unit(state.Entropy)
	rsi := types.RSI{
		Real:      unit(state.RSI.Real),
		Symbolic:  unit(state.RSI.Symbolic),
		Imaginary: unit(state.RSI.Imaginary),
	}

	tempo, meter := Rhythm(tbl, entropy, adj)
	dyn := tbl.Dynamics(trauma, adj)
	lyap := Lyapunov(trauma, entropy)
	key := Key(rsi, entropy)
	tension := Tension(rsi, entropy)
	instrument := Instrument(tbl, cfg.orch, state.DISC)

	timbre := types.DefaultTimbre()
	if state.DarkTriad != nil {
		timbre = DarkTriadTimbre(timbre, *state.DarkTriad)
	}
	timbre = BiasTimbre(timbre, state.Biases)

	return types.MusicalParams{
		Tempo:            tempo,
		TimeSignature:    meter,
		Key:              key,
		Mode:             tbl.ModeName(rsi.Dominant()),
		StabilityMode:    StabilityMode(lyap),
		Lyapunov:         lyap,
		Velocity:         dyn.Velocity,
		DynamicLabel:     dyn.Label,
		Articulation:     tbl.Articulation(trauma, state.Biases),
		Timbre:           timbre,
		ChordRoot:        ChordRoot(key),
		ChordType:        TensionToChordType(tension),
		Tension:          tension,
		Instrument:       instrument,
		InstrumentFamily: reference.FamilyOf(instrument),
	}
}

// Band maps entropy to its stability band.
func Band(entropy float64) reference.Stability {
	switch {
	case entropy <= 0.4:
		return reference.StabilityStrategic
	case entropy <= 0.7:
		return reference.StabilityOperational
	default:
		return reference.StabilityCrisis
	}
}

// Rhythm returns the tempo and meter for entropy. The tempo is placed inside
// the band range proportionally to entropy and never leaves the range.
func Rhythm(tbl *reference.Table, entropy float64, adj types.Adjustments) (int, string) {
	entropy = unit(entropy)
	r, _ := tbl.TempoRange(Band(entropy), adj)
	tempo := math.Round(r.Min + entropy*(r.Max-r.Min))
	tempo = min(max(tempo, math.Ceil(r.Min)), math.Floor(r.Max))
	return int(tempo), tbl.TimeSignature(entropy)
}

// Lyapunov returns the stability scalar; negative values are stable.
func Lyapunov(trauma, entropy float64) float64 {
	return (unit(trauma) + unit(entropy) - 0.5) * 0.5
}

// StabilityMode maps a lyapunov scalar to a mode name.
func StabilityMode(lyapunov float64) string {
	switch {
	case lyapunov < 0:
		return StableMode
	case lyapunov < 0.1:
		return TransitionalMode
	default:
		return UnstableMode
	}
}

// Key picks the key from the register state. The first register above 0.6
// wins in real, imaginary, symbolic order; very high entropy alone yields a
// locrian key.
func Key(rsi types.RSI, entropy float64) string {
	switch {
	case rsi.Real > 0.6:
		return "C# minor"
	case rsi.Imaginary > 0.6:
		return "E Major"
	case rsi.Symbolic > 0.6:
		return "G Major"
	case entropy > 0.8:
		return "F# Locrian"
	default:
		return "C Major"
	}
}

// ChordRoot returns the first word of a key name.
func ChordRoot(key string) string {
	root, _, _ := strings.Cut(strings.TrimSpace(key), " ")
	if root == "" {
		return "C"
	}
	return root
}

// Tension is driven by the real register with a small entropy contribution.
func Tension(rsi types.RSI, entropy float64) float64 {
	return unit(rsi.Real)*0.9 + unit(entropy)*0.1
}

// Chord types in ascending tension order.
const (
	ChordMajor7    = "major7"
	ChordMinor7    = "minor7"
	ChordDominant7 = "dominant7"
	ChordDim       = "diminished"
	ChordAug       = "augmented"
)

// ChordTypes lists chord types from least to most tense.
var ChordTypes = []string{ChordMajor7, ChordMinor7, ChordDominant7, ChordDim, ChordAug}

// TensionToChordType maps tension to a chord type.
func TensionToChordType(tension float64) string {
	switch {
	case tension < 0.2:
		return ChordMajor7
	case tension < 0.4:
		return ChordMinor7
	case tension < 0.6:
		return ChordDominant7
	case tension < 0.8:
		return ChordDim
	default:
		return ChordAug
	}
}

// Instrument returns the first instrument of the palette for the dominant
// DISC trait. A nil profile yields [DefaultInstrument].
func Instrument(tbl *reference.Table, o reference.Orchestration, disc *types.DISC) string {
	if disc == nil {
		return DefaultInstrument
	}
	palette := tbl.Instruments(o, disc.Dominant())
	if len(palette) == 0 {
		return DefaultInstrument
	}
	return palette[0]
}

// DominantTrait returns the dominant DISC letter, or "" for a nil profile.
func DominantTrait(disc *types.DISC) string {
	if disc == nil {
		return ""
	}
	return disc.Dominant()
}

// DominantRegister returns the strongest RSI register.
func DominantRegister(rsi types.RSI) types.Register {
	return rsi.Dominant()
}

func unit(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return min(max(v, 0), 1)
}
