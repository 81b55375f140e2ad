// Package types defines the shared types used across the psychometric
// orchestration engine.
//
// These types form the lingua franca between the calculus, the leitmotif
// registry, the orchestrator, the worker protocol and the host-side buffer.
// Every exported struct is JSON-serialisable so it can cross the worker
// message channel unchanged.
package types

import "strings"

// DISC is a four-trait behavioural profile used to pick instrumentation.
// Each trait is expected in [0, 1].
type DISC struct {
	// D is Dominance.
	D float64 `json:"D" yaml:"D"`
	// I is Influence.
	I float64 `json:"I" yaml:"I"`
	// S is Steadiness.
	S float64 `json:"S" yaml:"S"`
	// C is Conscientiousness (compliance).
	C float64 `json:"C" yaml:"C"`
}

// Dominant returns the trait letter with the highest score. Ties resolve in
// D, I, S, C order.
func (d DISC) Dominant() string {
	trait, best := "D", d.D
	for _, c := range []struct {
		name string
		v    float64
	}{{"I", d.I}, {"S", d.S}, {"C", d.C}} {
		if c.v > best {
			trait, best = c.name, c.v
		}
	}
	return trait
}

// BigFive is an OCEAN personality vector.
type BigFive struct {
	O float64 `json:"O" yaml:"O"`
	C float64 `json:"C" yaml:"C"`
	E float64 `json:"E" yaml:"E"`
	A float64 `json:"A" yaml:"A"`
	N float64 `json:"N" yaml:"N"`
}

// DarkTriad holds the three dark personality traits.
type DarkTriad struct {
	Machiavellianism float64 `json:"machiavellianism" yaml:"machiavellianism"`
	Narcissism       float64 `json:"narcissism" yaml:"narcissism"`
	Psychopathy      float64 `json:"psychopathy" yaml:"psychopathy"`
}

// Strongest returns the name and intensity of the strongest trait. Ties
// resolve in declaration order.
func (t DarkTriad) Strongest() (string, float64) {
	name, v := "machiavellianism", t.Machiavellianism
	if t.Narcissism > v {
		name, v = "narcissism", t.Narcissism
	}
	if t.Psychopathy > v {
		name, v = "psychopathy", t.Psychopathy
	}
	return name, v
}

// Archetype is a Jungian archetype label that shapes a leitmotif's intervals.
type Archetype string

const (
	ArchetypeHero              Archetype = "hero"
	ArchetypeShadow            Archetype = "shadow"
	ArchetypeMentor            Archetype = "mentor"
	ArchetypeHerald            Archetype = "herald"
	ArchetypeThresholdGuardian Archetype = "threshold_guardian"
	ArchetypeShapeshifter      Archetype = "shapeshifter"
	ArchetypeTrickster         Archetype = "trickster"
)

// ActorProfile describes one character of a scenario. A profile is immutable
// once it has been registered for a scenario; a scenario change replaces it.
type ActorProfile struct {
	// ID is the stable actor identifier (e.g. "lady_macbeth").
	ID string `json:"id" yaml:"id"`

	// Name is the human-readable display name.
	Name string `json:"name" yaml:"name"`

	// DISC is the behavioural profile. A nil DISC means "unknown".
	DISC *DISC `json:"disc,omitempty" yaml:"disc,omitempty"`

	// BigFive is optional and drives leitmotif rhythm and tempo.
	BigFive *BigFive `json:"bigFive,omitempty" yaml:"bigFive,omitempty"`

	// DarkTriad is optional and drives timbre modulation.
	DarkTriad *DarkTriad `json:"darkTriad,omitempty" yaml:"darkTriad,omitempty"`

	// Archetype selects the interval pattern of the leitmotif.
	Archetype Archetype `json:"archetype,omitempty" yaml:"archetype,omitempty"`

	// Biases lists active cognitive biases by name.
	Biases []string `json:"biases,omitempty" yaml:"biases,omitempty"`
}

// DisplayName returns Name, or ID when Name is empty.
func (p ActorProfile) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}

// SpeakerKey converts a free-form speaker label into the canonical id form:
// lower case with runs of whitespace collapsed into underscores.
func SpeakerKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), "_")
}

// RSI is the three-register (Real / Symbolic / Imaginary) state. Each value
// is in [0, 1]; the three need not sum to 1.
type RSI struct {
	Real      float64 `json:"real"`
	Symbolic  float64 `json:"symbolic"`
	Imaginary float64 `json:"imaginary"`
}

// Register names one of the three RSI registers.
type Register string

const (
	RegisterReal      Register = "real"
	RegisterSymbolic  Register = "symbolic"
	RegisterImaginary Register = "imaginary"
)

// Dominant returns the strongest register. Ties favour symbolic, then real.
func (r RSI) Dominant() Register {
	switch {
	case r.Real > r.Symbolic && r.Real > r.Imaginary:
		return RegisterReal
	case r.Imaginary > r.Symbolic && r.Imaginary > r.Real:
		return RegisterImaginary
	default:
		return RegisterSymbolic
	}
}

// Value returns the weight of the named register.
func (r RSI) Value(reg Register) float64 {
	switch reg {
	case RegisterReal:
		return r.Real
	case RegisterImaginary:
		return r.Imaginary
	default:
		return r.Symbolic
	}
}

// PsychometricState is the per-frame input to the calculus. It is supplied
// externally and never owned by the engine.
type PsychometricState struct {
	// Trauma drives dynamics and velocity. Range [0, 1].
	Trauma float64 `json:"trauma"`

	// Entropy drives tempo and rhythmic stability. Range [0, 1].
	Entropy float64 `json:"entropy"`

	// RSI is the register state.
	RSI RSI `json:"rsi"`

	// DISC, when set, selects the instrument palette.
	DISC *DISC `json:"disc,omitempty"`

	// DarkTriad, when set, modulates timbre.
	DarkTriad *DarkTriad `json:"darkTriad,omitempty"`

	// Biases are active cognitive bias names and influence articulation.
	Biases []string `json:"biases,omitempty"`
}

// Adjustment overrides numeric defaults of one reference table entry. Zero
// fields are treated as unset.
type Adjustment struct {
	// ID is the reference entry id this adjustment targets (e.g. "rhythm-006").
	ID string `json:"id" yaml:"id"`

	// Tempo recentres the entry's tempo range on this BPM value (±10).
	Tempo float64 `json:"tempo,omitempty" yaml:"tempo,omitempty"`

	// Dynamics replaces the entry's MIDI velocity outright.
	Dynamics float64 `json:"dynamics,omitempty" yaml:"dynamics,omitempty"`

	// Humanization is the timing jitter amount in [0, 1].
	Humanization float64 `json:"humanization,omitempty" yaml:"humanization,omitempty"`

	// MIDIValue overrides the entry's MIDI value where one applies.
	MIDIValue float64 `json:"midiValue,omitempty" yaml:"midiValue,omitempty"`

	// VelocityOffset is added to the final velocity after overrides.
	VelocityOffset float64 `json:"velocityOffset,omitempty" yaml:"velocityOffset,omitempty"`
}

// Adjustments maps reference entry ids to their overrides.
type Adjustments map[string]Adjustment

// Merge returns a new map holding a overlaid with b. Neither input is modified.
func (a Adjustments) Merge(b Adjustments) Adjustments {
	out := make(Adjustments, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		if v.ID == "" {
			v.ID = k
		}
		out[k] = v
	}
	return out
}

// ActorVariant is a per-actor customisation layered over computed values.
type ActorVariant struct {
	// Instrument, when non-empty, replaces the computed instrument.
	Instrument string `json:"instrument,omitempty" yaml:"instrument,omitempty"`

	// VoiceID names the external voice used by speech synthesis. The engine
	// only carries it through to the stave.
	VoiceID string `json:"voiceId,omitempty" yaml:"voiceId,omitempty"`

	// DynamicsOffset is added to every note velocity of the actor.
	DynamicsOffset float64 `json:"dynamicsOffset,omitempty" yaml:"dynamicsOffset,omitempty"`
}

// VariantOverride holds the per-actor overrides of one score variant. Values
// here always win over computed defaults.
type VariantOverride struct {
	// ID identifies the variant.
	ID string `json:"id,omitempty" yaml:"id,omitempty"`

	// Actors maps actor ids to their overrides.
	Actors map[string]ActorVariant `json:"actors,omitempty" yaml:"actors,omitempty"`
}

// For returns the override for actorID and whether one exists.
func (v VariantOverride) For(actorID string) (ActorVariant, bool) {
	av, ok := v.Actors[actorID]
	return av, ok
}
