// Package composer turns leitmotifs and musical parameters into note events:
// lead melodies, counter-melodies, counterpoint and chord voicings.
//
// Output is deterministic. Melodic variation draws from a PRNG seeded by the
// actor id and frame index, so regenerating a frame yields the same notes.
// An optional [MelodySource] can propose the lead melody; any failure there
// falls back to the algorithmic path.
package composer

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"math"
	"math/rand/v2"
	"strconv"

	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/reference"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/pkg/types"
)

// Note is a melody note proposed by a [MelodySource].
type Note struct {
	Pitch    string  `json:"pitch"`
	Duration float64 `json:"duration"`
	Velocity int     `json:"velocity"`
}

// Prompt is the context handed to a [MelodySource].
type Prompt struct {
	Trauma      float64
	Entropy     float64
	Bias        string
	RSI         types.RSI
	Key         string
	Mode        string
	Chord       string
	Instrument  string
	Temperature float64
}

// MelodySource proposes a lead melody. Implementations may call remote
// models and are expected to honour ctx.
type MelodySource interface {
	Melody(ctx context.Context, p Prompt) ([]Note, error)
}

// AIRequest enables the [MelodySource] for one melody.
type AIRequest struct {
	Temperature float64
	State       types.PsychometricState
}

// MelodyRequest describes one melody to compose.
type MelodyRequest struct {
	ActorID string
	Frame   int

	// Duration in beats the melody should fill.
	Duration  float64
	StartBeat float64

	// Intensity in [0, 1] shapes rhythm, articulation and variation.
	Intensity float64

	// Swing delays off-beat eighths.
	Swing bool

	// AI, when non-nil, asks the melody source first.
	AI *AIRequest
}

// Option configures a [Composer].
type Option func(*Composer)

// WithMelodySource installs an AI melody source.
func WithMelodySource(s MelodySource) Option {
	return func(c *Composer) { c.source = s }
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(c *Composer) {
		if l != nil {
			c.log = l
		}
	}
}

// Reasons passed to the fallback hook.
const (
	FallbackError = "error"
	FallbackEmpty = "empty"
)

var errEmptyMelody = errors.New("composer: melody source returned no playable notes")

// WithFallbackHook registers f to run whenever an AI melody request falls
// back to the algorithm. reason is [FallbackError] or [FallbackEmpty].
func WithFallbackHook(f func(reason string)) Option {
	return func(c *Composer) { c.onFallback = f }
}

// Composer writes notes. It holds no per-frame state and is safe for
// concurrent use.
type Composer struct {
	source     MelodySource
	log        *slog.Logger
	onFallback func(reason string)
}

// New returns a composer.
func New(opts ...Option) *Composer {
	c := &Composer{log: slog.Default()}
	for _, o := range opts {
		o(c)
	}
	return c
}

var defaultPitches = []int{60, 62, 64, 65, 67}

// ComposeMelody writes a melody for motif. When req.AI is set and a source
// is installed the source is tried first.
func (c *Composer) ComposeMelody(ctx context.Context, motif types.Leitmotif, params types.MusicalParams, req MelodyRequest) []types.NoteEvent {
	if req.AI != nil && c.source != nil {
		if notes, ok := c.fromSource(ctx, motif, params, req); ok {
			return notes
		}
	}
	return c.algorithmic(motif, params, req)
}

func (c *Composer) fromSource(ctx context.Context, motif types.Leitmotif, params types.MusicalParams, req MelodyRequest) ([]types.NoteEvent, bool) {
	bias := "none"
	if len(req.AI.State.Biases) > 0 {
		bias = req.AI.State.Biases[0]
	}
	proposed, err := c.source.Melody(ctx, Prompt{
		Trauma:      req.AI.State.Trauma,
		Entropy:     req.AI.State.Entropy,
		Bias:        bias,
		RSI:         req.AI.State.RSI,
		Key:         params.Key,
		Mode:        params.Mode,
		Chord:       params.ChordRoot + params.ChordType,
		Instrument:  motif.Instrument,
		Temperature: req.AI.Temperature,
	})
	if err == nil && len(proposed) == 0 {
		err = errEmptyMelody
	}

	var out []types.NoteEvent
	if err == nil {
		out = make([]types.NoteEvent, 0, len(proposed))
		beat := req.StartBeat
		for _, n := range proposed {
			if n.Duration <= 0 {
				continue
			}
			midi := NameToMidi(n.Pitch)
			out = append(out, types.NoteEvent{
				Pitch:        MidiToName(midi),
				MIDINote:     midi,
				Duration:     n.Duration,
				StartBeat:    beat,
				Velocity:     reference.ClampVelocity(float64(n.Velocity)),
				Articulation: params.Articulation,
			})
			beat += n.Duration
		}
		if len(out) == 0 {
			err = errEmptyMelody
		}
	}
	if err != nil {
		reason := FallbackError
		if errors.Is(err, errEmptyMelody) {
			reason = FallbackEmpty
		}
		c.log.Debug("ai melody unavailable, using algorithmic fallback", "actor", req.ActorID, "reason", reason, "err", err)
		if c.onFallback != nil {
			c.onFallback(reason)
		}
		return nil, false
	}
	return out, true
}

func (c *Composer) algorithmic(motif types.Leitmotif, params types.MusicalParams, req MelodyRequest) []types.NoteEvent {
	rng := newRand(req.ActorID, req.Frame)
	pattern := RhythmPattern(motif, req.Intensity)

	pitches := make([]int, len(motif.PitchClasses))
	for i, pc := range motif.PitchClasses {
		pitches[i] = pc + (motif.BaseOctave+1)*12
	}
	if len(pitches) == 0 {
		pitches = defaultPitches
	}

	patternDur := 0.0
	for _, d := range pattern {
		patternDur += math.Abs(d)
	}
	cycles := 1
	if patternDur > 0 {
		cycles = max(1, int(math.Floor(req.Duration/patternDur)))
	}

	var out []types.NoteEvent
	beat := req.StartBeat
	idx := 0
	for range cycles {
		for i, d := range pattern {
			if d < 0 {
				beat += -d
				continue
			}
			pi := idx % len(pitches)
			note := pitches[pi]
			if req.Intensity > 0.7 && rng.Float64() > 0.6 {
				note += 12
			}
			if req.Intensity < 0.3 && rng.Float64() > 0.7 {
				note -= 12
			}
			if i > 0 && rng.Float64() > 0.7 && req.Intensity > 0.4 {
				prev := pitches[(pi-1+len(pitches))%len(pitches)]
				note = int(math.Round(float64(note+prev) / 2))
			}
			note = min(max(note, 0), 127)

			out = append(out, types.NoteEvent{
				Pitch:        MidiToName(note),
				MIDINote:     note,
				Duration:     d,
				StartBeat:    swing(beat, req.Swing),
				Velocity:     reference.ClampVelocity(float64(params.Velocity) * (0.8 + rng.Float64()*0.2)),
				Articulation: articulation(req.Intensity, i, len(pattern)),
			})
			beat += d
			idx++
		}
	}
	return out
}

// RhythmPattern returns the motif rhythm, or an intensity-driven pattern
// when the motif has none.
func RhythmPattern(motif types.Leitmotif, intensity float64) []float64 {
	if len(motif.Rhythm) > 0 {
		return motif.Rhythm
	}
	switch {
	case intensity > 0.8:
		return []float64{0.125, 0.125, 0.25, 0.125, 0.125, 0.125, 0.125}
	case intensity > 0.6:
		return []float64{0.25, 0.125, 0.125, 0.25, 0.25}
	case intensity > 0.4:
		return []float64{0.375, 0.125, 0.25, 0.25}
	case intensity > 0.2:
		return []float64{0.25, 0.25, 0.5}
	default:
		return []float64{0.5, 0.5, 1}
	}
}

func articulation(intensity float64, i, n int) types.Articulation {
	switch {
	case intensity > 0.7:
		if i == 0 {
			return types.ArticulationMarcato
		}
		return types.ArticulationStaccato
	case i == n-1:
		return types.ArticulationTenuto
	case intensity < 0.3:
		return types.ArticulationLegato
	default:
		return types.ArticulationNormal
	}
}

// swing moves notes on the off-beat eighth to the last triplet eighth.
func swing(beat float64, on bool) float64 {
	if !on {
		return beat
	}
	if _, frac := math.Modf(beat); math.Abs(frac-0.5) < 1e-9 {
		return beat + 1.0/6
	}
	return beat
}

func newRand(actorID string, frame int) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(actorID))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(frame)))
	s := h.Sum64()
	return rand.New(rand.NewPCG(s, s^0x9e3779b97f4a7c15))
}

// Counterpoint shadows a melody at offset semitones (an octave below when
// offset is -12) at 70% velocity.
func Counterpoint(melody []types.NoteEvent, offset int) []types.NoteEvent {
	out := make([]types.NoteEvent, len(melody))
	for i, n := range melody {
		m := min(max(n.MIDINote+offset, 0), 127)
		n.MIDINote = m
		n.Pitch = MidiToName(m)
		n.Velocity = reference.ClampVelocity(float64(n.Velocity) * 0.7)
		out[i] = n
	}
	return out
}
