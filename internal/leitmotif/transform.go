package leitmotif

import (
	"slices"
	"strings"

	"github.com/Planet9V/mpn-conductor-standalone-sub000/pkg/types"
)

// TransformContext is the state a transformation is selected from.
type TransformContext struct {
	Trauma  float64
	Entropy float64
	RSI     types.RSI

	// PrevRegister is the dominant register of the actor's previous frame,
	// or "" on its first frame.
	PrevRegister types.Register

	// ChordRoot is the current harmonic root, PrevChordRoot the previous
	// frame's. Either may be empty.
	ChordRoot     string
	PrevChordRoot string
}

func (c TransformContext) registerShifted() bool {
	return c.PrevRegister != "" && c.RSI.Dominant() != c.PrevRegister
}

func (c TransformContext) harmonyChanged() bool {
	return c.PrevChordRoot != "" && c.ChordRoot != "" && c.ChordRoot != c.PrevChordRoot
}

// Select picks the transformation for ctx. Rules are checked in order and
// the first match wins; trauma outranks entropy, and both outrank register
// and harmony changes.
func Select(ctx TransformContext) types.Transformation {
	switch {
	case ctx.Trauma > 0.8 && ctx.Entropy > 0.6:
		return types.TransformFragmented
	case ctx.Trauma > 0.8:
		return types.TransformFragmented
	case ctx.Trauma > 0.6:
		return types.TransformInverted
	case ctx.Entropy > 0.8:
		return types.TransformRetrograde
	case ctx.Entropy > 0.6:
		return types.TransformDiminished
	case ctx.registerShifted():
		return types.TransformModalShift
	case ctx.harmonyChanged():
		return types.TransformRecontextualized
	case ctx.RSI.Real > 0.6:
		return types.TransformChromaticDescent
	case ctx.RSI.Imaginary > 0.6:
		return types.TransformWholeToneAscent
	case ctx.Trauma > 0.3 && ctx.Trauma < 0.6:
		return types.TransformAugmented
	default:
		return types.TransformOriginal
	}
}

// Apply returns m transformed by t. ctx is consulted by modal_shift (target
// mode) and recontextualized (new root) only. m is never modified.
func Apply(m types.Leitmotif, t types.Transformation, ctx TransformContext) types.Leitmotif {
	out := m.Clone()
	out.Transformation = t
	if len(m.PitchClasses) == 0 {
		return out
	}
	root := m.PitchClasses[0]

	switch t {
	case types.TransformInverted:
		out.Intervals = mapInts(m.Intervals, func(iv int) int { return -iv })
		out.PitchClasses = Pitches(root, out.Intervals)
	case types.TransformRetrograde:
		slices.Reverse(out.PitchClasses)
		slices.Reverse(out.Rhythm)
		out.Intervals = intervalsOf(out.PitchClasses)
	case types.TransformRetrogradeInverted:
		out.Intervals = mapInts(m.Intervals, func(iv int) int { return -iv })
		out.PitchClasses = Pitches(root, out.Intervals)
	case types.TransformFragmented:
		out.PitchClasses = evens(m.PitchClasses)
		out.Rhythm = evens(m.Rhythm)
		out.Intervals = intervalsOf(out.PitchClasses)
	case types.TransformAugmented:
		for i := range out.Rhythm {
			out.Rhythm[i] *= 2
		}
	case types.TransformDiminished:
		for i := range out.Rhythm {
			out.Rhythm[i] /= 2
		}
	case types.TransformChromaticDescent:
		out.Intervals = mapInts(m.Intervals, func(int) int { return -1 })
		out.PitchClasses = Pitches(root, out.Intervals)
	case types.TransformWholeToneAscent:
		out.Intervals = mapInts(m.Intervals, func(int) int { return 2 })
		out.PitchClasses = Pitches(root, out.Intervals)
	case types.TransformModalShift:
		mode := ModalTransformation(ctx.RSI, ctx.Trauma)
		out.PitchClasses = recolor(m.PitchClasses, root, ModeScale(mode))
		out.Intervals = intervalsOf(out.PitchClasses)
		out.Mode = strings.ToLower(string(mode))
		out.Key = types.PitchName(root) + " " + out.Mode
	case types.TransformRecontextualized:
		newRoot, ok := types.PitchClass(ctx.ChordRoot)
		if !ok {
			break
		}
		out.PitchClasses = Pitches(newRoot, m.Intervals)
		out.Key = types.PitchName(newRoot) + " " + m.Mode
	}
	return out
}

// recolor snaps every pitch class onto the nearest degree of scale measured
// from root. Ties resolve downwards.
func recolor(pcs []int, root int, scale []int) []int {
	out := make([]int, len(pcs))
	for i, pc := range pcs {
		rel := ((pc-root)%12 + 12) % 12
		best, bestDist := 0, 12
		for _, deg := range scale {
			d := rel - deg
			if d < 0 {
				d = -d
			}
			if d > 6 {
				d = 12 - d
			}
			if d < bestDist {
				best, bestDist = deg, d
			}
		}
		out[i] = (root + best) % 12
	}
	return out
}

// intervalsOf returns the signed steps between consecutive pitch classes,
// each folded into [-6, 6].
func intervalsOf(pcs []int) []int {
	if len(pcs) < 2 {
		return nil
	}
	out := make([]int, len(pcs)-1)
	for i := 1; i < len(pcs); i++ {
		d := ((pcs[i]-pcs[i-1])%12 + 12) % 12
		if d > 6 {
			d -= 12
		}
		out[i-1] = d
	}
	return out
}

func mapInts(in []int, f func(int) int) []int {
	out := make([]int, len(in))
	for i, v := range in {
		out[i] = f(v)
	}
	return out
}

func evens[T any](in []T) []T {
	out := make([]T, 0, (len(in)+1)/2)
	for i := 0; i < len(in); i += 2 {
		out = append(out, in[i])
	}
	return out
}
