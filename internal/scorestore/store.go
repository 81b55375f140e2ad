// Package scorestore persists rendered scores and indexes their frames by a
// psychometric signature vector, so similar dramatic moments can be found
// across scores.
package scorestore

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/Planet9V/mpn-conductor-standalone-sub000/pkg/types"
)

// ErrNotFound is returned by [Store.GetScore] for an unknown id.
var ErrNotFound = errors.New("scorestore: score not found")

// SignatureDim is the length of a frame signature.
const SignatureDim = 8

// Summary is the listing view of a stored score.
type Summary struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	GeneratedAt time.Time `json:"generatedAt"`
	TotalFrames int       `json:"totalFrames"`
}

// FrameMatch is one result of a similarity search. Lower Distance is closer.
type FrameMatch struct {
	ScoreID  string      `json:"scoreId"`
	Frame    types.Frame `json:"frame"`
	Distance float64     `json:"distance"`
}

// Store persists scores. Implementations are safe for concurrent use.
type Store interface {
	// SaveScore inserts or replaces a score and all its frames.
	SaveScore(ctx context.Context, score types.Score) error

	// GetScore loads a score with its frames in index order.
	GetScore(ctx context.Context, id string) (types.Score, error)

	// ListScores returns summaries, newest first.
	ListScores(ctx context.Context) ([]Summary, error)

	// SimilarFrames returns the k stored frames whose signatures are nearest
	// to vec by Euclidean distance.
	SimilarFrames(ctx context.Context, vec []float32, k int) ([]FrameMatch, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}

// Signature is the psychometric fingerprint of a frame:
//
//	[trauma, entropy, real, symbolic, imaginary, harmonic tension, tempo/200, mean dynamic/127]
//
// Every component lies in [0, 1].
func Signature(f types.Frame) []float32 {
	var st types.StaveState
	if len(f.Staves) > 0 {
		st = f.Staves[0].State
	}
	var dyn float64
	for _, s := range f.Staves {
		dyn += float64(s.Dynamic)
	}
	if len(f.Staves) > 0 {
		dyn /= float64(len(f.Staves))
	}
	return []float32{
		unit(st.Trauma),
		unit(st.Entropy),
		unit(st.RSI.Real),
		unit(st.RSI.Symbolic),
		unit(st.RSI.Imaginary),
		unit(f.Harmony.Tension),
		unit(float64(f.Global.Tempo) / 200),
		unit(dyn / 127),
	}
}

func unit(v float64) float32 {
	if math.IsNaN(v) {
		return 0
	}
	return float32(min(max(v, 0), 1))
}
