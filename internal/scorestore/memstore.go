package scorestore

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/Planet9V/mpn-conductor-standalone-sub000/pkg/types"
)

var _ Store = (*MemStore)(nil)

// MemStore is an in-process [Store]. Scores are copied through JSON on save
// and load.
type MemStore struct {
	mu     sync.RWMutex
	scores map[string][]byte
	index  []indexedFrame
}

type indexedFrame struct {
	scoreID   string
	frame     types.Frame
	signature []float32
}

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{scores: make(map[string][]byte)}
}

// SaveScore implements [Store].
func (m *MemStore) SaveScore(_ context.Context, score types.Score) error {
	if score.ID == "" {
		return fmt.Errorf("scorestore: save: score id is required")
	}
	data, err := json.Marshal(score)
	if err != nil {
		return fmt.Errorf("scorestore: save %q: %w", score.ID, err)
	}
	var copied types.Score
	if err := json.Unmarshal(data, &copied); err != nil {
		return fmt.Errorf("scorestore: save %q: %w", score.ID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.scores[score.ID] = data
	m.index = slices.DeleteFunc(m.index, func(f indexedFrame) bool { return f.scoreID == score.ID })
	for _, f := range copied.Frames {
		m.index = append(m.index, indexedFrame{scoreID: score.ID, frame: f, signature: Signature(f)})
	}
	return nil
}

// GetScore implements [Store].
func (m *MemStore) GetScore(_ context.Context, id string) (types.Score, error) {
	m.mu.RLock()
	data, ok := m.scores[id]
	m.mu.RUnlock()
	if !ok {
		return types.Score{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	var s types.Score
	if err := json.Unmarshal(data, &s); err != nil {
		return types.Score{}, fmt.Errorf("scorestore: get %q: %w", id, err)
	}
	slices.SortFunc(s.Frames, func(a, b types.Frame) int { return cmp.Compare(a.Index, b.Index) })
	return s, nil
}

// ListScores implements [Store].
func (m *MemStore) ListScores(ctx context.Context) ([]Summary, error) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.scores))
	for id := range m.scores {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	out := make([]Summary, 0, len(ids))
	for _, id := range ids {
		s, err := m.GetScore(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, Summary{ID: s.ID, Title: s.Title, GeneratedAt: s.GeneratedAt, TotalFrames: len(s.Frames)})
	}
	slices.SortFunc(out, func(a, b Summary) int {
		if c := b.GeneratedAt.Compare(a.GeneratedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

// SimilarFrames implements [Store] with a linear scan.
func (m *MemStore) SimilarFrames(_ context.Context, vec []float32, k int) ([]FrameMatch, error) {
	if len(vec) != SignatureDim {
		return nil, fmt.Errorf("scorestore: similar frames: vector has %d dimensions, want %d", len(vec), SignatureDim)
	}
	if k <= 0 {
		return []FrameMatch{}, nil
	}

	m.mu.RLock()
	matches := make([]FrameMatch, 0, len(m.index))
	for _, f := range m.index {
		matches = append(matches, FrameMatch{ScoreID: f.scoreID, Frame: f.frame, Distance: euclidean(vec, f.signature)})
	}
	m.mu.RUnlock()

	slices.SortStableFunc(matches, func(a, b FrameMatch) int { return cmp.Compare(a.Distance, b.Distance) })
	return matches[:min(k, len(matches))], nil
}

// Ping implements [Store].
func (m *MemStore) Ping(context.Context) error { return nil }

func euclidean(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
