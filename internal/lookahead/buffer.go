// Package lookahead keeps a window of rendered frames ahead of the playback
// cursor.
//
// A [Filler] requests frames one at a time through a [ProcessFunc] and
// merges each successful pass into a [Buffer]. Only one pass runs at a time;
// triggers arriving mid-pass are coalesced into one follow-up pass that uses
// the latest cursor.
package lookahead

import (
	"slices"
	"sync"

	"github.com/Planet9V/mpn-conductor-standalone-sub000/pkg/types"
)

// Buffer is an index-sorted set of frames with unique indices. Frames are
// deep-copied on the way in and out, so a buffered frame never changes once
// merged. It is safe for concurrent use.
type Buffer struct {
	mu        sync.RWMutex
	frames    []types.Frame
	watermark int
}

// NewBuffer returns an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{watermark: -1}
}

// Merge adds frames. A frame whose index is already buffered supersedes the
// old one. The watermark moves to the highest index seen.
func (b *Buffer) Merge(frames []types.Frame) {
	if len(frames) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	byIndex := make(map[int]types.Frame, len(b.frames)+len(frames))
	for _, f := range b.frames {
		byIndex[f.Index] = f
	}
	for _, f := range frames {
		byIndex[f.Index] = f.Clone()
	}

	merged := make([]types.Frame, 0, len(byIndex))
	for _, f := range byIndex {
		merged = append(merged, f)
	}
	slices.SortFunc(merged, func(a, b types.Frame) int { return a.Index - b.Index })
	b.frames = merged
	if last := merged[len(merged)-1].Index; last > b.watermark {
		b.watermark = last
	}
}

// Frame returns the frame with index i.
func (b *Buffer) Frame(i int) (types.Frame, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n, found := slices.BinarySearchFunc(b.frames, i, func(f types.Frame, i int) int { return f.Index - i })
	if !found {
		return types.Frame{}, false
	}
	return b.frames[n].Clone(), true
}

// Frames returns a deep copy of all buffered frames in index order.
func (b *Buffer) Frames() []types.Frame {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]types.Frame, len(b.frames))
	for i, f := range b.frames {
		out[i] = f.Clone()
	}
	return out
}

// Watermark is the highest buffered index, or -1 when empty.
func (b *Buffer) Watermark() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.watermark
}

// Len returns the number of buffered frames.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.frames)
}

// Clear drops every frame and resets the watermark.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frames = nil
	b.watermark = -1
}
