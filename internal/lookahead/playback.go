package lookahead

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Planet9V/mpn-conductor-standalone-sub000/pkg/types"
)

// ErrEnd is returned by [Playback.Next] past the last line.
var ErrEnd = errors.New("lookahead: end of scenario")

// ErrNotBuffered is returned when the frame under the cursor is missing
// after a fill, typically because another pass is still in flight.
var ErrNotBuffered = errors.New("lookahead: frame not buffered")

// Playback walks a cursor over a scenario, keeping the filler ahead of it.
type Playback struct {
	filler   *Filler
	scenario Scenario

	mu     sync.Mutex
	cursor int
}

// NewPlayback points f at s and returns a playback positioned at line 0.
func NewPlayback(f *Filler, s Scenario) *Playback {
	f.SetScenario(s)
	return &Playback{filler: f, scenario: s}
}

// Cursor returns the index of the next frame [Playback.Next] yields.
func (p *Playback) Cursor() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

// Seek moves the cursor and triggers a fill from there.
func (p *Playback) Seek(ctx context.Context, i int) error {
	if i < 0 || i >= p.scenario.Len() {
		return fmt.Errorf("lookahead: seek %d: out of range [0,%d)", i, p.scenario.Len())
	}
	p.mu.Lock()
	p.cursor = i
	p.mu.Unlock()
	return p.filler.Fill(ctx, i)
}

// Next returns the frame under the cursor and advances it.
func (p *Playback) Next(ctx context.Context) (types.Frame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cursor >= p.scenario.Len() {
		return types.Frame{}, ErrEnd
	}
	if err := p.filler.Fill(ctx, p.cursor); err != nil {
		return types.Frame{}, err
	}
	frame, ok := p.filler.Buffer().Frame(p.cursor)
	if !ok {
		return types.Frame{}, fmt.Errorf("%w: %d", ErrNotBuffered, p.cursor)
	}
	p.cursor++
	return frame, nil
}

// Render plays the scenario from the cursor to the end.
func (p *Playback) Render(ctx context.Context) ([]types.Frame, error) {
	frames := make([]types.Frame, 0, max(p.scenario.Len()-p.Cursor(), 0))
	for {
		frame, err := p.Next(ctx)
		if errors.Is(err, ErrEnd) {
			return frames, nil
		}
		if err != nil {
			return frames, err
		}
		frames = append(frames, frame)
	}
}
