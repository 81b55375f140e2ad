package lookahead_test

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/lookahead"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// ── Fakes ───────────────────────────────────────────────────────────────────

type lines int

func (n lines) Len() int { return int(n) }
func (n lines) Line(i int) types.ScriptLine {
	return types.ScriptLine{Speaker: "Macbeth", Text: "line " + strconv.Itoa(i)}
}

type call struct {
	index           int
	trauma, entropy float64
}

// renderer is a ProcessFunc double. failAt makes that index fail; gate, when
// set, blocks index gateAt until closed and signals entered first.
type renderer struct {
	mu     sync.Mutex
	calls  []call
	failAt int

	gateAt  int
	gate    chan struct{}
	entered chan struct{}

	inFlight, maxInFlight int
}

func newRenderer() *renderer { return &renderer{failAt: -1, gateAt: -1} }

func (r *renderer) process(ctx context.Context, index int, line types.ScriptLine, trauma, entropy float64) (types.Frame, error) {
	r.mu.Lock()
	r.calls = append(r.calls, call{index, trauma, entropy})
	r.inFlight++
	r.maxInFlight = max(r.maxInFlight, r.inFlight)
	fail := index == r.failAt
	gated := index == r.gateAt && r.gate != nil
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.inFlight--
		r.mu.Unlock()
	}()

	if gated {
		r.entered <- struct{}{}
		select {
		case <-r.gate:
		case <-ctx.Done():
			return types.Frame{}, ctx.Err()
		}
	}
	if fail {
		return types.Frame{}, errors.New("worker gone")
	}
	return types.Frame{Index: index, Timestamp: int64(index) * 4000, ScriptLine: line.Text}, nil
}

func (r *renderer) indices() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, len(r.calls))
	for i, c := range r.calls {
		out[i] = c.index
	}
	return out
}

func (r *renderer) callsSnapshot() []call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]call(nil), r.calls...)
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ── Buffer ──────────────────────────────────────────────────────────────────

func TestBuffer_Merge(t *testing.T) {
	t.Parallel()

	b := lookahead.NewBuffer()
	if b.Watermark() != -1 || b.Len() != 0 {
		t.Fatalf("empty buffer: watermark %d len %d", b.Watermark(), b.Len())
	}

	b.Merge([]types.Frame{{Index: 3, Speaker: "a"}, {Index: 1}})
	b.Merge([]types.Frame{{Index: 2}, {Index: 3, Speaker: "b"}})

	got := b.Frames()
	var idx []int
	for _, f := range got {
		idx = append(idx, f.Index)
	}
	if !equalInts(idx, []int{1, 2, 3}) {
		t.Errorf("indices = %v, want [1 2 3]", idx)
	}
	if f, ok := b.Frame(3); !ok || f.Speaker != "b" {
		t.Errorf("Frame(3) = %+v, %v; want the later frame", f, ok)
	}
	if _, ok := b.Frame(0); ok {
		t.Error("Frame(0) should be missing")
	}
	if b.Watermark() != 3 {
		t.Errorf("watermark = %d, want 3", b.Watermark())
	}

	b.Clear()
	if b.Watermark() != -1 || b.Len() != 0 {
		t.Errorf("after Clear: watermark %d len %d", b.Watermark(), b.Len())
	}
}

func TestBuffer_FramesAreImmutable(t *testing.T) {
	t.Parallel()

	in := types.Frame{
		Index: 0,
		Staves: []types.Stave{{
			ActorID:   "macbeth",
			Notes:     []types.NoteEvent{{Pitch: "D4", Velocity: 90}},
			Leitmotif: types.Leitmotif{PitchClasses: []int{2, 6, 9}},
		}},
		Harmony: types.Harmony{Voicing: []int{50, 54, 57}},
	}
	b := lookahead.NewBuffer()
	b.Merge([]types.Frame{in})

	// Writes through the caller's original must not reach the buffer.
	in.Staves[0].Notes[0].Velocity = 1

	out := b.Frames()
	out[0].Staves[0].Notes[0].Pitch = "X"
	out[0].Staves[0].Leitmotif.PitchClasses[0] = 11
	out[0].Harmony.Voicing[0] = 0

	single, _ := b.Frame(0)
	single.Staves[0].ActorID = "banquo"
	single.Staves[0].Notes[0].Velocity = 2

	got, _ := b.Frame(0)
	st := got.Staves[0]
	if st.ActorID != "macbeth" || st.Notes[0].Pitch != "D4" || st.Notes[0].Velocity != 90 {
		t.Errorf("stave changed after merge: %+v", st)
	}
	if st.Leitmotif.PitchClasses[0] != 2 || got.Harmony.Voicing[0] != 50 {
		t.Errorf("nested slices changed after merge: %v %v", st.Leitmotif.PitchClasses, got.Harmony.Voicing)
	}
}

// ── Filler ──────────────────────────────────────────────────────────────────

func TestFiller_FillsWindowSequentially(t *testing.T) {
	t.Parallel()

	r := newRenderer()
	f := lookahead.NewFiller(r.process, lines(10))

	if err := f.Fill(context.Background(), 2); err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if got := r.indices(); !equalInts(got, []int{0, 1, 2, 3, 4, 5, 6}) {
		t.Errorf("calls = %v, want 0..6", got)
	}
	if f.Buffer().Watermark() != 6 {
		t.Errorf("watermark = %d, want 6", f.Buffer().Watermark())
	}

	// Already covered.
	if err := f.Fill(context.Background(), 2); err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if n := len(r.indices()); n != 7 {
		t.Errorf("repeat fill made %d calls, want 7 total", n)
	}

	if err := f.Fill(context.Background(), 3); err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if got := r.indices(); got[len(got)-1] != 7 || len(got) != 8 {
		t.Errorf("calls = %v, want one more for index 7", got)
	}
	if r.maxInFlight != 1 {
		t.Errorf("max in flight = %d, want 1", r.maxInFlight)
	}
}

func TestFiller_ClampsToScenarioEnd(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		length    int
		cursor    int
		window    int
		watermark int
	}{
		{name: "short scenario", length: 3, cursor: 0, window: 4, watermark: 2},
		{name: "near end", length: 10, cursor: 8, window: 4, watermark: 9},
		{name: "custom window", length: 10, cursor: 0, window: 2, watermark: 2},
		{name: "negative cursor", length: 10, cursor: -5, window: 4, watermark: 4},
		{name: "empty scenario", length: 0, cursor: 0, window: 4, watermark: -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := newRenderer()
			f := lookahead.NewFiller(r.process, lines(tt.length), lookahead.WithWindow(tt.window))
			if err := f.Fill(context.Background(), tt.cursor); err != nil {
				t.Fatalf("Fill: %v", err)
			}
			if got := f.Buffer().Watermark(); got != tt.watermark {
				t.Errorf("watermark = %d, want %d", got, tt.watermark)
			}
		})
	}
}

func TestFiller_FailureDiscardsPass(t *testing.T) {
	t.Parallel()

	r := newRenderer()
	r.failAt = 2
	f := lookahead.NewFiller(r.process, lines(10))

	err := f.Fill(context.Background(), 0)
	if err == nil {
		t.Fatal("expected error")
	}
	if got := r.indices(); !equalInts(got, []int{0, 1, 2}) {
		t.Errorf("calls = %v, want the pass to stop at 2", got)
	}
	if f.Buffer().Len() != 0 || f.Buffer().Watermark() != -1 {
		t.Errorf("buffer changed: len %d watermark %d", f.Buffer().Len(), f.Buffer().Watermark())
	}

	// The next trigger retries from the unmoved watermark.
	r.mu.Lock()
	r.failAt = -1
	r.calls = nil
	r.mu.Unlock()
	if err := f.Fill(context.Background(), 0); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if got := r.indices(); !equalInts(got, []int{0, 1, 2, 3, 4}) {
		t.Errorf("retry calls = %v, want 0..4", got)
	}
}

func TestFiller_KnobsApplyToNewFramesOnly(t *testing.T) {
	t.Parallel()

	r := newRenderer()
	f := lookahead.NewFiller(r.process, lines(10))

	f.SetKnobs(0.2, 0.3)
	if err := f.Fill(context.Background(), 0); err != nil {
		t.Fatalf("Fill: %v", err)
	}
	f.SetKnobs(0.9, 0.8)
	if err := f.Fill(context.Background(), 2); err != nil {
		t.Fatalf("Fill: %v", err)
	}

	for _, c := range r.callsSnapshot() {
		want := call{c.index, 0.2, 0.3}
		if c.index > 4 {
			want = call{c.index, 0.9, 0.8}
		}
		if c != want {
			t.Errorf("call %+v, want %+v", c, want)
		}
	}
	if n := len(r.callsSnapshot()); n != 7 {
		t.Errorf("calls = %d, want 7; buffered frames are not recomputed", n)
	}
	if tr, en := f.Knobs(); tr != 0.9 || en != 0.8 {
		t.Errorf("Knobs() = %v, %v", tr, en)
	}
}

func TestFiller_CoalescesTriggers(t *testing.T) {
	t.Parallel()

	r := newRenderer()
	r.gateAt = 0
	r.gate = make(chan struct{})
	r.entered = make(chan struct{}, 1)
	f := lookahead.NewFiller(r.process, lines(20))

	done := make(chan error, 1)
	go func() { done <- f.Fill(context.Background(), 0) }()

	select {
	case <-r.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first pass never started")
	}

	// Both triggers fold into the running pass; the latest cursor wins.
	if err := f.Fill(context.Background(), 3); err != nil {
		t.Errorf("coalesced Fill returned %v", err)
	}
	if err := f.Fill(context.Background(), 5); err != nil {
		t.Errorf("coalesced Fill returned %v", err)
	}
	close(r.gate)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Fill: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("fill did not finish")
	}

	if got := r.indices(); !equalInts(got, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}) {
		t.Errorf("calls = %v, want 0..9 each once", got)
	}
	if f.Buffer().Watermark() != 9 {
		t.Errorf("watermark = %d, want 9", f.Buffer().Watermark())
	}
	if r.maxInFlight != 1 {
		t.Errorf("passes overlapped: max in flight %d", r.maxInFlight)
	}
}

func TestFiller_ResetDropsStalePass(t *testing.T) {
	t.Parallel()

	r := newRenderer()
	r.gateAt = 1
	r.gate = make(chan struct{})
	r.entered = make(chan struct{}, 1)
	f := lookahead.NewFiller(r.process, lines(10))

	done := make(chan error, 1)
	go func() { done <- f.Fill(context.Background(), 0) }()
	<-r.entered

	f.SetScenario(lines(3))
	close(r.gate)
	if err := <-done; err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if f.Buffer().Len() != 0 || f.Buffer().Watermark() != -1 {
		t.Errorf("stale frames merged: len %d watermark %d", f.Buffer().Len(), f.Buffer().Watermark())
	}

	if err := f.Fill(context.Background(), 0); err != nil {
		t.Fatalf("Fill after reset: %v", err)
	}
	if f.Buffer().Watermark() != 2 {
		t.Errorf("watermark = %d, want 2 for the new scenario", f.Buffer().Watermark())
	}
}

func TestFiller_CancelledContext(t *testing.T) {
	t.Parallel()

	r := newRenderer()
	r.gateAt = 0
	r.gate = make(chan struct{})
	r.entered = make(chan struct{}, 1)
	f := lookahead.NewFiller(r.process, lines(10))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Fill(ctx, 0) }()
	<-r.entered
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if f.Buffer().Len() != 0 {
		t.Errorf("buffer len = %d, want 0", f.Buffer().Len())
	}
}

// ── Playback ────────────────────────────────────────────────────────────────

func TestPlayback_Render(t *testing.T) {
	t.Parallel()

	r := newRenderer()
	f := lookahead.NewFiller(r.process, nil)
	p := lookahead.NewPlayback(f, lines(6))

	frames, err := p.Render(context.Background())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if len(frames) != 6 {
		t.Fatalf("frames = %d, want 6", len(frames))
	}
	for i, fr := range frames {
		if fr.Index != i || fr.Timestamp != int64(i)*4000 {
			t.Errorf("frame %d = index %d ts %d", i, fr.Index, fr.Timestamp)
		}
	}
	if got := r.indices(); !equalInts(got, []int{0, 1, 2, 3, 4, 5}) {
		t.Errorf("calls = %v, want each line once", got)
	}
	if _, err := p.Next(context.Background()); !errors.Is(err, lookahead.ErrEnd) {
		t.Errorf("Next past end: err = %v, want ErrEnd", err)
	}
}

func TestPlayback_Seek(t *testing.T) {
	t.Parallel()

	r := newRenderer()
	p := lookahead.NewPlayback(lookahead.NewFiller(r.process, nil), lines(10))

	if err := p.Seek(context.Background(), 10); err == nil {
		t.Error("seek past end should fail")
	}
	if err := p.Seek(context.Background(), 3); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	fr, err := p.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if fr.Index != 3 || p.Cursor() != 4 {
		t.Errorf("frame %d cursor %d, want 3 and 4", fr.Index, p.Cursor())
	}
}
