package lookahead

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/observe"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/pkg/types"
)

// Lookahead is the default number of frames rendered past the cursor.
const Lookahead = 4

// Fill outcomes recorded on the lookahead pass counter.
const (
	outcomeOK    = "ok"
	outcomeNoop  = "noop"
	outcomeError = "error"
	outcomeStale = "stale"
)

// ProcessFunc renders the frame at index. The worker client's ProcessAt
// method satisfies it.
type ProcessFunc func(ctx context.Context, index int, line types.ScriptLine, trauma, entropy float64) (types.Frame, error)

// Scenario is the ordered script being played.
type Scenario interface {
	Len() int
	Line(i int) types.ScriptLine
}

// Option configures a [Filler].
type Option func(*Filler)

// WithWindow sets how many frames past the cursor are kept. Default: [Lookahead].
func WithWindow(n int) Option {
	return func(f *Filler) {
		if n > 0 {
			f.window = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Filler) { f.log = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observe.Metrics) Option {
	return func(f *Filler) { f.metrics = m }
}

// Filler keeps a [Buffer] filled ahead of the playback cursor.
type Filler struct {
	process ProcessFunc
	buf     *Buffer
	window  int
	log     *slog.Logger
	metrics *observe.Metrics

	running atomic.Bool

	mu       sync.Mutex
	scenario Scenario
	epoch    uint64
	pending  bool
	cursor   int
	trauma   float64
	entropy  float64
}

// NewFiller returns a filler that renders frames of s through process.
func NewFiller(process ProcessFunc, s Scenario, opts ...Option) *Filler {
	f := &Filler{
		process:  process,
		buf:      NewBuffer(),
		window:   Lookahead,
		log:      slog.Default(),
		scenario: s,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Buffer returns the filled buffer.
func (f *Filler) Buffer() *Buffer { return f.buf }

// SetKnobs sets the trauma and entropy used by the next pass. Frames already
// buffered keep the values they were rendered with.
func (f *Filler) SetKnobs(trauma, entropy float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trauma, f.entropy = trauma, entropy
}

// Knobs returns the current trauma and entropy.
func (f *Filler) Knobs() (trauma, entropy float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.trauma, f.entropy
}

// Reset clears the buffer. Frames from a pass already in flight are dropped.
func (f *Filler) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.epoch++
	f.pending = false
	f.buf.Clear()
}

// SetScenario swaps the scenario and resets.
func (f *Filler) SetScenario(s Scenario) {
	f.mu.Lock()
	f.scenario = s
	f.mu.Unlock()
	f.Reset()
}

// Fill renders frames up to cursor+window. When a pass is already running the
// trigger is folded into it and Fill returns nil at once. Otherwise Fill
// runs passes until no trigger is pending and returns the error of the last
// one.
func (f *Filler) Fill(ctx context.Context, cursor int) error {
	f.mu.Lock()
	f.pending = true
	f.cursor = max(cursor, 0)
	f.mu.Unlock()

	if !f.running.CompareAndSwap(false, true) {
		if f.metrics != nil {
			f.metrics.CoalescedTriggers.Add(ctx, 1)
		}
		return nil
	}
	for {
		err := f.drain(ctx)
		f.running.Store(false)

		// A trigger may have landed between the last pending check and the
		// Store above. Its CAS failed, so pick it up here.
		f.mu.Lock()
		again := f.pending
		f.mu.Unlock()
		if !again || !f.running.CompareAndSwap(false, true) {
			return err
		}
	}
}

func (f *Filler) drain(ctx context.Context) error {
	var err error
	for {
		f.mu.Lock()
		if !f.pending {
			f.mu.Unlock()
			return err
		}
		f.pending = false
		p := pass{
			epoch:    f.epoch,
			cursor:   f.cursor,
			trauma:   f.trauma,
			entropy:  f.entropy,
			scenario: f.scenario,
		}
		f.mu.Unlock()

		err = f.run(ctx, p)
	}
}

// pass is the state snapshotted at the start of one fill pass.
type pass struct {
	epoch           uint64
	cursor          int
	trauma, entropy float64
	scenario        Scenario
}

func (f *Filler) run(ctx context.Context, p pass) error {
	start := time.Now()
	if p.scenario == nil || p.scenario.Len() == 0 {
		f.record(ctx, outcomeNoop, start)
		return nil
	}
	target := min(p.cursor+f.window, p.scenario.Len()-1)
	from := f.buf.Watermark() + 1
	if from > target {
		f.record(ctx, outcomeNoop, start)
		return nil
	}

	frames := make([]types.Frame, 0, target-from+1)
	for i := from; i <= target; i++ {
		frame, err := f.process(ctx, i, p.scenario.Line(i), p.trauma, p.entropy)
		if err != nil {
			f.record(ctx, outcomeError, start)
			f.log.Warn("lookahead: pass failed", "index", i, "from", from, "target", target, "err", err)
			return fmt.Errorf("lookahead: frame %d: %w", i, err)
		}
		frames = append(frames, frame)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if p.epoch != f.epoch {
		f.record(ctx, outcomeStale, start)
		f.log.Debug("lookahead: dropping stale pass", "from", from, "target", target)
		return nil
	}
	f.buf.Merge(frames)
	f.record(ctx, outcomeOK, start)
	f.log.Debug("lookahead: filled", "from", from, "target", target, "watermark", f.buf.Watermark())
	return nil
}

func (f *Filler) record(ctx context.Context, outcome string, start time.Time) {
	if f.metrics != nil {
		f.metrics.RecordFill(ctx, outcome, time.Since(start).Seconds())
	}
}
