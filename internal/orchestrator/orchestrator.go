// Package orchestrator assembles score frames. An [Orchestrator] owns the
// registered cast and the configuration knobs, and turns one script line
// plus trauma and entropy into a fully populated [types.Frame].
//
// Lifecycle:
//
//	uninitialized --Init--> ready --ProcessFrame--> processing --> ready
//	any state --Reset--> uninitialized (motifs stay in the registry)
//
// Configuration setters may be called in any state and take effect on the
// next frame.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/composer"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/leitmotif"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/observe"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/reference"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/speaker"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/style"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/pkg/types"
)

// ErrNotInitialized is returned by ProcessFrame before any actor has been
// registered.
var ErrNotInitialized = errors.New("orchestrator: no actors registered")

// FrameDurationMs is the nominal length of one frame.
const FrameDurationMs = 4000

// State is the lifecycle state of an [Orchestrator].
type State int

const (
	StateUninitialized State = iota
	StateReady
	StateProcessing
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateProcessing:
		return "processing"
	default:
		return "unknown"
	}
}

// AIConfig toggles AI melody assistance.
type AIConfig struct {
	Enabled     bool    `json:"enabled"`
	Temperature float64 `json:"temperature"`
}

// Option configures an [Orchestrator].
type Option func(*Orchestrator)

// WithRegistry injects the leitmotif registry. Without it the orchestrator
// creates its own.
func WithRegistry(r *leitmotif.Registry) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.registry = r
		}
	}
}

// WithTable replaces the built-in reference table.
func WithTable(t *reference.Table) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.table = t
		}
	}
}

// WithStyles replaces the built-in style catalog.
func WithStyles(c *style.Catalog) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.styles = c
		}
	}
}

// WithComposer sets the composer used for notes and chords.
func WithComposer(c *composer.Composer) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.composer = c
		}
	}
}

// WithResolver sets the speaker resolver.
func WithResolver(r *speaker.Resolver) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.resolver = r
		}
	}
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}

// WithMetrics records frame metrics on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// actorState is what the orchestrator remembers about an actor between
// frames.
type actorState struct {
	activation   float64
	prevRegister types.Register
	prevChord    string
}

// Orchestrator assembles score frames. All methods are safe for concurrent
// use; frames are processed one at a time.
type Orchestrator struct {
	mu sync.Mutex

	registry *leitmotif.Registry
	table    *reference.Table
	styles   *style.Catalog
	composer *composer.Composer
	resolver *speaker.Resolver
	log      *slog.Logger
	metrics  *observe.Metrics

	state      State
	cast       []types.ActorProfile
	actors     map[string]*actorState
	frameIndex int

	mode        reference.Orchestration
	style       style.Preset
	ai          AIConfig
	adjustments types.Adjustments
	variant     types.VariantOverride
}

// New returns an uninitialized orchestrator in full-orchestra mode with the
// default style.
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		table:    reference.Default(),
		styles:   style.Default(),
		resolver: speaker.New(),
		log:      slog.Default(),
		actors:   make(map[string]*actorState),
		mode:     reference.FullOrchestra,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.registry == nil {
		o.registry = leitmotif.NewRegistry()
	}
	if o.composer == nil {
		o.composer = composer.New(composer.WithLogger(o.log))
	}
	o.style, _ = o.styles.Get(style.DefaultID)
	return o
}

// ── Lifecycle ───────────────────────────────────────────────────────────────

// Init registers actors as the cast. Re-initialising a live cast removes the
// previous registrations first so motifs are derived from the new profiles.
// Actors without an id are skipped.
func (o *Orchestrator) Init(actors []types.ActorProfile) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, a := range o.cast {
		o.registry.Remove(a.ID)
	}

	cast := make([]types.ActorProfile, 0, len(actors))
	seen := make(map[string]bool, len(actors))
	for _, a := range actors {
		if a.ID == "" {
			o.log.Warn("orchestrator: skipping actor without id", "name", a.Name)
			continue
		}
		if seen[a.ID] {
			o.log.Warn("orchestrator: skipping duplicate actor", "actor", a.ID)
			continue
		}
		seen[a.ID] = true
		o.registry.GetOrCreate(a)
		cast = append(cast, a)
	}

	for id := range o.actors {
		if !seen[id] {
			delete(o.actors, id)
		}
	}
	for _, a := range cast {
		if _, ok := o.actors[a.ID]; !ok {
			o.actors[a.ID] = &actorState{}
		}
	}

	o.cast = cast
	if len(cast) == 0 {
		o.state = StateUninitialized
	} else {
		o.state = StateReady
	}
	o.log.Info("orchestrator initialised", "actors", len(cast))
}

// Reset drops the cast and all per-frame memory and rewinds to frame 0.
// Registered motifs stay in the registry, so re-initialising with the same
// actors reuses them.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cast = nil
	o.actors = make(map[string]*actorState)
	o.frameIndex = 0
	o.state = StateUninitialized
}

// State returns the lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// FrameIndex returns the index the next frame will carry.
func (o *Orchestrator) FrameIndex() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.frameIndex
}

// Cast returns a copy of the registered actors.
func (o *Orchestrator) Cast() []types.ActorProfile {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]types.ActorProfile(nil), o.cast...)
}

// Registry returns the injected leitmotif registry.
func (o *Orchestrator) Registry() *leitmotif.Registry { return o.registry }

// ── Configuration ───────────────────────────────────────────────────────────

// SetOrchestrationMode switches the ensemble. Unknown modes are ignored.
func (o *Orchestrator) SetOrchestrationMode(mode reference.Orchestration) {
	if !mode.IsValid() {
		o.log.Warn("orchestrator: ignoring unknown orchestration mode", "mode", string(mode))
		return
	}
	o.mu.Lock()
	o.mode = mode
	o.mu.Unlock()
}

// SetMusicalStyle selects a style preset by id. Unknown ids are ignored.
func (o *Orchestrator) SetMusicalStyle(id string) {
	p, ok := o.styles.Get(id)
	if !ok {
		o.log.Warn("orchestrator: ignoring unknown style", "style", id)
		return
	}
	o.mu.Lock()
	o.style = p
	o.mu.Unlock()
}

// SetAIConfig toggles AI melody assistance.
func (o *Orchestrator) SetAIConfig(enabled bool, temperature float64) {
	o.mu.Lock()
	o.ai = AIConfig{Enabled: enabled, Temperature: temperature}
	o.mu.Unlock()
}

// UpdateAdjustments merges adj into the active adjustments by entry id.
func (o *Orchestrator) UpdateAdjustments(adj types.Adjustments) {
	o.mu.Lock()
	o.adjustments = o.adjustments.Merge(adj)
	o.mu.Unlock()
}

// SetVariantOverrides replaces the active variant.
func (o *Orchestrator) SetVariantOverrides(v types.VariantOverride) {
	o.mu.Lock()
	o.variant = v
	o.mu.Unlock()
}

// JumpToFrame sets the index of the next frame. Negative indices are ignored.
func (o *Orchestrator) JumpToFrame(index int) {
	if index < 0 {
		return
	}
	o.mu.Lock()
	o.frameIndex = index
	o.mu.Unlock()
}

// Config is a snapshot of the configuration knobs.
type Config struct {
	Mode        reference.Orchestration `json:"mode"`
	StyleID     string                  `json:"styleId"`
	AI          AIConfig                `json:"ai"`
	Adjustments types.Adjustments       `json:"adjustments,omitempty"`
	Variant     types.VariantOverride   `json:"variant"`
}

// Config returns the current configuration.
func (o *Orchestrator) Config() Config {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Config{
		Mode:        o.mode,
		StyleID:     o.style.ID,
		AI:          o.ai,
		Adjustments: o.adjustments.Merge(nil),
		Variant:     o.variant,
	}
}

// ProcessFrame assembles the next frame. It fails only before Init or when
// ctx is done.
func (o *Orchestrator) ProcessFrame(ctx context.Context, line types.ScriptLine, trauma, entropy float64) (types.Frame, error) {
	if err := ctx.Err(); err != nil {
		return types.Frame{}, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == StateUninitialized || len(o.cast) == 0 {
		return types.Frame{}, ErrNotInitialized
	}
	o.state = StateProcessing
	defer func() { o.state = StateReady }()

	return o.assemble(ctx, line, trauma, entropy), nil
}
