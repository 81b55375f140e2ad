// Package mcptools exposes the psychometric calculus and the leitmotif rules
// as MCP tools. The server is stateless: every call computes from its
// arguments alone and never touches a running orchestrator.
package mcptools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/calculus"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/leitmotif"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/observe"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/reference"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/pkg/types"
)

// ServerName is reported in the MCP initialize handshake.
const ServerName = "mpn-conductor"

// Tool names.
const (
	ToolComputeParams        = "compute_musical_params"
	ToolGenerateLeitmotif    = "generate_leitmotif"
	ToolSelectTransformation = "select_transformation"
	ToolRecontextualizeChord = "recontextualize_chord"
)

// Option configures [NewServer].
type Option func(*config)

type config struct {
	version string
	table   *reference.Table
	log     *slog.Logger
	metrics *observe.Metrics
}

// WithVersion sets the version reported to clients. Default: "dev".
func WithVersion(v string) Option {
	return func(c *config) {
		if v != "" {
			c.version = v
		}
	}
}

// WithTable uses t instead of the built-in reference table.
func WithTable(t *reference.Table) Option {
	return func(c *config) { c.table = t }
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.log = l
		}
	}
}

// WithMetrics records every tool call on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *config) { c.metrics = m }
}

// ── Inputs and outputs ──────────────────────────────────────────────────────

// ComputeInput is the argument of compute_musical_params.
type ComputeInput struct {
	Trauma  float64 `json:"trauma" jsonschema:"trauma level in [0,1]"`
	Entropy float64 `json:"entropy" jsonschema:"entropy level in [0,1]"`

	RSI  *types.RSI `json:"rsi,omitempty" jsonschema:"register state; derived from text when omitted"`
	Text string     `json:"text,omitempty" jsonschema:"dialogue analysed for the register state when rsi is omitted"`

	DISC      *types.DISC      `json:"disc,omitempty" jsonschema:"DISC profile of the speaker"`
	DarkTriad *types.DarkTriad `json:"darkTriad,omitempty" jsonschema:"dark triad profile of the speaker"`
	Biases    []string         `json:"biases,omitempty" jsonschema:"active cognitive biases"`

	Orchestration string            `json:"orchestration,omitempty" jsonschema:"orchestration mode such as full_orchestra or string_quartet"`
	Adjustments   types.Adjustments `json:"adjustments,omitempty" jsonschema:"reference overrides keyed by entry id"`
}

func (in ComputeInput) state() types.PsychometricState {
	st := types.PsychometricState{
		Trauma:    in.Trauma,
		Entropy:   in.Entropy,
		DISC:      in.DISC,
		DarkTriad: in.DarkTriad,
		Biases:    in.Biases,
	}
	switch {
	case in.RSI != nil:
		st.RSI = *in.RSI
	case in.Text != "":
		st.RSI = calculus.AnalyzeRSI(in.Text)
	}
	return st
}

// LeitmotifInput is the argument of generate_leitmotif.
type LeitmotifInput struct {
	Actor types.ActorProfile `json:"actor" jsonschema:"the actor to derive a motif for"`
}

// LeitmotifOutput is the result of generate_leitmotif.
type LeitmotifOutput struct {
	Leitmotif types.Leitmotif `json:"leitmotif"`

	// Notes spells the pitch classes, e.g. ["C", "E", "G"].
	Notes []string `json:"notes"`
}

// TransformInput is the argument of select_transformation.
type TransformInput struct {
	Trauma  float64   `json:"trauma" jsonschema:"trauma level in [0,1]"`
	Entropy float64   `json:"entropy" jsonschema:"entropy level in [0,1]"`
	RSI     types.RSI `json:"rsi" jsonschema:"current register state"`

	PrevRegister  string `json:"prevRegister,omitempty" jsonschema:"dominant register of the previous frame: real, symbolic or imaginary"`
	ChordRoot     string `json:"chordRoot,omitempty" jsonschema:"current harmonic root such as D"`
	PrevChordRoot string `json:"prevChordRoot,omitempty" jsonschema:"previous harmonic root"`

	Motif *types.Leitmotif `json:"motif,omitempty" jsonschema:"motif to transform; only the selection is returned when omitted"`
}

func (in TransformInput) transformContext() leitmotif.TransformContext {
	return leitmotif.TransformContext{
		Trauma:        in.Trauma,
		Entropy:       in.Entropy,
		RSI:           in.RSI,
		PrevRegister:  types.Register(strings.ToLower(in.PrevRegister)),
		ChordRoot:     in.ChordRoot,
		PrevChordRoot: in.PrevChordRoot,
	}
}

// TransformOutput is the result of select_transformation.
type TransformOutput struct {
	Transformation types.Transformation `json:"transformation"`
	Motif          *types.Leitmotif     `json:"motif,omitempty"`
}

// ChordInput is the argument of recontextualize_chord.
type ChordInput struct {
	Chord string `json:"chord" jsonschema:"chord symbol such as Cmaj7"`
	From  string `json:"from" jsonschema:"emotional pole the chord belongs to: hope, innocence or unity"`
	To    string `json:"to" jsonschema:"pole it is reread in: despair, corruption or fragmentation"`
}

// ── Server ──────────────────────────────────────────────────────────────────

// NewServer returns an MCP server with every tool registered.
func NewServer(opts ...Option) *mcp.Server {
	c := config{version: "dev", log: slog.Default()}
	for _, o := range opts {
		o(&c)
	}

	s := mcp.NewServer(&mcp.Implementation{Name: ServerName, Version: c.version}, nil)
	mcp.AddTool(s, &mcp.Tool{
		Name:        ToolComputeParams,
		Description: "Map a psychometric state onto musical parameters: tempo, key, mode, dynamics, articulation and timbre.",
	}, instrument(c, ToolComputeParams, c.compute))
	mcp.AddTool(s, &mcp.Tool{
		Name:        ToolGenerateLeitmotif,
		Description: "Derive a deterministic leitmotif from an actor's personality profile.",
	}, instrument(c, ToolGenerateLeitmotif, generate))
	mcp.AddTool(s, &mcp.Tool{
		Name:        ToolSelectTransformation,
		Description: "Choose the leitmotif transformation for a psychometric context and optionally apply it to a motif.",
	}, instrument(c, ToolSelectTransformation, transform))
	mcp.AddTool(s, &mcp.Tool{
		Name:        ToolRecontextualizeChord,
		Description: "Reharmonise a chord for an emotional shift such as hope to despair.",
	}, instrument(c, ToolRecontextualizeChord, recontextualize))
	return s
}

// Serve runs s on t until ctx is cancelled or the client disconnects.
// Cancellation is not an error.
func Serve(ctx context.Context, s *mcp.Server, t mcp.Transport) error {
	if err := s.Run(ctx, t); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcptools: serve: %w", err)
	}
	return nil
}

// instrument adapts h to the SDK handler signature and records the call.
// Errors returned by h surface to the client as tool errors.
func instrument[I, O any](c config, name string, h func(context.Context, I) (O, error)) mcp.ToolHandlerFor[I, O] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in I) (*mcp.CallToolResult, O, error) {
		start := time.Now()
		out, err := h(ctx, in)
		status := "ok"
		if err != nil {
			status = "error"
			c.log.Debug("mcptools: tool failed", "tool", name, "err", err)
		}
		if c.metrics != nil {
			c.metrics.RecordToolCall(ctx, name, status, time.Since(start).Seconds())
		}
		return nil, out, err
	}
}

func (c config) compute(_ context.Context, in ComputeInput) (types.MusicalParams, error) {
	opts := []calculus.Option{calculus.WithTable(c.table)}
	if in.Orchestration != "" {
		o := reference.Orchestration(in.Orchestration)
		if !o.IsValid() {
			return types.MusicalParams{}, fmt.Errorf("unknown orchestration %q", in.Orchestration)
		}
		opts = append(opts, calculus.WithOrchestration(o))
	}
	return calculus.Compute(in.state(), in.Adjustments, opts...), nil
}

func generate(_ context.Context, in LeitmotifInput) (LeitmotifOutput, error) {
	if in.Actor.ID == "" {
		return LeitmotifOutput{}, errors.New("actor id is required")
	}
	m := leitmotif.Generate(in.Actor)
	notes := make([]string, len(m.PitchClasses))
	for i, pc := range m.PitchClasses {
		notes[i] = types.PitchName(pc)
	}
	return LeitmotifOutput{Leitmotif: m, Notes: notes}, nil
}

func transform(_ context.Context, in TransformInput) (TransformOutput, error) {
	ctx := in.transformContext()
	switch ctx.PrevRegister {
	case "", types.RegisterReal, types.RegisterSymbolic, types.RegisterImaginary:
	default:
		return TransformOutput{}, fmt.Errorf("unknown register %q", in.PrevRegister)
	}
	out := TransformOutput{Transformation: leitmotif.Select(ctx)}
	if in.Motif != nil {
		m := leitmotif.Apply(*in.Motif, out.Transformation, ctx)
		out.Motif = &m
	}
	return out, nil
}

func recontextualize(_ context.Context, in ChordInput) (leitmotif.ChordShift, error) {
	if in.Chord == "" {
		return leitmotif.ChordShift{}, errors.New("chord is required")
	}
	return leitmotif.Recontextualize(in.Chord, in.From, in.To), nil
}
