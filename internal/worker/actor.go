// Package worker hosts an [orchestrator.Orchestrator] on its own goroutine
// and exposes it through a typed mailbox.
//
// The [Actor] owns the orchestrator and its leitmotif registry exclusively;
// nothing else touches them. A [Client] is the host side: configuration
// messages are fire-and-forget, frame requests are correlated by a uuid and
// resolved through one-shot futures.
//
// The same messages travel over the wire as JSON envelopes, see [Encode]
// and [Decode].
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/observe"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/orchestrator"
)

const defaultMailboxSize = 64

// Option configures an [Actor] or a [Client].
type Option func(*options)

type options struct {
	log         *slog.Logger
	metrics     *observe.Metrics
	mailboxSize int
	newID       func() string
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithMetrics records pending and dropped responses on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithMailboxSize sets the inbox and outbox capacity. Default: 64.
func WithMailboxSize(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.mailboxSize = n
		}
	}
}

// WithIDGenerator replaces the uuid correlation id generator.
func WithIDGenerator(f func() string) Option {
	return func(o *options) {
		if f != nil {
			o.newID = f
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{log: slog.Default(), mailboxSize: defaultMailboxSize}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Actor runs one orchestrator on a single goroutine. Messages are handled
// strictly in arrival order.
type Actor struct {
	orch   *orchestrator.Orchestrator
	inbox  chan Message
	outbox chan Response
	log    *slog.Logger
}

// NewActor returns an actor for orch. Call [Actor.Run] to start it.
func NewActor(orch *orchestrator.Orchestrator, opts ...Option) *Actor {
	o := buildOptions(opts)
	return &Actor{
		orch:   orch,
		inbox:  make(chan Message, o.mailboxSize),
		outbox: make(chan Response, o.mailboxSize),
		log:    o.log,
	}
}

// Inbox is where requests are sent.
func (a *Actor) Inbox() chan<- Message { return a.inbox }

// Outbox carries responses. It is closed when Run returns.
func (a *Actor) Outbox() <-chan Response { return a.outbox }

// Run handles messages until ctx is done or the inbox is closed.
func (a *Actor) Run(ctx context.Context) error {
	defer close(a.outbox)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-a.inbox:
			if !ok {
				return nil
			}
			resp := a.handle(ctx, m)
			if resp == nil {
				continue
			}
			select {
			case a.outbox <- *resp:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// handle applies one message. Panics become ERROR responses.
func (a *Actor) handle(ctx context.Context, m Message) (resp *Response) {
	var id string
	if pf, ok := m.(ProcessFrame); ok {
		id = pf.ID
	}
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("worker: panic while handling message", "type", typeOf(m), "id", id, "panic", r)
			resp = &Response{Type: TypeError, ID: id, Err: fmt.Sprint(r)}
		}
	}()

	switch m := m.(type) {
	case Init:
		a.orch.Init(m.Actors)
		return &Response{Type: TypeInitSuccess}
	case Reset:
		a.orch.Reset()
		return &Response{Type: TypeResetSuccess}
	case SetMode:
		a.orch.SetOrchestrationMode(m.Mode)
	case SetStyle:
		a.orch.SetMusicalStyle(m.StyleID)
	case SetAI:
		a.orch.SetAIConfig(m.Enabled, m.Temperature)
	case UpdateAdjustments:
		a.orch.UpdateAdjustments(m.Adjustments)
	case SetVariantOverrides:
		a.orch.SetVariantOverrides(m.Variant)
	case JumpToFrame:
		a.orch.JumpToFrame(m.FrameIndex)
	case ProcessFrame:
		f, err := a.orch.ProcessFrame(ctx, m.Script, m.Trauma, m.Entropy)
		if err != nil {
			return &Response{Type: TypeError, ID: m.ID, Err: err.Error()}
		}
		return &Response{Type: TypeProcessSuccess, ID: m.ID, Frame: &f}
	default:
		return &Response{Type: TypeError, Err: fmt.Sprintf("unsupported message %s", typeOf(m))}
	}
	return nil
}

func typeOf(m Message) Type {
	if m == nil {
		return ""
	}
	return m.Type()
}
