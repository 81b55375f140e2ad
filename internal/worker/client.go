package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/observe"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/orchestrator"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/reference"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/pkg/types"
)

// ErrStopped is returned when the actor has stopped.
var ErrStopped = errors.New("worker: actor stopped")

// RemoteError is an ERROR response correlated to a request.
type RemoteError struct {
	ID      string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("worker: request %s failed: %s", e.ID, e.Message)
}

// Client talks to an [Actor]. All methods are safe for concurrent use.
type Client struct {
	inbox   chan<- Message
	log     *slog.Logger
	metrics *observe.Metrics
	newID   func() string

	mu      sync.Mutex
	pending map[string]chan Response
	stopped bool

	done chan struct{}
}

// NewClient starts a reader on outbox and returns a client sending to inbox.
// The reader exits when outbox is closed; pending requests then fail with
// [ErrStopped].
func NewClient(inbox chan<- Message, outbox <-chan Response, opts ...Option) *Client {
	o := buildOptions(opts)
	if o.newID == nil {
		o.newID = uuid.NewString
	}
	c := &Client{
		inbox:   inbox,
		log:     o.log,
		metrics: o.metrics,
		newID:   o.newID,
		pending: make(map[string]chan Response),
		done:    make(chan struct{}),
	}
	go c.read(outbox)
	return c
}

// Spawn runs a new actor for orch until ctx is done and returns its client.
func Spawn(ctx context.Context, orch *orchestrator.Orchestrator, opts ...Option) *Client {
	a := NewActor(orch, opts...)
	go func() { _ = a.Run(ctx) }()
	return NewClient(a.Inbox(), a.Outbox(), opts...)
}

// Done is closed once the actor's outbox has been drained and closed.
func (c *Client) Done() <-chan struct{} { return c.done }

// Pending returns the number of requests awaiting a response.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// ── Fire-and-forget ─────────────────────────────────────────────────────────

// Init registers the cast.
func (c *Client) Init(ctx context.Context, actors []types.ActorProfile) error {
	return c.send(ctx, Init{Actors: actors})
}

// Reset clears orchestrator state.
func (c *Client) Reset(ctx context.Context) error { return c.send(ctx, Reset{}) }

// SetMode switches the orchestration mode.
func (c *Client) SetMode(ctx context.Context, mode reference.Orchestration) error {
	return c.send(ctx, SetMode{Mode: mode})
}

// SetStyle selects a style preset.
func (c *Client) SetStyle(ctx context.Context, id string) error {
	return c.send(ctx, SetStyle{StyleID: id})
}

// SetAI toggles AI melody assistance.
func (c *Client) SetAI(ctx context.Context, enabled bool, temperature float64) error {
	return c.send(ctx, SetAI{Enabled: enabled, Temperature: temperature})
}

// UpdateAdjustments merges reference table overrides.
func (c *Client) UpdateAdjustments(ctx context.Context, adj types.Adjustments) error {
	return c.send(ctx, UpdateAdjustments{Adjustments: adj})
}

// SetVariantOverrides replaces the active variant.
func (c *Client) SetVariantOverrides(ctx context.Context, v types.VariantOverride) error {
	return c.send(ctx, SetVariantOverrides{Variant: v})
}

// JumpToFrame moves the frame cursor.
func (c *Client) JumpToFrame(ctx context.Context, index int) error {
	return c.send(ctx, JumpToFrame{FrameIndex: index})
}

// ── Correlated requests ─────────────────────────────────────────────────────

// ProcessFrame requests the next frame and waits for it. When ctx ends first
// the request is forgotten and a late response is dropped.
func (c *Client) ProcessFrame(ctx context.Context, line types.ScriptLine, trauma, entropy float64) (types.Frame, error) {
	id := c.newID()
	ch := make(chan Response, 1)

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return types.Frame{}, ErrStopped
	}
	c.pending[id] = ch
	c.mu.Unlock()
	c.addPending(ctx, 1)

	if err := c.send(ctx, ProcessFrame{ID: id, Script: line, Trauma: trauma, Entropy: entropy}); err != nil {
		c.forget(ctx, id)
		return types.Frame{}, err
	}

	select {
	case r, ok := <-ch:
		if !ok {
			return types.Frame{}, ErrStopped
		}
		if r.Type == TypeError {
			return types.Frame{}, &RemoteError{ID: id, Message: r.Err}
		}
		if r.Frame == nil {
			return types.Frame{}, &RemoteError{ID: id, Message: "empty frame"}
		}
		return *r.Frame, nil
	case <-ctx.Done():
		c.forget(ctx, id)
		return types.Frame{}, ctx.Err()
	}
}

// ProcessAt requests the frame at index. The jump and the request share the
// mailbox, so the frame carries index.
func (c *Client) ProcessAt(ctx context.Context, index int, line types.ScriptLine, trauma, entropy float64) (types.Frame, error) {
	if err := c.JumpToFrame(ctx, index); err != nil {
		return types.Frame{}, err
	}
	return c.ProcessFrame(ctx, line, trauma, entropy)
}

func (c *Client) send(ctx context.Context, m Message) error {
	select {
	case <-c.done:
		return ErrStopped
	default:
	}
	select {
	case c.inbox <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrStopped
	}
}

func (c *Client) forget(ctx context.Context, id string) {
	c.mu.Lock()
	_, ok := c.pending[id]
	delete(c.pending, id)
	c.mu.Unlock()
	if ok {
		c.addPending(ctx, -1)
	}
}

func (c *Client) addPending(ctx context.Context, n int64) {
	if c.metrics != nil {
		c.metrics.PendingRequests.Add(ctx, n)
	}
}

// read resolves futures until outbox closes.
func (c *Client) read(outbox <-chan Response) {
	defer close(c.done)
	ctx := context.Background()

	for r := range outbox {
		switch {
		case r.Type == TypeInitSuccess || r.Type == TypeResetSuccess:
			c.log.Debug("worker: lifecycle acknowledged", "type", r.Type)
		case r.ID == "" && r.Type == TypeError:
			c.log.Error("worker: unsolicited error", "error", r.Err)
		case r.ID == "":
			c.log.Warn("worker: response without id dropped", "type", r.Type)
		default:
			c.mu.Lock()
			ch, ok := c.pending[r.ID]
			delete(c.pending, r.ID)
			c.mu.Unlock()
			if !ok {
				c.log.Warn("worker: response for unknown request dropped", "id", r.ID, "type", r.Type)
				if c.metrics != nil {
					c.metrics.DroppedResponses.Add(ctx, 1)
				}
				continue
			}
			c.addPending(ctx, -1)
			ch <- r
		}
	}

	c.mu.Lock()
	c.stopped = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()
}
