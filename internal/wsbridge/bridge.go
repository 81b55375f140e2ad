// Package wsbridge serves the worker message protocol over WebSocket. Every
// connection gets its own orchestrator actor; each text frame carries one
// JSON envelope in either direction.
package wsbridge

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/observe"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/orchestrator"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/worker"
)

const defaultReadLimit = 1 << 20

// Option configures a [Handler].
type Option func(*Handler)

// WithOriginPatterns sets the host patterns accepted for cross-origin
// upgrades.
func WithOriginPatterns(patterns ...string) Option {
	return func(h *Handler) { h.origins = patterns }
}

// WithReadLimit caps the size of one inbound frame. Default: 1 MiB.
func WithReadLimit(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.readLimit = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.log = l }
}

// WithMetrics tracks open connections on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// Handler upgrades requests and bridges them to fresh actors.
type Handler struct {
	newOrch   func() *orchestrator.Orchestrator
	origins   []string
	readLimit int64
	log       *slog.Logger
	metrics   *observe.Metrics

	mu   sync.Mutex
	live map[*worker.Actor]struct{}
}

var _ http.Handler = (*Handler)(nil)

// New returns a handler that builds one orchestrator per connection with
// newOrch.
func New(newOrch func() *orchestrator.Orchestrator, opts ...Option) *Handler {
	h := &Handler{
		newOrch:   newOrch,
		readLimit: defaultReadLimit,
		log:       slog.Default(),
		live:      make(map[*worker.Actor]struct{}),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		h.log.Warn("wsbridge: accept failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	conn.SetReadLimit(h.readLimit)

	if h.metrics != nil {
		h.metrics.ActiveConnections.Add(r.Context(), 1)
		defer h.metrics.ActiveConnections.Add(context.WithoutCancel(r.Context()), -1)
	}

	log := h.log.With("remote", r.RemoteAddr)
	log.Info("wsbridge: connection opened")
	err = h.serve(r.Context(), conn, log)

	status := websocket.CloseStatus(err)
	switch {
	case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
		log.Info("wsbridge: connection closed", "status", status)
	case errors.Is(err, context.Canceled):
		log.Info("wsbridge: connection closed by server")
	default:
		log.Warn("wsbridge: connection ended", "err", err)
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

// Connections returns the number of open connections.
func (h *Handler) Connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.live)
}

// Broadcast queues msg on every open connection's actor and returns how many
// accepted it. Actors with a full mailbox are skipped.
func (h *Handler) Broadcast(msg worker.Message) int {
	h.mu.Lock()
	actors := make([]*worker.Actor, 0, len(h.live))
	for a := range h.live {
		actors = append(actors, a)
	}
	h.mu.Unlock()

	n := 0
	for _, a := range actors {
		select {
		case a.Inbox() <- msg:
			n++
		default:
			h.log.Warn("wsbridge: mailbox full, broadcast dropped", "type", msg.Type())
		}
	}
	return n
}

func (h *Handler) track(a *worker.Actor) func() {
	h.mu.Lock()
	h.live[a] = struct{}{}
	h.mu.Unlock()
	return func() {
		h.mu.Lock()
		delete(h.live, a)
		h.mu.Unlock()
	}
}

// serve runs one connection until the peer leaves or ctx ends.
func (h *Handler) serve(ctx context.Context, conn *websocket.Conn, log *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	actor := worker.NewActor(h.newOrch(), worker.WithLogger(log), worker.WithMetrics(h.metrics))
	actorDone := make(chan struct{})
	go func() {
		defer close(actorDone)
		_ = actor.Run(ctx)
	}()
	untrack := h.track(actor)
	defer untrack()

	errs := make(chan worker.Response, 8)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.write(ctx, conn, actor.Outbox(), errs, log)
	}()

	err := h.read(ctx, conn, actor, errs)
	cancel()
	<-actorDone
	<-writerDone
	return err
}

// read decodes inbound frames into the actor's mailbox. Malformed frames are
// answered with ERROR and the connection stays open.
func (h *Handler) read(ctx context.Context, conn *websocket.Conn, actor *worker.Actor, errs chan<- worker.Response) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		var msg worker.Message
		if typ != websocket.MessageText {
			err = errors.New("wsbridge: binary frames are not supported")
		} else {
			msg, err = worker.Decode(data)
		}
		if err != nil {
			resp := worker.Response{Type: worker.TypeError, Err: err.Error()}
			var de *worker.DecodeError
			if errors.As(err, &de) {
				resp.ID = de.ID
			}
			select {
			case errs <- resp:
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		select {
		case actor.Inbox() <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// write serialises actor responses and decode errors onto the socket. It
// returns when the actor's outbox closes.
func (h *Handler) write(ctx context.Context, conn *websocket.Conn, outbox <-chan worker.Response, errs <-chan worker.Response, log *slog.Logger) {
	send := func(r worker.Response) {
		data, err := worker.EncodeResponse(r)
		if err != nil {
			log.Error("wsbridge: encode response", "type", r.Type, "id", r.ID, "err", err)
			return
		}
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil && ctx.Err() == nil {
			log.Warn("wsbridge: write failed", "type", r.Type, "err", err)
		}
	}
	for {
		select {
		case r, ok := <-outbox:
			if !ok {
				return
			}
			send(r)
		case r := <-errs:
			send(r)
		}
	}
}
