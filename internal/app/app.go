// Package app wires the conductor subsystems into a running server.
//
// New loads the reference table and style presets, connects the score store
// and builds the melody composer. Run serves the websocket bridge, the score
// API, the MCP endpoint and the health probes until its context ends. Config
// reloads are applied through ApplyConfig: engine knobs reach every open
// session, everything else is logged as needing a restart.
//
// For testing, inject doubles via functional options (WithStore, WithLLM).
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/aiassist"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/composer"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/config"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/leitmotif"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/observe"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/orchestrator"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/reference"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/scorestore"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/style"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/worker"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/wsbridge"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/pkg/provider/llm"
)

// App owns the subsystem lifetimes.
type App struct {
	cfg     *config.Config
	log     *slog.Logger
	level   *slog.LevelVar
	metrics *observe.Metrics
	version string

	table    *reference.Table
	styles   *style.Catalog
	llm      llm.Provider
	composer *composer.Composer
	store    scorestore.Store
	bridge   *wsbridge.Handler

	// engine holds the knobs new sessions start with.
	mu     sync.Mutex
	engine config.EngineConfig

	listening atomic.Bool
	addr      atomic.Value

	// closers are called in order by Close.
	closers   []func()
	closeOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a score store instead of creating one from config.
func WithStore(s scorestore.Store) Option {
	return func(a *App) { a.store = s }
}

// WithLLM sets the melody backend. Without one, melodies are always
// algorithmic.
func WithLLM(p llm.Provider) Option {
	return func(a *App) { a.llm = p }
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(a *App) {
		if l != nil {
			a.log = l
		}
	}
}

// WithLevel lets ApplyConfig change the log level of the handler that owns v.
func WithLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithMetrics records on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithVersion sets the version reported by the MCP endpoint.
func WithVersion(v string) Option {
	return func(a *App) { a.version = v }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App from cfg.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:     cfg,
		log:     slog.Default(),
		version: "dev",
		engine:  cfg.Engine,
	}
	for _, o := range opts {
		o(a)
	}

	var err error
	if a.table, err = LoadTable(cfg.Reference); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	if a.styles, err = LoadStyles(cfg.Styles); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a.composer = NewComposer(a.llm, cfg.Engine.AI, a.log, a.metrics)

	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	a.bridge = wsbridge.New(a.NewOrchestrator,
		wsbridge.WithOriginPatterns(cfg.Server.AllowedOrigins...),
		wsbridge.WithLogger(a.log),
		wsbridge.WithMetrics(a.metrics),
	)
	return a, nil
}

// LoadTable returns the table at cfg.Path, or the built-in one.
func LoadTable(cfg config.ReferenceConfig) (*reference.Table, error) {
	if cfg.Path == "" {
		return reference.Default(), nil
	}
	t, err := reference.LoadFile(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("load reference table: %w", err)
	}
	return t, nil
}

// LoadStyles returns the built-in presets overlaid with those at cfg.Path.
func LoadStyles(cfg config.StylesConfig) (*style.Catalog, error) {
	if cfg.Path == "" {
		return style.Default(), nil
	}
	c, err := style.LoadFile(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("load styles: %w", err)
	}
	return style.Default().Merge(c), nil
}

// NewComposer builds the melody composer. With a nil provider every melody
// is algorithmic.
func NewComposer(p llm.Provider, ai config.AIConfig, log *slog.Logger, m *observe.Metrics) *composer.Composer {
	opts := []composer.Option{composer.WithLogger(log)}
	if p != nil {
		opts = append(opts, composer.WithMelodySource(aiassist.New(p,
			aiassist.WithTimeout(ai.Timeout),
			aiassist.WithLogger(log),
			aiassist.WithMetrics(m),
		)))
	}
	if m != nil {
		opts = append(opts, composer.WithFallbackHook(func(reason string) {
			m.RecordAIFallback(context.Background(), reason)
		}))
	}
	return composer.New(opts...)
}

func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	dsn := a.cfg.Database.PostgresDSN
	if dsn == "" {
		a.store = scorestore.NewMemStore()
		return nil
	}
	pg, err := scorestore.NewPostgresStore(ctx, dsn)
	if err != nil {
		return err
	}
	a.store = pg
	a.closers = append(a.closers, pg.Close)
	return nil
}

// Store returns the score store.
func (a *App) Store() scorestore.Store { return a.store }

// Bridge returns the websocket handler.
func (a *App) Bridge() *wsbridge.Handler { return a.bridge }

// NewOrchestrator returns a fresh orchestrator configured with the current
// engine knobs.
func (a *App) NewOrchestrator() *orchestrator.Orchestrator {
	a.mu.Lock()
	eng := a.engine
	a.mu.Unlock()

	// One registry per orchestrator: connections must not share motifs.
	o := orchestrator.New(
		orchestrator.WithRegistry(leitmotif.NewRegistry()),
		orchestrator.WithTable(a.table),
		orchestrator.WithStyles(a.styles),
		orchestrator.WithComposer(a.composer),
		orchestrator.WithLogger(a.log),
		orchestrator.WithMetrics(a.metrics),
	)
	o.SetOrchestrationMode(reference.Orchestration(eng.Orchestration))
	if eng.Style != "" {
		o.SetMusicalStyle(eng.Style)
	}
	o.SetAIConfig(eng.AI.Enabled, eng.AI.Temperature)
	if len(eng.Adjustments) > 0 {
		o.UpdateAdjustments(eng.Adjustments)
	}
	o.SetVariantOverrides(eng.Variant)
	return o
}

// ─── Reload ──────────────────────────────────────────────────────────────────

// ApplyConfig applies the hot-reloadable part of new. It is the watcher
// callback.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)

	if d.LogLevelChanged && a.level != nil {
		a.level.Set(ParseLevel(d.NewLogLevel))
		a.log.Info("app: log level changed", "level", d.NewLogLevel)
	}

	if d.EngineChanged() {
		a.mu.Lock()
		a.engine = new.Engine
		a.mu.Unlock()

		var msgs []worker.Message
		if d.OrchestrationChanged {
			msgs = append(msgs, worker.SetMode{Mode: reference.Orchestration(new.Engine.Orchestration)})
		}
		if d.StyleChanged {
			msgs = append(msgs, worker.SetStyle{StyleID: new.Engine.Style})
		}
		if d.AIChanged {
			msgs = append(msgs, worker.SetAI{Enabled: new.Engine.AI.Enabled, Temperature: new.Engine.AI.Temperature})
		}
		if d.AdjustmentsChanged {
			msgs = append(msgs, worker.UpdateAdjustments{Adjustments: new.Engine.Adjustments})
		}
		if d.VariantChanged {
			msgs = append(msgs, worker.SetVariantOverrides{Variant: new.Engine.Variant})
		}
		for _, m := range msgs {
			n := a.bridge.Broadcast(m)
			a.log.Info("app: engine setting applied", "type", m.Type(), "sessions", n)
		}
	}

	if d.WindowChanged {
		a.log.Info("app: lookahead window changed; applies to the next render", "window", new.Lookahead.Window)
	}
	if len(d.RestartRequired) > 0 {
		a.log.Warn("app: configuration changes need a restart", "fields", d.RestartRequired)
	}
}

// ParseLevel maps a config log level onto slog. Unknown levels are info.
func ParseLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP on cfg.Server.ListenAddr until ctx is done, then shuts the
// server down gracefully. Extra background tasks, such as a config watcher,
// run alongside and are cancelled together with the server.
func (a *App) Run(ctx context.Context, tasks ...func(context.Context) error) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen %q: %w", a.cfg.Server.ListenAddr, err)
	}
	a.addr.Store(ln.Addr().String())

	srv := &http.Server{
		Handler:     a.Handler(),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.listening.Store(true)
		defer a.listening.Store(false)
		a.log.Info("app: listening", "addr", ln.Addr().String())

		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = srv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = srv.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("app: shutdown: %w", err)
		}
		return nil
	})
	for _, task := range tasks {
		g.Go(func() error { return task(gctx) })
	}
	return g.Wait()
}

// Addr returns the bound listen address once Run has started, or "".
func (a *App) Addr() string {
	s, _ := a.addr.Load().(string)
	return s
}

// Ready reports whether the HTTP server is accepting connections.
func (a *App) Ready() bool { return a.listening.Load() }

// Close releases the store and other resources. It is idempotent.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		for _, c := range a.closers {
			c()
		}
	})
}
