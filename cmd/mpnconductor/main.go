// Command mpnconductor renders psychometric scores from scripted scenarios and
// serves the conductor engine over websocket, HTTP and MCP.
//
// Usage:
//
//	mpnconductor serve  [-config config.yaml]
//	mpnconductor render [-config config.yaml] -scenario macbeth.yaml [-format json|mml] [-out score.json]
//	mpnconductor mcp    [-config config.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/app"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/config"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/export"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/lookahead"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/mcptools"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/observe"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/reference"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/scenario"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/worker"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/pkg/provider/llm"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/pkg/provider/llm/anyllm"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/pkg/provider/llm/openai"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/pkg/types"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		return 2
	}
	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "serve":
		return runServe(args)
	case "render":
		return runRender(args)
	case "mcp":
		return runMCP(args)
	case "help", "-h", "-help", "--help":
		usage(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "mpnconductor: unknown command %q\n", cmd)
		usage(os.Stderr)
		return 2
	}
}

func usage(w io.Writer) {
	fmt.Fprint(w, `usage: mpnconductor <command> [flags]

commands:
  serve    run the websocket, score API and MCP server
  render   render a scenario file to a score
  mcp      serve the MCP tools over stdio

run "mpnconductor <command> -h" for the flags of a command.
`)
}

// ── serve ─────────────────────────────────────────────────────────────────────

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "path to the YAML configuration file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, ok := loadConfig(*configPath, true)
	if !ok {
		return 1
	}

	logger, level := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)
	slog.Info("mpnconductor starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics, shutdownTelemetry, err := initTelemetry(ctx, cfg.Telemetry)
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer shutdownTelemetry()

	p, err := buildLLM(cfg, logger, metrics)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	a, err := app.New(ctx, cfg,
		app.WithLLM(p),
		app.WithLogger(logger),
		app.WithLevel(level),
		app.WithMetrics(metrics),
		app.WithVersion(version),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}
	defer a.Close()

	w, err := config.NewWatcher(*configPath, a.ApplyConfig, config.WithWatcherLogger(logger))
	if err != nil {
		slog.Error("failed to watch config", "err", err)
		return 1
	}

	printStartupSummary(cfg)
	slog.Info("server ready, press Ctrl+C to shut down")

	if err := a.Run(ctx, w.Run, reloadOnHangup(w)); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── render ────────────────────────────────────────────────────────────────────

type renderFlags struct {
	config   string
	scenario string
	out      string
	format   string
	indent   bool
	id       string
	trauma   float64
	entropy  float64
	window   int
	mode     string
	style    string
	save     bool
}

func runRender(args []string) int {
	var f renderFlags
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	fs.StringVar(&f.config, "config", "", "optional YAML configuration file")
	fs.StringVar(&f.scenario, "scenario", "", "scenario YAML file to render (required)")
	fs.StringVar(&f.out, "out", "", "output file (default stdout)")
	fs.StringVar(&f.format, "format", "json", "output format: json or mml")
	fs.BoolVar(&f.indent, "indent", true, "indent JSON output")
	fs.StringVar(&f.id, "id", "", "score id (default generated)")
	fs.Float64Var(&f.trauma, "trauma", 0.5, "trauma knob for lines that do not set one")
	fs.Float64Var(&f.entropy, "entropy", 0.5, "entropy knob for lines that do not set one")
	fs.IntVar(&f.window, "window", 0, "look-ahead window (default from config)")
	fs.StringVar(&f.mode, "mode", "", "orchestration mode override")
	fs.StringVar(&f.style, "style", "", "musical style override")
	fs.BoolVar(&f.save, "save", false, "save the score to the configured store")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if f.scenario == "" && fs.NArg() == 1 {
		f.scenario = fs.Arg(0)
	}
	if f.scenario == "" {
		fmt.Fprintln(os.Stderr, "mpnconductor render: -scenario is required")
		fs.Usage()
		return 2
	}
	if f.format != "json" && f.format != "mml" {
		fmt.Fprintf(os.Stderr, "mpnconductor render: unknown format %q (want json or mml)\n", f.format)
		return 2
	}
	if f.mode != "" && !reference.Orchestration(f.mode).IsValid() {
		fmt.Fprintf(os.Stderr, "mpnconductor render: unknown orchestration mode %q\n", f.mode)
		return 2
	}

	cfg, ok := loadConfig(f.config, false)
	if !ok {
		return 1
	}
	if f.mode != "" {
		cfg.Engine.Orchestration = f.mode
	}
	if f.style != "" {
		cfg.Engine.Style = f.style
	}
	if f.window > 0 {
		cfg.Lookahead.Window = f.window
	}

	logger, _ := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := render(ctx, cfg, f, logger); err != nil {
		slog.Error("render failed", "scenario", f.scenario, "err", err)
		return 1
	}
	return 0
}

func render(ctx context.Context, cfg *config.Config, f renderFlags, logger *slog.Logger) error {
	sc, err := scenario.LoadFile(f.scenario)
	if err != nil {
		return err
	}

	metrics, shutdownTelemetry, err := initTelemetry(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer shutdownTelemetry()

	p, err := buildLLM(cfg, logger, metrics)
	if err != nil {
		return err
	}
	a, err := app.New(ctx, cfg, app.WithLLM(p), app.WithLogger(logger), app.WithMetrics(metrics))
	if err != nil {
		return err
	}
	defer a.Close()

	// The actor runs until the render is done.
	workerCtx, cancel := context.WithCancel(ctx)
	orch := a.NewOrchestrator()
	client := worker.Spawn(workerCtx, orch, worker.WithLogger(logger), worker.WithMetrics(metrics))
	defer func() {
		cancel()
		<-client.Done()
	}()

	if err := client.Init(ctx, sc.Actors); err != nil {
		return fmt.Errorf("init cast: %w", err)
	}

	process := func(ctx context.Context, i int, line types.ScriptLine, trauma, entropy float64) (types.Frame, error) {
		trauma, entropy = sc.Knobs(i, trauma, entropy)
		return client.ProcessAt(ctx, i, line, trauma, entropy)
	}
	filler := lookahead.NewFiller(process, sc,
		lookahead.WithWindow(cfg.Lookahead.Window),
		lookahead.WithLogger(logger),
		lookahead.WithMetrics(metrics),
	)
	filler.SetKnobs(f.trauma, f.entropy)

	start := time.Now()
	frames, err := lookahead.NewPlayback(filler, sc).Render(ctx)
	if err != nil {
		return fmt.Errorf("render %d/%d frames: %w", len(frames), sc.Len(), err)
	}

	score, err := export.Build(ctx,
		export.Meta{ID: f.id, Title: sc.Title, Source: sc.Source},
		sc.Actors, orch.Registry().Motifs(), frames)
	if err != nil {
		return err
	}
	slog.Info("score rendered",
		"id", score.ID,
		"frames", len(score.Frames),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)

	if f.save {
		if err := a.Store().SaveScore(ctx, score); err != nil {
			return err
		}
		slog.Info("score saved", "id", score.ID)
	}
	return writeScore(f, score)
}

func writeScore(f renderFlags, score types.Score) (err error) {
	var w io.Writer = os.Stdout
	if f.out != "" {
		file, cerr := os.Create(f.out)
		if cerr != nil {
			return fmt.Errorf("create output: %w", cerr)
		}
		defer func() {
			if cerr := file.Close(); err == nil {
				err = cerr
			}
		}()
		w = file
	}
	if f.format == "mml" {
		return export.WriteMML(w, score)
	}
	return export.WriteJSON(w, score, f.indent)
}

// ── mcp ───────────────────────────────────────────────────────────────────────

func runMCP(args []string) int {
	fs := flag.NewFlagSet("mcp", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional YAML configuration file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	cfg, ok := loadConfig(*configPath, false)
	if !ok {
		return 1
	}

	// stdout carries the protocol; logs go to stderr.
	logger, _ := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	table, err := app.LoadTable(cfg.Reference)
	if err != nil {
		slog.Error("failed to load reference table", "err", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s := mcptools.NewServer(
		mcptools.WithVersion(version),
		mcptools.WithTable(table),
		mcptools.WithLogger(logger),
	)
	if err := mcptools.Serve(ctx, s, &mcp.StdioTransport{}); err != nil {
		slog.Error("mcp server error", "err", err)
		return 1
	}
	return 0
}

// ── Config and telemetry ──────────────────────────────────────────────────────

// reloadOnHangup forces a config reload each time the process receives SIGHUP.
func reloadOnHangup(w *config.Watcher) func(context.Context) error {
	return func(ctx context.Context) error {
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-hup:
				if err := w.Reload(); err != nil {
					slog.Warn("SIGHUP reload failed, keeping previous config", "err", err)
				}
			}
		}
	}
}

// loadConfig loads path. When required is false an empty path yields the
// defaults.
func loadConfig(path string, required bool) (*config.Config, bool) {
	if path == "" && !required {
		cfg := &config.Config{}
		config.ApplyDefaults(cfg)
		return cfg, true
	}
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "mpnconductor: config file %q not found, copy configs/example.yaml to get started\n", path)
		} else {
			fmt.Fprintf(os.Stderr, "mpnconductor: %v\n", err)
		}
		return nil, false
	}
	return cfg, true
}

// initTelemetry installs the OpenTelemetry providers when metrics are
// enabled. The returned metrics are never nil.
func initTelemetry(ctx context.Context, cfg config.TelemetryConfig) (*observe.Metrics, func(), error) {
	noop := func() {}
	if !cfg.Metrics {
		return observe.DefaultMetrics(), noop, nil
	}
	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: version,
	})
	if err != nil {
		return nil, noop, fmt.Errorf("init telemetry: %w", err)
	}
	return observe.DefaultMetrics(), func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}, nil
}

// ── Provider wiring ───────────────────────────────────────────────────────────

func buildLLM(cfg *config.Config, logger *slog.Logger, m *observe.Metrics) (llm.Provider, error) {
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	p, err := app.BuildLLM(reg, cfg.Providers, logger, m)
	if err != nil {
		return nil, err
	}
	if p != nil {
		slog.Info("provider created", "kind", "llm", "name", cfg.Providers.LLM.Name, "model", p.Model(), "fallbacks", len(cfg.Providers.Fallbacks))
	}
	return p, nil
}

// anyllmBackends share the same pattern: optional APIKey plus optional BaseURL.
var anyllmBackends = []string{
	"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// registerBuiltinProviders wires the melody backend factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	for _, name := range anyllmBackends {
		reg.RegisterLLM(name, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			p, err := anyllm.New(name, entry.Model, opts...)
			if err != nil {
				return nil, err
			}
			return p, nil
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		p, err := anyllm.New("ollama", entry.Model, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	})

	// openai-compatible covers OpenRouter, LM Studio and similar gateways.
	openaiFactory := func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if referer := optString(entry.Options, "referer"); referer != "" {
			opts = append(opts, openai.WithHeader("HTTP-Referer", referer))
		}
		if title := optString(entry.Options, "title"); title != "" {
			opts = append(opts, openai.WithHeader("X-Title", title))
		}
		if d, err := time.ParseDuration(optString(entry.Options, "timeout")); err == nil && d > 0 {
			opts = append(opts, openai.WithTimeout(d))
		}
		p, err := openai.New(entry.APIKey, entry.Model, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	reg.RegisterLLM("openai", openaiFactory)
	reg.RegisterLLM("openai-compatible", openaiFactory)

	for _, name := range reg.LLMNames() {
		slog.Debug("registered provider", "kind", "llm", "name", name)
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║      MPN Conductor, startup summary   ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Melody LLM", providerLabel(cfg.Providers.LLM))
	printRow("Fallbacks", fmt.Sprint(len(cfg.Providers.Fallbacks)))
	printRow("Orchestration", cfg.Engine.Orchestration)
	printRow("Style", orDefault(cfg.Engine.Style, "(default)"))
	printRow("AI melodies", onOff(cfg.Engine.AI.Enabled))
	printRow("Look-ahead", fmt.Sprint(cfg.Lookahead.Window))
	if cfg.Database.PostgresDSN != "" {
		printRow("Score store", "postgres")
	} else {
		printRow("Score store", "memory")
	}
	printRow("Metrics", onOff(cfg.Telemetry.Metrics))
	printRow("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-14s  : %-19s ║\n", label, value)
}

func providerLabel(e config.ProviderEntry) string {
	switch {
	case e.Name == "":
		return "(not configured)"
	case e.Model != "":
		return e.Name + " / " + e.Model
	default:
		return e.Name
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// ── Logger ────────────────────────────────────────────────────────────────────

// newLogger returns a text logger on stderr whose level can be changed
// through the returned LevelVar.
func newLogger(level config.LogLevel) (*slog.Logger, *slog.LevelVar) {
	lv := new(slog.LevelVar)
	lv.Set(app.ParseLevel(level))
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lv})), lv
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}
