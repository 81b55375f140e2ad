package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/lookahead"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/reference"
)

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr      = ":8080"
	DefaultShutdownTimeout = 10 * time.Second
	DefaultAITimeout       = 8 * time.Second
	DefaultServiceName     = "mpn-conductor"
)

// ValidLLMNames lists known LLM provider names. Used by [Validate] to warn
// about unrecognised names.
var ValidLLMNames = []string{
	"openai", "openai-compatible", "anthropic", "ollama", "gemini",
	"deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// Load reads the YAML configuration file at path, fills defaults and
// returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills every unset field that has a default.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Engine.Orchestration == "" {
		cfg.Engine.Orchestration = string(reference.FullOrchestra)
	}
	if cfg.Engine.AI.Timeout == 0 {
		cfg.Engine.AI.Timeout = DefaultAITimeout
	}
	if cfg.Lookahead.Window == 0 {
		cfg.Lookahead.Window = lookahead.Lookahead
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = DefaultServiceName
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout %s must not be negative", cfg.Server.ShutdownTimeout))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Engine
	if o := cfg.Engine.Orchestration; o != "" && !reference.Orchestration(o).IsValid() {
		errs = append(errs, fmt.Errorf("engine.orchestration %q is invalid", o))
	}
	if t := cfg.Engine.AI.Temperature; t < 0 || t > 2 {
		errs = append(errs, fmt.Errorf("engine.ai.temperature %.2f is out of range [0, 2]", t))
	}
	if cfg.Engine.AI.Timeout < 0 {
		errs = append(errs, fmt.Errorf("engine.ai.timeout %s must not be negative", cfg.Engine.AI.Timeout))
	}
	for id, adj := range cfg.Engine.Adjustments {
		if adj.ID != "" && adj.ID != id {
			errs = append(errs, fmt.Errorf("engine.adjustments[%s].id %q does not match its key", id, adj.ID))
		}
		if adj.Humanization < 0 || adj.Humanization > 1 {
			errs = append(errs, fmt.Errorf("engine.adjustments[%s].humanization %.2f is out of range [0, 1]", id, adj.Humanization))
		}
	}

	// Lookahead
	if cfg.Lookahead.Window < 0 {
		errs = append(errs, fmt.Errorf("lookahead.window %d must not be negative", cfg.Lookahead.Window))
	}

	// Providers
	if cfg.Engine.AI.Enabled && cfg.Providers.LLM.Name == "" {
		slog.Warn("engine.ai.enabled is set but providers.llm is not configured; melodies will be generated algorithmically")
	}
	validateProviderName("providers.llm", cfg.Providers.LLM.Name)
	for i, fb := range cfg.Providers.Fallbacks {
		prefix := fmt.Sprintf("providers.fallbacks[%d]", i)
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		validateProviderName(prefix, fb.Name)
	}
	if len(cfg.Providers.Fallbacks) > 0 && cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.fallbacks requires providers.llm"))
	}

	// Database
	if cfg.Database.PostgresDSN == "" {
		slog.Debug("database.postgres_dsn is empty; scores are kept in memory")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not in
// [ValidLLMNames].
func validateProviderName(field, name string) {
	if name == "" || slices.Contains(ValidLLMNames, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"field", field,
		"name", name,
		"known", ValidLLMNames,
	)
}
