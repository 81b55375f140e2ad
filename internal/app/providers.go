package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/config"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/observe"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/resilience"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/pkg/provider/llm"
)

// BuildLLM instantiates the configured melody backends. It returns nil when
// no primary is configured. With fallbacks, the backends are chained behind
// circuit breakers.
func BuildLLM(reg *config.Registry, cfg config.ProvidersConfig, log *slog.Logger, m *observe.Metrics) (llm.Provider, error) {
	if cfg.LLM.Name == "" {
		return nil, nil
	}
	primary, err := reg.CreateLLM(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("app: create llm %q: %w", cfg.LLM.Name, err)
	}
	if len(cfg.Fallbacks) == 0 {
		return primary, nil
	}

	fcfg := resilience.FallbackConfig{CircuitBreaker: resilience.CircuitBreakerConfig{
		Logger: log,
		OnStateChange: func(name string, from, to resilience.State) {
			if m != nil {
				m.RecordBreakerTransition(context.Background(), name, to.String())
			}
		},
	}}
	group := resilience.NewLLMFallback(primary, cfg.LLM.Name, fcfg)
	for i, entry := range cfg.Fallbacks {
		p, err := reg.CreateLLM(entry)
		if err != nil {
			return nil, fmt.Errorf("app: create llm fallback %d (%q): %w", i, entry.Name, err)
		}
		group.AddFallback(entry.Name, p)
	}
	return group, nil
}
