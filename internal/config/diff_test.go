package config_test

import (
	"slices"
	"testing"

	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/config"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/pkg/types"
)

func baseConfig() *config.Config {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Engine.Adjustments = types.Adjustments{"rhythm-006": {ID: "rhythm-006", Tempo: 80}}
	return cfg
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	d := config.Diff(baseConfig(), baseConfig())
	if !d.Empty() {
		t.Errorf("diff = %+v, want empty", d)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("restart required = %v", d.RestartRequired)
	}
}

func TestDiff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Config)
		check  func(config.ConfigDiff) bool
	}{
		{
			name:   "log level",
			mutate: func(c *config.Config) { c.Server.LogLevel = config.LogDebug },
			check: func(d config.ConfigDiff) bool {
				return d.LogLevelChanged && d.NewLogLevel == config.LogDebug && !d.EngineChanged()
			},
		},
		{
			name:   "orchestration",
			mutate: func(c *config.Config) { c.Engine.Orchestration = "string_quartet" },
			check:  func(d config.ConfigDiff) bool { return d.OrchestrationChanged && d.EngineChanged() },
		},
		{
			name:   "style",
			mutate: func(c *config.Config) { c.Engine.Style = "baroque" },
			check:  func(d config.ConfigDiff) bool { return d.StyleChanged && !d.OrchestrationChanged },
		},
		{
			name: "variant",
			mutate: func(c *config.Config) {
				c.Engine.Variant = types.VariantOverride{ID: "v2"}
			},
			check: func(d config.ConfigDiff) bool { return d.VariantChanged },
		},
		{
			name: "adjustment value",
			mutate: func(c *config.Config) {
				c.Engine.Adjustments = types.Adjustments{"rhythm-006": {ID: "rhythm-006", Tempo: 96}}
			},
			check: func(d config.ConfigDiff) bool { return d.AdjustmentsChanged },
		},
		{
			name:   "ai",
			mutate: func(c *config.Config) { c.Engine.AI.Temperature = 1.1 },
			check:  func(d config.ConfigDiff) bool { return d.AIChanged },
		},
		{
			name:   "window",
			mutate: func(c *config.Config) { c.Lookahead.Window = 8 },
			check:  func(d config.ConfigDiff) bool { return d.WindowChanged && !d.EngineChanged() },
		},
		{
			name:   "listen address needs restart",
			mutate: func(c *config.Config) { c.Server.ListenAddr = ":9999" },
			check: func(d config.ConfigDiff) bool {
				return d.Empty() && slices.Equal(d.RestartRequired, []string{"server.listen_addr"})
			},
		},
		{
			name:   "provider needs restart",
			mutate: func(c *config.Config) { c.Providers.LLM.Model = "gpt-4o" },
			check: func(d config.ConfigDiff) bool {
				return slices.Equal(d.RestartRequired, []string{"providers"})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			old, new := baseConfig(), baseConfig()
			tt.mutate(new)
			if d := config.Diff(old, new); !tt.check(d) {
				t.Errorf("unexpected diff: %+v", d)
			}
		})
	}
}
