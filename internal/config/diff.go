package config

import "reflect"

// ConfigDiff describes what changed between two configs.
// Only fields that can be hot-reloaded are tracked; everything else needs a
// restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	OrchestrationChanged bool
	StyleChanged         bool
	VariantChanged       bool
	AdjustmentsChanged   bool
	AIChanged            bool
	WindowChanged        bool

	// RestartRequired lists changed fields that are not applied until restart.
	RestartRequired []string
}

// Empty reports whether nothing hot-reloadable changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.EngineChanged() && !d.WindowChanged
}

// EngineChanged reports whether any orchestrator knob changed.
func (d ConfigDiff) EngineChanged() bool {
	return d.OrchestrationChanged || d.StyleChanged || d.VariantChanged || d.AdjustmentsChanged || d.AIChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	oe, ne := old.Engine, new.Engine
	d.OrchestrationChanged = oe.Orchestration != ne.Orchestration
	d.StyleChanged = oe.Style != ne.Style
	d.VariantChanged = !reflect.DeepEqual(oe.Variant, ne.Variant)
	d.AdjustmentsChanged = !reflect.DeepEqual(oe.Adjustments, ne.Adjustments)
	d.AIChanged = oe.AI != ne.AI
	d.WindowChanged = old.Lookahead.Window != new.Lookahead.Window

	restart := []struct {
		field   string
		changed bool
	}{
		{"server.listen_addr", old.Server.ListenAddr != new.Server.ListenAddr},
		{"server.tls", !reflect.DeepEqual(old.Server.TLS, new.Server.TLS)},
		{"reference.path", old.Reference != new.Reference},
		{"styles.path", old.Styles != new.Styles},
		{"providers", !reflect.DeepEqual(old.Providers, new.Providers)},
		{"database.postgres_dsn", old.Database != new.Database},
		{"telemetry", old.Telemetry != new.Telemetry},
	}
	for _, r := range restart {
		if r.changed {
			d.RestartRequired = append(d.RestartRequired, r.field)
		}
	}
	return d
}
