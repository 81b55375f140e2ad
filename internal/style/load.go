package style

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

type presetFile struct {
	Presets []Preset `yaml:"presets"`
}

// LoadFile reads presets from a YAML file and overlays them on the built-in
// catalog.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("style: open %q: %w", path, err)
	}
	defer f.Close()

	c, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("style: parse %q: %w", path, err)
	}
	return Default().Merge(c), nil
}

// Load decodes a YAML preset list. Unknown fields are rejected.
func Load(r io.Reader) (*Catalog, error) {
	var pf presetFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&pf); err != nil {
		return nil, fmt.Errorf("style: decode yaml: %w", err)
	}
	if err := Validate(pf.Presets); err != nil {
		return nil, err
	}
	return NewCatalog(pf.Presets...), nil
}

// Validate reports every problem in presets at once.
func Validate(presets []Preset) error {
	var errs []error
	seen := make(map[string]bool, len(presets))
	for i, p := range presets {
		prefix := fmt.Sprintf("presets[%d]", i)
		switch {
		case p.ID == "":
			errs = append(errs, fmt.Errorf("%s.id is required", prefix))
		case seen[p.ID]:
			errs = append(errs, fmt.Errorf("%s.id %q is duplicated", prefix, p.ID))
		}
		seen[p.ID] = true

		if p.Orchestration != "" && !p.Orchestration.IsValid() {
			errs = append(errs, fmt.Errorf("%s.orchestration %q is invalid", prefix, p.Orchestration))
		}
		for name, v := range map[string]float64{
			"rhythm.syncopation_weight":        p.Rhythm.Syncopation,
			"harmony.complexity":               p.Harmony.Complexity,
			"harmony.dissonance_tolerance":     p.Harmony.DissonanceTolerance,
			"texture.density":                  p.Texture.Density,
			"texture.voice_leading_strictness": p.Texture.Strictness,
		} {
			if v < 0 || v > 1 {
				errs = append(errs, fmt.Errorf("%s.%s %.2f is out of range [0, 1]", prefix, name, v))
			}
		}
		if lo, hi := p.Rhythm.TempoRange[0], p.Rhythm.TempoRange[1]; lo > hi {
			errs = append(errs, fmt.Errorf("%s.rhythm.tempo_range [%d, %d] is inverted", prefix, lo, hi))
		}
	}
	return errors.Join(errs...)
}
