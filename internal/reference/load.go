package reference

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile reads a YAML reference table from path.
func LoadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reference: open %q: %w", path, err)
	}
	defer f.Close()

	t, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("reference: parse %q: %w", path, err)
	}
	return t, nil
}

// Load decodes a YAML reference table from r and validates it. Sections the
// document omits (dynamic marks, palettes) are filled from the built-in
// table.
func Load(r io.Reader) (*Table, error) {
	t := &Table{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(t); err != nil {
		return nil, fmt.Errorf("reference: decode yaml: %w", err)
	}
	if len(t.Marks) == 0 {
		t.Marks = defaultMarks()
	}
	if len(t.Palettes) == 0 {
		t.Palettes = defaultPalettes()
	}
	if err := Validate(t); err != nil {
		return nil, err
	}
	if err := t.prepare(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks that t is internally consistent. It returns a joined error
// listing every problem found.
func Validate(t *Table) error {
	var errs []error

	seen := make(map[string]int, len(t.Entries))
	for i, e := range t.Entries {
		prefix := fmt.Sprintf("entries[%d]", i)
		if e.ID == "" {
			errs = append(errs, fmt.Errorf("%s.id is required", prefix))
		} else {
			if prev, ok := seen[e.ID]; ok {
				errs = append(errs, fmt.Errorf("%s.id %q is a duplicate of entries[%d]", prefix, e.ID, prev))
			}
			seen[e.ID] = i
		}
		if !e.Category.IsValid() {
			errs = append(errs, fmt.Errorf("%s.category %q is invalid", prefix, e.Category))
		}
		if e.Element == "" {
			errs = append(errs, fmt.Errorf("%s.element is required", prefix))
		}
		if _, err := ParseCondition(e.Condition); err != nil {
			errs = append(errs, fmt.Errorf("%s.condition: %w", prefix, err))
		}
		for name, r := range map[string]*Range{"bpm": e.BPM, "velocity": e.Velocity} {
			if r != nil && r.Min > r.Max {
				errs = append(errs, fmt.Errorf("%s.%s min %.1f exceeds max %.1f", prefix, name, r.Min, r.Max))
			}
		}
		if e.Velocity != nil && (e.Velocity.Min < 0 || e.Velocity.Max > 127) {
			errs = append(errs, fmt.Errorf("%s.velocity must stay within 0-127", prefix))
		}
	}

	for i, m := range t.Marks {
		if m.Label == "" {
			errs = append(errs, fmt.Errorf("dynamic_marks[%d].label is required", i))
		}
		if m.Threshold < 0 || m.Threshold > 1 {
			errs = append(errs, fmt.Errorf("dynamic_marks[%d].threshold %.2f is out of range [0, 1]", i, m.Threshold))
		}
	}

	for o, byTrait := range t.Palettes {
		if !o.IsValid() {
			errs = append(errs, fmt.Errorf("palettes: unknown orchestration %q", o))
		}
		for trait, instruments := range byTrait {
			if len(instruments) == 0 {
				errs = append(errs, fmt.Errorf("palettes.%s.%s is empty", o, trait))
			}
		}
	}

	return errors.Join(errs...)
}
