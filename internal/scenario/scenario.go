// Package scenario loads the scripts the conductor plays: a cast of actor
// profiles plus an ordered list of dialogue lines.
//
// Scenarios are YAML documents:
//
//	id: macbeth_dagger
//	title: Macbeth, Act II Scene I
//	author: William Shakespeare
//	actors:
//	  - id: macbeth
//	    name: Macbeth
//	    disc: {D: 0.9, I: 0.3, S: 0.1, C: 0.4}
//	lines:
//	  - speaker: Macbeth
//	    text: Is this a dagger which I see before me
//	    trauma: 0.7
//	    entropy: 0.6
package scenario

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Planet9V/mpn-conductor-standalone-sub000/pkg/types"
)

// Line is one beat of a scenario. Trauma and Entropy are optional per-line
// knob values; nil means "use the playback knobs".
type Line struct {
	types.ScriptLine `yaml:",inline"`

	Description string   `yaml:"description,omitempty"`
	Trauma      *float64 `yaml:"trauma,omitempty"`
	Entropy     *float64 `yaml:"entropy,omitempty"`
}

// Scenario is a loaded script.
type Scenario struct {
	ID     string               `yaml:"id"`
	Title  string               `yaml:"title"`
	Author string               `yaml:"author,omitempty"`
	Source string               `yaml:"source,omitempty"`
	Actors []types.ActorProfile `yaml:"actors"`
	Lines  []Line               `yaml:"lines"`
}

// LoadFile reads and validates the scenario at path.
func LoadFile(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("scenario: open %q: %w", path, err)
	}
	defer f.Close()

	s, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("scenario: parse %q: %w", path, err)
	}
	return s, nil
}

// Load decodes a scenario from r and validates it.
func Load(r io.Reader) (*Scenario, error) {
	s := &Scenario{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(s); err != nil {
		return nil, fmt.Errorf("scenario: decode yaml: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate reports every problem with s as one joined error.
func (s *Scenario) Validate() error {
	var errs []error
	if s.Title == "" {
		errs = append(errs, errors.New("title is required"))
	}
	if len(s.Lines) == 0 {
		errs = append(errs, errors.New("lines must not be empty"))
	}

	seen := make(map[string]int, len(s.Actors))
	for i, a := range s.Actors {
		if a.ID == "" {
			errs = append(errs, fmt.Errorf("actors[%d].id is required", i))
			continue
		}
		if prev, ok := seen[a.ID]; ok {
			errs = append(errs, fmt.Errorf("actors[%d].id %q is a duplicate of actors[%d]", i, a.ID, prev))
		}
		seen[a.ID] = i
	}

	for i, l := range s.Lines {
		for name, v := range map[string]*float64{"trauma": l.Trauma, "entropy": l.Entropy} {
			if v != nil && (*v < 0 || *v > 1) {
				errs = append(errs, fmt.Errorf("lines[%d].%s %.2f is out of range [0, 1]", i, name, *v))
			}
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of lines.
func (s *Scenario) Len() int { return len(s.Lines) }

// Line returns the script of line i, or an empty line when i is out of
// range.
func (s *Scenario) Line(i int) types.ScriptLine {
	if i < 0 || i >= len(s.Lines) {
		return types.ScriptLine{}
	}
	return s.Lines[i].ScriptLine
}

// Knobs returns the per-line trauma and entropy of line i, falling back to
// the given defaults for values the line leaves unset.
func (s *Scenario) Knobs(i int, trauma, entropy float64) (float64, float64) {
	if i < 0 || i >= len(s.Lines) {
		return trauma, entropy
	}
	l := s.Lines[i]
	if l.Trauma != nil {
		trauma = *l.Trauma
	}
	if l.Entropy != nil {
		entropy = *l.Entropy
	}
	return trauma, entropy
}
