package scenario_test

import (
	"strings"
	"testing"

	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/scenario"
)

func TestLoadFile(t *testing.T) {
	t.Parallel()

	s, err := scenario.LoadFile("testdata/macbeth.yaml")
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if s.Title != "Macbeth, Act II Scene I" || s.Len() != 4 || len(s.Actors) != 3 {
		t.Fatalf("scenario = %q, %d lines, %d actors", s.Title, s.Len(), len(s.Actors))
	}
	if s.Actors[0].DISC == nil || s.Actors[0].DISC.D != 0.9 {
		t.Errorf("actor DISC = %+v", s.Actors[0].DISC)
	}

	line := s.Line(2)
	if line.Character != "Lady Macbeth" || !strings.HasPrefix(line.Name, "That which") {
		t.Errorf("Line(2) = %+v", line)
	}
	if s.Line(3).Chord != "vii°" {
		t.Errorf("Line(3).Chord = %q", s.Line(3).Chord)
	}
	if got := s.Line(99); got.Speaker != "" || got.Text != "" {
		t.Errorf("out-of-range line = %+v", got)
	}
}

func TestKnobs(t *testing.T) {
	t.Parallel()

	s, err := scenario.LoadFile("testdata/macbeth.yaml")
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	tests := []struct {
		line                int
		trauma, entropy     float64
		wantTrauma, wantEnt float64
	}{
		{line: 1, trauma: 0.5, entropy: 0.5, wantTrauma: 0.7, wantEnt: 0.6},
		{line: 2, trauma: 0.5, entropy: 0.4, wantTrauma: 0.5, wantEnt: 0.4},
		{line: -1, trauma: 0.1, entropy: 0.2, wantTrauma: 0.1, wantEnt: 0.2},
	}
	for _, tt := range tests {
		tr, en := s.Knobs(tt.line, tt.trauma, tt.entropy)
		if tr != tt.wantTrauma || en != tt.wantEnt {
			t.Errorf("Knobs(%d) = %v, %v; want %v, %v", tt.line, tr, en, tt.wantTrauma, tt.wantEnt)
		}
	}
}

func TestLoad_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
		want []string
	}{
		{
			name: "unknown field",
			yaml: "title: x\nlines: [{text: a}]\ntempo: 90\n",
			want: []string{"field tempo not found"},
		},
		{
			name: "collects every problem",
			yaml: `
actors:
  - id: macbeth
  - id: macbeth
  - name: Nobody
lines:
  - text: a
    trauma: 1.5
`,
			want: []string{
				"title is required",
				`actors[1].id "macbeth" is a duplicate of actors[0]`,
				"actors[2].id is required",
				"lines[0].trauma 1.50 is out of range",
			},
		},
		{
			name: "no lines",
			yaml: "title: Empty\n",
			want: []string{"lines must not be empty"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := scenario.Load(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			for _, w := range tt.want {
				if !strings.Contains(err.Error(), w) {
					t.Errorf("error %q does not mention %q", err, w)
				}
			}
		})
	}
}
