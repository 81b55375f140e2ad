package aiassist_test

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/aiassist"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/composer"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/resilience"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/pkg/provider/llm"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/pkg/provider/llm/mock"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/pkg/types"
)

func prompt() composer.Prompt {
	return composer.Prompt{
		Trauma:      0.85,
		Entropy:     0.4,
		Bias:        "confirmation",
		RSI:         types.RSI{Real: 0.7, Symbolic: 0.2, Imaginary: 0.1},
		Key:         "D Minor",
		Mode:        "aeolian",
		Chord:       "Dminor7",
		Instrument:  "cello",
		Temperature: 0.9,
	}
}

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		content   string
		want      []composer.Note
		reasoning string
		wantErr   bool
	}{
		{
			name:      "plain",
			content:   `{"notes":[{"pitch":"C4","duration":1,"velocity":0.5}],"reasoning":"calm"}`,
			want:      []composer.Note{{Pitch: "C4", Duration: 1, Velocity: 64}},
			reasoning: "calm",
		},
		{
			name:    "fenced",
			content: "```json\n{\"notes\":[{\"pitch\":\"E4\",\"duration\":0.5,\"velocity\":1}]}\n```",
			want:    []composer.Note{{Pitch: "E4", Duration: 0.5, Velocity: 127}},
		},
		{
			name:    "prose around",
			content: "Here you go: {\"notes\":[{\"pitch\":\"G3\",\"duration\":2,\"velocity\":90}]} enjoy",
			want:    []composer.Note{{Pitch: "G3", Duration: 2, Velocity: 90}},
		},
		{
			name:    "drops unplayable",
			content: `{"notes":[{"pitch":"","duration":1},{"pitch":"A4","duration":0},{"pitch":"B4","duration":1,"velocity":300}]}`,
			want:    []composer.Note{{Pitch: "B4", Duration: 1, Velocity: 127}},
		},
		{name: "no json", content: "I cannot help with that", wantErr: true},
		{name: "broken json", content: `{"notes": [}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, reasoning, err := aiassist.Parse(tt.content)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("notes = %+v, want %+v", got, tt.want)
			}
			if reasoning != tt.reasoning {
				t.Errorf("reasoning = %q, want %q", reasoning, tt.reasoning)
			}
		})
	}
}

func TestParse_NoJSONSentinel(t *testing.T) {
	t.Parallel()

	if _, _, err := aiassist.Parse("nothing"); !errors.Is(err, aiassist.ErrNoJSON) {
		t.Errorf("err = %v, want ErrNoJSON", err)
	}
}

func TestBuildRequest(t *testing.T) {
	t.Parallel()

	req, err := aiassist.BuildRequest(prompt(), 500)
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}
	if req.SystemPrompt == "" || !strings.Contains(req.SystemPrompt, "JSON") {
		t.Error("system prompt should ask for JSON")
	}
	if req.Temperature != 0.9 || req.MaxTokens != 500 {
		t.Errorf("temperature/max tokens = %v/%d", req.Temperature, req.MaxTokens)
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != llm.RoleUser {
		t.Fatalf("messages = %+v", req.Messages)
	}

	var body map[string]map[string]any
	if err := json.Unmarshal([]byte(req.Messages[0].Content), &body); err != nil {
		t.Fatalf("user message is not JSON: %v", err)
	}
	if body["psychometrics"]["cognitiveBias"] != "confirmation" {
		t.Errorf("bias = %v", body["psychometrics"]["cognitiveBias"])
	}
	if body["musicalContext"]["currentChord"] != "Dminor7" {
		t.Errorf("chord = %v", body["musicalContext"]["currentChord"])
	}
}

func TestSource_Melody(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{
		ModelName: "test-model",
		Response:  &llm.CompletionResponse{Content: `{"notes":[{"pitch":"D4","duration":1,"velocity":0.8},{"pitch":"F4","duration":1,"velocity":0.8}]}`},
	}
	notes, err := aiassist.New(p).Melody(context.Background(), prompt())
	if err != nil {
		t.Fatalf("Melody: %v", err)
	}
	if len(notes) != 2 || notes[0].Pitch != "D4" || notes[0].Velocity != 102 {
		t.Errorf("notes = %+v", notes)
	}
	if p.CallCount() != 1 {
		t.Errorf("calls = %d, want 1", p.CallCount())
	}
	if _, ok := p.Calls[0].Ctx.Deadline(); !ok {
		t.Error("request context has no deadline")
	}
}

func TestSource_ProviderError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	_, err := aiassist.New(&mock.Provider{Err: boom}).Melody(context.Background(), prompt())
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapping boom", err)
	}
}

func TestSource_FailsOverAndFeedsComposer(t *testing.T) {
	t.Parallel()

	primary := &mock.Provider{ModelName: "primary", Err: errors.New("down")}
	backup := &mock.Provider{
		ModelName: "backup",
		Response:  &llm.CompletionResponse{Content: `{"notes":[{"pitch":"A4","duration":2,"velocity":0.5}]}`},
	}
	fb := resilience.NewLLMFallback(primary, "primary", resilience.FallbackConfig{})
	fb.AddFallback("backup", backup)

	c := composer.New(composer.WithMelodySource(aiassist.New(fb)))
	notes := c.ComposeMelody(context.Background(), types.Leitmotif{Instrument: "cello"},
		types.MusicalParams{Velocity: 80, Articulation: types.ArticulationLegato},
		composer.MelodyRequest{ActorID: "macbeth", Duration: 4, AI: &composer.AIRequest{Temperature: 0.7}})

	want := []types.NoteEvent{{Pitch: "A4", MIDINote: 69, Duration: 2, Velocity: 64, Articulation: types.ArticulationLegato}}
	if !reflect.DeepEqual(notes, want) {
		t.Errorf("notes = %+v, want %+v", notes, want)
	}
	if primary.CallCount() != 1 || backup.CallCount() != 1 {
		t.Errorf("calls primary/backup = %d/%d, want 1/1", primary.CallCount(), backup.CallCount())
	}
}
