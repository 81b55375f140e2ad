// Package aiassist proposes lead melodies through a language model. It
// implements [composer.MelodySource] on top of any [llm.Provider]; wrap the
// provider in a [resilience.LLMFallback] to fail over between backends.
//
// The model is asked for JSON only. Replies wrapped in markdown fences or
// surrounded by prose are tolerated.
package aiassist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/composer"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/observe"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/pkg/provider/llm"
)

const (
	defaultMaxTokens = 1000
	defaultTimeout   = 10 * time.Second
)

// ErrNoJSON is returned when a reply contains no JSON object.
var ErrNoJSON = errors.New("aiassist: reply contains no JSON object")

const systemPrompt = `You are a composer working in Musical Psychometric Notation.

Write a short melody for the psychometric state you are given. Lacanian
registers (Real, Symbolic, Imaginary) map to neo-Riemannian motion.

Reply with JSON only:
{
  "notes": [ { "pitch": "NoteName+Octave", "duration": beats, "velocity": 0.0-1.0 } ],
  "reasoning": "one sentence"
}

Rules:
- High trauma (>0.8): parallel transformations, erratic rhythm, tritone tension.
- High entropy: relative motion, irregular intervals.
- High Symbolic: leading-tone exchange, structured motivic patterns.
- High Real: dissonance, unresolved suspensions.
- High Imaginary: consonance, major-mode bias.`

// Option configures a [Source].
type Option func(*Source)

// WithMaxTokens caps the reply length. Default: 1000.
func WithMaxTokens(n int) Option {
	return func(s *Source) {
		if n > 0 {
			s.maxTokens = n
		}
	}
}

// WithTimeout bounds each request. Default: 10s.
func WithTimeout(d time.Duration) Option {
	return func(s *Source) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(s *Source) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics records request latency on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Source) { s.metrics = m }
}

// Source asks an LLM for melodies.
type Source struct {
	provider  llm.Provider
	maxTokens int
	timeout   time.Duration
	log       *slog.Logger
	metrics   *observe.Metrics
}

var _ composer.MelodySource = (*Source)(nil)

// New returns a Source backed by p.
func New(p llm.Provider, opts ...Option) *Source {
	s := &Source{
		provider:  p,
		maxTokens: defaultMaxTokens,
		timeout:   defaultTimeout,
		log:       slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Melody implements [composer.MelodySource].
func (s *Source) Melody(ctx context.Context, p composer.Prompt) ([]composer.Note, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	ctx, span := observe.StartSpan(ctx, "aiassist.Melody")
	defer span.End()

	req, err := BuildRequest(p, s.maxTokens)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := s.provider.Complete(ctx, req)
	if s.metrics != nil {
		s.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		return nil, fmt.Errorf("aiassist: complete: %w", err)
	}
	if resp == nil {
		return nil, fmt.Errorf("aiassist: complete: nil response")
	}

	notes, reasoning, err := Parse(resp.Content)
	if err != nil {
		return nil, err
	}
	observe.Logger(ctx).Debug("ai melody",
		"model", s.provider.Model(),
		"notes", len(notes),
		"reasoning", reasoning,
		"tokens", resp.Usage.TotalTokens,
	)
	return notes, nil
}

type promptBody struct {
	Psychometrics struct {
		Trauma        float64 `json:"trauma"`
		Entropy       float64 `json:"entropy"`
		CognitiveBias string  `json:"cognitiveBias"`
		RSI           struct {
			Real      float64 `json:"real"`
			Symbolic  float64 `json:"symbolic"`
			Imaginary float64 `json:"imaginary"`
		} `json:"rsi"`
	} `json:"psychometrics"`
	MusicalContext struct {
		Key          string `json:"key"`
		Mode         string `json:"mode"`
		CurrentChord string `json:"currentChord"`
		Instrument   string `json:"instrument"`
	} `json:"musicalContext"`
}

// BuildRequest renders p as a completion request.
func BuildRequest(p composer.Prompt, maxTokens int) (llm.CompletionRequest, error) {
	var body promptBody
	body.Psychometrics.Trauma = p.Trauma
	body.Psychometrics.Entropy = p.Entropy
	body.Psychometrics.CognitiveBias = p.Bias
	body.Psychometrics.RSI.Real = p.RSI.Real
	body.Psychometrics.RSI.Symbolic = p.RSI.Symbolic
	body.Psychometrics.RSI.Imaginary = p.RSI.Imaginary
	body.MusicalContext.Key = p.Key
	body.MusicalContext.Mode = p.Mode
	body.MusicalContext.CurrentChord = p.Chord
	body.MusicalContext.Instrument = p.Instrument

	user, err := json.MarshalIndent(body, "", "  ")
	if err != nil {
		return llm.CompletionRequest{}, fmt.Errorf("aiassist: encode prompt: %w", err)
	}
	return llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: string(user)}},
		Temperature:  p.Temperature,
		MaxTokens:    maxTokens,
	}, nil
}

type reply struct {
	Notes []struct {
		Pitch    string  `json:"pitch"`
		Duration float64 `json:"duration"`
		Velocity float64 `json:"velocity"`
	} `json:"notes"`
	Reasoning string `json:"reasoning"`
}

// Parse extracts notes from a model reply. Velocities in [0, 1] are scaled
// to MIDI; larger values are taken as MIDI already. Notes without a pitch or
// with a non-positive duration are dropped.
func Parse(content string) ([]composer.Note, string, error) {
	raw := extractJSON(content)
	if raw == "" {
		return nil, "", ErrNoJSON
	}
	var r reply
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, "", fmt.Errorf("aiassist: decode reply: %w", err)
	}

	notes := make([]composer.Note, 0, len(r.Notes))
	for _, n := range r.Notes {
		if strings.TrimSpace(n.Pitch) == "" || n.Duration <= 0 {
			continue
		}
		v := n.Velocity
		if v <= 1 {
			v *= 127
		}
		notes = append(notes, composer.Note{
			Pitch:    strings.TrimSpace(n.Pitch),
			Duration: n.Duration,
			Velocity: int(math.Round(min(max(v, 0), 127))),
		})
	}
	return notes, r.Reasoning, nil
}

// extractJSON strips markdown fences and returns the outermost {...} span.
func extractJSON(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return ""
	}
	return s[start : end+1]
}
