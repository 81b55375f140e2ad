// Package speaker resolves the free-form speaker label of a script line to an
// actor of the cast.
//
// Resolution runs in three passes:
//
//  1. Exact: the label equals an actor id, its normalised form (lower case,
//     underscores) equals an id, or it equals a display name ignoring case.
//  2. Phonetic: Double Metaphone codes of the label tokens overlap those of
//     an actor name and the Jaro-Winkler score clears the phonetic threshold.
//  3. Fuzzy: with no phonetic candidate, pure Jaro-Winkler against every name
//     must clear the higher fuzzy threshold.
//
// Passes 2 and 3 catch transcription drift such as "Lady Macbet" or
// "Banqo" in imported scripts.
package speaker

import (
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/Planet9V/mpn-conductor-standalone-sub000/pkg/types"
)

const (
	defaultPhoneticThreshold = 0.80
	defaultFuzzyThreshold    = 0.90
)

// Option configures a [Resolver].
type Option func(*Resolver)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a
// phonetically matched actor. Default: 0.80.
func WithPhoneticThreshold(threshold float64) Option {
	return func(r *Resolver) { r.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score when no phonetic
// candidate exists. Default: 0.90.
func WithFuzzyThreshold(threshold float64) Option {
	return func(r *Resolver) { r.fuzzyThreshold = threshold }
}

// Match is the result of a resolution.
type Match struct {
	ActorID    string
	Confidence float64

	// Exact is true when pass 1 matched.
	Exact bool
}

// Resolver matches labels to actors. It is read-only after construction
// and safe for concurrent use.
type Resolver struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a resolver.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve returns the actor label refers to. ok is false when no actor is
// close enough.
func (r *Resolver) Resolve(label string, cast []types.ActorProfile) (m Match, ok bool) {
	label = strings.TrimSpace(label)
	if label == "" || len(cast) == 0 {
		return Match{}, false
	}
	if id, ok := Exact(label, cast); ok {
		return Match{ActorID: id, Confidence: 1, Exact: true}, true
	}

	lower := strings.ToLower(label)
	tokens := strings.Fields(lower)
	inputCodes := codesForTokens(tokens)

	var (
		best     Match
		phonetic bool
	)
	for _, a := range cast {
		name := strings.ToLower(strings.ReplaceAll(a.DisplayName(), "_", " "))
		nameTokens := strings.Fields(name)
		if len(nameTokens) == 0 {
			continue
		}
		score := bestScore(tokens, nameTokens, lower, name)

		if codesOverlap(inputCodes, codesForTokens(nameTokens)) {
			if score >= r.phoneticThreshold && (!phonetic || score > best.Confidence) {
				best, phonetic = Match{ActorID: a.ID, Confidence: score}, true
			}
		} else if !phonetic && score >= r.fuzzyThreshold && score > best.Confidence {
			best = Match{ActorID: a.ID, Confidence: score}
		}
	}
	return best, best.ActorID != ""
}

// Exact runs only the exact pass.
func Exact(label string, cast []types.ActorProfile) (string, bool) {
	key := types.SpeakerKey(label)
	for _, a := range cast {
		if a.ID == label || a.ID == key {
			return a.ID, true
		}
	}
	for _, a := range cast {
		if a.Name != "" && strings.EqualFold(a.Name, label) {
			return a.ID, true
		}
	}
	return "", false
}

func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestScore is the higher Jaro-Winkler similarity of the full strings and the
// space-stripped strings. Single tokens are not paired so that "Lady" alone
// never resolves to "Lady Macduff".
func bestScore(inputTokens, nameTokens []string, input, name string) float64 {
	score := matchr.JaroWinkler(input, name, false)
	if len(inputTokens) > 1 || len(nameTokens) > 1 {
		if s := matchr.JaroWinkler(strings.Join(inputTokens, ""), strings.Join(nameTokens, ""), false); s > score {
			score = s
		}
	}
	return score
}
