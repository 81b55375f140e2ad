package calculus

import (
	"strings"

	"github.com/Planet9V/mpn-conductor-standalone-sub000/pkg/types"
)

var (
	realWords = []string{
		"death", "trauma", "drive", "void", "chaos", "abject", "blood",
		"ghost", "prophecy", "impossible", "real", "murder", "kill", "die",
	}
	symbolicWords = []string{
		"law", "order", "signifier", "father", "king", "crown", "word",
		"name", "debt", "oath", "symbolic", "duty", "honor", "prince",
	}
	imaginaryWords = []string{
		"ego", "mirror", "self", "image", "double", "shadow", "love",
		"ideal", "wholeness", "imaginary", "beauty", "adore",
	}
)

// AnalyzeRSI estimates the register state of a text by counting keyword
// hits per register and normalising by the total. Each keyword counts once
// regardless of how often it appears. Text without hits yields all zeros.
func AnalyzeRSI(text string) types.RSI {
	lower := strings.ToLower(text)
	count := func(words []string) float64 {
		n := 0
		for _, w := range words {
			if strings.Contains(lower, w) {
				n++
			}
		}
		return float64(n)
	}
	r, s, i := count(realWords), count(symbolicWords), count(imaginaryWords)
	total := r + s + i
	if total == 0 {
		total = 1
	}
	return types.RSI{Real: r / total, Symbolic: s / total, Imaginary: i / total}
}

// dissonance is scanned in order; the last matching key wins.
var dissonance = []struct {
	key string
	v   float64
}{
	{"Major", 0.1},
	{"Minor", 0.4},
	{"Dim", 0.8},
	{"Aug", 0.7},
	{"Tritone", 0.9},
	{"Cluster", 1.0},
	{"Dissonant", 0.9},
	{"Atonal", 0.95},
	{"Silence", 0.0},
	{"Hollow", 0.6},
	{"Pedal", 0.3},
}

// ChordTension scores a free-form chord hint such as "Dim7" or
// "Cluster (ff)". Unknown chords score 0.2. Sevenths and extensions add
// tension; "Pure" and "C Major" are fully relaxed.
func ChordTension(chord string) float64 {
	t := 0.2
	for _, d := range dissonance {
		if strings.Contains(chord, d.key) {
			t = d.v
		}
	}
	if strings.Contains(chord, "7") {
		t += 0.1
	}
	if strings.Contains(chord, "9") || strings.Contains(chord, "11") {
		t += 0.15
	}
	if strings.Contains(chord, "Pure") || strings.Contains(chord, "C Major") {
		t = 0
	}
	return min(t, 1)
}

type timbreMod struct {
	detune float64 // scaled by trait intensity
	attack float64
	cutoff float64
}

var darkTriadMods = map[string]timbreMod{
	"machiavellianism": {detune: -10, attack: 0.3, cutoff: 2000},
	"narcissism":       {detune: 0, attack: 0.05, cutoff: 8000},
	"psychopathy":      {detune: 0, attack: 0.01, cutoff: 4000},
}

// DarkTriadTimbre modulates base by the strongest dark-triad trait.
func DarkTriadTimbre(base types.Timbre, dt types.DarkTriad) types.Timbre {
	name, intensity := dt.Strongest()
	m, ok := darkTriadMods[name]
	if !ok {
		return base
	}
	base.Detuning = m.detune * unit(intensity)
	base.Attack = m.attack
	base.FilterCutoff = m.cutoff
	return base
}

// BiasTimbre applies timbre changes of cognitive biases. Overconfidence
// (dunning-kruger) detunes the voice sharp by 20 cents.
func BiasTimbre(base types.Timbre, biases []string) types.Timbre {
	for _, b := range biases {
		if strings.Contains(strings.ToLower(b), "dunning") {
			base.Detuning = min(base.Detuning+20, 50)
			break
		}
	}
	return base
}

// Force is the coarse psychometric reading of a chord hint plus its
// analysis text.
type Force struct {
	Tension float64
	Libido  float64
	RSI     types.RSI
}

// ReadForce derives a [Force] from a script line's chord hint and analysis.
// Dynamic markings inside the chord hint (ff, pp, Tutti, Swell) drive libido.
func ReadForce(chord, analysis string) Force {
	libido := 0.3
	switch {
	case strings.Contains(chord, "Silence"):
		libido = 0
	case strings.Contains(chord, "Tutti"):
		libido = 1
	case strings.Contains(chord, "pp"):
		libido = 0.1
	case strings.Contains(chord, "ff"):
		libido = 0.9
	}
	if strings.Contains(chord, "Swell") || strings.Contains(chord, "Rise") {
		libido += 0.2
	}
	return Force{
		Tension: ChordTension(chord),
		Libido:  min(libido, 1),
		RSI:     AnalyzeRSI(analysis),
	}
}
