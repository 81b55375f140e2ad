package types

import "strings"

// PitchNames are the sharp spellings of the twelve pitch classes, C = 0.
var PitchNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

var flatNames = map[string]int{"Db": 1, "Eb": 3, "Gb": 6, "Ab": 8, "Bb": 10, "Cb": 11, "Fb": 4}

// PitchName returns the sharp spelling of pitch class pc (taken mod 12).
func PitchName(pc int) string {
	return PitchNames[((pc%12)+12)%12]
}

// PitchClass parses a note name such as "C#", "Eb" or "g". Trailing text
// after the accidental is ignored, so "F#m7" yields 6.
func PitchClass(name string) (int, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, false
	}
	letter := strings.ToUpper(name[:1])
	if len(name) > 1 {
		acc := name[1:2]
		if acc == "#" {
			for i, n := range PitchNames {
				if n == letter+"#" {
					return i, true
				}
			}
			// E# and B# wrap onto the next natural.
			if pc, ok := PitchClass(letter); ok {
				return (pc + 1) % 12, true
			}
		}
		if acc == "b" {
			if pc, ok := flatNames[letter+"b"]; ok {
				return pc, true
			}
		}
	}
	for i, n := range PitchNames {
		if n == letter {
			return i, true
		}
	}
	return 0, false
}
