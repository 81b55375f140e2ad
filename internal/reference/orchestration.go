package reference

import (
	"strings"

	"github.com/Planet9V/mpn-conductor-standalone-sub000/pkg/types"
)

// Orchestration is a coarse ensemble selector that decides which instruments
// are eligible for each DISC trait.
type Orchestration string

const (
	FullOrchestra      Orchestration = "full_orchestra"
	StringQuartet      Orchestration = "string_quartet"
	JazzEnsemble       Orchestration = "jazz_ensemble"
	LeitmotifWagnerian Orchestration = "leitmotif_wagnerian"
	ChamberDeath       Orchestration = "chamber_death"
	MinimalistVoid     Orchestration = "minimalist_void"
	CyberGlitch        Orchestration = "cyber_glitch"
)

// Orchestrations lists every known orchestration in display order.
var Orchestrations = []Orchestration{
	FullOrchestra, StringQuartet, JazzEnsemble, LeitmotifWagnerian,
	ChamberDeath, MinimalistVoid, CyberGlitch,
}

// IsValid reports whether o is a recognised orchestration.
func (o Orchestration) IsValid() bool {
	for _, k := range Orchestrations {
		if o == k {
			return true
		}
	}
	return false
}

// TraitMixed is the palette key for background voices not tied to a DISC trait.
const TraitMixed = "mixed"

func defaultPalettes() map[Orchestration]map[string][]string {
	return map[Orchestration]map[string][]string{
		FullOrchestra: {
			"D":        {"trumpet", "horn", "trombone"},
			"I":        {"flute", "clarinet", "oboe"},
			"S":        {"violin", "viola", "cello"},
			"C":        {"piano", "harp", "celesta"},
			TraitMixed: {"timpani", "bass", "organ"},
		},
		StringQuartet: {
			"D": {"violin1"},
			"I": {"violin2"},
			"S": {"viola"},
			"C": {"cello"},
		},
		JazzEnsemble: {
			"D":        {"trumpet", "saxophone"},
			"I":        {"piano", "guitar"},
			"S":        {"upright_bass", "bass_guitar"},
			"C":        {"drums", "percussion"},
			TraitMixed: {"vibraphone", "clarinet"},
		},
		LeitmotifWagnerian: {
			"S":        {"strings", "woodwind"},
			"C":        {"percussion", "low_strings"},
			TraitMixed: {"orchestral"},
		},
		ChamberDeath: {
			"S": {"cello", "viola"},
			"C": {"bass_clarinet", "contrabassoon"},
		},
		MinimalistVoid: {
			"I": {"celesta"},
			"C": {"piano"},
		},
		CyberGlitch: {
			"D": {"synth_lead"},
			"I": {"arpeggiator"},
			"S": {"pad_synth"},
			"C": {"glitch_percussion"},
		},
	}
}

var familyKeywords = []struct {
	family types.InstrumentFamily
	words  []string
}{
	{types.FamilyBrass, []string{"trumpet", "trombone", "horn", "tuba"}},
	{types.FamilyWoodwind, []string{"flute", "clarinet", "oboe", "bassoon", "piccolo", "saxophone", "woodwind"}},
	{types.FamilyStrings, []string{"violin", "cello", "viola", "bass", "strings", "guitar"}},
	{types.FamilyPercussion, []string{"drum", "perc", "timpani", "cymbal"}},
}

// FamilyOf classifies an instrument name. Unknown instruments are keyboard.
func FamilyOf(instrument string) types.InstrumentFamily {
	name := strings.ToLower(instrument)
	for _, f := range familyKeywords {
		for _, w := range f.words {
			if strings.Contains(name, w) {
				return f.family
			}
		}
	}
	return types.FamilyKeyboard
}
