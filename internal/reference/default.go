package reference

import (
	"fmt"
	"sync"
)

// DefaultVersion identifies the built-in dictionary.
const DefaultVersion = "2.0"

func defaultEntries() []Entry {
	return []Entry{
		// Tempo by stability band.
		{ID: "rhythm-005", Category: CategoryRhythm, Subcategory: SubTempo, Element: "largo", Trait: string(StabilityStrategic), BPM: &Range{40, 60}, Default: 50},
		{ID: "rhythm-006", Category: CategoryRhythm, Subcategory: SubTempo, Element: "andante", Trait: string(StabilityOperational), BPM: &Range{80, 100}, Default: 90},
		{ID: "rhythm-007", Category: CategoryRhythm, Subcategory: SubTempo, Element: "allegro", Trait: string(StabilityCrisis), BPM: &Range{120, 180}, Default: 140},

		// Meter by entropy.
		{ID: "rhythm-001", Category: CategoryRhythm, Subcategory: SubTimeSignature, Element: "4/4", Condition: "< 0.3"},
		{ID: "rhythm-002", Category: CategoryRhythm, Subcategory: SubTimeSignature, Element: "3/4", Condition: "0.3-0.6"},
		{ID: "rhythm-003", Category: CategoryRhythm, Subcategory: SubTimeSignature, Element: "5/4", Condition: "0.6-0.8"},
		{ID: "rhythm-004", Category: CategoryRhythm, Subcategory: SubTimeSignature, Element: "7/8", Condition: "> 0.8"},

		// Velocity by trauma band.
		{ID: "dynamics-001", Category: CategoryDynamics, Subcategory: SubVolumeLevel, Element: "soft", Condition: "[0,0.35)", Velocity: &Range{20, 45}, Default: 30},
		{ID: "dynamics-002", Category: CategoryDynamics, Subcategory: SubVolumeLevel, Element: "medium", Condition: "[0.35,0.7)", Velocity: &Range{60, 84}, Default: 72},
		{ID: "dynamics-003", Category: CategoryDynamics, Subcategory: SubVolumeLevel, Element: "loud", Condition: "[0.7,1]", Velocity: &Range{110, 127}, Default: 118},

		// Scale mode by register.
		{ID: "mode-001", Category: CategoryMode, Subcategory: SubScaleMode, Element: "ionian", Trait: "symbolic"},
		{ID: "mode-002", Category: CategoryMode, Subcategory: SubScaleMode, Element: "phrygian", Trait: "real"},
		{ID: "mode-003", Category: CategoryMode, Subcategory: SubScaleMode, Element: "lydian", Trait: "imaginary"},

		// Articulation by cognitive bias keyword.
		{ID: "articulation-001", Category: CategoryArticulation, Subcategory: SubAttackStyle, Element: "legato", Trait: "bandwagon"},
		{ID: "articulation-002", Category: CategoryArticulation, Subcategory: SubAttackStyle, Element: "staccato", Trait: "confirmation"},
		{ID: "articulation-003", Category: CategoryArticulation, Subcategory: SubAttackStyle, Element: "marcato", Trait: "dunning"},
		{ID: "articulation-004", Category: CategoryArticulation, Subcategory: SubAttackStyle, Element: "tenuto", Trait: "anchoring"},

		// Interval by relationship quality.
		{ID: "intervals-001", Category: CategoryIntervals, Subcategory: SubRelationship, Element: "perfect_fifth", Trait: string(RelationshipAligned), Default: 7},
		{ID: "intervals-003", Category: CategoryIntervals, Subcategory: SubRelationship, Element: "major_second", Trait: string(RelationshipCreativeTension), Default: 2},
		{ID: "intervals-004", Category: CategoryIntervals, Subcategory: SubRelationship, Element: "tritone", Trait: string(RelationshipConflict), Default: 6},
	}
}

func defaultMarks() []DynamicMark {
	return []DynamicMark{
		{Label: "pp", Threshold: 0},
		{Label: "p", Threshold: 0.2},
		{Label: "mp", Threshold: 0.35},
		{Label: "mf", Threshold: 0.5},
		{Label: "f", Threshold: 0.7},
		{Label: "ff", Threshold: 0.85},
	}
}

var defaultTable = sync.OnceValue(func() *Table {
	t := &Table{
		Version:  DefaultVersion,
		Entries:  defaultEntries(),
		Marks:    defaultMarks(),
		Palettes: defaultPalettes(),
	}
	if err := t.prepare(); err != nil {
		panic(fmt.Sprintf("reference: built-in table: %v", err))
	}
	return t
})

// Default returns the built-in reference table. The returned table is shared
// and must not be modified.
func Default() *Table {
	return defaultTable()
}
