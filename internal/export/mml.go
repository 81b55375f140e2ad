package export

import (
	"bufio"
	"cmp"
	"fmt"
	"io"
	"math"
	"slices"
	"strings"

	"github.com/Planet9V/mpn-conductor-standalone-sub000/pkg/types"
)

// MML timing: 1920 ticks per whole note, 480 per beat.
const (
	ticksPerWhole = 1920
	ticksPerBeat  = ticksPerWhole / 4
	minTicks      = ticksPerWhole / 64
	measureTicks  = 4 * ticksPerBeat
	maxMMLVolume  = 16
)

var mmlNoteNames = [12]string{"c", "c#", "d", "d#", "e", "f", "f#", "g", "g#", "a", "a#", "b"}

// WriteMML renders score as Music Macro Language text, one ';'-separated
// track per stave. Tracks follow the stave order of the first frame. Each
// frame occupies at least one 4/4 measure and every track is padded with
// rests to the longest stave of the frame, so tracks stay aligned.
// Overlapping notes within a stave are dropped since MML tracks are
// monophonic.
func WriteMML(w io.Writer, score types.Score) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "/* %s */\n", sanitizeComment(score.Title))

	ids := trackOrder(score.Frames)
	lengths := make([]int, len(score.Frames))
	for i, f := range score.Frames {
		lengths[i] = frameTicks(f)
	}

	for ti, id := range ids {
		t := mmlTrack{octave: -1, volume: -1, tempo: -1}
		for fi, f := range score.Frames {
			if ti == 0 {
				t.setTempo(f.Global.Tempo)
			}
			stave, ok := findStave(f, id)
			if !ok {
				t.rest(lengths[fi])
				continue
			}
			if t.label == "" {
				t.label = fmt.Sprintf("%s (%s)", stave.ActorName, stave.Instrument)
			}
			t.frame(stave.Notes, lengths[fi])
		}
		fmt.Fprintf(bw, "/* %s */\n%s;\n", sanitizeComment(t.label), strings.TrimSpace(t.b.String()))
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("export: write mml: %w", err)
	}
	return nil
}

func trackOrder(frames []types.Frame) []string {
	var ids []string
	seen := make(map[string]bool)
	for _, f := range frames {
		for _, s := range f.Staves {
			if !seen[s.ActorID] {
				seen[s.ActorID] = true
				ids = append(ids, s.ActorID)
			}
		}
	}
	return ids
}

func findStave(f types.Frame, id string) (types.Stave, bool) {
	for _, s := range f.Staves {
		if s.ActorID == id {
			return s, true
		}
	}
	return types.Stave{}, false
}

// frameTicks is the length of a frame: one measure, or the end of its
// longest stave rounded up to a whole beat.
func frameTicks(f types.Frame) int {
	end := measureTicks
	for _, s := range f.Staves {
		for _, n := range s.Notes {
			end = max(end, beatTicks(n.StartBeat)+noteTicks(n.Duration))
		}
	}
	if r := end % ticksPerBeat; r != 0 {
		end += ticksPerBeat - r
	}
	return end
}

func beatTicks(beats float64) int {
	return max(int(math.Round(beats*ticksPerBeat)), 0)
}

func noteTicks(beats float64) int {
	return max(beatTicks(beats), minTicks)
}

type mmlTrack struct {
	b      strings.Builder
	label  string
	octave int
	volume int
	tempo  int
}

func (t *mmlTrack) setTempo(bpm int) {
	if bpm > 0 && bpm != t.tempo {
		fmt.Fprintf(&t.b, "t%d ", bpm)
		t.tempo = bpm
	}
}

func (t *mmlTrack) frame(notes []types.NoteEvent, length int) {
	sorted := slices.Clone(notes)
	slices.SortStableFunc(sorted, func(a, b types.NoteEvent) int { return cmp.Compare(a.StartBeat, b.StartBeat) })

	cursor := 0
	for _, n := range sorted {
		start := beatTicks(n.StartBeat)
		if start < cursor {
			continue
		}
		dur := min(noteTicks(n.Duration), length-start)
		if dur < minTicks {
			continue
		}
		if start > cursor {
			t.rest(start - cursor)
		}
		t.note(n, dur)
		cursor = start + dur
	}
	if cursor < length {
		t.rest(length - cursor)
	}
}

func (t *mmlTrack) note(n types.NoteEvent, ticks int) {
	midi := min(max(n.MIDINote, 0), 119)
	if oct := midi / 12; oct != t.octave {
		fmt.Fprintf(&t.b, "o%d ", oct)
		t.octave = oct
	}
	if v := int(math.Round(float64(n.Velocity) / 127 * maxMMLVolume)); v != t.volume {
		fmt.Fprintf(&t.b, "v%d ", v)
		t.volume = v
	}
	t.b.WriteString(mmlNoteNames[midi%12])
	t.b.WriteString(lengthTokens(ticks))
	t.b.WriteByte(' ')
}

func (t *mmlTrack) rest(ticks int) {
	if ticks < minTicks {
		return
	}
	t.b.WriteString("r")
	t.b.WriteString(lengthTokens(ticks))
	t.b.WriteByte(' ')
}

// lengthTokens spells ticks as tied note lengths, e.g. 720 → "4^8".
// Remainders below a 64th note are dropped.
func lengthTokens(ticks int) string {
	var parts []string
	for div := 1; div <= 64 && ticks >= minTicks; div *= 2 {
		unit := ticksPerWhole / div
		for ticks >= unit {
			parts = append(parts, fmt.Sprint(div))
			ticks -= unit
		}
	}
	if len(parts) == 0 {
		return "64"
	}
	return strings.Join(parts, "^")
}

func sanitizeComment(s string) string {
	return strings.ReplaceAll(s, "*/", "* /")
}
