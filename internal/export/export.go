// Package export turns a rendered frame sequence into a [types.Score] and
// writes it out as JSON or MML.
package export

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/orchestrator"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/pkg/types"
)

// Version is stamped on every exported score.
const Version = "2.0.0"

// Meta describes the score being built. An empty ID gets a fresh uuid; a
// zero GeneratedAt gets the current time.
type Meta struct {
	ID          string
	Title       string
	Source      string
	GeneratedAt time.Time
}

// Build assembles a score. Frames are sorted by index; motifs is the
// leitmotif registry snapshot keyed by actor id. The statistics passes run
// concurrently and stop early when ctx is cancelled.
func Build(ctx context.Context, meta Meta, actors []types.ActorProfile, motifs map[string]types.Leitmotif, frames []types.Frame) (types.Score, error) {
	sorted := slices.Clone(frames)
	slices.SortFunc(sorted, func(a, b types.Frame) int { return cmp.Compare(a.Index, b.Index) })

	score := types.Score{
		ID:          meta.ID,
		Title:       meta.Title,
		Source:      meta.Source,
		GeneratedAt: meta.GeneratedAt,
		Version:     Version,
		Actors:      slices.Clone(actors),
		Leitmotifs:  make(map[string]types.Leitmotif, len(motifs)),
		Frames:      sorted,
	}
	if score.ID == "" {
		score.ID = "score_" + uuid.NewString()
	}
	if score.GeneratedAt.IsZero() {
		score.GeneratedAt = time.Now().UTC()
	}
	for id, m := range motifs {
		score.Leitmotifs[id] = m.Clone()
	}

	stats := types.Statistics{
		TotalFrames: len(sorted),
		DurationMs:  int64(len(sorted)) * orchestrator.FrameDurationMs,
	}
	if len(sorted) == 0 {
		score.Statistics = stats
		return score, nil
	}

	var (
		avgTrauma, avgEntropy float64
		key                   string
	)
	eg, egCtx := errgroup.WithContext(ctx)

	// ── averages ──────────────────────────────────────────────────────────────
	eg.Go(func() error {
		var trauma, entropy float64
		for i, f := range sorted {
			if i%256 == 0 {
				if err := egCtx.Err(); err != nil {
					return fmt.Errorf("export: averages: %w", err)
				}
			}
			st := frameState(f)
			trauma += st.Trauma
			entropy += st.Entropy
		}
		n := float64(len(sorted))
		avgTrauma, avgEntropy = trauma/n, entropy/n
		return nil
	})

	// ── dominant key ──────────────────────────────────────────────────────────
	eg.Go(func() error {
		var err error
		key, err = dominantKey(egCtx, sorted)
		return err
	})

	if err := eg.Wait(); err != nil {
		return types.Score{}, err
	}
	stats.AverageTrauma, stats.AverageEntropy = avgTrauma, avgEntropy
	stats.DominantKey = key
	stats.DominantMode = "major"
	if strings.Contains(strings.ToLower(key), "minor") {
		stats.DominantMode = "minor"
	}
	score.Statistics = stats
	return score, nil
}

// frameState is the psychometric snapshot a frame was rendered with. Every
// stave of a frame carries the same frame-level trauma and entropy.
func frameState(f types.Frame) types.StaveState {
	if len(f.Staves) == 0 {
		return types.StaveState{}
	}
	return f.Staves[0].State
}

// dominantKey returns the most frequent global key. Ties go to the key seen
// first.
func dominantKey(ctx context.Context, frames []types.Frame) (string, error) {
	counts := make(map[string]int)
	var order []string
	for i, f := range frames {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return "", fmt.Errorf("export: dominant key: %w", err)
			}
		}
		if counts[f.Global.Key] == 0 {
			order = append(order, f.Global.Key)
		}
		counts[f.Global.Key]++
	}
	best := order[0]
	for _, k := range order[1:] {
		if counts[k] > counts[best] {
			best = k
		}
	}
	return best, nil
}

// WriteJSON encodes score to w. Indent selects pretty output.
func WriteJSON(w io.Writer, score types.Score, indent bool) error {
	enc := json.NewEncoder(w)
	if indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(score); err != nil {
		return fmt.Errorf("export: encode json: %w", err)
	}
	return nil
}

// ReadJSON decodes a score previously written by [WriteJSON].
func ReadJSON(r io.Reader) (types.Score, error) {
	var s types.Score
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return types.Score{}, fmt.Errorf("export: decode json: %w", err)
	}
	return s, nil
}

// ── Graph topology ───────────────────────────────────────────────────────────

// GraphNode is a node seen anywhere in the score.
type GraphNode struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Type  string `json:"type"`
}

// GraphEdge is an edge with the positions of the frames it appears in.
type GraphEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"`
	Frames []int  `json:"frames"`
}

// TimelineEntry lists the edge keys active in one frame.
type TimelineEntry struct {
	Frame       int      `json:"frame"`
	ActiveEdges []string `json:"activeEdges"`
}

// GraphData is the relation graph of a whole score.
type GraphData struct {
	Nodes    []GraphNode     `json:"nodes"`
	Edges    []GraphEdge     `json:"edges"`
	Timeline []TimelineEntry `json:"timeline"`
}

// EdgeKey identifies an edge across frames.
func EdgeKey(e types.GraphEdge) string {
	return e.Source + "-" + e.Target + "-" + e.Type
}

// ExtractGraph collects the distinct nodes and edges of score in first-seen
// order, plus a per-frame list of active edges.
func ExtractGraph(score types.Score) GraphData {
	var (
		out       GraphData
		seenNodes = make(map[string]bool)
		edgeAt    = make(map[string]int)
	)
	out.Timeline = make([]TimelineEntry, 0, len(score.Frames))
	for i, f := range score.Frames {
		for _, n := range f.Graph.Nodes {
			if !seenNodes[n.ID] {
				seenNodes[n.ID] = true
				out.Nodes = append(out.Nodes, GraphNode{ID: n.ID, Label: n.Label, Type: n.Type})
			}
		}
		active := make([]string, 0, len(f.Graph.Edges))
		for _, e := range f.Graph.Edges {
			key := EdgeKey(e)
			idx, ok := edgeAt[key]
			if !ok {
				idx = len(out.Edges)
				edgeAt[key] = idx
				out.Edges = append(out.Edges, GraphEdge{Source: e.Source, Target: e.Target, Type: e.Type})
			}
			out.Edges[idx].Frames = append(out.Edges[idx].Frames, i)
			active = append(active, key)
		}
		out.Timeline = append(out.Timeline, TimelineEntry{Frame: i, ActiveEdges: active})
	}
	return out
}
