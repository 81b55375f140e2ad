package leitmotif

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/Planet9V/mpn-conductor-standalone-sub000/pkg/types"
)

// Entry is a snapshot of one registered motif. Motif points at the cached
// base and is shared by every snapshot of the same registration; callers must
// treat it as read-only.
type Entry struct {
	ActorID   string
	ActorName string
	Motif     *types.Leitmotif
	CreatedAt time.Time
	LastUsed  time.Time
	UseCount  int
}

// Stats summarises registry usage.
type Stats struct {
	TotalActors int    `json:"totalActors"`
	TotalUses   int    `json:"totalUses"`
	MostUsed    string `json:"mostUsed,omitempty"`
}

// Option configures a [Registry].
type Option func(*Registry)

// WithClock sets the time source used for created/last-used timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// Registry caches one motif per actor id. It is constructed explicitly and
// handed to its owner; there is no package-level instance.
//
// All methods are safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*Entry
	now     func() time.Time
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		entries: make(map[string]*Entry),
		now:     time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// GetOrCreate returns the cached motif for p.ID, generating it on first use.
// Every call bumps the use count; the motif itself is never regenerated while
// the registration lives.
func (r *Registry) GetOrCreate(p types.ActorProfile) Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if e, ok := r.entries[p.ID]; ok {
		e.LastUsed = now
		e.UseCount++
		return *e
	}
	m := Generate(p)
	e := &Entry{
		ActorID:   p.ID,
		ActorName: p.DisplayName(),
		Motif:     &m,
		CreatedAt: now,
		LastUsed:  now,
		UseCount:  1,
	}
	r.entries[p.ID] = e
	return *e
}

// Get returns the entry for actorID and records the use.
func (r *Registry) Get(actorID string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[actorID]
	if !ok {
		return Entry{}, false
	}
	e.LastUsed = r.now()
	e.UseCount++
	return *e, true
}

// Has reports whether actorID is registered.
func (r *Registry) Has(actorID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[actorID]
	return ok
}

// Remove drops the registration of actorID and reports whether it existed.
func (r *Registry) Remove(actorID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[actorID]
	delete(r.entries, actorID)
	return ok
}

// Clear drops every registration.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.entries)
}

// All returns snapshots of every registration sorted by actor id.
func (r *Registry) All() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, *e)
	}
	slices.SortFunc(out, func(a, b Entry) int { return cmp.Compare(a.ActorID, b.ActorID) })
	return out
}

// Motifs returns a copy of every cached base motif keyed by actor id.
func (r *Registry) Motifs() map[string]types.Leitmotif {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]types.Leitmotif, len(r.entries))
	for id, e := range r.entries {
		out[id] = e.Motif.Clone()
	}
	return out
}

// Stats reports usage totals. MostUsed names the actor with the highest use
// count; ties go to the lowest actor id.
func (r *Registry) Stats() Stats {
	all := r.All()
	s := Stats{TotalActors: len(all)}
	best := 0
	for _, e := range all {
		s.TotalUses += e.UseCount
		if e.UseCount > best {
			best = e.UseCount
			s.MostUsed = e.ActorName
		}
	}
	return s
}

// Transform derives a variant of actorID's cached motif for ctx. The cached
// base is left untouched.
//
// Transform panics when actorID is not registered: callers must register the
// cast first.
func (r *Registry) Transform(actorID string, ctx TransformContext) types.Leitmotif {
	r.mu.Lock()
	e, ok := r.entries[actorID]
	var base types.Leitmotif
	if ok {
		base = *e.Motif
	}
	r.mu.Unlock()

	if !ok {
		panic(fmt.Sprintf("leitmotif: transform for unregistered actor %q", actorID))
	}
	return Apply(base, Select(ctx), ctx)
}
