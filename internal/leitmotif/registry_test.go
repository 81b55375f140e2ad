package leitmotif_test

import (
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/leitmotif"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/pkg/types"
)

// fakeClock advances one second per reading.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func TestRegistry_GetOrCreateCaches(t *testing.T) {
	t.Parallel()

	clock := newClock()
	r := leitmotif.NewRegistry(leitmotif.WithClock(clock.Now))

	first := r.GetOrCreate(hero())
	second := r.GetOrCreate(hero())

	if first.UseCount != 1 || second.UseCount != 2 {
		t.Errorf("use counts = %d, %d; want 1, 2", first.UseCount, second.UseCount)
	}
	if first.Motif != second.Motif {
		t.Error("GetOrCreate returned a different motif pointer on the second call")
	}
	if !reflect.DeepEqual(*first.Motif, leitmotif.Generate(hero())) {
		t.Error("cached motif differs from a fresh generation")
	}
	if !second.LastUsed.After(first.LastUsed) {
		t.Errorf("LastUsed did not advance: %v -> %v", first.LastUsed, second.LastUsed)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("CreatedAt changed: %v -> %v", first.CreatedAt, second.CreatedAt)
	}
}

func TestRegistry_ProfileChangeIgnoredUntilRemoved(t *testing.T) {
	t.Parallel()

	r := leitmotif.NewRegistry()
	before := r.GetOrCreate(hero())

	changed := hero()
	changed.Archetype = types.ArchetypeTrickster
	if got := r.GetOrCreate(changed); got.Motif != before.Motif {
		t.Error("a registered actor must keep its motif")
	}

	if !r.Remove("macbeth") {
		t.Fatal("Remove returned false for a registered actor")
	}
	after := r.GetOrCreate(changed)
	if after.Motif == before.Motif || after.UseCount != 1 {
		t.Error("re-registration should derive a fresh motif")
	}
	if after.Motif.Instrument != "piccolo" {
		t.Errorf("Instrument = %q, want piccolo", after.Motif.Instrument)
	}
}

func TestRegistry_Lookup(t *testing.T) {
	t.Parallel()

	r := leitmotif.NewRegistry()
	if _, ok := r.Get("nobody"); ok {
		t.Error("Get on empty registry returned ok")
	}
	if r.Remove("nobody") {
		t.Error("Remove on empty registry returned true")
	}

	r.GetOrCreate(hero())
	r.GetOrCreate(types.ActorProfile{ID: "banquo", Name: "Banquo"})

	if !r.Has("banquo") {
		t.Error("Has(banquo) = false")
	}
	e, ok := r.Get("macbeth")
	if !ok || e.UseCount != 2 {
		t.Errorf("Get(macbeth) = %d, %v; want use count 2", e.UseCount, ok)
	}

	all := r.All()
	if len(all) != 2 || all[0].ActorID != "banquo" || all[1].ActorID != "macbeth" {
		t.Errorf("All() not sorted by id: %+v", all)
	}

	stats := r.Stats()
	if stats.TotalActors != 2 || stats.TotalUses != 3 || stats.MostUsed != "Macbeth" {
		t.Errorf("Stats() = %+v", stats)
	}

	motifs := r.Motifs()
	motifs["macbeth"].PitchClasses[0] = 11
	if e, _ := r.Get("macbeth"); e.Motif.PitchClasses[0] == 11 {
		t.Error("Motifs() leaked the cached slice")
	}

	r.Clear()
	if len(r.All()) != 0 {
		t.Error("Clear left entries behind")
	}
}

func TestRegistry_TransformLeavesBase(t *testing.T) {
	t.Parallel()

	r := leitmotif.NewRegistry()
	e := r.GetOrCreate(hero())
	before := e.Motif.Clone()

	got := r.Transform("macbeth", leitmotif.TransformContext{Trauma: 0.9})
	if got.Transformation != types.TransformFragmented {
		t.Errorf("Transformation = %q, want fragmented", got.Transformation)
	}
	if !reflect.DeepEqual(*e.Motif, before) {
		t.Error("Transform mutated the cached motif")
	}
}

func TestRegistry_TransformUnregisteredPanics(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Error("expected panic for unregistered actor")
		}
	}()
	leitmotif.NewRegistry().Transform("nobody", leitmotif.TransformContext{})
}

func TestRegistry_Concurrent(t *testing.T) {
	t.Parallel()

	r := leitmotif.NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				r.GetOrCreate(hero())
				r.Transform("macbeth", leitmotif.TransformContext{Entropy: 0.9})
			}
		}()
	}
	wg.Wait()

	if e, _ := r.Get("macbeth"); e.UseCount != 16*50+1 {
		t.Errorf("UseCount = %d, want %d", e.UseCount, 16*50+1)
	}
}
