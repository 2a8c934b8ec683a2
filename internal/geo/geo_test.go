// README: Unit tests for haversine distance and the grid index.
package geo

import (
	"fmt"
	"testing"

	"aegis/internal/types"
)

func TestDistanceMeters_KnownDistance(t *testing.T) {
	// Delhi to Mumbai, great-circle roughly 1150 km.
	delhi := types.Point{Lat: 28.6139, Lng: 77.2090}
	mumbai := types.Point{Lat: 19.0760, Lng: 72.8777}
	d := DistanceMeters(delhi, mumbai)
	if d < 1_100_000 || d > 1_200_000 {
		t.Fatalf("expected ~1150km, got %.0fm", d)
	}
}

func TestDistanceMeters_ZeroForSamePoint(t *testing.T) {
	p := types.Point{Lat: 11.9340, Lng: 79.8300}
	if d := DistanceMeters(p, p); d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestDistanceMeters_CityBlock(t *testing.T) {
	a := types.Point{Lat: 11.9340, Lng: 79.8300}
	b := types.Point{Lat: 11.9341, Lng: 79.8301}
	d := DistanceMeters(a, b)
	if d < 10 || d > 30 {
		t.Fatalf("expected a few tens of metres, got %.1fm", d)
	}
}

func TestQueryNearest_OrderedByDistance(t *testing.T) {
	idx := NewIndex()
	center := types.Point{Lat: 11.9340, Lng: 79.8300}
	idx.Insert("far", types.Point{Lat: 11.9440, Lng: 79.8300})
	idx.Insert("near", types.Point{Lat: 11.9341, Lng: 79.8301})
	idx.Insert("mid", types.Point{Lat: 11.9380, Lng: 79.8300})

	got := idx.QueryNearest(center, 5000, 10)
	if len(got) != 3 {
		t.Fatalf("expected 3 results, got %d", len(got))
	}
	want := []types.ID{"near", "mid", "far"}
	for i, n := range got {
		if n.ID != want[i] {
			t.Fatalf("position %d: got %s, want %s", i, n.ID, want[i])
		}
	}
	for i := 1; i < len(got); i++ {
		if got[i].DistanceM < got[i-1].DistanceM {
			t.Fatalf("distances not ascending: %v", got)
		}
	}
}

func TestQueryNearest_TieBrokenByID(t *testing.T) {
	idx := NewIndex()
	p := types.Point{Lat: 11.9341, Lng: 79.8301}
	idx.Insert("b", p)
	idx.Insert("a", p)
	idx.Insert("c", p)

	got := idx.QueryNearest(types.Point{Lat: 11.9340, Lng: 79.8300}, 5000, 10)
	want := []types.ID{"a", "b", "c"}
	if len(got) != 3 {
		t.Fatalf("expected 3 results, got %d", len(got))
	}
	for i, n := range got {
		if n.ID != want[i] {
			t.Fatalf("tie-break position %d: got %s, want %s", i, n.ID, want[i])
		}
	}
}

func TestQueryNearest_RadiusAndLimit(t *testing.T) {
	idx := NewIndex()
	center := types.Point{Lat: 11.9340, Lng: 79.8300}
	idx.Insert("inside", types.Point{Lat: 11.9350, Lng: 79.8300})
	idx.Insert("outside", types.Point{Lat: 12.0340, Lng: 79.8300}) // ~11km north

	got := idx.QueryNearest(center, 5000, 10)
	if len(got) != 1 || got[0].ID != "inside" {
		t.Fatalf("expected only inside, got %v", got)
	}

	for i := 0; i < 10; i++ {
		idx.Insert(types.ID(fmt.Sprintf("r%02d", i)), types.Point{Lat: 11.9340 + float64(i)*0.0001, Lng: 79.8300})
	}
	got = idx.QueryNearest(center, 5000, 4)
	if len(got) != 4 {
		t.Fatalf("expected limit of 4, got %d", len(got))
	}
}

func TestQueryNearest_EmptyResultIsNotAnError(t *testing.T) {
	idx := NewIndex()
	got := idx.QueryNearest(types.Point{Lat: 0, Lng: 0}, 1000, 5)
	if len(got) != 0 {
		t.Fatalf("expected empty result, got %v", got)
	}
}

func TestInsert_IdempotentAndMoves(t *testing.T) {
	idx := NewIndex()
	idx.Insert("r1", types.Point{Lat: 11.9340, Lng: 79.8300})
	idx.Insert("r1", types.Point{Lat: 11.9340, Lng: 79.8300})
	if idx.Len() != 1 {
		t.Fatalf("expected 1 indexed id, got %d", idx.Len())
	}

	// Move far away; the old cell must not still answer for r1.
	idx.Insert("r1", types.Point{Lat: 28.6139, Lng: 77.2090})
	got := idx.QueryNearest(types.Point{Lat: 11.9340, Lng: 79.8300}, 5000, 5)
	if len(got) != 0 {
		t.Fatalf("expected no results near old position, got %v", got)
	}
	got = idx.QueryNearest(types.Point{Lat: 28.6139, Lng: 77.2090}, 5000, 5)
	if len(got) != 1 || got[0].ID != "r1" {
		t.Fatalf("expected r1 near new position, got %v", got)
	}
}

func TestRemove_NoOpWhenAbsent(t *testing.T) {
	idx := NewIndex()
	idx.Remove("ghost")

	idx.Insert("r1", types.Point{Lat: 11.9340, Lng: 79.8300})
	idx.Remove("r1")
	if idx.Len() != 0 {
		t.Fatalf("expected empty index, got %d", idx.Len())
	}
}
