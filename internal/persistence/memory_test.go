// README: Memory store tests: every mutation snapshots, LoadAll rehydrates.
package persistence

import (
	"context"
	"testing"

	"aegis/internal/modules/incident"
	"aegis/internal/modules/responder"
	"aegis/internal/types"
)

func TestMemory_RoundTrip(t *testing.T) {
	mem := NewMemory()

	incidents := incident.NewStore(mem)
	responders := responder.NewRegistry(mem)

	inc, err := incidents.Create(&incident.Incident{
		ReporterID: "tourist-1",
		Type:       incident.TypeMedical,
		Location:   types.Point{Lat: 11.9340, Lng: 79.8300},
	})
	if err != nil {
		t.Fatalf("create incident: %v", err)
	}
	if _, err := responders.Register(&responder.Responder{
		ID:           "R1",
		Location:     types.Point{Lat: 11.9341, Lng: 79.8301},
		Capabilities: []responder.Capability{responder.CapabilityMedical},
		Availability: responder.Available,
	}); err != nil {
		t.Fatalf("register responder: %v", err)
	}

	incs, rs, err := mem.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("load all: %v", err)
	}
	if len(incs) != 1 || len(rs) != 1 {
		t.Fatalf("expected 1 incident and 1 responder, got %d and %d", len(incs), len(rs))
	}

	// Rehydrate into fresh stores, as main does on startup.
	incidents2 := incident.NewStore(nil)
	responders2 := responder.NewRegistry(nil)
	incidents2.Load(incs)
	responders2.Load(rs)

	got, err := incidents2.Get(inc.ID)
	if err != nil {
		t.Fatalf("get rehydrated incident: %v", err)
	}
	if got.Status != incident.StatusPending || got.ReporterID != "tourist-1" {
		t.Fatalf("rehydrated incident lost fields: %+v", got)
	}

	r, err := responders2.Get("R1")
	if err != nil {
		t.Fatalf("get rehydrated responder: %v", err)
	}
	if r.Availability != responder.Available {
		t.Fatalf("rehydrated responder lost availability: %s", r.Availability)
	}
}

func TestMemory_LatestSnapshotWins(t *testing.T) {
	mem := NewMemory()
	incidents := incident.NewStore(mem)

	inc, err := incidents.Create(&incident.Incident{ReporterID: "t1", Type: incident.TypeSupport})
	if err != nil {
		t.Fatalf("create incident: %v", err)
	}
	if _, err := incidents.TransitionStatus(inc.ID, incident.StatusResolved, nil); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	incs, _, err := mem.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("load all: %v", err)
	}
	if len(incs) != 1 {
		t.Fatalf("expected 1 incident, got %d", len(incs))
	}
	if incs[0].Status != incident.StatusResolved {
		t.Fatalf("expected the post-resolve snapshot, got %s", incs[0].Status)
	}
}
