// README: Coordinator tests covering the report/assign/advance flow end to end.
package dispatch

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aegis/internal/events"
	"aegis/internal/modules/incident"
	"aegis/internal/modules/responder"
	"aegis/internal/types"
)

func newTestService(t *testing.T) (*Service, *incident.Store, *responder.Registry, *events.Bus) {
	t.Helper()
	log := logrus.New()
	log.SetOutput(&bytes.Buffer{})

	incidents := incident.NewStore(nil)
	responders := responder.NewRegistry(nil)
	bus := events.NewBus(256)
	svc := NewService(incidents, responders, bus, DefaultConfig(), log)
	return svc, incidents, responders, bus
}

func registerMedic(t *testing.T, svc *Service, id types.ID, p types.Point) {
	t.Helper()
	_, err := svc.RegisterResponder(&responder.Responder{
		ID:           id,
		Location:     p,
		Capabilities: []responder.Capability{responder.CapabilityMedical},
		Availability: responder.Available,
	})
	require.NoError(t, err)
}

// checkAssignmentInvariant asserts assignedResponder is set exactly when the
// status is assigned or responding.
func checkAssignmentInvariant(t *testing.T, inc *incident.Incident) {
	t.Helper()
	active := inc.Status == incident.StatusAssigned || inc.Status == incident.StatusResponding
	if active {
		require.NotNil(t, inc.AssignedResponder, "status %s requires a responder", inc.Status)
	} else {
		require.Nil(t, inc.AssignedResponder, "status %s must not carry a responder", inc.Status)
	}
}

func TestReportIncident_NoResponders(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	res, err := svc.ReportIncident(context.Background(), Report{
		ReporterID: "tourist-1",
		Type:       incident.TypeMedical,
		Location:   types.Point{Lat: 11.9340, Lng: 79.8300},
	})
	require.NoError(t, err)
	assert.Equal(t, incident.StatusPending, res.Incident.Status)
	assert.Empty(t, res.Candidates)
	checkAssignmentInvariant(t, res.Incident)
}

func TestReportIncident_SuggestsButNeverAutoAssigns(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	registerMedic(t, svc, "R1", types.Point{Lat: 11.9341, Lng: 79.8301})

	res, err := svc.ReportIncident(context.Background(), Report{
		ReporterID: "tourist-1",
		Type:       incident.TypeMedical,
		Location:   types.Point{Lat: 11.9340, Lng: 79.8300},
	})
	require.NoError(t, err)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, types.ID("R1"), res.Candidates[0].Responder.ID)

	// Human-in-the-loop: the report only suggests.
	assert.Equal(t, incident.StatusPending, res.Incident.Status)
	r, err := svc.responders.Get("R1")
	require.NoError(t, err)
	assert.Equal(t, responder.Available, r.Availability)
}

func TestCapabilityFor(t *testing.T) {
	assert.Equal(t, responder.CapabilityGeneral, CapabilityFor(incident.TypeCritical))
	assert.Equal(t, responder.CapabilityMedical, CapabilityFor(incident.TypeMedical))
	assert.Equal(t, responder.CapabilityPolice, CapabilityFor(incident.TypeSecurity))
	assert.Equal(t, responder.CapabilityGeneral, CapabilityFor(incident.TypeSupport))
}

func TestAssignResponder_FullFlow(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	registerMedic(t, svc, "R1", types.Point{Lat: 11.9341, Lng: 79.8301})

	res, err := svc.ReportIncident(context.Background(), Report{
		ReporterID: "tourist-1",
		Type:       incident.TypeMedical,
		Location:   types.Point{Lat: 11.9340, Lng: 79.8300},
	})
	require.NoError(t, err)

	inc, err := svc.AssignResponder(res.Incident.ID, "R1")
	require.NoError(t, err)
	assert.Equal(t, incident.StatusAssigned, inc.Status)
	require.NotNil(t, inc.AssignedResponder)
	assert.Equal(t, types.ID("R1"), *inc.AssignedResponder)
	checkAssignmentInvariant(t, inc)

	r, err := svc.responders.Get("R1")
	require.NoError(t, err)
	assert.Equal(t, responder.Busy, r.Availability)

	// A second incident cannot take the same responder.
	res2, err := svc.ReportIncident(context.Background(), Report{
		ReporterID: "tourist-2",
		Type:       incident.TypeMedical,
		Location:   types.Point{Lat: 11.9350, Lng: 79.8310},
	})
	require.NoError(t, err)
	_, err = svc.AssignResponder(res2.Incident.ID, "R1")
	assert.ErrorIs(t, err, ErrResponderUnavailable)
}

func TestAssignResponder_NotFound(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	registerMedic(t, svc, "R1", types.Point{})

	_, err := svc.AssignResponder("missing", "R1")
	assert.ErrorIs(t, err, incident.ErrNotFound)

	res, err := svc.ReportIncident(context.Background(), Report{ReporterID: "t1", Type: incident.TypeSupport})
	require.NoError(t, err)
	_, err = svc.AssignResponder(res.Incident.ID, "missing")
	assert.ErrorIs(t, err, responder.ErrNotFound)
}

func TestAssignResponder_ResolvedIncident(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	registerMedic(t, svc, "R1", types.Point{})

	res, err := svc.ReportIncident(context.Background(), Report{ReporterID: "t1", Type: incident.TypeMedical})
	require.NoError(t, err)
	_, err = svc.AdvanceStatus(res.Incident.ID, incident.StatusResolved)
	require.NoError(t, err)

	_, err = svc.AssignResponder(res.Incident.ID, "R1")
	assert.ErrorIs(t, err, incident.ErrInvalidTransition)

	// The failed assignment must not leak a reservation.
	r, err := svc.responders.Get("R1")
	require.NoError(t, err)
	assert.Equal(t, responder.Available, r.Availability)
}

func TestAdvanceStatus_ResolveReleasesResponder(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	registerMedic(t, svc, "R1", types.Point{Lat: 11.9341, Lng: 79.8301})

	res, err := svc.ReportIncident(context.Background(), Report{
		ReporterID: "tourist-1",
		Type:       incident.TypeMedical,
		Location:   types.Point{Lat: 11.9340, Lng: 79.8300},
	})
	require.NoError(t, err)
	_, err = svc.AssignResponder(res.Incident.ID, "R1")
	require.NoError(t, err)

	inc, err := svc.AdvanceStatus(res.Incident.ID, incident.StatusResponding)
	require.NoError(t, err)
	checkAssignmentInvariant(t, inc)

	inc, err = svc.AdvanceStatus(res.Incident.ID, incident.StatusResolved)
	require.NoError(t, err)
	assert.Equal(t, incident.StatusResolved, inc.Status)
	checkAssignmentInvariant(t, inc)

	r, err := svc.responders.Get("R1")
	require.NoError(t, err)
	assert.Equal(t, responder.Available, r.Availability)
	assert.Nil(t, r.ActiveIncident)
}

func TestLocationUpdatePolicies(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	registerMedic(t, svc, "R1", types.Point{Lat: 11.9341, Lng: 79.8301})

	res, err := svc.ReportIncident(context.Background(), Report{
		ReporterID: "tourist-1",
		Type:       incident.TypeMedical,
		Location:   types.Point{Lat: 11.9340, Lng: 79.8300},
	})
	require.NoError(t, err)

	t1 := time.Now()
	t0 := t1.Add(-time.Minute)

	// Incident updates overwrite unconditionally, even out of order.
	_, err = svc.UpdateIncidentLocation(res.Incident.ID, types.Point{Lat: 1, Lng: 1}, t1)
	require.NoError(t, err)
	inc, err := svc.UpdateIncidentLocation(res.Incident.ID, types.Point{Lat: 2, Lng: 2}, t0)
	require.NoError(t, err)
	assert.Equal(t, types.Point{Lat: 2, Lng: 2}, inc.Location)

	// Responder telemetry is guarded: the stale sample is absorbed.
	applied, err := svc.UpdateResponderLocation("R1", types.Point{Lat: 3, Lng: 3}, t1)
	require.NoError(t, err)
	assert.True(t, applied)
	applied, err = svc.UpdateResponderLocation("R1", types.Point{Lat: 4, Lng: 4}, t0)
	require.NoError(t, err)
	assert.False(t, applied)
	r, err := svc.responders.Get("R1")
	require.NoError(t, err)
	assert.Equal(t, types.Point{Lat: 3, Lng: 3}, r.Location)
}

func TestAddMessage(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	res, err := svc.ReportIncident(context.Background(), Report{ReporterID: "t1", Type: incident.TypeSupport})
	require.NoError(t, err)

	inc, err := svc.AddMessage(res.Incident.ID, "t1", "I need help")
	require.NoError(t, err)
	require.Len(t, inc.Messages, 1)
	assert.Equal(t, "I need help", inc.Messages[0].Text)

	_, err = svc.AdvanceStatus(res.Incident.ID, incident.StatusResolved)
	require.NoError(t, err)
	_, err = svc.AddMessage(res.Incident.ID, "t1", "too late")
	assert.ErrorIs(t, err, incident.ErrTerminalState)
}

// TestConcurrentMutations_EventsStayOrdered hammers one incident with
// concurrent location updates and messages. The subscriber must observe
// strictly increasing sequence numbers, and the highest-sequence event must
// carry the newest snapshot.
func TestConcurrentMutations_EventsStayOrdered(t *testing.T) {
	svc, _, _, bus := newTestService(t)

	res, err := svc.ReportIncident(context.Background(), Report{
		ReporterID: "tourist-1",
		Type:       incident.TypeMedical,
		Location:   types.Point{Lat: 11.9340, Lng: 79.8300},
	})
	require.NoError(t, err)

	sub := bus.Subscribe()
	defer sub.Close()

	const writers = 4
	const perWriter = 10
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			<-start
			for j := 0; j < perWriter; j++ {
				if n%2 == 0 {
					_, err := svc.UpdateIncidentLocation(res.Incident.ID, types.Point{Lat: 11.9340, Lng: 79.8300}, time.Now())
					assert.NoError(t, err)
				} else {
					_, err := svc.AddMessage(res.Incident.ID, "tourist-1", "still here")
					assert.NoError(t, err)
				}
			}
		}(i)
	}
	close(start)
	wg.Wait()

	var prev uint64
	var last events.Event
	received := 0
	for received < writers*perWriter {
		select {
		case ev := <-sub.C():
			require.NotEqual(t, events.ResyncRequired, ev.Type, "subscriber buffer must not overflow in this test")
			require.Greater(t, ev.Seq, prev, "sequence went backwards")
			prev = ev.Seq
			last = ev
			received++
		case <-time.After(time.Second):
			t.Fatalf("timed out after %d events", received)
		}
	}

	// The final event's payload reflects the final store state.
	snap, ok := last.Payload.(*incident.Incident)
	require.True(t, ok)
	current, err := svc.GetIncident(res.Incident.ID)
	require.NoError(t, err)
	assert.Equal(t, current.LastUpdate, snap.LastUpdate)
	assert.Len(t, snap.Messages, len(current.Messages))
}

func TestEventsCarryGapFreeSequences(t *testing.T) {
	svc, _, _, bus := newTestService(t)
	registerMedic(t, svc, "R1", types.Point{Lat: 11.9341, Lng: 79.8301})

	sub := bus.Subscribe()
	defer sub.Close()

	res, err := svc.ReportIncident(context.Background(), Report{
		ReporterID: "tourist-1",
		Type:       incident.TypeMedical,
		Location:   types.Point{Lat: 11.9340, Lng: 79.8300},
	})
	require.NoError(t, err)
	_, err = svc.AssignResponder(res.Incident.ID, "R1")
	require.NoError(t, err)
	_, err = svc.AdvanceStatus(res.Incident.ID, incident.StatusResolved)
	require.NoError(t, err)

	wantTypes := []events.EventType{
		events.IncidentCreated,
		events.IncidentAssigned,
		events.IncidentStatusChanged,
	}
	for i, want := range wantTypes {
		select {
		case ev := <-sub.C():
			assert.Equal(t, want, ev.Type)
			assert.Equal(t, res.Incident.ID, ev.Stream)
			assert.Equal(t, uint64(i+1), ev.Seq)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}
