// README: Responder registry; owns responder records and the spatial index.
package responder

import (
	"context"
	"errors"
	"sync"
	"time"

	"aegis/internal/geo"
	"aegis/internal/types"
)

var (
	ErrNotFound          = errors.New("responder not found")
	ErrDuplicateID       = errors.New("responder id already registered")
	ErrInvalidTransition = errors.New("invalid availability transition")
)

// Saver receives a snapshot after every mutation so an external store can
// rehydrate state on restart.
type Saver interface {
	SaveResponder(r *Responder)
}

// Candidate is a dispatch-eligible responder together with its distance
// from the query point.
type Candidate struct {
	Responder *Responder
	DistanceM float64
}

// Registry owns responder records and keeps the geo index consistent with
// them. The index is mutated only through registry methods.
type Registry struct {
	mu      sync.RWMutex
	entries map[types.ID]*entry

	index *geo.Index
	saver Saver
	now   func() time.Time
}

type entry struct {
	mu sync.Mutex
	r  *Responder
}

func NewRegistry(saver Saver) *Registry {
	return &Registry{
		entries: make(map[types.ID]*entry),
		index:   geo.NewIndex(),
		saver:   saver,
		now:     time.Now,
	}
}

// Register adds a new responder. The record starts with no active
// assignment whatever the caller set.
func (g *Registry) Register(r *Responder) (*Responder, error) {
	stored := r.clone()
	stored.ActiveIncident = nil
	if stored.Availability == "" {
		stored.Availability = Offline
	}
	if stored.Availability == Busy {
		return nil, ErrInvalidTransition
	}
	if len(stored.Capabilities) == 0 {
		stored.Capabilities = []Capability{CapabilityGeneral}
	}
	if stored.LastUpdate.IsZero() {
		stored.LastUpdate = g.now()
	}

	g.mu.Lock()
	if _, exists := g.entries[stored.ID]; exists {
		g.mu.Unlock()
		return nil, ErrDuplicateID
	}
	g.entries[stored.ID] = &entry{r: stored}
	g.mu.Unlock()

	g.index.Insert(stored.ID, stored.Location)
	g.save(stored)
	return stored.clone(), nil
}

func (g *Registry) Get(id types.ID) (*Responder, error) {
	e, err := g.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.r.clone(), nil
}

// UpdateLocation applies a telemetry sample. Samples older than the last
// applied one are discarded (applied=false, no error): out-of-order network
// delivery must never regress an observed position.
func (g *Registry) UpdateLocation(id types.ID, pos types.Point, at time.Time) (applied bool, err error) {
	e, err := g.lookup(id)
	if err != nil {
		return false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if at.Before(e.r.LastUpdate) {
		return false, nil
	}
	e.r.Location = pos
	e.r.LastUpdate = at
	g.index.Insert(id, pos)
	g.save(e.r)
	return true, nil
}

// SetAvailability sets a responder available or offline. Busy is reserved
// for the dispatch path (Assign), and a busy responder cannot be moved
// until its incident releases it.
func (g *Registry) SetAvailability(id types.ID, a Availability) (*Responder, error) {
	if a != Available && a != Offline {
		return nil, ErrInvalidTransition
	}
	e, err := g.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.r.Availability == Busy {
		return nil, ErrInvalidTransition
	}
	e.r.Availability = a
	e.r.LastUpdate = g.now()
	g.save(e.r)
	return e.r.clone(), nil
}

// Assign marks a responder busy with the given incident. It fails without
// mutating anything unless the responder is currently available, so exactly
// one of any set of concurrent assignments can win.
func (g *Registry) Assign(id, incidentID types.ID) (*Responder, error) {
	e, err := g.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.r.Availability != Available {
		return nil, ErrInvalidTransition
	}
	inc := incidentID
	e.r.Availability = Busy
	e.r.ActiveIncident = &inc
	e.r.LastUpdate = g.now()
	g.save(e.r)
	return e.r.clone(), nil
}

// Release returns a responder to available once its incident no longer
// holds it. No-op if the responder is not busy with that incident.
func (g *Registry) Release(id, incidentID types.ID) (*Responder, error) {
	e, err := g.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.r.Availability != Busy || e.r.ActiveIncident == nil || *e.r.ActiveIncident != incidentID {
		return e.r.clone(), nil
	}
	e.r.Availability = Available
	e.r.ActiveIncident = nil
	e.r.LastUpdate = g.now()
	g.save(e.r)
	return e.r.clone(), nil
}

// FindNearestAvailable returns up to limit available responders within
// maxRadiusMeters of point that can serve the requested capability,
// ascending by distance. The scan honors ctx so a slow query never holds
// entity locks past the caller's deadline.
func (g *Registry) FindNearestAvailable(ctx context.Context, point types.Point, maxRadiusMeters float64, cap Capability, limit int) ([]Candidate, error) {
	if limit <= 0 {
		return nil, nil
	}
	// Over-fetch from the index: availability and capability filtering
	// happens here, not in the index.
	neighbors := g.index.QueryNearest(point, maxRadiusMeters, g.index.Len())

	out := make([]Candidate, 0, limit)
	for _, n := range neighbors {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e, err := g.lookup(n.ID)
		if err != nil {
			continue // removed between index read and record read
		}
		e.mu.Lock()
		eligible := e.r.Availability == Available && e.r.HasCapability(cap)
		var snap *Responder
		if eligible {
			snap = e.r.clone()
		}
		e.mu.Unlock()
		if !eligible {
			continue
		}
		out = append(out, Candidate{Responder: snap, DistanceM: n.DistanceM})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// Load seeds the registry from rehydrated records. Meant for startup.
func (g *Registry) Load(rs []*Responder) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, r := range rs {
		g.entries[r.ID] = &entry{r: r.clone()}
		g.index.Insert(r.ID, r.Location)
	}
}

func (g *Registry) lookup(id types.ID) (*entry, error) {
	g.mu.RLock()
	e, ok := g.entries[id]
	g.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

func (g *Registry) save(r *Responder) {
	if g.saver != nil {
		g.saver.SaveResponder(r.clone())
	}
}
