// README: In-memory incident store; single source of truth for incident status.
package incident

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"aegis/internal/types"
)

var (
	ErrNotFound          = errors.New("incident not found")
	ErrDuplicateID       = errors.New("incident id already exists")
	ErrInvalidTransition = errors.New("invalid incident status transition")
	ErrTerminalState     = errors.New("incident already resolved")
)

// Saver receives a snapshot after every mutation so an external store can
// rehydrate state on restart. Implementations must not block; see the
// persistence adapter.
type Saver interface {
	SaveIncident(inc *Incident)
}

// Store owns incident records. Mutations are serialized per incident so
// unrelated incidents proceed fully in parallel.
type Store struct {
	mu      sync.RWMutex
	entries map[types.ID]*entry

	saver Saver
	now   func() time.Time
}

type entry struct {
	mu  sync.Mutex
	inc *Incident
}

func NewStore(saver Saver) *Store {
	return &Store{
		entries: make(map[types.ID]*entry),
		saver:   saver,
		now:     time.Now,
	}
}

// Create stores a new incident, assigning an ID if unset. Status always
// starts at pending regardless of the caller's value.
func (s *Store) Create(inc *Incident) (*Incident, error) {
	stored := inc.clone()
	if stored.ID == "" {
		stored.ID = types.ID(uuid.NewString())
	}
	stored.Status = StatusPending
	stored.AssignedResponder = nil
	now := s.now()
	stored.CreatedAt = now
	stored.LastUpdate = now

	s.mu.Lock()
	if _, exists := s.entries[stored.ID]; exists {
		s.mu.Unlock()
		return nil, ErrDuplicateID
	}
	s.entries[stored.ID] = &entry{inc: stored}
	s.mu.Unlock()

	s.save(stored)
	return stored.clone(), nil
}

func (s *Store) Get(id types.ID) (*Incident, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inc.clone(), nil
}

// ListFilter narrows List results. Zero values mean "no constraint".
type ListFilter struct {
	Status Status
	Type   Type
	Limit  int
}

// List returns matching incidents, newest first.
func (s *Store) List(f ListFilter) []*Incident {
	s.mu.RLock()
	all := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		all = append(all, e)
	}
	s.mu.RUnlock()

	out := make([]*Incident, 0, len(all))
	for _, e := range all {
		e.mu.Lock()
		inc := e.inc
		if (f.Status == "" || inc.Status == f.Status) && (f.Type == "" || inc.Type == f.Type) {
			out = append(out, inc.clone())
		}
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

// UpdateLocation overwrites the incident position unconditionally: the
// reporting client is the sole source of its own position, so unlike
// responder telemetry there is no monotonic timestamp guard.
func (s *Store) UpdateLocation(id types.ID, pos types.Point, at time.Time) (*Incident, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inc.Status == StatusResolved {
		return nil, ErrTerminalState
	}
	e.inc.Location = pos
	e.inc.LastUpdate = at
	s.save(e.inc)
	return e.inc.clone(), nil
}

// TransitionStatus moves an incident along the forward-only status graph.
// Entering assigned or responding requires a responder reference unless one
// is already set; entering resolved clears it.
func (s *Store) TransitionStatus(id types.ID, to Status, responder *types.ID) (*Incident, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	// Any move out of resolved, backward, or skipping policy is the same
	// failure: the graph simply has no such edge.
	if !CanTransition(e.inc.Status, to) {
		return nil, ErrInvalidTransition
	}

	switch to {
	case StatusAssigned, StatusResponding:
		if responder != nil {
			v := *responder
			e.inc.AssignedResponder = &v
		}
		if e.inc.AssignedResponder == nil {
			return nil, ErrInvalidTransition
		}
	case StatusResolved:
		e.inc.AssignedResponder = nil
	}

	e.inc.Status = to
	e.inc.LastUpdate = s.now()
	s.save(e.inc)
	return e.inc.clone(), nil
}

// AppendMessage adds to the incident's append-only conversation log.
func (s *Store) AppendMessage(id types.ID, msg types.Message) (*Incident, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inc.Status == StatusResolved {
		return nil, ErrTerminalState
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = s.now()
	}
	e.inc.Messages = append(e.inc.Messages, msg)
	e.inc.LastUpdate = msg.SentAt
	s.save(e.inc)
	return e.inc.clone(), nil
}

// Load seeds the store from rehydrated records. Meant for startup, before
// the store is shared.
func (s *Store) Load(incs []*Incident) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inc := range incs {
		s.entries[inc.ID] = &entry{inc: inc.clone()}
	}
}

func (s *Store) lookup(id types.ID) (*entry, error) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

func (s *Store) save(inc *Incident) {
	if s.saver != nil {
		s.saver.SaveIncident(inc.clone())
	}
}
