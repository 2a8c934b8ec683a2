// README: In-memory Store; the default when no database is configured.
package persistence

import (
	"context"
	"sync"

	"aegis/internal/modules/incident"
	"aegis/internal/modules/responder"
	"aegis/internal/types"
)

// Memory keeps snapshots in process memory. State does not survive a
// restart; it exists so the engine can run without Postgres and so tests
// can assert on what was saved.
type Memory struct {
	mu         sync.Mutex
	incidents  map[types.ID]*incident.Incident
	responders map[types.ID]*responder.Responder
}

func NewMemory() *Memory {
	return &Memory{
		incidents:  make(map[types.ID]*incident.Incident),
		responders: make(map[types.ID]*responder.Responder),
	}
}

func (m *Memory) SaveIncident(inc *incident.Incident) {
	m.mu.Lock()
	m.incidents[inc.ID] = inc
	m.mu.Unlock()
}

func (m *Memory) SaveResponder(r *responder.Responder) {
	m.mu.Lock()
	m.responders[r.ID] = r
	m.mu.Unlock()
}

func (m *Memory) LoadAll(_ context.Context) ([]*incident.Incident, []*responder.Responder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	incs := make([]*incident.Incident, 0, len(m.incidents))
	for _, inc := range m.incidents {
		incs = append(incs, inc)
	}
	rs := make([]*responder.Responder, 0, len(m.responders))
	for _, r := range m.responders {
		rs = append(rs, r)
	}
	return incs, rs, nil
}
