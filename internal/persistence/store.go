// README: Durable-store contract the engine depends on; engines never block on it.
package persistence

import (
	"context"

	"aegis/internal/modules/incident"
	"aegis/internal/modules/responder"
)

// Store receives a snapshot after every incident/responder mutation and can
// rehydrate both on restart. Save calls must return quickly: durability is
// an external concern and the in-memory engine never waits on I/O.
type Store interface {
	incident.Saver
	responder.Saver
	LoadAll(ctx context.Context) ([]*incident.Incident, []*responder.Responder, error)
}
