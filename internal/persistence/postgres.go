// README: Postgres Store; snapshots are queued and flushed by a background writer.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"aegis/internal/modules/incident"
	"aegis/internal/modules/responder"
	"aegis/internal/types"
)

// writeQueueSize bounds the async write backlog. When the DB cannot keep
// up, the newest snapshot wins and older queued ones for other entities are
// dropped with a warning; the engine is the source of truth either way.
const writeQueueSize = 1024

// Postgres implements Store on pgx. Save enqueues; a single worker drains
// the queue so no engine mutation ever blocks on the database.
type Postgres struct {
	db  *pgxpool.Pool
	log *logrus.Logger

	incCh chan *incident.Incident
	resCh chan *responder.Responder
}

func NewPostgres(db *pgxpool.Pool, log *logrus.Logger) *Postgres {
	return &Postgres{
		db:    db,
		log:   log,
		incCh: make(chan *incident.Incident, writeQueueSize),
		resCh: make(chan *responder.Responder, writeQueueSize),
	}
}

// Start runs the background writer until ctx is cancelled.
func (p *Postgres) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case inc := <-p.incCh:
				if err := p.upsertIncident(ctx, inc); err != nil {
					p.log.WithError(err).WithField("incident_id", inc.ID).Error("persist incident")
				}
			case r := <-p.resCh:
				if err := p.upsertResponder(ctx, r); err != nil {
					p.log.WithError(err).WithField("responder_id", r.ID).Error("persist responder")
				}
			}
		}
	}()
}

func (p *Postgres) SaveIncident(inc *incident.Incident) {
	select {
	case p.incCh <- inc:
	default:
		p.log.WithField("incident_id", inc.ID).Warn("persistence queue full, dropping incident snapshot")
	}
}

func (p *Postgres) SaveResponder(r *responder.Responder) {
	select {
	case p.resCh <- r:
	default:
		p.log.WithField("responder_id", r.ID).Warn("persistence queue full, dropping responder snapshot")
	}
}

func (p *Postgres) upsertIncident(ctx context.Context, inc *incident.Incident) error {
	messages, err := json.Marshal(inc.Messages)
	if err != nil {
		return err
	}
	_, err = p.db.Exec(ctx, `
        INSERT INTO incidents (
            id, reporter_id, type, lat, lng, address, status,
            assigned_responder, risk_score, messages, created_at, last_update
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
        ON CONFLICT (id) DO UPDATE SET
            lat = EXCLUDED.lat,
            lng = EXCLUDED.lng,
            address = EXCLUDED.address,
            status = EXCLUDED.status,
            assigned_responder = EXCLUDED.assigned_responder,
            risk_score = EXCLUDED.risk_score,
            messages = EXCLUDED.messages,
            last_update = EXCLUDED.last_update`,
		string(inc.ID),
		string(inc.ReporterID),
		string(inc.Type),
		inc.Location.Lat, inc.Location.Lng,
		inc.Address,
		string(inc.Status),
		idPtr(inc.AssignedResponder),
		inc.RiskScore,
		messages,
		inc.CreatedAt,
		inc.LastUpdate,
	)
	return err
}

func (p *Postgres) upsertResponder(ctx context.Context, r *responder.Responder) error {
	caps := make([]string, len(r.Capabilities))
	for i, c := range r.Capabilities {
		caps[i] = string(c)
	}
	_, err := p.db.Exec(ctx, `
        INSERT INTO responders (
            id, lat, lng, capabilities, availability, active_incident,
            department, unit_rank, last_update
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (id) DO UPDATE SET
            lat = EXCLUDED.lat,
            lng = EXCLUDED.lng,
            capabilities = EXCLUDED.capabilities,
            availability = EXCLUDED.availability,
            active_incident = EXCLUDED.active_incident,
            department = EXCLUDED.department,
            unit_rank = EXCLUDED.unit_rank,
            last_update = EXCLUDED.last_update`,
		string(r.ID),
		r.Location.Lat, r.Location.Lng,
		caps,
		string(r.Availability),
		idPtr(r.ActiveIncident),
		r.Department,
		r.Rank,
		r.LastUpdate,
	)
	return err
}

// LoadAll rehydrates every incident and responder; called once at startup.
func (p *Postgres) LoadAll(ctx context.Context) ([]*incident.Incident, []*responder.Responder, error) {
	incs, err := p.loadIncidents(ctx)
	if err != nil {
		return nil, nil, err
	}
	rs, err := p.loadResponders(ctx)
	if err != nil {
		return nil, nil, err
	}
	return incs, rs, nil
}

func (p *Postgres) loadIncidents(ctx context.Context) ([]*incident.Incident, error) {
	rows, err := p.db.Query(ctx, `
        SELECT id, reporter_id, type, lat, lng, address, status,
               assigned_responder, risk_score, messages, created_at, last_update
        FROM incidents`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*incident.Incident
	for rows.Next() {
		var inc incident.Incident
		var assigned sql.NullString
		var risk sql.NullFloat64
		var messages []byte
		err := rows.Scan(
			&inc.ID, &inc.ReporterID, &inc.Type,
			&inc.Location.Lat, &inc.Location.Lng,
			&inc.Address, &inc.Status,
			&assigned, &risk, &messages,
			&inc.CreatedAt, &inc.LastUpdate,
		)
		if err != nil {
			return nil, err
		}
		if assigned.Valid {
			v := types.ID(assigned.String)
			inc.AssignedResponder = &v
		}
		if risk.Valid {
			v := risk.Float64
			inc.RiskScore = &v
		}
		if len(messages) > 0 {
			if err := json.Unmarshal(messages, &inc.Messages); err != nil {
				return nil, err
			}
		}
		out = append(out, &inc)
	}
	return out, rows.Err()
}

func (p *Postgres) loadResponders(ctx context.Context) ([]*responder.Responder, error) {
	rows, err := p.db.Query(ctx, `
        SELECT id, lat, lng, capabilities, availability, active_incident,
               department, unit_rank, last_update
        FROM responders`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*responder.Responder
	for rows.Next() {
		var r responder.Responder
		var caps []string
		var active sql.NullString
		err := rows.Scan(
			&r.ID, &r.Location.Lat, &r.Location.Lng,
			&caps, &r.Availability, &active,
			&r.Department, &r.Rank, &r.LastUpdate,
		)
		if err != nil {
			return nil, err
		}
		for _, c := range caps {
			r.Capabilities = append(r.Capabilities, responder.Capability(c))
		}
		if active.Valid {
			v := types.ID(active.String)
			r.ActiveIncident = &v
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func idPtr(id *types.ID) *string {
	if id == nil {
		return nil
	}
	v := string(*id)
	return &v
}
