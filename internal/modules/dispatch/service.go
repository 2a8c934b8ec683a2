// README: Dispatch coordinator; the only component coupling incident and responder state.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"aegis/internal/events"
	"aegis/internal/modules/incident"
	"aegis/internal/modules/responder"
	"aegis/internal/types"
)

var ErrResponderUnavailable = errors.New("responder not available")

// Config tunes the auto-match query issued on every report.
type Config struct {
	// MatchRadiusMeters is how far from the incident to look for candidates.
	MatchRadiusMeters float64
	// CandidateLimit caps how many candidates a report suggests.
	CandidateLimit int
}

func DefaultConfig() Config {
	return Config{MatchRadiusMeters: 5000, CandidateLimit: 3}
}

// CapabilityFor maps an incident type to the responder specialization a
// dispatcher should look for.
func CapabilityFor(t incident.Type) responder.Capability {
	switch t {
	case incident.TypeMedical:
		return responder.CapabilityMedical
	case incident.TypeSecurity:
		return responder.CapabilityPolice
	default: // critical, support
		return responder.CapabilityGeneral
	}
}

// Service orchestrates matching and lifecycle transitions across the
// incident store and the responder registry. It owns no records itself.
type Service struct {
	incidents  *incident.Store
	responders *responder.Registry
	bus        *events.Bus
	cfg        Config
	log        *logrus.Logger

	// mu serializes every mutation together with its event publication.
	// It keeps assignment all-or-nothing (one responder can never win two
	// incidents) and keeps event order aligned with mutation order, so a
	// higher sequence number always carries the newer snapshot.
	mu sync.Mutex
}

func NewService(incidents *incident.Store, responders *responder.Registry, bus *events.Bus, cfg Config, log *logrus.Logger) *Service {
	if cfg.MatchRadiusMeters <= 0 {
		cfg.MatchRadiusMeters = DefaultConfig().MatchRadiusMeters
	}
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = DefaultConfig().CandidateLimit
	}
	return &Service{
		incidents:  incidents,
		responders: responders,
		bus:        bus,
		cfg:        cfg,
		log:        log,
	}
}

// Report is the ReportIncident input.
type Report struct {
	ReporterID types.ID
	Type       incident.Type
	Location   types.Point
	Address    string
	RiskScore  *float64
}

// ReportResult carries the stored incident and the auto-match suggestions.
// Candidates are advisory: assignment stays a separate, explicit authority
// action.
type ReportResult struct {
	Incident   *incident.Incident
	Candidates []responder.Candidate
}

// ReportIncident creates the incident and immediately queries for nearby
// eligible responders. The top candidate is never auto-assigned.
func (s *Service) ReportIncident(ctx context.Context, rep Report) (*ReportResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inc, err := s.incidents.Create(&incident.Incident{
		ReporterID: rep.ReporterID,
		Type:       rep.Type,
		Location:   rep.Location,
		Address:    rep.Address,
		RiskScore:  rep.RiskScore,
	})
	if err != nil {
		return nil, err
	}

	cands, err := s.responders.FindNearestAvailable(ctx, inc.Location, s.cfg.MatchRadiusMeters, CapabilityFor(inc.Type), s.cfg.CandidateLimit)
	if err != nil {
		// The incident exists either way; candidates are best-effort.
		s.log.WithError(err).WithField("incident_id", inc.ID).Warn("candidate query aborted")
		cands = nil
	}

	s.publishIncident(events.IncidentCreated, inc)
	s.log.WithFields(logrus.Fields{
		"incident_id": inc.ID,
		"type":        inc.Type,
		"candidates":  len(cands),
	}).Info("incident reported")

	return &ReportResult{Incident: inc, Candidates: cands}, nil
}

// AssignResponder commits an authority's choice: the incident moves to
// assigned and the responder to busy, all or nothing.
func (s *Service) AssignResponder(incidentID, responderID types.ID) (*incident.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inc, err := s.incidents.Get(incidentID)
	if err != nil {
		return nil, err
	}
	if !incident.CanTransition(inc.Status, incident.StatusAssigned) {
		return nil, incident.ErrInvalidTransition
	}

	// Reserve the responder first: reservation is the contended step and
	// is cheap to undo if the incident transition fails.
	if _, err := s.responders.Assign(responderID, incidentID); err != nil {
		if errors.Is(err, responder.ErrInvalidTransition) {
			return nil, ErrResponderUnavailable
		}
		return nil, err
	}

	inc, err = s.incidents.TransitionStatus(incidentID, incident.StatusAssigned, &responderID)
	if err != nil {
		if _, relErr := s.responders.Release(responderID, incidentID); relErr != nil {
			s.log.WithError(relErr).WithField("responder_id", responderID).Error("rollback release failed")
		}
		return nil, err
	}

	s.publishIncident(events.IncidentAssigned, inc)
	s.log.WithFields(logrus.Fields{
		"incident_id":  incidentID,
		"responder_id": responderID,
	}).Info("responder assigned")
	return inc, nil
}

// AdvanceStatus moves an incident forward. Resolving returns the previously
// assigned responder, if any, to available.
func (s *Service) AdvanceStatus(incidentID types.ID, to incident.Status) (*incident.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, err := s.incidents.Get(incidentID)
	if err != nil {
		return nil, err
	}

	inc, err := s.incidents.TransitionStatus(incidentID, to, nil)
	if err != nil {
		return nil, err
	}

	if to == incident.StatusResolved && prev.AssignedResponder != nil {
		if _, err := s.responders.Release(*prev.AssignedResponder, incidentID); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"incident_id":  incidentID,
				"responder_id": *prev.AssignedResponder,
			}).Error("release after resolve failed")
		}
	}

	s.publishIncident(events.IncidentStatusChanged, inc)
	return inc, nil
}

// UpdateIncidentLocation overwrites the reporter's position.
func (s *Service) UpdateIncidentLocation(incidentID types.ID, pos types.Point, at time.Time) (*incident.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if at.IsZero() {
		at = time.Now()
	}
	inc, err := s.incidents.UpdateLocation(incidentID, pos, at)
	if err != nil {
		return nil, err
	}
	s.publishIncident(events.IncidentLocationUpdated, inc)
	return inc, nil
}

// AddMessage appends to the incident conversation.
func (s *Service) AddMessage(incidentID, senderID types.ID, text string) (*incident.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inc, err := s.incidents.AppendMessage(incidentID, types.Message{SenderID: senderID, Text: text})
	if err != nil {
		return nil, err
	}
	s.publishIncident(events.IncidentMessageAdded, inc)
	return inc, nil
}

// GetIncident and ListIncidents are read-only pass-throughs for adapters.
func (s *Service) GetIncident(id types.ID) (*incident.Incident, error) {
	return s.incidents.Get(id)
}

func (s *Service) ListIncidents(f incident.ListFilter) []*incident.Incident {
	return s.incidents.List(f)
}

// RegisterResponder adds a field unit to the registry.
func (s *Service) RegisterResponder(r *responder.Responder) (*responder.Responder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.responders.Register(r)
	if err != nil {
		return nil, err
	}
	s.publishResponder(events.ResponderStatusChanged, stored)
	return stored, nil
}

// UpdateResponderLocation applies a telemetry sample. Stale samples are
// absorbed silently: no event, no error.
func (s *Service) UpdateResponderLocation(id types.ID, pos types.Point, at time.Time) (applied bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	applied, err = s.responders.UpdateLocation(id, pos, at)
	if err != nil || !applied {
		return applied, err
	}
	r, err := s.responders.Get(id)
	if err != nil {
		return true, err
	}
	s.publishResponder(events.ResponderLocationUpdated, r)
	return true, nil
}

// SetResponderAvailability sets a unit available or offline. Busy is owned
// by the assignment path and cannot be set here.
func (s *Service) SetResponderAvailability(id types.ID, a responder.Availability) (*responder.Responder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.responders.SetAvailability(id, a)
	if err != nil {
		return nil, err
	}
	s.publishResponder(events.ResponderStatusChanged, r)
	return r, nil
}

// FindNearestAvailable exposes the candidate query to adapters.
func (s *Service) FindNearestAvailable(ctx context.Context, point types.Point, radiusMeters float64, cap responder.Capability, limit int) ([]responder.Candidate, error) {
	if radiusMeters <= 0 {
		radiusMeters = s.cfg.MatchRadiusMeters
	}
	if limit <= 0 {
		limit = s.cfg.CandidateLimit
	}
	return s.responders.FindNearestAvailable(ctx, point, radiusMeters, cap, limit)
}

func (s *Service) publishIncident(t events.EventType, inc *incident.Incident) {
	s.bus.Publish(events.Event{Type: t, Stream: inc.ID, Payload: inc})
}

func (s *Service) publishResponder(t events.EventType, r *responder.Responder) {
	s.bus.Publish(events.Event{Type: t, Stream: r.ID, Payload: r})
}
