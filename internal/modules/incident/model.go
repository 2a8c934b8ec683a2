// README: Incident aggregate, status graph, and type definitions.
package incident

import (
	"time"

	"aegis/internal/types"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusAssigned   Status = "assigned"
	StatusResponding Status = "responding"
	StatusResolved   Status = "resolved"
)

type Type string

const (
	TypeCritical Type = "critical"
	TypeMedical  Type = "medical"
	TypeSecurity Type = "security"
	TypeSupport  Type = "support"
)

// ValidType reports whether t is one of the known incident types.
func ValidType(t Type) bool {
	switch t {
	case TypeCritical, TypeMedical, TypeSecurity, TypeSupport:
		return true
	}
	return false
}

type Incident struct {
	ID         types.ID    `json:"id"`
	ReporterID types.ID    `json:"reporter_id"`
	Type       Type        `json:"type"`
	Location   types.Point `json:"location"`
	// Address is an advisory human-readable annotation of Location,
	// filled in by the ingress adapter when a geocoder is configured.
	Address           string    `json:"address,omitempty"`
	Status            Status    `json:"status"`
	AssignedResponder *types.ID `json:"assigned_responder,omitempty"`
	// RiskScore is an opaque 0-100 attribute supplied by the reporter's
	// client. Advisory only; it never gates dispatch eligibility.
	RiskScore  *float64        `json:"risk_score,omitempty"`
	Messages   []types.Message `json:"messages,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	LastUpdate time.Time       `json:"last_update"`
}

// AllowedTransitions represents the incident state flow (diagram) as code.
// Resolved is terminal; pending may resolve directly to support
// reporter-side cancellation.
var AllowedTransitions = map[Status][]Status{
	StatusPending:    {StatusAssigned, StatusResponding, StatusResolved},
	StatusAssigned:   {StatusResponding, StatusResolved},
	StatusResponding: {StatusResolved},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// clone returns a deep copy so callers never alias store-owned state.
func (i *Incident) clone() *Incident {
	out := *i
	if i.AssignedResponder != nil {
		v := *i.AssignedResponder
		out.AssignedResponder = &v
	}
	if i.RiskScore != nil {
		v := *i.RiskScore
		out.RiskScore = &v
	}
	out.Messages = make([]types.Message, len(i.Messages))
	copy(out.Messages, i.Messages)
	return &out
}
