// README: Responder record, capability, and availability definitions.
package responder

import (
	"time"

	"aegis/internal/types"
)

type Capability string

const (
	CapabilityMedical Capability = "medical"
	CapabilityPolice  Capability = "police"
	CapabilityFire    Capability = "fire"
	CapabilityGeneral Capability = "general"
)

// ValidCapability reports whether c is one of the known specializations.
func ValidCapability(c Capability) bool {
	switch c {
	case CapabilityMedical, CapabilityPolice, CapabilityFire, CapabilityGeneral:
		return true
	}
	return false
}

type Availability string

const (
	Available Availability = "available"
	Busy      Availability = "busy"
	Offline   Availability = "offline"
)

type Responder struct {
	ID           types.ID     `json:"id"`
	Location     types.Point  `json:"location"`
	Capabilities []Capability `json:"capabilities"`
	Availability Availability `json:"availability"`
	// ActiveIncident is set exactly while Availability is Busy.
	ActiveIncident *types.ID `json:"active_incident,omitempty"`
	// Department and Rank are advisory console metadata.
	Department string    `json:"department,omitempty"`
	Rank       string    `json:"rank,omitempty"`
	LastUpdate time.Time `json:"last_update"`
}

// HasCapability reports whether the responder can serve the requested
// specialization. A general-capability responder serves any request.
func (r *Responder) HasCapability(want Capability) bool {
	for _, c := range r.Capabilities {
		if c == want || c == CapabilityGeneral {
			return true
		}
	}
	return false
}

func (r *Responder) clone() *Responder {
	out := *r
	if r.ActiveIncident != nil {
		v := *r.ActiveIncident
		out.ActiveIncident = &v
	}
	out.Capabilities = make([]Capability, len(r.Capabilities))
	copy(out.Capabilities, r.Capabilities)
	return &out
}
