// README: Responder handlers: registration, telemetry, availability, nearest query.
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"aegis/internal/modules/dispatch"
	"aegis/internal/modules/responder"
	"aegis/internal/types"
)

type ResponderHandler struct {
	dispatch *dispatch.Service
	validate *validator.Validate
}

func NewResponderHandler(svc *dispatch.Service) *ResponderHandler {
	return &ResponderHandler{dispatch: svc, validate: validator.New()}
}

type registerResponderReq struct {
	ID           string   `json:"id" validate:"required"`
	Lat          float64  `json:"lat" validate:"min=-90,max=90"`
	Lng          float64  `json:"lng" validate:"min=-180,max=180"`
	Capabilities []string `json:"capabilities"`
	Availability string   `json:"availability"`
	Department   string   `json:"department"`
	Rank         string   `json:"rank"`
}

func (h *ResponderHandler) Register(c *gin.Context) {
	var req registerResponderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	caps := make([]responder.Capability, 0, len(req.Capabilities))
	for _, raw := range req.Capabilities {
		cap := responder.Capability(raw)
		if !responder.ValidCapability(cap) {
			writeError(c, http.StatusBadRequest, "unknown capability: "+raw)
			return
		}
		caps = append(caps, cap)
	}

	r, err := h.dispatch.RegisterResponder(&responder.Responder{
		ID:           types.ID(req.ID),
		Location:     types.Point{Lat: req.Lat, Lng: req.Lng},
		Capabilities: caps,
		Availability: responder.Availability(req.Availability),
		Department:   req.Department,
		Rank:         req.Rank,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, r)
}

type responderLocationReq struct {
	Lat       float64    `json:"lat" validate:"min=-90,max=90"`
	Lng       float64    `json:"lng" validate:"min=-180,max=180"`
	Timestamp *time.Time `json:"timestamp"`
}

func (h *ResponderHandler) UpdateLocation(c *gin.Context) {
	var req responderLocationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	at := time.Now()
	if req.Timestamp != nil {
		at = *req.Timestamp
	}
	applied, err := h.dispatch.UpdateResponderLocation(types.ID(c.Param("id")), types.Point{Lat: req.Lat, Lng: req.Lng}, at)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	// A stale sample is absorbed, not an error: the client learns it was
	// ignored and moves on.
	writeJSON(c, http.StatusOK, gin.H{"applied": applied})
}

type availabilityReq struct {
	Availability string `json:"availability" validate:"required,oneof=available offline"`
}

func (h *ResponderHandler) SetAvailability(c *gin.Context) {
	var req availabilityReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	r, err := h.dispatch.SetResponderAvailability(types.ID(c.Param("id")), responder.Availability(req.Availability))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

func (h *ResponderHandler) Nearest(c *gin.Context) {
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
	if errLat != nil || errLng != nil {
		writeError(c, http.StatusBadRequest, "lat and lng are required")
		return
	}
	radius, _ := strconv.ParseFloat(c.DefaultQuery("radius_m", "0"), 64)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	cap := responder.Capability(c.DefaultQuery("capability", string(responder.CapabilityGeneral)))
	if !responder.ValidCapability(cap) {
		writeError(c, http.StatusBadRequest, "unknown capability")
		return
	}

	cands, err := h.dispatch.FindNearestAvailable(c.Request.Context(), types.Point{Lat: lat, Lng: lng}, radius, cap, limit)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	out := make([]gin.H, 0, len(cands))
	for _, cand := range cands {
		out = append(out, gin.H{"responder": cand.Responder, "distance_m": cand.DistanceM})
	}
	writeJSON(c, http.StatusOK, out)
}
