// README: Incident handlers: report, list, stats, location, messages, assignment, status.
package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"aegis/internal/maps"
	"aegis/internal/modules/dispatch"
	"aegis/internal/modules/incident"
	"aegis/internal/types"
)

// geocodeTimeout caps the best-effort address lookup so a slow Maps call
// never delays an SOS report.
const geocodeTimeout = time.Second

type IncidentHandler struct {
	dispatch *dispatch.Service
	geocoder maps.Geocoder
	validate *validator.Validate
	log      *logrus.Logger
}

func NewIncidentHandler(svc *dispatch.Service, geocoder maps.Geocoder, log *logrus.Logger) *IncidentHandler {
	return &IncidentHandler{
		dispatch: svc,
		geocoder: geocoder,
		validate: validator.New(),
		log:      log,
	}
}

type reportIncidentReq struct {
	ReporterID string   `json:"reporter_id" validate:"required"`
	Type       string   `json:"type" validate:"required"`
	Lat        float64  `json:"lat" validate:"min=-90,max=90"`
	Lng        float64  `json:"lng" validate:"min=-180,max=180"`
	RiskScore  *float64 `json:"risk_score" validate:"omitempty,min=0,max=100"`
}

type candidateResp struct {
	ResponderID types.ID `json:"responder_id"`
	DistanceM   float64  `json:"distance_m"`
}

func (h *IncidentHandler) Report(c *gin.Context) {
	var req reportIncidentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	if !incident.ValidType(incident.Type(req.Type)) {
		writeError(c, http.StatusBadRequest, "unknown incident type")
		return
	}

	loc := types.Point{Lat: req.Lat, Lng: req.Lng}
	res, err := h.dispatch.ReportIncident(c.Request.Context(), dispatch.Report{
		ReporterID: types.ID(req.ReporterID),
		Type:       incident.Type(req.Type),
		Location:   loc,
		Address:    h.lookupAddress(c.Request.Context(), loc),
		RiskScore:  req.RiskScore,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}

	candidates := make([]candidateResp, 0, len(res.Candidates))
	for _, cand := range res.Candidates {
		candidates = append(candidates, candidateResp{
			ResponderID: cand.Responder.ID,
			DistanceM:   cand.DistanceM,
		})
	}
	writeJSON(c, http.StatusCreated, gin.H{
		"incident":   res.Incident,
		"candidates": candidates,
	})
}

func (h *IncidentHandler) Get(c *gin.Context) {
	inc, err := h.dispatch.GetIncident(types.ID(c.Param("id")))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, inc)
}

func (h *IncidentHandler) List(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	incs := h.dispatch.ListIncidents(incident.ListFilter{
		Status: incident.Status(c.Query("status")),
		Type:   incident.Type(c.Query("type")),
		Limit:  limit,
	})
	writeJSON(c, http.StatusOK, incs)
}

// Stats summarizes incident counts for console dashboards. Computed by the
// adapter over the public List surface; heavier analytics live elsewhere.
func (h *IncidentHandler) Stats(c *gin.Context) {
	incs := h.dispatch.ListIncidents(incident.ListFilter{})
	byStatus := map[incident.Status]int{}
	byType := map[incident.Type]int{}
	for _, inc := range incs {
		byStatus[inc.Status]++
		byType[inc.Type]++
	}
	writeJSON(c, http.StatusOK, gin.H{
		"total":     len(incs),
		"by_status": byStatus,
		"by_type":   byType,
	})
}

type updateLocationReq struct {
	Lat       float64    `json:"lat" validate:"min=-90,max=90"`
	Lng       float64    `json:"lng" validate:"min=-180,max=180"`
	Timestamp *time.Time `json:"timestamp"`
}

func (h *IncidentHandler) UpdateLocation(c *gin.Context) {
	var req updateLocationReq
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
	inc, err := h.dispatch.UpdateIncidentLocation(types.ID(c.Param("id")), types.Point{Lat: req.Lat, Lng: req.Lng}, at)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, inc)
}

type addMessageReq struct {
	SenderID string `json:"sender_id" validate:"required"`
	Text     string `json:"text" validate:"required"`
}

func (h *IncidentHandler) AddMessage(c *gin.Context) {
	var req addMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	inc, err := h.dispatch.AddMessage(types.ID(c.Param("id")), types.ID(req.SenderID), req.Text)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, inc)
}

type assignReq struct {
	ResponderID string `json:"responder_id" validate:"required"`
}

func (h *IncidentHandler) Assign(c *gin.Context) {
	var req assignReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	inc, err := h.dispatch.AssignResponder(types.ID(c.Param("id")), types.ID(req.ResponderID))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, inc)
}

type advanceStatusReq struct {
	Status string `json:"status" validate:"required"`
}

func (h *IncidentHandler) AdvanceStatus(c *gin.Context) {
	var req advanceStatusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	inc, err := h.dispatch.AdvanceStatus(types.ID(c.Param("id")), incident.Status(req.Status))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, inc)
}

func (h *IncidentHandler) lookupAddress(ctx context.Context, loc types.Point) string {
	if h.geocoder == nil {
		return ""
	}
	gctx, cancel := context.WithTimeout(ctx, geocodeTimeout)
	defer cancel()
	addr, err := h.geocoder.ReverseGeocode(gctx, loc)
	if err != nil {
		h.log.WithError(err).Debug("reverse geocode failed")
		return ""
	}
	return addr
}
