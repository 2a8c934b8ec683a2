// README: Shared handler utilities (JSON helpers, domain error mapping).
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"aegis/internal/modules/dispatch"
	"aegis/internal/modules/incident"
	"aegis/internal/modules/responder"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// writeDomainError translates the engine's error taxonomy into transport
// status codes.
func writeDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, incident.ErrNotFound), errors.Is(err, responder.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, incident.ErrInvalidTransition),
		errors.Is(err, incident.ErrTerminalState),
		errors.Is(err, incident.ErrDuplicateID),
		errors.Is(err, responder.ErrInvalidTransition),
		errors.Is(err, responder.ErrDuplicateID),
		errors.Is(err, dispatch.ErrResponderUnavailable):
		writeError(c, http.StatusConflict, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(c, http.StatusRequestTimeout, "query cancelled")
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}
