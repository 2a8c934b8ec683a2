// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"aegis/internal/events"
	"aegis/internal/http/handlers"
	"aegis/internal/http/middleware"
	"aegis/internal/infra"
	"aegis/internal/maps"
	"aegis/internal/modules/dispatch"
)

// RouterDeps carries everything the ingress adapter needs; components are
// constructed once in main and passed by reference, never through globals.
type RouterDeps struct {
	Dispatch *dispatch.Service
	Bus      *events.Bus
	Geocoder maps.Geocoder
	Verifier infra.TokenVerifier
	Log      *logrus.Logger
}

func NewRouter(deps RouterDeps) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.Recovery(deps.Log))
	r.Use(middleware.Logging(deps.Log))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	incidentHandler := handlers.NewIncidentHandler(deps.Dispatch, deps.Geocoder, deps.Log)
	responderHandler := handlers.NewResponderHandler(deps.Dispatch)
	streamHandler := handlers.NewStreamHandler(deps.Bus)

	api := r.Group("/api", middleware.Auth(deps.Verifier))

	api.POST("/incidents", incidentHandler.Report)
	api.GET("/incidents", incidentHandler.List)
	api.GET("/incidents/stats", incidentHandler.Stats)
	api.GET("/incidents/:id", incidentHandler.Get)
	api.PUT("/incidents/:id/location", incidentHandler.UpdateLocation)
	api.POST("/incidents/:id/messages", incidentHandler.AddMessage)
	api.POST("/incidents/:id/assign", incidentHandler.Assign)
	api.POST("/incidents/:id/status", incidentHandler.AdvanceStatus)

	api.POST("/responders", responderHandler.Register)
	api.PUT("/responders/:id/location", responderHandler.UpdateLocation)
	api.PUT("/responders/:id/availability", responderHandler.SetAvailability)
	api.GET("/responders/nearest", responderHandler.Nearest)

	api.GET("/stream", streamHandler.Stream)

	return r
}
