// README: SSE stream handler pushing live events to authority consoles.
package handlers

import (
	"io"

	"github.com/gin-gonic/gin"

	"aegis/internal/events"
)

type StreamHandler struct {
	bus *events.Bus
}

func NewStreamHandler(bus *events.Bus) *StreamHandler {
	return &StreamHandler{bus: bus}
}

// Stream subscribes the console and forwards every event as a server-sent
// event until the client disconnects. Each console gets an independent
// bounded buffer, so one slow console never stalls dispatch or its peers.
func (h *StreamHandler) Stream(c *gin.Context) {
	sub := h.bus.Subscribe()
	defer sub.Close()

	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case ev := <-sub.C():
			c.SSEvent(string(ev.Type), ev)
			return true
		}
	})
}
