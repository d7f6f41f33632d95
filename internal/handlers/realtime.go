package handlers

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/gridbasehq/gridbase/internal/realtime"
	"github.com/gridbasehq/gridbase/pkg/response"
)

// RealtimeHandler upgrades clients onto the realtime hub.
type RealtimeHandler struct {
	hub *realtime.Hub
}

// NewRealtimeHandler constructs a RealtimeHandler.
func NewRealtimeHandler(hub *realtime.Hub) (*RealtimeHandler, error) {
	if hub == nil {
		return nil, fmt.Errorf("realtime handler requires hub")
	}
	return &RealtimeHandler{hub: hub}, nil
}

// Serve upgrades the request to a WebSocket. Initial streams come from the
// comma-separated "streams" query parameter; clients can subscribe to more
// with control messages.
// GET /api/ws
func (h *RealtimeHandler) Serve(c *gin.Context) {
	actor, err := actorID(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var streams []string
	if raw := c.Query("streams"); raw != "" {
		streams = strings.Split(raw, ",")
	}

	h.hub.Serve(actor, streams, nil, c.Writer, c.Request)
}
