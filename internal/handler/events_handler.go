package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/menumaster/orderstream/internal/domain"
	"github.com/menumaster/orderstream/internal/hub"
	"github.com/menumaster/orderstream/pkg/log"
	"github.com/menumaster/orderstream/pkg/response"
)

// EventsHandler accepts events over plain HTTP. It exists for producers
// without a socket attachment: server-side writers and poll-mode clients
// publishing after a store write.
type EventsHandler struct {
	hub *hub.Hub
}

func NewEventsHandler(h *hub.Hub) *EventsHandler {
	return &EventsHandler{hub: h}
}

func (h *EventsHandler) PublishEvent(c *gin.Context) {
	l := log.Ctx(c.Request.Context())

	var evt domain.Event
	if err := c.ShouldBindJSON(&evt); err != nil {
		l.Warn().Err(err).Msg("failed to bind event")
		response.BadRequest(c, err.Error())
		return
	}
	if !evt.Valid() {
		response.BadRequest(c, "event must carry a kind, orderId and outletId")
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	// HTTP producers usually hold no session; one that does (a push
	// client falling back to HTTP) names it so fan-out excludes it.
	h.hub.Publish(evt, c.GetHeader(domain.HeaderSessionID))

	response.Accepted(c, gin.H{
		"kind":    evt.Kind,
		"orderId": evt.Order.OrderID,
	})
}
