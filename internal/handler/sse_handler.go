package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/menumaster/orderstream/internal/config"
	"github.com/menumaster/orderstream/internal/domain"
	"github.com/menumaster/orderstream/internal/hub"
	"github.com/menumaster/orderstream/pkg/log"
)

// SSEHandler streams events to receive-only sessions over Server-Sent
// Events. SSE sessions cannot send control messages; an optional orderId
// query parameter subscribes them to that order's room at attach time.
type SSEHandler struct {
	hub    *hub.Hub
	sseCfg config.SSEConfig
}

func NewSSEHandler(h *hub.Hub, sseCfg config.SSEConfig) *SSEHandler {
	return &SSEHandler{hub: h, sseCfg: sseCfg}
}

func (h *SSEHandler) HandleStream(c *gin.Context) {
	outletID := c.Query("outletId")
	if outletID == "" {
		c.String(http.StatusBadRequest, "missing outletId")
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.String(http.StatusInternalServerError, "streaming unsupported")
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	session := hub.NewSSESession(uuid.New().String(), outletID)
	h.hub.Register(session)
	defer h.hub.Unregister(session)

	if orderID := c.Query("orderId"); orderID != "" {
		h.hub.JoinOrderRoom(session.ID(), orderID)
	}

	session.QueueMessage(&domain.ConnectionMessage{
		Type:      domain.MsgTypeConnection,
		OutletID:  outletID,
		SessionID: session.ID(),
		Message:   "connected to order stream",
	})

	keepalive := time.NewTicker(h.sseCfg.KeepaliveInterval)
	defer keepalive.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return

		case data, open := <-session.Out():
			if !open {
				return
			}
			if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
				log.L().Debug().Err(err).Str(log.FieldSessionID, session.ID()).Msg("sse write failed")
				return
			}
			flusher.Flush()

		case <-keepalive.C:
			if _, err := fmt.Fprint(c.Writer, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
