package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/menumaster/orderstream/internal/config"
	"github.com/menumaster/orderstream/internal/domain"
	"github.com/menumaster/orderstream/internal/hub"
	"github.com/menumaster/orderstream/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler attaches websocket sessions scoped to one outlet.
type WSHandler struct {
	hub   *hub.Hub
	wsCfg config.WebSocketConfig
}

func NewWSHandler(h *hub.Hub, wsCfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{hub: h, wsCfg: wsCfg}
}

func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	outletID := c.Query("outletId")
	if outletID == "" {
		c.String(http.StatusBadRequest, "missing outletId")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.L().Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewWSClient(uuid.New().String(), outletID, h.hub, conn, h.wsCfg)
	h.hub.Register(client)

	// Join confirmation, mirrors the auto-join performed by Register.
	client.SendMessage(&domain.JoinedOutletMessage{
		Type:      domain.MsgTypeJoinedOutlet,
		OutletID:  outletID,
		SessionID: client.ID(),
	})

	go client.WritePump()
	go client.ReadPump(h.handleMessage)
}

func (h *WSHandler) handleMessage(client *hub.WSClient, message []byte) {
	var base domain.BaseMessage
	if err := json.Unmarshal(message, &base); err != nil {
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid message format"))
		return
	}

	// Event payloads carry "kind" instead of "type".
	if base.Type == "" {
		h.handleEvent(client, message)
		return
	}

	switch base.Type {
	case domain.MsgTypeJoinOrderRoom:
		var msg domain.JoinOrderRoomMessage
		if err := json.Unmarshal(message, &msg); err != nil || msg.OrderID == "" {
			client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid join-order-room message"))
			return
		}
		if !h.hub.Known(client.ID()) {
			client.SendMessage(domain.NewErrorMessage(domain.ErrCodeNotConnected, "Session is no longer attached"))
			return
		}
		h.hub.JoinOrderRoom(client.ID(), msg.OrderID)
		client.SendMessage(&domain.JoinedOrderRoomMessage{
			Type:      domain.MsgTypeJoinedOrderRoom,
			OrderID:   msg.OrderID,
			SessionID: client.ID(),
		})

	case domain.MsgTypeLeaveOrderRoom:
		var msg domain.LeaveOrderRoomMessage
		if err := json.Unmarshal(message, &msg); err != nil || msg.OrderID == "" {
			client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid leave-order-room message"))
			return
		}
		if !h.hub.Known(client.ID()) {
			client.SendMessage(domain.NewErrorMessage(domain.ErrCodeNotConnected, "Session is no longer attached"))
			return
		}
		h.hub.LeaveOrderRoom(client.ID(), msg.OrderID)

	case domain.MsgTypeHeartbeat:
		client.SendMessage(&domain.HeartbeatResponseMessage{
			Type:      domain.MsgTypeHeartbeatResponse,
			Timestamp: time.Now().UnixMilli(),
		})

	default:
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Unknown message type"))
	}
}

func (h *WSHandler) handleEvent(client *hub.WSClient, message []byte) {
	var evt domain.Event
	if err := json.Unmarshal(message, &evt); err != nil || !evt.Valid() {
		log.L().Warn().Str(log.FieldSessionID, client.ID()).Msg("dropping malformed event payload")
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid event payload"))
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	h.hub.Publish(evt, client.ID())
}
