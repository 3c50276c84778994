package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/menumaster/orderstream/internal/config"
	"github.com/menumaster/orderstream/pkg/log"
)

// WSClient is a websocket-attached session.
type WSClient struct {
	id       string
	outletID string
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	cfg      config.WebSocketConfig

	mu     sync.Mutex
	closed bool
}

func NewWSClient(id, outletID string, h *Hub, conn *websocket.Conn, cfg config.WebSocketConfig) *WSClient {
	return &WSClient{
		id:       id,
		outletID: outletID,
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, 256),
		cfg:      cfg,
	}
}

func (c *WSClient) ID() string        { return c.id }
func (c *WSClient) OutletID() string  { return c.outletID }
func (c *WSClient) Transport() string { return "websocket" }

// Deliver queues data for the write pump without blocking. False means the
// buffer is full or the send side is closed.
func (c *WSClient) Deliver(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// CloseSend closes the send channel exactly once.
func (c *WSClient) CloseSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// SendMessage marshals and queues a control message.
func (c *WSClient) SendMessage(message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	c.Deliver(data)
	return nil
}

// ReadPump reads inbound frames until the transport reports closure, then
// reclaims the session. The pong handler extends the read deadline; a
// client that stops answering pings is detected within pong_wait.
func (c *WSClient) ReadPump(handler func(*WSClient, []byte)) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.L().Warn().Err(err).Str(log.FieldSessionID, c.id).Msg("websocket read error")
			}
			break
		}
		handler(c, message)
	}
}

// WritePump drains the send channel onto the socket and pings on an
// interval. Exits when the send side closes or a write fails.
func (c *WSClient) WritePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
