package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/menumaster/orderstream/internal/domain"
	"github.com/menumaster/orderstream/pkg/log"
)

const pushWriteWait = 10 * time.Second

// pushChannel is the persistent strategy: one websocket per subscription,
// reconnected with bounded exponential backoff. Desired order rooms are
// remembered and re-joined after every reconnect.
type pushChannel struct {
	outletID string
	cfg      Config
	sub      *subscription

	mu        sync.Mutex
	conn      *websocket.Conn // nil while disconnected
	sessionID string          // server-assigned, refreshed each reconnect
	wantRooms map[string]struct{}
}

func newPushChannel(outletID string, cfg Config, sub *subscription) *pushChannel {
	return &pushChannel{
		outletID:  outletID,
		cfg:       cfg,
		sub:       sub,
		wantRooms: make(map[string]struct{}),
	}
}

// run dials and re-dials until ctx is cancelled or reconnect attempts are
// exhausted. Returns the last transport error once the strategy is unusable.
func (p *pushChannel) run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.cfg.ReconnectBaseDelay
	bo.RandomizationFactor = 0
	bo.Multiplier = 2
	bo.MaxInterval = p.cfg.ReconnectMaxDelay
	bo.MaxElapsedTime = 0

	attempts := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn, err := p.dial(ctx)
		if err != nil {
			attempts++
			log.L().Warn().Err(err).
				Int("attempt", attempts).
				Str(log.FieldOutletID, p.outletID).
				Msg("push dial failed")
			if attempts >= p.cfg.MaxReconnectAttempts {
				return fmt.Errorf("push reconnect attempts exhausted: %w", err)
			}
			p.sub.setStatus(StatusReconnecting)
			if !sleepCtx(ctx, bo.NextBackOff()) {
				return ctx.Err()
			}
			continue
		}

		attempts = 0
		bo.Reset()
		p.setConn(conn)
		p.sub.setStatus(StatusConnected)
		p.resubscribe()

		hbCtx, hbCancel := context.WithCancel(ctx)
		go p.heartbeatLoop(hbCtx)
		// readLoop blocks in ReadMessage; closing the socket on
		// cancellation is the only way to unblock it.
		go func() {
			<-hbCtx.Done()
			conn.Close()
		}()

		readErr := p.readLoop(conn)
		hbCancel()
		p.setConn(nil)
		conn.Close()

		if ctx.Err() != nil {
			return ctx.Err()
		}

		log.L().Warn().Err(readErr).
			Str(log.FieldOutletID, p.outletID).
			Msg("push channel dropped, reconnecting")
		p.sub.setStatus(StatusReconnecting)
		if !sleepCtx(ctx, bo.NextBackOff()) {
			return ctx.Err()
		}
	}
}

func (p *pushChannel) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(p.cfg.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	u.RawQuery = url.Values{"outletId": {p.outletID}}.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: p.cfg.DialTimeout}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	return conn, err
}

// readLoop consumes frames until the transport fails or goes stale. Any
// inbound traffic, including server pings, extends the health window.
func (p *pushChannel) readLoop(conn *websocket.Conn) error {
	extend := func() { conn.SetReadDeadline(time.Now().Add(p.cfg.HealthWindow)) }
	extend()
	conn.SetPongHandler(func(string) error {
		extend()
		return nil
	})
	conn.SetPingHandler(func(appData string) error {
		extend()
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(pushWriteWait))
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		extend()
		p.handleMessage(message)
	}
}

func (p *pushChannel) handleMessage(message []byte) {
	var base domain.BaseMessage
	if err := json.Unmarshal(message, &base); err != nil {
		log.L().Warn().Err(err).Msg("dropping unparsable push message")
		return
	}

	if base.Type == "" {
		var evt domain.Event
		if err := json.Unmarshal(message, &evt); err != nil || !evt.Valid() {
			log.L().Warn().Msg("dropping malformed event payload")
			return
		}
		p.sub.emitEvent(evt)
		return
	}

	switch base.Type {
	case domain.MsgTypeJoinedOutlet:
		var msg domain.JoinedOutletMessage
		if err := json.Unmarshal(message, &msg); err == nil {
			p.mu.Lock()
			p.sessionID = msg.SessionID
			p.mu.Unlock()
		}
		log.L().Debug().Str(log.FieldOutletID, p.outletID).Str(log.FieldSessionID, msg.SessionID).Msg("outlet join confirmed")
	case domain.MsgTypeJoinedOrderRoom:
		log.L().Debug().Str(log.FieldOutletID, p.outletID).Msg("order room join confirmed")
	case domain.MsgTypeHeartbeatResponse, domain.MsgTypeConnection:
		// Traffic already extended the health window.
	case domain.MsgTypeError:
		var msg domain.ErrorMessage
		if err := json.Unmarshal(message, &msg); err == nil {
			log.L().Warn().Str("code", msg.Code).Str("message", msg.Message).Msg("server error message")
		}
	default:
		log.L().Debug().Str("type", base.Type).Msg("unknown push message type")
	}
}

func (p *pushChannel) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.send(&domain.HeartbeatMessage{Type: domain.MsgTypeHeartbeat}); err != nil {
				return
			}
		}
	}
}

func (p *pushChannel) setConn(conn *websocket.Conn) {
	p.mu.Lock()
	p.conn = conn
	p.mu.Unlock()
}

// send marshals and writes under the channel lock; gorilla connections
// allow one concurrent writer only.
func (p *pushChannel) send(message interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return ErrNotConnected
	}
	p.conn.SetWriteDeadline(time.Now().Add(pushWriteWait))
	return p.conn.WriteJSON(message)
}

// joinOrderRoom remembers the room and subscribes when open. The want-set
// keeps (re)subscription deduplicated across reconnects.
func (p *pushChannel) joinOrderRoom(orderID string) error {
	p.mu.Lock()
	p.wantRooms[orderID] = struct{}{}
	conn := p.conn
	p.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}
	return p.send(&domain.JoinOrderRoomMessage{Type: domain.MsgTypeJoinOrderRoom, OrderID: orderID})
}

func (p *pushChannel) leaveOrderRoom(orderID string) error {
	p.mu.Lock()
	delete(p.wantRooms, orderID)
	conn := p.conn
	p.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}
	return p.send(&domain.LeaveOrderRoomMessage{Type: domain.MsgTypeLeaveOrderRoom, OrderID: orderID})
}

func (p *pushChannel) resubscribe() {
	p.mu.Lock()
	rooms := make([]string, 0, len(p.wantRooms))
	for id := range p.wantRooms {
		rooms = append(rooms, id)
	}
	p.mu.Unlock()

	for _, orderID := range rooms {
		if err := p.send(&domain.JoinOrderRoomMessage{Type: domain.MsgTypeJoinOrderRoom, OrderID: orderID}); err != nil {
			log.L().Warn().Err(err).Str(log.FieldOrderID, orderID).Msg("failed to rejoin order room")
		}
	}
}

func (p *pushChannel) publish(evt domain.Event) error {
	return p.send(evt)
}

// session returns the server-assigned session id, empty before the first
// join confirmation.
func (p *pushChannel) session() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessionID
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
