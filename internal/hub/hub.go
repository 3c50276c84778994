package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/menumaster/orderstream/internal/domain"
	"github.com/menumaster/orderstream/internal/room"
	"github.com/menumaster/orderstream/pkg/log"
)

// Session is one logical client attachment, whatever the transport.
// Deliver must not block; it reports false when the session can no longer
// accept events and should be dropped.
type Session interface {
	ID() string
	OutletID() string
	Transport() string
	Deliver(data []byte) bool
	CloseSend()
}

// Presence mirrors room liveness to an external registry (Redis). The hub
// only reports transitions: room created, room emptied.
type Presence interface {
	RoomUp(ctx context.Context, key string) error
	RoomDown(ctx context.Context, key string) error
}

// Forwarder relays locally published events to peer nodes.
type Forwarder interface {
	Forward(evt domain.Event)
}

// Hub owns the session table and fans published events out to every
// session subscribed to the event's outlet room or order room, excluding
// the origin. It retains no event payloads.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]Session

	rooms     *room.Registry
	presence  Presence
	forwarder Forwarder
	nodeID    string
}

func NewHub(rooms *room.Registry, nodeID string) *Hub {
	return &Hub{
		sessions: make(map[string]Session),
		rooms:    rooms,
		nodeID:   nodeID,
	}
}

// SetPresence attaches an optional external room registry.
func (h *Hub) SetPresence(p Presence) { h.presence = p }

// SetForwarder attaches an optional cross-node relay.
func (h *Hub) SetForwarder(f Forwarder) { h.forwarder = f }

// Register adds the session and auto-joins its outlet room.
func (h *Hub) Register(s Session) {
	h.mu.Lock()
	h.sessions[s.ID()] = s
	h.mu.Unlock()

	key := room.OutletKey(s.OutletID())
	created := h.rooms.Join(s.ID(), key)
	h.roomUp(key, created)

	log.L().Debug().
		Str(log.FieldSessionID, s.ID()).
		Str(log.FieldOutletID, s.OutletID()).
		Str(log.FieldTransport, s.Transport()).
		Msg("session registered")
}

// Unregister purges the session from every room and closes its send side.
// Idempotent; safe to call concurrently with an in-flight publish.
func (h *Hub) Unregister(s Session) {
	h.mu.Lock()
	_, known := h.sessions[s.ID()]
	delete(h.sessions, s.ID())
	h.mu.Unlock()

	if !known {
		return
	}

	for _, key := range h.rooms.PurgeSession(s.ID()) {
		h.roomDown(key)
	}
	s.CloseSend()

	log.L().Debug().
		Str(log.FieldSessionID, s.ID()).
		Str(log.FieldTransport, s.Transport()).
		Msg("session unregistered")
}

// JoinOrderRoom subscribes the session to a single order's room.
func (h *Hub) JoinOrderRoom(sessionID, orderID string) {
	key := room.OrderKey(orderID)
	created := h.rooms.Join(sessionID, key)
	h.roomUp(key, created)

	log.L().Info().
		Str(log.FieldSessionID, sessionID).
		Str(log.FieldRoom, key).
		Msg("session joined order room")
}

// LeaveOrderRoom removes the session from a single order's room.
func (h *Hub) LeaveOrderRoom(sessionID, orderID string) {
	key := room.OrderKey(orderID)
	if h.rooms.Leave(sessionID, key) {
		h.roomDown(key)
	}

	log.L().Info().
		Str(log.FieldSessionID, sessionID).
		Str(log.FieldRoom, key).
		Msg("session left order room")
}

// Publish routes an event to the union of its outlet room and order room,
// excluding the origin session, and mirrors it to peer nodes. Fire and
// forget: a slow or dead target never stalls delivery to the others.
func (h *Hub) Publish(evt domain.Event, originSessionID string) {
	if !evt.Valid() {
		log.L().Warn().
			Str(log.FieldEventKind, string(evt.Kind)).
			Str(log.FieldOrderID, evt.Order.OrderID).
			Msg("dropping malformed event")
		return
	}

	if h.forwarder != nil {
		h.forwarder.Forward(evt)
	}
	h.fanOut(evt, originSessionID)
}

// Inject routes an event received from a peer node to local sessions only.
func (h *Hub) Inject(evt domain.Event) {
	if !evt.Valid() {
		return
	}
	h.fanOut(evt, "")
}

func (h *Hub) fanOut(evt domain.Event, originSessionID string) {
	data, err := json.Marshal(evt)
	if err != nil {
		log.L().Error().Err(err).Msg("failed to marshal event")
		return
	}

	// Membership snapshots are taken up front; no room lock is held while
	// sending. A session in both rooms receives the event once.
	targets := make(map[string]struct{})
	for _, id := range h.rooms.Members(room.OutletKey(evt.Order.OutletID)) {
		targets[id] = struct{}{}
	}
	for _, id := range h.rooms.Members(room.OrderKey(evt.Order.OrderID)) {
		targets[id] = struct{}{}
	}
	delete(targets, originSessionID)

	for id := range targets {
		h.mu.RLock()
		s, ok := h.sessions[id]
		h.mu.RUnlock()
		if !ok {
			// Already purged; harmless race, events are idempotent.
			continue
		}
		if !s.Deliver(data) {
			log.L().Warn().
				Str(log.FieldSessionID, id).
				Str(log.FieldEventKind, string(evt.Kind)).
				Msg("dropping unresponsive session")
			go h.Unregister(s)
		}
	}

	log.L().Debug().
		Str(log.FieldEventKind, string(evt.Kind)).
		Str(log.FieldOrderID, evt.Order.OrderID).
		Str(log.FieldOutletID, evt.Order.OutletID).
		Int("targets", len(targets)).
		Msg("event published")
}

// Known reports whether the session is still attached.
func (h *Hub) Known(sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.sessions[sessionID]
	return ok
}

// SessionCount returns the number of attached sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// StartStatsLogger periodically logs hub occupancy until ctx is done.
func (h *Hub) StartStatsLogger(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := h.SessionCount(); n > 0 {
					log.L().Info().
						Int("sessions", n).
						Int("rooms", h.rooms.RoomCount()).
						Msg("hub stats")
				}
			}
		}
	}()
}

func (h *Hub) roomUp(key string, created bool) {
	if !created || h.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.presence.RoomUp(ctx, key); err != nil {
		log.L().Warn().Err(err).Str(log.FieldRoom, key).Msg("failed to register room in presence")
	}
}

func (h *Hub) roomDown(key string) {
	if h.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.presence.RoomDown(ctx, key); err != nil {
		log.L().Warn().Err(err).Str(log.FieldRoom, key).Msg("failed to deregister room in presence")
	}
}
