package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-resty/resty/v2"

	"github.com/menumaster/orderstream/internal/domain"
	"github.com/menumaster/orderstream/internal/store"
	"github.com/menumaster/orderstream/pkg/log"
)

// subscription is the shared per-outlet channel behind one or more handles.
// It runs exactly one strategy at a time: push first (unless ForcePoll),
// then poll once push reconnects are exhausted. Never poll back to push.
type subscription struct {
	outletID string
	cfg      Config
	store    *store.Client
	events   *resty.Client // HTTP fallback for Publish

	cancel context.CancelFunc
	done   chan struct{}

	push *pushChannel

	mu       sync.Mutex
	status   Status
	mode     Mode
	handlers map[int]Handlers
	nextHID  int
}

func newSubscription(outletID string, cfg Config, st *store.Client, events *resty.Client) *subscription {
	s := &subscription{
		outletID: outletID,
		cfg:      cfg,
		store:    st,
		events:   events,
		done:     make(chan struct{}),
		status:   StatusDisconnected,
		mode:     ModePush,
		handlers: make(map[int]Handlers),
	}
	if cfg.ForcePoll {
		s.mode = ModePoll
	} else {
		// Built before start() so room requests racing the first dial
		// land in the want-set instead of a nil channel.
		s.push = newPushChannel(outletID, cfg, s)
	}
	return s
}

func (s *subscription) start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	go func() {
		defer close(s.done)
		s.run(ctx)
	}()
}

func (s *subscription) run(ctx context.Context) {
	if !s.cfg.ForcePoll {
		err := s.push.run(ctx)
		if ctx.Err() != nil {
			s.setStatus(StatusDisconnected)
			return
		}
		// Exhausted reconnects: a recovered condition, not a fatal one.
		log.L().Warn().Err(err).
			Str(log.FieldOutletID, s.outletID).
			Msg("push channel unusable, falling back to poll")
		s.emitError(err)
		s.setMode(ModePoll)
	}

	poll := newPollChannel(s.outletID, s.cfg, s.store, s)
	poll.run(ctx)
	s.setStatus(StatusDisconnected)
}

func (s *subscription) stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.done
}

// Handler registry. Multiple consumers of the same outlet share this
// subscription; each gets every callback.

func (s *subscription) addHandlers(h Handlers) int {
	s.mu.Lock()
	id := s.nextHID
	s.nextHID++
	s.handlers[id] = h
	current := s.status
	s.mu.Unlock()

	// Late subscribers learn the current status immediately.
	if h.OnStatusChange != nil {
		h.OnStatusChange(current)
	}
	return id
}

func (s *subscription) removeHandlers(id int) {
	s.mu.Lock()
	delete(s.handlers, id)
	s.mu.Unlock()
}

func (s *subscription) snapshotHandlers() []Handlers {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Handlers, 0, len(s.handlers))
	for _, h := range s.handlers {
		out = append(out, h)
	}
	return out
}

// Strategy callbacks.

func (s *subscription) emitEvent(evt domain.Event) {
	for _, h := range s.snapshotHandlers() {
		switch evt.Kind {
		case domain.EventNewOrder:
			if h.OnNewOrder != nil {
				h.OnNewOrder(evt.Order)
			}
		case domain.EventOrderUpdated:
			if h.OnOrderUpdated != nil {
				h.OnOrderUpdated(evt.Order)
			}
		case domain.EventOrderCompleted:
			if h.OnOrderCompleted != nil {
				h.OnOrderCompleted(evt.Order)
			}
		}
	}
}

func (s *subscription) emitError(err error) {
	for _, h := range s.snapshotHandlers() {
		if h.OnError != nil {
			h.OnError(err)
		}
	}
}

func (s *subscription) setStatus(st Status) {
	s.mu.Lock()
	if s.status == st {
		s.mu.Unlock()
		return
	}
	s.status = st
	s.mu.Unlock()

	for _, h := range s.snapshotHandlers() {
		if h.OnStatusChange != nil {
			h.OnStatusChange(st)
		}
	}
}

func (s *subscription) setMode(m Mode) {
	s.mu.Lock()
	s.mode = m
	s.mu.Unlock()
}

func (s *subscription) currentStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *subscription) currentMode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func (s *subscription) joinOrderRoom(orderID string) error {
	if s.currentMode() == ModePoll {
		return nil // poll observes the whole outlet
	}
	return s.push.joinOrderRoom(orderID)
}

func (s *subscription) leaveOrderRoom(orderID string) error {
	if s.currentMode() == ModePoll {
		return nil
	}
	return s.push.leaveOrderRoom(orderID)
}

func (s *subscription) publish(evt domain.Event) error {
	if s.currentMode() == ModePush && s.push != nil {
		if err := s.push.publish(evt); err == nil {
			return nil
		}
		// Channel mid-reconnect; fall through to HTTP.
	}
	return s.publishHTTP(evt)
}

// publishHTTP posts the event to the ingest endpoint.
func (s *subscription) publishHTTP(evt domain.Event) error {
	req := s.events.R().SetBody(evt)
	if s.push != nil {
		// The websocket may still be registered server-side; naming the
		// session keeps the origin excluded from fan-out.
		if id := s.push.session(); id != "" {
			req.SetHeader(domain.HeaderSessionID, id)
		}
	}
	resp, err := req.Post("/api/events")
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("publish event: unexpected status %d", resp.StatusCode())
	}
	return nil
}
