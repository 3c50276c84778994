package client

import (
	"errors"
	"sync"

	"github.com/go-resty/resty/v2"

	"github.com/menumaster/orderstream/internal/domain"
	"github.com/menumaster/orderstream/internal/store"
)

// Manager hands out subscriptions with explicit lifecycle. Consumers of the
// same outlet share one underlying channel, reference-counted; the channel
// and all its timers are torn down when the last handle closes.
type Manager struct {
	cfg    Config
	store  *store.Client
	events *resty.Client

	mu   sync.Mutex
	subs map[string]*managedSub
}

type managedSub struct {
	sub  *subscription
	refs int
}

func NewManager(cfg Config, st *store.Client) *Manager {
	cfg = cfg.withDefaults()
	return &Manager{
		cfg:    cfg,
		store:  st,
		events: resty.New().SetBaseURL(cfg.ServerURL).SetTimeout(cfg.DialTimeout),
		subs:   make(map[string]*managedSub),
	}
}

// Subscribe attaches handlers to the outlet's event stream, starting the
// shared channel on first use.
func (m *Manager) Subscribe(outletID string, h Handlers) (Subscription, error) {
	if outletID == "" {
		return nil, errors.New("outletID is required")
	}

	m.mu.Lock()
	ms, ok := m.subs[outletID]
	if !ok {
		ms = &managedSub{sub: newSubscription(outletID, m.cfg, m.store, m.events)}
		m.subs[outletID] = ms
		ms.sub.start()
	}
	ms.refs++
	m.mu.Unlock()

	hid := ms.sub.addHandlers(h)
	return &handle{m: m, outletID: outletID, sub: ms.sub, hid: hid}, nil
}

func (m *Manager) release(outletID string, hid int) {
	m.mu.Lock()
	ms, ok := m.subs[outletID]
	if !ok {
		m.mu.Unlock()
		return
	}
	ms.sub.removeHandlers(hid)
	ms.refs--
	last := ms.refs == 0
	if last {
		delete(m.subs, outletID)
	}
	m.mu.Unlock()

	if last {
		ms.sub.stop()
	}
}

// Close tears down every open subscription.
func (m *Manager) Close() {
	m.mu.Lock()
	subs := m.subs
	m.subs = make(map[string]*managedSub)
	m.mu.Unlock()

	for _, ms := range subs {
		ms.sub.stop()
	}
}

// handle is one consumer's view of a shared subscription.
type handle struct {
	m        *Manager
	outletID string
	sub      *subscription
	hid      int
	once     sync.Once
}

func (h *handle) Status() Status { return h.sub.currentStatus() }
func (h *handle) Mode() Mode     { return h.sub.currentMode() }

func (h *handle) JoinOrderRoom(orderID string) error {
	return h.sub.joinOrderRoom(orderID)
}

func (h *handle) LeaveOrderRoom(orderID string) error {
	return h.sub.leaveOrderRoom(orderID)
}

func (h *handle) Publish(evt domain.Event) error {
	return h.sub.publish(evt)
}

func (h *handle) Close() {
	h.once.Do(func() {
		h.m.release(h.outletID, h.hid)
	})
}
