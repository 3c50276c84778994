// Package ordersync reconciles incoming order events into local view
// state: one active order plus a completed-order history, persisted across
// process restarts.
package ordersync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/menumaster/orderstream/internal/domain"
	"github.com/menumaster/orderstream/internal/store"
	"github.com/menumaster/orderstream/pkg/log"
)

// Callbacks fire after a mutation is applied and persisted.
type Callbacks struct {
	OnUpdate   func(domain.OrderSnapshot)
	OnComplete func(domain.OrderSnapshot)
}

// State holds the tracked active order and the completed history for one
// outlet. All mutations are idempotent: replaying an event leaves state
// unchanged beyond the first application.
type State struct {
	mu       sync.Mutex
	outletID string
	storage  Storage
	cb       Callbacks

	active   *domain.OrderSnapshot
	history  []domain.OrderSnapshot
	lastSync time.Time
}

func New(outletID string, storage Storage, cb Callbacks) *State {
	return &State{
		outletID: outletID,
		storage:  storage,
		cb:       cb,
	}
}

// Load reconstructs state from local storage. The sole source of truth
// until a live channel delivers fresher snapshots.
func (s *State) Load() error {
	active, history, lastSync, err := s.storage.Load()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.active = active
	s.history = history
	s.lastSync = lastSync
	s.mu.Unlock()
	return nil
}

// Apply reconciles one event. Snapshots are full state, so arrival order
// does not matter: an older snapshot than the one already held is ignored.
func (s *State) Apply(evt domain.Event) {
	order := evt.Order

	s.mu.Lock()

	// Only the tracked order is reconciled. With nothing tracked, adopt
	// the order the event concerns.
	if s.active != nil && s.active.OrderID != order.OrderID {
		s.mu.Unlock()
		return
	}

	if order.Completed() {
		s.completeLocked(order)
		return
	}

	if order.Cancelled() {
		// No longer active, but never part of the completed history.
		if s.active != nil && s.active.OrderID == order.OrderID {
			s.active = nil
			s.lastSync = time.Now()
			s.persistActiveLocked()
		}
		s.mu.Unlock()
		return
	}

	if s.active == nil && s.inHistoryLocked(order.OrderID) {
		// Duplicate delivery after completion; already reflected.
		s.mu.Unlock()
		return
	}

	if s.active != nil && !order.NewerThan(s.active) {
		s.mu.Unlock()
		return
	}

	s.active = &order
	s.lastSync = time.Now()
	s.persistActiveLocked()
	s.mu.Unlock()

	if s.cb.OnUpdate != nil {
		s.cb.OnUpdate(order)
	}
}

// completeLocked moves the order into history exactly once and clears the
// active slot. Duplicate completion events are no-ops.
func (s *State) completeLocked(order domain.OrderSnapshot) {
	if s.active == nil && s.inHistoryLocked(order.OrderID) {
		s.mu.Unlock()
		return
	}

	s.active = nil
	filtered := make([]domain.OrderSnapshot, 0, len(s.history)+1)
	filtered = append(filtered, order)
	for _, h := range s.history {
		if h.OrderID != order.OrderID {
			filtered = append(filtered, h)
		}
	}
	s.history = filtered
	s.lastSync = time.Now()
	s.persistActiveLocked()
	if err := s.storage.SaveHistory(s.history); err != nil {
		log.L().Warn().Err(err).Str(log.FieldOutletID, s.outletID).Msg("failed to persist order history")
	}
	s.mu.Unlock()

	log.L().Info().Str(log.FieldOrderID, order.OrderID).Msg("order moved to history")
	if s.cb.OnComplete != nil {
		s.cb.OnComplete(order)
	}
}

func (s *State) inHistoryLocked(orderID string) bool {
	for _, h := range s.history {
		if h.OrderID == orderID {
			return true
		}
	}
	return false
}

func (s *State) persistActiveLocked() {
	if err := s.storage.SaveActive(s.active); err != nil {
		log.L().Warn().Err(err).Str(log.FieldOutletID, s.outletID).Msg("failed to persist active order")
	}
	if err := s.storage.SaveLastSync(s.lastSync); err != nil {
		log.L().Warn().Err(err).Str(log.FieldOutletID, s.outletID).Msg("failed to persist sync time")
	}
}

// Refresh re-fetches the tracked order from the store. A 404 means the
// order is no longer active and clears local state without error.
func (s *State) Refresh(ctx context.Context, st *store.Client) error {
	s.mu.Lock()
	if s.active == nil {
		s.mu.Unlock()
		return nil
	}
	orderID := s.active.OrderID
	s.mu.Unlock()

	order, err := st.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, store.ErrOrderNotFound) {
			log.L().Info().Str(log.FieldOrderID, orderID).Msg("tracked order gone, clearing active state")
			s.ClearActive()
			return nil
		}
		return err
	}

	s.Apply(domain.NewEvent(domain.ClassifyUpdate(*order), *order))
	return nil
}

// ClearActive drops the tracked order without touching history.
func (s *State) ClearActive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = nil
	s.persistActiveLocked()
}

// ActiveOrder returns a copy of the tracked order, or nil.
func (s *State) ActiveOrder() *domain.OrderSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return nil
	}
	cp := *s.active
	return &cp
}

// History returns a copy of the completed history, newest first.
func (s *State) History() []domain.OrderSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.OrderSnapshot, len(s.history))
	copy(out, s.history)
	return out
}

func (s *State) LastSyncTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSync
}
