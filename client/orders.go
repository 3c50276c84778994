package client

import (
	"context"
	"errors"

	"github.com/menumaster/orderstream/client/ordersync"
	"github.com/menumaster/orderstream/internal/domain"
	"github.com/menumaster/orderstream/internal/store"
	"github.com/menumaster/orderstream/pkg/log"
)

// OrderFlow binds the three pieces a taker needs: the order store for
// writes, a subscription for publishing, and sync state for local view.
// Writes go to the store first; only an authoritative snapshot from a
// successful write is ever published.
type OrderFlow struct {
	store *store.Client
	sub   Subscription
	state *ordersync.State
}

func NewOrderFlow(st *store.Client, sub Subscription, state *ordersync.State) *OrderFlow {
	return &OrderFlow{store: st, sub: sub, state: state}
}

// CreateOrder submits a new order, announces it, joins its room and tracks
// it locally. A store failure is returned to the caller untouched; nothing
// is published or tracked.
func (f *OrderFlow) CreateOrder(ctx context.Context, req store.CreateOrderRequest) (*domain.OrderSnapshot, error) {
	snap, err := f.store.CreateOrder(ctx, req)
	if err != nil {
		return nil, err
	}

	evt := domain.NewEvent(domain.EventNewOrder, *snap)
	if err := f.sub.Publish(evt); err != nil {
		log.L().Warn().Err(err).Str(log.FieldOrderID, snap.OrderID).Msg("failed to publish new order")
	}
	if err := f.sub.JoinOrderRoom(snap.OrderID); err != nil && !errors.Is(err, ErrNotConnected) {
		log.L().Warn().Err(err).Str(log.FieldOrderID, snap.OrderID).Msg("failed to join order room")
	}

	f.state.Apply(evt)
	return snap, nil
}

// UpdateOrder applies a partial update, announces the resulting snapshot
// (as order-completed when it satisfies the completion predicate) and
// reconciles it locally.
func (f *OrderFlow) UpdateOrder(ctx context.Context, orderID string, update store.OrderUpdate) (*domain.OrderSnapshot, error) {
	snap, err := f.store.UpdateOrder(ctx, orderID, update)
	if err != nil {
		return nil, err
	}

	evt := domain.NewEvent(domain.ClassifyUpdate(*snap), *snap)
	if err := f.sub.Publish(evt); err != nil {
		log.L().Warn().Err(err).Str(log.FieldOrderID, snap.OrderID).Msg("failed to publish order update")
	}

	f.state.Apply(evt)
	return snap, nil
}

// Refresh re-fetches the tracked order, clearing it when the store no
// longer knows it.
func (f *OrderFlow) Refresh(ctx context.Context) error {
	return f.state.Refresh(ctx, f.store)
}
