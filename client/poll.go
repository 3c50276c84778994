package client

import (
	"context"
	"time"

	"github.com/menumaster/orderstream/internal/domain"
	"github.com/menumaster/orderstream/internal/store"
	"github.com/menumaster/orderstream/pkg/log"
)

// pollChannel is the fallback strategy: fetch the outlet's order list on an
// interval and synthesize events locally when the most recent order changes.
// It drives the same handlers as push and converges to the same state
// because every synthesized event carries a full snapshot.
type pollChannel struct {
	outletID string
	cfg      Config
	store    *store.Client
	sub      *subscription

	seen        map[string]struct{}
	lastID      string
	lastStatus  domain.OrderStatus
	lastPayment domain.PaymentStatus
}

func newPollChannel(outletID string, cfg Config, st *store.Client, sub *subscription) *pollChannel {
	return &pollChannel{
		outletID: outletID,
		cfg:      cfg,
		store:    st,
		sub:      sub,
		seen:     make(map[string]struct{}),
	}
}

func (p *pollChannel) run(ctx context.Context) {
	p.pollOnce(ctx)

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

func (p *pollChannel) pollOnce(ctx context.Context) {
	orders, err := p.store.ListOrders(ctx, p.outletID)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.L().Warn().Err(err).Str(log.FieldOutletID, p.outletID).Msg("poll fetch failed")
		p.sub.setStatus(StatusReconnecting)
		return
	}
	p.sub.setStatus(StatusConnected)

	if len(orders) == 0 {
		return
	}
	latest := orders[0]

	if latest.OrderID == p.lastID &&
		latest.OrderStatus == p.lastStatus &&
		latest.PaymentStatus == p.lastPayment {
		return
	}

	kind := domain.ClassifyUpdate(latest)
	if _, known := p.seen[latest.OrderID]; !known && !latest.Completed() {
		kind = domain.EventNewOrder
	}

	if latest.Completed() {
		// A finished order never turns back into new-order, so its seen
		// entry is dead weight; dropping it keeps the set bounded by the
		// number of in-flight orders.
		delete(p.seen, latest.OrderID)
	} else {
		p.seen[latest.OrderID] = struct{}{}
	}
	p.lastID = latest.OrderID
	p.lastStatus = latest.OrderStatus
	p.lastPayment = latest.PaymentStatus

	log.L().Debug().
		Str(log.FieldOrderID, latest.OrderID).
		Str(log.FieldEventKind, string(kind)).
		Msg("poll detected order change")

	p.sub.emitEvent(domain.NewEvent(kind, latest))
}
