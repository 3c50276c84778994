package domain

import "time"

// EventKind tags an order lifecycle event.
type EventKind string

const (
	EventNewOrder       EventKind = "new-order"
	EventOrderUpdated   EventKind = "order-updated"
	EventOrderCompleted EventKind = "order-completed"
)

// Event is the wire-level message carried by every transport. The order
// field is a full snapshot, not a delta, so applying events is
// order-insensitive on the consumer side.
type Event struct {
	Kind      EventKind     `json:"kind"`
	Order     OrderSnapshot `json:"order"`
	Timestamp time.Time     `json:"timestamp"`
}

// NewEvent builds an event stamped with the current time.
func NewEvent(kind EventKind, order OrderSnapshot) Event {
	return Event{Kind: kind, Order: order, Timestamp: time.Now().UTC()}
}

// Valid reports whether the event can be routed at all.
func (e *Event) Valid() bool {
	switch e.Kind {
	case EventNewOrder, EventOrderUpdated, EventOrderCompleted:
	default:
		return false
	}
	return e.Order.OrderID != "" && e.Order.OutletID != ""
}

// ClassifyUpdate picks the event kind for a snapshot produced by a store
// write: a completed snapshot is announced as order-completed, anything
// else as order-updated.
func ClassifyUpdate(order OrderSnapshot) EventKind {
	if order.Completed() {
		return EventOrderCompleted
	}
	return EventOrderUpdated
}
