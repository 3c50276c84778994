package domain

import "time"

// OrderStatus is the kitchen-side lifecycle of an order.
type OrderStatus string

const (
	OrderStatusTaken     OrderStatus = "taken"
	OrderStatusPreparing OrderStatus = "preparing"
	OrderStatusPrepared  OrderStatus = "prepared"
	OrderStatusServed    OrderStatus = "served"
)

// PaymentStatus is the billing-side lifecycle of an order.
type PaymentStatus string

const (
	PaymentStatusUnpaid    PaymentStatus = "unpaid"
	PaymentStatusPaid      PaymentStatus = "paid"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

// OrderItem is one line of an order.
type OrderItem struct {
	ItemID   string  `json:"itemId"`
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// OrderSnapshot is the full current state of an order as returned by the
// order store. The distribution layer treats it as an opaque payload except
// for the id, outlet and status fields.
type OrderSnapshot struct {
	OrderID       string        `json:"orderId"`
	OutletID      string        `json:"outletId"`
	Items         []OrderItem   `json:"items"`
	TotalAmount   float64       `json:"totalAmount"`
	OrderStatus   OrderStatus   `json:"orderStatus"`
	PaymentStatus PaymentStatus `json:"paymentStatus"`
	Comments      string        `json:"comments,omitempty"`
	CustomerName  string        `json:"customerName,omitempty"`
	TableNumber   string        `json:"tableNumber,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt,omitempty"`
}

// Completed reports whether the order has left the active lifecycle:
// served to the table and fully paid.
func (o *OrderSnapshot) Completed() bool {
	return o.OrderStatus == OrderStatusServed && o.PaymentStatus == PaymentStatusPaid
}

// Cancelled reports whether payment was cancelled. Cancelled orders are
// cleared from active tracking but never enter the completed history.
func (o *OrderSnapshot) Cancelled() bool {
	return o.PaymentStatus == PaymentStatusCancelled
}

// NewerThan compares two snapshots of the same order by recency. Snapshots
// carry full state, so the newer one wins regardless of arrival order.
func (o *OrderSnapshot) NewerThan(other *OrderSnapshot) bool {
	if other == nil {
		return true
	}
	a, b := o.UpdatedAt, other.UpdatedAt
	if a.IsZero() {
		a = o.CreatedAt
	}
	if b.IsZero() {
		b = other.CreatedAt
	}
	return a.After(b)
}
