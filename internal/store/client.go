package store

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/menumaster/orderstream/internal/domain"
)

// ErrOrderNotFound marks a 404 from a targeted order fetch: the order is no
// longer active, which callers treat as cleared state, not a failure.
var ErrOrderNotFound = errors.New("order not found")

// Client talks to the external order store. The distribution layer never
// owns order state; every read and write goes through here and the returned
// snapshot is authoritative.
type Client struct {
	http *resty.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &Client{http: c}
}

type ordersEnvelope struct {
	Orders []domain.OrderSnapshot `json:"orders"`
}

type orderEnvelope struct {
	Order domain.OrderSnapshot `json:"order"`
}

// CreateOrderRequest is the write payload for a new order.
type CreateOrderRequest struct {
	OutletID     string             `json:"outletId"`
	Items        []domain.OrderItem `json:"items"`
	TotalAmount  float64            `json:"totalAmount"`
	Comments     string             `json:"comments,omitempty"`
	CustomerName string             `json:"customerName,omitempty"`
	TableNumber  string             `json:"tableNumber,omitempty"`
}

// OrderUpdate carries partial fields for an order update.
type OrderUpdate struct {
	OrderStatus   domain.OrderStatus   `json:"orderStatus,omitempty"`
	PaymentStatus domain.PaymentStatus `json:"paymentStatus,omitempty"`
	Comments      string               `json:"comments,omitempty"`
}

// ListOrders fetches the outlet's current orders, newest first.
func (c *Client) ListOrders(ctx context.Context, outletID string) ([]domain.OrderSnapshot, error) {
	var env ordersEnvelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("outletId", outletID).
		SetHeader("Cache-Control", "no-cache").
		SetResult(&env).
		Get("/api/orders")
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("list orders: unexpected status %d", resp.StatusCode())
	}
	return env.Orders, nil
}

// GetOrder fetches one order. Returns ErrOrderNotFound on 404.
func (c *Client) GetOrder(ctx context.Context, orderID string) (*domain.OrderSnapshot, error) {
	var env orderEnvelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&env).
		Get("/api/orders/" + orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get order %s: %w", orderID, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, ErrOrderNotFound
	}
	if resp.IsError() {
		return nil, fmt.Errorf("get order %s: unexpected status %d", orderID, resp.StatusCode())
	}
	return &env.Order, nil
}

// CreateOrder submits a new order and returns the authoritative snapshot.
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (*domain.OrderSnapshot, error) {
	var env orderEnvelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&env).
		Post("/api/orders")
	if err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("create order: unexpected status %d", resp.StatusCode())
	}
	return &env.Order, nil
}

// UpdateOrder applies partial fields and returns the resulting snapshot.
func (c *Client) UpdateOrder(ctx context.Context, orderID string, update OrderUpdate) (*domain.OrderSnapshot, error) {
	var env orderEnvelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(update).
		SetResult(&env).
		Put("/api/orders/" + orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to update order %s: %w", orderID, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, ErrOrderNotFound
	}
	if resp.IsError() {
		return nil, fmt.Errorf("update order %s: unexpected status %d", orderID, resp.StatusCode())
	}
	return &env.Order, nil
}
