package store

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menumaster/orderstream/internal/domain"
)

func fixtureOrder(id string) domain.OrderSnapshot {
	return domain.OrderSnapshot{
		OrderID:       id,
		OutletID:      "outlet-1",
		Items:         []domain.OrderItem{{ItemID: "i1", Name: "Masala Dosa", Quantity: 2, Price: 120}},
		TotalAmount:   240,
		OrderStatus:   domain.OrderStatusTaken,
		PaymentStatus: domain.PaymentStatusUnpaid,
		CreatedAt:     time.Now().UTC().Truncate(time.Second),
	}
}

func TestListOrders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/orders", r.URL.Path)
		assert.Equal(t, "outlet-1", r.URL.Query().Get("outletId"))
		assert.Equal(t, "no-cache", r.Header.Get("Cache-Control"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"orders": []domain.OrderSnapshot{fixtureOrder("ord-2"), fixtureOrder("ord-1")},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 2*time.Second)
	orders, err := c.ListOrders(context.Background(), "outlet-1")
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "ord-2", orders[0].OrderID)
}

func TestGetOrderNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 2*time.Second)
	_, err := c.GetOrder(context.Background(), "ord-gone")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestGetOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/orders/ord-1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"order": fixtureOrder("ord-1")})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 2*time.Second)
	order, err := c.GetOrder(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Equal(t, "ord-1", order.OrderID)
	assert.Equal(t, domain.OrderStatusTaken, order.OrderStatus)
}

func TestCreateOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var req CreateOrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "outlet-1", req.OutletID)

		order := fixtureOrder("ord-new")
		order.Items = req.Items
		order.TotalAmount = req.TotalAmount
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]interface{}{"order": order})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 2*time.Second)
	order, err := c.CreateOrder(context.Background(), CreateOrderRequest{
		OutletID:    "outlet-1",
		Items:       []domain.OrderItem{{ItemID: "i1", Name: "Filter Coffee", Quantity: 1, Price: 40}},
		TotalAmount: 40,
	})
	require.NoError(t, err)
	assert.Equal(t, "ord-new", order.OrderID)
	assert.Equal(t, 40.0, order.TotalAmount)
}

func TestUpdateOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/orders/ord-1", r.URL.Path)
		var update OrderUpdate
		require.NoError(t, json.NewDecoder(r.Body).Decode(&update))

		order := fixtureOrder("ord-1")
		order.OrderStatus = update.OrderStatus
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"order": order})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 2*time.Second)
	order, err := c.UpdateOrder(context.Background(), "ord-1", OrderUpdate{OrderStatus: domain.OrderStatusServed})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusServed, order.OrderStatus)
}

func TestUpdateOrderNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 2*time.Second)
	_, err := c.UpdateOrder(context.Background(), "ord-gone", OrderUpdate{PaymentStatus: domain.PaymentStatusPaid})
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestServerErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 2*time.Second)
	_, err := c.ListOrders(context.Background(), "outlet-1")
	assert.Error(t, err)
}
