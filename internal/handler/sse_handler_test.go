package handler

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menumaster/orderstream/internal/domain"
)

// readSSEData returns the payload of the next data: line, skipping
// comments and blank lines.
func readSSEData(t *testing.T, r *bufio.Reader) []byte {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		if strings.HasPrefix(line, "data: ") {
			return []byte(strings.TrimPrefix(line, "data: "))
		}
	}
}

func openStream(t *testing.T, srv *httptest.Server, query string) (*bufio.Reader, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/orders/stream?"+query, nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() {
		cancel()
		resp.Body.Close()
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	return bufio.NewReader(resp.Body), cancel
}

func TestStreamRequiresOutletID(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/orders/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStreamDeliversOutletEvents(t *testing.T) {
	srv, h := newTestServer(t)

	r, _ := openStream(t, srv, "outletId=outlet-1")

	var conn domain.ConnectionMessage
	require.NoError(t, json.Unmarshal(readSSEData(t, r), &conn))
	assert.Equal(t, domain.MsgTypeConnection, conn.Type)
	assert.Equal(t, "outlet-1", conn.OutletID)

	h.Publish(domain.NewEvent(domain.EventNewOrder, domain.OrderSnapshot{
		OrderID:       "ord-9",
		OutletID:      "outlet-1",
		OrderStatus:   domain.OrderStatusTaken,
		PaymentStatus: domain.PaymentStatusUnpaid,
		CreatedAt:     time.Now().UTC(),
	}), "")

	var evt domain.Event
	require.NoError(t, json.Unmarshal(readSSEData(t, r), &evt))
	assert.Equal(t, domain.EventNewOrder, evt.Kind)
	assert.Equal(t, "ord-9", evt.Order.OrderID)
}

func TestStreamOrderRoomSubscription(t *testing.T) {
	srv, h := newTestServer(t)

	// Attached to another outlet but watching ord-5's room.
	r, _ := openStream(t, srv, "outletId=outlet-2&orderId=ord-5")
	readSSEData(t, r)

	h.Publish(domain.NewEvent(domain.EventOrderCompleted, domain.OrderSnapshot{
		OrderID:       "ord-5",
		OutletID:      "outlet-1",
		OrderStatus:   domain.OrderStatusServed,
		PaymentStatus: domain.PaymentStatusPaid,
		CreatedAt:     time.Now().UTC(),
	}), "")

	var evt domain.Event
	require.NoError(t, json.Unmarshal(readSSEData(t, r), &evt))
	assert.Equal(t, domain.EventOrderCompleted, evt.Kind)
}

func TestStreamDisconnectUnregisters(t *testing.T) {
	srv, h := newTestServer(t)

	r, cancel := openStream(t, srv, "outletId=outlet-1")
	readSSEData(t, r)
	require.Eventually(t, func() bool { return h.SessionCount() == 1 }, time.Second, 10*time.Millisecond)

	cancel()
	require.Eventually(t, func() bool { return h.SessionCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestPublishEventEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	conn := dialWS(t, srv, "outlet-1")
	readJSON(t, conn)

	evt := domain.NewEvent(domain.EventOrderUpdated, domain.OrderSnapshot{
		OrderID:       "ord-3",
		OutletID:      "outlet-1",
		OrderStatus:   domain.OrderStatusPreparing,
		PaymentStatus: domain.PaymentStatusUnpaid,
		CreatedAt:     time.Now().UTC(),
	})
	body, err := json.Marshal(evt)
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/api/events", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	got := readJSON(t, conn)
	assert.Equal(t, string(domain.EventOrderUpdated), got["kind"])
}

func TestPublishEventExcludesNamedSession(t *testing.T) {
	srv, _ := newTestServer(t)

	publisher := dialWS(t, srv, "outlet-1")
	watcher := dialWS(t, srv, "outlet-1")
	joined := readJSON(t, publisher)
	readJSON(t, watcher)
	sessionID, _ := joined["sessionId"].(string)
	require.NotEmpty(t, sessionID)

	evt := domain.NewEvent(domain.EventNewOrder, domain.OrderSnapshot{
		OrderID:       "ord-4",
		OutletID:      "outlet-1",
		OrderStatus:   domain.OrderStatusTaken,
		PaymentStatus: domain.PaymentStatusUnpaid,
		CreatedAt:     time.Now().UTC(),
	})
	body, err := json.Marshal(evt)
	require.NoError(t, err)

	// The publisher names its live session; fan-out must skip it, same as
	// a socket publish would.
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/events", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(domain.HeaderSessionID, sessionID)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	got := readJSON(t, watcher)
	assert.Equal(t, "ord-4", got["order"].(map[string]interface{})["orderId"])
	expectNoMessage(t, publisher)
}

func TestPublishEventRejectsMalformed(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/events", "application/json", strings.NewReader(`{"kind":"nope"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/events", "application/json", strings.NewReader(`not json`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
