package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menumaster/orderstream/internal/domain"
	"github.com/menumaster/orderstream/internal/room"
)

// fakeSession records deliveries in memory. alive=false simulates a
// session whose buffer is full.
type fakeSession struct {
	id       string
	outletID string
	alive    bool

	mu        sync.Mutex
	delivered [][]byte
	closed    bool
}

func newFakeSession(id, outletID string) *fakeSession {
	return &fakeSession{id: id, outletID: outletID, alive: true}
}

func (f *fakeSession) ID() string        { return f.id }
func (f *fakeSession) OutletID() string  { return f.outletID }
func (f *fakeSession) Transport() string { return "fake" }

func (f *fakeSession) Deliver(data []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.alive {
		return false
	}
	f.delivered = append(f.delivered, data)
	return true
}

func (f *fakeSession) CloseSend() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeSession) events(t *testing.T) []domain.Event {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Event, 0, len(f.delivered))
	for _, data := range f.delivered {
		var evt domain.Event
		require.NoError(t, json.Unmarshal(data, &evt))
		out = append(out, evt)
	}
	return out
}

func testOrder(orderID, outletID string) domain.OrderSnapshot {
	return domain.OrderSnapshot{
		OrderID:       orderID,
		OutletID:      outletID,
		OrderStatus:   domain.OrderStatusTaken,
		PaymentStatus: domain.PaymentStatusUnpaid,
		CreatedAt:     time.Now().UTC(),
	}
}

func TestPublishReachesOutletAndOrderRooms(t *testing.T) {
	h := NewHub(room.NewRegistry(), "node-1")

	// Taker and a watcher in the same outlet, plus a customer watching
	// the order from elsewhere.
	taker := newFakeSession("taker", "outlet-1")
	watcher := newFakeSession("watcher", "outlet-1")
	customer := newFakeSession("customer", "outlet-2")
	h.Register(taker)
	h.Register(watcher)
	h.Register(customer)
	h.JoinOrderRoom(customer.ID(), "ord-1")

	evt := domain.NewEvent(domain.EventOrderUpdated, testOrder("ord-1", "outlet-1"))
	h.Publish(evt, taker.ID())

	// Origin is excluded, everyone else gets exactly one copy.
	assert.Empty(t, taker.events(t))
	require.Len(t, watcher.events(t), 1)
	require.Len(t, customer.events(t), 1)
	assert.Equal(t, domain.EventOrderUpdated, watcher.events(t)[0].Kind)
	assert.Equal(t, "ord-1", customer.events(t)[0].Order.OrderID)
}

func TestPublishDeduplicatesUnionOfRooms(t *testing.T) {
	h := NewHub(room.NewRegistry(), "node-1")

	// In the outlet room and the order room at once.
	s := newFakeSession("both", "outlet-1")
	h.Register(s)
	h.JoinOrderRoom(s.ID(), "ord-1")

	h.Publish(domain.NewEvent(domain.EventNewOrder, testOrder("ord-1", "outlet-1")), "")

	assert.Len(t, s.events(t), 1)
}

func TestPublishDropsMalformedEvent(t *testing.T) {
	h := NewHub(room.NewRegistry(), "node-1")
	s := newFakeSession("s1", "outlet-1")
	h.Register(s)

	h.Publish(domain.Event{Kind: "bogus", Order: testOrder("ord-1", "outlet-1")}, "")
	h.Publish(domain.NewEvent(domain.EventNewOrder, testOrder("", "outlet-1")), "")

	assert.Empty(t, s.events(t))
}

func TestPublishDoesNotReachOtherOutlets(t *testing.T) {
	h := NewHub(room.NewRegistry(), "node-1")
	other := newFakeSession("other", "outlet-2")
	h.Register(other)

	h.Publish(domain.NewEvent(domain.EventNewOrder, testOrder("ord-1", "outlet-1")), "")

	assert.Empty(t, other.events(t))
}

func TestUnresponsiveSessionIsDropped(t *testing.T) {
	h := NewHub(room.NewRegistry(), "node-1")

	dead := newFakeSession("dead", "outlet-1")
	dead.alive = false
	live := newFakeSession("live", "outlet-1")
	h.Register(dead)
	h.Register(live)

	h.Publish(domain.NewEvent(domain.EventNewOrder, testOrder("ord-1", "outlet-1")), "")

	// The dead session is unregistered asynchronously; the live one is
	// unaffected.
	require.Eventually(t, func() bool {
		return h.SessionCount() == 1
	}, time.Second, 10*time.Millisecond)
	assert.Len(t, live.events(t), 1)

	dead.mu.Lock()
	defer dead.mu.Unlock()
	assert.True(t, dead.closed)
}

func TestUnregisterIsIdempotent(t *testing.T) {
	h := NewHub(room.NewRegistry(), "node-1")
	s := newFakeSession("s1", "outlet-1")
	h.Register(s)
	h.JoinOrderRoom(s.ID(), "ord-1")

	require.True(t, h.Known(s.ID()))
	h.Unregister(s)
	h.Unregister(s)

	assert.False(t, h.Known(s.ID()))
	assert.Equal(t, 0, h.SessionCount())

	// No stale membership left behind.
	h.Publish(domain.NewEvent(domain.EventNewOrder, testOrder("ord-1", "outlet-1")), "")
	assert.Empty(t, s.events(t))
}

func TestLeaveOrderRoomStopsOrderDelivery(t *testing.T) {
	h := NewHub(room.NewRegistry(), "node-1")
	s := newFakeSession("s1", "outlet-2")
	h.Register(s)
	h.JoinOrderRoom(s.ID(), "ord-1")
	h.LeaveOrderRoom(s.ID(), "ord-1")

	h.Publish(domain.NewEvent(domain.EventOrderUpdated, testOrder("ord-1", "outlet-1")), "")

	assert.Empty(t, s.events(t))
}

type recordingPresence struct {
	mu   sync.Mutex
	up   []string
	down []string
}

func (p *recordingPresence) RoomUp(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.up = append(p.up, key)
	return nil
}

func (p *recordingPresence) RoomDown(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.down = append(p.down, key)
	return nil
}

func TestPresenceSeesRoomTransitions(t *testing.T) {
	h := NewHub(room.NewRegistry(), "node-1")
	p := &recordingPresence{}
	h.SetPresence(p)

	s1 := newFakeSession("s1", "outlet-1")
	s2 := newFakeSession("s2", "outlet-1")
	h.Register(s1)
	h.Register(s2)
	h.JoinOrderRoom(s1.ID(), "ord-1")

	// Second outlet join is not a transition.
	p.mu.Lock()
	assert.ElementsMatch(t, []string{room.OutletKey("outlet-1"), room.OrderKey("ord-1")}, p.up)
	p.mu.Unlock()

	h.Unregister(s1)
	h.Unregister(s2)

	p.mu.Lock()
	defer p.mu.Unlock()
	assert.ElementsMatch(t, []string{room.OutletKey("outlet-1"), room.OrderKey("ord-1")}, p.down)
}

type recordingForwarder struct {
	mu   sync.Mutex
	evts []domain.Event
}

func (f *recordingForwarder) Forward(evt domain.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evts = append(f.evts, evt)
}

func TestPublishForwardsAndInjectDoesNot(t *testing.T) {
	h := NewHub(room.NewRegistry(), "node-1")
	f := &recordingForwarder{}
	h.SetForwarder(f)

	s := newFakeSession("s1", "outlet-1")
	h.Register(s)

	h.Publish(domain.NewEvent(domain.EventNewOrder, testOrder("ord-1", "outlet-1")), "")
	h.Inject(domain.NewEvent(domain.EventOrderUpdated, testOrder("ord-1", "outlet-1")))

	// Injected events are local-only; forwarding them back would loop.
	f.mu.Lock()
	require.Len(t, f.evts, 1)
	assert.Equal(t, domain.EventNewOrder, f.evts[0].Kind)
	f.mu.Unlock()

	assert.Len(t, s.events(t), 2)
}

func TestConcurrentPublish(t *testing.T) {
	h := NewHub(room.NewRegistry(), "node-1")
	s := newFakeSession("s1", "outlet-1")
	h.Register(s)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			order := testOrder(fmt.Sprintf("ord-%d", n), "outlet-1")
			h.Publish(domain.NewEvent(domain.EventNewOrder, order), "")
		}(i)
	}
	wg.Wait()

	assert.Len(t, s.events(t), 20)
}
