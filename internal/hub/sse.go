package hub

import (
	"encoding/json"
	"sync"
)

// SSESession is a receive-only session fed by the router and drained by the
// SSE handler. It joins its outlet room like any other session; order-room
// membership is managed over the query string at attach time.
type SSESession struct {
	id       string
	outletID string
	send     chan []byte

	mu     sync.Mutex
	closed bool
}

func NewSSESession(id, outletID string) *SSESession {
	return &SSESession{
		id:       id,
		outletID: outletID,
		send:     make(chan []byte, 64),
	}
}

func (s *SSESession) ID() string        { return s.id }
func (s *SSESession) OutletID() string  { return s.outletID }
func (s *SSESession) Transport() string { return "sse" }

// Out is drained by the SSE handler's write loop.
func (s *SSESession) Out() <-chan []byte { return s.send }

func (s *SSESession) Deliver(data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.send <- data:
		return true
	default:
		return false
	}
}

func (s *SSESession) CloseSend() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.send)
}

// QueueMessage marshals and queues a control message for the stream.
func (s *SSESession) QueueMessage(message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	s.Deliver(data)
	return nil
}
