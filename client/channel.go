package client

import (
	"errors"
	"time"

	"github.com/menumaster/orderstream/internal/domain"
)

// Status is the consumer-visible connection state, derived uniformly from
// whichever strategy is active.
type Status string

const (
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	StatusDisconnected Status = "disconnected"
)

// Mode identifies the active delivery strategy.
type Mode string

const (
	ModePush Mode = "push"
	ModePoll Mode = "poll"
)

// ErrNotConnected signals a room request issued while the push channel is
// not open. Recoverable: the desired room is remembered and re-joined on
// reconnect.
var ErrNotConnected = errors.New("push channel not connected")

// Handlers receive events and state changes. Both strategies drive the
// same callback shape; switching strategies is invisible here.
type Handlers struct {
	OnNewOrder       func(domain.OrderSnapshot)
	OnOrderUpdated   func(domain.OrderSnapshot)
	OnOrderCompleted func(domain.OrderSnapshot)
	OnStatusChange   func(Status)
	OnError          func(error)
}

// Subscription is one consumer's attachment to an outlet's event stream.
type Subscription interface {
	Status() Status
	Mode() Mode

	// JoinOrderRoom subscribes to one order's room on the push channel.
	// Poll mode already observes the whole outlet; the request is a no-op
	// there. Returns ErrNotConnected while the channel is down.
	JoinOrderRoom(orderID string) error
	LeaveOrderRoom(orderID string) error

	// Publish sends an event to the distribution layer: over the push
	// channel when open, over HTTP otherwise.
	Publish(evt domain.Event) error

	// Close releases this consumer's interest. Idempotent. The underlying
	// channel is torn down when the last consumer of the outlet closes.
	Close()
}

// Config tunes the delivery channel. Zero values fall back to defaults.
type Config struct {
	// ServerURL is the distribution server base URL (http or https).
	ServerURL string

	// ForcePoll selects the poll strategy from the start, the static
	// environment signal for deployments without persistent channels.
	ForcePoll bool

	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration

	PollInterval time.Duration

	HeartbeatInterval time.Duration
	// HealthWindow marks the transport stale when nothing arrives within
	// it; a stale channel is dropped and reconnected.
	HealthWindow time.Duration

	DialTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = 3
	}
	if c.ReconnectBaseDelay == 0 {
		c.ReconnectBaseDelay = time.Second
	}
	if c.ReconnectMaxDelay == 0 {
		c.ReconnectMaxDelay = 5 * time.Second
	}
	if c.PollInterval == 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.HealthWindow == 0 {
		c.HealthWindow = 45 * time.Second
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 10 * time.Second
	}
	return c
}
