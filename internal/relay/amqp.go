package relay

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/menumaster/orderstream/internal/domain"
	"github.com/menumaster/orderstream/pkg/log"
)

// envelope tags a relayed event with the publishing node so consumers can
// skip their own broadcasts.
type envelope struct {
	NodeID string       `json:"nodeId"`
	Event  domain.Event `json:"event"`
}

// AMQPRelay mirrors locally published events to a fanout exchange and
// re-injects events published by peer nodes into the local router. Queues
// are exclusive and auto-deleted: the relay never retains events, matching
// the router's own no-retention guarantee.
type AMQPRelay struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	nodeID   string
}

func NewAMQPRelay(url, exchange, nodeID string) (*AMQPRelay, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange, // name
		"fanout", // type
		false,    // durable
		true,     // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &AMQPRelay{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
		nodeID:   nodeID,
	}, nil
}

// Forward mirrors an event to peer nodes. Fire and forget; a broker hiccup
// degrades cross-node delivery, never local fan-out.
func (r *AMQPRelay) Forward(evt domain.Event) {
	body, err := json.Marshal(envelope{NodeID: r.nodeID, Event: evt})
	if err != nil {
		log.L().Error().Err(err).Msg("failed to marshal relay envelope")
		return
	}

	err = r.channel.PublishWithContext(context.Background(),
		r.exchange,
		"",    // routing key, ignored by fanout
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
	if err != nil {
		log.L().Warn().Err(err).Str(log.FieldEventKind, string(evt.Kind)).Msg("failed to forward event to relay")
	}
}

// Start binds an exclusive queue to the exchange and feeds peer events to
// inject until ctx is cancelled.
func (r *AMQPRelay) Start(ctx context.Context, inject func(domain.Event)) error {
	q, err := r.channel.QueueDeclare(
		"",    // broker-named
		false, // durable
		true,  // auto-delete
		true,  // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare relay queue: %w", err)
	}

	if err := r.channel.QueueBind(q.Name, "", r.exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind relay queue: %w", err)
	}

	msgs, err := r.channel.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume relay queue: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case d, open := <-msgs:
				if !open {
					log.L().Warn().Msg("relay consumer channel closed")
					return
				}
				var env envelope
				if err := json.Unmarshal(d.Body, &env); err != nil {
					log.L().Warn().Err(err).Msg("dropping malformed relay message")
					continue
				}
				if env.NodeID == r.nodeID {
					continue
				}
				inject(env.Event)
			}
		}
	}()

	log.L().Info().Str("exchange", r.exchange).Str(log.FieldNodeID, r.nodeID).Msg("relay consuming peer events")
	return nil
}

func (r *AMQPRelay) Close() {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		r.conn.Close()
	}
}
