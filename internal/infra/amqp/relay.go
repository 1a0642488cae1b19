package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"trivia-sync-service/internal/relay"
)

// Exchange is the topic exchange every game event is published to. The routing key is the
// relay channel name.
const Exchange = "trivia.events"

// Relay carries game events over RabbitMQ. Each subscription owns an exclusive,
// auto-deleted queue bound to its channel, so a device that disconnects leaves nothing behind.
type Relay struct {
	conn   *amqp.Connection
	buffer int
	logger *slog.Logger

	mu  sync.Mutex
	pub *amqp.Channel
}

// Dial connects and declares the exchange.
func Dial(url string, buffer int, logger *slog.Logger) (*Relay, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(
		Exchange, // name
		"topic",  // kind
		true,     // durable
		false,    // auto-delete
		false,    // internal
		false,    // no-wait
		nil,
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	if buffer <= 0 {
		buffer = 16
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{conn: conn, buffer: buffer, logger: logger, pub: ch}, nil
}

func (r *Relay) Publish(ctx context.Context, ev relay.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	err = r.pub.PublishWithContext(ctx,
		Exchange,
		ev.Channel,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Transient,
			MessageId:    ev.ID,
			Timestamp:    ev.SentAt,
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("amqp publish %s: %w", ev.Channel, err)
	}
	return nil
}

func (r *Relay) Subscribe(ctx context.Context, channel string) (<-chan relay.Event, func(), error) {
	ch, err := r.conn.Channel()
	if err != nil {
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	q, err := ch.QueueDeclare(
		"",    // server-named
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, channel, Exchange, false, nil); err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("bind %s: %w", channel, err)
	}
	deliveries, err := ch.ConsumeWithContext(ctx, q.Name, "", true, true, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("consume %s: %w", channel, err)
	}

	out := make(chan relay.Event, r.buffer)
	go r.forward(deliveries, out)

	var once sync.Once
	cancel := func() {
		once.Do(func() { _ = ch.Close() })
	}
	return out, cancel, nil
}

func (r *Relay) forward(deliveries <-chan amqp.Delivery, out chan relay.Event) {
	defer close(out)
	for d := range deliveries {
		var ev relay.Event
		if err := json.Unmarshal(d.Body, &ev); err != nil {
			r.logger.Warn("drop malformed event", "routing_key", d.RoutingKey, "error", err)
			continue
		}
		select {
		case out <- ev:
		default:
			select {
			case <-out:
			default:
			}
			out <- ev
		}
	}
}

func (r *Relay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.pub.Close()
	return r.conn.Close()
}
