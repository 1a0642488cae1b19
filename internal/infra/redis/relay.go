package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"trivia-sync-service/internal/relay"
)

// Relay fans events out through Redis pub/sub so every service instance reaches every device.
// Redis pub/sub is fire and forget, which matches the relay's best-effort contract.
type Relay struct {
	client *redis.Client
	buffer int
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[*redis.PubSub]struct{}
	closed bool
}

func NewRelay(client *redis.Client, buffer int, logger *slog.Logger) *Relay {
	if buffer <= 0 {
		buffer = 16
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		client: client,
		buffer: buffer,
		logger: logger,
		subs:   make(map[*redis.PubSub]struct{}),
	}
}

func (r *Relay) Publish(ctx context.Context, ev relay.Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := r.client.Publish(ctx, ev.Channel, raw).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", ev.Channel, err)
	}
	return nil
}

func (r *Relay) Subscribe(ctx context.Context, channel string) (<-chan relay.Event, func(), error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, nil, fmt.Errorf("redis relay closed")
	}
	r.mu.Unlock()

	ps := r.client.Subscribe(ctx, channel)
	// wait for the confirmation so no publish after Subscribe returns is missed
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, fmt.Errorf("redis subscribe %s: %w", channel, err)
	}

	r.mu.Lock()
	r.subs[ps] = struct{}{}
	r.mu.Unlock()

	out := make(chan relay.Event, r.buffer)
	go r.forward(ps, out)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs, ps)
			r.mu.Unlock()
			_ = ps.Close()
		})
	}
	return out, cancel, nil
}

func (r *Relay) forward(ps *redis.PubSub, out chan relay.Event) {
	defer close(out)
	for msg := range ps.Channel() {
		var ev relay.Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			r.logger.Warn("drop malformed event", "channel", msg.Channel, "error", err)
			continue
		}
		select {
		case out <- ev:
		default:
			// a slow reader loses the oldest event, like the in-process hub
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
	r.closed = true
	for ps := range r.subs {
		_ = ps.Close()
		delete(r.subs, ps)
	}
	return nil
}
