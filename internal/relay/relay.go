// Package relay distributes game notifications to every device subscribed to a game channel.
// Delivery is best effort: events may be dropped, duplicated or reordered, so consumers must
// treat them as hints and fall back to reading authoritative state.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"trivia-sync-service/internal/domain"
)

// Event is the envelope carried on every backend.
type Event struct {
	ID      string           `json:"id"`
	Channel string           `json:"channel"`
	Name    domain.EventName `json:"name"`
	Payload json.RawMessage  `json:"payload"`
	SentAt  time.Time        `json:"sentAt"`
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Name, err)
	}
	return nil
}

// NewEvent wraps payload for a channel.
func NewEvent(channel string, name domain.EventName, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", name, err)
	}
	return Event{
		ID:      uuid.NewString(),
		Channel: channel,
		Name:    name,
		Payload: raw,
		SentAt:  time.Now().UTC(),
	}, nil
}

// Channel is the per-game channel name.
func Channel(gameID string) string {
	return "game:" + gameID
}

// Publisher sends an event to every current subscriber of its channel.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Subscriber streams events for a channel. The returned cancel func must be called to release it.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan Event, func(), error)
}

// Relay is a full backend.
type Relay interface {
	Publisher
	Subscriber
	Close() error
}
