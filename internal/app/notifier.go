package app

import (
	"context"
	"fmt"
	"log/slog"

	"trivia-sync-service/internal/domain"
	"trivia-sync-service/internal/relay"
)

// notifier publishes game events. Failures are logged and swallowed: devices recover
// missed events by reading state, never by a broadcast retry.
type notifier struct {
	pub    relay.Publisher
	logger *slog.Logger
}

func (n notifier) publish(ctx context.Context, gameID string, name domain.EventName, payload any) {
	if n.pub == nil {
		return
	}
	ev, err := relay.NewEvent(relay.Channel(gameID), name, payload)
	if err == nil {
		err = n.pub.Publish(ctx, ev)
	}
	if err != nil {
		err = fmt.Errorf("%w: %w", domain.ErrBroadcastDelivery, err)
		n.logger.Warn("broadcast failed", "game_id", gameID, "event", name, "error", err)
		return
	}
	n.logger.Debug("broadcast sent", "game_id", gameID, "event", name, "event_id", ev.ID)
}
