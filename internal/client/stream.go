package client

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"trivia-sync-service/internal/relay"
)

// Subscribe opens the websocket event stream for a relay channel. The returned channel is
// closed when the connection drops; the device falls back to polling state.
func (c *Client) Subscribe(ctx context.Context, channel string) (<-chan relay.Event, func(), error) {
	gameID, ok := strings.CutPrefix(channel, relay.Channel(""))
	if !ok || gameID == "" {
		return nil, nil, fmt.Errorf("unsupported channel %q", channel)
	}

	u := *c.base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + gamePath(gameID, "ws")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("dial event stream: %w", err)
	}

	out := make(chan relay.Event, 16)
	go func() {
		defer close(out)
		for {
			var ev relay.Event
			if err := conn.ReadJSON(&ev); err != nil {
				c.logger.Debug("event stream ended", "game_id", gameID, "error", err)
				return
			}
			select {
			case out <- ev:
			default:
				c.logger.Debug("event dropped", "game_id", gameID, "event", ev.Name)
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() { _ = conn.Close() })
	}
	return out, cancel, nil
}
