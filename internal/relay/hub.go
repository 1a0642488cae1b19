package relay

import (
	"context"
	"sync"
)

// Hub is the in-process Relay. Slow subscribers lose their oldest pending event rather
// than blocking the publisher.
type Hub struct {
	buffer int

	mu     sync.Mutex
	topics map[string]map[chan Event]struct{}
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{
		buffer: buffer,
		topics: make(map[string]map[chan Event]struct{}),
	}
}

func (h *Hub) Publish(_ context.Context, ev Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.topics[ev.Channel] {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
	return nil
}

func (h *Hub) Subscribe(_ context.Context, channel string) (<-chan Event, func(), error) {
	ch := make(chan Event, h.buffer)

	h.mu.Lock()
	subs, ok := h.topics[channel]
	if !ok {
		subs = make(map[chan Event]struct{})
		h.topics[channel] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			subs, ok := h.topics[channel]
			if !ok {
				return
			}
			if _, ok := subs[ch]; !ok {
				return
			}
			delete(subs, ch)
			if len(subs) == 0 {
				delete(h.topics, channel)
			}
			close(ch)
		})
	}
	return ch, cancel, nil
}

// Subscribers reports how many subscribers a channel has.
func (h *Hub) Subscribers(channel string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics[channel])
}

func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for channel, subs := range h.topics {
		for ch := range subs {
			close(ch)
		}
		delete(h.topics, channel)
	}
	return nil
}
