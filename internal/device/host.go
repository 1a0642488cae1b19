package device

import (
	"context"

	"trivia-sync-service/internal/domain"
	"trivia-sync-service/internal/relay"
)

// Controller is the host's write path to the orchestrator.
type Controller interface {
	Expire(ctx context.Context, gameID string, phase domain.Phase, questionIndex int) (domain.GameState, error)
	Skip(ctx context.Context, gameID string) (domain.GameState, error)
	Pause(ctx context.Context, gameID string) (domain.GameState, error)
	Resume(ctx context.Context, gameID string) (domain.GameState, error)
}

// Host is the display device. It owns the phase timers: when a countdown runs out or
// the host skips, it moves its own view first and then tells the orchestrator.
type Host struct {
	*Session
	ctrl     Controller
	skipNext bool
}

func NewHost(cfg Config, sub relay.Subscriber, fetch Fetcher, ctrl Controller) *Host {
	h := &Host{Session: NewSession(cfg, sub, fetch), ctrl: ctrl}
	h.onExpire = h.expire
	return h
}

// Skip ends the current phase now. A paused game is resumed first.
func (h *Host) Skip() error {
	return h.call(func(ctx context.Context) {
		if h.countdown == nil || h.countdown.Done() {
			return
		}
		if h.view.EchoPause(false) {
			h.countdown.Resume()
		}
		h.skipNext = true
		if !h.countdown.Expire() {
			h.skipNext = false
		}
	})
}

func (h *Host) Pause() error {
	return h.call(func(ctx context.Context) {
		before := h.view.Screen()
		if !h.view.EchoPause(true) {
			return
		}
		h.applyPause()
		h.changed(before)
		h.send(ctx, "pause", func(ctx context.Context) (domain.GameState, error) {
			return h.ctrl.Pause(ctx, h.cfg.GameID)
		})
	})
}

func (h *Host) Resume() error {
	return h.call(func(ctx context.Context) {
		before := h.view.Screen()
		if !h.view.EchoPause(false) {
			return
		}
		h.applyPause()
		h.changed(before)
		h.send(ctx, "resume", func(ctx context.Context) (domain.GameState, error) {
			return h.ctrl.Resume(ctx, h.cfg.GameID)
		})
	})
}

// expire is the single path for timeouts and skips.
func (h *Host) expire(ctx context.Context, phase domain.Phase, index int) {
	skip := h.skipNext
	h.skipNext = false

	before := h.view.Screen()
	if !h.view.Echo() {
		return
	}
	h.enterPhase(0)
	h.changed(before)

	if skip {
		h.send(ctx, "skip", func(ctx context.Context) (domain.GameState, error) {
			return h.ctrl.Skip(ctx, h.cfg.GameID)
		})
		return
	}
	h.send(ctx, "expire", func(ctx context.Context) (domain.GameState, error) {
		return h.ctrl.Expire(ctx, h.cfg.GameID, phase, index)
	})
}

// send runs a controller call off the session goroutine and adopts the returned state.
func (h *Host) send(ctx context.Context, op string, fn func(context.Context) (domain.GameState, error)) {
	go func() {
		state, err := fn(ctx)
		h.post(func(ctx context.Context) {
			if err != nil {
				h.cfg.Logger.Warn("host command failed", "game_id", h.cfg.GameID, "op", op, "error", err)
				h.resync(ctx)
				return
			}
			h.adopt(state)
		})
	}()
}
