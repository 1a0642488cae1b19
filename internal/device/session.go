package device

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"trivia-sync-service/internal/domain"
	"trivia-sync-service/internal/relay"
	"trivia-sync-service/internal/timer"
)

// ErrSessionClosed is returned by calls made after Run returned.
var ErrSessionClosed = errors.New("device session closed")

// Fetcher reads the authoritative game snapshot.
type Fetcher interface {
	State(ctx context.Context, gameID string) (domain.GameState, error)
}

// Config tunes a device session.
type Config struct {
	GameID    string
	Durations domain.RoundDurations
	// Grace is how long past a phase's end the session waits for the next event before
	// fetching state.
	Grace time.Duration
	// PausePoll is the fetch interval while paused, in case the resume event is lost.
	PausePoll time.Duration
	Clock     timer.Clock
	Logger    *slog.Logger
	// OnChange is called from the session goroutine whenever the screen changes.
	OnChange func(Screen)
}

func (c Config) withDefaults() Config {
	if c.Durations == (domain.RoundDurations{}) {
		c.Durations = domain.DefaultRoundDurations()
	}
	if c.Grace <= 0 {
		c.Grace = 3 * time.Second
	}
	if c.PausePoll <= 0 {
		c.PausePoll = 10 * time.Second
	}
	if c.Clock == nil {
		c.Clock = timer.System
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Session runs one device. Relay events, local actions and timer fires are all handled
// one at a time on the goroutine that calls Run.
type Session struct {
	cfg   Config
	sub   relay.Subscriber
	fetch Fetcher
	view  *View

	inbox chan func(context.Context)
	done  chan struct{}

	countdown *timer.Countdown
	race      *timer.Race

	// onExpire is set by Host; players ignore their countdown running out.
	onExpire func(ctx context.Context, phase domain.Phase, index int)
}

func NewSession(cfg Config, sub relay.Subscriber, fetch Fetcher) *Session {
	return &Session{
		cfg:   cfg.withDefaults(),
		sub:   sub,
		fetch: fetch,
		view:  NewView(),
		inbox: make(chan func(context.Context)),
		done:  make(chan struct{}),
	}
}

// Run subscribes to the game channel, loads the current state and processes inputs
// until ctx is cancelled or the relay closes the subscription.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)
	defer s.stopTimers()

	events, cancel, err := s.sub.Subscribe(ctx, relay.Channel(s.cfg.GameID))
	if err != nil {
		return err
	}
	defer cancel()

	s.resync(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return errors.New("relay subscription closed")
			}
			s.handle(ctx, ev)
		case fn := <-s.inbox:
			fn(ctx)
		}
	}
}

// Screen returns the current screen. It blocks until the session goroutine serves it.
func (s *Session) Screen() (Screen, error) {
	var out Screen
	err := s.call(func(context.Context) { out = s.screen() })
	return out, err
}

// Refresh fetches state now.
func (s *Session) Refresh() error {
	return s.call(s.resync)
}

func (s *Session) screen() Screen {
	sc := s.view.Screen()
	if s.countdown != nil {
		sc.RemainingMs = s.countdown.Remaining().Milliseconds()
	}
	return sc
}

// call runs fn on the session goroutine and waits for it.
func (s *Session) call(fn func(context.Context)) error {
	finished := make(chan struct{})
	ok := s.post(func(ctx context.Context) {
		defer close(finished)
		fn(ctx)
	})
	if !ok {
		return ErrSessionClosed
	}
	select {
	case <-finished:
		return nil
	case <-s.done:
		return ErrSessionClosed
	}
}

// post queues fn for the session goroutine. It must not be called from that goroutine.
func (s *Session) post(fn func(context.Context)) bool {
	select {
	case s.inbox <- fn:
		return true
	case <-s.done:
		return false
	}
}

func (s *Session) handle(ctx context.Context, ev relay.Event) {
	before := s.view.Screen()
	outcome, err := s.view.Apply(ev)
	if err != nil {
		s.cfg.Logger.Warn("bad relay event", "game_id", s.cfg.GameID, "event", ev.Name, "error", err)
	}
	s.cfg.Logger.Debug("relay event", "game_id", s.cfg.GameID, "event", ev.Name, "outcome", outcome)

	switch outcome {
	case Resync:
		s.resync(ctx)
		return
	case Applied:
	default:
		// a duplicate may still have filled in content an echo lacked
		s.changed(before)
		return
	}

	switch ev.Name {
	case domain.EventQuestionAdvance:
		var p domain.QuestionAdvance
		elapsed := time.Duration(0)
		if ev.Decode(&p) == nil && !p.StartedAt.IsZero() && !p.ServerTime.IsZero() {
			elapsed = p.ServerTime.Sub(p.StartedAt)
		}
		s.enterPhase(elapsed)
	case domain.EventAnswerReveal:
		s.enterPhase(0)
	case domain.EventLeaderboardReady, domain.EventGameEnd:
		s.enterPhase(0)
		s.resync(ctx)
	case domain.EventGamePause, domain.EventGameResume:
		s.applyPause()
	case domain.EventScoresUpdated:
		s.resync(ctx)
	}
	s.changed(before)
}

// resync fetches the authoritative state and adopts it when it is not behind the view.
func (s *Session) resync(ctx context.Context) {
	state, err := s.fetch.State(ctx, s.cfg.GameID)
	if err != nil {
		s.cfg.Logger.Warn("state fetch failed", "game_id", s.cfg.GameID, "error", err)
		s.armRace()
		return
	}
	s.adopt(state)
}

// adopt syncs the view and restarts the timers when the position changed.
func (s *Session) adopt(state domain.GameState) {
	before := s.view.Screen()
	if !s.view.Sync(state) {
		s.armRace()
		return
	}
	after := s.view.Screen()
	switch {
	case after.Phase != before.Phase || after.QuestionIndex != before.QuestionIndex || s.countdown == nil:
		elapsed := state.Game.Elapsed(state.ServerTime)
		s.startCountdown(elapsed, after.Paused)
		s.armRace()
	case after.Paused != before.Paused:
		s.applyPause()
	default:
		s.armRace()
	}
	s.changed(before)
}

// enterPhase restarts the countdown for the phase the view just entered.
func (s *Session) enterPhase(elapsed time.Duration) {
	if elapsed < 0 {
		elapsed = 0
	}
	s.startCountdown(elapsed, s.view.Paused())
	s.armRace()
}

func (s *Session) startCountdown(elapsed time.Duration, paused bool) {
	if s.countdown != nil {
		s.countdown.Stop()
		s.countdown = nil
	}
	phase, index := s.view.Phase(), s.view.Index()
	d := s.cfg.Durations.For(phase)
	if d <= 0 {
		return
	}
	s.countdown = timer.NewCountdown(s.cfg.Clock, d, func() {
		// may run on the session goroutine via Countdown.Expire, so never block here
		go s.post(func(ctx context.Context) { s.expired(ctx, phase, index) })
	})
	s.countdown.StartAt(elapsed, paused)
}

func (s *Session) expired(ctx context.Context, phase domain.Phase, index int) {
	if s.view.Phase() != phase || s.view.Index() != index {
		return
	}
	if s.onExpire != nil {
		s.onExpire(ctx, phase, index)
	}
}

func (s *Session) applyPause() {
	if s.countdown != nil {
		if s.view.Paused() {
			s.countdown.Pause()
		} else {
			s.countdown.Resume()
		}
	}
	s.armRace()
}

// armRace waits for the event that should end the current phase. If it does not come
// the session falls back to fetching state.
func (s *Session) armRace() {
	if s.race != nil {
		s.race.Cancel()
		s.race = nil
	}
	var wait time.Duration
	switch {
	case s.view.Phase() == domain.PhaseResults:
		return
	case s.view.Phase() == domain.PhaseNone || s.view.Paused():
		wait = s.cfg.PausePoll
	case s.countdown != nil:
		wait = s.countdown.Remaining() + s.cfg.Grace
	default:
		wait = s.cfg.Grace
	}
	s.race = timer.NewRace(s.cfg.Clock, wait, func() {
		go s.post(func(ctx context.Context) {
			s.cfg.Logger.Info("expected event missing, fetching state", "game_id", s.cfg.GameID, "phase", s.view.Phase())
			s.resync(ctx)
		})
	})
}

func (s *Session) changed(before Screen) {
	if s.cfg.OnChange == nil {
		return
	}
	after := s.screen()
	if sameScreen(before, after) {
		return
	}
	s.cfg.OnChange(after)
}

func sameScreen(a, b Screen) bool {
	if a.Phase != b.Phase || a.QuestionIndex != b.QuestionIndex || a.Paused != b.Paused {
		return false
	}
	if (a.Question == nil) != (b.Question == nil) || (a.Reveal == nil) != (b.Reveal == nil) {
		return false
	}
	if len(a.Standings) != len(b.Standings) {
		return false
	}
	for i := range a.Standings {
		if a.Standings[i] != b.Standings[i] {
			return false
		}
	}
	return true
}

func (s *Session) stopTimers() {
	if s.countdown != nil {
		s.countdown.Stop()
	}
	if s.race != nil {
		s.race.Cancel()
	}
}
