package device

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"trivia-sync-service/internal/app"
	"trivia-sync-service/internal/domain"
	"trivia-sync-service/internal/infra/memory"
	"trivia-sync-service/internal/relay"
	"trivia-sync-service/internal/timer"
)

// local talks to the use cases in-process, the way the HTTP client does over the wire.
type local struct {
	svc *app.Service
}

func (l local) State(ctx context.Context, gameID string) (domain.GameState, error) {
	return l.svc.Rounds.State(ctx, gameID)
}

func (l local) after(ctx context.Context, gameID string, err error) (domain.GameState, error) {
	if err != nil {
		return domain.GameState{}, err
	}
	return l.State(ctx, gameID)
}

func (l local) Expire(ctx context.Context, gameID string, phase domain.Phase, index int) (domain.GameState, error) {
	_, err := l.svc.Rounds.Expire(ctx, gameID, phase, index)
	return l.after(ctx, gameID, err)
}

func (l local) Skip(ctx context.Context, gameID string) (domain.GameState, error) {
	_, err := l.svc.Rounds.Skip(ctx, gameID)
	return l.after(ctx, gameID, err)
}

func (l local) Pause(ctx context.Context, gameID string) (domain.GameState, error) {
	_, err := l.svc.Rounds.Pause(ctx, gameID)
	return l.after(ctx, gameID, err)
}

func (l local) Resume(ctx context.Context, gameID string) (domain.GameState, error) {
	_, err := l.svc.Rounds.Resume(ctx, gameID)
	return l.after(ctx, gameID, err)
}

func (l local) SubmitAnswer(ctx context.Context, sub domain.Submission) (domain.Answer, error) {
	return l.svc.Rounds.SubmitAnswer(ctx, sub)
}

// silent never delivers anything, as if every broadcast was lost.
type silent struct{}

func (silent) Subscribe(context.Context, string) (<-chan relay.Event, func(), error) {
	return make(chan relay.Event), func() {}, nil
}

type harness struct {
	clock   *timer.FakeClock
	hub     *relay.Hub
	svc     *app.Service
	game    domain.Game
	players []domain.Player
	logger  *slog.Logger
}

func newHarness(t *testing.T, names ...string) *harness {
	t.Helper()
	h := &harness{
		clock:  timer.NewFakeClock(t0),
		hub:    relay.NewHub(64),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	set := domain.QuestionSet{ID: "set-1", Title: "t"}
	for i := 0; i < 3; i++ {
		set.Questions = append(set.Questions, domain.Question{
			ID:            questionID(i),
			OrderIndex:    i,
			Prompt:        "prompt " + questionID(i),
			Options:       map[domain.Option]string{domain.OptionA: "a", domain.OptionB: "b", domain.OptionC: "c", domain.OptionD: "d"},
			CorrectAnswer: domain.OptionA,
		})
	}
	h.svc = app.NewService(app.Deps{
		Store:     memory.NewStore(),
		Questions: memory.NewQuestionRepository(memory.NewStaticQuestionLoader(set), time.Hour),
		Publisher: h.hub,
		Logger:    h.logger,
		Now:       h.clock.Now,
	})

	ctx := context.Background()
	game, err := h.svc.Games.CreateGame(ctx, "set-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, n := range names {
		_, p, err := h.svc.Games.JoinGame(ctx, game.RoomCode, n)
		if err != nil {
			t.Fatalf("join: %v", err)
		}
		h.players = append(h.players, p)
	}
	if _, err := h.svc.Rounds.Start(ctx, game.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.game = game
	t.Cleanup(func() { h.hub.Close() })
	return h
}

func (h *harness) config() Config {
	return Config{
		GameID:    h.game.ID,
		Grace:     3 * time.Second,
		PausePoll: 10 * time.Second,
		Clock:     h.clock,
		Logger:    h.logger,
	}
}

func (h *harness) serverGame(t *testing.T) domain.Game {
	t.Helper()
	g, err := h.svc.Games.GetGame(context.Background(), h.game.ID)
	if err != nil {
		t.Fatalf("get game: %v", err)
	}
	return g
}

func run(t *testing.T, s *Session) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() { errs <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-errs; !errors.Is(err, context.Canceled) {
			t.Errorf("session ended with %v", err)
		}
	})
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func screenIs(t *testing.T, s *Session, phase domain.Phase, index int) func() bool {
	return func() bool {
		sc, err := s.Screen()
		if err != nil {
			t.Fatalf("screen: %v", err)
		}
		return sc.Phase == phase && sc.QuestionIndex == index
	}
}

func TestSessionFollowsBroadcasts(t *testing.T) {
	h := newHarness(t, "Ann", "Ben")
	s := NewSession(h.config(), h.hub, local{h.svc})
	run(t, s)
	eventually(t, "first question", screenIs(t, s, domain.PhaseQuestion, 0))

	if _, err := h.svc.Rounds.Expire(context.Background(), h.game.ID, domain.PhaseQuestion, 0); err != nil {
		t.Fatalf("expire: %v", err)
	}
	eventually(t, "reveal", screenIs(t, s, domain.PhaseReveal, 0))

	sc, _ := s.Screen()
	if sc.Reveal == nil || sc.Reveal.CorrectAnswer != domain.OptionA {
		t.Fatalf("expected reveal content, got %+v", sc.Reveal)
	}
}

func TestSessionFallsBackToStateWhenEventsAreLost(t *testing.T) {
	h := newHarness(t, "Ann")
	s := NewSession(h.config(), silent{}, local{h.svc})
	run(t, s)
	eventually(t, "first question", screenIs(t, s, domain.PhaseQuestion, 0))

	if _, err := h.svc.Rounds.Expire(context.Background(), h.game.ID, domain.PhaseQuestion, 0); err != nil {
		t.Fatalf("expire: %v", err)
	}
	// nothing arrives; the view holds until the phase deadline plus grace
	h.clock.Advance(17 * time.Second)
	time.Sleep(20 * time.Millisecond)
	if ok := screenIs(t, s, domain.PhaseQuestion, 0)(); !ok {
		t.Fatalf("view moved before the fallback deadline")
	}

	h.clock.Advance(time.Second)
	eventually(t, "fallback reveal", screenIs(t, s, domain.PhaseReveal, 0))
}

func TestHostCountdownDrivesRounds(t *testing.T) {
	h := newHarness(t, "Ann")
	host := NewHost(h.config(), h.hub, local{h.svc}, local{h.svc})
	run(t, host.Session)
	eventually(t, "first question", screenIs(t, host.Session, domain.PhaseQuestion, 0))

	h.clock.Advance(15 * time.Second)
	eventually(t, "server reveal", func() bool { return h.serverGame(t).Phase == domain.PhaseReveal })
	eventually(t, "host reveal content", func() bool {
		sc, _ := host.Screen()
		return sc.Phase == domain.PhaseReveal && sc.Reveal != nil
	})

	h.clock.Advance(5 * time.Second)
	eventually(t, "server leaderboard", func() bool { return h.serverGame(t).Phase == domain.PhaseLeaderboard })
	eventually(t, "host leaderboard", screenIs(t, host.Session, domain.PhaseLeaderboard, 0))

	h.clock.Advance(10 * time.Second)
	eventually(t, "server second question", func() bool {
		g := h.serverGame(t)
		return g.Phase == domain.PhaseQuestion && g.CurrentQuestionIndex == 1
	})
	eventually(t, "host second question content", func() bool {
		sc, _ := host.Screen()
		return sc.QuestionIndex == 1 && sc.Question != nil && sc.Question.QuestionID == "q2"
	})
}

func TestHostSkipWhilePausedResumesAndReveals(t *testing.T) {
	h := newHarness(t, "Ann")
	host := NewHost(h.config(), h.hub, local{h.svc}, local{h.svc})
	run(t, host.Session)
	eventually(t, "first question", screenIs(t, host.Session, domain.PhaseQuestion, 0))

	if err := host.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	eventually(t, "server paused", func() bool { return h.serverGame(t).Paused() })

	// a frozen countdown never expires
	h.clock.Advance(30 * time.Second)
	time.Sleep(20 * time.Millisecond)
	if g := h.serverGame(t); g.Phase != domain.PhaseQuestion {
		t.Fatalf("paused question expired: %s", g.Phase)
	}
	sc, _ := host.Screen()
	if !sc.Paused || sc.RemainingMs != 15000 {
		t.Fatalf("expected frozen full window, got paused=%v remaining=%d", sc.Paused, sc.RemainingMs)
	}

	if err := host.Skip(); err != nil {
		t.Fatalf("skip: %v", err)
	}
	eventually(t, "server reveal", func() bool {
		g := h.serverGame(t)
		return g.Phase == domain.PhaseReveal && !g.Paused()
	})
	eventually(t, "host reveal", screenIs(t, host.Session, domain.PhaseReveal, 0))
}

func TestPlayerAnswerUsesCountdown(t *testing.T) {
	h := newHarness(t, "Ann")
	p := NewPlayer(h.config(), h.players[0].ID, h.hub, local{h.svc}, local{h.svc})
	run(t, p.Session)
	eventually(t, "first question", screenIs(t, p.Session, domain.PhaseQuestion, 0))

	h.clock.Advance(2 * time.Second)
	answer, err := p.Answer(context.Background(), domain.OptionA)
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if answer.ResponseTimeMs != 2000 {
		t.Fatalf("expected 2000ms, got %d", answer.ResponseTimeMs)
	}
	if !p.Answered("q1") {
		t.Fatalf("answer not recorded locally")
	}

	_, err = p.Answer(context.Background(), domain.OptionB)
	if !errors.Is(err, ErrAlreadyAnswered) && !errors.Is(err, ErrNoOpenQuestion) {
		t.Fatalf("second answer: %v", err)
	}

	// the only player answered, so the question reveals at once
	eventually(t, "auto reveal", screenIs(t, p.Session, domain.PhaseReveal, 0))
	standings, err := h.svc.Rounds.Leaderboard(context.Background(), h.game.ID)
	if err != nil || len(standings) != 1 || standings[0].TotalScore != 15 {
		t.Fatalf("unexpected standings %+v %v", standings, err)
	}
}

func TestPlayerClockSkewDoesNotCostPoints(t *testing.T) {
	h := newHarness(t, "Ann")
	cfg := h.config()
	// the phone runs four seconds ahead of the server
	cfg.Clock = timer.NewFakeClock(t0.Add(4 * time.Second))
	p := NewPlayer(cfg, h.players[0].ID, h.hub, local{h.svc}, local{h.svc})
	run(t, p.Session)
	eventually(t, "first question", screenIs(t, p.Session, domain.PhaseQuestion, 0))

	ctx := context.Background()
	steps := []struct {
		phase domain.Phase
		next  domain.Phase
		index int
	}{
		{domain.PhaseQuestion, domain.PhaseReveal, 0},
		{domain.PhaseReveal, domain.PhaseLeaderboard, 0},
		{domain.PhaseLeaderboard, domain.PhaseQuestion, 1},
	}
	for _, st := range steps {
		if _, err := h.svc.Rounds.Expire(ctx, h.game.ID, st.phase, 0); err != nil {
			t.Fatalf("expire %s: %v", st.phase, err)
		}
		eventually(t, string(st.next), screenIs(t, p.Session, st.next, st.index))
	}

	sc, _ := p.Screen()
	if sc.RemainingMs != 15000 {
		t.Fatalf("expected a full window after question_advance, got %dms", sc.RemainingMs)
	}
	answer, err := p.Answer(ctx, domain.OptionA)
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if answer.ResponseTimeMs != 0 {
		t.Fatalf("instant answer recorded as %dms", answer.ResponseTimeMs)
	}
	eventually(t, "auto reveal", screenIs(t, p.Session, domain.PhaseReveal, 1))
	standings, err := h.svc.Rounds.Leaderboard(ctx, h.game.ID)
	if err != nil || len(standings) != 1 || standings[0].TotalScore != 15 {
		t.Fatalf("unexpected standings %+v %v", standings, err)
	}
}

type failingSubmitter struct{ err error }

func (f failingSubmitter) SubmitAnswer(context.Context, domain.Submission) (domain.Answer, error) {
	return domain.Answer{}, f.err
}

func TestPlayerCanRetryAfterFailedSubmit(t *testing.T) {
	h := newHarness(t, "Ann")
	p := NewPlayer(h.config(), h.players[0].ID, h.hub, local{h.svc}, failingSubmitter{err: domain.ErrTransientPersistence})
	run(t, p.Session)
	eventually(t, "first question", screenIs(t, p.Session, domain.PhaseQuestion, 0))

	if _, err := p.Answer(context.Background(), domain.OptionA); !errors.Is(err, domain.ErrTransientPersistence) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if p.Answered("q1") {
		t.Fatalf("failed submit must not lock the question")
	}
}
