package app_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"trivia-sync-service/internal/app"
	"trivia-sync-service/internal/domain"
	"trivia-sync-service/internal/infra/memory"
	"trivia-sync-service/internal/relay"
)

type fixture struct {
	svc    *app.Service
	store  *memory.Store
	hub    *relay.Hub
	events <-chan relay.Event

	mu  sync.Mutex
	now time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithStore(t, nil)
}

func newFixtureWithStore(t *testing.T, wrap func(*memory.Store) app.Store) *fixture {
	t.Helper()
	f := &fixture{
		store: memory.NewStore(),
		hub:   relay.NewHub(256),
		now:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	var store app.Store = f.store
	if wrap != nil {
		store = wrap(f.store)
	}
	f.svc = app.NewService(app.Deps{
		Store:     store,
		Questions: memory.NewQuestionRepository(memory.NewStaticQuestionLoader(threeQuestions()), time.Minute),
		Publisher: f.hub,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:       f.clock,
	})
	t.Cleanup(func() { f.hub.Close() })
	return f
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// newGame creates a game, subscribes to its channel and joins the named players.
func (f *fixture) newGame(t *testing.T, names ...string) (domain.Game, []domain.Player) {
	t.Helper()
	ctx := context.Background()
	game, err := f.svc.Games.CreateGame(ctx, "set-1")
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	events, cancel, err := f.hub.Subscribe(ctx, relay.Channel(game.ID))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	t.Cleanup(cancel)
	f.events = events

	players := make([]domain.Player, 0, len(names))
	for _, name := range names {
		_, p, err := f.svc.Games.JoinGame(ctx, game.RoomCode, name)
		if err != nil {
			t.Fatalf("join %s: %v", name, err)
		}
		players = append(players, p)
	}
	return game, players
}

// drain returns the events published so far.
func (f *fixture) drain() []relay.Event {
	var out []relay.Event
	for {
		select {
		case ev := <-f.events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func names(events []relay.Event) []domain.EventName {
	out := make([]domain.EventName, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Name)
	}
	return out
}

func count(events []relay.Event, name domain.EventName) int {
	n := 0
	for _, ev := range events {
		if ev.Name == name {
			n++
		}
	}
	return n
}

func decode[T any](t *testing.T, ev relay.Event) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(ev.Payload, &v); err != nil {
		t.Fatalf("decode %s: %v", ev.Name, err)
	}
	return v
}

func opt(o domain.Option) *domain.Option { return &o }

func (f *fixture) submit(t *testing.T, gameID, playerID, questionID string, selected *domain.Option, ms int) {
	t.Helper()
	_, err := f.svc.Rounds.SubmitAnswer(context.Background(), domain.Submission{
		GameID: gameID, PlayerID: playerID, QuestionID: questionID, Selected: selected, ResponseTimeMs: ms,
	})
	if err != nil {
		t.Fatalf("submit %s/%s: %v", playerID, questionID, err)
	}
}

func (f *fixture) total(t *testing.T, gameID, playerID string) int {
	t.Helper()
	p, err := f.store.GetPlayer(context.Background(), gameID, playerID)
	if err != nil {
		t.Fatalf("get player: %v", err)
	}
	return p.TotalScore
}

func (f *fixture) game(t *testing.T, gameID string) domain.Game {
	t.Helper()
	g, err := f.store.GetGame(context.Background(), gameID)
	if err != nil {
		t.Fatalf("get game: %v", err)
	}
	return g
}

func threeQuestions() domain.QuestionSet {
	options := map[domain.Option]string{
		domain.OptionA: "Genesis", domain.OptionB: "Exodus", domain.OptionC: "Psalms", domain.OptionD: "Acts",
	}
	return domain.QuestionSet{
		ID:    "set-1",
		Title: "Books",
		Questions: []domain.Question{
			{ID: "q1", QuestionSetID: "set-1", OrderIndex: 0, Prompt: "First book?", Options: options, CorrectAnswer: domain.OptionA},
			{ID: "q2", QuestionSetID: "set-1", OrderIndex: 1, Prompt: "Second book?", Options: options, CorrectAnswer: domain.OptionB},
			{ID: "q3", QuestionSetID: "set-1", OrderIndex: 2, Prompt: "Songs?", Options: options, CorrectAnswer: domain.OptionC,
				Verse: domain.Verse{Reference: "Psalm 100:1"}},
		},
	}
}
