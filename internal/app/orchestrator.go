package app

import (
	"context"
	"fmt"
	"time"

	"trivia-sync-service/internal/domain"
	"trivia-sync-service/internal/ranking"
)

// maxTransitionAttempts bounds how often a transition is re-evaluated after losing a version race.
const maxTransitionAttempts = 5

// Transition is the result of a round operation. Applied is false when the game was
// already past the requested state or another writer moved it first.
type Transition struct {
	Game    domain.Game `json:"game"`
	Applied bool        `json:"applied"`
}

// Orchestrator drives the round state machine. The host device is the only caller that
// reacts to timers; every transition is a compare-and-swap on the game version so
// concurrent triggers collapse into one effect.
type Orchestrator struct {
	deps   Deps
	ledger *Ledger
	notify notifier
}

func NewOrchestrator(deps Deps, ledger *Ledger) *Orchestrator {
	deps = deps.withDefaults()
	if ledger == nil {
		ledger = NewLedger(deps)
	}
	return &Orchestrator{deps: deps, ledger: ledger, notify: deps.notifier()}
}

// mutation edits a fresh copy of the game. Returning false leaves the game untouched.
type mutation func(g *domain.Game) (bool, error)

func (o *Orchestrator) transition(ctx context.Context, gameID string, mutate mutation) (Transition, error) {
	var current domain.Game
	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		game, err := o.deps.Store.GetGame(ctx, gameID)
		if err != nil {
			return Transition{}, err
		}
		current = game

		next := game
		ok, err := mutate(&next)
		if err != nil {
			return Transition{Game: game}, err
		}
		if !ok {
			return Transition{Game: game}, nil
		}

		stored, won, err := o.deps.Store.UpdateGame(ctx, next)
		if err != nil {
			return Transition{Game: game}, err
		}
		if won {
			return Transition{Game: stored, Applied: true}, nil
		}
		o.deps.Logger.Debug("game version conflict", "game_id", gameID, "attempt", attempt+1)
	}
	return Transition{Game: current}, nil
}

// enterPhase resets the phase clock and any pause bookkeeping.
func (o *Orchestrator) enterPhase(g *domain.Game, phase domain.Phase) {
	g.Phase = phase
	g.PhaseStartedAt = o.deps.Now()
	g.PausedAt = nil
	g.PausedFor = 0
}

func (o *Orchestrator) complete(g *domain.Game) {
	o.enterPhase(g, domain.PhaseResults)
	at := o.deps.Now()
	g.Status = domain.StatusCompleted
	g.CompletedAt = &at
}

// Start opens the first question.
func (o *Orchestrator) Start(ctx context.Context, gameID string) (Transition, error) {
	t, err := o.transition(ctx, gameID, func(g *domain.Game) (bool, error) {
		switch g.Status {
		case domain.StatusActive:
			return false, nil
		case domain.StatusCompleted:
			return false, domain.ErrInvalidTransition
		}
		if g.QuestionCount == 0 {
			return false, domain.Invalid("questionSetId", "question set is empty")
		}
		at := o.deps.Now()
		g.Status = domain.StatusActive
		g.StartedAt = &at
		g.CurrentQuestionIndex = 0
		o.enterPhase(g, domain.PhaseQuestion)
		return true, nil
	})
	if err != nil || !t.Applied {
		return t, err
	}
	o.deps.Logger.Info("game started", "game_id", gameID)
	o.announceQuestion(ctx, t.Game)
	return t, nil
}

// Reveal closes the answer window of questionIndex, scores it and announces the answer.
func (o *Orchestrator) Reveal(ctx context.Context, gameID string, questionIndex int) (Transition, error) {
	return o.reveal(ctx, gameID, questionIndex, false)
}

func (o *Orchestrator) reveal(ctx context.Context, gameID string, questionIndex int, timed bool) (Transition, error) {
	t, err := o.transition(ctx, gameID, func(g *domain.Game) (bool, error) {
		if !o.current(g, domain.PhaseQuestion, questionIndex, timed) {
			return false, nil
		}
		o.enterPhase(g, domain.PhaseReveal)
		return true, nil
	})
	if err != nil || !t.Applied {
		return t, err
	}

	question, err := o.question(ctx, t.Game, questionIndex)
	if err != nil {
		o.deps.Logger.Error("reveal lost question content", "game_id", gameID, "index", questionIndex, "error", err)
		return t, nil
	}
	if _, err := o.ledger.scoreQuestion(ctx, t.Game, question); err != nil {
		o.deps.Logger.Error("scoring pass failed", "game_id", gameID, "question_id", question.ID, "error", err)
	}
	o.notify.publish(ctx, gameID, domain.EventAnswerReveal, domain.AnswerReveal{
		QuestionID:    question.ID,
		CorrectAnswer: question.CorrectAnswer,
		Content:       question.Reveal(),
	})
	return t, nil
}

// ShowLeaderboard leaves the reveal of questionIndex. After the last question the game
// goes straight to results.
func (o *Orchestrator) ShowLeaderboard(ctx context.Context, gameID string, questionIndex int) (Transition, error) {
	return o.showLeaderboard(ctx, gameID, questionIndex, false)
}

func (o *Orchestrator) showLeaderboard(ctx context.Context, gameID string, questionIndex int, timed bool) (Transition, error) {
	t, err := o.transition(ctx, gameID, func(g *domain.Game) (bool, error) {
		if !o.current(g, domain.PhaseReveal, questionIndex, timed) {
			return false, nil
		}
		if g.IsLastQuestion() {
			o.complete(g)
		} else {
			o.enterPhase(g, domain.PhaseLeaderboard)
		}
		return true, nil
	})
	if err != nil || !t.Applied {
		return t, err
	}

	question, err := o.question(ctx, t.Game, questionIndex)
	if err != nil {
		o.deps.Logger.Error("leaderboard lost question content", "game_id", gameID, "index", questionIndex, "error", err)
		return t, nil
	}
	if t.Game.Status == domain.StatusCompleted {
		// final totals must be settled before devices render results
		if _, err := o.ledger.scoreQuestion(ctx, t.Game, question); err != nil {
			o.deps.Logger.Error("final scoring pass failed", "game_id", gameID, "error", err)
		}
		o.finish(ctx, t.Game)
		return t, nil
	}
	o.notify.publish(ctx, gameID, domain.EventLeaderboardReady, domain.LeaderboardReady{QuestionID: question.ID})
	return t, nil
}

// Advance leaves the leaderboard after questionIndex and opens the next question.
func (o *Orchestrator) Advance(ctx context.Context, gameID string, questionIndex int) (Transition, error) {
	return o.advance(ctx, gameID, questionIndex, false)
}

func (o *Orchestrator) advance(ctx context.Context, gameID string, questionIndex int, timed bool) (Transition, error) {
	t, err := o.transition(ctx, gameID, func(g *domain.Game) (bool, error) {
		if !o.current(g, domain.PhaseLeaderboard, questionIndex, timed) {
			return false, nil
		}
		if g.IsLastQuestion() {
			o.complete(g)
			return true, nil
		}
		g.CurrentQuestionIndex++
		o.enterPhase(g, domain.PhaseQuestion)
		return true, nil
	})
	if err != nil || !t.Applied {
		return t, err
	}
	if t.Game.Status == domain.StatusCompleted {
		o.finish(ctx, t.Game)
		return t, nil
	}
	o.announceQuestion(ctx, t.Game)
	return t, nil
}

// Expire handles "the timer of phase at questionIndex ran out". Host timeouts and skips
// both land here. Nothing expires while the game is paused.
func (o *Orchestrator) Expire(ctx context.Context, gameID string, phase domain.Phase, questionIndex int) (Transition, error) {
	switch phase {
	case domain.PhaseQuestion:
		return o.reveal(ctx, gameID, questionIndex, true)
	case domain.PhaseReveal:
		return o.showLeaderboard(ctx, gameID, questionIndex, true)
	case domain.PhaseLeaderboard:
		return o.advance(ctx, gameID, questionIndex, true)
	}
	game, err := o.deps.Store.GetGame(ctx, gameID)
	return Transition{Game: game}, err
}

// Skip ends the current phase early, resuming first if the game is paused.
func (o *Orchestrator) Skip(ctx context.Context, gameID string) (Transition, error) {
	game, err := o.deps.Store.GetGame(ctx, gameID)
	if err != nil {
		return Transition{}, err
	}
	if game.Status != domain.StatusActive {
		return Transition{Game: game}, nil
	}
	if game.Paused() {
		t, err := o.Resume(ctx, gameID)
		if err != nil {
			return t, err
		}
		game = t.Game
	}
	return o.Expire(ctx, gameID, game.Phase, game.CurrentQuestionIndex)
}

// Pause freezes the phase clock of an active game.
func (o *Orchestrator) Pause(ctx context.Context, gameID string) (Transition, error) {
	t, err := o.transition(ctx, gameID, func(g *domain.Game) (bool, error) {
		if g.Status != domain.StatusActive || g.Phase == domain.PhaseResults {
			return false, domain.ErrInvalidTransition
		}
		if g.Paused() {
			return false, nil
		}
		at := o.deps.Now()
		g.PausedAt = &at
		return true, nil
	})
	if err != nil || !t.Applied {
		return t, err
	}
	o.deps.Logger.Info("game paused", "game_id", gameID, "phase", t.Game.Phase)
	o.notify.publish(ctx, gameID, domain.EventGamePause, domain.GamePause{PausedAt: *t.Game.PausedAt})
	return t, nil
}

// Resume restarts the phase clock; the paused span is excluded from the phase's elapsed time.
func (o *Orchestrator) Resume(ctx context.Context, gameID string) (Transition, error) {
	var (
		resumedAt time.Time
		paused    time.Duration
	)
	t, err := o.transition(ctx, gameID, func(g *domain.Game) (bool, error) {
		if g.Status != domain.StatusActive {
			return false, domain.ErrInvalidTransition
		}
		if !g.Paused() {
			return false, nil
		}
		resumedAt = o.deps.Now()
		paused = resumedAt.Sub(*g.PausedAt)
		if paused < 0 {
			paused = 0
		}
		g.PausedFor += paused
		g.PausedAt = nil
		return true, nil
	})
	if err != nil || !t.Applied {
		return t, err
	}
	o.deps.Logger.Info("game resumed", "game_id", gameID, "paused_for", paused)
	o.notify.publish(ctx, gameID, domain.EventGameResume, domain.GameResume{
		ResumedAt:     resumedAt,
		PauseDuration: paused.Milliseconds(),
	})
	return t, nil
}

// SubmitAnswer records an answer and reveals the question once every active player answered.
func (o *Orchestrator) SubmitAnswer(ctx context.Context, sub domain.Submission) (domain.Answer, error) {
	answer, err := o.ledger.Submit(ctx, sub)
	if err != nil {
		return domain.Answer{}, err
	}
	o.revealIfAllAnswered(ctx, sub.GameID)
	return answer, nil
}

// revealIfAllAnswered is best effort; the host timer still closes the question otherwise.
func (o *Orchestrator) revealIfAllAnswered(ctx context.Context, gameID string) {
	game, err := o.deps.Store.GetGame(ctx, gameID)
	if err != nil || game.Status != domain.StatusActive || game.Phase != domain.PhaseQuestion {
		return
	}
	question, err := o.question(ctx, game, game.CurrentQuestionIndex)
	if err != nil {
		return
	}
	all, err := o.ledger.AllAnswered(ctx, gameID, question.ID)
	if err != nil {
		o.deps.Logger.Warn("all-answered check failed", "game_id", gameID, "error", err)
		return
	}
	if !all {
		return
	}
	if _, err := o.Reveal(ctx, gameID, game.CurrentQuestionIndex); err != nil {
		o.deps.Logger.Warn("auto reveal failed", "game_id", gameID, "error", err)
	}
}

// Leaderboard ranks the active players of a game.
func (o *Orchestrator) Leaderboard(ctx context.Context, gameID string) ([]ranking.Standing, error) {
	players, err := o.deps.Store.ListPlayers(ctx, gameID)
	if err != nil {
		return nil, err
	}
	totals, err := o.deps.Store.ResponseTimeTotals(ctx, gameID)
	if err != nil {
		return nil, err
	}
	entries := make([]ranking.Entry, 0, len(players))
	for _, p := range players {
		if !p.Active() {
			continue
		}
		entries = append(entries, ranking.Entry{
			PlayerID:                 p.ID,
			Name:                     p.Name,
			TotalScore:               p.TotalScore,
			CumulativeResponseTimeMs: totals[p.ID],
		})
	}
	return ranking.Rank(entries), nil
}

// State is the authoritative snapshot devices fall back to.
func (o *Orchestrator) State(ctx context.Context, gameID string) (domain.GameState, error) {
	game, err := o.deps.Store.GetGame(ctx, gameID)
	if err != nil {
		return domain.GameState{}, err
	}
	now := o.deps.Now()
	state := domain.GameState{Game: game, ServerTime: now}

	if game.Status == domain.StatusActive {
		question, err := o.question(ctx, game, game.CurrentQuestionIndex)
		if err != nil {
			return domain.GameState{}, err
		}
		content := question.Content(game.CurrentQuestionIndex + 1)
		state.Question = &content
		if game.Phase != domain.PhaseQuestion {
			reveal := question.Reveal()
			state.Reveal = &reveal
		}
		state.RemainingMs = game.Remaining(now, o.deps.Durations.For(game.Phase)).Milliseconds()
	}

	standings, err := o.Leaderboard(ctx, gameID)
	if err != nil {
		return domain.GameState{}, err
	}
	state.Standings = standings
	return state, nil
}

// current reports whether g sits in phase at questionIndex. Timer driven calls also
// require the clock to be running.
func (o *Orchestrator) current(g *domain.Game, phase domain.Phase, questionIndex int, timed bool) bool {
	if g.Status != domain.StatusActive || g.Phase != phase || g.CurrentQuestionIndex != questionIndex {
		return false
	}
	return !timed || !g.Paused()
}

func (o *Orchestrator) question(ctx context.Context, game domain.Game, index int) (domain.Question, error) {
	set, err := o.deps.Questions.GetQuestionSet(ctx, game.QuestionSetID)
	if err != nil {
		return domain.Question{}, err
	}
	q, ok := set.At(index)
	if !ok {
		return domain.Question{}, fmt.Errorf("index %d of set %s: %w", index, game.QuestionSetID, domain.ErrQuestionNotFound)
	}
	return q, nil
}

func (o *Orchestrator) announceQuestion(ctx context.Context, game domain.Game) {
	question, err := o.question(ctx, game, game.CurrentQuestionIndex)
	if err != nil {
		o.deps.Logger.Error("announce lost question content", "game_id", game.ID, "error", err)
		return
	}
	o.notify.publish(ctx, game.ID, domain.EventQuestionAdvance, domain.QuestionAdvance{
		QuestionNumber: game.CurrentQuestionIndex + 1,
		QuestionID:     question.ID,
		Content:        question.Content(game.CurrentQuestionIndex + 1),
		TimerDuration:  o.deps.Durations.Question.Milliseconds(),
		StartedAt:      game.PhaseStartedAt,
		ServerTime:     o.deps.Now(),
	})
}

func (o *Orchestrator) finish(ctx context.Context, game domain.Game) {
	o.deps.Logger.Info("game completed", "game_id", game.ID)
	o.notify.publish(ctx, game.ID, domain.EventGameEnd, domain.GameEnd{CompletedAt: *game.CompletedAt})
}
