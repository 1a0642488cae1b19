package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"trivia-sync-service/internal/domain"
	"trivia-sync-service/internal/scoring"
)

// Ledger records answers and scores them exactly once.
type Ledger struct {
	deps   Deps
	notify notifier
}

func NewLedger(deps Deps) *Ledger {
	deps = deps.withDefaults()
	return &Ledger{deps: deps, notify: deps.notifier()}
}

// ScoreFailure is one answer the scoring pass could not persist.
type ScoreFailure struct {
	PlayerID string `json:"playerId"`
	AnswerID string `json:"answerId,omitempty"`
	Err      error  `json:"-"`
	Message  string `json:"error"`
}

// ScoreReport summarizes a scoring pass. A nil error with failures is a partial success.
type ScoreReport struct {
	QuestionID string         `json:"questionId"`
	Processed  int            `json:"processedCount"`
	TimedOut   int            `json:"timedOutCount"`
	Failures   []ScoreFailure `json:"failures,omitempty"`
}

// Submit records one answer. The store's uniqueness guarantee is authoritative; the
// HasAnswer pre-check only gives duplicate submitters a fast, friendly error.
func (l *Ledger) Submit(ctx context.Context, sub domain.Submission) (domain.Answer, error) {
	if err := validateSubmission(sub); err != nil {
		return domain.Answer{}, err
	}

	game, err := l.deps.Store.GetGame(ctx, sub.GameID)
	if err != nil {
		return domain.Answer{}, err
	}
	if game.Status != domain.StatusActive {
		return domain.Answer{}, domain.Invalid("gameId", "game is not active")
	}

	set, err := l.deps.Questions.GetQuestionSet(ctx, game.QuestionSetID)
	if err != nil {
		return domain.Answer{}, err
	}
	_, index, ok := set.Find(sub.QuestionID)
	if !ok {
		return domain.Answer{}, domain.ErrQuestionNotFound
	}
	if index != game.CurrentQuestionIndex || game.Phase != domain.PhaseQuestion {
		return domain.Answer{}, domain.Invalid("questionId", "question is closed")
	}

	player, err := l.deps.Store.GetPlayer(ctx, sub.GameID, sub.PlayerID)
	if err != nil {
		return domain.Answer{}, err
	}
	if !player.Active() {
		return domain.Answer{}, domain.Invalid("playerId", "player was removed from the game")
	}

	exists, err := l.deps.Store.HasAnswer(ctx, sub.PlayerID, sub.QuestionID)
	if err != nil {
		return domain.Answer{}, err
	}
	if exists {
		return domain.Answer{}, domain.ErrDuplicateSubmission
	}

	answer := domain.Answer{
		ID:             l.deps.NewID(),
		GameID:         sub.GameID,
		PlayerID:       sub.PlayerID,
		QuestionID:     sub.QuestionID,
		SelectedAnswer: sub.Selected,
		ResponseTimeMs: sub.ResponseTimeMs,
		AnsweredAt:     l.deps.Now(),
	}
	if err := l.deps.Store.InsertAnswer(ctx, answer); err != nil {
		return domain.Answer{}, err
	}
	l.deps.Logger.Debug("answer recorded", "game_id", sub.GameID, "player_id", sub.PlayerID, "question_id", sub.QuestionID)
	return answer, nil
}

func validateSubmission(sub domain.Submission) error {
	switch {
	case strings.TrimSpace(sub.GameID) == "":
		return domain.Invalid("gameId", "required")
	case strings.TrimSpace(sub.PlayerID) == "":
		return domain.Invalid("playerId", "required")
	case strings.TrimSpace(sub.QuestionID) == "":
		return domain.Invalid("questionId", "required")
	case sub.ResponseTimeMs < 0 || sub.ResponseTimeMs > int(domain.MaxResponseTime.Milliseconds()):
		return domain.Invalid("responseTimeMs", fmt.Sprintf("must be within [0, %d]", domain.MaxResponseTime.Milliseconds()))
	}
	if sub.Selected != nil {
		if _, err := domain.ParseOption(string(*sub.Selected)); err != nil {
			return err
		}
	}
	return nil
}

// ScoreQuestion scores every unscored answer of a question whose answer window has
// closed. Safe to call repeatedly.
func (l *Ledger) ScoreQuestion(ctx context.Context, gameID, questionID string) (ScoreReport, error) {
	game, err := l.deps.Store.GetGame(ctx, gameID)
	if err != nil {
		return ScoreReport{}, err
	}
	set, err := l.deps.Questions.GetQuestionSet(ctx, game.QuestionSetID)
	if err != nil {
		return ScoreReport{}, err
	}
	question, index, ok := set.Find(questionID)
	if !ok {
		return ScoreReport{}, domain.ErrQuestionNotFound
	}
	if !game.Closed(index) {
		return ScoreReport{}, fmt.Errorf("%w: question %s is still open", domain.ErrInvalidTransition, questionID)
	}
	return l.scoreQuestion(ctx, game, question)
}

func (l *Ledger) scoreQuestion(ctx context.Context, game domain.Game, question domain.Question) (ScoreReport, error) {
	report := ScoreReport{QuestionID: question.ID}

	timedOut, failures, err := l.backfillTimeouts(ctx, game, question)
	if err != nil {
		return report, err
	}
	report.TimedOut = timedOut
	report.Failures = append(report.Failures, failures...)

	answers, err := l.deps.Store.ListAnswers(ctx, game.ID, question.ID)
	if err != nil {
		return report, err
	}
	for _, answer := range answers {
		if answer.Scored() {
			continue
		}
		correct := answer.SelectedAnswer != nil && *answer.SelectedAnswer == question.CorrectAnswer
		points := scoring.Score(correct, answer.ResponseTimeMs)

		applied, err := l.deps.Store.ApplyScore(ctx, answer, correct, points)
		if err != nil {
			l.deps.Logger.Error("score answer failed",
				"game_id", game.ID, "question_id", question.ID, "player_id", answer.PlayerID, "error", err)
			report.Failures = append(report.Failures, ScoreFailure{
				PlayerID: answer.PlayerID, AnswerID: answer.ID, Err: err, Message: err.Error(),
			})
			continue
		}
		if applied {
			report.Processed++
		}
	}

	if report.Processed > 0 {
		l.notify.publish(ctx, game.ID, domain.EventScoresUpdated, domain.ScoresUpdated{QuestionID: question.ID})
	}
	l.deps.Logger.Info("question scored",
		"game_id", game.ID, "question_id", question.ID,
		"processed", report.Processed, "timed_out", report.TimedOut, "failed", len(report.Failures))
	return report, nil
}

// backfillTimeouts records a null answer for every active player who did not answer.
func (l *Ledger) backfillTimeouts(ctx context.Context, game domain.Game, question domain.Question) (int, []ScoreFailure, error) {
	players, err := l.deps.Store.ListPlayers(ctx, game.ID)
	if err != nil {
		return 0, nil, err
	}
	answers, err := l.deps.Store.ListAnswers(ctx, game.ID, question.ID)
	if err != nil {
		return 0, nil, err
	}
	answered := make(map[string]bool, len(answers))
	for _, a := range answers {
		answered[a.PlayerID] = true
	}

	var (
		inserted int
		failures []ScoreFailure
	)
	for _, p := range players {
		if !p.Active() || answered[p.ID] {
			continue
		}
		err := l.deps.Store.InsertAnswer(ctx, domain.Answer{
			ID:             l.deps.NewID(),
			GameID:         game.ID,
			PlayerID:       p.ID,
			QuestionID:     question.ID,
			ResponseTimeMs: int(l.deps.Durations.Question.Milliseconds()),
			AnsweredAt:     l.deps.Now(),
		})
		switch {
		case err == nil:
			inserted++
		case errors.Is(err, domain.ErrDuplicateSubmission):
			// a late submission won the race; it gets scored below
		default:
			l.deps.Logger.Error("record timeout failed", "game_id", game.ID, "player_id", p.ID, "error", err)
			failures = append(failures, ScoreFailure{PlayerID: p.ID, Err: err, Message: err.Error()})
		}
	}
	return inserted, failures, nil
}

// recordMissed gives a late joiner a scored timeout for every question that closed
// before they joined, so their cumulative response time is comparable.
func (l *Ledger) recordMissed(ctx context.Context, game domain.Game, playerID string) error {
	set, err := l.deps.Questions.GetQuestionSet(ctx, game.QuestionSetID)
	if err != nil {
		return err
	}
	for i, q := range set.Questions {
		if !game.Closed(i) {
			break
		}
		answer := domain.Answer{
			ID:             l.deps.NewID(),
			GameID:         game.ID,
			PlayerID:       playerID,
			QuestionID:     q.ID,
			ResponseTimeMs: int(l.deps.Durations.Question.Milliseconds()),
			AnsweredAt:     l.deps.Now(),
		}
		err := l.deps.Store.InsertAnswer(ctx, answer)
		if errors.Is(err, domain.ErrDuplicateSubmission) {
			// a concurrent reveal already back-filled it
			continue
		}
		if err != nil {
			return err
		}
		if _, err := l.deps.Store.ApplyScore(ctx, answer, false, 0); err != nil {
			return err
		}
	}
	return nil
}

// AllAnswered reports whether every active player has an answer row for the question.
func (l *Ledger) AllAnswered(ctx context.Context, gameID, questionID string) (bool, error) {
	players, err := l.deps.Store.ListPlayers(ctx, gameID)
	if err != nil {
		return false, err
	}
	answers, err := l.deps.Store.ListAnswers(ctx, gameID, questionID)
	if err != nil {
		return false, err
	}
	answered := make(map[string]bool, len(answers))
	for _, a := range answers {
		answered[a.PlayerID] = true
	}
	active := 0
	for _, p := range players {
		if !p.Active() {
			continue
		}
		active++
		if !answered[p.ID] {
			return false, nil
		}
	}
	return active > 0, nil
}
