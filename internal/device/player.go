package device

import (
	"context"
	"errors"
	"time"

	"trivia-sync-service/internal/domain"
	"trivia-sync-service/internal/relay"
)

var (
	// ErrNoOpenQuestion is returned when answering outside the question phase.
	ErrNoOpenQuestion = errors.New("no open question")
	// ErrAlreadyAnswered is returned for a second answer to the same question.
	ErrAlreadyAnswered = errors.New("question already answered")
)

// Submitter sends answers to the ledger.
type Submitter interface {
	SubmitAnswer(ctx context.Context, sub domain.Submission) (domain.Answer, error)
}

// Player is an answering device.
type Player struct {
	*Session
	playerID string
	submit   Submitter
	answered map[string]bool
}

func NewPlayer(cfg Config, playerID string, sub relay.Subscriber, fetch Fetcher, submit Submitter) *Player {
	return &Player{
		Session:  NewSession(cfg, sub, fetch),
		playerID: playerID,
		submit:   submit,
		answered: make(map[string]bool),
	}
}

// Answer submits option for the current question. Response time is read from the
// device's countdown, so time spent paused does not count.
func (p *Player) Answer(ctx context.Context, option domain.Option) (domain.Answer, error) {
	var (
		sub    domain.Submission
		reject error
	)
	err := p.call(func(context.Context) {
		qid := p.view.QuestionID()
		if p.view.Phase() != domain.PhaseQuestion || qid == "" {
			reject = ErrNoOpenQuestion
			return
		}
		if p.answered[qid] {
			reject = ErrAlreadyAnswered
			return
		}
		p.answered[qid] = true
		sub = domain.Submission{
			GameID:         p.cfg.GameID,
			PlayerID:       p.playerID,
			QuestionID:     qid,
			Selected:       &option,
			ResponseTimeMs: p.responseTime(),
		}
	})
	if err != nil {
		return domain.Answer{}, err
	}
	if reject != nil {
		return domain.Answer{}, reject
	}

	answer, err := p.submit.SubmitAnswer(ctx, sub)
	if err != nil && !errors.Is(err, domain.ErrDuplicateSubmission) {
		// let the player try again
		_ = p.call(func(context.Context) { delete(p.answered, sub.QuestionID) })
	}
	return answer, err
}

// Answered reports whether this device already answered a question.
func (p *Player) Answered(questionID string) bool {
	var ok bool
	_ = p.call(func(context.Context) { ok = p.answered[questionID] })
	return ok
}

func (p *Player) responseTime() int {
	window := p.cfg.Durations.Question
	if window > domain.MaxResponseTime {
		window = domain.MaxResponseTime
	}
	used := window
	if p.countdown != nil {
		used = window - p.countdown.Remaining()
	}
	if used < 0 {
		used = 0
	}
	if used > window {
		used = window
	}
	return int(used / time.Millisecond)
}
