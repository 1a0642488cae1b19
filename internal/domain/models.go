package domain

import (
	"strings"
	"time"
)

// GameStatus is the one-directional lifecycle of a game.
type GameStatus string

const (
	StatusWaiting   GameStatus = "waiting"
	StatusActive    GameStatus = "active"
	StatusCompleted GameStatus = "completed"
)

// Phase is the round state shown on every device.
type Phase string

const (
	PhaseNone        Phase = ""
	PhaseQuestion    Phase = "question"
	PhaseReveal      Phase = "reveal"
	PhaseLeaderboard Phase = "leaderboard"
	PhaseResults     Phase = "results"
)

// Option identifies one of the four answer choices.
type Option string

const (
	OptionA Option = "A"
	OptionB Option = "B"
	OptionC Option = "C"
	OptionD Option = "D"
)

// Options lists the valid choices in display order.
var Options = []Option{OptionA, OptionB, OptionC, OptionD}

// ParseOption normalizes a user supplied choice.
func ParseOption(raw string) (Option, error) {
	opt := Option(strings.ToUpper(strings.TrimSpace(raw)))
	for _, o := range Options {
		if o == opt {
			return o, nil
		}
	}
	return "", Invalid("selectedAnswer", "must be one of A, B, C, D")
}

// MaxResponseTime is the answer window ceiling; submissions beyond it are rejected.
const MaxResponseTime = 15 * time.Second

// Game is one trivia session.
type Game struct {
	ID                   string        `json:"id"`
	RoomCode             string        `json:"roomCode"`
	QuestionSetID        string        `json:"questionSetId"`
	QuestionCount        int           `json:"questionCount"`
	CurrentQuestionIndex int           `json:"currentQuestionIndex"`
	Status               GameStatus    `json:"status"`
	Phase                Phase         `json:"phase"`
	PhaseStartedAt       time.Time     `json:"phaseStartedAt"`
	PausedAt             *time.Time    `json:"pausedAt,omitempty"`
	PausedFor            time.Duration `json:"pausedFor"`
	Version              int64         `json:"version"`
	StartedAt            *time.Time    `json:"startedAt,omitempty"`
	CompletedAt          *time.Time    `json:"completedAt,omitempty"`
	CreatedAt            time.Time     `json:"createdAt"`
}

// Paused reports whether the current phase clock is frozen.
func (g Game) Paused() bool {
	return g.PausedAt != nil
}

// IsLastQuestion reports whether the current question is the final one of the set.
func (g Game) IsLastQuestion() bool {
	return g.CurrentQuestionIndex >= g.QuestionCount-1
}

// Closed reports whether the answer window of the question at index has ended.
func (g Game) Closed(index int) bool {
	switch {
	case g.Status == StatusWaiting:
		return false
	case g.Status == StatusCompleted, index < g.CurrentQuestionIndex:
		return true
	case index == g.CurrentQuestionIndex:
		return g.Phase != PhaseQuestion && g.Phase != PhaseNone
	}
	return false
}

// Elapsed is the running time of the current phase, excluding pauses.
func (g Game) Elapsed(now time.Time) time.Duration {
	if g.PhaseStartedAt.IsZero() {
		return 0
	}
	end := now
	if g.PausedAt != nil {
		end = *g.PausedAt
	}
	elapsed := end.Sub(g.PhaseStartedAt) - g.PausedFor
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// Remaining is how much of a phase of length d is left at now.
func (g Game) Remaining(now time.Time, d time.Duration) time.Duration {
	left := d - g.Elapsed(now)
	if left < 0 {
		return 0
	}
	return left
}

// Player is a participant in one game.
type Player struct {
	ID         string     `json:"id"`
	GameID     string     `json:"gameId"`
	Name       string     `json:"name"`
	TotalScore int        `json:"totalScore"`
	JoinedAt   time.Time  `json:"joinedAt"`
	RemovedAt  *time.Time `json:"removedAt,omitempty"`
}

// Active reports whether the player still takes part in the game.
func (p Player) Active() bool {
	return p.RemovedAt == nil
}

// Verse is optional scripture/source metadata attached to a question.
type Verse struct {
	Reference string `json:"reference,omitempty" yaml:"reference"`
	Text      string `json:"text,omitempty" yaml:"text"`
}

// Question is static content; immutable during a game.
type Question struct {
	ID            string            `json:"id" yaml:"id"`
	QuestionSetID string            `json:"questionSetId" yaml:"-"`
	OrderIndex    int               `json:"orderIndex" yaml:"order"`
	Prompt        string            `json:"prompt" yaml:"prompt"`
	Options       map[Option]string `json:"options" yaml:"options"`
	CorrectAnswer Option            `json:"correctAnswer" yaml:"correct"`
	Verse         Verse             `json:"verse" yaml:"verse"`
}

// Content strips the correct answer so the question can go to players.
func (q Question) Content(number int) QuestionContent {
	return QuestionContent{
		QuestionID: q.ID,
		Number:     number,
		Prompt:     q.Prompt,
		Options:    q.Options,
	}
}

// Reveal is the content shown once the answer window closes.
func (q Question) Reveal() RevealContent {
	return RevealContent{
		CorrectAnswer: q.CorrectAnswer,
		CorrectText:   q.Options[q.CorrectAnswer],
		Verse:         q.Verse,
	}
}

// QuestionSet is an ordered collection of questions.
type QuestionSet struct {
	ID        string     `json:"id" yaml:"id"`
	Title     string     `json:"title" yaml:"title"`
	Questions []Question `json:"questions" yaml:"questions"`
}

// At returns the question at a 0-based position.
func (s QuestionSet) At(index int) (Question, bool) {
	if index < 0 || index >= len(s.Questions) {
		return Question{}, false
	}
	return s.Questions[index], true
}

// Find returns a question and its position by id.
func (s QuestionSet) Find(questionID string) (Question, int, bool) {
	for i, q := range s.Questions {
		if q.ID == questionID {
			return q, i, true
		}
	}
	return Question{}, -1, false
}

// QuestionContent is what devices render during the question phase.
type QuestionContent struct {
	QuestionID string            `json:"questionId"`
	Number     int               `json:"questionNumber"`
	Prompt     string            `json:"prompt"`
	Options    map[Option]string `json:"options"`
}

// RevealContent is what devices render during the reveal phase.
type RevealContent struct {
	CorrectAnswer Option `json:"correctAnswer"`
	CorrectText   string `json:"correctText"`
	Verse         Verse  `json:"verse"`
}

// Answer is one player's submission for one question.
// IsCorrect and PointsEarned are either both nil (unscored) or both set.
type Answer struct {
	ID             string    `json:"id"`
	GameID         string    `json:"gameId"`
	PlayerID       string    `json:"playerId"`
	QuestionID     string    `json:"questionId"`
	SelectedAnswer *Option   `json:"selectedAnswer"`
	ResponseTimeMs int       `json:"responseTimeMs"`
	IsCorrect      *bool     `json:"isCorrect"`
	PointsEarned   *int      `json:"pointsEarned"`
	AnsweredAt     time.Time `json:"answeredAt"`
}

// Scored reports whether the scoring pass already processed this answer.
func (a Answer) Scored() bool {
	return a.PointsEarned != nil
}

// Submission is an answer as sent by a player device.
type Submission struct {
	GameID         string  `json:"gameId"`
	PlayerID       string  `json:"playerId"`
	QuestionID     string  `json:"questionId"`
	Selected       *Option `json:"selectedAnswer"`
	ResponseTimeMs int     `json:"responseTimeMs"`
}

// RoundDurations holds the length of each timed phase.
type RoundDurations struct {
	Question    time.Duration
	Reveal      time.Duration
	Leaderboard time.Duration
}

// DefaultRoundDurations are 15s to answer, 5s reveal, 10s leaderboard.
func DefaultRoundDurations() RoundDurations {
	return RoundDurations{
		Question:    MaxResponseTime,
		Reveal:      5 * time.Second,
		Leaderboard: 10 * time.Second,
	}
}

// For returns the duration of a phase; results has none.
func (d RoundDurations) For(phase Phase) time.Duration {
	switch phase {
	case PhaseQuestion:
		return d.Question
	case PhaseReveal:
		return d.Reveal
	case PhaseLeaderboard:
		return d.Leaderboard
	default:
		return 0
	}
}
