package domain

import (
	"time"

	"trivia-sync-service/internal/ranking"
)

// EventName identifies a relay notification.
type EventName string

const (
	EventQuestionAdvance  EventName = "question_advance"
	EventAnswerReveal     EventName = "answer_reveal"
	EventScoresUpdated    EventName = "scores_updated"
	EventLeaderboardReady EventName = "leaderboard_ready"
	EventGameEnd          EventName = "game_end"
	EventGamePause        EventName = "game_pause"
	EventGameResume       EventName = "game_resume"
	EventPlayerJoined     EventName = "player_joined"
	EventPlayerUpdated    EventName = "player_updated"
	EventPlayerRemoved    EventName = "player_removed"
)

// QuestionAdvance starts a new answer window.
type QuestionAdvance struct {
	QuestionNumber int             `json:"questionNumber"`
	QuestionID     string          `json:"questionId"`
	Content        QuestionContent `json:"content"`
	TimerDuration  int64           `json:"timerDuration"`
	StartedAt      time.Time       `json:"startedAt"`
	// ServerTime is the server clock when the event was sent. Devices measure the phase
	// against it, never against their own clock.
	ServerTime time.Time `json:"serverTime"`
}

// AnswerReveal closes the answer window of QuestionID.
type AnswerReveal struct {
	QuestionID    string        `json:"questionId"`
	CorrectAnswer Option        `json:"correctAnswer"`
	Content       RevealContent `json:"content"`
}

// ScoresUpdated tells devices fresh totals exist for QuestionID.
type ScoresUpdated struct {
	QuestionID string `json:"questionId"`
}

// LeaderboardReady moves devices to the standings screen after QuestionID.
type LeaderboardReady struct {
	QuestionID string `json:"questionId"`
}

// GameEnd moves devices to the final results.
type GameEnd struct {
	CompletedAt time.Time `json:"completedAt"`
}

// GamePause freezes all countdowns.
type GamePause struct {
	PausedAt time.Time `json:"pausedAt"`
}

// GameResume restarts countdowns; PauseDuration is in milliseconds.
type GameResume struct {
	ResumedAt     time.Time `json:"resumedAt"`
	PauseDuration int64     `json:"pauseDuration"`
}

// PlayerChanged is the payload of the roster events.
type PlayerChanged struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name,omitempty"`
}

// GameState is the authoritative snapshot a device falls back to when it missed events.
type GameState struct {
	Game        Game               `json:"game"`
	Question    *QuestionContent   `json:"question,omitempty"`
	Reveal      *RevealContent     `json:"reveal,omitempty"`
	RemainingMs int64              `json:"remainingMs"`
	Standings   []ranking.Standing `json:"standings,omitempty"`
	ServerTime  time.Time          `json:"serverTime"`
}
