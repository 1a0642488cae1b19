package app

import (
	"context"
	"time"

	"trivia-sync-service/internal/domain"
)

// GameRepository persists games. Every write is a compare-and-swap on Game.Version.
type GameRepository interface {
	CreateGame(ctx context.Context, game domain.Game) error
	GetGame(ctx context.Context, gameID string) (domain.Game, error)
	GetGameByRoomCode(ctx context.Context, roomCode string) (domain.Game, error)
	// UpdateGame stores game only if the stored version still equals game.Version.
	// It returns the stored game with its bumped version and false when another writer won.
	UpdateGame(ctx context.Context, game domain.Game) (domain.Game, bool, error)
}

// PlayerRepository persists the roster. Removal is a soft delete.
type PlayerRepository interface {
	AddPlayer(ctx context.Context, player domain.Player) error
	GetPlayer(ctx context.Context, gameID, playerID string) (domain.Player, error)
	// ListPlayers returns every player of the game, removed ones included, in join order.
	ListPlayers(ctx context.Context, gameID string) ([]domain.Player, error)
	RenamePlayer(ctx context.Context, gameID, playerID, name string) (domain.Player, error)
	RemovePlayer(ctx context.Context, gameID, playerID string, at time.Time) (domain.Player, error)
}

// AnswerRepository is the ledger table.
type AnswerRepository interface {
	// InsertAnswer must enforce uniqueness of (player, question) atomically and return
	// domain.ErrDuplicateSubmission when the row already exists.
	InsertAnswer(ctx context.Context, answer domain.Answer) error
	HasAnswer(ctx context.Context, playerID, questionID string) (bool, error)
	ListAnswers(ctx context.Context, gameID, questionID string) ([]domain.Answer, error)
	// ApplyScore sets correctness and points on an unscored answer and credits the
	// player's total in one atomic step. It returns false if the answer was already scored.
	ApplyScore(ctx context.Context, answer domain.Answer, correct bool, points int) (bool, error)
	// ResponseTimeTotals sums response_time_ms per player for a game.
	ResponseTimeTotals(ctx context.Context, gameID string) (map[string]int64, error)
}

// Store groups the repositories backed by one database.
type Store interface {
	GameRepository
	PlayerRepository
	AnswerRepository
}

// QuestionRepository loads question sets (from cache/backing store).
type QuestionRepository interface {
	GetQuestionSet(ctx context.Context, setID string) (domain.QuestionSet, error)
}
