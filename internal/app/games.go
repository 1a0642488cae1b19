package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"unicode/utf8"

	"trivia-sync-service/internal/domain"
)

const (
	// roomCodeAlphabet leaves out characters that are easy to misread (0/O, 1/I/L).
	roomCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
	roomCodeLength   = 6
	roomCodeAttempts = 8
	maxNameLength    = 30
)

// GameService manages the game lobby and roster.
type GameService struct {
	deps   Deps
	rounds *Orchestrator
	notify notifier
}

func NewGameService(deps Deps, rounds *Orchestrator) *GameService {
	deps = deps.withDefaults()
	return &GameService{deps: deps, rounds: rounds, notify: deps.notifier()}
}

// CreateGame opens a waiting game over a question set with a fresh room code.
func (s *GameService) CreateGame(ctx context.Context, questionSetID string) (domain.Game, error) {
	if strings.TrimSpace(questionSetID) == "" {
		return domain.Game{}, domain.Invalid("questionSetId", "required")
	}
	set, err := s.deps.Questions.GetQuestionSet(ctx, questionSetID)
	if err != nil {
		return domain.Game{}, err
	}
	if len(set.Questions) == 0 {
		return domain.Game{}, domain.Invalid("questionSetId", "question set is empty")
	}

	code, err := s.freeRoomCode(ctx)
	if err != nil {
		return domain.Game{}, err
	}
	game := domain.Game{
		ID:            s.deps.NewID(),
		RoomCode:      code,
		QuestionSetID: set.ID,
		QuestionCount: len(set.Questions),
		Status:        domain.StatusWaiting,
		CreatedAt:     s.deps.Now(),
		Version:       1,
	}
	if err := s.deps.Store.CreateGame(ctx, game); err != nil {
		return domain.Game{}, err
	}
	s.deps.Logger.Info("game created", "game_id", game.ID, "room_code", game.RoomCode, "questions", game.QuestionCount)
	return game, nil
}

func (s *GameService) freeRoomCode(ctx context.Context) (string, error) {
	for i := 0; i < roomCodeAttempts; i++ {
		code, err := newRoomCode()
		if err != nil {
			return "", err
		}
		_, err = s.deps.Store.GetGameByRoomCode(ctx, code)
		if errors.Is(err, domain.ErrNotFound) {
			return code, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("no free room code after %d attempts", roomCodeAttempts)
}

func newRoomCode() (string, error) {
	var b strings.Builder
	max := big.NewInt(int64(len(roomCodeAlphabet)))
	for i := 0; i < roomCodeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("room code: %w", err)
		}
		b.WriteByte(roomCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

func (s *GameService) GetGame(ctx context.Context, gameID string) (domain.Game, error) {
	return s.deps.Store.GetGame(ctx, gameID)
}

// JoinGame adds a player by room code. Late joiners enter an active game with a timeout
// recorded for every question that already closed.
func (s *GameService) JoinGame(ctx context.Context, roomCode, name string) (domain.Game, domain.Player, error) {
	name, err := cleanName(name)
	if err != nil {
		return domain.Game{}, domain.Player{}, err
	}
	roomCode = strings.ToUpper(strings.TrimSpace(roomCode))
	if roomCode == "" {
		return domain.Game{}, domain.Player{}, domain.Invalid("roomCode", "required")
	}
	game, err := s.deps.Store.GetGameByRoomCode(ctx, roomCode)
	if err != nil {
		return domain.Game{}, domain.Player{}, err
	}
	if game.Status == domain.StatusCompleted {
		return domain.Game{}, domain.Player{}, domain.Invalid("roomCode", "game already finished")
	}

	player := domain.Player{
		ID:       s.deps.NewID(),
		GameID:   game.ID,
		Name:     name,
		JoinedAt: s.deps.Now(),
	}
	if err := s.deps.Store.AddPlayer(ctx, player); err != nil {
		return domain.Game{}, domain.Player{}, err
	}
	if game.Status == domain.StatusActive && s.rounds != nil {
		if err := s.rounds.ledger.recordMissed(ctx, game, player.ID); err != nil {
			s.deps.Logger.Error("record missed questions failed", "game_id", game.ID, "player_id", player.ID, "error", err)
		}
	}
	s.deps.Logger.Info("player joined", "game_id", game.ID, "player_id", player.ID)
	s.notify.publish(ctx, game.ID, domain.EventPlayerJoined, domain.PlayerChanged{PlayerID: player.ID, Name: player.Name})
	return game, player, nil
}

// ListPlayers returns the active roster in join order.
func (s *GameService) ListPlayers(ctx context.Context, gameID string) ([]domain.Player, error) {
	if _, err := s.deps.Store.GetGame(ctx, gameID); err != nil {
		return nil, err
	}
	players, err := s.deps.Store.ListPlayers(ctx, gameID)
	if err != nil {
		return nil, err
	}
	active := players[:0]
	for _, p := range players {
		if p.Active() {
			active = append(active, p)
		}
	}
	return active, nil
}

func (s *GameService) RenamePlayer(ctx context.Context, gameID, playerID, name string) (domain.Player, error) {
	name, err := cleanName(name)
	if err != nil {
		return domain.Player{}, err
	}
	player, err := s.deps.Store.RenamePlayer(ctx, gameID, playerID, name)
	if err != nil {
		return domain.Player{}, err
	}
	s.notify.publish(ctx, gameID, domain.EventPlayerUpdated, domain.PlayerChanged{PlayerID: player.ID, Name: player.Name})
	return player, nil
}

// RemovePlayer soft-deletes a player. Their answers stay in the ledger; they drop out of
// ranking and no longer hold up the current question.
func (s *GameService) RemovePlayer(ctx context.Context, gameID, playerID string) (domain.Player, error) {
	player, err := s.deps.Store.RemovePlayer(ctx, gameID, playerID, s.deps.Now())
	if err != nil {
		return domain.Player{}, err
	}
	s.deps.Logger.Info("player removed", "game_id", gameID, "player_id", playerID)
	s.notify.publish(ctx, gameID, domain.EventPlayerRemoved, domain.PlayerChanged{PlayerID: player.ID})
	if s.rounds != nil {
		s.rounds.revealIfAllAnswered(ctx, gameID)
	}
	return player, nil
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return "", domain.Invalid("name", "required")
	case utf8.RuneCountInString(name) > maxNameLength:
		return "", domain.Invalid("name", fmt.Sprintf("at most %d characters", maxNameLength))
	}
	return name, nil
}
