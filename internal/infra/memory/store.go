package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"trivia-sync-service/internal/domain"
)

type answerKey struct {
	playerID   string
	questionID string
}

// Store is an in-memory implementation of app.Store. A single mutex gives the same
// guarantees the SQL store gets from its unique index and transactions.
type Store struct {
	mu         sync.RWMutex
	games      map[string]domain.Game
	rooms      map[string]string
	players    map[string]domain.Player
	roster     map[string][]string
	answers    map[string]domain.Answer
	answerKeys map[answerKey]string
}

func NewStore() *Store {
	return &Store{
		games:      make(map[string]domain.Game),
		rooms:      make(map[string]string),
		players:    make(map[string]domain.Player),
		roster:     make(map[string][]string),
		answers:    make(map[string]domain.Answer),
		answerKeys: make(map[answerKey]string),
	}
}

func (s *Store) CreateGame(_ context.Context, game domain.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[game.RoomCode]; ok {
		return domain.Invalid("roomCode", "already in use")
	}
	s.games[game.ID] = game
	s.rooms[game.RoomCode] = game.ID
	return nil
}

func (s *Store) GetGame(_ context.Context, gameID string) (domain.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	game, ok := s.games[gameID]
	if !ok {
		return domain.Game{}, domain.ErrGameNotFound
	}
	return game, nil
}

func (s *Store) GetGameByRoomCode(_ context.Context, roomCode string) (domain.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.rooms[roomCode]
	if !ok {
		return domain.Game{}, domain.ErrGameNotFound
	}
	return s.games[id], nil
}

func (s *Store) UpdateGame(_ context.Context, game domain.Game) (domain.Game, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.games[game.ID]
	if !ok {
		return domain.Game{}, false, domain.ErrGameNotFound
	}
	if current.Version != game.Version {
		return current, false, nil
	}
	game.Version++
	s.games[game.ID] = game
	return game, true, nil
}

func (s *Store) AddPlayer(_ context.Context, player domain.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.games[player.GameID]; !ok {
		return domain.ErrGameNotFound
	}
	s.players[player.ID] = player
	s.roster[player.GameID] = append(s.roster[player.GameID], player.ID)
	return nil
}

func (s *Store) GetPlayer(_ context.Context, gameID, playerID string) (domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.playerLocked(gameID, playerID)
}

func (s *Store) playerLocked(gameID, playerID string) (domain.Player, error) {
	player, ok := s.players[playerID]
	if !ok || player.GameID != gameID {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	return player, nil
}

func (s *Store) ListPlayers(_ context.Context, gameID string) ([]domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.roster[gameID]
	players := make([]domain.Player, 0, len(ids))
	for _, id := range ids {
		players = append(players, s.players[id])
	}
	return players, nil
}

func (s *Store) RenamePlayer(_ context.Context, gameID, playerID, name string) (domain.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	player, err := s.playerLocked(gameID, playerID)
	if err != nil {
		return domain.Player{}, err
	}
	player.Name = name
	s.players[playerID] = player
	return player, nil
}

func (s *Store) RemovePlayer(_ context.Context, gameID, playerID string, at time.Time) (domain.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	player, err := s.playerLocked(gameID, playerID)
	if err != nil {
		return domain.Player{}, err
	}
	if player.RemovedAt == nil {
		player.RemovedAt = &at
		s.players[playerID] = player
	}
	return player, nil
}

func (s *Store) InsertAnswer(_ context.Context, answer domain.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := answerKey{playerID: answer.PlayerID, questionID: answer.QuestionID}
	if _, ok := s.answerKeys[key]; ok {
		return domain.ErrDuplicateSubmission
	}
	s.answerKeys[key] = answer.ID
	s.answers[answer.ID] = answer
	return nil
}

func (s *Store) HasAnswer(_ context.Context, playerID, questionID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.answerKeys[answerKey{playerID: playerID, questionID: questionID}]
	return ok, nil
}

// ListAnswers returns the answers to a question in submission order.
func (s *Store) ListAnswers(_ context.Context, gameID, questionID string) ([]domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Answer
	for _, a := range s.answers {
		if a.GameID == gameID && a.QuestionID == questionID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AnsweredAt.Equal(out[j].AnsweredAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].AnsweredAt.Before(out[j].AnsweredAt)
	})
	return out, nil
}

func (s *Store) ApplyScore(_ context.Context, answer domain.Answer, correct bool, points int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.answers[answer.ID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if stored.Scored() {
		return false, nil
	}
	player, ok := s.players[stored.PlayerID]
	if !ok {
		return false, domain.ErrPlayerNotFound
	}
	stored.IsCorrect = &correct
	stored.PointsEarned = &points
	s.answers[answer.ID] = stored
	player.TotalScore += points
	s.players[player.ID] = player
	return true, nil
}

func (s *Store) ResponseTimeTotals(_ context.Context, gameID string) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	totals := make(map[string]int64)
	for _, a := range s.answers {
		if a.GameID == gameID {
			totals[a.PlayerID] += int64(a.ResponseTimeMs)
		}
	}
	return totals, nil
}
