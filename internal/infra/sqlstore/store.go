package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"trivia-sync-service/internal/domain"
)

// Store implements app.Store on a bun database.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) CreateGame(ctx context.Context, game domain.Game) error {
	row := toGameRow(game)
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return transient("insert game", err)
	}
	return nil
}

func (s *Store) GetGame(ctx context.Context, gameID string) (domain.Game, error) {
	var row gameRow
	err := s.db.NewSelect().Model(&row).Where("id = ?", gameID).Scan(ctx)
	if err != nil {
		return domain.Game{}, notFound(err, domain.ErrGameNotFound, "select game")
	}
	return row.toDomain(), nil
}

func (s *Store) GetGameByRoomCode(ctx context.Context, roomCode string) (domain.Game, error) {
	var row gameRow
	err := s.db.NewSelect().Model(&row).Where("room_code = ?", roomCode).Scan(ctx)
	if err != nil {
		return domain.Game{}, notFound(err, domain.ErrGameNotFound, "select game by room")
	}
	return row.toDomain(), nil
}

// UpdateGame writes the whole row guarded by the version the caller read.
func (s *Store) UpdateGame(ctx context.Context, game domain.Game) (domain.Game, bool, error) {
	row := toGameRow(game)
	row.Version = game.Version + 1
	res, err := s.db.NewUpdate().
		Model(&row).
		WherePK().
		Where("version = ?", game.Version).
		Exec(ctx)
	if err != nil {
		return domain.Game{}, false, transient("update game", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return domain.Game{}, false, transient("update game", err)
	} else if n == 0 {
		current, err := s.GetGame(ctx, game.ID)
		return current, false, err
	}
	return row.toDomain(), true, nil
}

func (s *Store) AddPlayer(ctx context.Context, player domain.Player) error {
	row := playerRow{
		ID:         player.ID,
		GameID:     player.GameID,
		Name:       player.Name,
		TotalScore: player.TotalScore,
		JoinedAt:   player.JoinedAt,
	}
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return transient("insert player", err)
	}
	return nil
}

func (s *Store) GetPlayer(ctx context.Context, gameID, playerID string) (domain.Player, error) {
	var row playerRow
	err := s.db.NewSelect().Model(&row).
		Where("id = ?", playerID).
		Where("game_id = ?", gameID).
		Scan(ctx)
	if err != nil {
		return domain.Player{}, notFound(err, domain.ErrPlayerNotFound, "select player")
	}
	return row.toDomain(), nil
}

func (s *Store) ListPlayers(ctx context.Context, gameID string) ([]domain.Player, error) {
	var rows []playerRow
	err := s.db.NewSelect().Model(&rows).
		Where("game_id = ?", gameID).
		Order("joined_at ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, transient("list players", err)
	}
	players := make([]domain.Player, 0, len(rows))
	for _, r := range rows {
		players = append(players, r.toDomain())
	}
	return players, nil
}

func (s *Store) RenamePlayer(ctx context.Context, gameID, playerID, name string) (domain.Player, error) {
	res, err := s.db.NewUpdate().Model((*playerRow)(nil)).
		Set("player_name = ?", name).
		Where("id = ?", playerID).
		Where("game_id = ?", gameID).
		Exec(ctx)
	if err != nil {
		return domain.Player{}, transient("rename player", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	return s.GetPlayer(ctx, gameID, playerID)
}

// RemovePlayer stamps removed_at once; removing twice keeps the first time.
func (s *Store) RemovePlayer(ctx context.Context, gameID, playerID string, at time.Time) (domain.Player, error) {
	_, err := s.db.NewUpdate().Model((*playerRow)(nil)).
		Set("removed_at = ?", at).
		Where("id = ?", playerID).
		Where("game_id = ?", gameID).
		Where("removed_at IS NULL").
		Exec(ctx)
	if err != nil {
		return domain.Player{}, transient("remove player", err)
	}
	return s.GetPlayer(ctx, gameID, playerID)
}

// InsertAnswer relies on the (player_id, question_id) unique constraint; a conflicting
// insert affects no row and is reported as a duplicate.
func (s *Store) InsertAnswer(ctx context.Context, answer domain.Answer) error {
	row := toAnswerRow(answer)
	res, err := s.db.NewInsert().Model(&row).
		On("CONFLICT (player_id, question_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return transient("insert answer", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return transient("insert answer", err)
	}
	if n == 0 {
		return domain.ErrDuplicateSubmission
	}
	return nil
}

func (s *Store) HasAnswer(ctx context.Context, playerID, questionID string) (bool, error) {
	exists, err := s.db.NewSelect().Model((*answerRow)(nil)).
		Where("player_id = ?", playerID).
		Where("question_id = ?", questionID).
		Exists(ctx)
	if err != nil {
		return false, transient("check answer", err)
	}
	return exists, nil
}

func (s *Store) ListAnswers(ctx context.Context, gameID, questionID string) ([]domain.Answer, error) {
	var rows []answerRow
	err := s.db.NewSelect().Model(&rows).
		Where("game_id = ?", gameID).
		Where("question_id = ?", questionID).
		Order("answered_at ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, transient("list answers", err)
	}
	answers := make([]domain.Answer, 0, len(rows))
	for _, r := range rows {
		answers = append(answers, r.toDomain())
	}
	return answers, nil
}

// ApplyScore marks the answer scored and credits the player in one transaction. The
// points_earned IS NULL guard makes a repeated call a no-op.
func (s *Store) ApplyScore(ctx context.Context, answer domain.Answer, correct bool, points int) (bool, error) {
	applied := false
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().Model((*answerRow)(nil)).
			Set("is_correct = ?", correct).
			Set("points_earned = ?", points).
			Where("id = ?", answer.ID).
			Where("points_earned IS NULL").
			Exec(ctx)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil || n == 0 {
			return err
		}
		res, err = tx.NewUpdate().Model((*playerRow)(nil)).
			Set("total_score = total_score + ?", points).
			Where("id = ?", answer.PlayerID).
			Exec(ctx)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return domain.ErrPlayerNotFound
		}
		applied = true
		return nil
	})
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return false, err
	case err != nil:
		return false, transient("apply score", err)
	}
	return applied, nil
}

func (s *Store) ResponseTimeTotals(ctx context.Context, gameID string) (map[string]int64, error) {
	var rows []struct {
		PlayerID string `bun:"player_id"`
		Total    int64  `bun:"total"`
	}
	err := s.db.NewSelect().Model((*answerRow)(nil)).
		Column("player_id").
		ColumnExpr("SUM(response_time_ms) AS total").
		Where("game_id = ?", gameID).
		Group("player_id").
		Scan(ctx, &rows)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, transient("sum response times", err)
	}
	totals := make(map[string]int64, len(rows))
	for _, r := range rows {
		totals[r.PlayerID] = r.Total
	}
	return totals, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}
