package sqlstore

import (
	"time"

	"github.com/uptrace/bun"

	"trivia-sync-service/internal/domain"
)

type gameRow struct {
	bun.BaseModel `bun:"table:games,alias:g"`

	ID                   string     `bun:"id,pk"`
	RoomCode             string     `bun:"room_code,notnull,unique"`
	QuestionSetID        string     `bun:"question_set_id,notnull"`
	QuestionCount        int        `bun:"question_count,notnull"`
	CurrentQuestionIndex int        `bun:"current_question_index,notnull"`
	Status               string     `bun:"status,notnull"`
	Phase                string     `bun:"phase,notnull"`
	PhaseStartedAt       time.Time  `bun:"phase_started_at,nullzero"`
	PausedAt             *time.Time `bun:"paused_at"`
	PausedMs             int64      `bun:"paused_ms,notnull"`
	Version              int64      `bun:"version,notnull"`
	StartedAt            *time.Time `bun:"started_at"`
	CompletedAt          *time.Time `bun:"completed_at"`
	CreatedAt            time.Time  `bun:"created_at,notnull"`
}

func toGameRow(g domain.Game) gameRow {
	return gameRow{
		ID:                   g.ID,
		RoomCode:             g.RoomCode,
		QuestionSetID:        g.QuestionSetID,
		QuestionCount:        g.QuestionCount,
		CurrentQuestionIndex: g.CurrentQuestionIndex,
		Status:               string(g.Status),
		Phase:                string(g.Phase),
		PhaseStartedAt:       g.PhaseStartedAt,
		PausedAt:             g.PausedAt,
		PausedMs:             g.PausedFor.Milliseconds(),
		Version:              g.Version,
		StartedAt:            g.StartedAt,
		CompletedAt:          g.CompletedAt,
		CreatedAt:            g.CreatedAt,
	}
}

func (r gameRow) toDomain() domain.Game {
	return domain.Game{
		ID:                   r.ID,
		RoomCode:             r.RoomCode,
		QuestionSetID:        r.QuestionSetID,
		QuestionCount:        r.QuestionCount,
		CurrentQuestionIndex: r.CurrentQuestionIndex,
		Status:               domain.GameStatus(r.Status),
		Phase:                domain.Phase(r.Phase),
		PhaseStartedAt:       utc(r.PhaseStartedAt),
		PausedAt:             utcPtr(r.PausedAt),
		PausedFor:            time.Duration(r.PausedMs) * time.Millisecond,
		Version:              r.Version,
		StartedAt:            utcPtr(r.StartedAt),
		CompletedAt:          utcPtr(r.CompletedAt),
		CreatedAt:            utc(r.CreatedAt),
	}
}

type playerRow struct {
	bun.BaseModel `bun:"table:game_players,alias:gp"`

	ID         string     `bun:"id,pk"`
	GameID     string     `bun:"game_id,notnull"`
	Name       string     `bun:"player_name,notnull"`
	TotalScore int        `bun:"total_score,notnull"`
	JoinedAt   time.Time  `bun:"joined_at,notnull"`
	RemovedAt  *time.Time `bun:"removed_at"`
}

func (r playerRow) toDomain() domain.Player {
	return domain.Player{
		ID:         r.ID,
		GameID:     r.GameID,
		Name:       r.Name,
		TotalScore: r.TotalScore,
		JoinedAt:   utc(r.JoinedAt),
		RemovedAt:  utcPtr(r.RemovedAt),
	}
}

type questionSetRow struct {
	bun.BaseModel `bun:"table:question_sets,alias:qs"`

	ID    string `bun:"id,pk"`
	Title string `bun:"title,notnull"`
}

type questionRow struct {
	bun.BaseModel `bun:"table:questions,alias:q"`

	ID             string `bun:"id,pk"`
	QuestionSetID  string `bun:"question_set_id,notnull"`
	OrderIndex     int    `bun:"order_index,notnull"`
	Prompt         string `bun:"prompt,notnull"`
	OptionA        string `bun:"option_a,notnull"`
	OptionB        string `bun:"option_b,notnull"`
	OptionC        string `bun:"option_c,notnull"`
	OptionD        string `bun:"option_d,notnull"`
	CorrectAnswer  string `bun:"correct_answer,notnull"`
	VerseReference string `bun:"verse_reference"`
	VerseText      string `bun:"verse_text"`
}

func toQuestionRow(setID string, index int, q domain.Question) questionRow {
	return questionRow{
		ID:             q.ID,
		QuestionSetID:  setID,
		OrderIndex:     index,
		Prompt:         q.Prompt,
		OptionA:        q.Options[domain.OptionA],
		OptionB:        q.Options[domain.OptionB],
		OptionC:        q.Options[domain.OptionC],
		OptionD:        q.Options[domain.OptionD],
		CorrectAnswer:  string(q.CorrectAnswer),
		VerseReference: q.Verse.Reference,
		VerseText:      q.Verse.Text,
	}
}

func (r questionRow) toDomain() domain.Question {
	return domain.Question{
		ID:            r.ID,
		QuestionSetID: r.QuestionSetID,
		OrderIndex:    r.OrderIndex,
		Prompt:        r.Prompt,
		Options: map[domain.Option]string{
			domain.OptionA: r.OptionA,
			domain.OptionB: r.OptionB,
			domain.OptionC: r.OptionC,
			domain.OptionD: r.OptionD,
		},
		CorrectAnswer: domain.Option(r.CorrectAnswer),
		Verse:         domain.Verse{Reference: r.VerseReference, Text: r.VerseText},
	}
}

type answerRow struct {
	bun.BaseModel `bun:"table:player_answers,alias:pa"`

	ID             string    `bun:"id,pk"`
	GameID         string    `bun:"game_id,notnull"`
	PlayerID       string    `bun:"player_id,notnull,unique:player_question"`
	QuestionID     string    `bun:"question_id,notnull,unique:player_question"`
	SelectedAnswer *string   `bun:"selected_answer"`
	ResponseTimeMs int       `bun:"response_time_ms,notnull"`
	IsCorrect      *bool     `bun:"is_correct"`
	PointsEarned   *int      `bun:"points_earned"`
	AnsweredAt     time.Time `bun:"answered_at,notnull"`
}

func toAnswerRow(a domain.Answer) answerRow {
	row := answerRow{
		ID:             a.ID,
		GameID:         a.GameID,
		PlayerID:       a.PlayerID,
		QuestionID:     a.QuestionID,
		ResponseTimeMs: a.ResponseTimeMs,
		IsCorrect:      a.IsCorrect,
		PointsEarned:   a.PointsEarned,
		AnsweredAt:     a.AnsweredAt,
	}
	if a.SelectedAnswer != nil {
		s := string(*a.SelectedAnswer)
		row.SelectedAnswer = &s
	}
	return row
}

func (r answerRow) toDomain() domain.Answer {
	a := domain.Answer{
		ID:             r.ID,
		GameID:         r.GameID,
		PlayerID:       r.PlayerID,
		QuestionID:     r.QuestionID,
		ResponseTimeMs: r.ResponseTimeMs,
		IsCorrect:      r.IsCorrect,
		PointsEarned:   r.PointsEarned,
		AnsweredAt:     utc(r.AnsweredAt),
	}
	if r.SelectedAnswer != nil {
		o := domain.Option(*r.SelectedAnswer)
		a.SelectedAnswer = &o
	}
	return a
}

func utc(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
