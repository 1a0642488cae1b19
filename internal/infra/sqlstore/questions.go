package sqlstore

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"trivia-sync-service/internal/domain"
)

// QuestionStore loads and seeds question sets.
type QuestionStore struct {
	db *bun.DB
}

func NewQuestionStore(db *bun.DB) *QuestionStore {
	return &QuestionStore{db: db}
}

// LoadQuestionSet returns a set with its questions in order.
func (s *QuestionStore) LoadQuestionSet(ctx context.Context, setID string) (domain.QuestionSet, error) {
	var set questionSetRow
	if err := s.db.NewSelect().Model(&set).Where("id = ?", setID).Scan(ctx); err != nil {
		return domain.QuestionSet{}, notFound(err, domain.ErrQuestionSetNotFound, "select question set")
	}

	var rows []questionRow
	err := s.db.NewSelect().Model(&rows).
		Where("question_set_id = ?", setID).
		Order("order_index ASC").
		Scan(ctx)
	if err != nil {
		return domain.QuestionSet{}, transient("select questions", err)
	}
	out := domain.QuestionSet{ID: set.ID, Title: set.Title, Questions: make([]domain.Question, 0, len(rows))}
	for _, r := range rows {
		out.Questions = append(out.Questions, r.toDomain())
	}
	return out, nil
}

// SaveQuestionSet replaces a set and all its questions.
func (s *QuestionStore) SaveQuestionSet(ctx context.Context, set domain.QuestionSet) error {
	if err := validateSet(set); err != nil {
		return err
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := questionSetRow{ID: set.ID, Title: set.Title}
		_, err := tx.NewInsert().Model(&row).
			On("CONFLICT (id) DO UPDATE").
			Set("title = EXCLUDED.title").
			Exec(ctx)
		if err != nil {
			return transient("upsert question set", err)
		}
		if _, err := tx.NewDelete().Model((*questionRow)(nil)).Where("question_set_id = ?", set.ID).Exec(ctx); err != nil {
			return transient("clear questions", err)
		}
		rows := make([]questionRow, 0, len(set.Questions))
		for i, q := range set.Questions {
			rows = append(rows, toQuestionRow(set.ID, i, q))
		}
		if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
			return transient("insert questions", err)
		}
		return nil
	})
}

func validateSet(set domain.QuestionSet) error {
	if set.ID == "" {
		return domain.Invalid("id", "required")
	}
	if len(set.Questions) == 0 {
		return domain.Invalid("questions", "a set needs at least one question")
	}
	seen := make(map[string]bool, len(set.Questions))
	for i, q := range set.Questions {
		field := fmt.Sprintf("questions[%d]", i)
		switch {
		case q.ID == "":
			return domain.Invalid(field+".id", "required")
		case seen[q.ID]:
			return domain.Invalid(field+".id", "duplicate id "+q.ID)
		case q.Prompt == "":
			return domain.Invalid(field+".prompt", "required")
		}
		seen[q.ID] = true
		if _, err := domain.ParseOption(string(q.CorrectAnswer)); err != nil {
			return domain.Invalid(field+".correct", "must be one of A, B, C, D")
		}
		for _, o := range domain.Options {
			if q.Options[o] == "" {
				return domain.Invalid(field+".options", "option "+string(o)+" is missing")
			}
		}
	}
	return nil
}
