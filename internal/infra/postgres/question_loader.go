package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"trivia-sync-service/internal/domain"
)

// QuestionLoader reads question sets straight from Postgres. It backs the question cache
// when the service runs against Postgres and skips the ORM on the hot read path.
type QuestionLoader struct {
	pool *pgxpool.Pool
}

func NewQuestionLoader(pool *pgxpool.Pool) *QuestionLoader {
	return &QuestionLoader{pool: pool}
}

// Connect opens a pool and checks it answers.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.Connect(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

const questionsQuery = `
SELECT id, order_index, prompt, option_a, option_b, option_c, option_d,
       correct_answer, COALESCE(verse_reference, ''), COALESCE(verse_text, '')
FROM questions
WHERE question_set_id = $1
ORDER BY order_index`

func (l *QuestionLoader) LoadQuestionSet(ctx context.Context, setID string) (domain.QuestionSet, error) {
	set := domain.QuestionSet{ID: setID}
	err := l.pool.QueryRow(ctx, `SELECT title FROM question_sets WHERE id=$1`, setID).Scan(&set.Title)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.QuestionSet{}, domain.ErrQuestionSetNotFound
	}
	if err != nil {
		return domain.QuestionSet{}, fmt.Errorf("load question set: %w: %w", domain.ErrTransientPersistence, err)
	}

	rows, err := l.pool.Query(ctx, questionsQuery, setID)
	if err != nil {
		return domain.QuestionSet{}, fmt.Errorf("load questions: %w: %w", domain.ErrTransientPersistence, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			q          domain.Question
			a, b, c, d string
			correct    string
		)
		if err := rows.Scan(&q.ID, &q.OrderIndex, &q.Prompt, &a, &b, &c, &d,
			&correct, &q.Verse.Reference, &q.Verse.Text); err != nil {
			return domain.QuestionSet{}, fmt.Errorf("scan question: %w", err)
		}
		q.QuestionSetID = setID
		q.CorrectAnswer = domain.Option(correct)
		q.Options = map[domain.Option]string{
			domain.OptionA: a, domain.OptionB: b, domain.OptionC: c, domain.OptionD: d,
		}
		set.Questions = append(set.Questions, q)
	}
	if err := rows.Err(); err != nil {
		return domain.QuestionSet{}, fmt.Errorf("load questions: %w: %w", domain.ErrTransientPersistence, err)
	}
	return set, nil
}
