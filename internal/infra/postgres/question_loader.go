package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"nurseconnect-quiz-service/internal/app"
	"nurseconnect-quiz-service/internal/domain"
)

var _ app.QuestionSource = (*QuestionLoader)(nil)

// QuestionLoader loads question JSONB from Postgres.
type QuestionLoader struct {
	pool *pgxpool.Pool
}

func NewQuestionLoader(pool *pgxpool.Pool) *QuestionLoader {
	return &QuestionLoader{pool: pool}
}

func (l *QuestionLoader) ListQuestions(ctx context.Context, course string) ([]domain.Question, error) {
	rows, err := l.pool.Query(ctx, `SELECT data FROM quiz_questions WHERE course=$1 ORDER BY id`, course)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	var out []domain.Question
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		var q domain.Question
		if err := json.Unmarshal(raw, &q); err != nil {
			return nil, fmt.Errorf("unmarshal question: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (l *QuestionLoader) LoadQuestion(ctx context.Context, id string) (domain.Question, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM quiz_questions WHERE id=$1`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	if err != nil {
		return domain.Question{}, fmt.Errorf("load question: %w", err)
	}
	var q domain.Question
	if err := json.Unmarshal(raw, &q); err != nil {
		return domain.Question{}, fmt.Errorf("unmarshal question: %w", err)
	}
	return q, nil
}

// SaveQuestions upserts questions in one transaction.
func (l *QuestionLoader) SaveQuestions(ctx context.Context, questions []domain.Question) error {
	return l.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		for _, q := range questions {
			if !q.Valid() {
				return fmt.Errorf("question %q: needs an id, two options and a valid answer index", q.ID)
			}
			data, err := json.Marshal(q)
			if err != nil {
				return err
			}
			_, err = tx.Exec(ctx, `
				INSERT INTO quiz_questions (id, course, unit, career, difficulty, data)
				VALUES ($1, $2, $3, $4, $5, $6::jsonb)
				ON CONFLICT (id) DO UPDATE SET course=EXCLUDED.course, unit=EXCLUDED.unit,
					career=EXCLUDED.career, difficulty=EXCLUDED.difficulty, data=EXCLUDED.data`,
				q.ID, q.Course, q.Unit, q.Career, q.Difficulty, string(data))
			if err != nil {
				return fmt.Errorf("save question %s: %w", q.ID, err)
			}
		}
		return nil
	})
}
