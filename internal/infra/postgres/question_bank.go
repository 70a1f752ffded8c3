package postgres

import (
	"context"
	"errors"
	"fmt"

	"challenge-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// QuestionBank reads active questions and answer keys from Postgres.
type QuestionBank struct {
	pool *pgxpool.Pool
}

func NewQuestionBank(pool *pgxpool.Pool) *QuestionBank {
	return &QuestionBank{pool: pool}
}

func (b *QuestionBank) SelectActive(ctx context.Context, filter domain.QuestionFilter, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	// Empty filters match everything.
	rows, err := b.pool.Query(ctx, `
SELECT id FROM questions
WHERE active
  AND (cardinality($1::text[]) = 0 OR topic = ANY($1))
  AND (cardinality($2::text[]) = 0 OR section = ANY($2))
ORDER BY random()
LIMIT $3`, nonNil(filter.Topics), nonNil(filter.Sections), limit)
	if err != nil {
		return nil, fmt.Errorf("select questions: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0, limit)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (b *QuestionBank) CorrectChoice(ctx context.Context, questionID string) (string, error) {
	var choice string
	err := b.pool.QueryRow(ctx, `SELECT correct_choice FROM questions WHERE id=$1`, questionID).Scan(&choice)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", domain.ErrQuestionNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load answer key: %w", err)
	}
	return choice, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
