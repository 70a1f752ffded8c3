package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"challenge-service/internal/app"
	"challenge-service/internal/domain"
	"github.com/uptrace/bun"
)

// ChallengeStore persists challenges with bun. The finalization lock is a
// row lock on the challenge (SELECT ... FOR UPDATE) held for one transaction.
type ChallengeStore struct {
	db *bun.DB
}

func NewChallengeStore(db *bun.DB) *ChallengeStore {
	return &ChallengeStore{db: db}
}

func (s *ChallengeStore) Create(ctx context.Context, ch domain.Challenge, attempts []domain.Attempt) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(challengeFromDomain(ch)).Exec(ctx); err != nil {
			return fmt.Errorf("insert challenge: %w", err)
		}
		if len(attempts) == 0 {
			return nil
		}
		rows := make([]attemptModel, 0, len(attempts))
		for _, a := range attempts {
			rows = append(rows, attemptModel{ChallengeID: ch.ID, UserID: a.UserID})
		}
		if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
			return fmt.Errorf("insert attempts: %w", err)
		}
		return nil
	})
}

func (s *ChallengeStore) Get(ctx context.Context, challengeID string) (domain.Challenge, error) {
	return getChallenge(ctx, s.db.NewSelect(), challengeID)
}

func (s *ChallengeStore) Attempts(ctx context.Context, challengeID string) ([]domain.Attempt, error) {
	return listAttempts(ctx, s.db, challengeID)
}

func (s *ChallengeStore) ListForUser(ctx context.Context, userID string, limit int) ([]domain.Challenge, error) {
	var rows []challengeModel
	q := s.db.NewSelect().Model(&rows).
		Where("c.challenger_id = ? OR c.opponent_id = ?", userID, userID).
		Order("c.created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list challenges: %w", err)
	}
	out := make([]domain.Challenge, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

func (s *ChallengeStore) ListStale(ctx context.Context, status domain.Status, createdBefore time.Time) ([]string, error) {
	var ids []string
	err := s.db.NewSelect().Model((*challengeModel)(nil)).
		Column("id").
		Where("c.status = ?", string(status)).
		Where("c.created_at < ?", createdBefore).
		Order("c.created_at ASC").
		Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("list stale challenges: %w", err)
	}
	return ids, nil
}

func (s *ChallengeStore) SwapStatus(ctx context.Context, next domain.Challenge, from domain.Status) (bool, error) {
	res, err := s.db.NewUpdate().Model(challengeFromDomain(next)).
		WherePK().
		Where("c.status = ?", string(from)).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("swap challenge status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		if _, err := s.Get(ctx, next.ID); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (s *ChallengeStore) EnsureAttempt(ctx context.Context, challengeID, userID string) error {
	_, err := s.db.NewInsert().
		Model(&attemptModel{ChallengeID: challengeID, UserID: userID}).
		On("CONFLICT (challenge_id, user_id) DO NOTHING").
		Returning("NULL").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("ensure attempt: %w", err)
	}
	return nil
}

func (s *ChallengeStore) MarkReady(ctx context.Context, challengeID, userID string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO challenge_attempts (challenge_id, user_id, is_ready, start_time)
VALUES (?, ?, TRUE, ?)
ON CONFLICT (challenge_id, user_id) DO UPDATE
SET is_ready = TRUE, start_time = COALESCE(challenge_attempts.start_time, EXCLUDED.start_time)
WHERE NOT challenge_attempts.is_ready`, challengeID, userID, at)
	if err != nil {
		return false, fmt.Errorf("mark ready: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *ChallengeStore) RecordAnswer(ctx context.Context, answer domain.Answer) (domain.Attempt, error) {
	var attempt attemptModel
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().
			Model(&attemptModel{ChallengeID: answer.ChallengeID, UserID: answer.UserID}).
			On("CONFLICT (challenge_id, user_id) DO NOTHING").
			Returning("NULL").
			Exec(ctx); err != nil {
			return fmt.Errorf("ensure attempt: %w", err)
		}

		res, err := tx.NewInsert().Model(&answerModel{
			ChallengeID: answer.ChallengeID,
			UserID:      answer.UserID,
			QuestionID:  answer.QuestionID,
			Choice:      answer.Choice,
			Correct:     answer.Correct,
			AnsweredAt:  answer.AnsweredAt,
		}).On("CONFLICT DO NOTHING").Exec(ctx)
		if err != nil {
			return fmt.Errorf("insert answer: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return domain.ErrDuplicateAnswer
		}

		inc := 0
		if answer.Correct {
			inc = 1
		}
		_, err = tx.NewUpdate().Model(&attempt).
			Set("answered = answered + 1").
			Set("score = score + ?", inc).
			Where("a.challenge_id = ? AND a.user_id = ?", answer.ChallengeID, answer.UserID).
			Returning("*").
			Exec(ctx)
		return err
	})
	if err != nil {
		return domain.Attempt{}, err
	}
	return attempt.toDomain(), nil
}

func (s *ChallengeStore) MarkFinished(ctx context.Context, challengeID, userID string, at time.Time) (bool, error) {
	res, err := s.db.NewUpdate().Model((*attemptModel)(nil)).
		Set("end_time = ?", at).
		Where("a.challenge_id = ? AND a.user_id = ?", challengeID, userID).
		Where("a.end_time IS NULL").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("mark finished: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}
	exists, err := s.db.NewSelect().Model((*attemptModel)(nil)).
		Where("a.challenge_id = ? AND a.user_id = ?", challengeID, userID).
		Exists(ctx)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, domain.ErrNotParticipant
	}
	return false, nil
}

func (s *ChallengeStore) WithLock(ctx context.Context, challengeID string, fn func(tx app.LockedChallenge) error) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		current, err := getChallenge(ctx, tx.NewSelect().For("UPDATE"), challengeID)
		if err != nil {
			return err
		}
		return fn(&lockedChallenge{tx: tx, current: current})
	})
}

type lockedChallenge struct {
	tx      bun.Tx
	current domain.Challenge
}

func (l *lockedChallenge) Challenge() domain.Challenge {
	return l.current
}

func (l *lockedChallenge) Attempts(ctx context.Context) ([]domain.Attempt, error) {
	return listAttempts(ctx, l.tx, l.current.ID)
}

func (l *lockedChallenge) Save(ctx context.Context, ch domain.Challenge) error {
	if ch.ID != l.current.ID {
		return fmt.Errorf("save challenge %s under lock for %s", ch.ID, l.current.ID)
	}
	if _, err := l.tx.NewUpdate().Model(challengeFromDomain(ch)).WherePK().Exec(ctx); err != nil {
		return fmt.Errorf("save challenge: %w", err)
	}
	l.current = ch
	return nil
}

func getChallenge(ctx context.Context, q *bun.SelectQuery, challengeID string) (domain.Challenge, error) {
	var m challengeModel
	err := q.Model(&m).Where("c.id = ?", challengeID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Challenge{}, domain.ErrChallengeNotFound
	}
	if err != nil {
		return domain.Challenge{}, fmt.Errorf("load challenge: %w", err)
	}
	return m.toDomain(), nil
}

func listAttempts(ctx context.Context, db bun.IDB, challengeID string) ([]domain.Attempt, error) {
	var rows []attemptModel
	err := db.NewSelect().Model(&rows).
		Where("a.challenge_id = ?", challengeID).
		OrderExpr("a.user_id = (SELECT challenger_id FROM challenges WHERE id = ?) DESC, a.user_id", challengeID).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load attempts: %w", err)
	}
	out := make([]domain.Attempt, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}
