package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"challenge-service/internal/app"
	"challenge-service/internal/domain"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

func newMockStore(t *testing.T) (*ChallengeStore, sqlmock.Sqlmock) {
	t.Helper()
	sqldb, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := bun.NewDB(sqldb, pgdialect.New())
	t.Cleanup(func() { _ = db.Close() })
	return NewChallengeStore(db), mock
}

func TestWithLockSelectsForUpdate(t *testing.T) {
	tests := []struct {
		name      string
		fnErr     error
		setupMock func(sqlmock.Sqlmock)
	}{
		{
			name: "commits when callback succeeds",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(`FOR UPDATE`).
					WillReturnRows(sqlmock.NewRows([]string{"id", "challenger_id", "status"}).
						AddRow("c1", "alice", "completed"))
				mock.ExpectCommit()
			},
		},
		{
			name:  "rolls back when callback fails",
			fnErr: errors.New("boom"),
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(`FOR UPDATE`).
					WillReturnRows(sqlmock.NewRows([]string{"id", "challenger_id", "status"}).
						AddRow("c1", "alice", "completed"))
				mock.ExpectRollback()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockStore(t)
			tt.setupMock(mock)

			var seen domain.Status
			err := store.WithLock(context.Background(), "c1", func(tx app.LockedChallenge) error {
				seen = tx.Challenge().Status
				return tt.fnErr
			})
			if tt.fnErr != nil {
				assert.ErrorIs(t, err, tt.fnErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, domain.StatusCompleted, seen)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestWithLockMissingChallenge(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	called := false
	err := store.WithLock(context.Background(), "nope", func(app.LockedChallenge) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, domain.ErrChallengeNotFound)
	assert.False(t, called)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT .* FROM "challenges"`).WillReturnError(sql.ErrNoRows)

	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrChallengeNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSwapStatusLostRace(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE "challenges"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT .* FROM "challenges"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).AddRow("c1", "cancelled"))

	next := domain.Challenge{ID: "c1", ChallengerID: "alice", OpponentID: "bob", Status: domain.StatusAccepted, CreatedAt: time.Now()}
	ok, err := store.SwapStatus(context.Background(), next, domain.StatusPendingInvite)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordAnswerDuplicateRollsBack(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "challenge_attempts"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO "challenge_answers"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := store.RecordAnswer(context.Background(), domain.Answer{
		ChallengeID: "c1",
		UserID:      "alice",
		QuestionID:  "q1",
		Choice:      "b",
		Correct:     true,
		AnsweredAt:  time.Now(),
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateAnswer)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureAttemptIgnoresExisting(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO "challenge_attempts" .* ON CONFLICT \(challenge_id, user_id\) DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.EnsureAttempt(context.Background(), "c1", "bob"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkFinishedUnknownAttempt(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE "challenge_attempts"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS`).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	_, err := store.MarkFinished(context.Background(), "c1", "mallory", time.Now())
	assert.ErrorIs(t, err, domain.ErrNotParticipant)
	assert.NoError(t, mock.ExpectationsWereMet())
}
