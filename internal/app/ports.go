package app

import (
	"context"
	"time"

	"challenge-service/internal/domain"
)

// ChallengeStore persists challenges, attempts and answers.
//
// SwapStatus writes next only if the stored status still equals from. It must
// never be used to move a challenge away from ongoing; that happens only
// inside WithLock.
type ChallengeStore interface {
	Create(ctx context.Context, ch domain.Challenge, attempts []domain.Attempt) error
	Get(ctx context.Context, challengeID string) (domain.Challenge, error)
	Attempts(ctx context.Context, challengeID string) ([]domain.Attempt, error)
	ListForUser(ctx context.Context, userID string, limit int) ([]domain.Challenge, error)
	ListStale(ctx context.Context, status domain.Status, createdBefore time.Time) ([]string, error)

	SwapStatus(ctx context.Context, next domain.Challenge, from domain.Status) (bool, error)
	EnsureAttempt(ctx context.Context, challengeID, userID string) error
	MarkReady(ctx context.Context, challengeID, userID string, at time.Time) (bool, error)
	// RecordAnswer stores a write-once answer and atomically increments the
	// attempt score when it is correct. Returns domain.ErrDuplicateAnswer if
	// the question was already answered by the user.
	RecordAnswer(ctx context.Context, answer domain.Answer) (domain.Attempt, error)
	MarkFinished(ctx context.Context, challengeID, userID string, at time.Time) (bool, error)

	// WithLock runs fn while holding an exclusive lock scoped to one challenge.
	// Writes made through tx commit when fn returns nil.
	WithLock(ctx context.Context, challengeID string, fn func(tx LockedChallenge) error) error
}

// LockedChallenge is the view of a challenge available while its lock is held.
type LockedChallenge interface {
	Challenge() domain.Challenge
	Attempts(ctx context.Context) ([]domain.Attempt, error)
	Save(ctx context.Context, ch domain.Challenge) error
}

// QuestionBank is the opaque question content collaborator.
type QuestionBank interface {
	SelectActive(ctx context.Context, filter domain.QuestionFilter, limit int) ([]string, error)
	CorrectChoice(ctx context.Context, questionID string) (string, error)
}

// QuestionPrimer is implemented by question banks that can warm answer keys
// for a freshly frozen question set.
type QuestionPrimer interface {
	Prime(ctx context.Context, questionIDs []string) error
}

// UserDirectory finds matchmaking opponents.
type UserDirectory interface {
	FindRandomEligibleOpponent(ctx context.Context, excluding string) (string, bool, error)
}

// Broadcaster publishes events to a broadcast group. Delivery is best effort.
type Broadcaster interface {
	Publish(ctx context.Context, group, eventType string, payload any) error
}

// Scorer awards gamification points.
type Scorer interface {
	Award(ctx context.Context, userID string, points int, reason domain.AwardReason, challengeID string) error
}

// BadgeChecker evaluates badges for a winner.
type BadgeChecker interface {
	CheckAndAward(ctx context.Context, userID string, kind domain.BadgeKind) error
}
