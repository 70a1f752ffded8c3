package app

import (
	"context"
	"fmt"
	"time"

	"challenge-service/internal/domain"
	"challenge-service/internal/metrics"
	"go.uber.org/zap"
)

// FinalizationCoordinator completes a challenge exactly once, even when both
// participants finish at the same moment.
type FinalizationCoordinator struct {
	store  ChallengeStore
	runner *effectRunner
	points domain.PointsPolicy
	now    func() time.Time
	logger *zap.Logger
}

// TryFinalize completes the challenge if every expected attempt has finished.
// It reports whether this call performed the finalization. Calling it again,
// concurrently or later, is safe: only one caller ever observes true.
func (f *FinalizationCoordinator) TryFinalize(ctx context.Context, challengeID string) (bool, error) {
	ch, err := f.store.Get(ctx, challengeID)
	if err != nil {
		return false, err
	}
	if ch.Status != domain.StatusOngoing {
		metrics.Finalizations.WithLabelValues("skipped").Inc()
		return false, nil
	}
	if err := f.stampFinished(ctx, ch); err != nil {
		metrics.Finalizations.WithLabelValues("error").Inc()
		return false, fmt.Errorf("finalize challenge %s: %w", challengeID, err)
	}

	var (
		final   domain.Challenge
		effects []domain.Effect
	)
	started := time.Now()
	err = f.store.WithLock(ctx, challengeID, func(tx LockedChallenge) error {
		current := tx.Challenge()
		// Another caller may have finalized between the unlocked read and the lock.
		if current.Status != domain.StatusOngoing {
			return nil
		}
		attempts, err := tx.Attempts(ctx)
		if err != nil {
			return err
		}
		next, effs, err := domain.Transition(current, domain.AttemptsFinished{Attempts: attempts, Points: f.points}, f.now())
		if err != nil {
			return err
		}
		if next.Status != domain.StatusCompleted {
			return nil
		}
		if err := tx.Save(ctx, next); err != nil {
			return err
		}
		final, effects = next, effs
		return nil
	})
	metrics.ObserveFinalization(started)
	if err != nil {
		metrics.Finalizations.WithLabelValues("error").Inc()
		return false, fmt.Errorf("finalize challenge %s: %w", challengeID, err)
	}
	if effects == nil {
		metrics.Finalizations.WithLabelValues("pending").Inc()
		return false, nil
	}

	metrics.Finalizations.WithLabelValues("completed").Inc()
	metrics.Transitions.WithLabelValues(string(domain.StatusCompleted)).Inc()
	f.logger.Info("challenge completed",
		zap.String("challenge_id", final.ID),
		zap.String("winner_id", final.WinnerID),
	)
	f.runner.run(ctx, final, effects)
	return true, nil
}

// stampFinished sets end_time on attempts that answered every question but
// were never marked finished, e.g. after a failed MarkFinished.
func (f *FinalizationCoordinator) stampFinished(ctx context.Context, ch domain.Challenge) error {
	attempts, err := f.store.Attempts(ctx, ch.ID)
	if err != nil {
		return err
	}
	for _, a := range attempts {
		if a.EndTime != nil || a.Answered < len(ch.QuestionIDs) {
			continue
		}
		if _, err := f.store.MarkFinished(ctx, ch.ID, a.UserID, f.now()); err != nil {
			return fmt.Errorf("mark %s finished: %w", a.UserID, err)
		}
	}
	return nil
}
