package app

import (
	"context"

	"challenge-service/internal/domain"
	"challenge-service/internal/metrics"
	"go.uber.org/zap"
)

// effectRunner performs the side effects returned by domain.Transition. None
// of its failures are returned: the stored state is authoritative.
type effectRunner struct {
	store       ChallengeStore
	broadcaster Broadcaster
	scorer      Scorer
	badges      BadgeChecker
	logger      *zap.Logger
}

func (r *effectRunner) run(ctx context.Context, ch domain.Challenge, effects []domain.Effect) {
	// Side effects outlive the request that triggered them.
	ctx = context.WithoutCancel(ctx)
	for _, eff := range effects {
		switch e := eff.(type) {
		case domain.EnsureAttempt:
			if err := r.store.EnsureAttempt(ctx, ch.ID, e.UserID); err != nil {
				r.logger.Error("create attempt failed",
					zap.String("challenge_id", ch.ID), zap.String("user_id", e.UserID), zap.Error(err))
			}
		case domain.Broadcast:
			payload := e.Payload
			if snapshot, ok := payload.(domain.Challenge); ok {
				payload = r.view(ctx, snapshot)
			}
			r.publish(ctx, e.Group, e.Type, payload)
		case domain.Award:
			if r.scorer == nil {
				continue
			}
			if err := r.scorer.Award(ctx, e.UserID, e.Points, e.Reason, ch.ID); err != nil {
				metrics.CallbackFailures.WithLabelValues("award").Inc()
				r.logger.Error("award points failed",
					zap.String("challenge_id", ch.ID), zap.String("user_id", e.UserID),
					zap.Int("points", e.Points), zap.String("reason", string(e.Reason)), zap.Error(err))
			}
		case domain.CheckBadge:
			if r.badges == nil {
				continue
			}
			if err := r.badges.CheckAndAward(ctx, e.UserID, e.Kind); err != nil {
				metrics.CallbackFailures.WithLabelValues("badge").Inc()
				r.logger.Error("badge check failed",
					zap.String("challenge_id", ch.ID), zap.String("user_id", e.UserID), zap.Error(err))
			}
		}
	}
}

// view expands a challenge into a full snapshot. Attempts are best effort.
func (r *effectRunner) view(ctx context.Context, ch domain.Challenge) domain.ChallengeView {
	attempts, err := r.store.Attempts(ctx, ch.ID)
	if err != nil {
		r.logger.Warn("load attempts for snapshot failed", zap.String("challenge_id", ch.ID), zap.Error(err))
	}
	return domain.ChallengeView{Challenge: ch, Attempts: attempts}
}

func (r *effectRunner) publish(ctx context.Context, group, eventType string, payload any) {
	if r.broadcaster == nil {
		return
	}
	if err := r.broadcaster.Publish(ctx, group, eventType, payload); err != nil {
		metrics.BroadcastFailures.WithLabelValues(eventType).Inc()
		r.logger.Warn("broadcast failed",
			zap.String("group", group), zap.String("event", eventType), zap.Error(err))
	}
}
