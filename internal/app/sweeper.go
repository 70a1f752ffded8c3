package app

import (
	"context"
	"errors"
	"time"

	"challenge-service/internal/domain"
	"challenge-service/internal/metrics"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// SweepPolicy controls which challenges the sweep touches.
type SweepPolicy struct {
	InviteTTL      time.Duration
	MatchmakingTTL time.Duration
	// StuckAfter is the age after which ongoing challenges are re-checked for
	// a missed finalization. Zero disables the re-check.
	StuckAfter time.Duration
}

// SweepReport summarizes one sweep.
type SweepReport struct {
	Expired   int
	Finalized int
}

// ExpirySweeper expires stale pending challenges and re-runs finalization for
// ongoing challenges whose last finalization attempt failed.
type ExpirySweeper struct {
	service *ChallengeService
	store   ChallengeStore
	policy  SweepPolicy
	logger  *zap.Logger
}

func NewExpirySweeper(service *ChallengeService, store ChallengeStore, policy SweepPolicy, logger *zap.Logger) *ExpirySweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExpirySweeper{service: service, store: store, policy: policy, logger: logger}
}

// Sweep runs one pass relative to now.
func (s *ExpirySweeper) Sweep(ctx context.Context, now time.Time) (SweepReport, error) {
	var report SweepReport

	stale := []struct {
		status domain.Status
		ttl    time.Duration
	}{
		{domain.StatusPendingInvite, s.policy.InviteTTL},
		{domain.StatusPendingMatchmaking, s.policy.MatchmakingTTL},
	}
	for _, st := range stale {
		if st.ttl <= 0 {
			continue
		}
		ids, err := s.store.ListStale(ctx, st.status, now.Add(-st.ttl))
		if err != nil {
			return report, err
		}
		for _, id := range ids {
			if _, err := s.service.Expire(ctx, id); err != nil {
				// Accepted or cancelled since the listing.
				if errors.Is(err, domain.ErrInvalidTransition) {
					continue
				}
				s.logger.Error("expire challenge failed", zap.String("challenge_id", id), zap.Error(err))
				continue
			}
			report.Expired++
			metrics.SweepExpired.Inc()
		}
	}

	if s.policy.StuckAfter > 0 {
		ids, err := s.store.ListStale(ctx, domain.StatusOngoing, now.Add(-s.policy.StuckAfter))
		if err != nil {
			return report, err
		}
		for _, id := range ids {
			ok, err := s.service.Finalizer().TryFinalize(ctx, id)
			if err != nil {
				s.logger.Error("re-check finalization failed", zap.String("challenge_id", id), zap.Error(err))
				continue
			}
			if ok {
				report.Finalized++
			}
		}
	}
	return report, nil
}

// Schedule registers the sweep on a cron scheduler. The caller starts and
// stops the returned scheduler.
func (s *ExpirySweeper) Schedule(ctx context.Context, spec string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		report, err := s.Sweep(ctx, time.Now().UTC())
		if err != nil {
			s.logger.Error("challenge sweep failed", zap.Error(err))
			return
		}
		s.logger.Info("challenge sweep finished",
			zap.Int("expired", report.Expired),
			zap.Int("finalized", report.Finalized),
		)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}
