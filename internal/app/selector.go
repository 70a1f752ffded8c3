package app

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"challenge-service/internal/domain"
	"go.uber.org/zap"
)

// QuestionSelector freezes an ordered question set for a new challenge.
type QuestionSelector struct {
	bank   QuestionBank
	logger *zap.Logger

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuestionSelector(bank QuestionBank, logger *zap.Logger) *QuestionSelector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuestionSelector{
		bank:   bank,
		logger: logger,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Select samples up to cfg.NumQuestions active questions matching the config
// filters. A pool smaller than requested yields a shorter list; an empty pool
// fails with domain.ErrNoQuestionsAvailable.
func (s *QuestionSelector) Select(ctx context.Context, cfg domain.ChallengeConfig) ([]string, error) {
	ids, err := s.bank.SelectActive(ctx, cfg.Filter(), cfg.NumQuestions)
	if err != nil {
		return nil, fmt.Errorf("select questions: %w", err)
	}
	if len(ids) == 0 {
		return nil, domain.ErrNoQuestionsAvailable
	}
	if len(ids) > cfg.NumQuestions {
		ids = ids[:cfg.NumQuestions]
	}
	if len(ids) < cfg.NumQuestions {
		s.logger.Warn("question pool smaller than requested",
			zap.Int("requested", cfg.NumQuestions),
			zap.Int("available", len(ids)),
			zap.Strings("topics", cfg.Topics),
		)
	}

	out := append([]string(nil), ids...)
	s.mu.Lock()
	s.rnd.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	s.mu.Unlock()
	return out, nil
}
