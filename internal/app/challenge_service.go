package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"challenge-service/internal/domain"
	"challenge-service/internal/metrics"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultListLimit = 20

// Deps are the collaborators of ChallengeService.
type Deps struct {
	Store       ChallengeStore
	Questions   QuestionBank
	Users       UserDirectory
	Broadcaster Broadcaster
	Scorer      Scorer
	Badges      BadgeChecker
}

// Options tune ChallengeService. Zero values fall back to defaults.
type Options struct {
	Types  map[string]domain.ChallengeConfig
	Points domain.PointsPolicy
	Logger *zap.Logger
	// Clock and NewID are replaceable for deterministic tests.
	Clock func() time.Time
	NewID func() string
	// Retry builds the backoff used when finalization hits a transient error.
	Retry func() backoff.BackOff
}

// ChallengeService contains the challenge lifecycle and answer use cases.
type ChallengeService struct {
	store     ChallengeStore
	questions QuestionBank
	selector  *QuestionSelector
	matcher   *OpponentMatcher
	finalizer *FinalizationCoordinator
	runner    *effectRunner

	types  map[string]domain.ChallengeConfig
	now    func() time.Time
	newID  func() string
	retry  func() backoff.BackOff
	logger *zap.Logger
}

func NewChallengeService(deps Deps, opts Options) *ChallengeService {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := opts.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	retry := opts.Retry
	if retry == nil {
		retry = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 50 * time.Millisecond
			return backoff.WithMaxRetries(b, 3)
		}
	}

	runner := &effectRunner{
		store:       deps.Store,
		broadcaster: deps.Broadcaster,
		scorer:      deps.Scorer,
		badges:      deps.Badges,
		logger:      logger,
	}
	return &ChallengeService{
		store:     deps.Store,
		questions: deps.Questions,
		selector:  NewQuestionSelector(deps.Questions, logger),
		matcher:   NewOpponentMatcher(deps.Users),
		finalizer: &FinalizationCoordinator{
			store:  deps.Store,
			runner: runner,
			points: opts.Points,
			now:    clock,
			logger: logger,
		},
		runner: runner,
		types:  opts.Types,
		now:    clock,
		newID:  newID,
		retry:  retry,
		logger: logger,
	}
}

// Finalizer exposes the coordinator for callers that re-check stuck challenges.
func (s *ChallengeService) Finalizer() *FinalizationCoordinator {
	return s.finalizer
}

// CreateRequest describes a new challenge. An empty OpponentID requests matchmaking.
type CreateRequest struct {
	ChallengerID string
	OpponentID   string
	Type         string
}

// CreateResult is the outcome of Create and Rematch.
type CreateResult struct {
	View domain.ChallengeView
	// Searching is true when matchmaking found nobody yet.
	Searching bool
}

// Create resolves the configuration, freezes the question set, resolves the
// opponent and stores the challenge.
func (s *ChallengeService) Create(ctx context.Context, req CreateRequest) (CreateResult, error) {
	if req.ChallengerID == "" {
		return CreateResult{}, fmt.Errorf("%w: missing challenger", domain.ErrNotParticipant)
	}
	if req.OpponentID == req.ChallengerID {
		return CreateResult{}, domain.ErrSelfChallenge
	}
	cfg, ok := s.types[req.Type]
	if !ok {
		return CreateResult{}, fmt.Errorf("%w: %q", domain.ErrUnknownType, req.Type)
	}
	cfg.Topics = append([]string(nil), cfg.Topics...)
	cfg.Sections = append([]string(nil), cfg.Sections...)

	questionIDs, err := s.selector.Select(ctx, cfg)
	if err != nil {
		return CreateResult{}, err
	}
	cfg.NumQuestions = len(questionIDs)

	now := s.now()
	ch := domain.Challenge{
		ID:           s.newID(),
		ChallengerID: req.ChallengerID,
		Type:         req.Type,
		Config:       cfg,
		QuestionIDs:  questionIDs,
		CreatedAt:    now,
	}
	attempts := []domain.Attempt{{ChallengeID: ch.ID, UserID: req.ChallengerID}}

	if req.OpponentID != "" {
		ch.OpponentID = req.OpponentID
		ch.Status = domain.StatusPendingInvite
	} else {
		opponent, found, err := s.matcher.Match(ctx, req.ChallengerID)
		if err != nil {
			return CreateResult{}, err
		}
		if found {
			accepted := now
			ch.OpponentID = opponent
			ch.Status = domain.StatusAccepted
			ch.AcceptedAt = &accepted
			attempts = append(attempts, domain.Attempt{ChallengeID: ch.ID, UserID: opponent})
		} else {
			ch.Status = domain.StatusPendingMatchmaking
		}
	}

	if err := s.store.Create(ctx, ch, attempts); err != nil {
		return CreateResult{}, fmt.Errorf("store challenge: %w", err)
	}
	metrics.ChallengesCreated.WithLabelValues(ch.Type, string(ch.Status)).Inc()
	s.logger.Info("challenge created",
		zap.String("challenge_id", ch.ID),
		zap.String("user_id", ch.ChallengerID),
		zap.String("opponent_id", ch.OpponentID),
		zap.String("status", string(ch.Status)),
	)

	if primer, ok := s.questions.(QuestionPrimer); ok {
		if err := primer.Prime(ctx, questionIDs); err != nil {
			s.logger.Warn("prime answer keys failed", zap.String("challenge_id", ch.ID), zap.Error(err))
		}
	}

	view := domain.ChallengeView{Challenge: ch, Attempts: attempts}
	switch ch.Status {
	case domain.StatusPendingInvite:
		s.runner.publish(ctx, domain.UserGroup(ch.OpponentID), domain.EventChallengeUpdate, view)
	case domain.StatusAccepted:
		s.runner.publish(ctx, domain.ChallengeGroup(ch.ID), domain.EventChallengeUpdate, view)
		s.runner.publish(ctx, domain.UserGroup(ch.OpponentID), domain.EventChallengeUpdate, view)
	}
	return CreateResult{View: view, Searching: ch.Status == domain.StatusPendingMatchmaking}, nil
}

// Get returns a challenge with its attempts.
func (s *ChallengeService) Get(ctx context.Context, challengeID string) (domain.ChallengeView, error) {
	ch, err := s.store.Get(ctx, challengeID)
	if err != nil {
		return domain.ChallengeView{}, err
	}
	attempts, err := s.store.Attempts(ctx, challengeID)
	if err != nil {
		return domain.ChallengeView{}, err
	}
	return domain.ChallengeView{Challenge: ch, Attempts: attempts}, nil
}

// ListForUser returns the user's most recent challenges.
func (s *ChallengeService) ListForUser(ctx context.Context, userID string, limit int) ([]domain.Challenge, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	return s.store.ListForUser(ctx, userID, limit)
}

// Accept is called by the invited opponent.
func (s *ChallengeService) Accept(ctx context.Context, challengeID, actor string) (domain.Challenge, error) {
	return s.apply(ctx, challengeID, domain.Accept{Actor: actor})
}

// Decline is called by the invited opponent.
func (s *ChallengeService) Decline(ctx context.Context, challengeID, actor string) (domain.Challenge, error) {
	return s.apply(ctx, challengeID, domain.Decline{Actor: actor})
}

// Cancel is called by the challenger while the challenge is pending.
func (s *ChallengeService) Cancel(ctx context.Context, challengeID, actor string) (domain.Challenge, error) {
	return s.apply(ctx, challengeID, domain.Cancel{Actor: actor})
}

// Expire moves a stale pending challenge to expired.
func (s *ChallengeService) Expire(ctx context.Context, challengeID string) (domain.Challenge, error) {
	return s.apply(ctx, challengeID, domain.Expire{})
}

func (s *ChallengeService) apply(ctx context.Context, challengeID string, ev domain.Event) (domain.Challenge, error) {
	ch, err := s.store.Get(ctx, challengeID)
	if err != nil {
		return domain.Challenge{}, err
	}
	next, effects, err := domain.Transition(ch, ev, s.now())
	if err != nil {
		return ch, err
	}

	swapped, err := s.store.SwapStatus(ctx, next, ch.Status)
	if err != nil {
		return ch, fmt.Errorf("store transition: %w", err)
	}
	if !swapped {
		current, getErr := s.store.Get(ctx, challengeID)
		if getErr != nil {
			return ch, getErr
		}
		return current, fmt.Errorf("%w: challenge is now %s", domain.ErrInvalidTransition, current.Status)
	}

	metrics.Transitions.WithLabelValues(string(next.Status)).Inc()
	s.logger.Info("challenge transitioned",
		zap.String("challenge_id", next.ID),
		zap.String("from", string(ch.Status)),
		zap.String("status", string(next.Status)),
	)
	s.runner.run(ctx, next, effects)
	return next, nil
}

// ReadyResult is the outcome of Ready.
type ReadyResult struct {
	Challenge domain.Challenge
	// Started is true for the single call that moved the challenge to ongoing.
	Started bool
	// AlreadyStarted is true when the challenge was ongoing before this call.
	AlreadyStarted bool
}

// Ready marks a participant ready and starts the challenge once both are.
// Re-marking is a no-op that emits nothing.
func (s *ChallengeService) Ready(ctx context.Context, challengeID, userID string) (ReadyResult, error) {
	ch, err := s.store.Get(ctx, challengeID)
	if err != nil {
		return ReadyResult{}, err
	}
	// Guards only; attempts are read again after the flag is stored.
	if _, _, err := domain.Transition(ch, domain.ParticipantReadied{UserID: userID}, s.now()); err != nil {
		return ReadyResult{Challenge: ch}, err
	}

	changed, err := s.store.MarkReady(ctx, challengeID, userID, s.now())
	if err != nil {
		return ReadyResult{Challenge: ch}, fmt.Errorf("mark ready: %w", err)
	}
	attempts, err := s.store.Attempts(ctx, challengeID)
	if err != nil {
		return ReadyResult{Challenge: ch}, err
	}
	if changed {
		s.runner.publish(ctx, domain.ChallengeGroup(ch.ID), domain.EventParticipantUpdate, participantPayload(ch.ID, userID, attempts))
	}

	if ch.Status == domain.StatusOngoing {
		return ReadyResult{Challenge: ch, AlreadyStarted: true}, nil
	}
	next, effects, err := domain.Transition(ch, domain.ParticipantReadied{UserID: userID, Attempts: attempts}, s.now())
	if err != nil {
		return ReadyResult{Challenge: ch}, err
	}
	if next.Status != domain.StatusOngoing {
		return ReadyResult{Challenge: ch}, nil
	}

	swapped, err := s.store.SwapStatus(ctx, next, domain.StatusAccepted)
	if err != nil {
		return ReadyResult{Challenge: ch}, fmt.Errorf("start challenge: %w", err)
	}
	if !swapped {
		current, err := s.store.Get(ctx, challengeID)
		if err != nil {
			return ReadyResult{Challenge: ch}, err
		}
		return ReadyResult{Challenge: current, AlreadyStarted: current.Status == domain.StatusOngoing}, nil
	}

	metrics.Transitions.WithLabelValues(string(domain.StatusOngoing)).Inc()
	s.logger.Info("challenge started", zap.String("challenge_id", next.ID))
	s.runner.run(ctx, next, effects)
	return ReadyResult{Challenge: next, Started: true}, nil
}

// AnswerResult is the outcome of SubmitAnswer.
type AnswerResult struct {
	QuestionID string `json:"questionId"`
	Correct    bool   `json:"correct"`
	Score      int    `json:"score"`
	Answered   int    `json:"answered"`
	Finished   bool   `json:"finished"`
	// Finalized is true when this answer completed the whole challenge.
	Finalized bool `json:"finalized"`
}

// SubmitAnswer records a write-once answer, updates the score and triggers
// finalization when the participant has answered everything.
func (s *ChallengeService) SubmitAnswer(ctx context.Context, challengeID, userID, questionID, choice string) (AnswerResult, error) {
	ch, err := s.store.Get(ctx, challengeID)
	if err != nil {
		return AnswerResult{}, err
	}
	if ch.Status != domain.StatusOngoing {
		return AnswerResult{}, domain.ErrNotOngoing
	}
	if !ch.IsParticipant(userID) {
		return AnswerResult{}, domain.ErrNotParticipant
	}
	if !ch.HasQuestion(questionID) {
		return AnswerResult{}, domain.ErrUnknownQuestion
	}

	expected, err := s.questions.CorrectChoice(ctx, questionID)
	if err != nil {
		return AnswerResult{}, fmt.Errorf("correct choice for %s: %w", questionID, err)
	}
	correct := sameChoice(choice, expected)

	attempt, err := s.store.RecordAnswer(ctx, domain.Answer{
		ChallengeID: challengeID,
		UserID:      userID,
		QuestionID:  questionID,
		Choice:      choice,
		Correct:     correct,
		AnsweredAt:  s.now(),
	})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateAnswer) {
			return AnswerResult{}, err
		}
		return AnswerResult{}, fmt.Errorf("record answer: %w", err)
	}
	metrics.AnswersRecorded.WithLabelValues(strconv.FormatBool(correct)).Inc()

	s.runner.publish(ctx, domain.ChallengeGroup(ch.ID), domain.EventAnswerResult, domain.AnswerPayload{
		ChallengeID: ch.ID,
		UserID:      userID,
		QuestionID:  questionID,
		Correct:     correct,
		Score:       attempt.Score,
	})
	if correct {
		s.runner.publish(ctx, domain.ChallengeGroup(ch.ID), domain.EventParticipantUpdate, domain.ParticipantPayload{
			ChallengeID: ch.ID,
			UserID:      userID,
			IsReady:     attempt.IsReady,
			Score:       attempt.Score,
			Answered:    attempt.Answered,
		})
	}

	result := AnswerResult{
		QuestionID: questionID,
		Correct:    correct,
		Score:      attempt.Score,
		Answered:   attempt.Answered,
	}
	if attempt.Answered < len(ch.QuestionIDs) {
		return result, nil
	}

	result.Finished = true
	if _, err := s.store.MarkFinished(ctx, challengeID, userID, s.now()); err != nil {
		// Finalization stamps the attempt again before evaluating completion.
		s.logger.Warn("mark attempt finished failed",
			zap.String("challenge_id", challengeID), zap.String("user_id", userID), zap.Error(err))
	}
	finalized, err := s.finalizeWithRetry(ctx, challengeID)
	if err != nil {
		// The answer is stored; the sweep re-checks stuck challenges.
		s.logger.Error("finalization failed",
			zap.String("challenge_id", challengeID), zap.Error(err))
		return result, nil
	}
	result.Finalized = finalized
	return result, nil
}

// Rematch starts a fresh challenge of the same type between the same two
// users, with the initiator as challenger.
func (s *ChallengeService) Rematch(ctx context.Context, challengeID, initiator string) (CreateResult, error) {
	ch, err := s.store.Get(ctx, challengeID)
	if err != nil {
		return CreateResult{}, err
	}
	if ch.Status != domain.StatusCompleted {
		return CreateResult{}, domain.ErrNotCompleted
	}
	if ch.OpponentID == "" {
		return CreateResult{}, domain.ErrMissingOpponent
	}
	if !ch.IsParticipant(initiator) {
		return CreateResult{}, domain.ErrNotParticipant
	}
	return s.Create(ctx, CreateRequest{
		ChallengerID: initiator,
		OpponentID:   ch.OtherParticipant(initiator),
		Type:         ch.Type,
	})
}

func (s *ChallengeService) finalizeWithRetry(ctx context.Context, challengeID string) (bool, error) {
	var finalized bool
	attempt := 0
	op := func() error {
		attempt++
		ok, err := s.finalizer.TryFinalize(ctx, challengeID)
		if err != nil {
			if domain.IsUserFacing(err) {
				return backoff.Permanent(err)
			}
			s.logger.Warn("finalization attempt failed",
				zap.String("challenge_id", challengeID), zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		finalized = ok
		return nil
	}
	err := backoff.Retry(op, backoff.WithContext(s.retry(), ctx))
	return finalized, err
}

func participantPayload(challengeID, userID string, attempts []domain.Attempt) domain.ParticipantPayload {
	payload := domain.ParticipantPayload{ChallengeID: challengeID, UserID: userID}
	for _, a := range attempts {
		if a.UserID == userID {
			payload.IsReady = a.IsReady
			payload.Score = a.Score
			payload.Answered = a.Answered
			payload.Finished = a.Finished()
		}
	}
	return payload
}

func sameChoice(given, expected string) bool {
	return strings.EqualFold(strings.TrimSpace(given), strings.TrimSpace(expected))
}
