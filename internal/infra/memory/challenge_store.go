package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"challenge-service/internal/app"
	"challenge-service/internal/domain"
)

// ChallengeStore is an in-memory implementation of app.ChallengeStore.
// Each challenge carries its own mutex, which doubles as the finalization lock.
type ChallengeStore struct {
	mu      sync.RWMutex
	records map[string]*challengeRecord
}

type challengeRecord struct {
	mu        sync.Mutex
	challenge domain.Challenge
	attempts  map[string]*domain.Attempt
	order     []string
	answers   map[string]map[string]domain.Answer
}

func NewChallengeStore() *ChallengeStore {
	return &ChallengeStore{
		records: make(map[string]*challengeRecord),
	}
}

func (s *ChallengeStore) Create(_ context.Context, ch domain.Challenge, attempts []domain.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[ch.ID]; ok {
		return fmt.Errorf("challenge %s already exists", ch.ID)
	}
	rec := &challengeRecord{
		challenge: cloneChallenge(ch),
		attempts:  make(map[string]*domain.Attempt),
		answers:   make(map[string]map[string]domain.Answer),
	}
	for _, a := range attempts {
		rec.addAttempt(a.UserID)
	}
	s.records[ch.ID] = rec
	return nil
}

func (s *ChallengeStore) Get(_ context.Context, challengeID string) (domain.Challenge, error) {
	rec, err := s.record(challengeID)
	if err != nil {
		return domain.Challenge{}, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return cloneChallenge(rec.challenge), nil
}

func (s *ChallengeStore) Attempts(_ context.Context, challengeID string) ([]domain.Attempt, error) {
	rec, err := s.record(challengeID)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.snapshotAttempts(), nil
}

func (s *ChallengeStore) ListForUser(_ context.Context, userID string, limit int) ([]domain.Challenge, error) {
	out := s.filter(func(ch domain.Challenge) bool { return ch.IsParticipant(userID) })
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *ChallengeStore) ListStale(_ context.Context, status domain.Status, createdBefore time.Time) ([]string, error) {
	matches := s.filter(func(ch domain.Challenge) bool {
		return ch.Status == status && ch.CreatedAt.Before(createdBefore)
	})
	sort.Slice(matches, func(i, j int) bool { return matches[i].CreatedAt.Before(matches[j].CreatedAt) })
	ids := make([]string, 0, len(matches))
	for _, ch := range matches {
		ids = append(ids, ch.ID)
	}
	return ids, nil
}

func (s *ChallengeStore) SwapStatus(_ context.Context, next domain.Challenge, from domain.Status) (bool, error) {
	rec, err := s.record(next.ID)
	if err != nil {
		return false, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.challenge.Status != from {
		return false, nil
	}
	rec.challenge = cloneChallenge(next)
	return true, nil
}

func (s *ChallengeStore) EnsureAttempt(_ context.Context, challengeID, userID string) error {
	rec, err := s.record(challengeID)
	if err != nil {
		return err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.addAttempt(userID)
	return nil
}

func (s *ChallengeStore) MarkReady(_ context.Context, challengeID, userID string, at time.Time) (bool, error) {
	rec, err := s.record(challengeID)
	if err != nil {
		return false, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	attempt := rec.addAttempt(userID)
	if attempt.IsReady {
		return false, nil
	}
	attempt.IsReady = true
	if attempt.StartTime == nil {
		started := at
		attempt.StartTime = &started
	}
	return true, nil
}

func (s *ChallengeStore) RecordAnswer(_ context.Context, answer domain.Answer) (domain.Attempt, error) {
	rec, err := s.record(answer.ChallengeID)
	if err != nil {
		return domain.Attempt{}, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	byQuestion, ok := rec.answers[answer.UserID]
	if !ok {
		byQuestion = make(map[string]domain.Answer)
		rec.answers[answer.UserID] = byQuestion
	}
	if _, dup := byQuestion[answer.QuestionID]; dup {
		return domain.Attempt{}, domain.ErrDuplicateAnswer
	}
	byQuestion[answer.QuestionID] = answer

	attempt := rec.addAttempt(answer.UserID)
	attempt.Answered++
	if answer.Correct {
		attempt.Score++
	}
	return cloneAttempt(*attempt), nil
}

func (s *ChallengeStore) MarkFinished(_ context.Context, challengeID, userID string, at time.Time) (bool, error) {
	rec, err := s.record(challengeID)
	if err != nil {
		return false, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	attempt, ok := rec.attempts[userID]
	if !ok {
		return false, domain.ErrNotParticipant
	}
	if attempt.EndTime != nil {
		return false, nil
	}
	ended := at
	attempt.EndTime = &ended
	return true, nil
}

// Answers returns the answers recorded by a user, in no particular order.
func (s *ChallengeStore) Answers(_ context.Context, challengeID, userID string) ([]domain.Answer, error) {
	rec, err := s.record(challengeID)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	out := make([]domain.Answer, 0, len(rec.answers[userID]))
	for _, a := range rec.answers[userID] {
		out = append(out, a)
	}
	return out, nil
}

func (s *ChallengeStore) WithLock(ctx context.Context, challengeID string, fn func(tx app.LockedChallenge) error) error {
	rec, err := s.record(challengeID)
	if err != nil {
		return err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	tx := &lockedChallenge{rec: rec, current: cloneChallenge(rec.challenge)}
	if err := fn(tx); err != nil {
		return err
	}
	if tx.saved {
		rec.challenge = cloneChallenge(tx.current)
	}
	return nil
}

func (s *ChallengeStore) record(challengeID string) (*challengeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[challengeID]
	if !ok {
		return nil, domain.ErrChallengeNotFound
	}
	return rec, nil
}

func (s *ChallengeStore) filter(keep func(domain.Challenge) bool) []domain.Challenge {
	s.mu.RLock()
	records := make([]*challengeRecord, 0, len(s.records))
	for _, rec := range s.records {
		records = append(records, rec)
	}
	s.mu.RUnlock()

	var out []domain.Challenge
	for _, rec := range records {
		rec.mu.Lock()
		ch := cloneChallenge(rec.challenge)
		rec.mu.Unlock()
		if keep(ch) {
			out = append(out, ch)
		}
	}
	return out
}

// addAttempt returns the user's attempt, creating it if needed. Caller holds rec.mu.
func (r *challengeRecord) addAttempt(userID string) *domain.Attempt {
	if a, ok := r.attempts[userID]; ok {
		return a
	}
	a := &domain.Attempt{ChallengeID: r.challenge.ID, UserID: userID}
	r.attempts[userID] = a
	r.order = append(r.order, userID)
	return a
}

func (r *challengeRecord) snapshotAttempts() []domain.Attempt {
	out := make([]domain.Attempt, 0, len(r.order))
	for _, userID := range r.order {
		out = append(out, cloneAttempt(*r.attempts[userID]))
	}
	return out
}

type lockedChallenge struct {
	rec     *challengeRecord
	current domain.Challenge
	saved   bool
}

func (t *lockedChallenge) Challenge() domain.Challenge {
	return cloneChallenge(t.current)
}

func (t *lockedChallenge) Attempts(context.Context) ([]domain.Attempt, error) {
	return t.rec.snapshotAttempts(), nil
}

func (t *lockedChallenge) Save(_ context.Context, ch domain.Challenge) error {
	if ch.ID != t.current.ID {
		return fmt.Errorf("save challenge %s under lock for %s", ch.ID, t.current.ID)
	}
	t.current = cloneChallenge(ch)
	t.saved = true
	return nil
}

func cloneChallenge(ch domain.Challenge) domain.Challenge {
	out := ch
	out.QuestionIDs = append([]string(nil), ch.QuestionIDs...)
	out.Config.Topics = append([]string(nil), ch.Config.Topics...)
	out.Config.Sections = append([]string(nil), ch.Config.Sections...)
	out.ChallengerPoints = cloneInt(ch.ChallengerPoints)
	out.OpponentPoints = cloneInt(ch.OpponentPoints)
	out.AcceptedAt = cloneTime(ch.AcceptedAt)
	out.StartedAt = cloneTime(ch.StartedAt)
	out.CompletedAt = cloneTime(ch.CompletedAt)
	return out
}

func cloneAttempt(a domain.Attempt) domain.Attempt {
	out := a
	out.StartTime = cloneTime(a.StartTime)
	out.EndTime = cloneTime(a.EndTime)
	return out
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	out := *t
	return &out
}
