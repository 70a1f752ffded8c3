package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"challenge-service/internal/domain"
)

// Question is the slice of question content the challenge engine needs.
type Question struct {
	ID            string `json:"id" yaml:"id"`
	Topic         string `json:"topic" yaml:"topic"`
	Section       string `json:"section" yaml:"section"`
	CorrectChoice string `json:"correctChoice" yaml:"correct_choice"`
	Active        bool   `json:"active" yaml:"active"`
}

// StaticQuestionBank is a question bank backed by an in-memory list (useful for tests/demos).
type StaticQuestionBank struct {
	mu        sync.Mutex
	rnd       *rand.Rand
	questions []Question
	byID      map[string]Question
}

func NewStaticQuestionBank(questions []Question) *StaticQuestionBank {
	byID := make(map[string]Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	return &StaticQuestionBank{
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
		questions: append([]Question(nil), questions...),
		byID:      byID,
	}
}

// SelectActive samples up to limit active questions matching filter, without replacement.
func (b *StaticQuestionBank) SelectActive(_ context.Context, filter domain.QuestionFilter, limit int) ([]string, error) {
	pool := make([]string, 0, len(b.questions))
	for _, q := range b.questions {
		if q.Active && matches(filter.Topics, q.Topic) && matches(filter.Sections, q.Section) {
			pool = append(pool, q.ID)
		}
	}

	b.mu.Lock()
	perm := b.rnd.Perm(len(pool))
	b.mu.Unlock()

	if limit <= 0 || limit > len(pool) {
		limit = len(pool)
	}
	out := make([]string, 0, limit)
	for _, idx := range perm[:limit] {
		out = append(out, pool[idx])
	}
	return out, nil
}

func (b *StaticQuestionBank) CorrectChoice(_ context.Context, questionID string) (string, error) {
	q, ok := b.byID[questionID]
	if !ok {
		return "", domain.ErrQuestionNotFound
	}
	return q.CorrectChoice, nil
}

func matches(allowed []string, value string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == value {
			return true
		}
	}
	return false
}
