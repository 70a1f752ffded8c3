package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"challenge-service/internal/app"
	"challenge-service/internal/domain"
	"challenge-service/internal/infra/memory"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestAnswerCacheCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	bank := &countingBank{QuestionBank: memory.NewStaticQuestionBank(sampleQuestions())}
	cache := NewAnswerCache(newClient(mr), bank, time.Minute)

	choice, err := cache.CorrectChoice(context.Background(), "q1")
	if err != nil {
		t.Fatalf("correct choice: %v", err)
	}
	if choice != "b" {
		t.Fatalf("expected b, got %s", choice)
	}
	if bank.calls != 1 {
		t.Fatalf("expected bank called once, got %d", bank.calls)
	}

	// Second call should hit redis.
	if _, err := cache.CorrectChoice(context.Background(), "q1"); err != nil {
		t.Fatalf("correct choice 2: %v", err)
	}
	if bank.calls != 1 {
		t.Fatalf("expected cache hit, bank calls=%d", bank.calls)
	}

	if got, _ := mr.Get("question:q1:answer"); got != "b" {
		t.Fatalf("expected key in redis, got %q", got)
	}
	if ttl := mr.TTL("question:q1:answer"); ttl < time.Minute || ttl > time.Minute+6*time.Second {
		t.Fatalf("unexpected ttl %v", ttl)
	}
}

func TestAnswerCacheExpires(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	bank := &countingBank{QuestionBank: memory.NewStaticQuestionBank(sampleQuestions())}
	cache := NewAnswerCache(newClient(mr), bank, time.Minute)

	if _, err := cache.CorrectChoice(context.Background(), "q2"); err != nil {
		t.Fatalf("correct choice: %v", err)
	}
	mr.FastForward(2 * time.Minute)
	if _, err := cache.CorrectChoice(context.Background(), "q2"); err != nil {
		t.Fatalf("correct choice after expiry: %v", err)
	}
	if bank.calls != 2 {
		t.Fatalf("expected reload after expiry, bank calls=%d", bank.calls)
	}
}

func TestAnswerCacheUnknownQuestion(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	cache := NewAnswerCache(newClient(mr), memory.NewStaticQuestionBank(sampleQuestions()), time.Minute)
	_, err = cache.CorrectChoice(context.Background(), "missing")
	if !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected ErrQuestionNotFound, got %v", err)
	}
	if mr.Exists("question:missing:answer") {
		t.Fatalf("missing question must not be cached")
	}
}

func TestAnswerCachePrime(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	bank := &countingBank{QuestionBank: memory.NewStaticQuestionBank(sampleQuestions())}
	cache := NewAnswerCache(newClient(mr), bank, time.Minute)

	if _, err := cache.CorrectChoice(context.Background(), "q1"); err != nil {
		t.Fatalf("correct choice: %v", err)
	}
	if err := cache.Prime(context.Background(), []string{"q1", "q2", "q3"}); err != nil {
		t.Fatalf("prime: %v", err)
	}
	// q1 was already cached, so only q2 and q3 hit the bank.
	if bank.calls != 3 {
		t.Fatalf("expected 3 bank calls, got %d", bank.calls)
	}
	for _, id := range []string{"q1", "q2", "q3"} {
		if !mr.Exists("question:" + id + ":answer") {
			t.Fatalf("expected %s primed", id)
		}
	}
}

type countingBank struct {
	app.QuestionBank
	calls int
}

func (b *countingBank) CorrectChoice(ctx context.Context, questionID string) (string, error) {
	b.calls++
	return b.QuestionBank.CorrectChoice(ctx, questionID)
}

func sampleQuestions() []memory.Question {
	return []memory.Question{
		{ID: "q1", Topic: "grammar", Section: "verbs", CorrectChoice: "b", Active: true},
		{ID: "q2", Topic: "grammar", Section: "nouns", CorrectChoice: "a", Active: true},
		{ID: "q3", Topic: "vocabulary", Section: "travel", CorrectChoice: "d", Active: true},
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}
