package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"challenge-service/internal/app"
	"challenge-service/internal/domain"
)

func TestChallengeStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewChallengeStore()
	ch := domain.Challenge{
		ID:           "c1",
		ChallengerID: "alice",
		OpponentID:   "bob",
		Status:       domain.StatusPendingInvite,
		QuestionIDs:  []string{"q1", "q2"},
		CreatedAt:    time.Now(),
	}
	if err := store.Create(ctx, ch, []domain.Attempt{{ChallengeID: "c1", UserID: "alice"}}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, ch, nil); err == nil {
		t.Fatalf("expected duplicate create to fail")
	}

	next := ch
	next.Status = domain.StatusAccepted
	ok, err := store.SwapStatus(ctx, next, domain.StatusPendingInvite)
	if err != nil || !ok {
		t.Fatalf("expected swap, got ok=%v err=%v", ok, err)
	}
	ok, _ = store.SwapStatus(ctx, next, domain.StatusPendingInvite)
	if ok {
		t.Fatalf("expected stale swap to be rejected")
	}

	if err := store.EnsureAttempt(ctx, "c1", "bob"); err != nil {
		t.Fatalf("ensure attempt: %v", err)
	}
	_ = store.EnsureAttempt(ctx, "c1", "bob")
	attempts, _ := store.Attempts(ctx, "c1")
	if len(attempts) != 2 || attempts[0].UserID != "alice" || attempts[1].UserID != "bob" {
		t.Fatalf("expected alice and bob attempts in order, got %+v", attempts)
	}

	changed, _ := store.MarkReady(ctx, "c1", "alice", time.Now())
	again, _ := store.MarkReady(ctx, "c1", "alice", time.Now())
	if !changed || again {
		t.Fatalf("expected ready to change once, got %v then %v", changed, again)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, domain.ErrChallengeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRecordAnswerIsWriteOnce(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t)

	a, err := store.RecordAnswer(ctx, domain.Answer{ChallengeID: "c1", UserID: "alice", QuestionID: "q1", Correct: true})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if a.Score != 1 || a.Answered != 1 {
		t.Fatalf("expected score 1 answered 1, got %+v", a)
	}

	_, err = store.RecordAnswer(ctx, domain.Answer{ChallengeID: "c1", UserID: "alice", QuestionID: "q1", Correct: true})
	if !errors.Is(err, domain.ErrDuplicateAnswer) {
		t.Fatalf("expected duplicate answer, got %v", err)
	}
	attempts, _ := store.Attempts(ctx, "c1")
	if attempts[0].Score != 1 || attempts[0].Answered != 1 {
		t.Fatalf("duplicate changed attempt: %+v", attempts[0])
	}
}

func TestRecordAnswerConcurrentSameQuestion(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t)

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.RecordAnswer(ctx, domain.Answer{ChallengeID: "c1", UserID: "bob", QuestionID: "q2", Correct: true}); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if accepted != 1 {
		t.Fatalf("expected exactly one accepted answer, got %d", accepted)
	}
	attempts, _ := store.Attempts(ctx, "c1")
	if attempts[1].Score != 1 {
		t.Fatalf("expected score 1, got %d", attempts[1].Score)
	}
}

func TestWithLockCommitsOnlyOnSuccess(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t)

	boom := errors.New("boom")
	err := store.WithLock(ctx, "c1", func(tx app.LockedChallenge) error {
		ch := tx.Challenge()
		ch.Status = domain.StatusCompleted
		if err := tx.Save(ctx, ch); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	ch, _ := store.Get(ctx, "c1")
	if ch.Status != domain.StatusOngoing {
		t.Fatalf("expected rollback, got %s", ch.Status)
	}

	err = store.WithLock(ctx, "c1", func(tx app.LockedChallenge) error {
		ch := tx.Challenge()
		ch.Status = domain.StatusCompleted
		return tx.Save(ctx, ch)
	})
	if err != nil {
		t.Fatalf("with lock: %v", err)
	}
	ch, _ = store.Get(ctx, "c1")
	if ch.Status != domain.StatusCompleted {
		t.Fatalf("expected commit, got %s", ch.Status)
	}
}

func TestListStaleAndForUser(t *testing.T) {
	ctx := context.Background()
	store := NewChallengeStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, status := range []domain.Status{domain.StatusPendingInvite, domain.StatusPendingInvite, domain.StatusOngoing} {
		ch := domain.Challenge{
			ID:           string(rune('a' + i)),
			ChallengerID: "alice",
			Status:       status,
			CreatedAt:    base.Add(time.Duration(i) * time.Hour),
		}
		if err := store.Create(ctx, ch, nil); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	ids, _ := store.ListStale(ctx, domain.StatusPendingInvite, base.Add(30*time.Minute))
	if len(ids) != 1 || ids[0] != "a" {
		t.Fatalf("expected only a, got %v", ids)
	}

	list, _ := store.ListForUser(ctx, "alice", 2)
	if len(list) != 2 || list[0].ID != "c" {
		t.Fatalf("expected newest first with limit, got %+v", list)
	}
	if list, _ := store.ListForUser(ctx, "nobody", 10); len(list) != 0 {
		t.Fatalf("expected empty list, got %d", len(list))
	}
}

func seededStore(t *testing.T) *ChallengeStore {
	t.Helper()
	store := NewChallengeStore()
	err := store.Create(context.Background(), domain.Challenge{
		ID:           "c1",
		ChallengerID: "alice",
		OpponentID:   "bob",
		Status:       domain.StatusOngoing,
		QuestionIDs:  []string{"q1", "q2"},
	}, []domain.Attempt{{ChallengeID: "c1", UserID: "alice"}, {ChallengeID: "c1", UserID: "bob"}})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return store
}
