package memory

import (
	"context"
	"sync"

	"challenge-service/internal/domain"
)

// Award is one recorded scoring callback invocation.
type Award struct {
	UserID      string
	Points      int
	Reason      domain.AwardReason
	ChallengeID string
}

// Ledger records points and badges in memory. It implements app.Scorer and
// app.BadgeChecker.
type Ledger struct {
	mu     sync.Mutex
	awards []Award
	badges map[string][]domain.BadgeKind
}

func NewLedger() *Ledger {
	return &Ledger{badges: make(map[string][]domain.BadgeKind)}
}

func (l *Ledger) Award(_ context.Context, userID string, points int, reason domain.AwardReason, challengeID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.awards = append(l.awards, Award{UserID: userID, Points: points, Reason: reason, ChallengeID: challengeID})
	return nil
}

func (l *Ledger) CheckAndAward(_ context.Context, userID string, kind domain.BadgeKind) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, k := range l.badges[userID] {
		if k == kind {
			return nil
		}
	}
	l.badges[userID] = append(l.badges[userID], kind)
	return nil
}

// Awards returns every recorded award, optionally restricted to one challenge.
func (l *Ledger) Awards(challengeID string) []Award {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Award
	for _, a := range l.awards {
		if challengeID == "" || a.ChallengeID == challengeID {
			out = append(out, a)
		}
	}
	return out
}

// Total sums the points awarded to a user.
func (l *Ledger) Total(userID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := 0
	for _, a := range l.awards {
		if a.UserID == userID {
			total += a.Points
		}
	}
	return total
}

// Badges returns the badges held by a user.
func (l *Ledger) Badges(userID string) []domain.BadgeKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.BadgeKind(nil), l.badges[userID]...)
}
