package app

import (
	"context"
	"fmt"
)

// OpponentMatcher resolves a random opponent for matchmaking challenges.
type OpponentMatcher struct {
	users UserDirectory
}

func NewOpponentMatcher(users UserDirectory) *OpponentMatcher {
	return &OpponentMatcher{users: users}
}

// Match returns another eligible user, or ok=false when nobody is available.
func (m *OpponentMatcher) Match(ctx context.Context, challengerID string) (string, bool, error) {
	if m.users == nil {
		return "", false, nil
	}
	opponent, ok, err := m.users.FindRandomEligibleOpponent(ctx, challengerID)
	if err != nil {
		return "", false, fmt.Errorf("find opponent: %w", err)
	}
	if !ok || opponent == "" || opponent == challengerID {
		return "", false, nil
	}
	return opponent, true, nil
}
