package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// UserDirectory is a static list of active users.
type UserDirectory struct {
	mu    sync.Mutex
	rnd   *rand.Rand
	users []string
}

func NewUserDirectory(users ...string) *UserDirectory {
	return &UserDirectory{
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
		users: append([]string(nil), users...),
	}
}

func (d *UserDirectory) FindRandomEligibleOpponent(_ context.Context, excluding string) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	candidates := make([]string, 0, len(d.users))
	for _, u := range d.users {
		if u != excluding {
			candidates = append(candidates, u)
		}
	}
	if len(candidates) == 0 {
		return "", false, nil
	}
	return candidates[d.rnd.Intn(len(candidates))], true, nil
}
