package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"challenge-service/internal/app"
	"challenge-service/internal/domain"
	"challenge-service/internal/metrics"
	"golang.org/x/sync/singleflight"
)

// CachedQuestionBank caches correct choices with TTL to avoid repeated DB hits.
// Selection always goes to the backing bank.
type CachedQuestionBank struct {
	bank  app.QuestionBank
	ttl   time.Duration
	clock func() time.Time
	sf    singleflight.Group

	mu    sync.RWMutex
	rnd   *rand.Rand
	cache map[string]cachedChoice
}

type cachedChoice struct {
	choice    string
	expiresAt time.Time
}

func NewCachedQuestionBank(bank app.QuestionBank, ttl time.Duration) *CachedQuestionBank {
	return &CachedQuestionBank{
		bank:  bank,
		ttl:   ttl,
		clock: time.Now,
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
		cache: make(map[string]cachedChoice),
	}
}

func (c *CachedQuestionBank) SelectActive(ctx context.Context, filter domain.QuestionFilter, limit int) ([]string, error) {
	return c.bank.SelectActive(ctx, filter, limit)
}

func (c *CachedQuestionBank) CorrectChoice(ctx context.Context, questionID string) (string, error) {
	if choice, ok := c.lookup(questionID); ok {
		metrics.CacheHits.WithLabelValues("memory").Inc()
		return choice, nil
	}
	metrics.CacheMisses.WithLabelValues("memory").Inc()

	result, err, _ := c.sf.Do(questionID, func() (interface{}, error) {
		// Re-check in case another goroutine filled it.
		if choice, ok := c.lookup(questionID); ok {
			return choice, nil
		}
		choice, err := c.bank.CorrectChoice(ctx, questionID)
		if err != nil {
			return "", err
		}

		c.mu.Lock()
		c.cache[questionID] = cachedChoice{
			choice:    choice,
			expiresAt: c.clock().Add(c.ttlWithJitterLocked()),
		}
		c.mu.Unlock()
		return choice, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (c *CachedQuestionBank) lookup(questionID string) (string, bool) {
	now := c.clock()
	c.mu.RLock()
	defer c.mu.RUnlock()
	if entry, ok := c.cache[questionID]; ok && entry.expiresAt.After(now) {
		return entry.choice, true
	}
	return "", false
}

func (c *CachedQuestionBank) ttlWithJitterLocked() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
