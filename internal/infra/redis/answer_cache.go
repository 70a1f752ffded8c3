package redis

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"challenge-service/internal/app"
	"challenge-service/internal/domain"
	"challenge-service/internal/metrics"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// AnswerCache caches correct choices in Redis and falls back to the question
// bank on a miss. Keys: question:{questionID}:answer -> choice.
type AnswerCache struct {
	client *redis.Client
	bank   app.QuestionBank
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewAnswerCache(client *redis.Client, bank app.QuestionBank, ttl time.Duration) *AnswerCache {
	return &AnswerCache{
		client: client,
		bank:   bank,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *AnswerCache) SelectActive(ctx context.Context, filter domain.QuestionFilter, limit int) ([]string, error) {
	return c.bank.SelectActive(ctx, filter, limit)
}

func (c *AnswerCache) CorrectChoice(ctx context.Context, questionID string) (string, error) {
	key := c.key(questionID)
	if choice, err := c.client.Get(ctx, key).Result(); err == nil {
		metrics.CacheHits.WithLabelValues("redis").Inc()
		return choice, nil
	}
	metrics.CacheMisses.WithLabelValues("redis").Inc()

	result, err, _ := c.sf.Do(questionID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if choice, err := c.client.Get(ctx, key).Result(); err == nil {
			return choice, nil
		}
		choice, err := c.bank.CorrectChoice(ctx, questionID)
		if err != nil {
			return "", err
		}
		// best effort; the bank stays authoritative
		_ = c.client.Set(ctx, key, choice, c.ttlWithJitter()).Err()
		return choice, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// Prime loads the answer keys of a freshly frozen question set in one pipeline.
func (c *AnswerCache) Prime(ctx context.Context, questionIDs []string) error {
	if len(questionIDs) == 0 {
		return nil
	}
	keys := make([]string, len(questionIDs))
	for i, id := range questionIDs {
		keys[i] = c.key(id)
	}
	cached, err := c.client.MGet(ctx, keys...).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}

	pipe := c.client.Pipeline()
	queued := 0
	for i, id := range questionIDs {
		if i < len(cached) && cached[i] != nil {
			continue
		}
		choice, err := c.bank.CorrectChoice(ctx, id)
		if err != nil {
			return err
		}
		pipe.Set(ctx, keys[i], choice, c.ttlWithJitter())
		queued++
	}
	if queued == 0 {
		return nil
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (c *AnswerCache) key(questionID string) string {
	return "question:" + questionID + ":answer"
}

func (c *AnswerCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
