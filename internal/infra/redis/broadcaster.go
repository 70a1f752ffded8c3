package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"challenge-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const channelPrefix = "challenges:events:"

// Sink receives envelopes relayed from Redis, typically the local hub.
type Sink interface {
	Deliver(env domain.Envelope)
}

// Broadcaster publishes challenge events on Redis pub/sub so every instance
// can fan them out to its own websocket clients.
type Broadcaster struct {
	client *redis.Client
	now    func() time.Time
	logger *zap.Logger
}

func NewBroadcaster(client *redis.Client, logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{client: client, now: time.Now, logger: logger}
}

func (b *Broadcaster) Publish(ctx context.Context, group, eventType string, payload any) error {
	data, err := json.Marshal(domain.Envelope{
		Group:   group,
		Type:    eventType,
		Payload: payload,
		SentAt:  b.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	return b.client.Publish(ctx, channelPrefix+group, data).Err()
}

type wireEnvelope struct {
	Group   string          `json:"group"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	SentAt  time.Time       `json:"sentAt"`
}

// Relay forwards every published envelope to sink until ctx is done. The
// ready callback, if set, runs once the pattern subscription is active.
func (b *Broadcaster) Relay(ctx context.Context, sink Sink, ready func()) error {
	sub := b.client.PSubscribe(ctx, channelPrefix+"*")
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to challenge events: %w", err)
	}
	if ready != nil {
		ready()
	}

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			var env wireEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.logger.Warn("drop malformed event", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			sink.Deliver(domain.Envelope{Group: env.Group, Type: env.Type, Payload: env.Payload, SentAt: env.SentAt})
		}
	}
}
