package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"challenge-service/internal/domain"
	"challenge-service/internal/infra/memory"
	miniredis "github.com/alicebob/miniredis/v2"
)

func TestBroadcasterRelaysToHub(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)
	hub := memory.NewHub()
	events, cancelSub := hub.Subscribe(domain.ChallengeGroup("c1"))
	defer cancelSub()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := NewBroadcaster(client, nil)
	ready := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Relay(ctx, hub, func() { close(ready) })
	}()

	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatalf("relay never subscribed")
	}

	payload := domain.ParticipantPayload{ChallengeID: "c1", UserID: "alice", Score: 2, Answered: 3}
	if err := b.Publish(ctx, domain.ChallengeGroup("c1"), domain.EventParticipantUpdate, payload); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case env := <-events:
		if env.Type != domain.EventParticipantUpdate {
			t.Fatalf("unexpected event %s", env.Type)
		}
		raw, ok := env.Payload.(json.RawMessage)
		if !ok {
			t.Fatalf("expected raw payload, got %T", env.Payload)
		}
		var got domain.ParticipantPayload
		if err := json.Unmarshal(raw, &got); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if got != payload {
			t.Fatalf("payload mismatch: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("event not relayed")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("relay did not stop")
	}
}

func TestBroadcasterPublishesOnGroupChannel(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)
	sub := client.Subscribe(context.Background(), channelPrefix+domain.UserGroup("bob"))
	defer sub.Close()
	if _, err := sub.Receive(context.Background()); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	b := NewBroadcaster(client, nil)
	if err := b.Publish(context.Background(), domain.UserGroup("bob"), domain.EventChallengeUpdate, map[string]string{"id": "c9"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case msg := <-sub.Channel():
		var env wireEnvelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if env.Group != domain.UserGroup("bob") || env.Type != domain.EventChallengeUpdate {
			t.Fatalf("unexpected envelope %+v", env)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("message not received")
	}
}
