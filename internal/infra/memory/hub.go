package memory

import (
	"context"
	"sync"
	"time"

	"challenge-service/internal/domain"
)

const subscriberBuffer = 32

// Hub is an in-process implementation of app.Broadcaster. Subscribers register
// for one or more broadcast groups and receive envelopes on a buffered channel.
type Hub struct {
	now func() time.Time

	mu     sync.RWMutex
	groups map[string]map[*subscription]struct{}
}

type subscription struct {
	ch     chan domain.Envelope
	groups []string
	closed bool
}

func NewHub() *Hub {
	return &Hub{
		now:    time.Now,
		groups: make(map[string]map[*subscription]struct{}),
	}
}

// Publish delivers an event to every subscriber of group.
func (h *Hub) Publish(_ context.Context, group, eventType string, payload any) error {
	h.Deliver(domain.Envelope{Group: group, Type: eventType, Payload: payload, SentAt: h.now().UTC()})
	return nil
}

// Deliver fans an already built envelope out to local subscribers.
func (h *Hub) Deliver(env domain.Envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.groups[env.Group] {
		select {
		case sub.ch <- env:
		default:
			// Drop the oldest queued event so a slow client never blocks publishers.
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- env:
			default:
			}
		}
	}
}

// Subscribe registers for the given groups. The caller must invoke the
// returned cancel function to avoid leaks.
func (h *Hub) Subscribe(groups ...string) (<-chan domain.Envelope, func()) {
	sub := &subscription{
		ch:     make(chan domain.Envelope, subscriberBuffer),
		groups: append([]string(nil), groups...),
	}

	h.mu.Lock()
	for _, g := range sub.groups {
		if h.groups[g] == nil {
			h.groups[g] = make(map[*subscription]struct{})
		}
		h.groups[g][sub] = struct{}{}
	}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub.closed {
			return
		}
		sub.closed = true
		for _, g := range sub.groups {
			delete(h.groups[g], sub)
			if len(h.groups[g]) == 0 {
				delete(h.groups, g)
			}
		}
		close(sub.ch)
	}
	return sub.ch, cancel
}

// Subscribers reports how many subscriptions a group has.
func (h *Hub) Subscribers(group string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[group])
}
