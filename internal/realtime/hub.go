// Package realtime implements C11 RealtimeBus: a topic-per-event channel
// the engine publishes typed state-change messages to. Delivery is
// at-most-once; subscribers that lag beyond a bounded buffer are dropped
// rather than backpressuring the publisher (§5 Backpressure).
package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/geocoder89/eventhub/internal/domain/event"
)

// ChangeKind enumerates every state-change message the engine emits.
type ChangeKind string

const (
	ChangeUserSignedUp         ChangeKind = "user_signed_up"
	ChangeUserCancelled        ChangeKind = "user_cancelled"
	ChangeUserRemoved          ChangeKind = "user_removed"
	ChangeUserMoved            ChangeKind = "user_moved"
	ChangeUserAssigned         ChangeKind = "user_assigned"
	ChangeWorkshopTopicUpdated ChangeKind = "workshop_topic_updated"
	ChangeEventUpdated         ChangeKind = "event_updated"
)

// Message is what subscribers receive: the event id, the change kind, the
// primary ids involved, and a freshly built event view for UI replacement.
type Message struct {
	EventID string         `json:"eventId"`
	Kind    ChangeKind     `json:"kind"`
	UserID  string         `json:"userId,omitempty"`
	RoleID  string         `json:"roleId,omitempty"`
	Event   *event.Event   `json:"event,omitempty"`
}

const subscriberBuffer = 32

type subscriber struct {
	ch chan Message
}

// Hub is the in-process half of RealtimeBus: one topic per eventId, fanned
// out to every local subscriber. When constructed with a Redis client it
// also publishes every message to a Redis pub/sub channel so other API
// replicas' Hubs can relay it to their own local subscribers.
type Hub struct {
	mu          sync.RWMutex
	topics      map[string]map[*subscriber]struct{}
	dropCounter prometheus.Counter

	redis *redis.Client
}

func NewHub(dropCounter prometheus.Counter) *Hub {
	return &Hub{
		topics:      make(map[string]map[*subscriber]struct{}),
		dropCounter: dropCounter,
	}
}

// WithRedis wires a Redis pub/sub backing channel so Publish calls made on
// this process are relayed to every other replica's Hub. Safe to call once
// at startup; returns h for chaining.
func (h *Hub) WithRedis(client *redis.Client) *Hub {
	h.redis = client
	return h
}

// Subscribe opens a bounded channel for eventId's topic. The returned
// unsubscribe func must be called when the caller is done listening.
func (h *Hub) Subscribe(eventID string) (<-chan Message, func()) {
	sub := &subscriber{ch: make(chan Message, subscriberBuffer)}

	h.mu.Lock()
	if h.topics[eventID] == nil {
		h.topics[eventID] = make(map[*subscriber]struct{})
	}
	h.topics[eventID][sub] = struct{}{}
	h.mu.Unlock()

	unsubscribe := func() {
		h.mu.Lock()
		delete(h.topics[eventID], sub)
		if len(h.topics[eventID]) == 0 {
			delete(h.topics, eventID)
		}
		h.mu.Unlock()
		close(sub.ch)
	}

	return sub.ch, unsubscribe
}

// Publish delivers msg to every local subscriber of msg.EventID's topic,
// dropping to any subscriber whose buffer is full (lagging reader) rather
// than blocking the publisher, and relays to Redis if wired.
func (h *Hub) Publish(ctx context.Context, msg Message) {
	h.mu.RLock()
	subs := h.topics[msg.EventID]
	targets := make([]*subscriber, 0, len(subs))
	for s := range subs {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		select {
		case s.ch <- msg:
		default:
			if h.dropCounter != nil {
				h.dropCounter.Inc()
			}
		}
	}

	if h.redis != nil {
		if b, err := json.Marshal(msg); err == nil {
			h.redis.Publish(ctx, "eventhub:realtime:"+msg.EventID, b)
		}
	}
}

// RelayFromRedis subscribes to the Redis pub/sub pattern channel and
// forwards every message into this Hub's local subscribers, so a change
// published by another replica still reaches clients connected to this
// one. Intended to be run once in a background goroutine for the process
// lifetime; returns when ctx is cancelled.
func (h *Hub) RelayFromRedis(ctx context.Context) error {
	if h.redis == nil {
		return nil
	}
	ps := h.redis.PSubscribe(ctx, "eventhub:realtime:*")
	defer ps.Close()

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var msg Message
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				continue
			}
			h.publishLocalOnly(msg)
		}
	}
}

// publishLocalOnly delivers to local subscribers without re-publishing to
// Redis, avoiding an infinite relay loop between replicas.
func (h *Hub) publishLocalOnly(msg Message) {
	h.mu.RLock()
	subs := h.topics[msg.EventID]
	targets := make([]*subscriber, 0, len(subs))
	for s := range subs {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		select {
		case s.ch <- msg:
		default:
			if h.dropCounter != nil {
				h.dropCounter.Inc()
			}
		}
	}
}
