package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Event types carried on the change propagation bus. Delivery is
// at-least-once and not ordered across rows; consumers reconcile by
// re-reading current state, never by trusting the stream alone.
const (
	EventSessionStatusChanged = "session_status_changed"
	EventQuestionChanged      = "question_changed"
	EventResponseInserted     = "response_inserted"
	EventPresenceSynced       = "presence_synced"
)

type Event struct {
	Type      string      `json:"type"`
	SessionID uint        `json:"session_id"`
	Payload   interface{} `json:"payload,omitempty"`
}

// Bus delivers row-mutation events to every subscriber of a session.
type Bus interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(ctx context.Context, sessionID uint) (*Subscription, error)
}

// Subscription is one client's session-scoped feed. Close releases it;
// closing twice is safe. A signal on Resync means the transport dropped
// messages (or reconnected) and the consumer must re-fetch current state.
type Subscription struct {
	events   chan Event
	resync   chan struct{}
	teardown func()
	once     sync.Once
}

func (s *Subscription) Events() <-chan Event    { return s.events }
func (s *Subscription) Resync() <-chan struct{} { return s.resync }

func (s *Subscription) Close() {
	s.once.Do(s.teardown)
}

func (s *Subscription) signalResync() {
	select {
	case s.resync <- struct{}{}:
	default:
	}
}

// MemoryBus is an in-process Bus for tests and single-node deployments.
type MemoryBus struct {
	mu   sync.RWMutex
	subs map[uint]map[*Subscription]bool
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[uint]map[*Subscription]bool)}
}

func (b *MemoryBus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs[event.SessionID] {
		select {
		case sub.events <- event:
		default:
			// Slow consumer: the event is dropped, so force a full resync.
			sub.signalResync()
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, sessionID uint) (*Subscription, error) {
	sub := &Subscription{
		events: make(chan Event, 64),
		resync: make(chan struct{}, 1),
	}
	sub.teardown = func() {
		b.mu.Lock()
		if subs, ok := b.subs[sessionID]; ok {
			delete(subs, sub)
			if len(subs) == 0 {
				delete(b.subs, sessionID)
			}
		}
		b.mu.Unlock()
		close(sub.events)
	}

	b.mu.Lock()
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[*Subscription]bool)
	}
	b.subs[sessionID][sub] = true
	b.mu.Unlock()

	return sub, nil
}

// RedisBus propagates events through Redis pub/sub so every server instance
// sees mutations made by any other.
type RedisBus struct {
	client *redis.Client
}

func NewRedisBus(client *redis.Client) *RedisBus {
	return &RedisBus{client: client}
}

func sessionChannel(sessionID uint) string {
	return fmt.Sprintf("livepoll:session:%d", sessionID)
}

func (b *RedisBus) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %v", err)
	}
	return b.client.Publish(ctx, sessionChannel(event.SessionID), data).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context, sessionID uint) (*Subscription, error) {
	pumpCtx, cancel := context.WithCancel(context.Background())
	sub := &Subscription{
		events: make(chan Event, 64),
		resync: make(chan struct{}, 1),
	}
	sub.teardown = cancel

	go b.pump(pumpCtx, sessionID, sub)
	return sub, nil
}

// pump keeps a Redis subscription alive for the life of sub, resubscribing
// with backoff after transport drops and signaling a resync each time.
func (b *RedisBus) pump(ctx context.Context, sessionID uint, sub *Subscription) {
	defer close(sub.events)

	backoff := time.Second
	first := true
	for ctx.Err() == nil {
		ok := b.consume(ctx, sessionID, sub, first)
		if ctx.Err() != nil {
			return
		}
		if ok {
			backoff = time.Second
			first = false
			continue
		}

		log.Printf("Bus subscription for session %d dropped, retrying in %s", sessionID, backoff)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

// consume runs one subscribe attempt; it returns true once messages flowed.
func (b *RedisBus) consume(ctx context.Context, sessionID uint, sub *Subscription, first bool) bool {
	pubsub := b.client.Subscribe(ctx, sessionChannel(sessionID))
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return false
	}

	// A reconnect means events may have been missed while detached.
	if !first {
		sub.signalResync()
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			pubsub.Close()
		case <-done:
		}
	}()

	for msg := range pubsub.Channel() {
		var event Event
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			log.Printf("Dropping undecodable bus message on session %d: %v", sessionID, err)
			continue
		}
		select {
		case sub.events <- event:
		default:
			sub.signalResync()
		}
	}
	return true
}
