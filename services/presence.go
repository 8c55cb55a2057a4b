package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// How long a participant stays present without a heartbeat. Connections
// refresh this on every heartbeat; a dead connection just expires.
const presenceTTL = 45 * time.Second

type PresenceEntry struct {
	ParticipantID string    `json:"participant_id"`
	DisplayName   string    `json:"display_name"`
	JoinedAt      time.Time `json:"joined_at"`
}

// Presence tracks the ephemeral set of connected participants per session.
// There is no durable backing store; entries vanish when their TTL lapses.
// Late observers reconstruct state from Snapshot, not from join events.
type Presence interface {
	Join(ctx context.Context, sessionID uint, entry PresenceEntry) error
	Heartbeat(ctx context.Context, sessionID uint, participantID string) error
	Leave(ctx context.Context, sessionID uint, participantID string) error
	Snapshot(ctx context.Context, sessionID uint) ([]PresenceEntry, error)
}

func presenceKey(sessionID uint, participantID string) string {
	return fmt.Sprintf("livepoll:presence:%d:%s", sessionID, participantID)
}

func presencePattern(sessionID uint) string {
	return fmt.Sprintf("livepoll:presence:%d:*", sessionID)
}

// RedisPresence keeps one TTL'd key per connected participant.
type RedisPresence struct {
	client *redis.Client
}

func NewRedisPresence(client *redis.Client) *RedisPresence {
	return &RedisPresence{client: client}
}

func (p *RedisPresence) Join(ctx context.Context, sessionID uint, entry PresenceEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal presence entry: %v", err)
	}
	return p.client.Set(ctx, presenceKey(sessionID, entry.ParticipantID), data, presenceTTL).Err()
}

func (p *RedisPresence) Heartbeat(ctx context.Context, sessionID uint, participantID string) error {
	ok, err := p.client.Expire(ctx, presenceKey(sessionID, participantID), presenceTTL).Result()
	if err != nil {
		return err
	}
	if !ok {
		// Entry already expired; the caller should re-join.
		return fmt.Errorf("%w: participant %s is not present", ErrNotFound, participantID)
	}
	return nil
}

func (p *RedisPresence) Leave(ctx context.Context, sessionID uint, participantID string) error {
	return p.client.Del(ctx, presenceKey(sessionID, participantID)).Err()
}

func (p *RedisPresence) Snapshot(ctx context.Context, sessionID uint) ([]PresenceEntry, error) {
	var entries []PresenceEntry

	iter := p.client.Scan(ctx, 0, presencePattern(sessionID), 100).Iterator()
	for iter.Next(ctx) {
		data, err := p.client.Get(ctx, iter.Val()).Result()
		if err != nil {
			if err != redis.Nil {
				log.Printf("Presence read failed for %s: %v", iter.Val(), err)
			}
			continue // expired between scan and get
		}
		var entry PresenceEntry
		if err := json.Unmarshal([]byte(data), &entry); err != nil {
			log.Printf("Dropping undecodable presence entry %s: %v", iter.Val(), err)
			continue
		}
		entries = append(entries, entry)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}

	sortPresence(entries)
	return entries, nil
}

// MemoryPresence is an in-process Presence for tests and single-node use.
type MemoryPresence struct {
	mu       sync.Mutex
	sessions map[uint]map[string]memoryPresenceEntry
	ttl      time.Duration
	now      func() time.Time
}

type memoryPresenceEntry struct {
	entry     PresenceEntry
	expiresAt time.Time
}

func NewMemoryPresence() *MemoryPresence {
	return &MemoryPresence{
		sessions: make(map[uint]map[string]memoryPresenceEntry),
		ttl:      presenceTTL,
		now:      time.Now,
	}
}

func (p *MemoryPresence) Join(ctx context.Context, sessionID uint, entry PresenceEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sessions[sessionID] == nil {
		p.sessions[sessionID] = make(map[string]memoryPresenceEntry)
	}
	p.sessions[sessionID][entry.ParticipantID] = memoryPresenceEntry{
		entry:     entry,
		expiresAt: p.now().Add(p.ttl),
	}
	return nil
}

func (p *MemoryPresence) Heartbeat(ctx context.Context, sessionID uint, participantID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.sweepLocked(sessionID)
	existing, ok := p.sessions[sessionID][participantID]
	if !ok {
		return fmt.Errorf("%w: participant %s is not present", ErrNotFound, participantID)
	}
	existing.expiresAt = p.now().Add(p.ttl)
	p.sessions[sessionID][participantID] = existing
	return nil
}

func (p *MemoryPresence) Leave(ctx context.Context, sessionID uint, participantID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if participants, ok := p.sessions[sessionID]; ok {
		delete(participants, participantID)
		if len(participants) == 0 {
			delete(p.sessions, sessionID)
		}
	}
	return nil
}

func (p *MemoryPresence) Snapshot(ctx context.Context, sessionID uint) ([]PresenceEntry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.sweepLocked(sessionID)
	var entries []PresenceEntry
	for _, e := range p.sessions[sessionID] {
		entries = append(entries, e.entry)
	}
	sortPresence(entries)
	return entries, nil
}

func (p *MemoryPresence) sweepLocked(sessionID uint) {
	now := p.now()
	for id, e := range p.sessions[sessionID] {
		if e.expiresAt.Before(now) {
			delete(p.sessions[sessionID], id)
		}
	}
}

func sortPresence(entries []PresenceEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].JoinedAt.Equal(entries[j].JoinedAt) {
			return entries[i].ParticipantID < entries[j].ParticipantID
		}
		return entries[i].JoinedAt.Before(entries[j].JoinedAt)
	})
}
