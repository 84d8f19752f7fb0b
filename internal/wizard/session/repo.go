package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"advance-wizard/internal/common/logger"
)

// ErrNotFound is returned when a session id is unknown or expired.
var ErrNotFound = errors.New("session not found")

// Repository persists wizard sessions keyed by session id. Entries expire
// after the configured TTL.
type Repository interface {
	Get(ctx context.Context, sessionID string) (State, error)
	Save(ctx context.Context, state State) error
	Delete(ctx context.Context, sessionID string) error
}

// ==========================
// In-memory repository
// ==========================

type memoryEntry struct {
	state     State
	expiresAt time.Time
}

// MemoryRepository is the default single-process backend.
type MemoryRepository struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryRepository(ttl time.Duration) *MemoryRepository {
	return &MemoryRepository{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (r *MemoryRepository) Get(_ context.Context, sessionID string) (State, error) {
	r.mu.RLock()
	entry, ok := r.entries[sessionID]
	r.mu.RUnlock()

	if !ok || r.now().After(entry.expiresAt) {
		if ok {
			r.mu.Lock()
			delete(r.entries, sessionID)
			r.mu.Unlock()
		}
		return State{}, ErrNotFound
	}
	return entry.state, nil
}

func (r *MemoryRepository) Save(_ context.Context, state State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[state.SessionID] = memoryEntry{
		state:     state,
		expiresAt: r.now().Add(r.ttl),
	}
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, sessionID)
	return nil
}

// ==========================
// Redis repository
// ==========================

// RedisRepository stores sessions as JSON values with a per-key TTL, letting
// multiple service instances share the wizard state.
type RedisRepository struct {
	client *redis.Client
	ttl    time.Duration
	log    logger.Logger
}

func NewRedisRepository(client *redis.Client, ttl time.Duration, log logger.Logger) *RedisRepository {
	return &RedisRepository{
		client: client,
		ttl:    ttl,
		log:    log.WithFields(map[string]interface{}{"component": "session-repo"}),
	}
}

func sessionKey(sessionID string) string {
	return "wizard:session:" + sessionID
}

func (r *RedisRepository) Get(ctx context.Context, sessionID string) (State, error) {
	data, err := r.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if err == redis.Nil {
		return State{}, ErrNotFound
	}
	if err != nil {
		return State{}, fmt.Errorf("loading session %s: %w", sessionID, err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		r.log.WithError(err).Error("corrupt session payload, discarding", map[string]interface{}{
			"session_id": sessionID,
		})
		return State{}, ErrNotFound
	}
	return state, nil
}

func (r *RedisRepository) Save(ctx context.Context, state State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding session %s: %w", state.SessionID, err)
	}
	if err := r.client.Set(ctx, sessionKey(state.SessionID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("saving session %s: %w", state.SessionID, err)
	}
	return nil
}

func (r *RedisRepository) Delete(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("deleting session %s: %w", sessionID, err)
	}
	return nil
}
