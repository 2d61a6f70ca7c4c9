package api

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRevoker stores revoked token ids in Redis so every instance rejects a
// logged out token until it would have expired anyway.
type RedisRevoker struct {
	client *redis.Client
	prefix string
}

// NewRedisRevoker creates a revoker using the provided Redis client.
func NewRedisRevoker(client *redis.Client) *RedisRevoker {
	return &RedisRevoker{client: client, prefix: "revoked:"}
}

// Revoke records the token id until the given time. Tokens already past
// their expiry are ignored.
func (r *RedisRevoker) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	return r.client.SetNX(ctx, r.prefix+tokenID, 1, ttl).Err()
}

// Revoked reports whether the token id was revoked.
func (r *RedisRevoker) Revoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.client.Exists(ctx, r.prefix+tokenID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MemoryRevoker is a process local revoker for single instance deployments.
type MemoryRevoker struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryRevoker creates an empty in-memory revoker.
func NewMemoryRevoker() *MemoryRevoker {
	return &MemoryRevoker{entries: make(map[string]time.Time), now: time.Now}
}

func (m *MemoryRevoker) Revoke(_ context.Context, tokenID string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for id, exp := range m.entries {
		if !exp.After(now) {
			delete(m.entries, id)
		}
	}
	if until.After(now) {
		m.entries[tokenID] = until
	}
	return nil
}

func (m *MemoryRevoker) Revoked(_ context.Context, tokenID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.entries[tokenID]
	if !ok {
		return false, nil
	}
	if !exp.After(m.now()) {
		delete(m.entries, tokenID)
		return false, nil
	}
	return true, nil
}
