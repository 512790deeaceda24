// Package runlock implements the per-campaign dispatch exclusion flag.
//
// A Locker is a registry of named run tokens with test-and-set semantics:
// TryAcquire returns true for exactly one caller until the matching Release.
// The in-process Memory locker is the default; the Redis locker covers
// deployments where dispatch requests can land on different hosts.
package runlock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker is a registry of exclusive run tokens keyed by campaign ID.
type Locker interface {
	// TryAcquire atomically claims the key. It never blocks: the return
	// value reports whether this caller now holds the token.
	TryAcquire(ctx context.Context, key string) (bool, error)
	// Release frees the key so a future run can be started.
	Release(ctx context.Context, key string) error
}

// Memory is an in-process Locker backed by a mutex-guarded set.
type Memory struct {
	mu     sync.Mutex
	active map[string]struct{}
}

// NewMemory creates an empty in-process locker.
func NewMemory() *Memory {
	return &Memory{active: make(map[string]struct{})}
}

// TryAcquire claims key if no run currently holds it.
func (m *Memory) TryAcquire(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, held := m.active[key]; held {
		return false, nil
	}
	m.active[key] = struct{}{}
	return true, nil
}

// Release frees key. Releasing a key that is not held is a no-op.
func (m *Memory) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, key)
	return nil
}

// Redis is a Locker backed by Redis SET NX with a TTL, so a crashed host
// cannot wedge a campaign forever. Each Redis locker instance owns a random
// value used to verify ownership on release.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	owner  string
}

// NewRedis creates a Redis-backed locker. ttl bounds how long a run may hold
// a token after its host disappears.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	b := make([]byte, 16)
	rand.Read(b)
	return &Redis{client: client, ttl: ttl, owner: hex.EncodeToString(b)}
}

func (r *Redis) redisKey(key string) string {
	return "dispatch:run:" + key
}

// TryAcquire claims key via SET NX.
func (r *Redis) TryAcquire(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.redisKey(key), r.owner, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire run lock %s: %w", key, err)
	}
	return ok, nil
}

// Release frees key only if this locker still owns it, using a Lua script
// so the get/del pair cannot race another host's acquire.
func (r *Redis) Release(ctx context.Context, key string) error {
	script := redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)
	_, err := script.Run(ctx, r.client, []string{r.redisKey(key)}, r.owner).Result()
	return err
}
