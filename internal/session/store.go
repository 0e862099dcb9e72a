package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Keys persisted by the bridge.
const (
	KeyToken      = "token"
	KeyEmail      = "user_email"
	KeySource     = "token_source"
	KeySignedInAt = "signed_in_at"
)

// TokenStore is the device's secure key-value storage. Get returns "" and
// no error for a missing key.
type TokenStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data[key], nil
}

func (m *MemoryStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

type cmdable interface {
	Get(context.Context, string) *redis.StringCmd
	Set(context.Context, string, any, time.Duration) *redis.StatusCmd
	Del(context.Context, ...string) *redis.IntCmd
}

// RedisStore keeps session keys in Redis under prefix:session:<device>:<key>.
type RedisStore struct {
	store     cmdable
	namespace string
}

func NewRedisStore(client *redis.Client, prefix, deviceID string) *RedisStore {
	return newRedisStore(client, prefix, deviceID)
}

func newRedisStore(store cmdable, prefix, deviceID string) *RedisStore {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "mute"
	}
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		deviceID = "default"
	}
	return &RedisStore{store: store, namespace: fmt.Sprintf("%s:session:%s", prefix, deviceID)}
}

func (r *RedisStore) key(name string) string {
	return r.namespace + ":" + name
}

func (r *RedisStore) Get(ctx context.Context, key string) (string, error) {
	val, err := r.store.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, nil
}

func (r *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := r.store.Set(ctx, r.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, 0, len(keys))
	for _, key := range keys {
		full = append(full, r.key(key))
	}
	if err := r.store.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
