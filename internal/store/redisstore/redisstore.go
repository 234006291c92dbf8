// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package redisstore is the distributed-deployment backing for package
// store's TTL-keyed contracts, grounded on the teacher's
// "storage/redis_test.go" Redis-backed store and its "for multi-instance
// deployments" design note.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nexauth/oidcserver/internal/store"
)

// getAndDelScript atomically fetches and deletes a key, giving every
// TTLStore[T] the same "exactly one caller wins" semantics the in-memory
// store gets from holding a mutex across the read and the delete.
var getAndDelScript = redis.NewScript(`
local v = redis.call("GET", KEYS[1])
if v then
  redis.call("DEL", KEYS[1])
end
return v
`)

// TTLStore is a Redis-backed store.TTLStore[T]. Values are JSON-encoded.
type TTLStore[T any] struct {
	client redis.Cmdable
	prefix string
}

func New[T any](client redis.Cmdable, prefix string) *TTLStore[T] {
	return &TTLStore[T]{client: client, prefix: prefix}
}

func (s *TTLStore[T]) key(k string) string { return s.prefix + k }

func (s *TTLStore[T]) Put(ctx context.Context, key string, value T, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("redisstore: marshaling value: %w", err)
	}
	return s.client.Set(ctx, s.key(key), data, ttl).Err()
}

func (s *TTLStore[T]) Get(ctx context.Context, key string) (T, error) {
	var zero T
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return zero, store.ErrNotFound
		}
		return zero, fmt.Errorf("redisstore: get: %w", err)
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return zero, fmt.Errorf("redisstore: unmarshaling value: %w", err)
	}
	return v, nil
}

func (s *TTLStore[T]) Update(ctx context.Context, key string, value T) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("redisstore: marshaling value: %w", err)
	}
	// KEEPTTL preserves the existing expiry rather than resetting it.
	return s.client.Set(ctx, s.key(key), data, redis.KeepTTL).Err()
}

func (s *TTLStore[T]) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}

// TryGetAndRemove runs getAndDelScript so the fetch-and-delete is atomic
// from Redis's perspective even under concurrent callers across multiple
// server replicas.
func (s *TTLStore[T]) TryGetAndRemove(ctx context.Context, key string) (T, error) {
	var zero T
	res, err := getAndDelScript.Run(ctx, s.client, []string{s.key(key)}).Result()
	if err != nil {
		if err == redis.Nil {
			return zero, store.ErrNotFound
		}
		return zero, fmt.Errorf("redisstore: get-and-remove: %w", err)
	}
	raw, ok := res.(string)
	if !ok {
		return zero, store.ErrNotFound
	}
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return zero, fmt.Errorf("redisstore: unmarshaling value: %w", err)
	}
	return v, nil
}

// ReplayCache is a Redis-backed store.ReplayCache using SETNX semantics
// (SET ... NX) so the "has this jti been seen" check and record are a
// single atomic Redis command.
type ReplayCache struct {
	client redis.Cmdable
	prefix string
}

func NewReplayCache(client redis.Cmdable, prefix string) *ReplayCache {
	return &ReplayCache{client: client, prefix: prefix}
}

func (r *ReplayCache) SeenBefore(ctx context.Context, jti string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.prefix+jti, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redisstore: replay SETNX: %w", err)
	}
	// SetNX returns true when the key was newly set (i.e. not seen before).
	return !ok, nil
}
