// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

package redisstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexauth/oidcserver/internal/store"
)

func withRedis(t *testing.T, fn func(context.Context, *redis.Client, *miniredis.Miniredis)) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() {
		_ = client.Close()
		mr.Close()
	}()
	fn(context.Background(), client, mr)
}

func TestTTLStore_PutGet(t *testing.T) {
	t.Parallel()
	withRedis(t, func(ctx context.Context, client *redis.Client, _ *miniredis.Miniredis) {
		s := New[store.AuthorizationCode](client, "test:codes:")
		require.NoError(t, s.Put(ctx, "code-1", store.AuthorizationCode{Value: "code-1"}, time.Minute))

		got, err := s.Get(ctx, "code-1")
		require.NoError(t, err)
		assert.Equal(t, "code-1", got.Value)
	})
}

func TestTTLStore_GetNotFound(t *testing.T) {
	t.Parallel()
	withRedis(t, func(ctx context.Context, client *redis.Client, _ *miniredis.Miniredis) {
		s := New[store.AuthorizationCode](client, "test:codes:")
		_, err := s.Get(ctx, "missing")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestTTLStore_TryGetAndRemoveExactlyOneWinner(t *testing.T) {
	t.Parallel()
	withRedis(t, func(ctx context.Context, client *redis.Client, _ *miniredis.Miniredis) {
		s := New[store.AuthorizationCode](client, "test:codes:")
		require.NoError(t, s.Put(ctx, "code-1", store.AuthorizationCode{Value: "code-1"}, time.Minute))

		const n = 30
		var wins, losses int32
		var mu sync.Mutex
		var wg sync.WaitGroup
		wg.Add(n)
		for i := 0; i < n; i++ {
			go func() {
				defer wg.Done()
				_, err := s.TryGetAndRemove(ctx, "code-1")
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					wins++
				} else {
					losses++
				}
			}()
		}
		wg.Wait()

		assert.EqualValues(t, 1, wins)
		assert.EqualValues(t, n-1, losses)

		_, err := s.Get(ctx, "code-1")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestTTLStore_TryGetAndRemoveNotFound(t *testing.T) {
	t.Parallel()
	withRedis(t, func(ctx context.Context, client *redis.Client, _ *miniredis.Miniredis) {
		s := New[store.AuthorizationCode](client, "test:codes:")
		_, err := s.TryGetAndRemove(ctx, "missing")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestTTLStore_Update(t *testing.T) {
	t.Parallel()
	withRedis(t, func(ctx context.Context, client *redis.Client, mr *miniredis.Miniredis) {
		s := New[store.AuthorizationCode](client, "test:codes:")
		require.NoError(t, s.Put(ctx, "code-1", store.AuthorizationCode{Value: "code-1"}, time.Minute))
		mr.SetTTL(s.key("code-1"), 45*time.Second)

		require.NoError(t, s.Update(ctx, "code-1", store.AuthorizationCode{Value: "code-1", Consumed: true}))

		got, err := s.Get(ctx, "code-1")
		require.NoError(t, err)
		assert.True(t, got.Consumed)
		// KEEPTTL must have preserved the expiry set before Update.
		assert.InDelta(t, 45, mr.TTL(s.key("code-1")).Seconds(), 5)
	})
}

func TestTTLStore_ExpiresAutomatically(t *testing.T) {
	t.Parallel()
	withRedis(t, func(ctx context.Context, client *redis.Client, mr *miniredis.Miniredis) {
		s := New[string](client, "test:strings:")
		require.NoError(t, s.Put(ctx, "k", "v", time.Second))
		mr.FastForward(2 * time.Second)

		_, err := s.Get(ctx, "k")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestReplayCache_SeenBefore(t *testing.T) {
	t.Parallel()
	withRedis(t, func(ctx context.Context, client *redis.Client, _ *miniredis.Miniredis) {
		cache := NewReplayCache(client, "test:replay:")

		seen, err := cache.SeenBefore(ctx, "jti-1", time.Minute)
		require.NoError(t, err)
		assert.False(t, seen, "first sighting must report not-seen")

		seen, err = cache.SeenBefore(ctx, "jti-1", time.Minute)
		require.NoError(t, err)
		assert.True(t, seen, "second sighting of the same jti must be flagged as replay")
	})
}

func TestReplayCache_Atomicity(t *testing.T) {
	t.Parallel()
	withRedis(t, func(ctx context.Context, client *redis.Client, _ *miniredis.Miniredis) {
		cache := NewReplayCache(client, "test:replay:")

		const n = 30
		var firstCount int32
		var mu sync.Mutex
		var wg sync.WaitGroup
		wg.Add(n)
		for i := 0; i < n; i++ {
			go func() {
				defer wg.Done()
				seen, err := cache.SeenBefore(ctx, "jti-race", time.Minute)
				require.NoError(t, err)
				if !seen {
					mu.Lock()
					firstCount++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.EqualValues(t, 1, firstCount)
	})
}
