// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package memstore is the default single-instance, in-memory backing for
// every store contract in package store, grounded on the teacher's
// "in-memory storage (default, suitable for single-instance deployments)"
// design note.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/nexauth/oidcserver/internal/clock"
	"github.com/nexauth/oidcserver/internal/store"
)

type entry[T any] struct {
	value     T
	expiresAt time.Time
}

// TTLStore is an in-memory store.TTLStore[T] guarded by a mutex, with the
// get-and-remove primitive implemented as a single critical section so
// exactly one concurrent caller observing a key succeeds.
type TTLStore[T any] struct {
	mu    sync.Mutex
	items map[string]entry[T]
	clock clock.Clock
}

// New builds an empty TTLStore.
func New[T any]() *TTLStore[T] {
	return &TTLStore[T]{items: make(map[string]entry[T]), clock: clock.Real{}}
}

// NewWithClock builds a TTLStore using clk for expiry checks, for tests.
func NewWithClock[T any](clk clock.Clock) *TTLStore[T] {
	return &TTLStore[T]{items: make(map[string]entry[T]), clock: clk}
}

func (s *TTLStore[T]) Put(_ context.Context, key string, value T, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = entry[T]{value: value, expiresAt: s.clock.Now().Add(ttl)}
	return nil
}

func (s *TTLStore[T]) Get(_ context.Context, key string) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(key)
}

func (s *TTLStore[T]) getLocked(key string) (T, error) {
	e, ok := s.items[key]
	if !ok || s.expired(e) {
		var zero T
		return zero, store.ErrNotFound
	}
	return e.value, nil
}

func (s *TTLStore[T]) expired(e entry[T]) bool {
	return !e.expiresAt.IsZero() && s.clock.Now().After(e.expiresAt)
}

func (s *TTLStore[T]) Update(_ context.Context, key string, value T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[key]
	if !ok || s.expired(e) {
		return store.ErrNotFound
	}
	e.value = value
	s.items[key] = e
	return nil
}

func (s *TTLStore[T]) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}

// TryGetAndRemove atomically fetches and deletes key within a single
// mutex-held critical section, giving the "exactly one caller succeeds"
// invariant spec.md §5 requires.
func (s *TTLStore[T]) TryGetAndRemove(_ context.Context, key string) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.getLocked(key)
	if err != nil {
		var zero T
		return zero, err
	}
	delete(s.items, key)
	return v, nil
}

// ReplayCache is an in-memory store.ReplayCache. SeenBefore holds its own
// mutex across the check-then-set so two concurrent callers presenting the
// same jti can never both observe "not seen before".
type ReplayCache struct {
	mu    sync.Mutex
	inner *TTLStore[struct{}]
}

func NewReplayCache() *ReplayCache {
	return &ReplayCache{inner: New[struct{}]()}
}

func (r *ReplayCache) SeenBefore(ctx context.Context, jti string, ttl time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.inner.Get(ctx, jti); err == nil {
		return true, nil
	}
	if err := r.inner.Put(ctx, jti, struct{}{}, ttl); err != nil {
		return false, err
	}
	return false, nil
}
