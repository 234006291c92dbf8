// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

package memstore

import (
	"context"
	"sync"

	"github.com/nexauth/oidcserver/internal/clock"
	"github.com/nexauth/oidcserver/internal/store"
)

// TokenRegistry is an in-memory store.TokenRegistry tracking jti -> status
// until the token's own expiry.
type TokenRegistry struct {
	mu      sync.Mutex
	records map[string]store.TokenRecord
	clock   clock.Clock
}

func NewTokenRegistry() *TokenRegistry {
	return &TokenRegistry{records: make(map[string]store.TokenRecord), clock: clock.Real{}}
}

func (r *TokenRegistry) Register(_ context.Context, rec store.TokenRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[rec.JTI] = rec
	return nil
}

func (r *TokenRegistry) Status(_ context.Context, jti string) (store.TokenRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[jti]
	if !ok {
		return store.TokenRecord{}, store.ErrNotFound
	}
	if r.clock.Now().After(rec.ExpiresAt) {
		return store.TokenRecord{}, store.ErrNotFound
	}
	return rec, nil
}

func (r *TokenRegistry) Revoke(_ context.Context, jti string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[jti]
	if !ok {
		// Revocation of an unknown token always succeeds (spec.md §4.8).
		return nil
	}
	rec.Status = store.TokenRevoked
	r.records[jti] = rec
	return nil
}

func (r *TokenRegistry) MarkUsed(_ context.Context, jti string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[jti]
	if !ok {
		return store.ErrNotFound
	}
	rec.Status = store.TokenUsed
	r.records[jti] = rec
	return nil
}
