// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/nexauth/oidcserver/internal/clock"
	"github.com/nexauth/oidcserver/internal/store"
)

// CibaStore is an in-memory store.CibaStore. It mirrors DeviceStore's
// pending/authorized/denied state machine, per spec.md §4.4.
type CibaStore struct {
	mu      sync.Mutex
	items   map[string]cibaEntry
	clock   clock.Clock
}

type cibaEntry struct {
	req       store.CibaAuthRequest
	expiresAt time.Time
}

func NewCibaStore() *CibaStore {
	return &CibaStore{items: make(map[string]cibaEntry), clock: clock.Real{}}
}

func (s *CibaStore) Put(_ context.Context, authReqID string, req store.CibaAuthRequest, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[authReqID] = cibaEntry{req: req, expiresAt: s.clock.Now().Add(ttl)}
	return nil
}

func (s *CibaStore) getLocked(authReqID string) (store.CibaAuthRequest, error) {
	e, ok := s.items[authReqID]
	if !ok || s.clock.Now().After(e.expiresAt) {
		return store.CibaAuthRequest{}, store.ErrNotFound
	}
	return e.req, nil
}

func (s *CibaStore) Get(_ context.Context, authReqID string) (store.CibaAuthRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(authReqID)
}

func (s *CibaStore) Update(_ context.Context, authReqID string, req store.CibaAuthRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[authReqID]
	if !ok || s.clock.Now().After(e.expiresAt) {
		return store.ErrNotFound
	}
	e.req = req
	s.items[authReqID] = e
	return nil
}

func (s *CibaStore) TryGetAndRemove(_ context.Context, authReqID string) (store.CibaAuthRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, err := s.getLocked(authReqID)
	if err != nil {
		return store.CibaAuthRequest{}, err
	}
	delete(s.items, authReqID)
	return req, nil
}
