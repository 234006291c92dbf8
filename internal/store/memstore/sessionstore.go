// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

package memstore

import (
	"context"
	"sync"

	"github.com/nexauth/oidcserver/internal/store"
)

// SessionStore is an in-memory store.SessionStore.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]store.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]store.Session)}
}

func (s *SessionStore) Put(_ context.Context, sessionID string, sess store.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = sess
	return nil
}

func (s *SessionStore) Get(_ context.Context, sessionID string) (store.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return store.Session{}, store.ErrNotFound
	}
	return sess, nil
}

func (s *SessionStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}
