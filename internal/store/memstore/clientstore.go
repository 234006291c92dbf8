// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

package memstore

import (
	"context"
	"sync"

	"github.com/nexauth/oidcserver/internal/store"
)

// ClientStore is an in-memory store.ClientStore.
type ClientStore struct {
	mu      sync.RWMutex
	clients map[string]store.ClientInfo
}

func NewClientStore() *ClientStore {
	return &ClientStore{clients: make(map[string]store.ClientInfo)}
}

func (s *ClientStore) GetClient(_ context.Context, clientID string) (store.ClientInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[clientID]
	if !ok {
		return store.ClientInfo{}, store.ErrNotFound
	}
	return c, nil
}

func (s *ClientStore) PutClient(_ context.Context, client store.ClientInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[client.ClientID] = client
	return nil
}

func (s *ClientStore) DeleteClient(_ context.Context, clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, clientID)
	return nil
}
