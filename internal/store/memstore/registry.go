// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

package memstore

import (
	"context"
	"sync"

	"github.com/nexauth/oidcserver/internal/store"
)

// ScopeManager is an in-memory store.ScopeManager over a fixed scope list.
type ScopeManager struct {
	mu     sync.RWMutex
	scopes map[string]store.ScopeDefinition
}

func NewScopeManager(defs ...store.ScopeDefinition) *ScopeManager {
	m := &ScopeManager{scopes: make(map[string]store.ScopeDefinition)}
	for _, d := range defs {
		m.scopes[d.Name] = d
	}
	return m
}

func (m *ScopeManager) Get(_ context.Context, name string) (store.ScopeDefinition, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.scopes[name]
	return d, ok
}

func (m *ScopeManager) All(_ context.Context) []store.ScopeDefinition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]store.ScopeDefinition, 0, len(m.scopes))
	for _, d := range m.scopes {
		out = append(out, d)
	}
	return out
}

func (m *ScopeManager) Put(d store.ScopeDefinition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scopes[d.Name] = d
}

// ResourceManager is an in-memory store.ResourceManager over a fixed
// resource list.
type ResourceManager struct {
	mu        sync.RWMutex
	resources map[string]store.ResourceDefinition
}

func NewResourceManager(defs ...store.ResourceDefinition) *ResourceManager {
	m := &ResourceManager{resources: make(map[string]store.ResourceDefinition)}
	for _, d := range defs {
		m.resources[d.URI] = d
	}
	return m
}

func (m *ResourceManager) Get(_ context.Context, uri string) (store.ResourceDefinition, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.resources[uri]
	return d, ok
}

func (m *ResourceManager) All(_ context.Context) []store.ResourceDefinition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]store.ResourceDefinition, 0, len(m.resources))
	for _, d := range m.resources {
		out = append(out, d)
	}
	return out
}

func (m *ResourceManager) Put(d store.ResourceDefinition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resources[d.URI] = d
}
