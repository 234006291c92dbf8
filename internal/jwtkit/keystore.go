// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

package jwtkit

import (
	"fmt"
	"sync"
)

// KeyStore is the key-management service contract from spec.md §4.12 /
// §9: the engine's only long-lived process-wide mutable state besides the
// JWKS fetch cache. It holds every published signing key, keyed by
// algorithm for "the currently active one", and publishes the full set
// (sanitized) for JWKS.
type KeyStore struct {
	mu      sync.RWMutex
	byKeyID map[string]JsonWebKey
	active  map[Algorithm]string // alg -> kid currently used for new signatures
	order   []string             // insertion order, oldest first
}

// NewKeyStore builds an empty store. Keys are added via Rotate.
func NewKeyStore() *KeyStore {
	return &KeyStore{
		byKeyID: make(map[string]JsonWebKey),
		active:  make(map[Algorithm]string),
	}
}

// Rotate publishes key as the new active signing key for alg. The
// previously active key for alg, if any, remains published (so in-flight
// tokens it signed still verify) but is no longer selected for new
// signatures.
func (s *KeyStore) Rotate(alg Algorithm, key JsonWebKey) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kid := key.KeyID()
	if _, exists := s.byKeyID[kid]; !exists {
		s.order = append(s.order, kid)
	}
	s.byKeyID[kid] = key
	s.active[alg] = kid
}

// Active returns the currently active signing key for alg.
func (s *KeyStore) Active(alg Algorithm) (JsonWebKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	kid, ok := s.active[alg]
	if !ok {
		return JsonWebKey{}, fmt.Errorf("jwtkit: no active key for algorithm %s", alg)
	}
	return s.byKeyID[kid], nil
}

// All returns every published key, in rotation order.
func (s *KeyStore) All() []JsonWebKey {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JsonWebKey, 0, len(s.order))
	for _, kid := range s.order {
		out = append(out, s.byKeyID[kid])
	}
	return out
}

// PublicJWKS returns the sanitized (private-material-stripped) JWKS
// document published at /.well-known/jwks.
func (s *KeyStore) PublicJWKS() JsonWebKeySet {
	return JsonWebKeySet{Keys: s.All()}.Sanitize()
}

// ByKeyID returns a published key by kid, used by the verifier when a
// token's JWS header names one explicitly.
func (s *KeyStore) ByKeyID(kid string) (JsonWebKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.byKeyID[kid]
	if !ok {
		return JsonWebKey{}, fmt.Errorf("jwtkit: no key with kid %q", kid)
	}
	return k, nil
}
