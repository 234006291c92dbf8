// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

package fositestore

import (
	"context"
	"sync"

	"github.com/ory/fosite"

	"github.com/nexauth/oidcserver/internal/store"
)

// Storage is the in-memory fosite.Storage implementation the engine's core
// grant handlers (authorization_code, refresh_token, client_credentials,
// PKCE, OIDC-explicit, introspection, revocation) are composed over. It
// holds fosite.Requester sessions keyed by the opaque signature fosite's own
// token strategies compute, mirroring the shape of fosite's documented
// in-memory example store; every create/revoke additionally updates the
// engine's own TokenRegistry so introspection/revocation (spec.md §4.8) see
// a single consistent jti lifecycle regardless of which store answered.
type Storage struct {
	*ClientManager

	Registry store.TokenRegistry

	mu            sync.Mutex
	authorizeCodes map[string]fosite.Requester
	accessTokens   map[string]fosite.Requester
	refreshTokens  map[string]fosite.Requester
	pkceRequests   map[string]fosite.Requester
	oidcSessions   map[string]fosite.Requester
	revokedRequestIDs map[string]bool
}

// New builds a Storage over clients, optionally recording token lifecycle
// into registry (pass nil to skip the extra bookkeeping).
func New(clients store.ClientStore, registry store.TokenRegistry) *Storage {
	return &Storage{
		ClientManager:  &ClientManager{Clients: clients},
		Registry:       registry,
		authorizeCodes: make(map[string]fosite.Requester),
		accessTokens:   make(map[string]fosite.Requester),
		refreshTokens:  make(map[string]fosite.Requester),
		pkceRequests:   make(map[string]fosite.Requester),
		oidcSessions:   make(map[string]fosite.Requester),
		revokedRequestIDs: make(map[string]bool),
	}
}

var (
	_ fosite.ClientManager = (*Storage)(nil)
)

// --- authorization code storage ---

func (s *Storage) CreateAuthorizeCodeSession(_ context.Context, code string, request fosite.Requester) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authorizeCodes[code] = request
	return nil
}

func (s *Storage) GetAuthorizeCodeSession(_ context.Context, code string, _ fosite.Session) (fosite.Requester, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.authorizeCodes[code]
	if !ok {
		return nil, fosite.ErrNotFound
	}
	if s.revokedRequestIDs[r.GetID()] {
		return r, fosite.ErrInvalidatedAuthorizeCode
	}
	return r, nil
}

func (s *Storage) InvalidateAuthorizeCodeSession(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.authorizeCodes[code]
	if !ok {
		return fosite.ErrNotFound
	}
	s.revokedRequestIDs[r.GetID()] = true
	return nil
}

// --- access token storage ---

func (s *Storage) CreateAccessTokenSession(_ context.Context, signature string, request fosite.Requester) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessTokens[signature] = request
	s.registerToken(signature, request)
	return nil
}

func (s *Storage) GetAccessTokenSession(_ context.Context, signature string, _ fosite.Session) (fosite.Requester, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.accessTokens[signature]
	if !ok {
		return nil, fosite.ErrNotFound
	}
	return r, nil
}

func (s *Storage) DeleteAccessTokenSession(_ context.Context, signature string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.accessTokens, signature)
	return nil
}

// --- refresh token storage ---

func (s *Storage) CreateRefreshTokenSession(_ context.Context, signature string, request fosite.Requester) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshTokens[signature] = request
	s.registerToken(signature, request)
	return nil
}

func (s *Storage) GetRefreshTokenSession(_ context.Context, signature string, _ fosite.Session) (fosite.Requester, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.refreshTokens[signature]
	if !ok {
		return nil, fosite.ErrNotFound
	}
	return r, nil
}

func (s *Storage) DeleteRefreshTokenSession(_ context.Context, signature string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.refreshTokens, signature)
	return nil
}

// RotateRefreshToken implements the engine's "always rotates" policy
// (DESIGN.md Open Question decision): the old refresh token's requestID is
// invalidated and its session removed, so a stolen, already-rotated refresh
// token cannot be reused.
func (s *Storage) RotateRefreshToken(_ context.Context, requestID string, refreshTokenSignature string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revokedRequestIDs[requestID] = true
	delete(s.refreshTokens, refreshTokenSignature)
	return nil
}

// --- token revocation storage ---

func (s *Storage) RevokeRefreshToken(ctx context.Context, requestID string) error {
	return s.revokeByRequestID(ctx, requestID, s.refreshTokens)
}

func (s *Storage) RevokeRefreshTokenMaybeGracePeriod(ctx context.Context, requestID string, _ string) error {
	return s.RevokeRefreshToken(ctx, requestID)
}

func (s *Storage) RevokeAccessToken(ctx context.Context, requestID string) error {
	return s.revokeByRequestID(ctx, requestID, s.accessTokens)
}

func (s *Storage) revokeByRequestID(ctx context.Context, requestID string, bucket map[string]fosite.Requester) error {
	s.mu.Lock()
	var signature string
	for sig, r := range bucket {
		if r.GetID() == requestID {
			signature = sig
			break
		}
	}
	if signature != "" {
		delete(bucket, signature)
	}
	s.mu.Unlock()

	if s.Registry != nil && signature != "" {
		_ = s.Registry.Revoke(ctx, signature)
	}
	return nil
}

// --- PKCE request storage ---

func (s *Storage) CreatePKCERequestSession(_ context.Context, signature string, requester fosite.Requester) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pkceRequests[signature] = requester
	return nil
}

func (s *Storage) GetPKCERequestSession(_ context.Context, signature string, _ fosite.Session) (fosite.Requester, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.pkceRequests[signature]
	if !ok {
		return nil, fosite.ErrNotFound
	}
	return r, nil
}

func (s *Storage) DeletePKCERequestSession(_ context.Context, signature string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pkceRequests, signature)
	return nil
}

// --- OpenID Connect request storage ---

func (s *Storage) CreateOpenIDConnectSession(_ context.Context, authorizeCode string, requester fosite.Requester) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.oidcSessions[authorizeCode] = requester
	return nil
}

func (s *Storage) GetOpenIDConnectSession(_ context.Context, authorizeCode string, _ fosite.Requester) (fosite.Requester, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.oidcSessions[authorizeCode]
	if !ok {
		return nil, fosite.ErrNotFound
	}
	return r, nil
}

func (s *Storage) DeleteOpenIDConnectSession(_ context.Context, authorizeCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.oidcSessions, authorizeCode)
	return nil
}

// registerToken best-efforts a TokenRegistry entry for signature so
// introspection/revocation (spec.md §4.8) can answer from a single
// jti-keyed source even for tokens fosite itself minted. Must be called
// with s.mu held.
func (s *Storage) registerToken(signature string, request fosite.Requester) {
	if s.Registry == nil {
		return
	}
	client := request.GetClient()
	clientID := ""
	if client != nil {
		clientID = client.GetID()
	}
	subject := ""
	if sess, ok := request.GetSession().(interface{ GetSubject() string }); ok {
		subject = sess.GetSubject()
	}
	_ = s.Registry.Register(context.Background(), store.TokenRecord{
		JTI:      signature,
		ClientID: clientID,
		Subject:  subject,
		Status:   store.TokenIssued,
	})
}
