// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/ory/fosite"

	"github.com/nexauth/oidcserver/internal/engine"
	"github.com/nexauth/oidcserver/internal/oidcerr"
	"github.com/nexauth/oidcserver/internal/randid"
	"github.com/nexauth/oidcserver/internal/store"
)

// tokenResponse is the RFC 6749 §5.1 access token response shape, shared by
// every grant this handler issues tokens for.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// mintDirectGrant issues an access token, optional refresh token, and
// optional id_token directly via the engine's token strategies, for the
// four grants fosite has no native handler for: device_code, CIBA, and
// (when enabled) password/jwt-bearer. The issued tokens are registered into
// Storage so introspection and revocation see them exactly as they would a
// fosite-issued token (spec.md §4.8).
func (h *Handler) mintDirectGrant(ctx context.Context, clientID string, actx store.AuthorizationContext, includeRefreshToken bool) (tokenResponse, *oidcerr.Error) {
	client, err := h.Storage.GetClient(ctx, clientID)
	if err != nil {
		return tokenResponse{}, oidcerr.Process(oidcerr.InvalidClient, "unknown client")
	}

	sess := newOIDCSession(actx, h.Validators.Issuer)
	now := h.Clock.Now()
	requestID, err := randid.Opaque(16)
	if err != nil {
		return tokenResponse{}, oidcerr.Internal(err)
	}

	requester := &fosite.Request{
		ID:                requestID,
		RequestedAt:       now,
		Client:            client,
		RequestedScope:    fosite.Arguments(actx.GrantedScopes),
		GrantedScope:      fosite.Arguments(actx.GrantedScopes),
		RequestedAudience: fosite.Arguments(actx.GrantedResources),
		GrantedAudience:   fosite.Arguments(actx.GrantedResources),
		Session:           sess,
	}

	core := engine.CoreStrategy(h.Config)

	accessToken, accessSig, err := core.GenerateAccessToken(ctx, requester)
	if err != nil {
		return tokenResponse{}, oidcerr.Internal(err)
	}
	if err := h.Storage.CreateAccessTokenSession(ctx, accessSig, requester); err != nil {
		return tokenResponse{}, oidcerr.Internal(err)
	}

	resp := tokenResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(h.Config.AccessTokenLifespan.Seconds()),
		Scope:       strings.Join(actx.GrantedScopes, " "),
	}

	if includeRefreshToken && containsScope(actx.GrantedScopes, "offline_access") {
		refreshToken, refreshSig, err := core.GenerateRefreshToken(ctx, requester)
		if err != nil {
			return tokenResponse{}, oidcerr.Internal(err)
		}
		if err := h.Storage.CreateRefreshTokenSession(ctx, refreshSig, requester); err != nil {
			return tokenResponse{}, oidcerr.Internal(err)
		}
		resp.RefreshToken = refreshToken
	}

	if containsScope(actx.GrantedScopes, "openid") {
		idToken, err := engine.IDTokenStrategy(h.Config).GenerateIDToken(ctx, h.idTokenLifespan(), requester)
		if err != nil {
			return tokenResponse{}, oidcerr.Internal(err)
		}
		resp.IDToken = idToken
	}

	return resp, nil
}

func (h *Handler) idTokenLifespan() time.Duration {
	if h.Config.AccessTokenLifespan > 0 {
		return h.Config.AccessTokenLifespan
	}
	return time.Hour
}

func containsScope(scopes []string, target string) bool {
	for _, s := range scopes {
		if s == target {
			return true
		}
	}
	return false
}

func writeTokenResponse(w http.ResponseWriter, resp tokenResponse) {
	writeJSON(w, http.StatusOK, resp)
}
