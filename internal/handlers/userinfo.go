// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"
	"strings"

	"github.com/ory/fosite"
	"github.com/ory/fosite/handler/openid"

	"github.com/nexauth/oidcserver/internal/jwtkit"
	"github.com/nexauth/oidcserver/internal/oidcerr"
)

// UserInfo implements GET/POST /connect/userinfo (spec.md §4.9): the
// bearer access token is introspected through the same core strategy
// that minted it, then UserInfoProvider resolves the claims to release,
// scoped to the token's granted scopes.
func (h *Handler) UserInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()

	token := bearerToken(r)
	if token == "" {
		w.Header().Set("WWW-Authenticate", `Bearer realm="oidc"`)
		writeOidcError(w, oidcerr.Validate(oidcerr.InvalidRequest, "a bearer access token is required"))
		return
	}

	sess := openid.NewDefaultSession()
	_, ar, err := h.Provider.IntrospectToken(ctx, token, fosite.AccessToken, sess)
	if err != nil {
		w.Header().Set("WWW-Authenticate", `Bearer realm="oidc", error="invalid_token"`)
		writeOidcError(w, oidcerr.Process(oidcerr.InvalidGrant, "the access token is invalid, expired, or revoked"))
		return
	}

	subject := ar.GetSession().GetSubject()
	if h.UserInfoProvider == nil {
		writeJSON(w, http.StatusOK, map[string]any{"sub": subject})
		return
	}

	claims, err := h.UserInfoProvider.Claims(ctx, subject, []string(ar.GetGrantedScopes()))
	if err != nil {
		writeOidcError(w, oidcerr.Internal(err))
		return
	}
	if claims == nil {
		claims = map[string]any{}
	}
	claims["sub"] = subject

	if h.ResponseSigner == nil {
		writeJSON(w, http.StatusOK, claims)
		return
	}

	signed := jwtkit.New()
	for k, v := range claims {
		signed[k] = v
	}
	signed.WithIssuer(h.Validators.Issuer).WithAudience(ar.GetClient().GetID())
	jwtToken, serr := h.ResponseSigner.Sign(signed)
	if serr != nil {
		writeOidcError(w, oidcerr.Internal(serr))
		return
	}
	w.Header().Set("Content-Type", "application/jwt")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write([]byte(jwtToken))
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if strings.HasPrefix(header, prefix) {
		return strings.TrimPrefix(header, prefix)
	}
	if err := r.ParseForm(); err == nil {
		if tok := r.Form.Get("access_token"); tok != "" {
			return tok
		}
	}
	return ""
}
