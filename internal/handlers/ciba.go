// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"

	"github.com/nexauth/oidcserver/internal/engine"
	"github.com/nexauth/oidcserver/internal/oidcerr"
	"github.com/nexauth/oidcserver/internal/store"
)

// BackchannelAuthenticate implements POST /connect/bc-authorize (spec.md
// §4.4, CIBA poll mode). Hint resolution (login_hint/id_token_hint/
// login_hint_token -> subject) is reduced to taking login_hint literally as
// the subject identifier: resolving an opaque hint token to a subject is a
// deployment-specific identity lookup outside this engine's scope, the same
// boundary spec.md draws around consent/authentication UI.
func (h *Handler) BackchannelAuthenticate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		writeOidcError(w, oidcerr.Validate(oidcerr.InvalidRequest, "malformed request body"))
		return
	}

	ctx := r.Context()
	clientID, client, authErr := h.authenticateTokenEndpointClient(r)
	if authErr != nil {
		writeOidcError(w, authErr)
		return
	}

	loginHint := r.PostForm.Get("login_hint")
	if loginHint == "" {
		writeOidcError(w, oidcerr.Validate(oidcerr.InvalidRequest, "login_hint is required"))
		return
	}

	requestedScopes := splitSpace(r.PostForm.Get("scope"))
	if !scopesAllowed(client, requestedScopes) {
		writeOidcError(w, oidcerr.Validate(oidcerr.InvalidScope, "requested scope exceeds the client's registered scopes"))
		return
	}

	req := engine.BackchannelAuthenticationRequest{
		ClientID: clientID,
		Context: store.AuthorizationContext{
			Subject:          loginHint,
			ClientID:         clientID,
			GrantedScopes:    requestedScopes,
			GrantedResources: r.PostForm["resource"],
		},
	}
	resp, err := h.Ciba.Start(ctx, req)
	if err != nil {
		h.writeDeviceFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		AuthReqID string `json:"auth_req_id"`
		ExpiresIn int64  `json:"expires_in"`
		Interval  int64  `json:"interval"`
	}{
		AuthReqID: resp.AuthReqID,
		ExpiresIn: resp.ExpiresIn,
		Interval:  resp.Interval,
	})
}
