// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"

	"github.com/nexauth/oidcserver/internal/engine"
	"github.com/nexauth/oidcserver/internal/oidcerr"
)

// PushedAuthorizationRequest implements POST /connect/par (RFC 9126,
// spec.md §4.6). The client authenticates the same way it would at the
// token endpoint; the pushed parameters then run through the validator
// pipeline /connect/authorize uses, with end-user authentication treated
// as satisfied, before they are stored. They are validated again when the
// resulting request_uri is redeemed at /connect/authorize.
func (h *Handler) PushedAuthorizationRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.PAR == nil {
		writeOidcError(w, oidcerr.Validate(oidcerr.RequestNotSupported, "pushed authorization requests are not enabled"))
		return
	}
	if err := r.ParseForm(); err != nil {
		writeOidcError(w, oidcerr.Validate(oidcerr.InvalidRequest, "malformed request body"))
		return
	}
	ctx := r.Context()

	clientID, _, authErr := h.authenticateTokenEndpointClient(r)
	if authErr != nil {
		writeOidcError(w, authErr)
		return
	}

	params := engine.RequestParams(r.PostForm).Clone()
	params.Set("client_id", clientID)
	vctx := &engine.ValidationContext{Params: params, UserAuthenticated: true}
	if verr := engine.Run(ctx, vctx, h.Validators.AuthorizationPipeline()); verr != nil {
		writeOidcError(w, verr)
		return
	}

	requestURI, expiresIn, err := h.PAR.Push(ctx, clientID, map[string][]string(params))
	if err != nil {
		oerr, ok := oidcerr.As(err)
		if !ok {
			oerr = oidcerr.Internal(err)
		}
		writeOidcError(w, oerr)
		return
	}

	writeJSON(w, http.StatusCreated, struct {
		RequestURI string `json:"request_uri"`
		ExpiresIn  int64  `json:"expires_in"`
	}{RequestURI: requestURI, ExpiresIn: expiresIn})
}
