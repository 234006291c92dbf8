// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"

	"github.com/ory/fosite/handler/openid"
	"github.com/ory/fosite/token/jwt"

	"github.com/nexauth/oidcserver/internal/oidcerr"
)

// Introspect implements POST /connect/introspect (RFC 7662, spec.md §4.8).
// Per RFC 7662 §2.1 this endpoint is itself client-authenticated; an
// unrecognized or foreign token always yields {"active": false} rather than
// an error, which fosite's own WriteIntrospectionResponse already does.
func (h *Handler) Introspect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		writeOidcError(w, oidcerr.Validate(oidcerr.InvalidRequest, "malformed request body"))
		return
	}
	ctx := r.Context()

	if _, _, authErr := h.authenticateTokenEndpointClient(r); authErr != nil {
		writeOidcError(w, authErr)
		return
	}

	sess := &openid.DefaultSession{Claims: &jwt.IDTokenClaims{}, Headers: &jwt.Headers{}}
	ir, err := h.Provider.NewIntrospectionRequest(ctx, r, sess)
	if err != nil {
		h.Provider.WriteIntrospectionError(ctx, w, err)
		return
	}
	h.Provider.WriteIntrospectionResponse(ctx, w, ir)
}
