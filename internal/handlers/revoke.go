// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"

	"github.com/nexauth/oidcserver/internal/oidcerr"
)

// Revoke implements POST /connect/revoke (RFC 7009, spec.md §4.8). Per RFC
// 7009 §2.2, an invalid or already-revoked token is not an error: the
// endpoint always responds 200 once the client itself authenticates.
func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
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

	if err := h.Provider.NewRevocationRequest(ctx, r); err != nil {
		h.Provider.WriteRevocationResponse(ctx, w, err)
		return
	}
	h.Provider.WriteRevocationResponse(ctx, w, nil)
}
