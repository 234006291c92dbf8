// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"

	"github.com/nexauth/oidcserver/internal/clientauth"
	"github.com/nexauth/oidcserver/internal/oidcerr"
	"github.com/nexauth/oidcserver/internal/store"
)

// clientRequestFromHTTP assembles a clientauth.ClientRequest from an
// incoming request, reading client_secret_basic from the Authorization
// header, client_secret_post/JWT-bearer assertions from the form body, and
// the peer certificate from the TLS connection state for mTLS-authenticated
// methods (spec.md §4).
func clientRequestFromHTTP(r *http.Request) clientauth.ClientRequest {
	req := clientauth.ClientRequest{
		ClientID:            r.PostForm.Get("client_id"),
		ClientSecret:        r.PostForm.Get("client_secret"),
		ClientAssertion:     r.PostForm.Get("client_assertion"),
		ClientAssertionType: r.PostForm.Get("client_assertion_type"),
	}
	if user, pass, ok := r.BasicAuth(); ok {
		req.ClientID = user
		req.ClientSecret = pass
	}
	if r.TLS != nil && len(r.TLS.PeerCertificates) > 0 {
		req.ClientCertificate = r.TLS.PeerCertificates[0]
	}
	return req
}

// authenticateTokenEndpointClient runs the full client-authentication
// dispatch for an endpoint that requires an authenticated client (token,
// device authorization, backchannel authentication, introspection,
// revocation); r.ParseForm must already have been called.
func (h *Handler) authenticateTokenEndpointClient(r *http.Request) (string, store.ClientInfo, *oidcerr.Error) {
	client, err := h.ClientAuth.Authenticate(r.Context(), clientRequestFromHTTP(r))
	if err != nil {
		oerr, ok := oidcerr.As(err)
		if !ok {
			oerr = oidcerr.Internal(err)
		}
		return "", store.ClientInfo{}, oerr
	}
	return client.ClientID, client, nil
}
