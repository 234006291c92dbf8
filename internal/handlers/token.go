// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"

	"github.com/ory/fosite/handler/openid"
	"github.com/ory/fosite/token/jwt"

	"github.com/nexauth/oidcserver/internal/jwtkit"
	"github.com/nexauth/oidcserver/internal/oidcerr"
	"github.com/nexauth/oidcserver/internal/store"
)

const (
	grantTypeDeviceCode = "urn:ietf:params:oauth:grant-type:device_code"
	grantTypeCiba       = "urn:openid:params:grant-type:ciba"
	grantTypeJWTBearer  = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	grantTypePassword   = "password"
)

// Token implements POST /connect/token (spec.md §4.4), dispatching by
// grant_type. authorization_code, refresh_token, and client_credentials are
// handled entirely by fosite's own composed grant handlers; device_code,
// CIBA, password, and jwt-bearer have no fosite-native handler and are
// minted directly via mintDirectGrant.
func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		writeOidcError(w, oidcerr.Validate(oidcerr.InvalidRequest, "malformed request body"))
		return
	}

	switch r.PostForm.Get("grant_type") {
	case grantTypeDeviceCode:
		h.tokenFromDeviceCode(w, r)
	case grantTypeCiba:
		h.tokenFromCiba(w, r)
	case grantTypePassword:
		h.tokenFromPassword(w, r)
	case grantTypeJWTBearer:
		h.tokenFromJWTBearer(w, r)
	default:
		h.tokenFromFosite(w, r)
	}
}

// tokenFromFosite handles every grant fosite's composed provider already
// knows: authorization_code, refresh_token, client_credentials.
func (h *Handler) tokenFromFosite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := &openid.DefaultSession{Claims: &jwt.IDTokenClaims{}, Headers: &jwt.Headers{}}

	ar, err := h.Provider.NewAccessRequest(ctx, r, sess)
	if err != nil {
		h.Provider.WriteAccessError(ctx, w, ar, err)
		return
	}

	response, err := h.Provider.NewAccessResponse(ctx, ar)
	if err != nil {
		h.Provider.WriteAccessError(ctx, w, ar, err)
		return
	}

	h.Provider.WriteAccessResponse(ctx, w, ar, response)
}

// tokenFromDeviceCode implements the token-endpoint half of RFC 8628
// (spec.md §4.7): poll the device code, then mint tokens for the grant
// bound at approval time.
func (h *Handler) tokenFromDeviceCode(w http.ResponseWriter, r *http.Request) {
	if h.Device == nil {
		writeOidcError(w, oidcerr.Validate(oidcerr.UnsupportedGrantType, "device authorization grant is not enabled"))
		return
	}
	ctx := r.Context()
	if _, _, authErr := h.authenticateTokenEndpointClient(r); authErr != nil {
		writeOidcError(w, authErr)
		return
	}

	deviceCode := r.PostForm.Get("device_code")
	grant, err := h.Device.Poll(ctx, deviceCode)
	if err != nil {
		h.writeDeviceFailure(w, err)
		return
	}

	resp, oerr := h.mintDirectGrant(ctx, grant.Context.ClientID, grant.Context, true)
	if oerr != nil {
		writeOidcError(w, oerr)
		return
	}
	writeTokenResponse(w, resp)
}

// tokenFromCiba implements the token-endpoint half of CIBA poll mode
// (spec.md §4.4).
func (h *Handler) tokenFromCiba(w http.ResponseWriter, r *http.Request) {
	if h.Ciba == nil {
		writeOidcError(w, oidcerr.Validate(oidcerr.UnsupportedGrantType, "backchannel authentication grant is not enabled"))
		return
	}
	ctx := r.Context()
	if _, _, authErr := h.authenticateTokenEndpointClient(r); authErr != nil {
		writeOidcError(w, authErr)
		return
	}

	authReqID := r.PostForm.Get("auth_req_id")
	grant, err := h.Ciba.Poll(ctx, authReqID)
	if err != nil {
		h.writeDeviceFailure(w, err)
		return
	}

	resp, oerr := h.mintDirectGrant(ctx, grant.Context.ClientID, grant.Context, true)
	if oerr != nil {
		writeOidcError(w, oerr)
		return
	}
	writeTokenResponse(w, resp)
}

// tokenFromPassword implements grant_type=password (spec.md §4.4), enabled
// only when a PasswordGrantProvider is injected by the host; this engine
// never stores or verifies resource-owner credentials itself.
func (h *Handler) tokenFromPassword(w http.ResponseWriter, r *http.Request) {
	if h.PasswordGrant == nil {
		writeOidcError(w, oidcerr.Validate(oidcerr.UnsupportedGrantType, "password grant is not enabled"))
		return
	}
	ctx := r.Context()
	clientID, client, authErr := h.authenticateTokenEndpointClient(r)
	if authErr != nil {
		writeOidcError(w, authErr)
		return
	}

	username := r.PostForm.Get("username")
	password := r.PostForm.Get("password")
	if username == "" || password == "" {
		writeOidcError(w, oidcerr.Validate(oidcerr.InvalidRequest, "username and password are required"))
		return
	}

	actx, err := h.PasswordGrant.Authenticate(ctx, username, password)
	if err != nil {
		writeOidcError(w, oidcerr.Process(oidcerr.InvalidGrant, "invalid resource owner credentials"))
		return
	}
	actx.ClientID = clientID

	requestedScopes := splitSpace(r.PostForm.Get("scope"))
	if len(requestedScopes) > 0 {
		if !scopesAllowed(client, requestedScopes) {
			writeOidcError(w, oidcerr.Validate(oidcerr.InvalidScope, "requested scope exceeds the client's registered scopes"))
			return
		}
		actx.GrantedScopes = requestedScopes
	}

	resp, oerr := h.mintDirectGrant(ctx, clientID, actx, true)
	if oerr != nil {
		writeOidcError(w, oerr)
		return
	}
	writeTokenResponse(w, resp)
}

// tokenFromJWTBearer implements grant_type=jwt-bearer (RFC 7523, spec.md
// §4.4/§4.12): the assertion is verified against the trusted issuer's JWKS,
// its subject claim becomes the issued token's subject, and its jti is
// checked against the replay cache to enforce single-use.
func (h *Handler) tokenFromJWTBearer(w http.ResponseWriter, r *http.Request) {
	if h.TrustedAssertionIssuers == nil {
		writeOidcError(w, oidcerr.Validate(oidcerr.UnsupportedGrantType, "jwt-bearer grant is not enabled"))
		return
	}
	ctx := r.Context()
	clientID, client, authErr := h.authenticateTokenEndpointClient(r)
	if authErr != nil {
		writeOidcError(w, authErr)
		return
	}

	assertion := r.PostForm.Get("assertion")
	if assertion == "" {
		writeOidcError(w, oidcerr.Validate(oidcerr.InvalidRequest, "assertion is required"))
		return
	}

	claims, oerr := h.verifyBearerAssertion(ctx, assertion)
	if oerr != nil {
		writeOidcError(w, oerr)
		return
	}

	subject := claims.Subject()
	if subject == "" {
		writeOidcError(w, oidcerr.Validate(oidcerr.InvalidGrant, "assertion is missing a subject claim"))
		return
	}

	requestedScopes := splitSpace(r.PostForm.Get("scope"))
	if !scopesAllowed(client, requestedScopes) {
		writeOidcError(w, oidcerr.Validate(oidcerr.InvalidScope, "requested scope exceeds the client's registered scopes"))
		return
	}

	actx := store.AuthorizationContext{
		Subject:       subject,
		ClientID:      clientID,
		GrantedScopes: requestedScopes,
	}
	resp, minterr := h.mintDirectGrant(ctx, clientID, actx, false)
	if minterr != nil {
		writeOidcError(w, minterr)
		return
	}
	writeTokenResponse(w, resp)
}
