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
	"github.com/nexauth/oidcserver/internal/jwtkit"
	"github.com/nexauth/oidcserver/internal/oidcerr"
	"github.com/nexauth/oidcserver/internal/session"
	"github.com/nexauth/oidcserver/internal/store"
)

// defaultJARMLifetime bounds how long a JWT Secured Authorization Response
// Mode response object remains valid for the client to redeem.
const defaultJARMLifetime = 5 * time.Minute

// Authorize implements GET/POST /connect/authorize (spec.md §4.5). When a
// PARProcessor is wired it resolves a pushed request_uri into the pushed
// parameters; its fetcher chain does not resolve a by-value request object
// (request) or any other request_uri. It then runs the
// domain-specific validator pipeline fosite doesn't itself enforce
// (registered-resource checks, offline_access permission, prompt=none),
// then hands the request to fosite for response_type dispatch and token
// issuance. Per spec.md's federation/consent Non-goal, the end user is
// assumed already authenticated: the caller attaches a store.AuthSession to
// the request context via ContextWithAuthSession before this handler runs.
func (h *Handler) Authorize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()

	params, err := paramsFromRequest(r)
	if err != nil {
		http.Error(w, "invalid_request", http.StatusBadRequest)
		return
	}

	resolved, ferr := h.authorizeFetchChain()(ctx, params)
	if ferr != nil {
		oerr, ok := oidcerr.As(ferr)
		if !ok {
			oerr = oidcerr.Internal(ferr)
		}
		h.writeAuthorizeFailure(w, r, params, oerr)
		return
	}

	authSession, authenticated := AuthSessionFromContext(ctx)

	vctx := &engine.ValidationContext{Params: resolved, UserAuthenticated: authenticated}
	if verr := engine.Run(ctx, vctx, h.Validators.AuthorizationPipeline()); verr != nil {
		h.writeAuthorizeFailure(w, r, resolved, verr)
		return
	}
	if !authenticated {
		h.writeAuthorizeFailure(w, r, resolved, oidcerr.Process(oidcerr.LoginRequired, "no authenticated session is associated with this request"))
		return
	}

	synthetic := requestWithParams(r, resolved)
	ar, err := h.Provider.NewAuthorizeRequest(ctx, synthetic)
	if err != nil {
		h.Provider.WriteAuthorizeError(ctx, w, ar, err)
		return
	}

	for _, scope := range ar.GetRequestedScopes() {
		ar.GrantScope(scope)
	}
	for _, aud := range ar.GetRequestedAudience() {
		ar.GrantAudience(aud)
	}

	actx := store.AuthorizationContext{
		Subject:             authSession.Subject,
		ClientID:            vctx.Client.ClientID,
		GrantedScopes:       []string(ar.GetGrantedScopes()),
		GrantedResources:    []string(ar.GetGrantedAudience()),
		Nonce:               resolved.Get("nonce"),
		ACR:                 authSession.ACR,
		AMR:                 authSession.AMR,
		AuthTime:            authSession.AuthTime,
		CodeChallenge:       resolved.Get("code_challenge"),
		CodeChallengeMethod: resolved.Get("code_challenge_method"),
		SessionID:           authSession.SessionID,
	}
	sess := newOIDCSession(actx, h.Validators.Issuer)

	response, err := h.Provider.NewAuthorizeResponse(ctx, ar, sess)
	if err != nil {
		h.Provider.WriteAuthorizeError(ctx, w, ar, err)
		return
	}

	if authSession.SessionID != "" && len(vctx.Client.RedirectURIs) > 0 {
		if salt, serr := session.NewSalt(); serr == nil {
			origin := vctx.Client.RedirectURIs[0]
			response.AddParameter("session_state", session.ComputeState(vctx.Client.ClientID, origin, authSession.SessionID, salt))
		}
	}

	if mode := resolved.Get("response_mode"); isJARMMode(mode) {
		h.writeJARMResponse(w, r, ar, response, mode)
		return
	}

	h.Provider.WriteAuthorizeResponse(ctx, w, ar, response)
}

// authorizeFetchChain composes the indirect-request resolution chain: the
// inline parameters, then the PAR fetcher when a PARProcessor is wired. The
// chain has no request-object or request-URI fetcher.
func (h *Handler) authorizeFetchChain() engine.Fetcher {
	fetchers := []engine.Fetcher{engine.PlainFetcher}
	if h.PAR != nil {
		fetchers = append(fetchers, (&engine.PARFetcher{PAR: h.PAR}).Fetch)
	}
	return engine.FetchChain(fetchers...)
}

// writeAuthorizeFailure renders an oidcerr.Error the way spec.md §6
// describes: once client_id and redirect_uri are both confirmed valid,
// errors are transported back to the client via its redirect_uri (using
// fosite's own response_mode machinery); until then, the server renders a
// plain error response directly since redirecting would itself be unsafe.
func (h *Handler) writeAuthorizeFailure(w http.ResponseWriter, r *http.Request, params engine.RequestParams, err *oidcerr.Error) {
	redirectURI := params.Get("redirect_uri")
	clientID := params.Get("client_id")
	if clientID == "" || redirectURI == "" || !h.redirectURIRegistered(r.Context(), clientID, redirectURI) {
		writeOidcError(w, err)
		return
	}

	synthetic := requestWithParams(r, params)
	ar, aerr := h.Provider.NewAuthorizeRequest(r.Context(), synthetic)
	if aerr != nil {
		// The request doesn't even parse as a valid authorize request by
		// fosite's own account (e.g. unsupported response_type) - fosite
		// knows how to transport that error safely on its own.
		h.Provider.WriteAuthorizeError(r.Context(), w, ar, aerr)
		return
	}
	h.Provider.WriteAuthorizeError(r.Context(), w, ar, &fosite.RFC6749Error{
		ErrorField:       string(err.Code),
		DescriptionField: err.Description,
		CodeField:        err.HTTPStatus(),
	})
}

func (h *Handler) redirectURIRegistered(ctx context.Context, clientID, redirectURI string) bool {
	client, cerr := h.Clients.GetClient(ctx, clientID)
	if cerr != nil {
		return false
	}
	for _, registered := range client.RedirectURIs {
		if registered == redirectURI {
			return true
		}
	}
	return false
}

func isJARMMode(mode string) bool {
	switch mode {
	case "jwt", "query.jwt", "fragment.jwt", "form_post.jwt":
		return true
	default:
		return false
	}
}

// writeJARMResponse wraps the response parameters fosite computed into a
// signed JWT response object per the JWT Secured Authorization Response
// Mode, transported via the base mode (query/fragment/form_post) the "."
// suffix names, or query by default for the bare "jwt" mode.
func (h *Handler) writeJARMResponse(w http.ResponseWriter, r *http.Request, ar fosite.AuthorizeRequester, response fosite.AuthorizeResponder, mode string) {
	if h.ResponseSigner == nil {
		h.Provider.WriteAuthorizeResponse(r.Context(), w, ar, response)
		return
	}

	now := h.Clock.Now()
	claims := jwtkit.New().
		WithIssuer(h.Validators.Issuer).
		WithAudience(ar.GetClient().GetID()).
		WithIssuedAt(now).
		WithExpiry(now.Add(defaultJARMLifetime))
	for k, v := range response.GetParameters() {
		if len(v) > 0 {
			claims[k] = v[0]
		}
	}

	token, err := h.ResponseSigner.Sign(claims)
	if err != nil {
		h.Provider.WriteAuthorizeError(r.Context(), w, ar, err)
		return
	}

	redirectURI := ar.GetRedirectURI().String()
	base := strings.TrimSuffix(mode, ".jwt")
	switch base {
	case "fragment":
		http.Redirect(w, r, redirectURI+"#response="+token, http.StatusSeeOther)
	case "form_post":
		writeFormPost(w, redirectURI, map[string]string{"response": token})
	default:
		sep := "?"
		if strings.Contains(redirectURI, "?") {
			sep = "&"
		}
		http.Redirect(w, r, redirectURI+sep+"response="+token, http.StatusSeeOther)
	}
}
