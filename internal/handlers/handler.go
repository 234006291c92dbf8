// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package handlers wires the engine's fosite-backed provider, hand-built
// device/CIBA/PAR processors, and supporting stores into the HTTP surface
// spec.md §6 names. Grounded on the teacher's server/handlers package shape
// (Handler struct, Routes(), fosite response/error writing idiom) with the
// upstream-IdP-delegation flow it implements dropped entirely: spec.md's
// federation/consent Non-goal means this Handler consumes an
// already-authenticated store.AuthSession instead of redirecting to an
// external identity provider.
package handlers

import (
	"context"
	"net/http"

	"github.com/ory/fosite"

	"github.com/nexauth/oidcserver/internal/clientauth"
	"github.com/nexauth/oidcserver/internal/clock"
	"github.com/nexauth/oidcserver/internal/discovery"
	"github.com/nexauth/oidcserver/internal/engine"
	"github.com/nexauth/oidcserver/internal/httpclient"
	"github.com/nexauth/oidcserver/internal/jwtkit"
	"github.com/nexauth/oidcserver/internal/session"
	"github.com/nexauth/oidcserver/internal/store"
	"github.com/nexauth/oidcserver/internal/store/fositestore"
)

// Paths is the fully resolved set of endpoint paths this Handler registers,
// typically produced by running internal/routes.Resolver over the
// deployment's configured templates (spec.md §6's
// "[route:key?fallback]" mechanism).
type Paths struct {
	Authorization             string
	Token                     string
	Userinfo                  string
	Introspection             string
	Revocation                string
	EndSession                string
	CheckSession              string
	PAR                       string
	BackchannelAuthentication string
	DeviceAuthorization       string
	Registration              string
	Discovery                 string
	JWKS                      string
	VerifyUserCode            string
}

// DefaultPaths returns the literal endpoint paths spec.md §6 lists.
func DefaultPaths() Paths {
	return Paths{
		Authorization:             "/connect/authorize",
		Token:                     "/connect/token",
		Userinfo:                  "/connect/userinfo",
		Introspection:             "/connect/introspect",
		Revocation:                "/connect/revoke",
		EndSession:                "/connect/endsession",
		CheckSession:              "/connect/checksession",
		PAR:                       "/connect/par",
		BackchannelAuthentication: "/connect/bc-authorize",
		DeviceAuthorization:       "/connect/deviceauthorization",
		Registration:              "/connect/register",
		Discovery:                 "/.well-known/openid-configuration",
		JWKS:                      "/.well-known/jwks",
		VerifyUserCode:            "/connect/device/verify",
	}
}

// Handler composes every collaborator the endpoint methods in this package
// dispatch to. All fields are required for NewHandler except where noted.
type Handler struct {
	Provider fosite.OAuth2Provider
	Config   *engine.AuthorizationServerConfig
	Storage  *fositestore.Storage

	Clients   store.ClientStore
	Scopes    store.ScopeManager
	Resources store.ResourceManager
	Sessions  store.SessionStore
	Registry  store.TokenRegistry
	Replay    store.ReplayCache

	Validators *engine.Validators
	Device     *engine.DeviceAuthorizationProcessor
	Ciba       *engine.CibaProcessor
	PAR        *engine.PARProcessor

	ClientAuth *clientauth.Dispatcher
	HTTPClient *httpclient.Client

	Discovery discovery.Builder
	Paths     Paths

	LogoutSigner *session.LogoutTokenSigner
	BackChannel  *session.BackChannelNotifier

	Clock clock.Clock

	// ResponseSigner signs JARM response objects (response_mode=jwt and its
	// query.jwt/fragment.jwt/form_post.jwt variants, spec.md §4.5) and
	// signed userinfo responses (spec.md §4.9). Nil disables both.
	ResponseSigner *jwtkit.Signer

	// UserInfoProvider resolves the claims released at the userinfo
	// endpoint, injected by the host per spec.md §4.9's IUserInfoProvider
	// seam.
	UserInfoProvider UserInfoProvider

	// PasswordGrant is the injected identity provider for grant_type=password
	// (spec.md §4.4); nil disables the grant entirely.
	PasswordGrant PasswordGrantProvider

	// TrustedAssertionIssuers resolves JWKS for grant_type=jwt-bearer
	// trusted issuers (spec.md §4.4).
	TrustedAssertionIssuers TrustedIssuerResolver

	verifyLimiter *userCodeLimiter
}

// UserInfoProvider resolves the claims a bound subject has been granted,
// scoped to the access token's authorized scopes (spec.md §4.9).
type UserInfoProvider interface {
	Claims(ctx context.Context, subject string, scopes []string) (map[string]any, error)
}

// PasswordGrantProvider authenticates resource-owner credentials for
// grant_type=password, when enabled (spec.md §4.4).
type PasswordGrantProvider interface {
	Authenticate(ctx context.Context, username, password string) (store.AuthorizationContext, error)
}

// TrustedIssuerResolver resolves the JWKS and the single algorithm a
// trusted JWT Bearer assertion issuer is registered to sign with (spec.md
// §4.4, §4.12). The algorithm comes from server-side configuration, never
// from the assertion itself, so a caller cannot choose its own algorithm
// family to defeat alg-confusion checks.
type TrustedIssuerResolver interface {
	Resolve(ctx context.Context, issuer string) (jwtkit.JsonWebKeySet, jwtkit.Algorithm, error)
}

// NewHandler builds a Handler. Optional collaborators (Device, Ciba, PAR,
// UserInfoProvider, PasswordGrant, TrustedAssertionIssuers) may be left nil
// to disable the corresponding endpoints/grants.
func NewHandler(
	provider fosite.OAuth2Provider,
	config *engine.AuthorizationServerConfig,
	storage *fositestore.Storage,
	validators *engine.Validators,
	clientAuth *clientauth.Dispatcher,
	paths Paths,
	disco discovery.Builder,
) *Handler {
	return &Handler{
		Provider:   provider,
		Config:     config,
		Storage:    storage,
		Clients:    validators.Clients,
		Scopes:     validators.Scopes,
		Resources:  validators.Resources,
		Validators: validators,
		ClientAuth: clientAuth,
		Paths:      paths,
		Discovery:  disco,
		Clock:      clock.Real{},

		verifyLimiter: newUserCodeLimiter(),
	}
}

// Routes registers the endpoints on a fresh stdlib mux, the teacher's own
// Routes() idiom (server/handlers/*_test.go TestXHandler_RouteRegistered).
// The core endpoints, PAR, and registration are always registered (PAR
// answers with an error when no PARProcessor is set); the device
// authorization and user-code verification endpoints are registered only
// when Device is set, and backchannel authentication only when Ciba is set.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(h.Paths.Discovery, h.Discover)
	mux.HandleFunc(h.Paths.JWKS, h.JWKS)
	mux.HandleFunc(h.Paths.Authorization, h.Authorize)
	mux.HandleFunc(h.Paths.Token, h.Token)
	mux.HandleFunc(h.Paths.Userinfo, h.UserInfo)
	mux.HandleFunc(h.Paths.Introspection, h.Introspect)
	mux.HandleFunc(h.Paths.Revocation, h.Revoke)
	mux.HandleFunc(h.Paths.EndSession, h.EndSession)
	mux.HandleFunc(h.Paths.CheckSession, h.CheckSession)
	mux.HandleFunc(h.Paths.PAR, h.PushedAuthorizationRequest)
	if h.Device != nil {
		mux.HandleFunc(h.Paths.DeviceAuthorization, h.DeviceAuthorization)
		mux.HandleFunc(h.Paths.VerifyUserCode, h.VerifyUserCode)
	}
	if h.Ciba != nil {
		mux.HandleFunc(h.Paths.BackchannelAuthentication, h.BackchannelAuthenticate)
	}
	mux.HandleFunc(h.Paths.Registration, h.Register)
	return mux
}
