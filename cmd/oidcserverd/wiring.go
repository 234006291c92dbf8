// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/nexauth/oidcserver/authserverconfig"
	"github.com/nexauth/oidcserver/internal/discovery"
	"github.com/nexauth/oidcserver/internal/handlers"
	"github.com/nexauth/oidcserver/internal/hashutil"
	"github.com/nexauth/oidcserver/internal/jwtkit"
	"github.com/nexauth/oidcserver/internal/routes"
	"github.com/nexauth/oidcserver/internal/store"
	"github.com/nexauth/oidcserver/internal/store/memstore"
	"github.com/nexauth/oidcserver/internal/store/redisstore"
)

// buildStores constructs every store contract the engine depends on.
// Only the PAR request store and the replay cache have a Redis-backed
// implementation (internal/store/redisstore); clients, scopes, resources,
// sessions, the token registry, and the device/CIBA pending-request stores
// stay in-memory regardless of Store.Backend, since no multi-instance
// implementation of those contracts exists (DESIGN.md "Redis store backend
// scope" decision).
func buildStores(cfg *authserverconfig.Config) (
	clients store.ClientStore,
	scopes store.ScopeManager,
	resources store.ResourceManager,
	sessions store.SessionStore,
	registry store.TokenRegistry,
	replay store.ReplayCache,
	devices store.DeviceStore,
	ciba store.CibaStore,
	par store.PARStore,
) {
	clients = memstore.NewClientStore()
	scopes = memstore.NewScopeManager()
	resources = memstore.NewResourceManager()
	sessions = memstore.NewSessionStore()
	registry = memstore.NewTokenRegistry()
	devices = memstore.NewDeviceStore()
	ciba = memstore.NewCibaStore()

	if cfg.Store.Backend == authserverconfig.StoreBackendRedis {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Store.RedisAddr,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
		})
		prefix := cfg.Store.RedisPrefix
		replay = redisstore.NewReplayCache(rdb, prefix)
		par = redisstore.New[store.PushedAuthorizationRequest](rdb, prefix+"par:")
		return
	}

	replay = memstore.NewReplayCache()
	par = memstore.New[store.PushedAuthorizationRequest]()
	return
}

// clientInfoFromConfig converts a statically pre-registered client into
// the store.ClientInfo shape the engine's validators and client-auth
// dispatcher consume. Public clients authenticate with "none"; every
// confidential client defaults to client_secret_basic, matching the
// teacher's LoopbackClient default.
func clientInfoFromConfig(c authserverconfig.ClientConfig) store.ClientInfo {
	info := store.ClientInfo{
		ClientID:      c.ID,
		RedirectURIs:  c.RedirectURIs,
		Scopes:        c.Scopes,
		GrantTypes:    defaultGrantTypes(c.GrantTypes),
		ResponseTypes: defaultResponseTypes(c.ResponseTypes),
	}

	if c.Public {
		info.TokenEndpointAuthMethod = string(store.AuthMethodNone)
		return info
	}

	info.TokenEndpointAuthMethod = string(store.AuthMethodClientSecretBasic)
	hash, err := hashutil.HashSecret(c.Secret)
	if err != nil {
		// HashSecret fails when bcrypt rejects the secret, for example one
		// longer than bcrypt's 72-byte limit; surfacing a zero-value hash
		// here would silently admit every secret, so a misconfigured
		// client is registered with no usable credential instead.
		return info
	}
	info.Credentials = []store.ClientCredential{{
		Method:     store.AuthMethodClientSecretBasic,
		SecretHash: hash,
	}}
	return info
}

func defaultGrantTypes(v []string) []string {
	if len(v) == 0 {
		return []string{"authorization_code", "refresh_token"}
	}
	return v
}

func defaultResponseTypes(v []string) []string {
	if len(v) == 0 {
		return []string{"code"}
	}
	return v
}

// routeKeys maps each configurable endpoint to the key a deployment's
// routes.Resolver templates may override, per spec.md §6/§8's
// "[route:key?fallback]" mechanism.
var routeKeys = map[string]func(*handlers.Paths) *string{
	"authorization":       func(p *handlers.Paths) *string { return &p.Authorization },
	"token":               func(p *handlers.Paths) *string { return &p.Token },
	"userinfo":            func(p *handlers.Paths) *string { return &p.Userinfo },
	"introspection":       func(p *handlers.Paths) *string { return &p.Introspection },
	"revocation":          func(p *handlers.Paths) *string { return &p.Revocation },
	"end_session":         func(p *handlers.Paths) *string { return &p.EndSession },
	"check_session":       func(p *handlers.Paths) *string { return &p.CheckSession },
	"par":                 func(p *handlers.Paths) *string { return &p.PAR },
	"backchannel_authentication": func(p *handlers.Paths) *string { return &p.BackchannelAuthentication },
	"device_authorization": func(p *handlers.Paths) *string { return &p.DeviceAuthorization },
	"registration":        func(p *handlers.Paths) *string { return &p.Registration },
	"discovery":           func(p *handlers.Paths) *string { return &p.Discovery },
	"jwks":                func(p *handlers.Paths) *string { return &p.JWKS },
	"verify_user_code":    func(p *handlers.Paths) *string { return &p.VerifyUserCode },
}

// resolvePaths starts from handlers.DefaultPaths and overrides any key
// present in templates by running it through internal/routes.Resolver.
func resolvePaths(templates map[string]string) (handlers.Paths, error) {
	paths := handlers.DefaultPaths()
	if len(templates) == 0 {
		return paths, nil
	}

	resolver := routes.New(templates)
	for key, field := range routeKeys {
		if _, ok := templates[key]; !ok {
			continue
		}
		resolved, err := resolver.ResolveKey(key)
		if err != nil {
			return paths, fmt.Errorf("route %q: %w", key, err)
		}
		*field(&paths) = resolved
	}
	return paths, nil
}

func endpointsFromPaths(issuer string, paths handlers.Paths, features authserverconfig.FeatureToggles) discovery.Endpoints {
	e := discovery.Endpoints{
		Authorization: issuer + paths.Authorization,
		Token:         issuer + paths.Token,
		Userinfo:      issuer + paths.Userinfo,
		Introspection: issuer + paths.Introspection,
		Revocation:    issuer + paths.Revocation,
		EndSession:    issuer + paths.EndSession,
		CheckSession:  issuer + paths.CheckSession,
		JWKS:          issuer + paths.JWKS,
	}
	if features.EnablePAR {
		e.PushedAuthorizationRequest = issuer + paths.PAR
	}
	if features.EnableCIBA {
		e.BackchannelAuthentication = issuer + paths.BackchannelAuthentication
	}
	if features.EnableDeviceAuthorization {
		e.DeviceAuthorization = issuer + paths.DeviceAuthorization
	}
	if features.EnableDynamicClientRegistration {
		e.Registration = issuer + paths.Registration
	}
	return e
}

func grantTypesSupported(features authserverconfig.FeatureToggles) []string {
	grants := []string{"authorization_code", "refresh_token", "client_credentials"}
	if features.EnableDeviceAuthorization {
		grants = append(grants, "urn:ietf:params:oauth:grant-type:device_code")
	}
	if features.EnableCIBA {
		grants = append(grants, "urn:openid:params:grant-type:ciba")
	}
	if features.EnablePasswordGrant {
		grants = append(grants, "password")
	}
	if features.EnableJWTBearerGrant {
		grants = append(grants, "urn:ietf:params:oauth:grant-type:jwt-bearer")
	}
	return grants
}

// trustedIssuerResolver implements handlers.TrustedIssuerResolver over a
// fixed issuer -> (jwks_uri, algorithm) map, deferring the actual
// fetch/cache to the shared jwtkit.RemoteJWKS instance every JWKS consumer
// in this process shares. The algorithm returned always comes from this
// server-side config, never from the assertion under verification.
type trustedIssuerResolver struct {
	issuers map[string]authserverconfig.TrustedIssuerConfig
	remote  *jwtkit.RemoteJWKS
}

func newTrustedIssuerResolver(issuers []authserverconfig.TrustedIssuerConfig, remote *jwtkit.RemoteJWKS) *trustedIssuerResolver {
	r := &trustedIssuerResolver{issuers: make(map[string]authserverconfig.TrustedIssuerConfig, len(issuers)), remote: remote}
	for _, iss := range issuers {
		r.issuers[iss.Issuer] = iss
	}
	return r
}

func (r *trustedIssuerResolver) Resolve(ctx context.Context, issuer string) (jwtkit.JsonWebKeySet, jwtkit.Algorithm, error) {
	iss, ok := r.issuers[issuer]
	if !ok {
		return jwtkit.JsonWebKeySet{}, "", fmt.Errorf("untrusted issuer: %s", issuer)
	}
	jwks, err := r.remote.Get(ctx, iss.JWKSURI)
	if err != nil {
		return jwtkit.JsonWebKeySet{}, "", err
	}
	return jwks, jwtkit.Algorithm(iss.Algorithm), nil
}
