// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

package clientauth

import (
	"context"
	"encoding/json"
	"time"

	josejwk "github.com/go-jose/go-jose/v4"

	"github.com/nexauth/oidcserver/internal/jwtkit"
	"github.com/nexauth/oidcserver/internal/oidcerr"
	"github.com/nexauth/oidcserver/internal/store"
)

// JWKSResolver resolves the verification keys for a private_key_jwt
// client, either from its registered inline JWKS or by fetching jwks_uri.
type JWKSResolver interface {
	Resolve(ctx context.Context, cred store.ClientCredential) (jwtkit.JsonWebKeySet, error)
}

// jwksResolverFunc adapts a plain function to JWKSResolver.
type jwksResolverFunc func(ctx context.Context, cred store.ClientCredential) (jwtkit.JsonWebKeySet, error)

func (f jwksResolverFunc) Resolve(ctx context.Context, cred store.ClientCredential) (jwtkit.JsonWebKeySet, error) {
	return f(ctx, cred)
}

// NewRemoteJWKSResolver builds a JWKSResolver backed by a jwtkit.RemoteJWKS
// cache, falling back to the credential's inline JWKS when no jwks_uri is
// registered.
func NewRemoteJWKSResolver(remote *jwtkit.RemoteJWKS) JWKSResolver {
	return jwksResolverFunc(func(ctx context.Context, cred store.ClientCredential) (jwtkit.JsonWebKeySet, error) {
		if cred.JWKSURI != "" {
			return remote.Get(ctx, cred.JWKSURI)
		}
		return inlineJWKS(cred)
	})
}

func inlineJWKS(cred store.ClientCredential) (jwtkit.JsonWebKeySet, error) {
	var set jwtkit.JsonWebKeySet
	if len(cred.JWKS) == 0 {
		return set, oidcerr.Validate(oidcerr.InvalidClient, "client has no registered JWKS")
	}
	if err := json.Unmarshal(cred.JWKS, &set); err != nil {
		return set, oidcerr.Validate(oidcerr.InvalidClient, "registered JWKS is malformed")
	}
	return set, nil
}

// AssertionAudience supplies the "aud" value assertions must target — the
// token endpoint URL, per RFC 7523 §3 / spec.md §4.
type AssertionAudience func() string

// ClientSecretJWTAuthenticator implements client_secret_jwt: the assertion
// is HMAC-signed with the client's registered symmetric key.
type ClientSecretJWTAuthenticator struct {
	Audience AssertionAudience
	Replay   store.ReplayCache
	// AssertionTTL bounds how far in the future "exp" may sit, rejecting
	// implausibly long-lived assertions before the replay cache TTL.
	AssertionTTL time.Duration
}

func (a *ClientSecretJWTAuthenticator) Method() store.ClientCredentialMethod {
	return store.AuthMethodClientSecretJWT
}

func (a *ClientSecretJWTAuthenticator) Authenticate(ctx context.Context, req ClientRequest, client store.ClientInfo) error {
	for _, cred := range client.Credentials {
		if cred.Method != store.AuthMethodClientSecretJWT || len(cred.HMACKey) == 0 {
			continue
		}
		set := jwtkit.JsonWebKeySet{Keys: []jwtkit.JsonWebKey{
			jwtkit.FromJose(josejwk.JSONWebKey{Key: cred.HMACKey, Algorithm: string(jwtkit.HS256)}),
		}}
		if err := verifyAssertion(ctx, req, client, set, jwtkit.HS256, a.Audience, a.Replay, a.AssertionTTL); err == nil {
			return nil
		}
	}
	return oidcerr.Validate(oidcerr.InvalidClient, "client_secret_jwt verification failed")
}

// PrivateKeyJWTAuthenticator implements private_key_jwt: the assertion is
// signed with the client's own registered public key (by value or URI).
type PrivateKeyJWTAuthenticator struct {
	Resolver     JWKSResolver
	Audience     AssertionAudience
	Replay       store.ReplayCache
	AssertionTTL time.Duration
}

func (a *PrivateKeyJWTAuthenticator) Method() store.ClientCredentialMethod {
	return store.AuthMethodPrivateKeyJWT
}

func (a *PrivateKeyJWTAuthenticator) Authenticate(ctx context.Context, req ClientRequest, client store.ClientInfo) error {
	for _, cred := range client.Credentials {
		if cred.Method != store.AuthMethodPrivateKeyJWT {
			continue
		}
		set, err := a.Resolver.Resolve(ctx, cred)
		if err != nil {
			continue
		}
		for _, alg := range []jwtkit.Algorithm{jwtkit.RS256, jwtkit.ES256} {
			if err := verifyAssertion(ctx, req, client, set, alg, a.Audience, a.Replay, a.AssertionTTL); err == nil {
				return nil
			}
		}
	}
	return oidcerr.Validate(oidcerr.InvalidClient, "private_key_jwt verification failed")
}

// verifyAssertion validates a client assertion's signature and registered
// claims (iss == sub == client_id, aud == token endpoint, exp/nbf/iat) and
// enforces jti replay protection, per spec.md §4's client-assertion rules
// and §5's "the replay cache ... follows the same atomic semantics".
func verifyAssertion(
	ctx context.Context,
	req ClientRequest,
	client store.ClientInfo,
	jwks jwtkit.JsonWebKeySet,
	alg jwtkit.Algorithm,
	audience AssertionAudience,
	replay store.ReplayCache,
	ttl time.Duration,
) error {
	if req.ClientAssertion == "" {
		return oidcerr.Validate(oidcerr.InvalidClient, "client_assertion is required")
	}

	claims, err := jwtkit.Verify(req.ClientAssertion, jwks, jwtkit.VerifyOptions{
		ExpectedAlgorithm: alg,
		ExpectedIssuer:    client.ClientID,
		ExpectedAudience:  audience(),
	})
	if err != nil {
		return oidcerr.Validate(oidcerr.InvalidClient, "client assertion failed verification")
	}
	if claims.Subject() != client.ClientID {
		return oidcerr.Validate(oidcerr.InvalidClient, "client assertion sub must equal client_id")
	}

	jti := claims.JTI()
	if jti == "" {
		return oidcerr.Validate(oidcerr.InvalidClient, "client assertion must carry a jti")
	}
	if ttl <= 0 {
		ttl = defaultAssertionReplayTTL
	}
	if exp, ok := claims.Expiry(); ok && time.Until(exp) > ttl {
		return oidcerr.Validate(oidcerr.InvalidClient, "client assertion exp is too far in the future")
	}
	seen, err := replay.SeenBefore(ctx, jti, ttl)
	if err != nil {
		return oidcerr.Internal(err)
	}
	if seen {
		return oidcerr.Validate(oidcerr.InvalidClient, "client assertion jti has already been used")
	}
	return nil
}

const defaultAssertionReplayTTL = 5 * time.Minute
