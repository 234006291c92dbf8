// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package engine composes ory/fosite into the protocol engine spec.md
// describes: an OAuth2Provider wired with the grant/response-type/
// introspection/revocation handlers the deployment enables, plus the
// hand-built CIBA, device-authorization, and PAR processors fosite has no
// native support for.
package engine

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"fmt"
	"net/url"
	"strings"
	"time"

	josejwk "github.com/go-jose/go-jose/v4"
	"github.com/ory/fosite"
)

const (
	minAccessTokenLifespan  = time.Minute
	maxAccessTokenLifespan  = 24 * time.Hour
	minRefreshTokenLifespan = time.Hour
	maxRefreshTokenLifespan = 90 * 24 * time.Hour
	maxAuthCodeLifespan     = 10 * time.Minute

	minHMACSecretLen = 32
)

// HMACSecrets is the global-secret-plus-rotation-set fosite's HMAC token
// strategy signs and verifies opaque tokens with. Rotated secrets are
// accepted for verification only, never for signing new tokens.
type HMACSecrets struct {
	Current []byte
	Rotated [][]byte
}

// NewHMACSecrets builds an HMACSecrets with no rotated secrets.
func NewHMACSecrets(current []byte) *HMACSecrets {
	return &HMACSecrets{Current: current}
}

// AuthorizationServerParams are the caller-supplied inputs
// NewAuthorizationServerConfig validates and compiles into an
// AuthorizationServerConfig.
type AuthorizationServerParams struct {
	Issuer               string
	AccessTokenLifespan  time.Duration
	RefreshTokenLifespan time.Duration
	AuthCodeLifespan     time.Duration

	HMACSecrets *HMACSecrets

	SigningKeyID        string
	SigningKeyAlgorithm string
	SigningKey          any // *rsa.PrivateKey or *ecdsa.PrivateKey

	// ScopeStrategy and AudienceMatchingStrategy default to
	// fosite.HierarchicScopeStrategy and fosite.DefaultAudienceMatchingStrategy
	// when left nil.
	ScopeStrategy            fosite.ScopeStrategy
	AudienceMatchingStrategy fosite.AudienceMatchingStrategy

	// EnforcePKCE requires PKCE for every authorization_code request,
	// public or confidential (spec.md §4.2 PKCE invariant).
	EnforcePKCE bool
}

// AuthorizationServerConfig is the compiled, validated fosite.Config plus
// the signing-key material the id_token/JWT-access-token strategies need.
type AuthorizationServerConfig struct {
	*fosite.Config

	SigningKey  *josejwk.JSONWebKey
	SigningJWKS *josejwk.JSONWebKeySet
}

// PublicJWKS returns the subset of SigningJWKS safe to publish: public key
// material only, per spec.md §4.12 "private parameters are stripped".
func (c *AuthorizationServerConfig) PublicJWKS() *josejwk.JSONWebKeySet {
	out := &josejwk.JSONWebKeySet{Keys: make([]josejwk.JSONWebKey, 0, len(c.SigningJWKS.Keys))}
	for _, k := range c.SigningJWKS.Keys {
		out.Keys = append(out.Keys, k.Public())
	}
	return out
}

// NewAuthorizationServerConfig validates params and compiles them into an
// AuthorizationServerConfig, rejecting any combination the running engine
// cannot safely serve.
func NewAuthorizationServerConfig(params *AuthorizationServerParams) (*AuthorizationServerConfig, error) {
	if params == nil {
		return nil, fmt.Errorf("engine: config is required")
	}
	if err := validateIssuer(params.Issuer); err != nil {
		return nil, err
	}
	if params.SigningKeyID == "" {
		return nil, fmt.Errorf("engine: signing key ID is required")
	}
	if params.SigningKeyAlgorithm == "" {
		return nil, fmt.Errorf("engine: signing key algorithm is required")
	}
	if params.SigningKey == nil {
		return nil, fmt.Errorf("engine: signing key is required")
	}
	if params.HMACSecrets == nil {
		return nil, fmt.Errorf("engine: HMAC secrets are required")
	}
	if len(params.HMACSecrets.Current) < minHMACSecretLen {
		return nil, fmt.Errorf("engine: current HMAC secret must be at least %d bytes", minHMACSecretLen)
	}
	if params.AccessTokenLifespan < minAccessTokenLifespan || params.AccessTokenLifespan > maxAccessTokenLifespan {
		return nil, fmt.Errorf("engine: access token lifespan must be between %s and %s", minAccessTokenLifespan, maxAccessTokenLifespan)
	}
	if params.RefreshTokenLifespan < minRefreshTokenLifespan || params.RefreshTokenLifespan > maxRefreshTokenLifespan {
		return nil, fmt.Errorf("engine: refresh token lifespan must be between %s and %s", minRefreshTokenLifespan, maxRefreshTokenLifespan)
	}
	if params.AuthCodeLifespan <= 0 || params.AuthCodeLifespan > maxAuthCodeLifespan {
		return nil, fmt.Errorf("engine: authorization code lifespan must be between 0 and %s", maxAuthCodeLifespan)
	}

	jwk := josejwk.JSONWebKey{
		Key:       params.SigningKey,
		KeyID:     params.SigningKeyID,
		Algorithm: params.SigningKeyAlgorithm,
		Use:       "sig",
	}
	if !signingAlgorithmMatchesKey(params.SigningKeyAlgorithm, params.SigningKey) {
		return nil, fmt.Errorf("engine: invalid signing configuration: algorithm %s is incompatible with key type %T", params.SigningKeyAlgorithm, params.SigningKey)
	}

	fc := &fosite.Config{
		AccessTokenIssuer:     params.Issuer,
		IDTokenIssuer:         params.Issuer,
		AccessTokenLifespan:   params.AccessTokenLifespan,
		RefreshTokenLifespan:  params.RefreshTokenLifespan,
		AuthorizeCodeLifespan: params.AuthCodeLifespan,
		GlobalSecret:          params.HMACSecrets.Current,
		RotatedGlobalSecrets:  params.HMACSecrets.Rotated,
		ScopeStrategy:         params.ScopeStrategy,
		AudienceMatchingStrategy: params.AudienceMatchingStrategy,
		EnforcePKCE:           params.EnforcePKCE,
	}
	if fc.ScopeStrategy == nil {
		fc.ScopeStrategy = fosite.HierarchicScopeStrategy
	}
	if fc.AudienceMatchingStrategy == nil {
		fc.AudienceMatchingStrategy = fosite.DefaultAudienceMatchingStrategy
	}

	return &AuthorizationServerConfig{
		Config:      fc,
		SigningKey:  &jwk,
		SigningJWKS: &josejwk.JSONWebKeySet{Keys: []josejwk.JSONWebKey{jwk}},
	}, nil
}

func validateIssuer(issuer string) error {
	if issuer == "" {
		return fmt.Errorf("engine: issuer is required")
	}
	u, err := url.Parse(issuer)
	if err != nil {
		return fmt.Errorf("engine: invalid issuer: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("engine: issuer must use http or https scheme")
	}
	if u.Host == "" {
		return fmt.Errorf("engine: issuer must have a host")
	}
	if strings.HasSuffix(issuer, "/") {
		return fmt.Errorf("engine: issuer must not have a trailing slash")
	}
	return nil
}

func signingAlgorithmMatchesKey(alg string, key any) bool {
	switch key.(type) {
	case *rsa.PrivateKey, *rsa.PublicKey:
		return strings.HasPrefix(alg, "RS") || strings.HasPrefix(alg, "PS")
	case *ecdsa.PrivateKey, *ecdsa.PublicKey:
		return strings.HasPrefix(alg, "ES")
	default:
		return false
	}
}
