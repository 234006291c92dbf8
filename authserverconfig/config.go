// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package authserverconfig is the pure configuration surface for the OIDC
// Provider / OAuth 2.0 Authorization Server: every value here must already
// be fully resolved (no file paths, no environment lookups) so that
// Validate and applyDefaults can run without touching the filesystem or
// network. cmd/oidcserverd is responsible for turning deployment input
// (flags, env, config files) into a Config and for compiling a validated
// Config into the running engine.
package authserverconfig

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/nexauth/oidcserver/internal/obslog"
)

// MinRSAKeyBits is the minimum required RSA signing key size, per NIST SP
// 800-57.
const MinRSAKeyBits = 2048

// MinHMACSecretLength is the minimum required length, in bytes, of the
// symmetric secret used to sign opaque authorization codes and refresh
// tokens.
const MinHMACSecretLength = 32

// Config is the fully-resolved configuration for the authorization server.
type Config struct {
	// Issuer is the issuer identifier included in every "iss" claim this
	// server mints and checked against every token it verifies.
	Issuer string

	// SigningKey signs ID tokens, JWT access tokens (when enabled), JARM
	// response objects, back-channel logout tokens, and signed userinfo
	// responses.
	SigningKey SigningKeyConfig

	// HMACSecret signs opaque authorization codes, device codes, and
	// refresh tokens. Must be at least MinHMACSecretLength bytes and
	// identical across every replica in a multi-instance deployment.
	HMACSecret []byte
	// RotatedHMACSecrets are accepted for verification only, never for
	// signing new tokens; used to roll HMACSecret without invalidating
	// tokens already outstanding.
	RotatedHMACSecrets [][]byte

	AccessTokenLifespan  time.Duration
	RefreshTokenLifespan time.Duration
	AuthCodeLifespan     time.Duration
	DeviceCodeLifespan   time.Duration
	DevicePollInterval   time.Duration
	CIBARequestLifespan  time.Duration
	CIBAPollInterval     time.Duration
	PARRequestLifespan   time.Duration
	ReplayCacheTTL       time.Duration

	// EnforcePKCE requires PKCE on every authorization_code request,
	// public or confidential.
	EnforcePKCE bool

	// Clients is the list of pre-registered OAuth/OIDC clients. Clients
	// that register dynamically (Features.EnableDynamicClientRegistration)
	// are held in the running store instead and never appear here.
	Clients []ClientConfig

	Store StoreConfig

	Features FeatureToggles

	// TrustedAssertionIssuers lists the issuers a grant_type=jwt-bearer
	// assertion may assert as "iss", and where to fetch each one's JWKS.
	TrustedAssertionIssuers []TrustedIssuerConfig
}

// SigningKeyConfig is the asymmetric key this server signs with.
type SigningKeyConfig struct {
	// KeyID is published as the JWT "kid" header and in the JWKS document.
	KeyID string
	// Algorithm is one of RS256/RS384/RS512/PS256/PS384/PS512/ES256/ES384/ES512.
	Algorithm string
	// Key is the private key material; must implement crypto.Signer and
	// match Algorithm's key type and (for EC) curve.
	Key crypto.Signer
}

// ClientConfig defines a pre-registered OAuth/OIDC client.
type ClientConfig struct {
	ID            string
	Secret        string
	RedirectURIs  []string
	Public        bool
	Scopes        []string
	GrantTypes    []string
	ResponseTypes []string
}

// StoreBackend selects the storage implementation for the compiled
// engine's pushed authorization requests and replay cache. Clients,
// tokens, sessions, and device/CIBA pending grants are held in memory
// whichever backend is selected.
type StoreBackend string

const (
	StoreBackendMemory StoreBackend = "memory"
	StoreBackendRedis  StoreBackend = "redis"
)

// StoreConfig selects and configures the storage backend.
type StoreConfig struct {
	Backend StoreBackend
	// Redis* are only read when Backend == StoreBackendRedis.
	RedisAddr     string
	RedisDB       int
	RedisPassword string
	RedisPrefix   string
}

// FeatureToggles enables optional endpoints and grants. Everything
// defaults to off except the always-on authorization_code/refresh_token/
// client_credentials core. EnableDeviceAuthorization, EnableCIBA, and
// EnablePAR decide whether the server wires the matching processor.
// EnablePasswordGrant, EnableJWTBearerGrant, and
// EnableDynamicClientRegistration change only what discovery advertises:
// the registration endpoint is served either way, and the jwt-bearer grant
// is served whenever TrustedAssertionIssuers is non-empty. RequirePAR is
// only checked by Validate, and EnableJARM is not read.
type FeatureToggles struct {
	EnableDeviceAuthorization       bool
	EnableCIBA                      bool
	EnablePAR                       bool
	RequirePAR                      bool
	EnablePasswordGrant             bool
	EnableJWTBearerGrant            bool
	EnableDynamicClientRegistration bool
	EnableJARM                      bool
}

// TrustedIssuerConfig names one issuer a jwt-bearer assertion may assert,
// where its JWKS lives, and the single signing algorithm it is trusted to
// use. Algorithm is enforced server-side rather than read from the
// assertion's own header: an assertion's header is attacker-controlled, so
// pinning the expected algorithm here is what makes alg-confusion rejection
// meaningful for this issuer.
type TrustedIssuerConfig struct {
	Issuer    string
	JWKSURI   string
	Algorithm string
}

const (
	defaultAccessTokenLifespan  = time.Hour
	defaultRefreshTokenLifespan = 7 * 24 * time.Hour
	defaultAuthCodeLifespan     = 10 * time.Minute
	defaultDeviceCodeLifespan   = 10 * time.Minute
	defaultDevicePollInterval   = 5 * time.Second
	defaultCIBARequestLifespan  = 10 * time.Minute
	defaultCIBAPollInterval     = 5 * time.Second
	defaultPARRequestLifespan   = 60 * time.Second
	defaultReplayCacheTTL       = 10 * time.Minute
)

// applyDefaults fills in every zero-valued tunable with its documented
// default, leaving anything the caller already set untouched.
func (c *Config) applyDefaults() {
	obslog.Debug("applying default values to authorization server config")

	if c.AccessTokenLifespan == 0 {
		c.AccessTokenLifespan = defaultAccessTokenLifespan
	}
	if c.RefreshTokenLifespan == 0 {
		c.RefreshTokenLifespan = defaultRefreshTokenLifespan
	}
	if c.AuthCodeLifespan == 0 {
		c.AuthCodeLifespan = defaultAuthCodeLifespan
	}
	if c.DeviceCodeLifespan == 0 {
		c.DeviceCodeLifespan = defaultDeviceCodeLifespan
	}
	if c.DevicePollInterval == 0 {
		c.DevicePollInterval = defaultDevicePollInterval
	}
	if c.CIBARequestLifespan == 0 {
		c.CIBARequestLifespan = defaultCIBARequestLifespan
	}
	if c.CIBAPollInterval == 0 {
		c.CIBAPollInterval = defaultCIBAPollInterval
	}
	if c.PARRequestLifespan == 0 {
		c.PARRequestLifespan = defaultPARRequestLifespan
	}
	if c.ReplayCacheTTL == 0 {
		c.ReplayCacheTTL = defaultReplayCacheTTL
	}
	if c.Store.Backend == "" {
		c.Store.Backend = StoreBackendMemory
	}
}

// ApplyDefaults returns a copy of c with every zero-valued tunable filled
// in, leaving c itself untouched. Callers that want Validate to see the
// resolved values (lifespan bounds, for instance, are checked after
// defaulting) should call this before Validate.
func (c Config) ApplyDefaults() Config {
	c.applyDefaults()
	return c
}

// Validate checks that c is internally consistent. It does not apply
// defaults first; call ApplyDefaults beforehand if zero values should be
// resolved rather than rejected.
func (c *Config) Validate() error {
	obslog.Debugw("validating authorization server config", "issuer", c.Issuer)

	if err := validateIssuerURL(c.Issuer); err != nil {
		return err
	}
	if err := c.SigningKey.Validate(); err != nil {
		return fmt.Errorf("signing key: %w", err)
	}
	if len(c.HMACSecret) < MinHMACSecretLength {
		return fmt.Errorf("HMAC secret must be at least %d bytes", MinHMACSecretLength)
	}
	for i, client := range c.Clients {
		if err := client.Validate(); err != nil {
			return fmt.Errorf("client %d: %w", i, err)
		}
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	for i, iss := range c.TrustedAssertionIssuers {
		if iss.Issuer == "" {
			return fmt.Errorf("trusted assertion issuer %d: issuer is required", i)
		}
		if iss.JWKSURI == "" {
			return fmt.Errorf("trusted assertion issuer %d: jwks_uri is required", i)
		}
		if !isSupportedSigningAlgorithm(iss.Algorithm) {
			return fmt.Errorf("trusted assertion issuer %d: unsupported algorithm: %s", i, iss.Algorithm)
		}
	}
	if c.Features.RequirePAR && !c.Features.EnablePAR {
		return fmt.Errorf("RequirePAR cannot be set without EnablePAR")
	}

	obslog.Debugw("authorization server config validation passed",
		"issuer", c.Issuer,
		"clientCount", len(c.Clients),
	)
	return nil
}

// Validate checks that k is usable as a signing key: a known algorithm
// whose key type (and, for EC, curve) actually matches.
func (k *SigningKeyConfig) Validate() error {
	if k.KeyID == "" {
		return fmt.Errorf("key ID is required")
	}
	if k.Algorithm == "" {
		return fmt.Errorf("algorithm is required")
	}
	if k.Key == nil {
		return fmt.Errorf("key is required")
	}

	switch k.Algorithm {
	case "RS256", "RS384", "RS512", "PS256", "PS384", "PS512":
		rsaKey, ok := k.Key.(*rsa.PrivateKey)
		if !ok {
			return fmt.Errorf("RSA algorithm requires *rsa.PrivateKey, got %T", k.Key)
		}
		if rsaKey.N.BitLen() < MinRSAKeyBits {
			return fmt.Errorf("RSA key must be at least %d bits, got %d", MinRSAKeyBits, rsaKey.N.BitLen())
		}
	case "ES256", "ES384", "ES512":
		ecdsaKey, ok := k.Key.(*ecdsa.PrivateKey)
		if !ok {
			return fmt.Errorf("ECDSA algorithm requires *ecdsa.PrivateKey, got %T", k.Key)
		}
		expectedCurve := map[string]string{"ES256": "P-256", "ES384": "P-384", "ES512": "P-521"}[k.Algorithm]
		if ecdsaKey.Curve.Params().Name != expectedCurve {
			return fmt.Errorf("algorithm %s requires curve %s, got %s", k.Algorithm, expectedCurve, ecdsaKey.Curve.Params().Name)
		}
	default:
		return fmt.Errorf("unsupported algorithm: %s", k.Algorithm)
	}
	return nil
}

// isSupportedSigningAlgorithm reports whether alg is one of the asymmetric
// algorithms this server knows how to sign or verify with.
func isSupportedSigningAlgorithm(alg string) bool {
	switch alg {
	case "RS256", "RS384", "RS512", "PS256", "PS384", "PS512", "ES256", "ES384", "ES512":
		return true
	default:
		return false
	}
}

// Validate checks that c is a well-formed client registration.
func (c *ClientConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("client id is required")
	}
	if len(c.RedirectURIs) == 0 {
		return fmt.Errorf("at least one redirect_uri is required")
	}
	if !c.Public && c.Secret == "" {
		return fmt.Errorf("secret is required for confidential clients")
	}
	for i, uri := range c.RedirectURIs {
		if err := validateRedirectURI(uri); err != nil {
			return fmt.Errorf("redirect_uri[%d]: %w", i, err)
		}
	}
	return nil
}

// Validate checks that s names a supported backend and carries the
// connection details it requires.
func (s *StoreConfig) Validate() error {
	switch s.Backend {
	case "", StoreBackendMemory:
		return nil
	case StoreBackendRedis:
		if s.RedisAddr == "" {
			return fmt.Errorf("redis address is required")
		}
		return nil
	default:
		return fmt.Errorf("unsupported store backend: %s", s.Backend)
	}
}

// validateIssuerURL enforces spec.md's issuer identifier shape: an https
// URL with no query or fragment and no trailing slash, with http permitted
// only against a loopback host for local development.
func validateIssuerURL(issuer string) error {
	if issuer == "" {
		return fmt.Errorf("issuer is required")
	}
	u, err := url.Parse(issuer)
	if err != nil {
		return fmt.Errorf("invalid issuer: %w", err)
	}
	if u.Scheme == "" {
		return fmt.Errorf("issuer: scheme is required")
	}
	if u.Host == "" {
		return fmt.Errorf("issuer: host is required")
	}
	if u.RawQuery != "" {
		return fmt.Errorf("issuer must not contain a query component")
	}
	if u.Fragment != "" {
		return fmt.Errorf("issuer must not contain a fragment component")
	}
	if strings.HasSuffix(u.Path, "/") {
		return fmt.Errorf("issuer must not have a trailing slash")
	}
	switch u.Scheme {
	case "https":
	case "http":
		if !isLoopbackHost(u.Hostname()) {
			return fmt.Errorf("http scheme is only allowed for localhost")
		}
	default:
		return fmt.Errorf("issuer scheme must be https")
	}
	return nil
}

func isLoopbackHost(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}

// validateRedirectURI enforces RFC 6749 §3.1.2's absolute-URI requirement
// and rejects plain-http redirect URIs outside loopback, while allowing
// arbitrary custom schemes native/mobile clients register (e.g.
// "myapp://callback").
func validateRedirectURI(uri string) error {
	u, err := url.Parse(uri)
	if err != nil {
		return fmt.Errorf("invalid URI: %w", err)
	}
	if u.Scheme == "" {
		return fmt.Errorf("must be an absolute URI")
	}
	if u.Fragment != "" {
		return fmt.Errorf("must not contain a fragment component")
	}
	if u.Scheme == "http" && !isLoopbackHost(u.Hostname()) {
		return fmt.Errorf("http scheme is only allowed for localhost")
	}
	return nil
}
