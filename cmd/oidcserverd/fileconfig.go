// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nexauth/oidcserver/authserverconfig"
)

// fileConfig is the on-disk YAML shape oidcserverd accepts, mirroring
// authserverconfig.Config but with file paths in place of already-loaded
// key/secret material: buildConfig resolves those paths before compiling
// the engine.
type fileConfig struct {
	Issuer     string `yaml:"issuer"`
	ListenAddr string `yaml:"listen_addr"`

	SigningKeyFile      string `yaml:"signing_key_file"`
	SigningKeyID        string `yaml:"signing_key_id"`
	SigningKeyAlgorithm string `yaml:"signing_key_algorithm"`

	// HMACSecretFiles lists one or more files holding raw or hex-encoded
	// secret bytes. The first is used for signing; the rest are accepted
	// for verification only, letting a secret be rolled without
	// invalidating tokens already outstanding.
	HMACSecretFiles []string `yaml:"hmac_secret_files"`

	AccessTokenLifespan  time.Duration `yaml:"access_token_lifespan"`
	RefreshTokenLifespan time.Duration `yaml:"refresh_token_lifespan"`
	AuthCodeLifespan     time.Duration `yaml:"auth_code_lifespan"`
	DeviceCodeLifespan   time.Duration `yaml:"device_code_lifespan"`
	DevicePollInterval   time.Duration `yaml:"device_poll_interval"`
	CIBARequestLifespan  time.Duration `yaml:"ciba_request_lifespan"`
	CIBAPollInterval     time.Duration `yaml:"ciba_poll_interval"`
	PARRequestLifespan   time.Duration `yaml:"par_request_lifespan"`
	ReplayCacheTTL       time.Duration `yaml:"replay_cache_ttl"`

	EnforcePKCE bool `yaml:"enforce_pkce"`

	Clients []fileClientConfig `yaml:"clients"`
	Store   fileStoreConfig    `yaml:"store"`

	Features authserverconfig.FeatureToggles      `yaml:"features"`
	TrustedAssertionIssuers []authserverconfig.TrustedIssuerConfig `yaml:"trusted_assertion_issuers"`

	// Routes feeds internal/routes.Resolver: a map of route key to
	// `[route:key?fallback]` template, letting a deployment relocate the
	// engine under a non-default base path.
	Routes map[string]string `yaml:"routes"`

	// MTLSBaseURI, when set, derives RFC 8705 mtls_endpoint_aliases for
	// every enabled endpoint (internal/discovery.BuildMTLSAliases).
	MTLSBaseURI string `yaml:"mtls_base_uri"`
}

type fileClientConfig struct {
	ID            string   `yaml:"id"`
	Secret        string   `yaml:"secret"`
	RedirectURIs  []string `yaml:"redirect_uris"`
	Public        bool     `yaml:"public"`
	Scopes        []string `yaml:"scopes"`
	GrantTypes    []string `yaml:"grant_types"`
	ResponseTypes []string `yaml:"response_types"`
}

type fileStoreConfig struct {
	Backend       string `yaml:"backend"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisDB       int    `yaml:"redis_db"`
	RedisPassword string `yaml:"redis_password"`
	RedisPrefix   string `yaml:"redis_prefix"`
}

// loadFileConfig reads and parses a YAML config file. An empty path is
// valid: it yields a zero-valued fileConfig, and buildConfig falls back to
// ephemeral dev-mode key/secret generation (see keys.go).
func loadFileConfig(path string) (*fileConfig, error) {
	if path == "" {
		return &fileConfig{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return &fc, nil
}

// buildConfig resolves fc's file references into an authserverconfig.Config
// ready for ApplyDefaults/Validate.
func buildConfig(fc *fileConfig) (*authserverconfig.Config, error) {
	signingKey, keyID, algorithm, err := resolveSigningKey(fc.SigningKeyFile, fc.SigningKeyID, fc.SigningKeyAlgorithm)
	if err != nil {
		return nil, fmt.Errorf("signing key: %w", err)
	}

	current, rotated, err := resolveHMACSecrets(fc.HMACSecretFiles)
	if err != nil {
		return nil, fmt.Errorf("HMAC secret: %w", err)
	}

	clients := make([]authserverconfig.ClientConfig, 0, len(fc.Clients))
	for _, c := range fc.Clients {
		clients = append(clients, authserverconfig.ClientConfig{
			ID:            c.ID,
			Secret:        c.Secret,
			RedirectURIs:  c.RedirectURIs,
			Public:        c.Public,
			Scopes:        c.Scopes,
			GrantTypes:    c.GrantTypes,
			ResponseTypes: c.ResponseTypes,
		})
	}

	cfg := &authserverconfig.Config{
		Issuer: fc.Issuer,
		SigningKey: authserverconfig.SigningKeyConfig{
			KeyID:     keyID,
			Algorithm: algorithm,
			Key:       signingKey,
		},
		HMACSecret:           current,
		RotatedHMACSecrets:   rotated,
		AccessTokenLifespan:  fc.AccessTokenLifespan,
		RefreshTokenLifespan: fc.RefreshTokenLifespan,
		AuthCodeLifespan:     fc.AuthCodeLifespan,
		DeviceCodeLifespan:   fc.DeviceCodeLifespan,
		DevicePollInterval:   fc.DevicePollInterval,
		CIBARequestLifespan:  fc.CIBARequestLifespan,
		CIBAPollInterval:     fc.CIBAPollInterval,
		PARRequestLifespan:   fc.PARRequestLifespan,
		ReplayCacheTTL:       fc.ReplayCacheTTL,
		EnforcePKCE:          fc.EnforcePKCE,
		Clients:              clients,
		Store: authserverconfig.StoreConfig{
			Backend:       authserverconfig.StoreBackend(fc.Store.Backend),
			RedisAddr:     fc.Store.RedisAddr,
			RedisDB:       fc.Store.RedisDB,
			RedisPassword: fc.Store.RedisPassword,
			RedisPrefix:   fc.Store.RedisPrefix,
		},
		Features:                fc.Features,
		TrustedAssertionIssuers: fc.TrustedAssertionIssuers,
	}

	resolved := cfg.ApplyDefaults()
	if err := resolved.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &resolved, nil
}
