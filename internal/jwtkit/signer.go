// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

package jwtkit

import (
	"encoding/json"
	"fmt"

	jose "github.com/go-jose/go-jose/v4"
)

// Algorithm is the JWS signing algorithm, restricted to the families
// spec.md §4.1 names: RSASSA-PKCS1-v1_5, RSASSA-PSS, ECDSA, and HMAC.
type Algorithm string

const (
	RS256 Algorithm = "RS256"
	RS384 Algorithm = "RS384"
	RS512 Algorithm = "RS512"
	PS256 Algorithm = "PS256"
	PS384 Algorithm = "PS384"
	PS512 Algorithm = "PS512"
	ES256 Algorithm = "ES256"
	ES384 Algorithm = "ES384"
	ES512 Algorithm = "ES512"
	HS256 Algorithm = "HS256"
	HS384 Algorithm = "HS384"
	HS512 Algorithm = "HS512"
)

// ECDSASignatureSize returns the fixed IEEE-P1363 R||S signature length for
// the given ECDSA algorithm, per spec.md §4.1 / §8.
func ECDSASignatureSize(alg Algorithm) (int, bool) {
	switch alg {
	case ES256:
		return 64, true
	case ES384:
		return 96, true
	case ES512:
		return 132, true
	default:
		return 0, false
	}
}

// Signer signs a Claims payload into a compact JWS.
type Signer struct {
	key josejwtKey
}

type josejwtKey struct {
	alg Algorithm
	kid string
	key any
}

// NewSigner selects a go-jose signer for alg over key, rejecting any
// mismatch between the algorithm family and the key's concrete Go type —
// go-jose itself enforces this when building the signer.
func NewSigner(alg Algorithm, kid string, key any) (*Signer, error) {
	// Validate eagerly so key/algorithm mismatches surface at construction
	// time rather than on the first signed token.
	if _, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.SignatureAlgorithm(alg), Key: key}, nil); err != nil {
		return nil, fmt.Errorf("jwtkit: building signer for %s: %w", alg, err)
	}
	return &Signer{key: josejwtKey{alg: alg, kid: kid, key: key}}, nil
}

// Sign produces a compact-serialized JWS over claims.
func (s *Signer) Sign(claims Claims) (string, error) {
	opts := (&jose.SignerOptions{}).WithType("JWT")
	if s.key.kid != "" {
		opts = opts.WithHeader("kid", s.key.kid)
	}
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.SignatureAlgorithm(s.key.alg), Key: s.key.key}, opts)
	if err != nil {
		return "", fmt.Errorf("jwtkit: creating signer: %w", err)
	}

	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("jwtkit: marshaling claims: %w", err)
	}

	sig, err := signer.Sign(payload)
	if err != nil {
		return "", fmt.Errorf("jwtkit: signing: %w", err)
	}
	return sig.CompactSerialize()
}

// Algorithm returns the algorithm this signer was constructed with.
func (s *Signer) Algorithm() Algorithm { return s.key.alg }

// KeyID returns the kid this signer publishes in the JWS header.
func (s *Signer) KeyID() string { return s.key.kid }
