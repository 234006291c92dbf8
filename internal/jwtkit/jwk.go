// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package jwtkit is the engine's JWT library contract: JWK/JWKS modeling,
// JWS signing/verification, and the strongly-typed claim set every issued
// token and verified assertion is read through. Cryptographic primitives
// are delegated to go-jose; the polymorphic JWK model, claim validation
// rules, and key-rotation semantics are this package's own.
package jwtkit

import (
	"encoding/json"
	"fmt"

	josejwk "github.com/go-jose/go-jose/v4"
)

// Kty is the JSON Web Key type discriminator.
type Kty string

const (
	KtyRSA Kty = "RSA"
	KtyEC  Kty = "EC"
	KtyOct Kty = "oct"
)

// JsonWebKey is a tagged variant over RSA, EC, and oct key material. It
// wraps go-jose's jose.JSONWebKey (which already restricts serialized
// fields to those legal for its Key's concrete Go type) and adds the
// Sanitize/HasPrivateKey/HasPublicKey contract spec.md §3 requires.
//
//nolint:revive // JsonWebKey (not JSONWebKey) matches the wire vocabulary used across the spec.
type JsonWebKey struct {
	inner josejwk.JSONWebKey
}

// FromJose wraps an existing go-jose key.
func FromJose(k josejwk.JSONWebKey) JsonWebKey { return JsonWebKey{inner: k} }

// Jose returns the underlying go-jose key for use with go-jose's signer/
// verifier constructors.
func (k JsonWebKey) Jose() josejwk.JSONWebKey { return k.inner }

// KeyID returns the "kid" the key is published/selected under.
func (k JsonWebKey) KeyID() string { return k.inner.KeyID }

// Algorithm returns the "alg" this key is intended for, if set.
func (k JsonWebKey) Algorithm() string { return k.inner.Algorithm }

// Kty derives the key type from the underlying Go key material — it is
// computed, never stored redundantly, matching spec.md §9's "the base
// variant's kty is derived, not stored, on each leaf" note.
func (k JsonWebKey) Kty() Kty {
	if k.inner.Key == nil {
		return ""
	}
	// go-jose already classifies by concrete Go type internally; we mirror
	// that classification by marshaling and reading "kty" back out, which
	// guarantees our notion of Kty never drifts from go-jose's.
	b, err := k.inner.MarshalJSON()
	if err != nil {
		return ""
	}
	var probe struct {
		Kty string `json:"kty"`
	}
	if err := json.Unmarshal(b, &probe); err != nil {
		return ""
	}
	return Kty(probe.Kty)
}

// HasPrivateKey reports whether the wrapped key carries private components.
func (k JsonWebKey) HasPrivateKey() bool {
	return k.inner.Key != nil && !k.inner.IsPublic()
}

// HasPublicKey reports whether the wrapped key carries public components
// (true for every valid asymmetric key and false for bare oct secrets,
// which have no public/private distinction).
func (k JsonWebKey) HasPublicKey() bool {
	if k.Kty() == KtyOct {
		return false
	}
	return k.inner.Key != nil
}

// Sanitize returns a copy that either preserves (includePrivate=true) or
// strips (includePrivate=false) private key components. Symmetric (oct)
// keys are never emitted when includePrivate is false, since an oct key's
// only representation is its secret value.
func (k JsonWebKey) Sanitize(includePrivate bool) (JsonWebKey, bool) {
	if includePrivate {
		return k, true
	}
	if k.Kty() == KtyOct {
		return JsonWebKey{}, false
	}
	pub := k.inner.Public()
	return JsonWebKey{inner: pub}, true
}

// MarshalJSON emits "kty" first by delegating to go-jose, which already
// orders the discriminator field first in its wire format.
func (k JsonWebKey) MarshalJSON() ([]byte, error) {
	return k.inner.MarshalJSON()
}

// UnmarshalJSON chooses the concrete Go key type by "kty", delegating to
// go-jose's own polymorphic decode.
func (k *JsonWebKey) UnmarshalJSON(data []byte) error {
	return k.inner.UnmarshalJSON(data)
}

// JsonWebKeySet is a JWKS document: a list of JsonWebKeys.
//
//nolint:revive
type JsonWebKeySet struct {
	Keys []JsonWebKey `json:"keys"`
}

// Sanitize returns a JWKS containing only the public material of every key,
// used to build the /.well-known/jwks response (spec.md §4.12).
func (s JsonWebKeySet) Sanitize() JsonWebKeySet {
	out := JsonWebKeySet{Keys: make([]JsonWebKey, 0, len(s.Keys))}
	for _, k := range s.Keys {
		if san, ok := k.Sanitize(false); ok {
			out.Keys = append(out.Keys, san)
		}
	}
	return out
}

// ByKeyID returns the first key published under kid.
func (s JsonWebKeySet) ByKeyID(kid string) (JsonWebKey, error) {
	for _, k := range s.Keys {
		if k.KeyID() == kid {
			return k, nil
		}
	}
	return JsonWebKey{}, fmt.Errorf("jwtkit: no key with kid %q", kid)
}

// ByAlgorithm returns every key whose alg/kty is compatible with alg,
// used when a verifying JWT omits "kid" (spec.md §4.1 "tries every key
// whose alg/kty matches").
func (s JsonWebKeySet) ByAlgorithm(alg string) []JsonWebKey {
	var out []JsonWebKey
	expectedKty := ktyForAlgorithm(alg)
	for _, k := range s.Keys {
		if k.Algorithm() != "" && k.Algorithm() != alg {
			continue
		}
		if expectedKty != "" && k.Kty() != expectedKty {
			continue
		}
		out = append(out, k)
	}
	return out
}

func ktyForAlgorithm(alg string) Kty {
	switch {
	case len(alg) >= 2 && (alg[:2] == "RS" || alg[:2] == "PS"):
		return KtyRSA
	case len(alg) >= 2 && alg[:2] == "ES":
		return KtyEC
	case len(alg) >= 2 && alg[:2] == "HS":
		return KtyOct
	default:
		return ""
	}
}
