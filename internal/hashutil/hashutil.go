// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package hashutil provides the SHA-256/512 primitives used by PKCE
// (S256 code_challenge), mTLS confirmation (cnf.x5t#S256), and client
// secret hashing.
package hashutil

import (
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"

	"golang.org/x/crypto/bcrypt"
)

// SHA256Base64URL returns base64url(SHA256(data)), no padding — the exact
// transform PKCE's S256 method and mTLS's cnf.x5t#S256 both require.
func SHA256Base64URL(data []byte) string {
	sum := sha256.Sum256(data)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// SHA512Base64URL returns base64url(SHA512(data)), no padding.
func SHA512Base64URL(data []byte) string {
	sum := sha512.Sum512(data)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// ConstantTimeEqual compares two strings without leaking timing
// information, used for the PKCE "plain" method and bearer token
// comparisons that are not already hash-protected.
func ConstantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// HashSecret returns a bcrypt hash of a client secret for storage.
func HashSecret(secret string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// VerifySecret reports whether secret matches the stored bcrypt hash.
func VerifySecret(hash, secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}
