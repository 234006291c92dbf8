// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

package jwtkit

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWKRoundTrip(t *testing.T) {
	t.Parallel()

	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	original := FromJose(jose.JSONWebKey{Key: rsaKey, KeyID: "key-1", Algorithm: "RS256", Use: "sig"})

	data, err := original.MarshalJSON()
	require.NoError(t, err)

	var decoded JsonWebKey
	require.NoError(t, decoded.UnmarshalJSON(data))

	assert.Equal(t, original.KeyID(), decoded.KeyID())
	assert.Equal(t, KtyRSA, decoded.Kty())
	assert.True(t, decoded.HasPrivateKey())

	sanitized, ok := decoded.Sanitize(false)
	require.True(t, ok)
	assert.False(t, sanitized.HasPrivateKey())
	assert.True(t, sanitized.HasPublicKey())

	sanitizedJSON, err := sanitized.MarshalJSON()
	require.NoError(t, err)
	assert.NotContains(t, string(sanitizedJSON), `"d":`)
}

func TestOctKeySanitizeStripsEntirely(t *testing.T) {
	t.Parallel()

	k := FromJose(jose.JSONWebKey{Key: []byte("0123456789abcdef0123456789abcdef"), KeyID: "hmac-1", Algorithm: "HS256"})
	assert.Equal(t, KtyOct, k.Kty())
	assert.False(t, k.HasPublicKey())
	assert.True(t, k.HasPrivateKey())

	_, ok := k.Sanitize(false)
	assert.False(t, ok)
}

func TestECDSASignatureIsFixedLengthRawConcatenation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		alg   Algorithm
		curve elliptic.Curve
		size  int
	}{
		{ES256, elliptic.P256(), 64},
		{ES384, elliptic.P384(), 96},
		{ES512, elliptic.P521(), 132},
	}

	for _, tc := range cases {
		key, err := ecdsa.GenerateKey(tc.curve, rand.Reader)
		require.NoError(t, err)

		signer, err := NewSigner(tc.alg, "kid", key)
		require.NoError(t, err)

		token, err := signer.Sign(New().WithSubject("alice"))
		require.NoError(t, err)

		parts := strings.Split(token, ".")
		require.Len(t, parts, 3)

		sigBytes, err := base64.RawURLEncoding.DecodeString(parts[2])
		require.NoError(t, err)
		assert.Len(t, sigBytes, tc.size, "alg %s", tc.alg)

		size, ok := ECDSASignatureSize(tc.alg)
		require.True(t, ok)
		assert.Equal(t, size, len(sigBytes))
	}
}

func TestSignAndVerifyRS256(t *testing.T) {
	t.Parallel()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	signer, err := NewSigner(RS256, "key-1", key)
	require.NoError(t, err)

	claims := New().WithIssuer("https://issuer.example.com").WithSubject("alice").
		WithAudience("client-1").WithExpiry(time.Now().Add(time.Hour)).WithIssuedAt(time.Now())

	token, err := signer.Sign(claims)
	require.NoError(t, err)

	jwks := JsonWebKeySet{Keys: []JsonWebKey{FromJose(jose.JSONWebKey{Key: &key.PublicKey, KeyID: "key-1", Algorithm: "RS256"})}}

	verified, err := Verify(token, jwks, VerifyOptions{
		ExpectedAlgorithm: RS256,
		ExpectedIssuer:    "https://issuer.example.com",
		ExpectedAudience:  "client-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", verified.Subject())
}

func TestVerifyRejectsExpired(t *testing.T) {
	t.Parallel()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	signer, err := NewSigner(RS256, "key-1", key)
	require.NoError(t, err)

	token, err := signer.Sign(New().WithExpiry(time.Now().Add(-time.Hour)))
	require.NoError(t, err)

	jwks := JsonWebKeySet{Keys: []JsonWebKey{FromJose(jose.JSONWebKey{Key: &key.PublicKey, KeyID: "key-1", Algorithm: "RS256"})}}
	_, err = Verify(token, jwks, VerifyOptions{ExpectedAlgorithm: RS256})
	require.Error(t, err)
	ve, ok := err.(*VerifyError)
	require.True(t, ok)
	assert.Equal(t, TokenExpired, ve.Code)
}

func TestAudienceAlwaysSerializedAsArray(t *testing.T) {
	t.Parallel()

	c := New().WithAudience("one")
	aud, ok := c["aud"].([]string)
	require.True(t, ok)
	assert.Equal(t, []string{"one"}, aud)
}
