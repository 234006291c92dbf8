// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

package jwtkit

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	jose "github.com/go-jose/go-jose/v4"

	"github.com/nexauth/oidcserver/internal/clock"
)

// VerifyErrorCode enumerates the structured validation failures spec.md
// §4.1 names.
type VerifyErrorCode string

const (
	TokenExpired      VerifyErrorCode = "TokenExpired"
	TokenNotYetValid  VerifyErrorCode = "TokenNotYetValid"
	InvalidSignature  VerifyErrorCode = "InvalidSignature"
	InvalidIssuer     VerifyErrorCode = "InvalidIssuer"
	InvalidAudience   VerifyErrorCode = "InvalidAudience"
	MalformedToken    VerifyErrorCode = "MalformedToken"
	UnknownKey        VerifyErrorCode = "UnknownKey"
)

// VerifyError is returned by Verify on any validation failure.
type VerifyError struct {
	Code    VerifyErrorCode
	Message string
}

func (e *VerifyError) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

func verr(code VerifyErrorCode, msg string) *VerifyError { return &VerifyError{Code: code, Message: msg} }

// VerifyOptions configures claim validation.
type VerifyOptions struct {
	// ExpectedAlgorithm restricts acceptable JWS "alg" header values to
	// this single algorithm family (e.g. the client's registered
	// id_token_signed_response_alg). Required: alg:none is always rejected.
	ExpectedAlgorithm Algorithm
	ExpectedIssuer    string
	ExpectedAudience  string
	// ClockSkew bounds how far ahead of "now" an "iat" may be; "exp" and
	// "nbf" are compared against "now" without any tolerance. Defaults to
	// 60s per spec.md §4.1.
	ClockSkew time.Duration
	Clock     clock.Clock
}

const defaultClockSkew = 60 * time.Second

// Verify parses a compact JWS, resolves the verification key from jwks by
// "kid" (or, absent kid, tries every key whose alg/kty matches), checks the
// signature, and validates the registered claims per spec.md §4.1.
func Verify(token string, jwks JsonWebKeySet, opts VerifyOptions) (Claims, error) {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.ClockSkew == 0 {
		opts.ClockSkew = defaultClockSkew
	}
	if opts.ExpectedAlgorithm == "" {
		return nil, verr(MalformedToken, "no expected algorithm configured")
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, verr(MalformedToken, "token is not a three-part compact JWS")
	}

	sig, err := jose.ParseSigned(token, []jose.SignatureAlgorithm{jose.SignatureAlgorithm(opts.ExpectedAlgorithm)})
	if err != nil {
		return nil, verr(MalformedToken, err.Error())
	}
	if len(sig.Signatures) == 0 {
		return nil, verr(MalformedToken, "no signatures present")
	}
	header := sig.Signatures[0].Header
	if header.Algorithm == "" || string(jose.SignatureAlgorithm(header.Algorithm)) == "none" {
		return nil, verr(InvalidSignature, "alg:none is never accepted")
	}
	if header.Algorithm != string(opts.ExpectedAlgorithm) {
		return nil, verr(InvalidSignature, fmt.Sprintf("unexpected alg %q, want %q", header.Algorithm, opts.ExpectedAlgorithm))
	}

	candidates, err := candidateKeys(jwks, header.KeyID, opts.ExpectedAlgorithm)
	if err != nil {
		return nil, err
	}

	var payload []byte
	var verifyErr error
	for _, k := range candidates {
		payload, verifyErr = sig.Verify(k.Jose())
		if verifyErr == nil {
			break
		}
	}
	if verifyErr != nil {
		return nil, verr(InvalidSignature, "signature verification failed against every candidate key")
	}

	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, verr(MalformedToken, "payload is not a JSON object")
	}

	if err := validateRegisteredClaims(claims, opts); err != nil {
		return nil, err
	}
	return claims, nil
}

func candidateKeys(jwks JsonWebKeySet, kid string, alg Algorithm) ([]JsonWebKey, error) {
	if kid != "" {
		k, err := jwks.ByKeyID(kid)
		if err != nil {
			return nil, verr(UnknownKey, err.Error())
		}
		return []JsonWebKey{k}, nil
	}
	candidates := jwks.ByAlgorithm(string(alg))
	if len(candidates) == 0 {
		return nil, verr(UnknownKey, "no key matches the token's algorithm")
	}
	return candidates, nil
}

func validateRegisteredClaims(claims Claims, opts VerifyOptions) error {
	now := opts.Clock.Now()

	if exp, ok := claims.Expiry(); ok {
		if !now.Before(exp) {
			return verr(TokenExpired, "exp is not strictly in the future")
		}
	}
	if nbf, ok := claims.NotBefore(); ok {
		if nbf.After(now) {
			return verr(TokenNotYetValid, "nbf is in the future")
		}
	}
	if iat, ok := claims.IssuedAt(); ok {
		if iat.After(now.Add(opts.ClockSkew)) {
			return verr(MalformedToken, "iat is too far in the future")
		}
	}
	if opts.ExpectedIssuer != "" && claims.Issuer() != opts.ExpectedIssuer {
		return verr(InvalidIssuer, fmt.Sprintf("iss %q does not match expected %q", claims.Issuer(), opts.ExpectedIssuer))
	}
	if opts.ExpectedAudience != "" {
		found := false
		for _, a := range claims.Audience() {
			if a == opts.ExpectedAudience {
				found = true
				break
			}
		}
		if !found {
			return verr(InvalidAudience, fmt.Sprintf("aud does not include expected %q", opts.ExpectedAudience))
		}
	}
	return nil
}
