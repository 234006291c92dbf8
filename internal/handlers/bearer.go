// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/nexauth/oidcserver/internal/jwtkit"
	"github.com/nexauth/oidcserver/internal/oidcerr"
)

// bearerAssertionReplayTTL is the minimum time a redeemed assertion's jti is
// remembered; verifyBearerAssertion extends it to the assertion's own exp
// when that lies further ahead.
const bearerAssertionReplayTTL = 10 * time.Minute

// unverifiedIssuer reads "iss" from a JWT's payload segment without
// validating its signature, solely to select which trusted issuer's JWKS
// (and pinned algorithm) Verify should check the assertion against; Verify
// itself remains the only place trust is actually established. The
// assertion's own "alg" header is never consulted here — Resolve supplies
// the algorithm to expect, from server-side configuration, so a forged
// header can't pick its own algorithm family.
func unverifiedIssuer(token string) (issuer string, ok bool) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", false
	}
	payloadBytes, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return "", false
	}

	var payload struct {
		Issuer string `json:"iss"`
	}
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return "", false
	}
	if payload.Issuer == "" {
		return "", false
	}
	return payload.Issuer, true
}

// verifyBearerAssertion validates a grant_type=jwt-bearer assertion (RFC
// 7523, spec.md §4.4/§4.12): resolve the asserting issuer's JWKS, verify
// the signature and registered claims, then enforce single-use via the
// replay cache when one is configured.
func (h *Handler) verifyBearerAssertion(ctx context.Context, assertion string) (jwtkit.Claims, *oidcerr.Error) {
	issuer, ok := unverifiedIssuer(assertion)
	if !ok {
		return nil, oidcerr.Validate(oidcerr.InvalidGrant, "assertion is not a well-formed JWT")
	}

	jwks, alg, err := h.TrustedAssertionIssuers.Resolve(ctx, issuer)
	if err != nil {
		return nil, oidcerr.Validate(oidcerr.InvalidGrant, "assertion issuer is not trusted")
	}

	claims, verr := jwtkit.Verify(assertion, jwks, jwtkit.VerifyOptions{
		ExpectedAlgorithm: alg,
		ExpectedIssuer:    issuer,
		ExpectedAudience:  h.Validators.Issuer,
		Clock:             h.Clock,
	})
	if verr != nil {
		return nil, oidcerr.Validate(oidcerr.InvalidGrant, "assertion failed verification: "+verr.Error())
	}

	if h.Replay != nil {
		jti := claims.JTI()
		if jti == "" {
			return nil, oidcerr.Validate(oidcerr.InvalidGrant, "assertion is missing a jti claim")
		}
		ttl := bearerAssertionReplayTTL
		if exp, ok := claims.Expiry(); ok {
			if remaining := exp.Sub(h.Clock.Now()); remaining > ttl {
				ttl = remaining
			}
		}
		seen, err := h.Replay.SeenBefore(ctx, jti, ttl)
		if err != nil {
			return nil, oidcerr.Internal(err)
		}
		if seen {
			return nil, oidcerr.Process(oidcerr.InvalidGrant, "assertion has already been redeemed")
		}
	}

	return claims, nil
}
