// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

package jwtkit

import (
	"encoding/json"
	"time"
)

// Claims is the payload of an issued or verified JWT: a free-form JSON
// object plus strongly-typed accessors for the registered and OIDC claims
// the engine reads and writes most often. Multi-valued claims are always
// serialized as JSON arrays, never collapsed to their first value.
type Claims map[string]any

func New() Claims { return Claims{} }

func (c Claims) WithIssuer(iss string) Claims             { c["iss"] = iss; return c }
func (c Claims) WithSubject(sub string) Claims            { c["sub"] = sub; return c }
func (c Claims) WithJTI(jti string) Claims                { c["jti"] = jti; return c }
func (c Claims) WithClientID(clientID string) Claims      { c["client_id"] = clientID; return c }
func (c Claims) WithScope(scope string) Claims            { c["scope"] = scope; return c }
func (c Claims) WithNonce(nonce string) Claims            { c["nonce"] = nonce; return c }
func (c Claims) WithACR(acr string) Claims                { c["acr"] = acr; return c }
func (c Claims) WithAMR(amr []string) Claims              { c["amr"] = amr; return c }
func (c Claims) WithAuthTime(t time.Time) Claims          { c["auth_time"] = t.Unix(); return c }
func (c Claims) WithIssuedAt(t time.Time) Claims          { c["iat"] = t.Unix(); return c }
func (c Claims) WithExpiry(t time.Time) Claims            { c["exp"] = t.Unix(); return c }
func (c Claims) WithNotBefore(t time.Time) Claims         { c["nbf"] = t.Unix(); return c }

// WithAudience always serializes as a JSON array, even for a single
// audience, per spec.md §4.1 "never as the first value only".
func (c Claims) WithAudience(aud ...string) Claims { c["aud"] = aud; return c }

// WithConfirmation sets the cnf claim for a sender-constrained (mTLS-bound)
// token: {"x5t#S256": thumbprint}.
func (c Claims) WithConfirmation(x5tS256 string) Claims {
	c["cnf"] = map[string]string{"x5t#S256": x5tS256}
	return c
}

func (c Claims) Issuer() string    { return c.stringClaim("iss") }
func (c Claims) Subject() string   { return c.stringClaim("sub") }
func (c Claims) JTI() string       { return c.stringClaim("jti") }
func (c Claims) ClientID() string  { return c.stringClaim("client_id") }
func (c Claims) Scope() string     { return c.stringClaim("scope") }
func (c Claims) Nonce() string     { return c.stringClaim("nonce") }
func (c Claims) ACR() string       { return c.stringClaim("acr") }

func (c Claims) stringClaim(key string) string {
	v, _ := c[key].(string)
	return v
}

// Audience normalizes the "aud" claim, which per RFC 7519 may be a single
// string or an array of strings.
func (c Claims) Audience() []string {
	switch v := c["aud"].(type) {
	case string:
		return []string{v}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func (c Claims) timeClaim(key string) (time.Time, bool) {
	v, ok := c[key]
	if !ok {
		return time.Time{}, false
	}
	switch n := v.(type) {
	case float64:
		return time.Unix(int64(n), 0), true
	case int64:
		return time.Unix(n, 0), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return time.Time{}, false
		}
		return time.Unix(i, 0), true
	default:
		return time.Time{}, false
	}
}

func (c Claims) Expiry() (time.Time, bool)    { return c.timeClaim("exp") }
func (c Claims) IssuedAt() (time.Time, bool)  { return c.timeClaim("iat") }
func (c Claims) NotBefore() (time.Time, bool) { return c.timeClaim("nbf") }
func (c Claims) AuthTime() (time.Time, bool)  { return c.timeClaim("auth_time") }

// AMR returns the authentication methods reference list.
func (c Claims) AMR() []string {
	switch v := c["amr"].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
