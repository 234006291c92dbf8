// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"github.com/ory/fosite/handler/openid"

	"github.com/nexauth/oidcserver/internal/store"
)

// newOIDCSession builds the openid.DefaultSession fosite's id_token/access-
// token strategies require, carrying the bindings recorded at authorization
// time (spec.md §3 AuthorizationContext) forward into token issuance.
// DESIGN.md notes this engine uses openid.DefaultSession directly rather
// than a wrapper type, since no teacher implementation file for its own
// JWTSession survived retrieval.
func newOIDCSession(actx store.AuthorizationContext, issuer string) *openid.DefaultSession {
	sess := openid.NewDefaultSession()
	sess.Subject = actx.Subject
	sess.Claims.Subject = actx.Subject
	sess.Claims.Issuer = issuer
	sess.Claims.Nonce = actx.Nonce
	sess.Claims.AuthTime = actx.AuthTime
	sess.Claims.AuthenticationContextClassReference = actx.ACR
	sess.Claims.AuthenticationMethodsReferences = actx.AMR
	sess.Claims.Extra = map[string]interface{}{}
	if actx.SessionID != "" {
		sess.Claims.Extra["sid"] = actx.SessionID
	}
	return sess
}
