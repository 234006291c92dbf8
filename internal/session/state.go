// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package session implements the server-side session tracking spec.md §3/
// §4.10 describes: session_state computation for the OIDC Session
// Management draft, and front/back-channel logout fan-out at end-session
// time. Grounded on the teacher's session package shape
// (internal/teacherref/authserver/server/session/session_test.go), adapted
// from an upstream-IdP JWTSession wrapper to the server's own
// session_state/logout concerns.
package session

import (
	"fmt"

	"github.com/nexauth/oidcserver/internal/hashutil"
	"github.com/nexauth/oidcserver/internal/randid"
)

// NewSalt returns a fresh random salt for ComputeState, per the OIDC
// Session Management draft's "session_state = ... + '.' + salt" format.
func NewSalt() (string, error) {
	return randid.Opaque(16)
}

// ComputeState derives the session_state value returned alongside
// authorization responses: base64url(SHA256(client_id + origin + sid +
// salt)), dot-joined with the salt so the RP can recompute and compare it
// after any subsequent change to sid (spec.md §3 "Session").
func ComputeState(clientID, origin, sessionID, salt string) string {
	material := fmt.Sprintf("%s%s%s%s", clientID, origin, sessionID, salt)
	return hashutil.SHA256Base64URL([]byte(material)) + "." + salt
}

// VerifyState reports whether state matches the session_state that would
// be computed right now for the given client/origin/session, used by the
// /check_session_iframe contract (spec.md §6 CheckSession).
func VerifyState(state, clientID, origin, sessionID string) bool {
	salt := saltOf(state)
	if salt == "" {
		return false
	}
	return hashutil.ConstantTimeEqual(state, ComputeState(clientID, origin, sessionID, salt))
}

func saltOf(state string) string {
	for i := len(state) - 1; i >= 0; i-- {
		if state[i] == '.' {
			return state[i+1:]
		}
	}
	return ""
}
