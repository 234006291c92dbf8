// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/nexauth/oidcserver/internal/engine"
	"github.com/nexauth/oidcserver/internal/oidcerr"
	"github.com/nexauth/oidcserver/internal/store"
)

// DeviceAuthorization implements POST /connect/deviceauthorization (spec.md
// §4.7): starts a device_code/user_code pair for a client that cannot
// display a browser-based authorization UI.
func (h *Handler) DeviceAuthorization(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		writeOidcError(w, oidcerr.Validate(oidcerr.InvalidRequest, "malformed request body"))
		return
	}

	ctx := r.Context()
	clientID, _, authErr := h.authenticateTokenEndpointClient(r)
	if authErr != nil {
		writeOidcError(w, authErr)
		return
	}

	req := engine.StartRequest{
		ClientID:           clientID,
		RequestedScopes:    splitSpace(r.PostForm.Get("scope")),
		RequestedResources: r.PostForm["resource"],
	}
	resp, err := h.Device.Start(ctx, req, h.verificationURI())
	if err != nil {
		oerr, ok := oidcerr.As(err)
		if !ok {
			oerr = oidcerr.Internal(err)
		}
		writeOidcError(w, oerr)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		DeviceCode              string `json:"device_code"`
		UserCode                string `json:"user_code"`
		VerificationURI         string `json:"verification_uri"`
		VerificationURIComplete string `json:"verification_uri_complete"`
		ExpiresIn               int64  `json:"expires_in"`
		Interval                int64  `json:"interval"`
	}{
		DeviceCode:              resp.DeviceCode,
		UserCode:                resp.UserCode,
		VerificationURI:         resp.VerificationURI,
		VerificationURIComplete: resp.VerificationURIComplete,
		ExpiresIn:               resp.ExpiresIn,
		Interval:                resp.Interval,
	})
}

func (h *Handler) verificationURI() string {
	return h.Validators.Issuer + h.Paths.VerifyUserCode
}

// VerifyUserCode implements the end-user-facing half of RFC 8628: binding
// an authenticated session to a pending user_code. Per spec.md's
// consent/UI Non-goal this expects the host to have already authenticated
// the user and attached a store.AuthSession before a decision is posted;
// every attempt, successful or not, counts against the rate limiter to
// blunt user_code brute-forcing (DESIGN.md).
func (h *Handler) VerifyUserCode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		writeOidcError(w, oidcerr.Validate(oidcerr.InvalidRequest, "malformed request body"))
		return
	}

	userCode := strings.ToUpper(strings.TrimSpace(r.Form.Get("user_code")))
	if userCode == "" {
		writeOidcError(w, oidcerr.Validate(oidcerr.InvalidRequest, "user_code is required"))
		return
	}

	if !h.verifyLimiter.Allow(userCode) {
		writeOidcError(w, oidcerr.Process(oidcerr.SlowDown, "too many verification attempts for this user_code"))
		return
	}

	if r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, struct {
			UserCode string `json:"user_code"`
		}{UserCode: userCode})
		return
	}

	decision := r.Form.Get("decision")
	if decision == "deny" {
		if err := h.Device.Deny(r.Context(), userCode); err != nil {
			h.writeDeviceFailure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Status string `json:"status"`
		}{Status: "denied"})
		return
	}

	authSession, ok := AuthSessionFromContext(r.Context())
	if !ok {
		writeOidcError(w, oidcerr.Process(oidcerr.LoginRequired, "no authenticated session is associated with this request"))
		return
	}

	record, err := h.Device.Store.GetByUserCode(r.Context(), userCode)
	if err != nil {
		writeOidcError(w, oidcerr.Process(oidcerr.InvalidGrant, "unknown or expired user_code"))
		return
	}

	grant := store.AuthorizedGrant{
		Context: store.AuthorizationContext{
			Subject:          authSession.Subject,
			ClientID:         record.ClientID,
			GrantedScopes:    record.RequestedScopes,
			GrantedResources: record.RequestedResources,
			ACR:              authSession.ACR,
			AMR:              authSession.AMR,
			AuthTime:         authSession.AuthTime,
			SessionID:        authSession.SessionID,
		},
	}
	if err := h.Device.Approve(r.Context(), userCode, grant); err != nil {
		h.writeDeviceFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Status string `json:"status"`
	}{Status: "approved"})
}

func (h *Handler) writeDeviceFailure(w http.ResponseWriter, err error) {
	oerr, ok := oidcerr.As(err)
	if !ok {
		oerr = oidcerr.Internal(err)
	}
	writeOidcError(w, oerr)
}

func splitSpace(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Fields(s)
}

// scopesAllowed reports whether every requested scope is among the
// client's registered scopes.
func scopesAllowed(client store.ClientInfo, requested []string) bool {
	allowed := make(map[string]bool, len(client.Scopes))
	for _, s := range client.Scopes {
		allowed[s] = true
	}
	for _, s := range requested {
		if !allowed[s] {
			return false
		}
	}
	return true
}

// userCodeLimiter bounds verification attempts per user_code, recording
// every attempt (including valid ones) so a correct guess after a burst of
// wrong ones still counts toward the limit (DESIGN.md Open Question:
// "always records the attempt, even valid ones").
type userCodeLimiter struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
	limit    int
	window   time.Duration
}

func newUserCodeLimiter() *userCodeLimiter {
	return &userCodeLimiter{
		attempts: make(map[string][]time.Time),
		limit:    5,
		window:   time.Minute,
	}
}

// Allow reports whether another attempt against code is permitted right
// now, recording this attempt regardless of the outcome.
func (l *userCodeLimiter) Allow(code string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-l.window)
	kept := l.attempts[code][:0]
	for _, t := range l.attempts[code] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	allowed := len(kept) < l.limit
	l.attempts[code] = append(kept, now)
	return allowed
}
