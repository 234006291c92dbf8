// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"encoding/json"
	"net/http/httptest"
	"net/url"
	"testing"
)

// TestRefreshTokenRotationAndReuseDetection covers spec.md §8 scenario 2:
// a grant_type=authorization_code exchange under offline_access yields a
// refresh token, grant_type=refresh_token rotates it to a new pair, and
// redeeming the now-superseded refresh token again is rejected as
// invalid_grant rather than silently re-issuing tokens.
func TestRefreshTokenRotationAndReuseDetection(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	const redirectURI = "https://client.example.com/callback"
	ts.registerConfidentialClient("client-b", "s3cret-value", redirectURI)

	code := ts.authorize(t, authorizeParams{
		clientID:    "client-b",
		redirectURI: redirectURI,
		scope:       "openid offline_access",
		state:       "abc",
		subject:     "bob",
	})

	first := ts.redeemAuthorizationCode(t, "client-b", redirectURI, code)
	if first.RefreshToken == "" {
		t.Fatal("expected a refresh_token under offline_access")
	}

	second := ts.redeemRefreshToken(t, "client-b", first.RefreshToken)
	if second.AccessToken == "" || second.RefreshToken == "" {
		t.Fatalf("expected a fresh access/refresh token pair, got %+v", second)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatal("expected refresh token rotation to mint a new refresh token")
	}

	// Reuse of the now-superseded refresh token must be rejected.
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {first.RefreshToken},
		"client_id":     {"client-b"},
	}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", ts.Handler.Paths.Token, nil)
	req.PostForm = form
	req.Form = form
	ts.Handler.Token(rec, req)
	if rec.Code == 200 {
		t.Fatalf("expected reuse of a rotated refresh token to fail, got 200: %s", rec.Body.String())
	}
}

func (ts *testServer) redeemAuthorizationCode(t *testing.T, clientID, redirectURI, code string) tokenResponse {
	t.Helper()
	form := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {redirectURI},
		"client_id":    {clientID},
	}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", ts.Handler.Paths.Token, nil)
	req.PostForm = form
	req.Form = form
	ts.Handler.Token(rec, req)
	if rec.Code != 200 {
		t.Fatalf("redeeming authorization code: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var tok tokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &tok); err != nil {
		t.Fatalf("decoding token response: %v", err)
	}
	return tok
}

func (ts *testServer) redeemRefreshToken(t *testing.T, clientID, refreshToken string) tokenResponse {
	t.Helper()
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {clientID},
	}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", ts.Handler.Paths.Token, nil)
	req.PostForm = form
	req.Form = form
	ts.Handler.Token(rec, req)
	if rec.Code != 200 {
		t.Fatalf("redeeming refresh token: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var tok tokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &tok); err != nil {
		t.Fatalf("decoding token response: %v", err)
	}
	return tok
}
