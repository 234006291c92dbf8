// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexauth/oidcserver/internal/jwtkit"
	"github.com/nexauth/oidcserver/internal/store"
)

func TestComputeStateAndVerifyState(t *testing.T) {
	t.Parallel()
	salt, err := NewSalt()
	require.NoError(t, err)

	state := ComputeState("client-1", "https://rp.example.com", "sess-1", salt)
	assert.True(t, VerifyState(state, "client-1", "https://rp.example.com", "sess-1"))
	assert.False(t, VerifyState(state, "client-2", "https://rp.example.com", "sess-1"))
	assert.False(t, VerifyState(state, "client-1", "https://rp.example.com", "sess-2"))
}

func TestComputeState_DifferentSaltsDifferentState(t *testing.T) {
	t.Parallel()
	salt1, err := NewSalt()
	require.NoError(t, err)
	salt2, err := NewSalt()
	require.NoError(t, err)
	require.NotEqual(t, salt1, salt2)

	s1 := ComputeState("client-1", "https://rp.example.com", "sess-1", salt1)
	s2 := ComputeState("client-1", "https://rp.example.com", "sess-1", salt2)
	assert.NotEqual(t, s1, s2)
}

func TestVerifyState_MalformedState(t *testing.T) {
	t.Parallel()
	assert.False(t, VerifyState("no-dot-here", "client-1", "origin", "sess-1"))
}

func newHMACSigner(t *testing.T) *jwtkit.Signer {
	t.Helper()
	signer, err := jwtkit.NewSigner(jwtkit.HS256, "kid-1", []byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	return signer
}

func TestLogoutTokenSigner_Sign(t *testing.T) {
	t.Parallel()
	s := &LogoutTokenSigner{Signer: newHMACSigner(t), Issuer: "https://idp.example.com"}
	token, err := s.Sign("user-1", "sess-1", time.Now())
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, 3, len(strings.Split(token, ".")))
}

func TestBackChannelNotifier_Notify(t *testing.T) {
	t.Parallel()

	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		require.NoError(t, r.ParseForm())
		assert.NotEmpty(t, r.PostForm.Get("logout_token"))
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	failingSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failingSrv.Close()

	notifier := &BackChannelNotifier{Client: http.DefaultClient, MaxConcurrency: 2, PerTargetTimeout: 2 * time.Second}
	signer := &LogoutTokenSigner{Signer: newHMACSigner(t), Issuer: "https://idp.example.com"}

	targets := []Target{
		{ClientID: "client-1", URL: srv.URL, Subject: "user-1"},
		{ClientID: "client-2", URL: srv.URL, Subject: "user-1"},
		{ClientID: "client-3", URL: failingSrv.URL, Subject: "user-1"},
	}

	// This must not panic or block despite one target failing; failures are
	// logged, not surfaced.
	notifier.Notify(context.Background(), targets, signer, "sess-1", time.Now())
	assert.EqualValues(t, 3, atomic.LoadInt64(&hits))
}

func TestBackChannelNotifier_Notify_ContextCancelled(t *testing.T) {
	t.Parallel()
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt64(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	notifier := &BackChannelNotifier{Client: http.DefaultClient}
	signer := &LogoutTokenSigner{Signer: newHMACSigner(t), Issuer: "https://idp.example.com"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	targets := []Target{{ClientID: "client-1", URL: srv.URL, Subject: "user-1"}}
	notifier.Notify(ctx, targets, signer, "sess-1", time.Now())
	assert.EqualValues(t, 0, atomic.LoadInt64(&hits))
}

type fakeClients struct {
	clients map[string]store.ClientInfo
}

func (f *fakeClients) GetClient(_ context.Context, clientID string) (store.ClientInfo, error) {
	c, ok := f.clients[clientID]
	if !ok {
		return store.ClientInfo{}, store.ErrNotFound
	}
	return c, nil
}
func (f *fakeClients) PutClient(_ context.Context, c store.ClientInfo) error {
	f.clients[c.ClientID] = c
	return nil
}
func (f *fakeClients) DeleteClient(_ context.Context, clientID string) error {
	delete(f.clients, clientID)
	return nil
}

func TestBuildFrontChannelIframes(t *testing.T) {
	t.Parallel()
	clients := &fakeClients{clients: map[string]store.ClientInfo{
		"client-1": {
			ClientID:                          "client-1",
			FrontChannelLogoutURI:             "https://rp1.example.com/logout",
			FrontChannelLogoutSessionRequired: true,
		},
		"client-2": {
			ClientID:              "client-2",
			FrontChannelLogoutURI: "https://rp2.example.com/logout",
		},
		"client-3": {
			ClientID: "client-3",
			// No front-channel logout URI registered: excluded from the result.
		},
	}}

	iframes, err := BuildFrontChannelIframes(context.Background(), clients, []string{"client-1", "client-2", "client-3"}, "https://idp.example.com", "sess-1")
	require.NoError(t, err)
	require.Len(t, iframes, 2)

	byClient := map[string]FrontChannelIframe{}
	for _, f := range iframes {
		byClient[f.ClientID] = f
	}

	u1, err := url.Parse(byClient["client-1"].URL)
	require.NoError(t, err)
	assert.Equal(t, "https://idp.example.com", u1.Query().Get("iss"))
	assert.Equal(t, "sess-1", u1.Query().Get("sid"))

	assert.Equal(t, "https://rp2.example.com/logout", byClient["client-2"].URL)
}
