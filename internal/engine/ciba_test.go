// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"testing"
	"time"

	"github.com/nexauth/oidcserver/internal/store"
	"github.com/nexauth/oidcserver/internal/store/memstore"
)

func newCibaProcessor(clk *mutableClock) *CibaProcessor {
	return &CibaProcessor{
		Store:        memstore.NewCibaStore(),
		Clock:        clk,
		PollInterval: time.Second,
		RequestTTL:   time.Minute,
	}
}

func TestCibaProcessor_StartThenPendingPoll(t *testing.T) {
	t.Parallel()
	clk := newMutableClock(time.Unix(1_700_000_000, 0))
	p := newCibaProcessor(clk)

	resp, err := p.Start(context.Background(), BackchannelAuthenticationRequest{
		ClientID: "client-a",
		Context:  store.AuthorizationContext{Subject: "alice"},
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if resp.AuthReqID == "" {
		t.Fatal("expected non-empty auth_req_id")
	}

	clk.Advance(2 * time.Second)
	if _, err := p.Poll(context.Background(), resp.AuthReqID); err == nil {
		t.Fatal("expected authorization_pending error")
	}
}

func TestCibaProcessor_SlowDownOnImmediateRepoll(t *testing.T) {
	t.Parallel()
	clk := newMutableClock(time.Unix(1_700_000_000, 0))
	p := newCibaProcessor(clk)

	resp, err := p.Start(context.Background(), BackchannelAuthenticationRequest{ClientID: "client-a"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if _, err := p.Poll(context.Background(), resp.AuthReqID); err == nil {
		t.Fatal("expected authorization_pending error")
	}
	if _, err := p.Poll(context.Background(), resp.AuthReqID); err == nil {
		t.Fatal("expected slow_down error on immediate re-poll")
	}
}

func TestCibaProcessor_ApproveThenConsumeOnce(t *testing.T) {
	t.Parallel()
	clk := newMutableClock(time.Unix(1_700_000_000, 0))
	p := newCibaProcessor(clk)

	resp, err := p.Start(context.Background(), BackchannelAuthenticationRequest{ClientID: "client-a"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	grant := store.AuthorizedGrant{Context: store.AuthorizationContext{Subject: "alice", ClientID: "client-a"}}
	if err := p.Approve(context.Background(), resp.AuthReqID, grant); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	got, err := p.Poll(context.Background(), resp.AuthReqID)
	if err != nil {
		t.Fatalf("Poll after approve: %v", err)
	}
	if got.Context.Subject != "alice" {
		t.Fatalf("unexpected subject: %s", got.Context.Subject)
	}

	if _, err := p.Poll(context.Background(), resp.AuthReqID); err == nil {
		t.Fatal("expected second poll of a consumed auth_req_id to fail")
	}
}

func TestCibaProcessor_Deny(t *testing.T) {
	t.Parallel()
	clk := newMutableClock(time.Unix(1_700_000_000, 0))
	p := newCibaProcessor(clk)

	resp, err := p.Start(context.Background(), BackchannelAuthenticationRequest{ClientID: "client-a"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := p.Deny(context.Background(), resp.AuthReqID); err != nil {
		t.Fatalf("Deny: %v", err)
	}
	if _, err := p.Poll(context.Background(), resp.AuthReqID); err == nil {
		t.Fatal("expected access_denied error")
	}
}

func TestCibaProcessor_ExpiresAfterTTL(t *testing.T) {
	t.Parallel()
	clk := newMutableClock(time.Unix(1_700_000_000, 0))
	p := newCibaProcessor(clk)
	p.RequestTTL = time.Second

	resp, err := p.Start(context.Background(), BackchannelAuthenticationRequest{ClientID: "client-a"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	clk.Advance(2 * time.Second)
	if _, err := p.Poll(context.Background(), resp.AuthReqID); err == nil {
		t.Fatal("expected expired_token error")
	}
}
