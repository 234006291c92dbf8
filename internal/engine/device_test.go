// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nexauth/oidcserver/internal/store"
	"github.com/nexauth/oidcserver/internal/store/memstore"
)

// mutableClock is a test-only clock.Clock whose Now() can be advanced,
// unlike clock.Frozen.
type mutableClock struct {
	mu  sync.Mutex
	now time.Time
}

func newMutableClock(start time.Time) *mutableClock {
	return &mutableClock{now: start}
}

func (c *mutableClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mutableClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newDeviceProcessor(clk *mutableClock) (*DeviceAuthorizationProcessor, *memstore.DeviceStore) {
	ds := memstore.NewDeviceStore()
	return &DeviceAuthorizationProcessor{
		Store:        ds,
		Clock:        clk,
		PollInterval: time.Second,
	}, ds
}

func TestDeviceAuthorizationProcessor_StartGeneratesPendingRequest(t *testing.T) {
	t.Parallel()
	clk := newMutableClock(time.Unix(1_700_000_000, 0))
	p, _ := newDeviceProcessor(clk)

	resp, err := p.Start(context.Background(), StartRequest{ClientID: "client-a", RequestedScopes: []string{"openid"}}, "https://example.com/device")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if resp.DeviceCode == "" || resp.UserCode == "" {
		t.Fatal("expected non-empty device_code and user_code")
	}
	if resp.VerificationURIComplete != "https://example.com/device?user_code="+resp.UserCode {
		t.Fatalf("unexpected verification_uri_complete: %s", resp.VerificationURIComplete)
	}
	if resp.Interval != 1 {
		t.Fatalf("expected interval 1, got %d", resp.Interval)
	}
}

func TestDeviceAuthorizationProcessor_PollPendingThenSlowDown(t *testing.T) {
	t.Parallel()
	clk := newMutableClock(time.Unix(1_700_000_000, 0))
	p, _ := newDeviceProcessor(clk)

	resp, err := p.Start(context.Background(), StartRequest{ClientID: "client-a"}, "https://example.com/device")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if _, err := p.Poll(context.Background(), resp.DeviceCode); err == nil {
		t.Fatal("expected authorization_pending error")
	}

	// Poll again immediately: next_poll_at was just pushed forward, so this
	// must yield slow_down rather than authorization_pending.
	_, err = p.Poll(context.Background(), resp.DeviceCode)
	if err == nil {
		t.Fatal("expected slow_down error on immediate re-poll")
	}
}

func TestDeviceAuthorizationProcessor_ApproveThenPollConsumesOnce(t *testing.T) {
	t.Parallel()
	clk := newMutableClock(time.Unix(1_700_000_000, 0))
	p, _ := newDeviceProcessor(clk)

	resp, err := p.Start(context.Background(), StartRequest{ClientID: "client-a"}, "https://example.com/device")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	grant := store.AuthorizedGrant{Context: store.AuthorizationContext{Subject: "alice", ClientID: "client-a"}}
	if err := p.Approve(context.Background(), resp.UserCode, grant); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	got, err := p.Poll(context.Background(), resp.DeviceCode)
	if err != nil {
		t.Fatalf("Poll after approve: %v", err)
	}
	if got.Context.Subject != "alice" {
		t.Fatalf("unexpected subject: %s", got.Context.Subject)
	}

	if _, err := p.Poll(context.Background(), resp.DeviceCode); err == nil {
		t.Fatal("expected second poll of a consumed device_code to fail")
	}
}

func TestDeviceAuthorizationProcessor_Deny(t *testing.T) {
	t.Parallel()
	clk := newMutableClock(time.Unix(1_700_000_000, 0))
	p, _ := newDeviceProcessor(clk)

	resp, err := p.Start(context.Background(), StartRequest{ClientID: "client-a"}, "https://example.com/device")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := p.Deny(context.Background(), resp.UserCode); err != nil {
		t.Fatalf("Deny: %v", err)
	}
	if _, err := p.Poll(context.Background(), resp.DeviceCode); err == nil {
		t.Fatal("expected access_denied error")
	}
}

func TestDeviceAuthorizationProcessor_PollAfterIntervalYieldsAuthorizationPending(t *testing.T) {
	t.Parallel()
	clk := newMutableClock(time.Unix(1_700_000_000, 0))
	p, _ := newDeviceProcessor(clk)

	resp, err := p.Start(context.Background(), StartRequest{ClientID: "client-a"}, "https://example.com/device")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	clk.Advance(2 * time.Second)
	_, err = p.Poll(context.Background(), resp.DeviceCode)
	if err == nil {
		t.Fatal("expected authorization_pending error")
	}
}
