// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/nexauth/oidcserver/internal/store"
	"github.com/nexauth/oidcserver/internal/store/memstore"
)

func newPARProcessor(clk *mutableClock) *PARProcessor {
	return &PARProcessor{
		Store: memstore.NewWithClock[store.PushedAuthorizationRequest](clk),
		Clock: clk,
	}
}

func TestPARProcessor_PushReturnsURNShapedRequestURI(t *testing.T) {
	t.Parallel()
	clk := newMutableClock(time.Unix(1_700_000_000, 0))
	p := newPARProcessor(clk)

	requestURI, expiresIn, err := p.Push(context.Background(), "client-a", map[string][]string{
		"response_type": {"code"},
		"scope":         {"openid"},
	})
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if !strings.HasPrefix(requestURI, RequestURIScheme) {
		t.Fatalf("expected request_uri to start with %s, got %s", RequestURIScheme, requestURI)
	}
	if expiresIn <= 0 || expiresIn > int64(maxPARTTL.Seconds()) {
		t.Fatalf("expires_in out of bounds: %d", expiresIn)
	}
}

func TestPARProcessor_TTLIsClampedToMax(t *testing.T) {
	t.Parallel()
	clk := newMutableClock(time.Unix(1_700_000_000, 0))
	p := newPARProcessor(clk)
	p.TTL = 10 * time.Minute

	_, expiresIn, err := p.Push(context.Background(), "client-a", nil)
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if expiresIn != int64(maxPARTTL.Seconds()) {
		t.Fatalf("expected expires_in clamped to %v, got %d", maxPARTTL, expiresIn)
	}
}

func TestPARProcessor_ResolveConsumesExactlyOnce(t *testing.T) {
	t.Parallel()
	clk := newMutableClock(time.Unix(1_700_000_000, 0))
	p := newPARProcessor(clk)

	requestURI, _, err := p.Push(context.Background(), "client-a", map[string][]string{"scope": {"openid"}})
	if err != nil {
		t.Fatalf("Push: %v", err)
	}

	params, err := p.Resolve(context.Background(), "client-a", requestURI)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := params["scope"]; len(got) != 1 || got[0] != "openid" {
		t.Fatalf("unexpected scope param: %v", got)
	}

	if _, err := p.Resolve(context.Background(), "client-a", requestURI); err == nil {
		t.Fatal("expected second Resolve of the same request_uri to fail")
	}
}

func TestPARProcessor_ResolveRejectsClientMismatch(t *testing.T) {
	t.Parallel()
	clk := newMutableClock(time.Unix(1_700_000_000, 0))
	p := newPARProcessor(clk)

	requestURI, _, err := p.Push(context.Background(), "client-a", nil)
	if err != nil {
		t.Fatalf("Push: %v", err)
	}

	if _, err := p.Resolve(context.Background(), "client-b", requestURI); err == nil {
		t.Fatal("expected client mismatch error")
	}
}

func TestPARProcessor_ResolveRejectsUnrecognizedFormat(t *testing.T) {
	t.Parallel()
	clk := newMutableClock(time.Unix(1_700_000_000, 0))
	p := newPARProcessor(clk)

	if _, err := p.Resolve(context.Background(), "client-a", "not-a-par-uri"); err == nil {
		t.Fatal("expected format error")
	}
}
