// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"time"

	"github.com/nexauth/oidcserver/internal/clock"
	"github.com/nexauth/oidcserver/internal/oidcerr"
	"github.com/nexauth/oidcserver/internal/randid"
	"github.com/nexauth/oidcserver/internal/store"
)

const (
	defaultPARTTL    = 60 * time.Second
	maxPARTTL        = 90 * time.Second
	parRequestURIEntropy = 32

	// RequestURIScheme is the URN prefix spec.md §4.2/RFC 9126 mandates for
	// request_uri values minted by this endpoint.
	RequestURIScheme = "urn:ietf:params:oauth:request_uri:"
)

// PARProcessor implements RFC 9126 Pushed Authorization Requests: the
// request parameters are validated the same way a plain /connect/authorize
// call would be, except without requiring the end user to be authenticated
// yet, then parked behind a short-lived request_uri for the authorization
// endpoint to retrieve later (spec.md §4.2, §4.9).
type PARProcessor struct {
	Store store.PARStore
	Clock clock.Clock

	TTL time.Duration
}

func (p *PARProcessor) ttl() time.Duration {
	ttl := p.TTL
	if ttl <= 0 {
		ttl = defaultPARTTL
	}
	if ttl > maxPARTTL {
		ttl = maxPARTTL
	}
	return ttl
}

// Push stores a validated parameter set and returns the request_uri plus
// its lifetime in seconds.
func (p *PARProcessor) Push(ctx context.Context, clientID string, params map[string][]string) (requestURI string, expiresIn int64, err error) {
	id, err := randid.Opaque(parRequestURIEntropy)
	if err != nil {
		return "", 0, oidcerr.Internal(err)
	}

	now := p.Clock.Now()
	ttl := p.ttl()
	record := store.PushedAuthorizationRequest{
		RequestURIID: id,
		ClientID:     clientID,
		Params:       params,
		ExpiresAt:    now.Add(ttl),
	}
	if err := p.Store.Put(ctx, id, record, ttl); err != nil {
		return "", 0, oidcerr.Internal(err)
	}

	return RequestURIScheme + id, int64(ttl.Seconds()), nil
}

// Resolve atomically fetches and removes the pushed request for
// requestURI, enforcing spec.md's "single use" invariant (a request_uri
// value is redeemable exactly once, mirroring the authorization code
// redemption guarantee). clientID must match the client that pushed it.
func (p *PARProcessor) Resolve(ctx context.Context, clientID, requestURI string) (map[string][]string, error) {
	id, ok := trimRequestURIScheme(requestURI)
	if !ok {
		return nil, oidcerr.Validate(oidcerr.InvalidRequest, "unrecognized request_uri format")
	}

	record, err := p.Store.TryGetAndRemove(ctx, id)
	if err != nil {
		return nil, oidcerr.Process(oidcerr.InvalidRequest, "unknown, expired, or already-used request_uri")
	}
	if record.ClientID != clientID {
		return nil, oidcerr.Process(oidcerr.InvalidRequest, "request_uri was not issued to this client")
	}
	if p.Clock.Now().After(record.ExpiresAt) {
		return nil, oidcerr.Process(oidcerr.InvalidRequest, "request_uri has expired")
	}
	return record.Params, nil
}

func trimRequestURIScheme(requestURI string) (string, bool) {
	if len(requestURI) <= len(RequestURIScheme) || requestURI[:len(RequestURIScheme)] != RequestURIScheme {
		return "", false
	}
	return requestURI[len(RequestURIScheme):], true
}
