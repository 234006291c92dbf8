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
	defaultCibaRequestTTL   = 15 * time.Minute
	defaultCibaPollInterval = 5 * time.Second
	cibaAuthReqIDEntropy    = 32
)

// CibaProcessor implements the Client-Initiated Backchannel Authentication
// polling mode (spec.md §4.4): fosite has no native CIBA support, so this
// state machine is hand-built directly over internal/store, sharing its
// poll-interval/slow_down semantics with DeviceAuthorizationProcessor per
// DESIGN.md's Open Question decision.
type CibaProcessor struct {
	Store CibaRequests
	Clock clock.Clock

	RequestTTL   time.Duration
	PollInterval time.Duration
}

// CibaRequests is the store.CibaStore contract this processor depends on.
type CibaRequests = store.CibaStore

func (p *CibaProcessor) ttl() time.Duration {
	if p.RequestTTL > 0 {
		return p.RequestTTL
	}
	return defaultCibaRequestTTL
}

func (p *CibaProcessor) interval() time.Duration {
	if p.PollInterval > 0 {
		return p.PollInterval
	}
	return defaultCibaPollInterval
}

// BackchannelAuthenticationRequest is the /connect/bc-authorize endpoint
// input.
type BackchannelAuthenticationRequest struct {
	ClientID string
	Context  store.AuthorizationContext
}

// BackchannelAuthenticationResponse is returned to the endpoint caller.
type BackchannelAuthenticationResponse struct {
	AuthReqID string
	ExpiresIn int64
	Interval  int64
}

// Start records a new pending CIBA request, keyed by a freshly generated
// auth_req_id.
func (p *CibaProcessor) Start(ctx context.Context, req BackchannelAuthenticationRequest) (BackchannelAuthenticationResponse, error) {
	authReqID, err := randid.Opaque(cibaAuthReqIDEntropy)
	if err != nil {
		return BackchannelAuthenticationResponse{}, oidcerr.Internal(err)
	}

	now := p.Clock.Now()
	ttl := p.ttl()
	record := store.CibaAuthRequest{
		AuthReqID:  authReqID,
		ClientID:   req.ClientID,
		Context:    req.Context,
		Status:     store.CibaPending,
		NextPollAt: now,
		ExpiresAt:  now.Add(ttl),
		Interval:   p.interval(),
	}
	if err := p.Store.Put(ctx, authReqID, record, ttl); err != nil {
		return BackchannelAuthenticationResponse{}, oidcerr.Internal(err)
	}

	return BackchannelAuthenticationResponse{
		AuthReqID: authReqID,
		ExpiresIn: int64(ttl.Seconds()),
		Interval:  int64(p.interval().Seconds()),
	}, nil
}

// Poll implements the token endpoint's
// urn:openid:params:grant-type:ciba handling, identical in shape to
// DeviceAuthorizationProcessor.Poll: pending-before-next_poll_at ->
// slow_down; pending-after -> authorization_pending; expired -> expired_token;
// denied -> access_denied; authorized -> consume and return once.
func (p *CibaProcessor) Poll(ctx context.Context, authReqID string) (store.AuthorizedGrant, error) {
	record, err := p.Store.Get(ctx, authReqID)
	if err != nil {
		return store.AuthorizedGrant{}, oidcerr.Process(oidcerr.InvalidGrant, "unknown or expired auth_req_id")
	}

	now := p.Clock.Now()
	switch record.Status {
	case store.CibaDenied:
		return store.AuthorizedGrant{}, oidcerr.Process(oidcerr.AccessDenied, "end user denied the backchannel authentication request")
	case store.CibaExpired:
		return store.AuthorizedGrant{}, oidcerr.Process(oidcerr.ExpiredToken, "the auth_req_id has expired")
	case store.CibaPending:
		if now.After(record.ExpiresAt) {
			record.Status = store.CibaExpired
			_ = p.Store.Update(ctx, authReqID, record)
			return store.AuthorizedGrant{}, oidcerr.Process(oidcerr.ExpiredToken, "the auth_req_id has expired")
		}
		if now.Before(record.NextPollAt) {
			record.NextPollAt = now.Add(p.interval())
			_ = p.Store.Update(ctx, authReqID, record)
			return store.AuthorizedGrant{}, oidcerr.Process(oidcerr.SlowDown, "polling too frequently")
		}
		record.NextPollAt = now.Add(p.interval())
		_ = p.Store.Update(ctx, authReqID, record)
		return store.AuthorizedGrant{}, oidcerr.Process(oidcerr.AuthorizationPending, "authorization is still pending")
	case store.CibaAuthorized:
		consumed, err := p.Store.TryGetAndRemove(ctx, authReqID)
		if err != nil {
			return store.AuthorizedGrant{}, oidcerr.Process(oidcerr.InvalidGrant, "auth_req_id already redeemed")
		}
		if consumed.Grant == nil {
			return store.AuthorizedGrant{}, oidcerr.Internal(err)
		}
		return *consumed.Grant, nil
	default:
		return store.AuthorizedGrant{}, oidcerr.Internal(nil)
	}
}

// Approve transitions a pending request to Authorized, binding the grant
// the token endpoint will later issue tokens from.
func (p *CibaProcessor) Approve(ctx context.Context, authReqID string, grant store.AuthorizedGrant) error {
	record, err := p.Store.Get(ctx, authReqID)
	if err != nil {
		return oidcerr.Process(oidcerr.InvalidGrant, "unknown or expired auth_req_id")
	}
	record.Status = store.CibaAuthorized
	record.Grant = &grant
	if err := p.Store.Update(ctx, authReqID, record); err != nil {
		return oidcerr.Internal(err)
	}
	return nil
}

// Deny transitions a pending request to Denied.
func (p *CibaProcessor) Deny(ctx context.Context, authReqID string) error {
	record, err := p.Store.Get(ctx, authReqID)
	if err != nil {
		return oidcerr.Process(oidcerr.InvalidGrant, "unknown or expired auth_req_id")
	}
	record.Status = store.CibaDenied
	if err := p.Store.Update(ctx, authReqID, record); err != nil {
		return oidcerr.Internal(err)
	}
	return nil
}
