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
	defaultDeviceCodeTTL      = 5 * time.Minute
	defaultDevicePollInterval = 5 * time.Second
	deviceCodeEntropyBytes    = 32
	userCodeLength            = 8
)

// DeviceAuthorizationProcessor implements RFC 8628 (spec.md §4.7): fosite
// has no native device-flow handler, so the device_code/user_code state
// machine is hand-built directly over internal/store, sharing its
// poll-interval semantics with CibaProcessor per DESIGN.md's Open Question
// decision ("CIBA follows the same state machine as device code").
type DeviceAuthorizationProcessor struct {
	Store Devices
	Clock clock.Clock

	CodeTTL      time.Duration
	PollInterval time.Duration
	UserCodeAlphabet string
}

// Devices is the store.DeviceStore contract this processor depends on.
type Devices = store.DeviceStore

func (p *DeviceAuthorizationProcessor) ttl() time.Duration {
	if p.CodeTTL > 0 {
		return p.CodeTTL
	}
	return defaultDeviceCodeTTL
}

func (p *DeviceAuthorizationProcessor) interval() time.Duration {
	if p.PollInterval > 0 {
		return p.PollInterval
	}
	return defaultDevicePollInterval
}

func (p *DeviceAuthorizationProcessor) alphabet() string {
	if p.UserCodeAlphabet != "" {
		return p.UserCodeAlphabet
	}
	return randid.DefaultUserCodeAlphabet
}

// StartRequest is the device-authorization-endpoint input.
type StartRequest struct {
	ClientID           string
	RequestedScopes    []string
	RequestedResources []string
}

// StartResponse is returned to the device-authorization endpoint caller.
type StartResponse struct {
	DeviceCode              string
	UserCode                string
	VerificationURI         string
	VerificationURIComplete string
	ExpiresIn               int64
	Interval                int64
}

// Start generates a fresh device_code/user_code pair and records a Pending
// request (spec.md §4.7).
func (p *DeviceAuthorizationProcessor) Start(ctx context.Context, req StartRequest, verificationURI string) (StartResponse, error) {
	deviceCode, err := randid.Opaque(deviceCodeEntropyBytes)
	if err != nil {
		return StartResponse{}, oidcerr.Internal(err)
	}
	rawUserCode, err := randid.UserCode(userCodeLength, p.alphabet())
	if err != nil {
		return StartResponse{}, oidcerr.Internal(err)
	}
	userCode := rawUserCode[:4] + "-" + rawUserCode[4:]

	now := p.Clock.Now()
	ttl := p.ttl()
	record := store.DeviceAuthorizationRequest{
		DeviceCode:         deviceCode,
		UserCode:           userCode,
		ClientID:           req.ClientID,
		RequestedScopes:    req.RequestedScopes,
		RequestedResources: req.RequestedResources,
		Status:             store.DevicePending,
		NextPollAt:         now,
		ExpiresAt:          now.Add(ttl),
		Interval:           p.interval(),
	}
	if err := p.Store.Put(ctx, deviceCode, record, ttl); err != nil {
		return StartResponse{}, oidcerr.Internal(err)
	}

	return StartResponse{
		DeviceCode:              deviceCode,
		UserCode:                userCode,
		VerificationURI:         verificationURI,
		VerificationURIComplete: verificationURI + "?user_code=" + userCode,
		ExpiresIn:               int64(ttl.Seconds()),
		Interval:                int64(p.interval().Seconds()),
	}, nil
}

// Poll implements the token endpoint's
// urn:ietf:params:oauth:grant-type:device_code handling (spec.md §4.4):
// Pending before next_poll_at -> slow_down; Pending after ->
// authorization_pending; Denied -> access_denied; Authorized -> consume
// and return the bound grant exactly once.
func (p *DeviceAuthorizationProcessor) Poll(ctx context.Context, deviceCode string) (store.AuthorizedGrant, error) {
	record, err := p.Store.GetByDeviceCode(ctx, deviceCode)
	if err != nil {
		return store.AuthorizedGrant{}, oidcerr.Process(oidcerr.InvalidGrant, "unknown or expired device_code")
	}

	now := p.Clock.Now()
	switch record.Status {
	case store.DeviceDenied:
		return store.AuthorizedGrant{}, oidcerr.Process(oidcerr.AccessDenied, "end user denied the device authorization request")
	case store.DevicePending:
		if now.Before(record.NextPollAt) {
			record.NextPollAt = now.Add(p.interval())
			record.Interval = p.interval()
			_ = p.Store.Update(ctx, deviceCode, record)
			return store.AuthorizedGrant{}, oidcerr.Process(oidcerr.SlowDown, "polling too frequently")
		}
		record.NextPollAt = now.Add(p.interval())
		_ = p.Store.Update(ctx, deviceCode, record)
		return store.AuthorizedGrant{}, oidcerr.Process(oidcerr.AuthorizationPending, "authorization is still pending")
	case store.DeviceAuthorized:
		consumed, err := p.Store.TryGetAndRemoveByDeviceCode(ctx, deviceCode)
		if err != nil {
			// Another concurrent poller already consumed this device_code
			// (spec.md §5 atomic redemption invariant).
			return store.AuthorizedGrant{}, oidcerr.Process(oidcerr.InvalidGrant, "device_code already redeemed")
		}
		if consumed.Grant == nil {
			return store.AuthorizedGrant{}, oidcerr.Internal(err)
		}
		return *consumed.Grant, nil
	default:
		return store.AuthorizedGrant{}, oidcerr.Internal(nil)
	}
}

// Approve transitions a pending request to Authorized, binding the final
// AuthorizationContext the token endpoint will later issue tokens from.
func (p *DeviceAuthorizationProcessor) Approve(ctx context.Context, userCode string, grant store.AuthorizedGrant) error {
	record, err := p.Store.GetByUserCode(ctx, userCode)
	if err != nil {
		return oidcerr.Process(oidcerr.InvalidGrant, "unknown or expired user_code")
	}
	record.Status = store.DeviceAuthorized
	record.Grant = &grant
	if err := p.Store.Update(ctx, record.DeviceCode, record); err != nil {
		return oidcerr.Internal(err)
	}
	return nil
}

// Deny transitions a pending request to Denied.
func (p *DeviceAuthorizationProcessor) Deny(ctx context.Context, userCode string) error {
	record, err := p.Store.GetByUserCode(ctx, userCode)
	if err != nil {
		return oidcerr.Process(oidcerr.InvalidGrant, "unknown or expired user_code")
	}
	record.Status = store.DeviceDenied
	if err := p.Store.Update(ctx, record.DeviceCode, record); err != nil {
		return oidcerr.Internal(err)
	}
	return nil
}
