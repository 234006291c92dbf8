// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get/TryGetAndRemove when key does not exist
// (or has already expired/been consumed).
var ErrNotFound = errors.New("store: not found")

// TTLStore is the generic opaque-key persistence contract from spec.md §6:
// Put/Get/Update/Delete, plus TryGetAndRemove for the atomic
// get-and-remove the code/device/CIBA/replay stores require.
type TTLStore[T any] interface {
	Put(ctx context.Context, key string, value T, ttl time.Duration) error
	Get(ctx context.Context, key string) (T, error)
	Update(ctx context.Context, key string, value T) error
	Delete(ctx context.Context, key string) error
	// TryGetAndRemove atomically fetches and deletes the value for key.
	// Exactly one concurrent caller observing the same key succeeds;
	// every other caller gets ErrNotFound. This is the primitive the
	// authorization-code/device-code/CIBA/replay-cache "exactly one
	// redemption" invariant (spec.md §5) is built on.
	TryGetAndRemove(ctx context.Context, key string) (T, error)
}

// ClientStore resolves registered clients.
type ClientStore interface {
	GetClient(ctx context.Context, clientID string) (ClientInfo, error)
	PutClient(ctx context.Context, client ClientInfo) error
	DeleteClient(ctx context.Context, clientID string) error
}

// ScopeManager recognizes scope names and the claims they imply.
type ScopeManager interface {
	Get(ctx context.Context, name string) (ScopeDefinition, bool)
	All(ctx context.Context) []ScopeDefinition
}

// ResourceManager resolves registered resource (audience) definitions.
type ResourceManager interface {
	Get(ctx context.Context, uri string) (ResourceDefinition, bool)
	All(ctx context.Context) []ResourceDefinition
}

// TokenRegistry tracks jti -> status for every issued access/refresh
// token, surviving until the token's own expiry (spec.md §3).
type TokenRegistry interface {
	Register(ctx context.Context, rec TokenRecord) error
	Status(ctx context.Context, jti string) (TokenRecord, error)
	Revoke(ctx context.Context, jti string) error
	MarkUsed(ctx context.Context, jti string) error
}

// CodeStore holds AuthorizationCode records, keyed by code value.
type CodeStore = TTLStore[AuthorizationCode]

// DeviceStore holds DeviceAuthorizationRequest records, keyed by
// device_code, with a secondary user_code index.
type DeviceStore interface {
	Put(ctx context.Context, deviceCode string, req DeviceAuthorizationRequest, ttl time.Duration) error
	GetByDeviceCode(ctx context.Context, deviceCode string) (DeviceAuthorizationRequest, error)
	GetByUserCode(ctx context.Context, userCode string) (DeviceAuthorizationRequest, error)
	Update(ctx context.Context, deviceCode string, req DeviceAuthorizationRequest) error
	// TryGetAndRemoveByDeviceCode consumes the record atomically once it is
	// Authorized, the same redemption guarantee CodeStore provides.
	TryGetAndRemoveByDeviceCode(ctx context.Context, deviceCode string) (DeviceAuthorizationRequest, error)
}

// CibaStore holds CibaAuthRequest records, keyed by auth_req_id.
type CibaStore interface {
	Put(ctx context.Context, authReqID string, req CibaAuthRequest, ttl time.Duration) error
	Get(ctx context.Context, authReqID string) (CibaAuthRequest, error)
	Update(ctx context.Context, authReqID string, req CibaAuthRequest) error
	TryGetAndRemove(ctx context.Context, authReqID string) (CibaAuthRequest, error)
}

// PARStore holds PushedAuthorizationRequest records.
type PARStore = TTLStore[PushedAuthorizationRequest]

// SessionStore holds Session records keyed by session id.
type SessionStore interface {
	Put(ctx context.Context, sessionID string, s Session) error
	Get(ctx context.Context, sessionID string) (Session, error)
	Delete(ctx context.Context, sessionID string) error
}

// ReplayCache is the bounded store of recently-seen jti values used to
// reject duplicate JWT Bearer assertions (spec.md §4.4, §8).
type ReplayCache interface {
	// SeenBefore atomically records jti (if not already present) and
	// reports whether it had already been seen — the same atomic
	// semantics as TryGetAndRemove, applied to a set rather than a value
	// store (spec.md §5 "the replay cache ... follows the same atomic
	// semantics").
	SeenBefore(ctx context.Context, jti string, ttl time.Duration) (bool, error)
}
