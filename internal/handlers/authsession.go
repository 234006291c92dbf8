// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"context"

	"github.com/nexauth/oidcserver/internal/store"
)

type authSessionKey struct{}

// ContextWithAuthSession attaches an already-authenticated AuthSession to
// ctx. The login UI that performs user authentication is out of scope
// (spec.md Non-goals); whatever component owns it calls this before
// dispatching into Handler.Authorize or Handler.BackchannelAuthenticate.
func ContextWithAuthSession(ctx context.Context, s store.AuthSession) context.Context {
	return context.WithValue(ctx, authSessionKey{}, s)
}

// AuthSessionFromContext retrieves the AuthSession ContextWithAuthSession
// attached, if any.
func AuthSessionFromContext(ctx context.Context) (store.AuthSession, bool) {
	s, ok := ctx.Value(authSessionKey{}).(store.AuthSession)
	return s, ok
}
