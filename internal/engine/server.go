// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"github.com/ory/fosite"
)

// HandlerFactory builds one fosite handler from the compiled config,
// storage, and a session prototype, generalizing the teacher's
// composition style (server/provider_test.go TestNewAuthorizationServer)
// to this engine's grant surface. A factory returning nil, or a value
// implementing none of the four handler interfaces, is skipped silently —
// that flexibility lets an optional fosite handler (PKCE, OpenID Connect,
// introspection, revocation) be omitted by simply not supplying its
// factory. CIBA, device authorization, and PAR have no factory; they are
// separate processors set on handlers.Handler.
type HandlerFactory func(config *AuthorizationServerConfig, store fosite.Storage, session fosite.Session) any

// NewAuthorizationServer builds a fosite.OAuth2Provider by constructing the
// base provider over store/config and then running every factory,
// appending whatever handler type each one returns to the matching
// fosite handler list.
func NewAuthorizationServer(config *AuthorizationServerConfig, store fosite.Storage, session fosite.Session, factories ...HandlerFactory) fosite.OAuth2Provider {
	f := fosite.NewOAuth2Provider(store, config.Config)

	for _, factory := range factories {
		if factory == nil {
			continue
		}
		handler := factory(config, store, session)
		if handler == nil {
			continue
		}
		if h, ok := handler.(fosite.AuthorizeEndpointHandler); ok {
			f.AuthorizeEndpointHandlers.Append(h)
		}
		if h, ok := handler.(fosite.TokenEndpointHandler); ok {
			f.TokenEndpointHandlers.Append(h)
		}
		if h, ok := handler.(fosite.TokenIntrospector); ok {
			f.TokenIntrospectionHandlers.Append(h)
		}
		if h, ok := handler.(fosite.RevocationHandler); ok {
			f.RevocationHandlers.Append(h)
		}
	}

	return f
}
