// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package fositestore bridges the engine's own store contracts
// (internal/store) to the storage/client SPI ory/fosite's composed
// OAuth2Provider requires, so the hand-rolled client/scope/resource model
// spec.md §3 describes can drive fosite's core-grant handlers unmodified.
// Grounded on the teacher's client.go LoopbackClient-over-fosite.Client
// wrapper (internal/teacherref/authserver/client.go) and its storage.Storage
// interface, both generalized from a single loopback-redirect concern to
// the full ClientInfo surface; no concrete storage.Storage implementation
// survived retrieval, so this in-memory session bridge is built fresh in
// the same spirit as internal/store/memstore.
package fositestore

import (
	"context"

	"github.com/ory/fosite"

	"github.com/nexauth/oidcserver/internal/store"
)

// Client adapts a store.ClientInfo to fosite.Client. Client secret
// verification is never delegated to fosite: internal/clientauth
// authenticates the caller before a request reaches the fosite provider, so
// Client always reports itself Public and carries no hashed secret, which
// tells fosite's own (unused) secret check to pass through.
type Client struct {
	Info store.ClientInfo
}

var _ fosite.Client = (*Client)(nil)

func (c *Client) GetID() string                    { return c.Info.ClientID }
func (c *Client) GetHashedSecret() []byte           { return nil }
func (c *Client) GetRedirectURIs() []string         { return c.Info.RedirectURIs }
func (c *Client) GetGrantTypes() fosite.Arguments   { return fosite.Arguments(c.Info.GrantTypes) }
func (c *Client) GetResponseTypes() fosite.Arguments {
	return fosite.Arguments(c.Info.ResponseTypes)
}
func (c *Client) GetScopes() fosite.Arguments { return fosite.Arguments(c.Info.Scopes) }
func (c *Client) IsPublic() bool              { return true }
func (c *Client) GetAudience() fosite.Arguments {
	return fosite.Arguments(nil)
}

// ClientManager adapts store.ClientStore to fosite.ClientManager.
type ClientManager struct {
	Clients store.ClientStore
}

var _ fosite.ClientManager = (*ClientManager)(nil)

func (m *ClientManager) GetClient(ctx context.Context, id string) (fosite.Client, error) {
	info, err := m.Clients.GetClient(ctx, id)
	if err != nil {
		return nil, fosite.ErrNotFound.WithWrap(err)
	}
	return &Client{Info: info}, nil
}
