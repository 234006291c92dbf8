// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"sync"
	"testing"
	"time"

	"github.com/ory/fosite/handler/openid"

	"github.com/nexauth/oidcserver/internal/clientauth"
	"github.com/nexauth/oidcserver/internal/clock"
	"github.com/nexauth/oidcserver/internal/discovery"
	"github.com/nexauth/oidcserver/internal/engine"
	"github.com/nexauth/oidcserver/internal/hashutil"
	"github.com/nexauth/oidcserver/internal/store"
	"github.com/nexauth/oidcserver/internal/store/fositestore"
	"github.com/nexauth/oidcserver/internal/store/memstore"
)

const testIssuer = "https://issuer.example.com"

// mutableClock is a test-only clock.Clock whose Now() can be advanced,
// mirroring internal/engine/device_test.go's helper of the same shape.
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

var _ clock.Clock = (*mutableClock)(nil)

// testServer bundles a fully wired Handler with the real collaborators
// compile() in cmd/oidcserverd/serve.go assembles in production: memstore
// client/scope/resource/device stores, fositestore.Storage, and a
// fosite.OAuth2Provider built from the same grant factories. No gomock
// stand-ins are used anywhere in this harness.
type testServer struct {
	t       *testing.T
	Handler *Handler
	Clock   *mutableClock
	Clients *memstore.ClientStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	clk := newMutableClock(time.Unix(1_700_000_000, 0))

	clients := memstore.NewClientStore()
	scopes := memstore.NewScopeManager(
		store.ScopeDefinition{Name: "openid"},
		store.ScopeDefinition{Name: "profile"},
		store.ScopeDefinition{Name: "offline_access"},
	)
	resources := memstore.NewResourceManager()
	devices := memstore.NewDeviceStore()
	registry := memstore.NewTokenRegistry()

	signingKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating signing key: %v", err)
	}
	hmacSecret := make([]byte, 32)
	for i := range hmacSecret {
		hmacSecret[i] = byte(i + 1)
	}

	engineConfig, err := engine.NewAuthorizationServerConfig(&engine.AuthorizationServerParams{
		Issuer:               testIssuer,
		AccessTokenLifespan:  time.Hour,
		RefreshTokenLifespan: 24 * time.Hour,
		AuthCodeLifespan:     time.Minute,
		HMACSecrets:          engine.NewHMACSecrets(hmacSecret),
		SigningKeyID:         "test-key",
		SigningKeyAlgorithm:  "RS256",
		SigningKey:           signingKey,
	})
	if err != nil {
		t.Fatalf("compiling engine config: %v", err)
	}

	storage := fositestore.New(clients, registry)
	sessionPrototype := openid.NewDefaultSession()

	provider := engine.NewAuthorizationServer(engineConfig, storage, sessionPrototype,
		engine.AuthorizeCodeGrantFactory,
		engine.RefreshTokenGrantFactory,
		engine.ClientCredentialsGrantFactory,
		engine.PKCEFactory,
		engine.OpenIDConnectExplicitFactory,
		engine.IntrospectionFactory,
		engine.RevocationFactory,
	)

	validators := &engine.Validators{
		Clients:   clients,
		Scopes:    scopes,
		Resources: resources,
		Issuer:    testIssuer,
	}

	clientAuth := clientauth.NewDispatcher(clients,
		clientauth.SecretBasicAuthenticator{},
		clientauth.SecretPostAuthenticator{},
		clientauth.NoneAuthenticator{},
	)

	h := NewHandler(provider, engineConfig, storage, validators, clientAuth, DefaultPaths(), discovery.Builder{Issuer: testIssuer})
	h.Registry = registry
	h.Clock = clk
	h.Device = &engine.DeviceAuthorizationProcessor{
		Store:        devices,
		Clock:        clk,
		PollInterval: 2 * time.Second,
	}

	return &testServer{t: t, Handler: h, Clock: clk, Clients: clients}
}

// registerPublicClient registers a PKCE-required public client, the shape
// spec.md §8 scenario 1 exercises.
func (ts *testServer) registerPublicClient(clientID string, redirectURIs ...string) {
	ts.t.Helper()
	err := ts.Clients.PutClient(context.Background(), store.ClientInfo{
		ClientID:            clientID,
		RedirectURIs:        redirectURIs,
		ResponseTypes:       []string{"code"},
		GrantTypes:          []string{"authorization_code", "refresh_token", "urn:ietf:params:oauth:grant-type:device_code"},
		Scopes:              []string{"openid", "profile", "offline_access"},
		PKCERequired:        true,
		TokenEndpointAuthMethod: string(store.AuthMethodNone),
		OfflineAccessAllowed: true,
	})
	if err != nil {
		ts.t.Fatalf("registering public client: %v", err)
	}
}

// registerConfidentialClient registers a client_secret_basic client.
func (ts *testServer) registerConfidentialClient(clientID, secret string, redirectURIs ...string) {
	ts.t.Helper()
	hash, err := hashutil.HashSecret(secret)
	if err != nil {
		ts.t.Fatalf("hashing secret: %v", err)
	}
	err = ts.Clients.PutClient(context.Background(), store.ClientInfo{
		ClientID:                clientID,
		RedirectURIs:            redirectURIs,
		ResponseTypes:           []string{"code"},
		GrantTypes:              []string{"authorization_code", "refresh_token", "urn:ietf:params:oauth:grant-type:device_code"},
		Scopes:                  []string{"openid", "profile", "offline_access"},
		PKCERequired:            false,
		OfflineAccessAllowed:    true,
		TokenEndpointAuthMethod: string(store.AuthMethodClientSecretBasic),
		Credentials: []store.ClientCredential{{
			Method:     store.AuthMethodClientSecretBasic,
			SecretHash: hash,
		}},
	})
	if err != nil {
		ts.t.Fatalf("registering confidential client: %v", err)
	}
}
