// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package clientauth implements the pluggable client authentication
// methods spec.md §3/§4 names: client_secret_basic, client_secret_post,
// client_secret_jwt, private_key_jwt, tls_client_auth,
// self_signed_tls_client_auth, and none. Grounded on the teacher's
// LoopbackClient/fosite.Client wrapping style in
// internal/teacherref/authserver/client.go, generalized from a single
// redirect-URI concern to the full client-authentication surface.
package clientauth

import (
	"context"
	"crypto/x509"

	"github.com/nexauth/oidcserver/internal/oidcerr"
	"github.com/nexauth/oidcserver/internal/store"
)

// ClientRequest is the HTTP-layer client authentication material, assembled
// by the request fetcher stage before the core ever sees it (spec.md §4,
// "ClientRequest { client_id?, client_secret?, client_assertion?,
// client_assertion_type?, client_certificate? }").
type ClientRequest struct {
	ClientID            string
	ClientSecret        string
	ClientAssertion     string
	ClientAssertionType string
	ClientCertificate   *x509.Certificate
}

// Authenticator verifies one token_endpoint_auth_method against an already
// resolved ClientInfo. Authenticate must not consult the client store;
// resolution happens once in Dispatcher before any Authenticator runs.
type Authenticator interface {
	Method() store.ClientCredentialMethod
	Authenticate(ctx context.Context, req ClientRequest, client store.ClientInfo) error
}

// Dispatcher resolves a client by ID and authenticates it with the single
// Authenticator matching the client's registered token_endpoint_auth_method.
// Per spec.md §4: "mismatches yield method not attempted (so that error
// messages distinguish wrong method from wrong credentials)".
type Dispatcher struct {
	clients        store.ClientStore
	authenticators map[store.ClientCredentialMethod]Authenticator
}

func NewDispatcher(clients store.ClientStore, authenticators ...Authenticator) *Dispatcher {
	d := &Dispatcher{clients: clients, authenticators: make(map[store.ClientCredentialMethod]Authenticator, len(authenticators))}
	for _, a := range authenticators {
		d.authenticators[a.Method()] = a
	}
	return d
}

// Authenticate resolves req.ClientID and runs the authenticator registered
// for the client's TokenEndpointAuthMethod.
func (d *Dispatcher) Authenticate(ctx context.Context, req ClientRequest) (store.ClientInfo, error) {
	if req.ClientID == "" {
		return store.ClientInfo{}, oidcerr.Validate(oidcerr.InvalidClient, "client_id is required")
	}
	client, err := d.clients.GetClient(ctx, req.ClientID)
	if err != nil {
		return store.ClientInfo{}, oidcerr.Validate(oidcerr.InvalidClient, "unknown client")
	}

	method := store.ClientCredentialMethod(client.TokenEndpointAuthMethod)
	authn, ok := d.authenticators[method]
	if !ok {
		return store.ClientInfo{}, oidcerr.Internal(errUnconfiguredMethod(method))
	}

	if !methodAttempted(method, req) {
		return store.ClientInfo{}, oidcerr.Validate(oidcerr.InvalidClient, "client authentication method not attempted")
	}

	if err := authn.Authenticate(ctx, req, client); err != nil {
		return store.ClientInfo{}, err
	}
	return client, nil
}

// methodAttempted distinguishes "wrong method" from "wrong credentials":
// a request that never supplied the material a method requires is
// rejected before the method's own verification logic runs.
func methodAttempted(method store.ClientCredentialMethod, req ClientRequest) bool {
	switch method {
	case store.AuthMethodClientSecretBasic, store.AuthMethodClientSecretPost:
		return req.ClientSecret != ""
	case store.AuthMethodClientSecretJWT, store.AuthMethodPrivateKeyJWT:
		return req.ClientAssertion != "" && req.ClientAssertionType == assertionTypeJWTBearer
	case store.AuthMethodTLSClientAuth, store.AuthMethodSelfSignedTLS:
		return req.ClientCertificate != nil
	case store.AuthMethodNone:
		return true
	default:
		return false
	}
}

const assertionTypeJWTBearer = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

type errUnconfiguredMethod store.ClientCredentialMethod

func (e errUnconfiguredMethod) Error() string {
	return "clientauth: no authenticator configured for method " + string(e)
}
