// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

package clientauth

import (
	"context"

	"github.com/nexauth/oidcserver/internal/hashutil"
	"github.com/nexauth/oidcserver/internal/oidcerr"
	"github.com/nexauth/oidcserver/internal/store"
)

// SecretBasicAuthenticator implements client_secret_basic: the secret
// arrives via HTTP Basic auth, already split into ClientRequest by the
// fetcher stage.
type SecretBasicAuthenticator struct{}

func (SecretBasicAuthenticator) Method() store.ClientCredentialMethod {
	return store.AuthMethodClientSecretBasic
}

func (SecretBasicAuthenticator) Authenticate(_ context.Context, req ClientRequest, client store.ClientInfo) error {
	return verifySecret(req.ClientSecret, client)
}

// SecretPostAuthenticator implements client_secret_post: the secret arrives
// as a client_secret form parameter.
type SecretPostAuthenticator struct{}

func (SecretPostAuthenticator) Method() store.ClientCredentialMethod {
	return store.AuthMethodClientSecretPost
}

func (SecretPostAuthenticator) Authenticate(_ context.Context, req ClientRequest, client store.ClientInfo) error {
	return verifySecret(req.ClientSecret, client)
}

func verifySecret(secret string, client store.ClientInfo) error {
	for _, cred := range client.Credentials {
		if cred.Method != store.AuthMethodClientSecretBasic && cred.Method != store.AuthMethodClientSecretPost {
			continue
		}
		if cred.SecretHash == "" {
			continue
		}
		if hashutil.VerifySecret(cred.SecretHash, secret) {
			return nil
		}
	}
	return oidcerr.Validate(oidcerr.InvalidClient, "client secret did not match")
}

// NoneAuthenticator implements the "none" method for public clients: no
// secret, assertion, or certificate is required or checked.
type NoneAuthenticator struct{}

func (NoneAuthenticator) Method() store.ClientCredentialMethod { return store.AuthMethodNone }

func (NoneAuthenticator) Authenticate(context.Context, ClientRequest, store.ClientInfo) error {
	return nil
}
