// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

package clientauth

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"math/big"
	"testing"
	"time"

	josejwk "github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexauth/oidcserver/internal/hashutil"
	"github.com/nexauth/oidcserver/internal/jwtkit"
	"github.com/nexauth/oidcserver/internal/oidcerr"
	"github.com/nexauth/oidcserver/internal/store"
	"github.com/nexauth/oidcserver/internal/store/memstore"
)

type fakeClientStore struct {
	clients map[string]store.ClientInfo
}

func (f *fakeClientStore) GetClient(_ context.Context, clientID string) (store.ClientInfo, error) {
	c, ok := f.clients[clientID]
	if !ok {
		return store.ClientInfo{}, store.ErrNotFound
	}
	return c, nil
}
func (f *fakeClientStore) PutClient(_ context.Context, c store.ClientInfo) error {
	f.clients[c.ClientID] = c
	return nil
}
func (f *fakeClientStore) DeleteClient(_ context.Context, clientID string) error {
	delete(f.clients, clientID)
	return nil
}

func newFakeClients(infos ...store.ClientInfo) *fakeClientStore {
	s := &fakeClientStore{clients: make(map[string]store.ClientInfo)}
	for _, c := range infos {
		s.clients[c.ClientID] = c
	}
	return s
}

func TestDispatcher_SecretBasic(t *testing.T) {
	t.Parallel()
	hash, err := hashutil.HashSecret("s3cr3t")
	require.NoError(t, err)

	clients := newFakeClients(store.ClientInfo{
		ClientID:                "client-1",
		TokenEndpointAuthMethod: string(store.AuthMethodClientSecretBasic),
		Credentials: []store.ClientCredential{
			{Method: store.AuthMethodClientSecretBasic, SecretHash: hash},
		},
	})
	d := NewDispatcher(clients, SecretBasicAuthenticator{}, SecretPostAuthenticator{}, NoneAuthenticator{})

	_, err = d.Authenticate(context.Background(), ClientRequest{ClientID: "client-1", ClientSecret: "s3cr3t"})
	require.NoError(t, err)

	_, err = d.Authenticate(context.Background(), ClientRequest{ClientID: "client-1", ClientSecret: "wrong"})
	require.Error(t, err)
	oerr, ok := oidcerr.As(err)
	require.True(t, ok)
	assert.Equal(t, oidcerr.InvalidClient, oerr.Code)
}

func TestDispatcher_MethodNotAttempted(t *testing.T) {
	t.Parallel()
	clients := newFakeClients(store.ClientInfo{
		ClientID:                "client-1",
		TokenEndpointAuthMethod: string(store.AuthMethodClientSecretBasic),
	})
	d := NewDispatcher(clients, SecretBasicAuthenticator{})

	// No client_secret presented at all: this must be distinguishable from
	// a wrong-secret failure, per spec.md §4's "method not attempted" note.
	_, err := d.Authenticate(context.Background(), ClientRequest{ClientID: "client-1"})
	require.Error(t, err)
	oerr, ok := oidcerr.As(err)
	require.True(t, ok)
	assert.Equal(t, oidcerr.InvalidClient, oerr.Code)
	assert.Contains(t, oerr.Description, "not attempted")
}

func TestDispatcher_UnknownClient(t *testing.T) {
	t.Parallel()
	clients := newFakeClients()
	d := NewDispatcher(clients, SecretBasicAuthenticator{})
	_, err := d.Authenticate(context.Background(), ClientRequest{ClientID: "ghost", ClientSecret: "x"})
	require.Error(t, err)
}

func TestClientSecretJWT_RoundTrip(t *testing.T) {
	t.Parallel()
	hmacKey := []byte("0123456789abcdef0123456789abcdef")
	client := store.ClientInfo{
		ClientID:                "client-jwt",
		TokenEndpointAuthMethod: string(store.AuthMethodClientSecretJWT),
		Credentials: []store.ClientCredential{
			{Method: store.AuthMethodClientSecretJWT, HMACKey: hmacKey},
		},
	}
	clients := newFakeClients(client)
	replay := memstore.NewReplayCache()
	authn := &ClientSecretJWTAuthenticator{
		Audience: func() string { return "https://idp.example.com/token" },
		Replay:   replay,
	}
	d := NewDispatcher(clients, authn)

	signer, err := jwtkit.NewSigner(jwtkit.HS256, "", hmacKey)
	require.NoError(t, err)
	now := time.Now()
	assertion, err := signer.Sign(jwtkit.New().
		WithIssuer("client-jwt").
		WithSubject("client-jwt").
		WithAudience("https://idp.example.com/token").
		WithJTI("jti-1").
		WithIssuedAt(now).
		WithExpiry(now.Add(time.Minute)))
	require.NoError(t, err)

	_, err = d.Authenticate(context.Background(), ClientRequest{
		ClientID:            "client-jwt",
		ClientAssertion:     assertion,
		ClientAssertionType: assertionTypeJWTBearer,
	})
	require.NoError(t, err)

	// Replaying the same jti must fail.
	_, err = d.Authenticate(context.Background(), ClientRequest{
		ClientID:            "client-jwt",
		ClientAssertion:     assertion,
		ClientAssertionType: assertionTypeJWTBearer,
	})
	require.Error(t, err)
}

func TestPrivateKeyJWT_RoundTrip(t *testing.T) {
	t.Parallel()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	jwk := jwtkit.FromJose(josejwk.JSONWebKey{Key: priv.Public(), KeyID: "test-kid", Algorithm: string(jwtkit.ES256)})
	pubSet := jwtkit.JsonWebKeySet{Keys: []jwtkit.JsonWebKey{jwk}}
	inlineJWKSBytes, err := json.Marshal(pubSet)
	require.NoError(t, err)

	client := store.ClientInfo{
		ClientID:                "client-pkjwt",
		TokenEndpointAuthMethod: string(store.AuthMethodPrivateKeyJWT),
		Credentials: []store.ClientCredential{
			{Method: store.AuthMethodPrivateKeyJWT, JWKS: inlineJWKSBytes},
		},
	}
	clients := newFakeClients(client)
	replay := memstore.NewReplayCache()
	authn := &PrivateKeyJWTAuthenticator{
		Resolver: NewRemoteJWKSResolver(jwtkit.NewRemoteJWKS(nil, time.Minute)),
		Audience: func() string { return "https://idp.example.com/token" },
		Replay:   replay,
	}
	d := NewDispatcher(clients, authn)

	signer, err := jwtkit.NewSigner(jwtkit.ES256, jwk.KeyID(), priv)
	require.NoError(t, err)
	now := time.Now()
	assertion, err := signer.Sign(jwtkit.New().
		WithIssuer("client-pkjwt").
		WithSubject("client-pkjwt").
		WithAudience("https://idp.example.com/token").
		WithJTI("jti-pk-1").
		WithIssuedAt(now).
		WithExpiry(now.Add(time.Minute)))
	require.NoError(t, err)

	_, err = d.Authenticate(context.Background(), ClientRequest{
		ClientID:            "client-pkjwt",
		ClientAssertion:     assertion,
		ClientAssertionType: assertionTypeJWTBearer,
	})
	require.NoError(t, err)
}

func TestSelfSignedTLSAuthenticator(t *testing.T) {
	t.Parallel()
	cert := selfSignedCert(t)
	thumbprint := hashutil.SHA256Base64URL(cert.Raw)

	client := store.ClientInfo{
		ClientID:                "client-mtls",
		TokenEndpointAuthMethod: string(store.AuthMethodSelfSignedTLS),
		Credentials: []store.ClientCredential{
			{Method: store.AuthMethodSelfSignedTLS, CertificateThumbprints: []string{thumbprint}},
		},
	}
	clients := newFakeClients(client)
	d := NewDispatcher(clients, SelfSignedTLSAuthenticator{})

	_, err := d.Authenticate(context.Background(), ClientRequest{ClientID: "client-mtls", ClientCertificate: cert})
	require.NoError(t, err)

	other := selfSignedCert(t)
	_, err = d.Authenticate(context.Background(), ClientRequest{ClientID: "client-mtls", ClientCertificate: other})
	require.Error(t, err)
}

func TestTLSClientAuthAuthenticator_SubjectDN(t *testing.T) {
	t.Parallel()
	cert := selfSignedCert(t)

	client := store.ClientInfo{
		ClientID:                "client-ca",
		TokenEndpointAuthMethod: string(store.AuthMethodTLSClientAuth),
		Credentials: []store.ClientCredential{
			{Method: store.AuthMethodTLSClientAuth, SubjectDN: cert.Subject.String()},
		},
	}
	clients := newFakeClients(client)
	d := NewDispatcher(clients, TLSClientAuthAuthenticator{})

	_, err := d.Authenticate(context.Background(), ClientRequest{ClientID: "client-ca", ClientCertificate: cert})
	require.NoError(t, err)
}

func TestNoneAuthenticator(t *testing.T) {
	t.Parallel()
	client := store.ClientInfo{ClientID: "public-client", TokenEndpointAuthMethod: string(store.AuthMethodNone)}
	clients := newFakeClients(client)
	d := NewDispatcher(clients, NoneAuthenticator{})

	_, err := d.Authenticate(context.Background(), ClientRequest{ClientID: "public-client"})
	require.NoError(t, err)
}

// --- test helpers ---

func selfSignedCert(t *testing.T) *x509.Certificate {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "test-client"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &priv.PublicKey, priv)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert
}
