// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

package clientauth

import (
	"context"
	"crypto/x509"

	"github.com/nexauth/oidcserver/internal/hashutil"
	"github.com/nexauth/oidcserver/internal/oidcerr"
	"github.com/nexauth/oidcserver/internal/store"
)

// TLSClientAuthAuthenticator implements tls_client_auth (RFC 8705 §2.1):
// the presented certificate must be trusted by the TLS terminator's client
// CA pool (enforced upstream, before this package ever sees the request)
// and must match the client's registered subject DN or one of its
// registered SANs.
type TLSClientAuthAuthenticator struct{}

func (TLSClientAuthAuthenticator) Method() store.ClientCredentialMethod {
	return store.AuthMethodTLSClientAuth
}

func (TLSClientAuthAuthenticator) Authenticate(_ context.Context, req ClientRequest, client store.ClientInfo) error {
	cert := req.ClientCertificate
	if cert == nil {
		return oidcerr.Validate(oidcerr.InvalidClient, "tls_client_auth requires a client certificate")
	}
	for _, cred := range client.Credentials {
		if cred.Method != store.AuthMethodTLSClientAuth {
			continue
		}
		if certMatchesRegisteredIdentity(cert, cred) {
			return nil
		}
	}
	return oidcerr.Validate(oidcerr.InvalidClient, "client certificate does not match any registered identity")
}

// SelfSignedTLSAuthenticator implements self_signed_tls_client_auth
// (RFC 8705 §2.2): trust is anchored directly to a pinned certificate
// thumbprint rather than a CA chain.
type SelfSignedTLSAuthenticator struct{}

func (SelfSignedTLSAuthenticator) Method() store.ClientCredentialMethod {
	return store.AuthMethodSelfSignedTLS
}

func (SelfSignedTLSAuthenticator) Authenticate(_ context.Context, req ClientRequest, client store.ClientInfo) error {
	cert := req.ClientCertificate
	if cert == nil {
		return oidcerr.Validate(oidcerr.InvalidClient, "self_signed_tls_client_auth requires a client certificate")
	}
	thumbprint := hashutil.SHA256Base64URL(cert.Raw)
	for _, cred := range client.Credentials {
		if cred.Method != store.AuthMethodSelfSignedTLS {
			continue
		}
		for _, pinned := range cred.CertificateThumbprints {
			if hashutil.ConstantTimeEqual(pinned, thumbprint) {
				return nil
			}
		}
	}
	return oidcerr.Validate(oidcerr.InvalidClient, "client certificate does not match any pinned thumbprint")
}

func certMatchesRegisteredIdentity(cert *x509.Certificate, cred store.ClientCredential) bool {
	if cred.SubjectDN != "" && cert.Subject.String() == cred.SubjectDN {
		return true
	}
	for _, dns := range cred.SANDNS {
		if containsString(cert.DNSNames, dns) {
			return true
		}
	}
	for _, email := range cred.SANEmail {
		if containsString(cert.EmailAddresses, email) {
			return true
		}
	}
	for _, uri := range cred.SANURI {
		for _, u := range cert.URIs {
			if u.String() == uri {
				return true
			}
		}
	}
	for _, ip := range cred.SANIP {
		for _, certIP := range cert.IPAddresses {
			if certIP.String() == ip {
				return true
			}
		}
	}
	return false
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
