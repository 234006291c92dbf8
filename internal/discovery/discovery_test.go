// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

package discovery

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMTLSAliases_AutoDerived(t *testing.T) {
	t.Parallel()
	endpoints := Endpoints{
		Token:      "https://example.com/connect/token",
		Revocation: "https://example.com/connect/revoke",
	}
	aliases, err := BuildMTLSAliases(endpoints, nil, "https://mtls.example.com/oauth/")
	require.NoError(t, err)
	require.NotNil(t, aliases)
	assert.Equal(t, "https://mtls.example.com/oauth/token", aliases.TokenEndpoint)
	assert.Equal(t, "https://mtls.example.com/oauth/revoke", aliases.RevocationEndpoint)
}

func TestBuildMTLSAliases_DisabledEndpointYieldsEmptyAlias(t *testing.T) {
	t.Parallel()
	endpoints := Endpoints{
		Token:      "https://example.com/connect/token",
		Revocation: "", // disabled
	}
	aliases, err := BuildMTLSAliases(endpoints, nil, "https://mtls.example.com/oauth/")
	require.NoError(t, err)
	require.NotNil(t, aliases)
	assert.Empty(t, aliases.RevocationEndpoint)
}

func TestBuildMTLSAliases_ExplicitWins(t *testing.T) {
	t.Parallel()
	explicit := &MTLSEndpointAliases{TokenEndpoint: "https://pinned.example.com/token"}
	aliases, err := BuildMTLSAliases(Endpoints{Token: "https://example.com/connect/token"}, explicit, "https://mtls.example.com/oauth/")
	require.NoError(t, err)
	assert.Same(t, explicit, aliases)
}

func TestBuildMTLSAliases_NoBaseURINoAliases(t *testing.T) {
	t.Parallel()
	aliases, err := BuildMTLSAliases(Endpoints{Token: "https://example.com/connect/token"}, nil, "")
	require.NoError(t, err)
	assert.Nil(t, aliases)
}

func TestBuilder_Build(t *testing.T) {
	t.Parallel()
	b := Builder{
		Issuer: "https://auth.example.com",
		Endpoints: Endpoints{
			Authorization: "https://auth.example.com/connect/authorize",
			Token:         "https://auth.example.com/connect/token",
			JWKS:          "https://auth.example.com/.well-known/jwks",
		},
		ResponseTypesSupported:            []string{"code"},
		SubjectTypesSupported:             []string{"public"},
		IDTokenSigningAlgValuesSupported:  []string{"RS256"},
		GrantTypesSupported:               []string{"authorization_code", "refresh_token"},
		CodeChallengeMethodsSupported:     []string{"S256"},
		TokenEndpointAuthMethodsSupported: []string{"none", "client_secret_basic"},
	}

	doc, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, "https://auth.example.com", doc.Issuer)
	assert.Equal(t, "https://auth.example.com/connect/token", doc.TokenEndpoint)
	assert.Equal(t, "https://auth.example.com/connect/authorize", doc.AuthorizationEndpoint)
	assert.Equal(t, "https://auth.example.com/.well-known/jwks", doc.JWKSURI)
	assert.Contains(t, doc.ResponseTypesSupported, "code")
	assert.Contains(t, doc.SubjectTypesSupported, "public")
	assert.NotEmpty(t, doc.IDTokenSigningAlgValuesSupported)
	assert.Contains(t, doc.IDTokenSigningAlgValuesSupported, "RS256")
	assert.Contains(t, doc.GrantTypesSupported, "authorization_code")
	assert.Contains(t, doc.GrantTypesSupported, "refresh_token")
	assert.Contains(t, doc.CodeChallengeMethodsSupported, "S256")
	assert.Contains(t, doc.TokenEndpointAuthMethodsSupported, "none")
	assert.Nil(t, doc.MTLSEndpointAliases)

	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	var roundTrip map[string]any
	require.NoError(t, json.Unmarshal(raw, &roundTrip))
	assert.Equal(t, "https://auth.example.com", roundTrip["issuer"])
}

func TestBuilder_Build_WithMTLSBaseURI(t *testing.T) {
	t.Parallel()
	b := Builder{
		Issuer: "https://auth.example.com",
		Endpoints: Endpoints{
			Token: "https://auth.example.com/connect/token",
			JWKS:  "https://auth.example.com/.well-known/jwks",
		},
		ResponseTypesSupported:           []string{"code"},
		SubjectTypesSupported:            []string{"public"},
		IDTokenSigningAlgValuesSupported: []string{"RS256"},
		MTLSBaseURI:                      "https://mtls.example.com/oauth/",
	}
	doc, err := b.Build()
	require.NoError(t, err)
	require.NotNil(t, doc.MTLSEndpointAliases)
	assert.Equal(t, "https://mtls.example.com/oauth/token", doc.MTLSEndpointAliases.TokenEndpoint)
}
