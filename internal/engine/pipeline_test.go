// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"testing"
	"time"

	"github.com/nexauth/oidcserver/internal/oidcerr"
	"github.com/nexauth/oidcserver/internal/store"
	"github.com/nexauth/oidcserver/internal/store/memstore"
)

func newTestValidators() (*Validators, *memstore.ClientStore) {
	clients := memstore.NewClientStore()
	scopes := memstore.NewScopeManager(store.ScopeDefinition{Name: "openid"}, store.ScopeDefinition{Name: "email"})
	resources := memstore.NewResourceManager(store.ResourceDefinition{
		URI:           "https://api.example.com/",
		OfferedScopes: []string{"read", "write"},
	})
	return &Validators{
		Clients:   clients,
		Scopes:    scopes,
		Resources: resources,
		Issuer:    "https://issuer.example.com",
	}, clients
}

func baseClient() store.ClientInfo {
	return store.ClientInfo{
		ClientID:      "client-a",
		RedirectURIs:  []string{"https://client.example.com/cb"},
		ResponseTypes: []string{"code", "id_token"},
		PKCERequired:  true,
	}
}

func TestValidators_AuthorizationPipeline_HappyPath(t *testing.T) {
	t.Parallel()
	v, clients := newTestValidators()
	if err := clients.PutClient(context.Background(), baseClient()); err != nil {
		t.Fatalf("PutClient: %v", err)
	}

	params := RequestParams{
		"client_id":             {"client-a"},
		"redirect_uri":          {"https://client.example.com/cb"},
		"response_type":         {"code"},
		"scope":                 {"openid"},
		"nonce":                 {"abc"},
		"code_challenge":        {"E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"},
		"code_challenge_method": {"S256"},
	}
	vctx := &ValidationContext{Params: params, UserAuthenticated: true}

	if err := Run(context.Background(), vctx, v.AuthorizationPipeline()); err != nil {
		t.Fatalf("expected pipeline to succeed, got %v", err)
	}
	if vctx.Client.ClientID != "client-a" {
		t.Fatalf("expected resolved client, got %+v", vctx.Client)
	}
}

func TestValidators_UnknownClient(t *testing.T) {
	t.Parallel()
	v, _ := newTestValidators()
	vctx := &ValidationContext{Params: RequestParams{"client_id": {"does-not-exist"}}}

	err := Run(context.Background(), vctx, v.AuthorizationPipeline())
	if err == nil || err.Code != oidcerr.InvalidClient {
		t.Fatalf("expected invalid_client, got %v", err)
	}
}

func TestValidators_RedirectURINotRegistered(t *testing.T) {
	t.Parallel()
	v, clients := newTestValidators()
	if err := clients.PutClient(context.Background(), baseClient()); err != nil {
		t.Fatalf("PutClient: %v", err)
	}

	vctx := &ValidationContext{Params: RequestParams{
		"client_id":    {"client-a"},
		"redirect_uri": {"https://evil.example.com/cb"},
	}}

	err := Run(context.Background(), vctx, v.AuthorizationPipeline())
	if err == nil || err.Code != oidcerr.InvalidRequest {
		t.Fatalf("expected invalid_request, got %v", err)
	}
}

func TestValidators_UnsupportedResponseType(t *testing.T) {
	t.Parallel()
	v, clients := newTestValidators()
	if err := clients.PutClient(context.Background(), baseClient()); err != nil {
		t.Fatalf("PutClient: %v", err)
	}

	vctx := &ValidationContext{Params: RequestParams{
		"client_id":     {"client-a"},
		"redirect_uri":  {"https://client.example.com/cb"},
		"response_type": {"token"},
	}}

	err := Run(context.Background(), vctx, v.AuthorizationPipeline())
	if err == nil || err.Code != oidcerr.UnsupportedResponseType {
		t.Fatalf("expected unsupported_response_type, got %v", err)
	}
}

func TestValidators_MissingNonceWithIDToken(t *testing.T) {
	t.Parallel()
	v, clients := newTestValidators()
	client := baseClient()
	client.PKCERequired = false
	if err := clients.PutClient(context.Background(), client); err != nil {
		t.Fatalf("PutClient: %v", err)
	}

	vctx := &ValidationContext{Params: RequestParams{
		"client_id":     {"client-a"},
		"redirect_uri":  {"https://client.example.com/cb"},
		"response_type": {"id_token"},
	}}

	err := Run(context.Background(), vctx, v.AuthorizationPipeline())
	if err == nil || err.Code != oidcerr.InvalidRequest {
		t.Fatalf("expected invalid_request for missing nonce, got %v", err)
	}
}

func TestValidators_PromptNoneRequiresAuthentication(t *testing.T) {
	t.Parallel()
	v, clients := newTestValidators()
	client := baseClient()
	client.PKCERequired = false
	client.ResponseTypes = []string{"id_token"}
	if err := clients.PutClient(context.Background(), client); err != nil {
		t.Fatalf("PutClient: %v", err)
	}

	vctx := &ValidationContext{Params: RequestParams{
		"client_id":     {"client-a"},
		"redirect_uri":  {"https://client.example.com/cb"},
		"response_type": {"id_token"},
		"nonce":         {"abc"},
		"prompt":        {"none"},
	}, UserAuthenticated: false}

	err := Run(context.Background(), vctx, v.AuthorizationPipeline())
	if err == nil || err.Code != oidcerr.LoginRequired {
		t.Fatalf("expected login_required, got %v", err)
	}
}

func TestValidators_OfflineAccessRequiresClientPermission(t *testing.T) {
	t.Parallel()
	v, clients := newTestValidators()
	client := baseClient()
	client.PKCERequired = false
	if err := clients.PutClient(context.Background(), client); err != nil {
		t.Fatalf("PutClient: %v", err)
	}

	vctx := &ValidationContext{Params: RequestParams{
		"client_id":     {"client-a"},
		"redirect_uri":  {"https://client.example.com/cb"},
		"response_type": {"code"},
		"scope":         {"openid offline_access"},
	}, UserAuthenticated: true}

	err := Run(context.Background(), vctx, v.AuthorizationPipeline())
	if err == nil || err.Code != oidcerr.InvalidScope {
		t.Fatalf("expected invalid_scope, got %v", err)
	}
}

func TestValidators_ResourceMustBeRegisteredAndFragmentFree(t *testing.T) {
	t.Parallel()
	v, clients := newTestValidators()
	client := baseClient()
	client.PKCERequired = false
	if err := clients.PutClient(context.Background(), client); err != nil {
		t.Fatalf("PutClient: %v", err)
	}

	vctx := &ValidationContext{Params: RequestParams{
		"client_id":     {"client-a"},
		"redirect_uri":  {"https://client.example.com/cb"},
		"response_type": {"code"},
		"resource":      {"https://unregistered.example.com/"},
	}, UserAuthenticated: true}

	err := Run(context.Background(), vctx, v.AuthorizationPipeline())
	if err == nil || err.Code != oidcerr.InvalidTarget {
		t.Fatalf("expected invalid_target, got %v", err)
	}
}

func TestFetchChain_StopsAtFirstError(t *testing.T) {
	t.Parallel()
	calls := 0
	failing := Fetcher(func(_ context.Context, params RequestParams) (RequestParams, error) {
		calls++
		return nil, oidcerr.Validate(oidcerr.InvalidRequest, "boom")
	})
	neverCalled := Fetcher(func(_ context.Context, params RequestParams) (RequestParams, error) {
		calls++
		return params, nil
	})

	chain := FetchChain(PlainFetcher, failing, neverCalled)
	_, err := chain(context.Background(), RequestParams{})
	if err == nil {
		t.Fatal("expected error from chain")
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 fetcher invoked after plain passthrough, got %d", calls)
	}
}

func TestPARFetcher_MergesParamsAndStripsRequestURI(t *testing.T) {
	t.Parallel()
	clk := newMutableClock(time.Unix(1_700_000_000, 0))
	par := newPARProcessor(clk)
	requestURI, _, err := par.Push(context.Background(), "client-a", map[string][]string{"scope": {"openid"}})
	if err != nil {
		t.Fatalf("Push: %v", err)
	}

	fetcher := &PARFetcher{PAR: par}
	out, err := fetcher.Fetch(context.Background(), RequestParams{
		"client_id":   {"client-a"},
		"request_uri": {requestURI},
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if out.Has("request_uri") {
		t.Fatal("expected request_uri to be stripped after PAR resolution")
	}
	if out.Get("scope") != "openid" {
		t.Fatalf("expected merged scope, got %q", out.Get("scope"))
	}
}

func TestGlobMatch(t *testing.T) {
	t.Parallel()
	cases := []struct {
		pattern, value string
		want           bool
	}{
		{"https://app.example.com/*", "https://app.example.com/cb", true},
		{"https://app.example.com/*", "https://other.example.com/cb", false},
		{"https://app.example.com/cb", "https://app.example.com/cb", true},
	}
	for _, c := range cases {
		if got := globMatch(c.pattern, c.value); got != c.want {
			t.Errorf("globMatch(%q, %q) = %v, want %v", c.pattern, c.value, got, c.want)
		}
	}
}
