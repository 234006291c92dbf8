// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/nexauth/oidcserver/internal/hashutil"
	"github.com/nexauth/oidcserver/internal/oidcerr"
	"github.com/nexauth/oidcserver/internal/randid"
	"github.com/nexauth/oidcserver/internal/store"
)

// clientMetadata is the RFC 7591 client metadata document, both as
// submitted by the registration request and as echoed back in the
// registration response (with server-assigned fields filled in).
type clientMetadata struct {
	ClientID                string   `json:"client_id,omitempty"`
	ClientSecret            string   `json:"client_secret,omitempty"`
	ClientIDIssuedAt        int64    `json:"client_id_issued_at,omitempty"`
	ClientSecretExpiresAt   int64    `json:"client_secret_expires_at"`
	RedirectURIs            []string `json:"redirect_uris,omitempty"`
	ResponseTypes           []string `json:"response_types,omitempty"`
	GrantTypes              []string `json:"grant_types,omitempty"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method,omitempty"`
	Scope                   string   `json:"scope,omitempty"`
	JWKSURI                 string   `json:"jwks_uri,omitempty"`
	SubjectType             string   `json:"subject_type,omitempty"`
	SectorIdentifierURI     string   `json:"sector_identifier_uri,omitempty"`
	IDTokenSignedResponseAlg string  `json:"id_token_signed_response_alg,omitempty"`
	FrontChannelLogoutURI               string `json:"frontchannel_logout_uri,omitempty"`
	FrontChannelLogoutSessionRequired    bool   `json:"frontchannel_logout_session_required,omitempty"`
	BackChannelLogoutURI                string `json:"backchannel_logout_uri,omitempty"`
	BackChannelLogoutSessionRequired     bool   `json:"backchannel_logout_session_required,omitempty"`
	PostLogoutRedirectURIs              []string `json:"post_logout_redirect_uris,omitempty"`
	RegistrationAccessToken string `json:"registration_access_token,omitempty"`
	RegistrationClientURI   string `json:"registration_client_uri,omitempty"`
}

// Register implements the Dynamic Client Registration endpoint (RFC 7591
// for POST, RFC 7592 for GET/PUT/DELETE, spec.md §4.11). Every
// registration is immediately active with no approval step, matching
// spec.md's Non-goal of excluding an admin review workflow.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.registerClient(w, r)
	case http.MethodGet:
		h.readClient(w, r)
	case http.MethodPut:
		h.updateClient(w, r)
	case http.MethodDelete:
		h.deleteClient(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) registerClient(w http.ResponseWriter, r *http.Request) {
	var meta clientMetadata
	if err := json.NewDecoder(r.Body).Decode(&meta); err != nil {
		writeOidcError(w, oidcerr.Validate(oidcerr.InvalidRequest, "malformed JSON body"))
		return
	}
	if err := validateRegistrationMetadata(meta); err != nil {
		writeOidcError(w, err)
		return
	}

	clientID, err := randid.Opaque(16)
	if err != nil {
		writeOidcError(w, oidcerr.Internal(err))
		return
	}
	registrationToken, err := randid.Opaque(32)
	if err != nil {
		writeOidcError(w, oidcerr.Internal(err))
		return
	}

	authMethod := meta.TokenEndpointAuthMethod
	if authMethod == "" {
		authMethod = string(store.AuthMethodClientSecretBasic)
	}

	client := store.ClientInfo{
		ClientID:                 clientID,
		RedirectURIs:             meta.RedirectURIs,
		ResponseTypes:            defaultStrings(meta.ResponseTypes, "code"),
		GrantTypes:               defaultStrings(meta.GrantTypes, "authorization_code"),
		Scopes:                   splitSpace(meta.Scope),
		IDTokenSignedResponseAlg: defaultString(meta.IDTokenSignedResponseAlg, "RS256"),
		SubjectType:              store.SubjectType(defaultString(meta.SubjectType, string(store.SubjectTypePublic))),
		SectorIdentifierURI:      meta.SectorIdentifierURI,
		FrontChannelLogoutURI:             meta.FrontChannelLogoutURI,
		FrontChannelLogoutSessionRequired: meta.FrontChannelLogoutSessionRequired,
		BackChannelLogoutURI:              meta.BackChannelLogoutURI,
		BackChannelLogoutSessionRequired:  meta.BackChannelLogoutSessionRequired,
		PostLogoutRedirectURIs:            meta.PostLogoutRedirectURIs,
		TokenEndpointAuthMethod:           authMethod,
		RegistrationAccessToken:           registrationToken,
	}

	var clientSecret string
	if authMethod == string(store.AuthMethodClientSecretBasic) || authMethod == string(store.AuthMethodClientSecretPost) {
		clientSecret, err = randid.Opaque(32)
		if err != nil {
			writeOidcError(w, oidcerr.Internal(err))
			return
		}
		hash, err := hashutil.HashSecret(clientSecret)
		if err != nil {
			writeOidcError(w, oidcerr.Internal(err))
			return
		}
		client.Credentials = []store.ClientCredential{{Method: store.ClientCredentialMethod(authMethod), SecretHash: hash}}
	} else if authMethod == string(store.AuthMethodPrivateKeyJWT) {
		client.Credentials = []store.ClientCredential{{Method: store.AuthMethodPrivateKeyJWT, JWKSURI: meta.JWKSURI}}
	}

	client.RegistrationClientURI = h.Validators.Issuer + h.Paths.Registration + "?client_id=" + clientID

	if err := h.Clients.PutClient(r.Context(), client); err != nil {
		writeOidcError(w, oidcerr.Internal(err))
		return
	}

	resp := metadataFromClient(client)
	resp.ClientSecret = clientSecret
	resp.ClientIDIssuedAt = h.Clock.Now().Unix()
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) readClient(w http.ResponseWriter, r *http.Request) {
	client, ok := h.authorizeRegistrationAccess(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, metadataFromClient(client))
}

func (h *Handler) updateClient(w http.ResponseWriter, r *http.Request) {
	client, ok := h.authorizeRegistrationAccess(w, r)
	if !ok {
		return
	}

	var meta clientMetadata
	if err := json.NewDecoder(r.Body).Decode(&meta); err != nil {
		writeOidcError(w, oidcerr.Validate(oidcerr.InvalidRequest, "malformed JSON body"))
		return
	}
	if err := validateRegistrationMetadata(meta); err != nil {
		writeOidcError(w, err)
		return
	}

	client.RedirectURIs = meta.RedirectURIs
	client.ResponseTypes = defaultStrings(meta.ResponseTypes, "code")
	client.GrantTypes = defaultStrings(meta.GrantTypes, "authorization_code")
	client.Scopes = splitSpace(meta.Scope)
	client.FrontChannelLogoutURI = meta.FrontChannelLogoutURI
	client.FrontChannelLogoutSessionRequired = meta.FrontChannelLogoutSessionRequired
	client.BackChannelLogoutURI = meta.BackChannelLogoutURI
	client.BackChannelLogoutSessionRequired = meta.BackChannelLogoutSessionRequired
	client.PostLogoutRedirectURIs = meta.PostLogoutRedirectURIs

	if err := h.Clients.PutClient(r.Context(), client); err != nil {
		writeOidcError(w, oidcerr.Internal(err))
		return
	}
	writeJSON(w, http.StatusOK, metadataFromClient(client))
}

func (h *Handler) deleteClient(w http.ResponseWriter, r *http.Request) {
	client, ok := h.authorizeRegistrationAccess(w, r)
	if !ok {
		return
	}
	if err := h.Clients.DeleteClient(r.Context(), client.ClientID); err != nil {
		writeOidcError(w, oidcerr.Internal(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// authorizeRegistrationAccess resolves the client named by the client_id
// query parameter and checks the bearer registration access token RFC 7592
// requires for every GET/PUT/DELETE call.
func (h *Handler) authorizeRegistrationAccess(w http.ResponseWriter, r *http.Request) (store.ClientInfo, bool) {
	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		writeOidcError(w, oidcerr.Validate(oidcerr.InvalidRequest, "client_id is required"))
		return store.ClientInfo{}, false
	}
	client, err := h.Clients.GetClient(r.Context(), clientID)
	if err != nil {
		writeOidcError(w, oidcerr.Validate(oidcerr.InvalidClient, "no such client"))
		return store.ClientInfo{}, false
	}
	token := bearerToken(r)
	if token == "" || !hashutil.ConstantTimeEqual(token, client.RegistrationAccessToken) {
		w.Header().Set("WWW-Authenticate", `Bearer realm="oidc"`)
		writeOidcError(w, oidcerr.Validate(oidcerr.InvalidToken, "invalid registration access token"))
		return store.ClientInfo{}, false
	}
	return client, true
}

func metadataFromClient(client store.ClientInfo) clientMetadata {
	return clientMetadata{
		ClientID:                 client.ClientID,
		RedirectURIs:             client.RedirectURIs,
		ResponseTypes:            client.ResponseTypes,
		GrantTypes:               client.GrantTypes,
		TokenEndpointAuthMethod:  client.TokenEndpointAuthMethod,
		Scope:                    strings.Join(client.Scopes, " "),
		SubjectType:              string(client.SubjectType),
		SectorIdentifierURI:      client.SectorIdentifierURI,
		IDTokenSignedResponseAlg: client.IDTokenSignedResponseAlg,
		FrontChannelLogoutURI:             client.FrontChannelLogoutURI,
		FrontChannelLogoutSessionRequired: client.FrontChannelLogoutSessionRequired,
		BackChannelLogoutURI:              client.BackChannelLogoutURI,
		BackChannelLogoutSessionRequired:  client.BackChannelLogoutSessionRequired,
		PostLogoutRedirectURIs:            client.PostLogoutRedirectURIs,
		RegistrationAccessToken:           client.RegistrationAccessToken,
		RegistrationClientURI:             client.RegistrationClientURI,
	}
}

func validateRegistrationMetadata(meta clientMetadata) *oidcerr.Error {
	for _, grant := range meta.GrantTypes {
		if grant == "authorization_code" && len(meta.RedirectURIs) == 0 {
			return oidcerr.Validate(oidcerr.InvalidClientMetadata, "redirect_uris is required for the authorization_code grant")
		}
	}
	return nil
}

func defaultStrings(v []string, fallback string) []string {
	if len(v) == 0 {
		return []string{fallback}
	}
	return v
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
