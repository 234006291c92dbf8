// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package store defines the data model (spec.md §3) and persistence
// contracts (spec.md §6) the engine depends on. Storage layout is left to
// implementers; this package only fixes field shapes and invariants.
package store

import "time"

// ClientInfo is a registered relying party.
type ClientInfo struct {
	ClientID     string
	Credentials  []ClientCredential
	RedirectURIs []string
	// RedirectURIPatterns holds glob-style patterns explicitly registered
	// for pattern matching; exact match is otherwise required.
	RedirectURIPatterns []string
	ResponseTypes       []string
	GrantTypes          []string
	Scopes              []string
	PKCERequired        bool
	AllowPlainPKCE      bool
	AccessTokenLifespan time.Duration
	RefreshTokenLifespan time.Duration
	IDTokenSignedResponseAlg string
	IDTokenEncryptedResponseAlg string
	SubjectType              SubjectType
	SectorIdentifierURI      string
	FrontChannelLogoutURI    string
	FrontChannelLogoutSessionRequired bool
	BackChannelLogoutURI     string
	BackChannelLogoutSessionRequired  bool
	PostLogoutRedirectURIs   []string
	TokenEndpointAuthMethod  string
	OfflineAccessAllowed     bool
	RegistrationAccessToken  string
	RegistrationClientURI    string
}

// SubjectType controls how the "sub" claim is derived.
type SubjectType string

const (
	SubjectTypePublic   SubjectType = "public"
	SubjectTypePairwise SubjectType = "pairwise"
)

// ClientCredentialMethod is a token_endpoint_auth_method value.
type ClientCredentialMethod string

const (
	AuthMethodClientSecretBasic ClientCredentialMethod = "client_secret_basic"
	AuthMethodClientSecretPost  ClientCredentialMethod = "client_secret_post"
	AuthMethodClientSecretJWT   ClientCredentialMethod = "client_secret_jwt"
	AuthMethodPrivateKeyJWT     ClientCredentialMethod = "private_key_jwt"
	AuthMethodTLSClientAuth     ClientCredentialMethod = "tls_client_auth"
	AuthMethodSelfSignedTLS     ClientCredentialMethod = "self_signed_tls_client_auth"
	AuthMethodNone              ClientCredentialMethod = "none"
)

// ClientCredential is one authentication credential registered for a
// client. At most one active credential per method (spec.md §3).
type ClientCredential struct {
	Method ClientCredentialMethod

	// client_secret_basic / client_secret_post
	SecretHash     string
	SecretHashAlgo string

	// client_secret_jwt: HMAC verification of the signed assertion needs
	// the key material itself, not a one-way hash, so this method keeps
	// its own symmetric key distinct from the basic/post SecretHash.
	HMACKey []byte

	// private_key_jwt
	JWKSURI string
	JWKS    []byte // inline JWKS by value, JSON-encoded

	// tls_client_auth / self_signed_tls_client_auth
	SubjectDN string
	SANDNS    []string
	SANURI    []string
	SANIP     []string
	SANEmail  []string
	// CertificateThumbprints holds base64url(SHA-256(DER)) values accepted
	// for self_signed_tls_client_auth (RFC 8705 §2.2), where trust is
	// anchored to a pinned certificate rather than a CA chain.
	CertificateThumbprints []string
}

// AuthSession is the authenticated subject outcome handed to the engine by
// the (out-of-scope) login UI. Immutable once created.
type AuthSession struct {
	Subject      string
	AuthTime     time.Time
	ACR          string
	AMR          []string
	SessionID    string
}

// AuthorizationContext is the bound outcome of a successful authorization,
// carried across codes/refresh tokens/device grants to enable later token
// issuance with the same bindings.
type AuthorizationContext struct {
	Subject          string
	ClientID         string
	GrantedScopes    []string
	GrantedResources []string
	RequestedClaims  map[string][]string // "userinfo"/"id_token" -> claim names
	Nonce            string
	ACR              string
	AMR              []string
	AuthTime         time.Time
	CodeChallenge       string
	CodeChallengeMethod string
	SessionID           string
}

// AuthorizationCode is keyed by its opaque value in the code store.
type AuthorizationCode struct {
	Value       string
	Context     AuthorizationContext
	RedirectURI string
	IssuedAt    time.Time
	Consumed    bool
	// IssuedJTIs tracks every access/refresh token jti minted from this
	// code, so a replay can revoke all of them (spec.md §3 invariant).
	IssuedJTIs []string
}

// DeviceStatus is the device authorization state machine.
type DeviceStatus string

const (
	DevicePending    DeviceStatus = "Pending"
	DeviceAuthorized DeviceStatus = "Authorized"
	DeviceDenied     DeviceStatus = "Denied"
)

// AuthorizedGrant is the bound outcome recorded on approval of a device or
// CIBA request.
type AuthorizedGrant struct {
	Context AuthorizationContext
}

// DeviceAuthorizationRequest is keyed by DeviceCode, indexed by UserCode.
type DeviceAuthorizationRequest struct {
	DeviceCode       string
	UserCode         string
	ClientID         string
	RequestedScopes  []string
	RequestedResources []string
	Status           DeviceStatus
	NextPollAt       time.Time
	ExpiresAt        time.Time
	Interval         time.Duration
	Grant            *AuthorizedGrant
}

// CibaStatus mirrors DeviceStatus's pending/authorized/denied machine, plus
// a terminal "expired" state (spec.md §3).
type CibaStatus string

const (
	CibaPending    CibaStatus = "pending"
	CibaAuthorized CibaStatus = "authorized"
	CibaDenied     CibaStatus = "denied"
	CibaExpired    CibaStatus = "expired"
)

// CibaAuthRequest is keyed by AuthReqID.
type CibaAuthRequest struct {
	AuthReqID  string
	ClientID   string
	Context    AuthorizationContext
	Status     CibaStatus
	NextPollAt time.Time
	ExpiresAt  time.Time
	Interval   time.Duration
	Grant      *AuthorizedGrant
}

// PushedAuthorizationRequest is keyed by the request_uri fragment.
type PushedAuthorizationRequest struct {
	RequestURIID string
	ClientID     string
	Params       map[string][]string
	ExpiresAt    time.Time
}

// TokenStatus is the lifecycle of an issued JWT as tracked by jti.
type TokenStatus string

const (
	TokenIssued  TokenStatus = "Issued"
	TokenUsed    TokenStatus = "Used"
	TokenRevoked TokenStatus = "Revoked"
)

// TokenRecord is the per-jti entry in the TokenRegistry.
type TokenRecord struct {
	JTI      string
	ClientID string
	Subject  string
	Status   TokenStatus
	ExpiresAt time.Time
}

// ScopeDefinition describes one recognized scope.
type ScopeDefinition struct {
	Name           string
	ImpliedClaims  []string
	ResourceBound  bool
}

// ResourceDefinition describes one registered resource (audience).
type ResourceDefinition struct {
	URI            string
	OfferedScopes  []string
	// TokenFormat is e.g. "jwt" or "opaque".
	TokenFormat string
}

// Session is the server-side login session used for session_state
// computation and front/back-channel logout enumeration.
type Session struct {
	SessionID      string
	Subject        string
	ParticipatingClientIDs []string
	LastActivity   time.Time
}
