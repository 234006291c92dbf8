// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package oidcerr defines the single error sum type the protocol engine
// surfaces to its callers, per the fetch/validate/process pipeline stages.
package oidcerr

import (
	"fmt"

	"github.com/nexauth/oidcserver/internal/obslog"
)

// Stage identifies which pipeline stage produced an Error.
type Stage string

const (
	StageFetch     Stage = "fetch"
	StageValidate  Stage = "validate"
	StageProcess   Stage = "process"
	StageInternal  Stage = "internal"
)

// Code is an OAuth 2.0 / OIDC error code drawn from the registries named in
// spec.md §7, plus a handful of internal-only polling codes.
type Code string

const (
	InvalidRequest            Code = "invalid_request"
	InvalidClient             Code = "invalid_client"
	InvalidGrant              Code = "invalid_grant"
	InvalidScope              Code = "invalid_scope"
	InvalidTarget              Code = "invalid_target"
	UnauthorizedClient        Code = "unauthorized_client"
	UnsupportedGrantType      Code = "unsupported_grant_type"
	UnsupportedResponseType   Code = "unsupported_response_type"
	AccessDenied              Code = "access_denied"
	ServerError               Code = "server_error"
	TemporarilyUnavailable    Code = "temporarily_unavailable"

	LoginRequired             Code = "login_required"
	InteractionRequired       Code = "interaction_required"
	AccountSelectionRequired  Code = "account_selection_required"
	ConsentRequired           Code = "consent_required"
	RequestNotSupported       Code = "request_not_supported"
	RequestURINotSupported    Code = "request_uri_not_supported"
	RegistrationNotSupported  Code = "registration_not_supported"

	// Dynamic Client Registration (RFC 7591 §3.2.2).
	InvalidClientMetadata Code = "invalid_client_metadata"
	InvalidRedirectURI    Code = "invalid_redirect_uri"

	// Bearer token usage (RFC 6750 §3.1), surfaced by userinfo/registration.
	InvalidToken Code = "invalid_token"

	// Internal-only, used by polling flows (device code / CIBA).
	AuthorizationPending Code = "authorization_pending"
	SlowDown             Code = "slow_down"
	ExpiredToken         Code = "expired_token"
)

// Error is the engine's single result-envelope failure type.
type Error struct {
	Code        Code
	Description string
	Stage       Stage
	// URI is an optional error_uri to surface to the caller.
	URI string
}

func (e *Error) Error() string {
	if e.Description == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// HTTPStatus returns the HTTP status code this error maps to per spec.md §6.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case InvalidClient, InvalidToken:
		return 401
	default:
		return 400
	}
}

func New(stage Stage, code Code, description string) *Error {
	return &Error{Stage: stage, Code: code, Description: description}
}

func Fetch(code Code, desc string) *Error    { return New(StageFetch, code, desc) }
func Validate(code Code, desc string) *Error { return New(StageValidate, code, desc) }
func Process(code Code, desc string) *Error  { return New(StageProcess, code, desc) }

// Internal wraps an unexpected programmer-bug condition as server_error,
// preserving the original error for logging but never leaking it to callers.
func Internal(cause error) *Error {
	obslog.Errorw("internal engine error", "cause", cause)
	return &Error{Stage: StageInternal, Code: ServerError, Description: "an internal error occurred"}
}

// As reports whether err is an *Error, mirroring errors.As ergonomics
// without requiring callers to import errors for this common case.
func As(err error) (*Error, bool) {
	e, ok := err.(*Error)
	return e, ok
}
