// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"
	"net/url"

	"github.com/nexauth/oidcserver/internal/engine"
)

// paramsFromRequest merges a request's query string and (for POST) form
// body into an engine.RequestParams, the shape the fetcher chain and
// validator pipeline operate over.
func paramsFromRequest(r *http.Request) (engine.RequestParams, error) {
	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	return engine.RequestParams(r.Form), nil
}

// requestWithParams builds a GET request carrying params as its query
// string, reusing r's context and headers. fosite's NewAuthorizeRequest /
// NewAccessRequest read from r.Form, so after the fetcher chain resolves
// request/request_uri/PAR indirection we hand fosite a flattened request
// rather than re-deriving its own (unresolved) view of the same params.
func requestWithParams(r *http.Request, params engine.RequestParams) *http.Request {
	values := url.Values(params)
	out := r.Clone(r.Context())
	out.Method = http.MethodGet
	out.URL.RawQuery = values.Encode()
	out.Form = values
	out.PostForm = nil
	out.Body = http.NoBody
	return out
}
