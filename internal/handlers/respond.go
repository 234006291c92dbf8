// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"encoding/json"
	"html/template"
	"net/http"

	"github.com/nexauth/oidcserver/internal/oidcerr"
)

// errorBody is the {error, error_description?, error_uri?} shape spec.md §6
// and §7 require for every non-redirect error response.
type errorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	ErrorURI         string `json:"error_uri,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeOidcError renders err as a JSON error response, adding the
// WWW-Authenticate challenge invalid_client requires on 401 (spec.md §6).
func writeOidcError(w http.ResponseWriter, err *oidcerr.Error) {
	if err.Code == oidcerr.InvalidClient {
		w.Header().Set("WWW-Authenticate", `Basic realm="oidc"`)
	}
	writeJSON(w, err.HTTPStatus(), errorBody{
		Error:            string(err.Code),
		ErrorDescription: err.Description,
		ErrorURI:         err.URI,
	})
}

var formPostTemplate = template.Must(template.New("form_post").Parse(`<!DOCTYPE html>
<html>
<head><title>Submit</title></head>
<body onload="document.forms[0].submit()">
<form method="post" action="{{.Action}}">
{{range $k, $v := .Fields}}<input type="hidden" name="{{$k}}" value="{{$v}}">
{{end}}</form>
</body>
</html>`))

// writeFormPost renders the response_mode=form_post auto-submitting form
// fosite's own plain form_post writer uses, for callers (like JARM) that
// build the field set themselves rather than letting fosite do it.
func writeFormPost(w http.ResponseWriter, action string, fields map[string]string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	_ = formPostTemplate.Execute(w, struct {
		Action string
		Fields map[string]string
	}{Action: action, Fields: fields})
}
