// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"context"
	"errors"
	"html/template"
	"net/http"

	josejwk "github.com/go-jose/go-jose/v4"

	"github.com/nexauth/oidcserver/internal/jwtkit"
	"github.com/nexauth/oidcserver/internal/session"
)

var errInvalidHint = errors.New("handlers: id_token_hint is not issued by this server")

// ownJWKS converts the server's own signing JWKS into the jwtkit-native
// representation id_token_hint verification reads keys from.
func ownJWKS(jwks *josejwk.JSONWebKeySet) jwtkit.JsonWebKeySet {
	out := jwtkit.JsonWebKeySet{Keys: make([]jwtkit.JsonWebKey, 0, len(jwks.Keys))}
	for _, k := range jwks.Keys {
		out.Keys = append(out.Keys, jwtkit.FromJose(k))
	}
	return out
}

var endSessionTemplate = template.Must(template.New("end_session").Parse(`<!DOCTYPE html>
<html>
<head><title>Signed out</title></head>
<body>
{{range .Iframes}}<iframe src="{{.URL}}" style="display:none" width="0" height="0"></iframe>
{{end}}{{if .Redirect}}<script>window.location.replace({{.Redirect}});</script>{{end}}
</body>
</html>`))

// EndSession implements GET/POST /connect/endsession (RP-Initiated Logout,
// spec.md §4.10). id_token_hint identifies the session to tear down;
// without one, the currently authenticated session (if any) is used
// instead. post_logout_redirect_uri is only honored when it exactly
// matches one of the hinted client's registered values.
func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed request", http.StatusBadRequest)
		return
	}
	ctx := r.Context()

	var (
		sessionID string
		subject   string
		hintedAud string
	)
	if hint := r.Form.Get("id_token_hint"); hint != "" {
		claims, err := h.verifyIDTokenHint(ctx, hint)
		if err == nil {
			subject = claims.Subject()
			if aud := claims.Audience(); len(aud) > 0 {
				hintedAud = aud[0]
			}
			if sid, ok := claims["sid"].(string); ok {
				sessionID = sid
			}
		}
	}
	if sessionID == "" {
		if authSession, ok := AuthSessionFromContext(ctx); ok {
			sessionID = authSession.SessionID
			subject = authSession.Subject
		}
	}

	clientID := r.Form.Get("client_id")
	if clientID == "" {
		clientID = hintedAud
	}

	postLogoutRedirectURI := r.Form.Get("post_logout_redirect_uri")
	if postLogoutRedirectURI != "" && clientID != "" {
		client, err := h.Clients.GetClient(ctx, clientID)
		if err != nil || !containsString(client.PostLogoutRedirectURIs, postLogoutRedirectURI) {
			postLogoutRedirectURI = ""
		}
	} else {
		postLogoutRedirectURI = ""
	}

	var iframes []session.FrontChannelIframe
	if sessionID != "" {
		sess, err := h.Sessions.Get(ctx, sessionID)
		if err == nil {
			iframes, _ = session.BuildFrontChannelIframes(ctx, h.Clients, sess.ParticipatingClientIDs, h.Validators.Issuer, sessionID)
			if h.BackChannel != nil && h.LogoutSigner != nil {
				targets := h.backChannelTargets(ctx, sess.ParticipatingClientIDs, subject)
				if len(targets) > 0 {
					h.BackChannel.Notify(ctx, targets, h.LogoutSigner, sessionID, h.Clock.Now())
				}
			}
		}
		_ = h.Sessions.Delete(ctx, sessionID)
	}

	redirect := ""
	if postLogoutRedirectURI != "" {
		redirectURL := postLogoutRedirectURI
		if state := r.Form.Get("state"); state != "" {
			redirectURL += "?state=" + template.URLQueryEscaper(state)
		}
		redirect = redirectURL
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_ = endSessionTemplate.Execute(w, struct {
		Iframes  []session.FrontChannelIframe
		Redirect string
	}{Iframes: iframes, Redirect: redirect})
}

// verifyIDTokenHint checks an id_token_hint was issued by this server
// itself. The expected algorithm is this server's own pinned signing
// algorithm (h.Config.SigningKey.Algorithm), never the hint's own "alg"
// header: a hint only ever needs to verify against this server's single
// key, so there is no legitimate reason to let the presented token pick
// its own algorithm family.
func (h *Handler) verifyIDTokenHint(_ context.Context, hint string) (jwtkit.Claims, error) {
	issuer, ok := unverifiedIssuer(hint)
	if !ok || issuer != h.Validators.Issuer {
		return nil, errInvalidHint
	}
	jwks := ownJWKS(h.Config.PublicJWKS())
	return jwtkit.Verify(hint, jwks, jwtkit.VerifyOptions{
		ExpectedAlgorithm: jwtkit.Algorithm(h.Config.SigningKey.Algorithm),
		ExpectedIssuer:    h.Validators.Issuer,
		Clock:             h.Clock,
	})
}

func (h *Handler) backChannelTargets(ctx context.Context, clientIDs []string, subject string) []session.Target {
	targets := make([]session.Target, 0, len(clientIDs))
	for _, id := range clientIDs {
		client, err := h.Clients.GetClient(ctx, id)
		if err != nil || client.BackChannelLogoutURI == "" {
			continue
		}
		targets = append(targets, session.Target{ClientID: id, URL: client.BackChannelLogoutURI, Subject: subject})
	}
	return targets
}

func containsString(haystack []string, needle string) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}
