// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/nexauth/oidcserver/internal/jwtkit"
	"github.com/nexauth/oidcserver/internal/obslog"
	"github.com/nexauth/oidcserver/internal/oidcerr"
	"github.com/nexauth/oidcserver/internal/randid"
	"github.com/nexauth/oidcserver/internal/store"
)

// BackChannelLogoutEvent is the well-known "events" claim value RFC-defined
// logout tokens carry, per spec.md §4.10.
const BackChannelLogoutEvent = "http://schemas.openid.net/event/backchannel-logout"

// httpDoer is satisfied by *httpclient.Client.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// LogoutTokenSigner mints the signed logout token POSTed to each
// participating client's back-channel logout URI.
type LogoutTokenSigner struct {
	Signer *jwtkit.Signer
	Issuer string
}

// Sign builds a logout token per spec.md §4.10: "events" claim containing
// BackChannelLogoutEvent, plus sid and/or sub. A logout token MUST NOT
// carry a nonce claim (OIDC Back-Channel Logout §2.4).
func (s *LogoutTokenSigner) Sign(subject, sessionID string, now time.Time) (string, error) {
	jti, err := randid.Opaque(16)
	if err != nil {
		return "", err
	}
	claims := jwtkit.New().
		WithIssuer(s.Issuer).
		WithIssuedAt(now).
		WithExpiry(now.Add(2 * time.Minute)).
		WithJTI(jti)
	claims["events"] = map[string]any{BackChannelLogoutEvent: map[string]any{}}
	if subject != "" {
		claims = claims.WithSubject(subject)
	}
	if sessionID != "" {
		claims["sid"] = sessionID
	}
	if subject != "" {
		claims = claims.WithAudience(subject)
	}
	return s.Signer.Sign(claims)
}

// BackChannelNotifier delivers logout tokens to every participating
// client's back-channel logout URI with bounded concurrency and a
// per-target timeout; individual failures are logged, not surfaced
// (spec.md §4.10: "individual failures are logged but do not fail the
// end-session response").
type BackChannelNotifier struct {
	Client         httpDoer
	MaxConcurrency int
	PerTargetTimeout time.Duration
}

const (
	defaultMaxConcurrency   = 8
	defaultPerTargetTimeout = 5 * time.Second
)

// Target is one client's back-channel logout delivery instruction.
type Target struct {
	ClientID string
	URL      string
	Subject  string
}

// Notify fans the logout token out to every target, bounded by
// MaxConcurrency in-flight deliveries at a time. Outer ctx cancellation
// aborts the whole fan-out immediately (spec.md §5 "outer cancellation
// aborts the whole fan-out").
func (n *BackChannelNotifier) Notify(ctx context.Context, targets []Target, signer *LogoutTokenSigner, sessionID string, now time.Time) {
	concurrency := n.MaxConcurrency
	if concurrency <= 0 {
		concurrency = defaultMaxConcurrency
	}
	timeout := n.PerTargetTimeout
	if timeout <= 0 {
		timeout = defaultPerTargetTimeout
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	for _, target := range targets {
		select {
		case <-ctx.Done():
			return
		default:
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(t Target) {
			defer wg.Done()
			defer func() { <-sem }()
			n.deliver(ctx, t, signer, sessionID, now, timeout)
		}(target)
	}
	wg.Wait()
}

func (n *BackChannelNotifier) deliver(ctx context.Context, t Target, signer *LogoutTokenSigner, sessionID string, now time.Time, timeout time.Duration) {
	token, err := signer.Sign(t.Subject, sessionID, now)
	if err != nil {
		obslog.Errorw("back-channel logout: signing logout token failed", "client_id", t.ClientID, "err", err)
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	form := url.Values{"logout_token": {token}}
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, t.URL, strings.NewReader(form.Encode()))
	if err != nil {
		obslog.Errorw("back-channel logout: building request failed", "client_id", t.ClientID, "err", err)
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.Client.Do(req)
	if err != nil {
		obslog.Warnw("back-channel logout: delivery failed", "client_id", t.ClientID, "err", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		obslog.Warnw("back-channel logout: target returned non-2xx", "client_id", t.ClientID, "status", resp.StatusCode)
	}
}

// FrontChannelIframe describes one iframe the end-session response renders
// to notify a participating client via the browser.
type FrontChannelIframe struct {
	ClientID string
	URL      string
}

// BuildFrontChannelIframes resolves the front-channel logout URL for every
// participating client, appending iss/sid query parameters only when the
// client registered FrontChannelLogoutSessionRequired (spec.md §3/§4.10).
func BuildFrontChannelIframes(ctx context.Context, clients store.ClientStore, clientIDs []string, issuer, sessionID string) ([]FrontChannelIframe, error) {
	out := make([]FrontChannelIframe, 0, len(clientIDs))
	for _, id := range clientIDs {
		client, err := clients.GetClient(ctx, id)
		if err != nil {
			continue
		}
		if client.FrontChannelLogoutURI == "" {
			continue
		}
		iframeURL := client.FrontChannelLogoutURI
		if client.FrontChannelLogoutSessionRequired {
			parsed, err := url.Parse(iframeURL)
			if err != nil {
				return nil, oidcerr.Internal(err)
			}
			q := parsed.Query()
			q.Set("iss", issuer)
			q.Set("sid", sessionID)
			parsed.RawQuery = q.Encode()
			iframeURL = parsed.String()
		}
		out = append(out, FrontChannelIframe{ClientID: id, URL: iframeURL})
	}
	return out, nil
}
