// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

package jwtkit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nexauth/oidcserver/internal/clock"
)

// httpDoer is satisfied by *httpclient.Client; defined locally to avoid a
// dependency cycle between jwtkit and httpclient.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RemoteJWKS fetches and caches JWKS documents by URL, used both for
// client-registered jwks_uri and trusted JWT-bearer issuer JWKS (spec.md
// §4.2, §4.4, §4.12). Concurrent cache misses for the same URL are
// coalesced into a single fetch via singleflight, per spec.md §5.
type RemoteJWKS struct {
	client httpDoer
	ttl    time.Duration
	clock  clock.Clock

	mu    sync.RWMutex
	cache map[string]cachedJWKS

	group singleflight.Group
}

type cachedJWKS struct {
	set       JsonWebKeySet
	fetchedAt time.Time
}

// NewRemoteJWKS builds a cache with the given client and TTL.
func NewRemoteJWKS(client httpDoer, ttl time.Duration) *RemoteJWKS {
	if ttl == 0 {
		ttl = 10 * time.Minute
	}
	return &RemoteJWKS{
		client: client,
		ttl:    ttl,
		clock:  clock.Real{},
		cache:  make(map[string]cachedJWKS),
	}
}

// Get returns the JWKS for url, serving from cache when fresh.
func (r *RemoteJWKS) Get(ctx context.Context, url string) (JsonWebKeySet, error) {
	r.mu.RLock()
	entry, ok := r.cache[url]
	r.mu.RUnlock()
	if ok && r.clock.Now().Sub(entry.fetchedAt) < r.ttl {
		return entry.set, nil
	}

	v, err, _ := r.group.Do(url, func() (any, error) {
		return r.fetch(ctx, url)
	})
	if err != nil {
		return JsonWebKeySet{}, err
	}
	return v.(JsonWebKeySet), nil
}

func (r *RemoteJWKS) fetch(ctx context.Context, url string) (JsonWebKeySet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return JsonWebKeySet{}, fmt.Errorf("jwtkit: building jwks request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return JsonWebKeySet{}, fmt.Errorf("jwtkit: fetching jwks from %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return JsonWebKeySet{}, fmt.Errorf("jwtkit: jwks endpoint %s returned %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return JsonWebKeySet{}, fmt.Errorf("jwtkit: reading jwks body: %w", err)
	}

	var set JsonWebKeySet
	if err := json.Unmarshal(body, &set); err != nil {
		return JsonWebKeySet{}, fmt.Errorf("jwtkit: decoding jwks: %w", err)
	}

	r.mu.Lock()
	r.cache[url] = cachedJWKS{set: set, fetchedAt: r.clock.Now()}
	r.mu.Unlock()

	return set, nil
}
