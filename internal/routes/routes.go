// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package routes resolves the `[route:key?fallback]` template mechanism
// every HTTP path is configured through (spec.md §6/§8 scenario 4):
// templates resolve recursively, either reaching a fixed point free of
// `[route:...]` fragments or raising ErrCircularDependency/ErrUnknownRoute.
package routes

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCircularDependency is raised when resolving a template would revisit a
// key already on the current resolution path.
var ErrCircularDependency = errors.New("routes: circular dependency")

// ErrUnknownRoute is raised when a template references a key with no
// registered value and no fallback.
var ErrUnknownRoute = errors.New("routes: unknown route")

// Resolver holds the configured route templates and resolves
// `[route:key?fallback]` references within them.
type Resolver struct {
	templates map[string]string
}

// New builds a Resolver from a key -> raw template map, e.g.
// {"base": "~/custom-connect", "authorize": "[route:base]/authorize"}.
func New(templates map[string]string) *Resolver {
	r := &Resolver{templates: make(map[string]string, len(templates))}
	for k, v := range templates {
		r.templates[k] = v
	}
	return r
}

// Resolve expands tmpl, recursively substituting every `[route:key]` or
// `[route:key?fallback]` fragment it contains, until no such fragment
// remains.
func (r *Resolver) Resolve(tmpl string) (string, error) {
	return r.resolve(tmpl, nil)
}

// ResolveKey looks up key in the configured templates and resolves it, or
// returns ErrUnknownRoute if key was never registered.
func (r *Resolver) ResolveKey(key string) (string, error) {
	tmpl, ok := r.templates[key]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownRoute, key)
	}
	return r.resolve(tmpl, nil)
}

func (r *Resolver) resolve(tmpl string, path []string) (string, error) {
	var out strings.Builder
	rest := tmpl
	for {
		start := strings.Index(rest, "[route:")
		if start == -1 {
			out.WriteString(rest)
			break
		}
		end := strings.IndexByte(rest[start:], ']')
		if end == -1 {
			// Unterminated fragment: treat the rest as literal text, the
			// same way a malformed template degrades to itself.
			out.WriteString(rest)
			break
		}
		end += start

		out.WriteString(rest[:start])
		fragment := rest[start+len("[route:") : end]
		rest = rest[end+1:]

		key, fallback, hasFallback := splitFragment(fragment)

		if containsString(path, key) {
			return "", fmt.Errorf("%w: %s", ErrCircularDependency, strings.Join(append(path, key), " -> "))
		}

		value, ok := r.templates[key]
		if !ok {
			if hasFallback {
				value = fallback
			} else {
				return "", fmt.Errorf("%w: %q", ErrUnknownRoute, key)
			}
		}

		resolved, err := r.resolve(value, append(path, key))
		if err != nil {
			return "", err
		}
		out.WriteString(resolved)
	}
	return out.String(), nil
}

// splitFragment splits "key?fallback" into its key and optional fallback.
func splitFragment(fragment string) (key, fallback string, hasFallback bool) {
	if idx := strings.IndexByte(fragment, '?'); idx != -1 {
		return fragment[:idx], fragment[idx+1:], true
	}
	return fragment, "", false
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
