// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Holding Console Contributors

package httpapi

import (
	"net/http"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

const (
	allowHeaders = "Content-Type"
	allowMethods = "POST,OPTIONS"
)

// originPattern holds an origin glob and its compiled matcher.
type originPattern struct {
	pattern string
	glob    glob.Glob
}

// corsPolicy decides the Access-Control-Allow-Origin value of a response.
//
// Patterns use gobwas/glob with '.' as the separator, so
// "https://*.holding.local" matches "https://ops.holding.local" but not
// "https://a.b.holding.local"; "**" crosses dots. A lone "*" allows any
// origin and is sent verbatim.
type corsPolicy struct {
	anyOrigin bool
	patterns  []originPattern
}

func newCORSPolicy(origins []string) (*corsPolicy, error) {
	p := &corsPolicy{}
	for i, pattern := range origins {
		if pattern == "" {
			return nil, oops.Code("HTTP_INVALID_CONFIG").With("index", i).Errorf("empty origin pattern")
		}
		if pattern == "*" {
			p.anyOrigin = true
			continue
		}
		g, err := glob.Compile(pattern, '.')
		if err != nil {
			return nil, oops.Code("HTTP_INVALID_CONFIG").With("pattern", pattern).Wrap(err)
		}
		p.patterns = append(p.patterns, originPattern{pattern: pattern, glob: g})
	}
	return p, nil
}

// allowOrigin returns the Allow-Origin value for a request origin and
// whether the header should be set at all.
func (p *corsPolicy) allowOrigin(origin string) (string, bool) {
	if p.anyOrigin {
		return "*", true
	}
	if origin == "" {
		return "", false
	}
	for _, op := range p.patterns {
		if op.glob.Match(origin) {
			return origin, true
		}
	}
	return "", false
}

// apply writes the CORS headers every response carries.
func (p *corsPolicy) apply(h http.Header, origin string) {
	if value, ok := p.allowOrigin(origin); ok {
		h.Set("Access-Control-Allow-Origin", value)
	}
	if !p.anyOrigin {
		h.Add("Vary", "Origin")
	}
	h.Set("Access-Control-Allow-Headers", allowHeaders)
	h.Set("Access-Control-Allow-Methods", allowMethods)
}
