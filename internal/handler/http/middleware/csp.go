// Package middleware holds HTTP middleware that needs configuration
// beyond a function argument, currently the Content-Security-Policy
// layer guarding the rendered surfaces.
package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"planet-cf/pkg/security/csp"
)

// CSPMiddlewareConfig holds configuration for CSP middleware.
// It supports path-based policy selection and report-only mode for testing.
type CSPMiddlewareConfig struct {
	// Enabled controls whether CSP headers are applied.
	// Can be toggled via environment variable for gradual rollout.
	// Default: true
	Enabled bool

	// DefaultPolicy applies when no path-specific policy matches.
	DefaultPolicy *csp.CSPBuilder

	// PathPolicies maps paths to specific CSP policies. A key matches
	// its exact path, or acts as a prefix for everything below it.
	// The root path "/" only ever matches exactly.
	// Example: map[string]*csp.CSPBuilder{
	//     "/":       csp.HomePagePolicy(),
	//     "/feeds/": csp.StrictPolicy(),
	// }
	PathPolicies map[string]*csp.CSPBuilder

	// ReportOnly switches every policy to
	// Content-Security-Policy-Report-Only, reporting violations without
	// enforcing. Used for trialing policy changes against live feed
	// content.
	ReportOnly bool
}

// headerValue is a policy rendered down to the header it sets.
type headerValue struct {
	name  string
	value string
}

// CSPMiddleware applies Content-Security-Policy headers to HTTP responses.
//
// Policies are rendered once at construction. The request path only selects
// among prebuilt header values, so serving involves no builder state and no
// locking.
type CSPMiddleware struct {
	config   CSPMiddlewareConfig
	rendered map[string]headerValue
	fallback headerValue
	hasFall  bool
}

// NewCSPMiddleware builds the middleware from config, rendering every
// configured policy. Policies must not be modified after they are handed
// in.
//
// Example:
//
//	cspMiddleware := NewCSPMiddleware(CSPMiddlewareConfig{
//	    Enabled:       true,
//	    DefaultPolicy: csp.StrictPolicy(),
//	    PathPolicies: map[string]*csp.CSPBuilder{
//	        "/": csp.HomePagePolicy(),
//	    },
//	})
//	handler = cspMiddleware.Middleware()(handler)
func NewCSPMiddleware(config CSPMiddlewareConfig) *CSPMiddleware {
	m := &CSPMiddleware{
		config:   config,
		rendered: make(map[string]headerValue, len(config.PathPolicies)),
	}

	for path, policy := range config.PathPolicies {
		m.rendered[path] = render(policy, config.ReportOnly)
	}
	if config.DefaultPolicy != nil {
		m.fallback = render(config.DefaultPolicy, config.ReportOnly)
		m.hasFall = true
	}

	return m
}

func render(policy *csp.CSPBuilder, reportOnly bool) headerValue {
	if reportOnly {
		policy = policy.ReportOnly(true)
	}
	return headerValue{
		name:  policy.HeaderName(),
		value: policy.Build(),
	}
}

// Middleware returns the HTTP middleware that sets the CSP header.
//
// Per request it selects a policy for the path (exact match, then longest
// prefix, then the default), sets the prerendered header, and passes
// through. Disabled middleware and paths without a policy pass through
// untouched.
func (m *CSPMiddleware) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !m.config.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			hv, ok := m.policyFor(r.URL.Path)
			if !ok || hv.value == "" {
				// ポリシー未設定のパスはそのまま通す
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set(hv.name, hv.value)

			slog.Debug("CSP header applied",
				slog.String("path", r.URL.Path),
				slog.String("header", hv.name),
			)

			next.ServeHTTP(w, r)
		})
	}
}

// policyFor selects the rendered policy for a path.
//
// Selection order:
//  1. Exact match in PathPolicies
//  2. Longest matching prefix. The root path "/" is exempt from prefix
//     matching, otherwise it would swallow the whole tree.
//  3. DefaultPolicy
func (m *CSPMiddleware) policyFor(path string) (headerValue, bool) {
	if hv, ok := m.rendered[path]; ok {
		return hv, true
	}

	longestPrefix := ""
	var matched headerValue
	found := false

	for prefix, hv := range m.rendered {
		if prefix == "/" {
			continue
		}
		if strings.HasPrefix(path, prefix) && len(prefix) > len(longestPrefix) {
			longestPrefix = prefix
			matched = hv
			found = true
		}
	}
	if found {
		return matched, true
	}

	return m.fallback, m.hasFall
}
