// Package csp builds Content-Security-Policy header values. The aggregator
// renders sanitized third-party HTML on its home page, so CSP is the second
// line of defense behind the sanitizer: even if markup slips through, the
// browser refuses to execute it.
package csp

import (
	"strings"
)

// CSPBuilder assembles a Content-Security-Policy value from individual
// directives. Directives set later override earlier values for the same
// directive; Build renders them in a fixed order for stable output.
//
// Example:
//
//	policy := NewCSPBuilder().
//	    DefaultSrc("'self'").
//	    StyleSrc("'self'", "'unsafe-inline'").
//	    Build()
//	// "default-src 'self'; style-src 'self' 'unsafe-inline'"
//
// CSPBuilder is not safe for concurrent use. Builders are configured once
// at startup and only read afterwards.
type CSPBuilder struct {
	directives map[string][]string
	reportOnly bool
}

// NewCSPBuilder returns an empty builder.
func NewCSPBuilder() *CSPBuilder {
	return &CSPBuilder{
		directives: make(map[string][]string),
	}
}

func (b *CSPBuilder) set(directive string, sources []string) *CSPBuilder {
	b.directives[directive] = sources
	return b
}

// DefaultSrc sets default-src, the fallback for every fetch directive that
// is not set explicitly.
func (b *CSPBuilder) DefaultSrc(sources ...string) *CSPBuilder {
	return b.set("default-src", sources)
}

// ScriptSrc sets script-src, which controls where JavaScript may load from.
// The aggregator's pages never set it: with default-src 'none' and no
// script-src, no script runs at all.
func (b *CSPBuilder) ScriptSrc(sources ...string) *CSPBuilder {
	return b.set("script-src", sources)
}

// StyleSrc sets style-src for stylesheets.
func (b *CSPBuilder) StyleSrc(sources ...string) *CSPBuilder {
	return b.set("style-src", sources)
}

// ImgSrc sets img-src for images.
func (b *CSPBuilder) ImgSrc(sources ...string) *CSPBuilder {
	return b.set("img-src", sources)
}

// FontSrc sets font-src for fonts.
func (b *CSPBuilder) FontSrc(sources ...string) *CSPBuilder {
	return b.set("font-src", sources)
}

// ConnectSrc sets connect-src, which controls fetch, XHR, WebSocket and
// EventSource targets.
func (b *CSPBuilder) ConnectSrc(sources ...string) *CSPBuilder {
	return b.set("connect-src", sources)
}

// FrameAncestors sets frame-ancestors, which controls who may embed the
// page. "'none'" blocks framing entirely and with it clickjacking.
func (b *CSPBuilder) FrameAncestors(sources ...string) *CSPBuilder {
	return b.set("frame-ancestors", sources)
}

// FormAction sets form-action, the allowed targets for form submissions.
func (b *CSPBuilder) FormAction(sources ...string) *CSPBuilder {
	return b.set("form-action", sources)
}

// BaseUri sets base-uri, which restricts the document's <base> element so
// injected markup cannot rewrite relative URLs.
func (b *CSPBuilder) BaseUri(sources ...string) *CSPBuilder {
	return b.set("base-uri", sources)
}

// ObjectSrc sets object-src for <object> and <embed> elements.
func (b *CSPBuilder) ObjectSrc(sources ...string) *CSPBuilder {
	return b.set("object-src", sources)
}

// ReportUri sets report-uri, the endpoint for violation reports.
// Deprecated in CSP Level 3 in favor of report-to, but still the widely
// supported mechanism.
func (b *CSPBuilder) ReportUri(uri string) *CSPBuilder {
	return b.set("report-uri", []string{uri})
}

// ReportOnly switches between enforcement and report-only mode. Report-only
// policies log violations in the browser without blocking anything, which
// is how a new policy is trialed against real feed content.
func (b *CSPBuilder) ReportOnly(enabled bool) *CSPBuilder {
	b.reportOnly = enabled
	return b
}

// directiveOrder fixes the rendering order so the same builder always
// produces the same header value.
var directiveOrder = []string{
	"default-src",
	"script-src",
	"style-src",
	"img-src",
	"font-src",
	"connect-src",
	"frame-ancestors",
	"form-action",
	"base-uri",
	"object-src",
	"report-uri",
}

// Build renders the policy string: directives joined with "; ", sources
// within a directive joined with spaces. An empty builder renders to "".
func (b *CSPBuilder) Build() string {
	if len(b.directives) == 0 {
		return ""
	}

	var sb strings.Builder
	for _, directive := range directiveOrder {
		sources, ok := b.directives[directive]
		if !ok || len(sources) == 0 {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(directive)
		sb.WriteByte(' ')
		sb.WriteString(strings.Join(sources, " "))
	}

	return sb.String()
}

// HeaderName returns the header the policy should be sent under:
// Content-Security-Policy, or the Report-Only variant when ReportOnly(true)
// was set.
func (b *CSPBuilder) HeaderName() string {
	if b.reportOnly {
		return "Content-Security-Policy-Report-Only"
	}
	return "Content-Security-Policy"
}

// HomePagePolicy returns the CSP policy for the aggregated home page.
//
// The home page is unusual: it embeds sanitized HTML that originated in
// third-party feeds. The sanitizer strips scripts and event handlers,
// but CSP provides the second layer in case something slips through:
//   - No scripts of any kind (default-src 'none', no script-src)
//   - Inline styles allowed for the page's own embedded stylesheet
//   - Images from any HTTPS origin, since feed content hotlinks freely
//   - No frames, no form targets, no base rewriting
func HomePagePolicy() *CSPBuilder {
	return NewCSPBuilder().
		DefaultSrc("'none'").
		StyleSrc("'unsafe-inline'").
		ImgSrc("'self'", "https:", "data:").
		FrameAncestors("'none'").
		FormAction("'none'").
		BaseUri("'none'").
		ObjectSrc("'none'")
}

// StrictPolicy returns the policy for everything that is not the home page:
// syndication documents (Atom, RSS, OPML), the search API, and the
// operational endpoints. None of these serve HTML, so the policy only
// matters when a browser opens them directly.
func StrictPolicy() *CSPBuilder {
	return NewCSPBuilder().
		DefaultSrc("'none'").
		ConnectSrc("'self'").
		FrameAncestors("'none'").
		BaseUri("'self'").
		FormAction("'self'")
}
