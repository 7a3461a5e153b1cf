package sanitizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	s := New()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "script removed with contents",
			input: `<p>hello</p><script>alert("xss")</script>`,
			want:  `<p>hello</p>`,
		},
		{
			name:  "style removed with contents",
			input: `<style>body{display:none}</style><p>visible</p>`,
			want:  `<p>visible</p>`,
		},
		{
			name:  "event handler stripped",
			input: `<p onclick="steal()">text</p>`,
			want:  `<p>text</p>`,
		},
		{
			name:  "link keeps href title rel",
			input: `<a href="https://example.com/post" title="post" rel="nofollow" target="_blank">go</a>`,
			want:  `<a href="https://example.com/post" title="post" rel="nofollow">go</a>`,
		},
		{
			name:  "javascript scheme dropped",
			input: `<a href="javascript:alert(1)">click</a>`,
			want:  `<a>click</a>`,
		},
		{
			name:  "data scheme image dropped",
			input: `<img src="data:image/png;base64,AAAA" alt="x">`,
			want:  `<img alt="x">`,
		},
		{
			name:  "image keeps size attrs",
			input: `<img src="https://example.com/a.png" alt="a" width="640" height="480" style="border:0">`,
			want:  `<img src="https://example.com/a.png" alt="a" width="640" height="480">`,
		},
		{
			name:  "mailto allowed",
			input: `<a href="mailto:author@example.org">mail</a>`,
			want:  `<a href="mailto:author@example.org">mail</a>`,
		},
		{
			name:  "div and span stripped not escaped",
			input: `<div class="wrap"><span>inner</span> text</div>`,
			want:  `inner text`,
		},
		{
			name:  "iframe removed",
			input: `<p>before</p><iframe src="https://evil.example"></iframe><p>after</p>`,
			want:  `<p>before</p><p>after</p>`,
		},
		{
			name:  "table structure kept",
			input: `<table><thead><tr><th colspan="2">h</th></tr></thead><tbody><tr><td rowspan="2">c</td></tr></tbody></table>`,
			want:  `<table><thead><tr><th colspan="2">h</th></tr></thead><tbody><tr><td rowspan="2">c</td></tr></tbody></table>`,
		},
		{
			name:  "blockquote cite kept",
			input: `<blockquote cite="https://example.com/src"><p>quoted</p></blockquote>`,
			want:  `<blockquote cite="https://example.com/src"><p>quoted</p></blockquote>`,
		},
		{
			name:  "abbr title kept",
			input: `<abbr title="HyperText Markup Language">HTML</abbr>`,
			want:  `<abbr title="HyperText Markup Language">HTML</abbr>`,
		},
		{
			name:  "plain text untouched",
			input: `just words & an ampersand`,
			want:  `just words &amp; an ampersand`,
		},
		{
			name:  "empty input",
			input: ``,
			want:  ``,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Sanitize(tt.input))
		})
	}
}

// Sanitizing twice must equal sanitizing once, whatever the input: stored
// content is sanitized at ingest and the renderer may sanitize again.
func TestSanitize_Idempotent(t *testing.T) {
	s := New()

	inputs := []string{
		`<p>hello</p><script>alert(1)</script>`,
		`<a href="javascript:x()">y</a>`,
		`<div><table><tr><td colspan="3">v</td></tr></table></div>`,
		`<img src="https://e.com/i.png" onerror="p()">`,
		`plain & simple`,
		`<h2>title</h2><pre><code>x := 1</code></pre>`,
	}

	for _, in := range inputs {
		once := s.Sanitize(in)
		twice := s.Sanitize(once)
		assert.Equal(t, once, twice, "input %q", in)
	}
}

func TestText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "tags dropped",
			input: `<p>first</p><p>second <b>bold</b></p>`,
			want:  `first second bold`,
		},
		{
			name:  "entities decoded",
			input: `a &amp; b &lt;c&gt;`,
			want:  `a & b <c>`,
		},
		{
			name:  "script contents excluded",
			input: `<p>keep</p><script>var hidden = 1;</script>`,
			want:  `keep`,
		},
		{
			name:  "whitespace collapsed",
			input: "<p>one\n\n   two</p>\t<p>three</p>",
			want:  `one two three`,
		},
		{
			name:  "empty",
			input: ``,
			want:  ``,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Text(tt.input))
		})
	}
}
