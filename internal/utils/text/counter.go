// Package text provides utilities for text processing.
// The helpers count and cut by Unicode characters (runes) rather than
// bytes so that multi-byte scripts and emoji are never split mid-character
// when building entry summaries, title prefixes, and embedding inputs.
package text

// CountRunes counts the number of Unicode characters (runes) in the given text.
// Counting runes instead of bytes correctly handles multi-byte characters
// including Japanese, Chinese, and emoji.
//
// Examples:
//
//	CountRunes("hello")          // returns 5 (ASCII text)
//	CountRunes("こんにちは")       // returns 5 (Japanese text)
//	CountRunes("")               // returns 0 (empty string)
func CountRunes(text string) int {
	return len([]rune(text))
}

// TruncateRunes cuts text to at most limit runes. A non-positive limit
// yields the empty string; text at or under the limit is returned
// unchanged, without reallocating.
func TruncateRunes(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
