package tgui

import "unicode/utf8"

// TruncRunes shortens s to at most n runes, marking a cut with an
// ellipsis. Rune-based so multibyte text is never split mid-character.
func TruncRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	seen := 0
	for i := range s {
		if seen == n {
			return s[:i] + "…"
		}
		seen++
	}
	return s
}
