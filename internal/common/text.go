package common

import "unicode/utf8"

// CutAtRune returns at most n bytes of s without splitting a UTF-8 sequence
func CutAtRune(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Truncate shortens s to at most n bytes on a rune boundary, marking the cut with "..."
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return CutAtRune(s, n) + "..."
}
