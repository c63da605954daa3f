package util

import (
	"strings"
	"unicode"
)

// SanitizeInput trims s, drops control characters and caps it at maxLen runes.
// Output still needs escaping before it reaches HTML.
func SanitizeInput(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)

	if maxLen > 0 {
		if runes := []rune(s); len(runes) > maxLen {
			s = string(runes[:maxLen])
		}
	}
	return s
}
