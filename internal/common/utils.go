package common

import (
	"strings"
	"unicode"
)

// StripSpace removes every whitespace rune from s, including embedded
// newlines and tabs.
func StripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
