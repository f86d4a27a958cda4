package util

import "strings"

const nanoidLength = 21

// IsNanoid reports whether s has the shape of a default go-nanoid id.
func IsNanoid(s string) bool {
	if len(s) != nanoidLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-':
		default:
			return false
		}
	}
	return true
}

// SanitizePostgresText drops invalid UTF-8 and NUL bytes, which Postgres
// rejects in text columns.
func SanitizePostgresText(value string) string {
	if value == "" {
		return value
	}
	return strings.ReplaceAll(strings.ToValidUTF8(value, ""), "\x00", "")
}
