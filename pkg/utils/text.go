package utils

import "strings"

// TruncateString safely truncates a string to max length, appending an
// ellipsis when anything was cut. Operates on runes so multi-byte content
// (emoji-heavy chat messages) is never split mid-character.
func TruncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "…"
}

// EscapeSQLWildcards escapes SQL LIKE/ILIKE wildcard characters so user input
// can be used safely in pattern queries.
func EscapeSQLWildcards(input string) string {
	input = strings.ReplaceAll(input, "\\", "\\\\")
	input = strings.ReplaceAll(input, "%", "\\%")
	input = strings.ReplaceAll(input, "_", "\\_")
	return input
}
