package identity

import "strings"

// NormalizeUsername trims surrounding whitespace.
// Matching stays case-sensitive: "Alice" and "alice" are different accounts.
func NormalizeUsername(s string) string {
	return strings.TrimSpace(s)
}

// NormalizeEmail trims surrounding whitespace. Case is preserved.
func NormalizeEmail(s string) string {
	return strings.TrimSpace(s)
}

// NormalizeLogin trims a username-or-email login identifier.
func NormalizeLogin(s string) string {
	return strings.TrimSpace(s)
}
