package util

import (
	"html"
	"strings"
)

// SanitizeInput trims whitespace and escapes HTML/script-like characters
func SanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return html.EscapeString(s)
}

// IsEmailShaped reports whether an identifier looks like an email address.
// Used only to decide lookup strategy, not to validate deliverability.
func IsEmailShaped(s string) bool {
	at := strings.Index(s, "@")
	if at < 1 || at == len(s)-1 {
		return false
	}
	return strings.Contains(s[at+1:], ".")
}

// MaskEmail produces a hint like "use***@example.com" that is safe to show
// to a caller who has not yet completed verification.
func MaskEmail(email string) string {
	at := strings.Index(email, "@")
	if at <= 0 {
		return "***"
	}
	local, domain := email[:at], email[at:]
	keep := 3
	if len(local) < keep {
		keep = len(local)
	}
	return local[:keep] + "***" + domain
}
