package util

import (
	"html"
	"strings"
)

var suspiciousFragments = []string{"<", ">", "$", "{", "}", "script", "onerror", "onload", "javascript:"}

// SanitizeInput trims and HTML-escapes free-form user input.
func SanitizeInput(s string) string {
	return html.EscapeString(strings.TrimSpace(s))
}

// ContainsSuspicious reports markup or template fragments that have no place
// in profile attributes.
func ContainsSuspicious(s string) bool {
	lower := strings.ToLower(s)
	for _, fragment := range suspiciousFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}
