package logger

import (
	"regexp"
	"strings"
)

const redactedValue = "[REDACTED]"

// SensitiveDataPatterns contains regex patterns for sensitive data that should be redacted in logs
var SensitiveDataPatterns = []*regexp.Regexp{
	// Auth tokens (Bearer, JWT)
	regexp.MustCompile(`(?i)(bearer\s+)([A-Za-z0-9-._~+/]+=*)`),
	regexp.MustCompile(`(?i)(eyJ[a-zA-Z0-9_-]{5,}\.eyJ[a-zA-Z0-9_-]{5,})\.[a-zA-Z0-9_-]{5,}`),

	// Credentials embedded in broker and notification URLs
	regexp.MustCompile(`(?i)([a-z][a-z0-9+.-]*://[^:/\s@]+:)([^@\s]+)@`),

	// API keys, tokens and secrets
	regexp.MustCompile(`(?i)((api|access|auth|token|secret|passw(or)?d)[0-9a-z\-_\.]*[\s:=]+)([^;,\s]{5,})`),

	// CSRF tokens
	regexp.MustCompile(`(?i)(csrf[-_]?token[\s:=]+)([^;,\s"]{5,})`),
}

// SensitiveKeywords mark field keys whose string values are always redacted
var SensitiveKeywords = []string{
	"password", "passwd", "secret", "credential", "token", "apikey", "api_key",
	"authorization", "cookie", "dsn",
}

// RedactSensitiveData replaces sensitive information with "[REDACTED]"
func RedactSensitiveData(input string) string {
	if input == "" {
		return input
	}
	for i, pattern := range SensitiveDataPatterns {
		if i == 2 {
			// keep the trailing @ so the host stays readable
			input = pattern.ReplaceAllString(input, "${1}"+redactedValue+"@")
			continue
		}
		input = pattern.ReplaceAllString(input, "${1}"+redactedValue)
	}
	return input
}

func isSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, kw := range SensitiveKeywords {
		if strings.Contains(keyLower, kw) {
			return true
		}
	}
	return false
}
