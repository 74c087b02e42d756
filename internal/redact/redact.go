// Package redact removes credentials and other sensitive fragments from
// strings before they are logged, stored on a task, or returned to a client.
// Provider error bodies and transport errors can echo request URLs and
// headers, so everything that crosses that boundary goes through String.
package redact

import (
	"regexp"
	"strings"
	"sync"
)

// Constants for redaction placeholders
const (
	RedactionPlaceholder          = "[REDACTED]"
	RedactedCredentialPlaceholder = "[REDACTED_CREDENTIAL]"
	RedactedKeyPlaceholder        = "[REDACTED_KEY]"
	RedactedJWTPlaceholder        = "[REDACTED_JWT]"
)

// Precompiled regex patterns
var (
	// Database connection strings
	dbConnRegex = regexp.MustCompile(`(?i)(postgres|postgresql|redis|rediss|mysql|db|database)://[^@\s]+@`)

	// Credentials and tokens
	passwordRegex = regexp.MustCompile(`(?i)(password|passwd|pwd)\s*[=:]\s*['"]?[^'"&\s]{3,}`)
	apiKeyRegex   = regexp.MustCompile(
		`(?i)(x-goog-api-key|api[_-]?key|token|secret|key)['"]?\s*[:=]\s*['"]?[A-Za-z0-9_\-.~+/]{8,}`,
	)
	// Google API keys are 39 characters starting with AIza
	googleKeyRegex = regexp.MustCompile(`AIza[0-9A-Za-z_\-]{35}`)
	bearerRegex    = regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9_\-.~+/]{8,}=*`)
	jwtTokenRegex  = regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`)

	// Stack trace fragments
	stackTraceRegex = regexp.MustCompile(`(?:goroutine \d+|panic:)[\s\S]*?(\n\t.*)+`)

	// All patterns in application order with their placeholders
	patterns = []struct {
		re          *regexp.Regexp
		placeholder string
	}{
		{dbConnRegex, RedactedCredentialPlaceholder},
		{passwordRegex, RedactedCredentialPlaceholder},
		{jwtTokenRegex, RedactedJWTPlaceholder},
		{bearerRegex, RedactedCredentialPlaceholder},
		{googleKeyRegex, RedactedKeyPlaceholder},
		{apiKeyRegex, RedactedKeyPlaceholder},
		{stackTraceRegex, "[STACK_TRACE_REDACTED]"},
	}

	mu sync.RWMutex
)

// String redacts sensitive information from the input string
func String(input string) string {
	if input == "" {
		return input
	}

	mu.RLock()
	defer mu.RUnlock()

	result := input
	for _, p := range patterns {
		result = p.re.ReplaceAllString(result, p.placeholder)
	}

	return result
}

// Error redacts sensitive information from an error's Error() output
func Error(err error) string {
	if err == nil {
		return ""
	}

	return String(err.Error())
}

// Secret removes every literal occurrence of secret from input. It covers
// keys whose shape the patterns cannot recognise.
func Secret(input, secret string) string {
	if input == "" || len(secret) < 4 {
		return input
	}
	return strings.ReplaceAll(input, secret, RedactedKeyPlaceholder)
}
