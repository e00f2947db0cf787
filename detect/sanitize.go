package detect

import "regexp"

// maxLogPayload caps how much of a request payload ever reaches a log line.
const maxLogPayload = 500

var credentialRe = regexp.MustCompile(`(?i)(password|pwd|passwd|secret|token|key)\s*[:=]\s*["']?[^"'\s]+["']?`)

// SanitizeForLogging masks credential-looking fields in payload and truncates
// the result to 500 characters. The redacted form keeps the field name so an
// operator can still see what was submitted.
func SanitizeForLogging(payload string) string {
	return SanitizeForLoggingN(payload, maxLogPayload)
}

// SanitizeForLoggingN is SanitizeForLogging with an explicit length cap.
func SanitizeForLoggingN(payload string, maxLength int) string {
	if payload == "" {
		return ""
	}

	sanitized := credentialRe.ReplaceAllString(payload, "$1: ***")
	if maxLength > 0 && len(sanitized) > maxLength {
		sanitized = sanitized[:maxLength] + "..."
	}
	return sanitized
}
