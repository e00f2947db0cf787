package internal

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// DeviceFingerprint derives a stable identifier from the client signals that
// survive across logins. The same user agent, OS, and browser always map to
// the same fingerprint, so a returning device is recognized without storing
// anything on the client.
func DeviceFingerprint(userAgent, os, browser string) string {
	joined := strings.Join([]string{userAgent, os, browser}, "|")
	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:])
}

// TemplateHash is the digest stored for a biometric template. Raw template
// data never leaves the enrollment call.
func TemplateHash(template string) string {
	sum := sha256.Sum256([]byte(template))
	return hex.EncodeToString(sum[:])
}
