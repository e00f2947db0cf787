package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

const (
	sessionIDBytes   = 32
	opaqueTokenBytes = 32

	backupCodeGroups    = 3
	backupCodeGroupSize = 4
)

// backupCodeAlphabet omits 0/O and 1/I to keep codes transcribable.
const backupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewSessionID returns a 64-character lowercase hex session identifier.
func NewSessionID() (string, error) {
	var raw [sessionIDBytes]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw[:]), nil
}

// NewToken returns an opaque single-use token for reset and verification
// links, base64url without padding.
func NewToken() (string, error) {
	var raw [opaqueTokenBytes]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// HashToken returns the lowercase hex SHA-256 of token. Challenge stores hold
// only this digest, never the token itself.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// NewOTPCode returns a numeric code of the given length, each digit drawn
// independently from crypto/rand.
func NewOTPCode(digits int) (string, error) {
	if digits < 4 || digits > 10 {
		return "", errors.New("invalid otp digits")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	otp := b.String()
	if len(otp) != digits {
		return "", fmt.Errorf("invalid otp generation length")
	}
	return otp, nil
}

// NewBackupCode returns a recovery code in XXXX-XXXX-XXXX form.
func NewBackupCode() (string, error) {
	var b strings.Builder
	b.Grow(backupCodeGroups*backupCodeGroupSize + backupCodeGroups - 1)

	max := big.NewInt(int64(len(backupCodeAlphabet)))
	for g := 0; g < backupCodeGroups; g++ {
		if g > 0 {
			b.WriteByte('-')
		}
		for i := 0; i < backupCodeGroupSize; i++ {
			n, err := rand.Int(rand.Reader, max)
			if err != nil {
				return "", err
			}
			b.WriteByte(backupCodeAlphabet[n.Int64()])
		}
	}

	return b.String(), nil
}
