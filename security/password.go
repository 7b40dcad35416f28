package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/goliatone/go-auth-broker/core"
	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Iterations = 100_000
	pbkdf2KeyLength  = 32
	saltByteSize     = 16
)

// HashPassword derives a PBKDF2-SHA256 hash for the secret under a fresh
// random salt. Both values come back base64 encoded for storage.
func HashPassword(secret string) (hash string, salt string, err error) {
	if strings.TrimSpace(secret) == "" {
		return "", "", fmt.Errorf("security: secret is required")
	}
	rawSalt := make([]byte, saltByteSize)
	if _, err := io.ReadFull(rand.Reader, rawSalt); err != nil {
		return "", "", fmt.Errorf("security: generate salt: %w", err)
	}
	derived := pbkdf2.Key([]byte(secret), rawSalt, pbkdf2Iterations, pbkdf2KeyLength, sha256.New)
	return base64.StdEncoding.EncodeToString(derived), base64.StdEncoding.EncodeToString(rawSalt), nil
}

// HashPasswordWithSalt derives the hash under a caller-supplied base64 salt,
// for callers that manage salt storage themselves. HashPassword covers the
// fresh-credential case.
func HashPasswordWithSalt(secret, salt string) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", fmt.Errorf("security: secret is required")
	}
	rawSalt, err := base64.StdEncoding.DecodeString(salt)
	if err != nil {
		return "", fmt.Errorf("security: decode salt: %w", err)
	}
	if len(rawSalt) == 0 {
		return "", fmt.Errorf("security: salt is required")
	}
	derived := pbkdf2.Key([]byte(secret), rawSalt, pbkdf2Iterations, pbkdf2KeyLength, sha256.New)
	return base64.StdEncoding.EncodeToString(derived), nil
}

// VerifyPassword recomputes the hash under the stored salt and compares in
// constant time.
func VerifyPassword(secret, hash, salt string) bool {
	if secret == "" || hash == "" || salt == "" {
		return false
	}
	rawSalt, err := base64.StdEncoding.DecodeString(salt)
	if err != nil {
		return false
	}
	expected, err := base64.StdEncoding.DecodeString(hash)
	if err != nil {
		return false
	}
	derived := pbkdf2.Key([]byte(secret), rawSalt, pbkdf2Iterations, pbkdf2KeyLength, sha256.New)
	return subtle.ConstantTimeCompare(derived, expected) == 1
}

// GenerateSecureToken returns a URL-safe random token built from byteLen
// bytes of entropy.
func GenerateSecureToken(byteLen int) (string, error) {
	if byteLen <= 0 {
		byteLen = 32
	}
	raw := make([]byte, byteLen)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", fmt.Errorf("security: generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// MaskToken keeps only the edges of a token for log output.
func MaskToken(token string) string {
	return core.MaskToken(token)
}
