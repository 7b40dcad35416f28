package flow

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
)

// PKCE carries one flow's proof-key pair. The verifier never leaves the
// broker; only the derived challenge rides on the authorize URL.
type PKCE struct {
	Verifier  string
	Challenge string
}

// GeneratePKCE builds a fresh S256 verifier/challenge pair from 32 bytes of
// entropy.
func GeneratePKCE() (PKCE, error) {
	raw := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return PKCE{}, fmt.Errorf("flow: generate pkce verifier: %w", err)
	}
	verifier := base64.RawURLEncoding.EncodeToString(raw)
	return PKCE{
		Verifier:  verifier,
		Challenge: ChallengeS256(verifier),
	}, nil
}

// ChallengeS256 derives the S256 code challenge for a verifier.
func ChallengeS256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// GenerateState builds an opaque CSRF state token.
func GenerateState() (string, error) {
	raw := make([]byte, 24)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", fmt.Errorf("flow: generate oauth state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
