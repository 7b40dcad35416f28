package flow

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"testing"
)

func TestGeneratePKCEChallengeMatchesVerifier(t *testing.T) {
	pkce, err := GeneratePKCE()
	if err != nil {
		t.Fatalf("generate pkce: %v", err)
	}
	if pkce.Verifier == "" || pkce.Challenge == "" {
		t.Fatalf("verifier and challenge must be set, got %+v", pkce)
	}

	sum := sha256.Sum256([]byte(pkce.Verifier))
	want := base64.RawURLEncoding.EncodeToString(sum[:])
	if pkce.Challenge != want {
		t.Fatalf("challenge %q does not match S256 of verifier", pkce.Challenge)
	}
}

func TestGeneratePKCEVerifierIsUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 32; i++ {
		pkce, err := GeneratePKCE()
		if err != nil {
			t.Fatalf("generate pkce: %v", err)
		}
		if seen[pkce.Verifier] {
			t.Fatalf("verifier repeated after %d draws", i)
		}
		seen[pkce.Verifier] = true
	}
}

func TestGenerateStateIsURLSafe(t *testing.T) {
	state, err := GenerateState()
	if err != nil {
		t.Fatalf("generate state: %v", err)
	}
	if state == "" {
		t.Fatal("state must not be empty")
	}
	if strings.ContainsAny(state, "+/=") {
		t.Fatalf("state must be base64url without padding, got %q", state)
	}
}

func TestGeneratePairingCodeUsesUnambiguousAlphabet(t *testing.T) {
	for i := 0; i < 16; i++ {
		code, err := GeneratePairingCode()
		if err != nil {
			t.Fatalf("generate pairing code: %v", err)
		}
		if len(code) != PairingCodeLength {
			t.Fatalf("expected %d chars, got %q", PairingCodeLength, code)
		}
		for _, c := range code {
			if !strings.ContainsRune(pairingCodeAlphabet, c) {
				t.Fatalf("code %q contains %q outside the alphabet", code, c)
			}
		}
		if strings.ContainsAny(code, "0O1IL") {
			t.Fatalf("code %q contains a confusable character", code)
		}
	}
}
